// Package acceptor 提供基于 TCP 的接入层：监听端口、接受连接并把每条连接交给 Handler。
package acceptor

import (
	"context"
	"net"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"github.com/lk2023060901/snap-garden-go/internal/network"
	"github.com/lk2023060901/snap-garden-go/internal/network/transport"
	"github.com/lk2023060901/snap-garden-go/pkg/log"
	"github.com/lk2023060901/snap-garden-go/pkg/util/conc"
	"github.com/lk2023060901/snap-garden-go/pkg/util/merr"
)

// Handler 由接入层的使用者实现。
type Handler interface {
	// OnAccept 处理一条新接入的连接。
	//
	// 在 Acceptor 的 worker pool 中执行，只应完成握手并把连接交给长期运行的组件（如 pump），然后尽快返回；
	// 返回错误时 Acceptor 会关闭该连接。
	OnAccept(ctx context.Context, stream transport.Stream) error
}

// HandlerFunc 将普通函数适配为 Handler。
type HandlerFunc func(ctx context.Context, stream transport.Stream) error

func (f HandlerFunc) OnAccept(ctx context.Context, stream transport.Stream) error {
	return f(ctx, stream)
}

// Config 描述 Acceptor 的配置。
type Config struct {
	// PoolSize 为同时处理握手的最大连接数，超出时新连接被直接关闭。
	PoolSize int
	// Stream 为每条连接使用的帧读写配置。
	Stream transport.TCPOptions
}

const (
	defaultPoolSize = 256

	// acceptRetryMin/acceptRetryMax 为临时性 Accept 错误的退避区间。
	acceptRetryMin = 5 * time.Millisecond
	acceptRetryMax = time.Second

	overloadLogCost = 1
)

// Acceptor 是基于 TCP 的接入器。
type Acceptor struct {
	ln   net.Listener
	cfg  Config
	pool *conc.Pool[struct{}]

	closeOnce sync.Once
	logger    *log.MLogger
}

// New 使用已有的 Listener 创建一个接入器。
func New(ln net.Listener, cfg Config) (*Acceptor, error) {
	if ln == nil {
		return nil, merr.WrapErrParameterInvalidMsg("acceptor: listener is nil")
	}
	if cfg.PoolSize <= 0 {
		cfg.PoolSize = defaultPoolSize
	}
	return &Acceptor{
		ln:     ln,
		cfg:    cfg,
		pool:   conc.NewPool[struct{}](cfg.PoolSize, conc.WithNonBlocking(true), conc.WithRecoverTask(true)),
		logger: log.With(log.FieldComponent("acceptor"), zap.String("addr", ln.Addr().String())),
	}, nil
}

// Listen 在给定地址上监听 TCP，并创建一个接入器。
func Listen(addr string, cfg Config) (*Acceptor, error) {
	if addr == "" {
		return nil, merr.WrapErrParameterInvalidMsg("acceptor: addr is empty")
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, errors.Wrapf(err, "acceptor: listen on %s", addr)
	}
	return New(ln, cfg)
}

// Addr 返回实际监听地址。
func (a *Acceptor) Addr() net.Addr {
	return a.ln.Addr()
}

// Serve 持续接受连接，阻塞直至 ctx 取消、Close 被调用或出现不可恢复的错误。
//
// ctx 取消或 Close 导致的退出返回 nil。
func (a *Acceptor) Serve(ctx context.Context, h Handler) error {
	if h == nil {
		return merr.WrapErrParameterInvalidMsg("acceptor: handler is nil")
	}

	stop := context.AfterFunc(ctx, func() { _ = a.Close() })
	defer stop()

	a.logger.Info("acceptor serving")
	var delay time.Duration
	for {
		conn, err := a.ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				delay = nextDelay(delay)
				a.logger.Warn("accept failed, retrying", zap.Duration("delay", delay), zap.Error(err))
				select {
				case <-time.After(delay):
					continue
				case <-ctx.Done():
					return nil
				}
			}
			return errors.Wrap(err, "acceptor: accept")
		}
		delay = 0

		stream := transport.NewTCP(conn, a.cfg.Stream)
		future := a.pool.Submit(func() (struct{}, error) {
			return struct{}{}, a.handle(ctx, h, stream)
		})
		if future.Done() && errors.Is(future.Err(), merr.ErrServiceTooManyRequests) {
			a.logger.RatedWarn(overloadLogCost, "too many pending handshakes, dropping connection",
				log.FieldRemote(conn.RemoteAddr().String()))
			_ = stream.Close()
		}
	}
}

func (a *Acceptor) handle(ctx context.Context, h Handler, stream transport.Stream) error {
	if err := h.OnAccept(ctx, stream); err != nil {
		a.logger.Info("connection rejected",
			log.FieldRemote(stream.RemoteAddr().String()),
			network.FieldStage(network.StageHandshake),
			zap.Error(err))
		_ = stream.Close()
		return err
	}
	return nil
}

// Close 停止接受新连接并释放 worker pool；已交出的连接不受影响。
func (a *Acceptor) Close() error {
	var err error
	a.closeOnce.Do(func() {
		err = a.ln.Close()
		a.pool.Release()
	})
	return err
}

func nextDelay(d time.Duration) time.Duration {
	if d == 0 {
		return acceptRetryMin
	}
	d *= 2
	if d > acceptRetryMax {
		return acceptRetryMax
	}
	return d
}
