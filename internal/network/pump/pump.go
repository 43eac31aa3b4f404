// Package pump 将一条按帧读写的 Stream 转换为带背压的类型化消息通道。
//
// 每个 Pump 持有两个独立的 goroutine：
//   - writer：从有界发送队列中取出已编码的帧并写出，写失败即关闭整个 Pump；
//   - reader：读取并解码入站帧，顺序调用 onMessage，连接结束后恰好调用一次 onDisconnect。
package pump

import (
	"context"
	"sync"

	"go.uber.org/atomic"
	"go.uber.org/zap"

	"github.com/lk2023060901/snap-garden-go/internal/network"
	"github.com/lk2023060901/snap-garden-go/internal/network/codec"
	"github.com/lk2023060901/snap-garden-go/internal/network/framer"
	"github.com/lk2023060901/snap-garden-go/internal/network/transport"
	"github.com/lk2023060901/snap-garden-go/pkg/log"
	"github.com/lk2023060901/snap-garden-go/pkg/metrics"
	"github.com/lk2023060901/snap-garden-go/pkg/util/merr"
)

// DefaultQueueSize 为每个连接发送队列的默认容量。
const DefaultQueueSize = 25

// malformedLogCost 为每条非法帧日志消耗的限流额度。
const malformedLogCost = 1

// Pump 服务于一条物理连接，I 为入站消息类型，O 为出站消息类型。
type Pump[I any, O any] struct {
	log.Binder

	stream transport.Stream
	codec  codec.Codec

	ctx    context.Context
	cancel context.CancelFunc

	// mu 保护 closed 与入队操作：Close 返回后不会再有 Send 成功入队。
	mu     sync.RWMutex
	closed bool
	queue  chan framer.Frame

	onMessage    func(I)
	onDisconnect func(error)

	cause      atomic.Error
	writerDone chan struct{}
	done       chan struct{}
}

// Option 用于定制 Pump。
type Option func(*options)

type options struct {
	queueSize int
	codec     codec.Codec
	logger    *log.MLogger
}

// WithQueueSize 设置发送队列容量，非正数时使用 DefaultQueueSize。
func WithQueueSize(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.queueSize = n
		}
	}
}

// WithCodec 设置帧编解码器，默认使用 JSON。
func WithCodec(c codec.Codec) Option {
	return func(o *options) {
		if c != nil {
			o.codec = c
		}
	}
}

// WithLogger 设置 Pump 使用的 Logger。
func WithLogger(l *log.MLogger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// Open 接管 stream 并启动读写协程。
//
// onMessage 在 reader 协程中被顺序调用，返回后才会读取下一帧；
// onDisconnect 在连接结束（对端关闭、读写出错、ctx 取消或调用 Close）后恰好被调用一次，
// 参数为结束原因，主动关闭时为 nil。
func Open[I any, O any](ctx context.Context, stream transport.Stream, onMessage func(I), onDisconnect func(error), opts ...Option) *Pump[I, O] {
	o := &options{queueSize: DefaultQueueSize}
	for _, opt := range opts {
		opt(o)
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if o.codec == nil {
		o.codec = codec.NewJSON()
	}
	if o.logger == nil {
		o.logger = log.Ctx(ctx)
	}

	pctx, cancel := context.WithCancel(ctx)
	p := &Pump[I, O]{
		stream:       stream,
		codec:        o.codec,
		ctx:          pctx,
		cancel:       cancel,
		queue:        make(chan framer.Frame, o.queueSize),
		onMessage:    onMessage,
		onDisconnect: onDisconnect,
		writerDone:   make(chan struct{}),
		done:         make(chan struct{}),
	}
	p.SetLogger(o.logger.With(
		log.FieldRemote(addrString(stream)),
		zap.String("transport", string(stream.Kind())),
	))

	// 取消后关闭底层连接，以唤醒阻塞在 ReadFrame/WriteFrame 上的协程。
	context.AfterFunc(pctx, func() {
		_ = stream.Close()
	})

	metrics.ConnectionsActive.WithLabelValues(string(stream.Kind())).Inc()

	go p.writeLoop()
	go p.readLoop()
	return p
}

// Send 编码 msg 并尝试非阻塞地放入发送队列。
//
// 投递是尽力而为的：编码失败、队列已满或 Pump 已关闭时立即返回错误。
func (p *Pump[I, O]) Send(msg O) error {
	f, err := p.codec.Encode(msg)
	if err != nil {
		metrics.OutboundDropped.WithLabelValues(metrics.ReasonEncode).Inc()
		p.Logger().Warn("encode outbound message failed", network.FieldStage(network.StageEncode), zap.Error(err))
		return err
	}

	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		metrics.OutboundDropped.WithLabelValues(metrics.ReasonClosed).Inc()
		return merr.WrapErrConnClosed()
	}
	select {
	case p.queue <- f:
		return nil
	default:
		metrics.OutboundDropped.WithLabelValues(metrics.ReasonQueueFull).Inc()
		return merr.WrapErrSendQueueFull(cap(p.queue))
	}
}

// Close 请求关闭 Pump，可重复调用。
func (p *Pump[I, O]) Close() {
	p.shutdown(nil)
}

// Done 返回一个在 onDisconnect 执行完毕且 writer 退出后关闭的 channel。
func (p *Pump[I, O]) Done() <-chan struct{} {
	return p.done
}

// Closed 判断 Pump 是否已进入关闭状态。
func (p *Pump[I, O]) Closed() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.closed
}

// RemoteAddr 返回对端地址描述。
func (p *Pump[I, O]) RemoteAddr() string {
	return addrString(p.stream)
}

func (p *Pump[I, O]) shutdown(cause error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	if cause != nil {
		p.cause.Store(cause)
	}
	p.mu.Unlock()
	p.cancel()
}

func (p *Pump[I, O]) writeLoop() {
	defer close(p.writerDone)
	for {
		select {
		case <-p.ctx.Done():
			return
		case f := <-p.queue:
			if err := p.stream.WriteFrame(f); err != nil {
				if !transport.IsNormalClose(err) {
					p.Logger().Info("write frame failed, closing connection", network.FieldStage(network.StageSend), zap.Error(err))
				}
				p.shutdown(err)
				return
			}
		}
	}
}

func (p *Pump[I, O]) readLoop() {
	defer close(p.done)

	for p.ctx.Err() == nil {
		f, err := p.stream.ReadFrame()
		if err != nil {
			if p.ctx.Err() == nil && !transport.IsNormalClose(err) {
				p.Logger().Info("read frame failed", network.FieldStage(network.StageRecvRaw), zap.Error(err))
			}
			p.shutdown(err)
			break
		}

		var msg I
		if err := p.codec.Decode(f, &msg); err != nil {
			metrics.MalformedFrames.Inc()
			p.Logger().RatedWarn(malformedLogCost, "drop malformed frame",
				network.FieldStage(network.StageDecode), zap.Int("size", len(f.Payload)), zap.Error(err))
			continue
		}
		if p.onMessage != nil {
			p.onMessage(msg)
		}
	}

	// 确保 ctx 已取消，writer 与底层连接随之退出。
	p.shutdown(nil)
	metrics.ConnectionsActive.WithLabelValues(string(p.stream.Kind())).Dec()

	if p.onDisconnect != nil {
		p.onDisconnect(p.cause.Load())
	}
	<-p.writerDone
}

func addrString(s transport.Stream) string {
	if addr := s.RemoteAddr(); addr != nil {
		return addr.String()
	}
	return ""
}
