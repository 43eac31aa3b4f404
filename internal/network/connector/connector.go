// Package connector 提供客户端拨号能力，返回与服务端相同的 transport.Stream 抽象，
// 调用方可以直接在其上打开 pump。
package connector

import (
	"context"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/lk2023060901/snap-garden-go/internal/network/transport"
	"github.com/lk2023060901/snap-garden-go/pkg/log"
	"github.com/lk2023060901/snap-garden-go/pkg/util/merr"
	"github.com/lk2023060901/snap-garden-go/pkg/util/retry"
)

// Config 描述客户端连接的基础配置。
type Config struct {
	// HandshakeTimeout 为单次拨号（含 WebSocket 升级）的超时时间。
	HandshakeTimeout time.Duration
	// Attempts 为拨号最多尝试次数，0 表示使用默认值。
	Attempts uint
	// Header 为 WebSocket 握手时附带的 HTTP 头。
	Header http.Header

	WebSocket transport.WebSocketOptions
	TCP       transport.TCPOptions
}

const (
	defaultHandshakeTimeout = 5 * time.Second
	defaultAttempts         = 5
	retrySleep              = 100 * time.Millisecond
)

// Connector 是客户端拨号器。
type Connector struct {
	cfg    Config
	dialer *websocket.Dialer
}

// New 创建一个 Connector。
func New(cfg Config) *Connector {
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = defaultHandshakeTimeout
	}
	if cfg.Attempts == 0 {
		cfg.Attempts = defaultAttempts
	}
	return &Connector{
		cfg: cfg,
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: cfg.HandshakeTimeout,
		},
	}
}

// Dial 连接到 target 并返回 Stream。
//
// 支持的地址形式：
//   - ws://host:port/path、wss://host:port/path：WebSocket；
//   - tcp://host:port：长度前缀帧格式的 TCP。
//
// 网络层错误按退避策略重试；服务端明确拒绝（HTTP 非 101 响应）时立即返回。
func (c *Connector) Dial(ctx context.Context, target string) (transport.Stream, error) {
	u, err := url.Parse(target)
	if err != nil {
		return nil, merr.WrapErrParameterInvalidMsg("connector: bad target %q: %s", target, err.Error())
	}

	var stream transport.Stream
	dial := func() error {
		switch u.Scheme {
		case "ws", "wss":
			s, err := c.dialWebSocket(ctx, target)
			if err != nil {
				return err
			}
			stream = s
		case "tcp":
			s, err := c.dialTCP(ctx, u.Host)
			if err != nil {
				return err
			}
			stream = s
		default:
			return retry.Unrecoverable(merr.WrapErrParameterInvalidMsg("connector: unsupported scheme %q", u.Scheme))
		}
		return nil
	}

	if err := retry.Do(ctx, dial, retry.Attempts(c.cfg.Attempts), retry.Sleep(retrySleep)); err != nil {
		return nil, err
	}
	log.Ctx(ctx).Debug("connected", zap.String("target", target), zap.String("transport", string(stream.Kind())))
	return stream, nil
}

func (c *Connector) dialWebSocket(ctx context.Context, target string) (transport.Stream, error) {
	conn, resp, err := c.dialer.DialContext(ctx, target, c.cfg.Header)
	if err != nil {
		if resp != nil {
			_ = resp.Body.Close()
			return nil, retry.Unrecoverable(errors.Wrapf(err, "connector: handshake rejected with status %d", resp.StatusCode))
		}
		return nil, errors.Wrap(err, "connector: dial websocket")
	}
	return transport.NewWebSocket(conn, c.cfg.WebSocket), nil
}

func (c *Connector) dialTCP(ctx context.Context, addr string) (transport.Stream, error) {
	d := net.Dialer{Timeout: c.cfg.HandshakeTimeout}
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, errors.Wrap(err, "connector: dial tcp")
	}
	return transport.NewTCP(conn, c.cfg.TCP), nil
}
