package transport

import (
	"io"
	"net"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/gorilla/websocket"

	"github.com/lk2023060901/snap-garden-go/internal/network/framer"
)

// WebSocketOptions 控制 WebSocket Stream 的行为。
type WebSocketOptions struct {
	// ReadLimit 为单条消息最大字节数，0 表示不限制。
	ReadLimit int64
	// ReadTimeout 为等待下一条消息的最长时间，0 表示不限制。
	ReadTimeout time.Duration
	// WriteTimeout 为单条消息写出的最长时间，0 表示不限制。
	WriteTimeout time.Duration
}

// closeGracePeriod 为发送 close 控制帧的最长等待时间。
const closeGracePeriod = time.Second

type wsStream struct {
	conn *websocket.Conn
	opts WebSocketOptions

	closeOnce sync.Once
	closeErr  error
}

var _ Stream = (*wsStream)(nil)

// NewWebSocket 将一条已完成握手的 WebSocket 连接包装为 Stream。
//
// 帧映射规则：
//   - 无标志位的帧以 TextMessage 发送，Payload 即消息体（浏览器可直接按 JSON 文本处理）；
//   - 带标志位的帧以 BinaryMessage 发送，首字节为标志位，其余为 Payload。
func NewWebSocket(conn *websocket.Conn, opts WebSocketOptions) Stream {
	if opts.ReadLimit > 0 {
		conn.SetReadLimit(opts.ReadLimit)
	}
	return &wsStream{conn: conn, opts: opts}
}

func (s *wsStream) ReadFrame() (framer.Frame, error) {
	for {
		if s.opts.ReadTimeout > 0 {
			if err := s.conn.SetReadDeadline(time.Now().Add(s.opts.ReadTimeout)); err != nil {
				return framer.Frame{}, err
			}
		}
		mt, data, err := s.conn.ReadMessage()
		if err != nil {
			return framer.Frame{}, err
		}
		switch mt {
		case websocket.TextMessage:
			return framer.Frame{Payload: data}, nil
		case websocket.BinaryMessage:
			if len(data) == 0 {
				return framer.Frame{}, nil
			}
			return framer.Frame{Flags: framer.Flag(data[0]), Payload: data[1:]}, nil
		}
	}
}

func (s *wsStream) WriteFrame(f framer.Frame) error {
	if s.opts.WriteTimeout > 0 {
		if err := s.conn.SetWriteDeadline(time.Now().Add(s.opts.WriteTimeout)); err != nil {
			return err
		}
	}
	if f.Flags == 0 {
		return s.conn.WriteMessage(websocket.TextMessage, f.Payload)
	}
	data := make([]byte, 0, len(f.Payload)+1)
	data = append(data, byte(f.Flags))
	data = append(data, f.Payload...)
	return s.conn.WriteMessage(websocket.BinaryMessage, data)
}

// Close 先尽力发送 close 控制帧，再关闭底层连接。
func (s *wsStream) Close() error {
	s.closeOnce.Do(func() {
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		_ = s.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(closeGracePeriod))
		s.closeErr = s.conn.Close()
	})
	return s.closeErr
}

func (s *wsStream) RemoteAddr() net.Addr {
	return s.conn.RemoteAddr()
}

func (s *wsStream) Kind() Kind {
	return KindWebSocket
}

// IsNormalClose 判断 err 是否为连接被正常关闭（任意一端）导致的错误。
func IsNormalClose(err error) bool {
	if err == nil {
		return false
	}
	if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) {
		return true
	}
	return errors.Is(err, io.EOF) || errors.Is(err, io.ErrClosedPipe) || errors.Is(err, net.ErrClosed)
}
