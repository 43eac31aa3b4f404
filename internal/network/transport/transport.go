// Package transport 将不同的底层连接统一抽象为按帧读写的 Stream。
package transport

import (
	"net"

	"github.com/lk2023060901/snap-garden-go/internal/network/framer"
)

// Kind 标识 Stream 的底层实现，用于日志与监控标签。
type Kind string

const (
	KindWebSocket Kind = "websocket"
	KindTCP       Kind = "tcp"
	KindPipe      Kind = "pipe"
)

// Stream 抽象了一条全双工、按帧收发的连接。
//
// 约定：
//   - ReadFrame 只允许被一个 goroutine 调用；
//   - WriteFrame 只允许被一个 goroutine 调用；
//   - Close 可与读写并发调用且幂等，调用后阻塞中的 ReadFrame/WriteFrame 应尽快返回错误。
type Stream interface {
	// ReadFrame 阻塞读取下一帧。连接关闭或出错时返回非 nil error。
	ReadFrame() (framer.Frame, error)

	// WriteFrame 写出一帧。
	WriteFrame(f framer.Frame) error

	// Close 关闭底层连接。
	Close() error

	// RemoteAddr 返回远端地址。
	RemoteAddr() net.Addr

	// Kind 返回底层实现类型。
	Kind() Kind
}
