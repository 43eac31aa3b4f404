package transport

import (
	"net"
	"sync"
	"time"

	"github.com/lk2023060901/snap-garden-go/internal/network/framer"
)

// TCPOptions 控制基于字节流的 Stream 行为。
type TCPOptions struct {
	// MaxFrameSize 为单帧最大字节数，0 表示使用默认值。
	MaxFrameSize uint32
	// ReadTimeout 为等待下一帧的最长时间，0 表示不限制。
	ReadTimeout time.Duration
	// WriteTimeout 为单帧写出的最长时间，0 表示不限制。
	WriteTimeout time.Duration
}

type tcpStream struct {
	conn   net.Conn
	framer framer.Framer
	opts   TCPOptions
	kind   Kind

	closeOnce sync.Once
	closeErr  error
}

var _ Stream = (*tcpStream)(nil)

// NewTCP 基于 net.Conn 和长度前缀帧格式创建一个 Stream。
func NewTCP(conn net.Conn, opts TCPOptions) Stream {
	return newConnStream(conn, opts, KindTCP)
}

func newConnStream(conn net.Conn, opts TCPOptions, kind Kind) *tcpStream {
	return &tcpStream{
		conn:   conn,
		framer: framer.NewLengthPrefixedFramer(opts.MaxFrameSize),
		opts:   opts,
		kind:   kind,
	}
}

func (s *tcpStream) ReadFrame() (framer.Frame, error) {
	if s.opts.ReadTimeout > 0 {
		if err := s.conn.SetReadDeadline(time.Now().Add(s.opts.ReadTimeout)); err != nil {
			return framer.Frame{}, err
		}
	}
	return s.framer.ReadFrame(s.conn)
}

func (s *tcpStream) WriteFrame(f framer.Frame) error {
	if s.opts.WriteTimeout > 0 {
		if err := s.conn.SetWriteDeadline(time.Now().Add(s.opts.WriteTimeout)); err != nil {
			return err
		}
	}
	return s.framer.WriteFrame(s.conn, f)
}

func (s *tcpStream) Close() error {
	s.closeOnce.Do(func() {
		s.closeErr = s.conn.Close()
	})
	return s.closeErr
}

func (s *tcpStream) RemoteAddr() net.Addr {
	return s.conn.RemoteAddr()
}

func (s *tcpStream) Kind() Kind {
	return s.kind
}

// Pipe 返回一对通过内存同步管道相连的 Stream，写入一端的帧可以在另一端读出。
//
// 写操作会阻塞直到对端读取，适合在测试中模拟慢速或卡住的对端。
func Pipe() (Stream, Stream) {
	a, b := net.Pipe()
	return newConnStream(a, TCPOptions{}, KindPipe), newConnStream(b, TCPOptions{}, KindPipe)
}
