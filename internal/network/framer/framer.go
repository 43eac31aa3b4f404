package framer

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/valyala/bytebufferpool"
)

// Flag 为帧头中的标志位。
type Flag uint8

const (
	// FlagCompressed 表示 Payload 经过压缩。
	FlagCompressed Flag = 1 << iota
)

// Has 判断是否包含指定标志位。
func (f Flag) Has(bit Flag) bool {
	return f&bit != 0
}

// Frame 为一次读写的最小单位：标志位 + 业务字节。
type Frame struct {
	Flags   Flag
	Payload []byte
}

// Framer 抽象了基于字节流的打包/解包能力。
//
// 约定：
//   - 一帧数据的格式为：4 字节大端无符号整型（表示后续数据长度，含 1 字节 flags）+ flags + payload。
//   - 一次 WriteFrame 只调用一次底层 Write，避免并发写入时报文交叉。
type Framer interface {
	// WriteFrame 将 Frame 打包为一帧并写入到 w 中。
	WriteFrame(w io.Writer, f Frame) error

	// ReadFrame 从 r 中读取一帧数据。
	ReadFrame(r io.Reader) (Frame, error)
}

// LengthPrefixedFramer 使用长度前缀（4 字节大端）作为帧边界。
// 适用于基于流的连接（如 TCP）。
type LengthPrefixedFramer struct {
	// MaxFrameSize 为允许的最大帧大小（flags + payload），单位字节。
	// 为 0 时使用默认值 defaultMaxFrameSize。
	MaxFrameSize uint32
}

var _ Framer = (*LengthPrefixedFramer)(nil)

const (
	defaultMaxFrameSize uint32 = 16 * 1024 * 1024 // 16MB

	headerSize = 4
	flagsSize  = 1
)

// NewLengthPrefixedFramer 创建一个长度前缀帧编码器。
// maxFrameSize 为 0 时使用默认值。
func NewLengthPrefixedFramer(maxFrameSize uint32) *LengthPrefixedFramer {
	if maxFrameSize == 0 {
		maxFrameSize = defaultMaxFrameSize
	}
	return &LengthPrefixedFramer{
		MaxFrameSize: maxFrameSize,
	}
}

// WriteFrame 将 Frame 编码为长度前缀帧并写入。
func (f *LengthPrefixedFramer) WriteFrame(w io.Writer, frame Frame) error {
	length := uint32(flagsSize + len(frame.Payload))
	if length > f.effectiveMaxSize() {
		return fmt.Errorf("framer: frame size %d exceeds max %d", length, f.effectiveMaxSize())
	}

	buf := bytebufferpool.Get()
	defer bytebufferpool.Put(buf)

	var header [headerSize + flagsSize]byte
	binary.BigEndian.PutUint32(header[:headerSize], length)
	header[headerSize] = byte(frame.Flags)

	_, _ = buf.Write(header[:])
	_, _ = buf.Write(frame.Payload)

	if _, err := w.Write(buf.B); err != nil {
		return fmt.Errorf("framer: write frame failed: %w", err)
	}
	return nil
}

// ReadFrame 从流中读取一帧数据。
//
// 返回的 Payload 为独立分配的切片，调用方可以长期持有。
func (f *LengthPrefixedFramer) ReadFrame(r io.Reader) (Frame, error) {
	var header [headerSize]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return Frame{}, fmt.Errorf("framer: read header failed: %w", err)
	}

	length := binary.BigEndian.Uint32(header[:])
	if length < flagsSize {
		return Frame{}, fmt.Errorf("framer: frame size %d too small", length)
	}
	if length > f.effectiveMaxSize() {
		return Frame{}, fmt.Errorf("framer: frame size %d exceeds max %d", length, f.effectiveMaxSize())
	}

	body := make([]byte, length)
	if _, err := io.ReadFull(r, body); err != nil {
		return Frame{}, fmt.Errorf("framer: read body failed: %w", err)
	}

	return Frame{
		Flags:   Flag(body[0]),
		Payload: body[flagsSize:],
	}, nil
}

func (f *LengthPrefixedFramer) effectiveMaxSize() uint32 {
	if f == nil || f.MaxFrameSize == 0 {
		return defaultMaxFrameSize
	}
	return f.MaxFrameSize
}
