package codec

import (
	"github.com/cockroachdb/errors"

	"github.com/lk2023060901/snap-garden-go/internal/network/compressor"
	"github.com/lk2023060901/snap-garden-go/internal/network/framer"
	"github.com/lk2023060901/snap-garden-go/internal/network/serializer"
	"github.com/lk2023060901/snap-garden-go/pkg/util/merr"
)

// Codec 抽象了“业务对象 <-> 单帧”的编解码流程，每次调用只处理一帧。
//
// Pipeline（写出 Encode）：
//
//	msg --> serializer --> [compress?] --> Frame{Flags, Payload}
//
// Pipeline（读入 Decode）：
//
//	Frame{Flags, Payload} --> [decompress?] --> serializer --> msg
type Codec interface {
	// Encode 将业务对象编码为一帧。
	Encode(msg any) (framer.Frame, error)

	// Decode 将一帧解码到 msg（通常为指针）中。
	Decode(f framer.Frame, msg any) error
}

// Options 用于构造 Codec 的依赖注入参数。
type Options struct {
	Serializer serializer.Serializer
	Compressor compressor.Compressor // 允许为 nil（内部会用 NopCompressor）

	EnableCompression bool // 是否启用压缩（影响压缩行为与 Frame.Flags）
}

type codec struct {
	serializer serializer.Serializer
	compressor compressor.Compressor

	compress bool
}

var _ Codec = (*codec)(nil)

// New 创建一个基于给定依赖的 Codec。
func New(opts Options) (Codec, error) {
	if opts.Serializer == nil {
		return nil, errors.New("codec: serializer is nil")
	}

	c := &codec{
		serializer: opts.Serializer,
		compress:   opts.EnableCompression,
	}
	if opts.Compressor != nil {
		c.compressor = opts.Compressor
	} else {
		c.compressor = compressor.NopCompressor{}
	}
	return c, nil
}

// NewJSON 返回不带压缩的 JSON Codec。
func NewJSON() Codec {
	return &codec{
		serializer: serializer.JSONSerializer{},
		compressor: compressor.NopCompressor{},
	}
}

// Encode 实现 Codec.Encode。
func (c *codec) Encode(msg any) (framer.Frame, error) {
	if msg == nil {
		return framer.Frame{}, merr.WrapErrEncodeFailed(errors.New("msg is nil"))
	}

	body, err := c.serializer.Marshal(msg)
	if err != nil {
		return framer.Frame{}, merr.WrapErrEncodeFailed(err, "marshal")
	}

	var flags framer.Flag
	if c.compress && c.compressor.ShouldCompress(len(body)) {
		packet, err := c.compressor.Compress(nil, body)
		if err != nil {
			return framer.Frame{}, merr.WrapErrEncodeFailed(err, "compress")
		}
		body = packet
		flags |= framer.FlagCompressed
	}

	return framer.Frame{Flags: flags, Payload: body}, nil
}

// Decode 实现 Codec.Decode。
func (c *codec) Decode(f framer.Frame, msg any) error {
	data := f.Payload

	if f.Flags.Has(framer.FlagCompressed) {
		if !c.compress {
			return merr.WrapErrDecodeFailed(errors.New("compressed payload but compression disabled"))
		}
		if len(data) == 0 {
			return merr.WrapErrDecodeFailed(errors.New("compressed payload is empty"))
		}
		plain, err := c.compressor.Decompress(nil, data)
		if err != nil {
			return merr.WrapErrDecodeFailed(err, "decompress")
		}
		data = plain
	}

	if len(data) == 0 {
		return merr.WrapErrDecodeFailed(errors.New("empty payload"))
	}
	if err := c.serializer.Unmarshal(data, msg); err != nil {
		return merr.WrapErrDecodeFailed(err, "unmarshal")
	}
	return nil
}
