package compressor

import (
	"github.com/cockroachdb/errors"
	"github.com/klauspost/compress/zstd"
)

// ZstdOptions 配置 Zstd 压缩器。
type ZstdOptions struct {
	// MinSize 小于该长度的帧不压缩。
	MinSize int
	// MaxDecodedSize 限制单帧解压后的大小，0 表示使用 zstd 默认上限。
	MaxDecodedSize int
	// Concurrency 为编解码并发度，0 表示 1：每帧都很小，单个协程足够。
	Concurrency int
}

// Zstd 是单帧 zstd 压缩器，编解码器实例由它独占。
type Zstd struct {
	enc     *zstd.Encoder
	dec     *zstd.Decoder
	minSize int
}

var _ Compressor = (*Zstd)(nil)

// NewZstd 创建 Zstd 压缩器。
func NewZstd(opts ZstdOptions) (*Zstd, error) {
	if opts.Concurrency <= 0 {
		opts.Concurrency = 1
	}
	enc, err := zstd.NewWriter(nil,
		zstd.WithEncoderLevel(zstd.SpeedFastest),
		zstd.WithEncoderConcurrency(opts.Concurrency),
		zstd.WithZeroFrames(true),
	)
	if err != nil {
		return nil, errors.Wrap(err, "zstd encoder")
	}
	decOpts := []zstd.DOption{zstd.WithDecoderConcurrency(opts.Concurrency)}
	if opts.MaxDecodedSize > 0 {
		decOpts = append(decOpts, zstd.WithDecoderMaxMemory(uint64(opts.MaxDecodedSize)))
	}
	dec, err := zstd.NewReader(nil, decOpts...)
	if err != nil {
		_ = enc.Close()
		return nil, errors.Wrap(err, "zstd decoder")
	}
	return &Zstd{enc: enc, dec: dec, minSize: max(opts.MinSize, 0)}, nil
}

func (z *Zstd) ShouldCompress(n int) bool {
	return n > 0 && n >= z.minSize
}

func (z *Zstd) Compress(dst, src []byte) ([]byte, error) {
	if z.enc == nil {
		return nil, zstd.ErrEncoderClosed
	}
	return z.enc.EncodeAll(src, dst[:0]), nil
}

func (z *Zstd) Decompress(dst, src []byte) ([]byte, error) {
	if z.dec == nil {
		return nil, zstd.ErrDecoderClosed
	}
	return z.dec.DecodeAll(src, dst[:0])
}

// Close 释放编解码器，之后的调用返回 ErrEncoderClosed/ErrDecoderClosed。
func (z *Zstd) Close() {
	if z.enc != nil {
		_ = z.enc.Close()
		z.enc = nil
	}
	if z.dec != nil {
		z.dec.Close()
		z.dec = nil
	}
}
