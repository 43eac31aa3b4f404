package gateway

import (
	"context"
	"time"

	"github.com/lk2023060901/snap-garden-go/internal/network/transport"
	"github.com/lk2023060901/snap-garden-go/pkg/util/merr"
)

// OnAccept 处理一条裸 TCP 连接：先读取 Hello 帧，再按其动作创建或加入对局。
func (g *Gateway[G, I, O]) OnAccept(_ context.Context, stream transport.Stream) error {
	c := g.cfg.TCPCodec

	timer := time.AfterFunc(g.cfg.HandshakeTimeout, func() {
		_ = stream.Close()
	})
	f, err := stream.ReadFrame()
	if !timer.Stop() {
		return merr.WrapErrConnClosed("handshake timeout")
	}
	if err != nil {
		return err
	}

	var hello Hello
	if err := c.Decode(f, &hello); err != nil {
		g.reject(g.ctx, stream, c, err)
		return nil
	}
	if err := g.versions.check(hello.Version); err != nil {
		g.reject(g.ctx, stream, c, err)
		return nil
	}

	ctx, span := g.connContext(hello.Action, stream)
	switch hello.Action {
	case ActionCreate:
		endHandshake(span, g.create(ctx, stream, c))
	case ActionJoin:
		endHandshake(span, g.join(ctx, stream, c, hello.UserID))
	default:
		err := merr.WrapErrParameterInvalidMsg("unknown action %q", hello.Action)
		g.reject(ctx, stream, c, err)
		endHandshake(span, err)
	}
	return nil
}
