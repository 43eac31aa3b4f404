// Package gateway 把网络连接挂接到对局槽位表：负责创建/加入对局、路由消息以及断线清理。
package gateway

import (
	"context"
	"time"

	"github.com/samber/lo"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/lk2023060901/snap-garden-go/internal/network"
	"github.com/lk2023060901/snap-garden-go/internal/network/codec"
	"github.com/lk2023060901/snap-garden-go/internal/network/message"
	"github.com/lk2023060901/snap-garden-go/internal/network/pump"
	"github.com/lk2023060901/snap-garden-go/internal/network/transport"
	"github.com/lk2023060901/snap-garden-go/internal/session"
	"github.com/lk2023060901/snap-garden-go/pkg/log"
	"github.com/lk2023060901/snap-garden-go/pkg/metrics"
	"github.com/lk2023060901/snap-garden-go/pkg/util/conc"
	"github.com/lk2023060901/snap-garden-go/pkg/util/merr"
	"github.com/lk2023060901/snap-garden-go/pkg/util/typeutil"
)

const (
	tracerName = "gateway"

	routeLogCost = 1
	sendLogCost  = 1

	defaultHandshakeTimeout = 10 * time.Second
)

// Config 描述 Gateway 的行为。
type Config struct {
	// SendQueueSize 为每个连接的发送队列容量。
	SendQueueSize int
	// HandshakeTimeout 为 TCP 连接发送 Hello 帧的最长等待时间。
	HandshakeTimeout time.Duration
	// MinClientVersion 为允许接入的最低客户端版本，空表示不限制。
	MinClientVersion string
	// CreatePath/JoinPath 为 WebSocket 路由，加入路由后接 "/{userID}"。
	CreatePath string
	JoinPath   string
	// WebSocket 为 WebSocket 连接的读写配置。
	WebSocket transport.WebSocketOptions
	// TCPCodec 为 TCP 连接使用的编解码器，nil 时使用 JSON。
	TCPCodec codec.Codec
}

// Greeting 构造玩家挂接后收到的对局消息（例如告知其座位号）。
type Greeting[O any] func(player session.PlayerNumber) O

// client 为挂接在某个参与者上的连接。
//
// 先登记到 registry 再打开 pump；ready 关闭前 pump 尚不可用，发往该参与者的消息被丢弃。
type client[I any] struct {
	user  session.UserID
	pump  *pump.Pump[I, any]
	ready chan struct{}
}

func (c *client[I]) attached() bool {
	select {
	case <-c.ready:
		return c.pump != nil
	default:
		return false
	}
}

func (c *client[I]) close() {
	<-c.ready
	if c.pump != nil {
		c.pump.Close()
	}
}

// Gateway 负责连接与对局之间的全部编排。G 为对局逻辑，I/O 为对局的输入/输出消息类型。
type Gateway[G session.Game[I, O], I any, O any] struct {
	cfg      Config
	games    *session.Manager[G, I, O]
	conns    *pump.Registry[*client[I]]
	greeting Greeting[O]
	versions versionPolicy

	ctx    context.Context
	cancel context.CancelFunc

	logger *log.MLogger
}

// New 创建一个 Gateway。greeting 可以为 nil。
func New[G session.Game[I, O], I any, O any](cfg Config, games *session.Manager[G, I, O], greeting Greeting[O]) (*Gateway[G, I, O], error) {
	if games == nil {
		return nil, merr.WrapErrParameterInvalidMsg("gateway: session manager is nil")
	}
	versions, err := newVersionPolicy(cfg.MinClientVersion)
	if err != nil {
		return nil, err
	}
	if cfg.SendQueueSize <= 0 {
		cfg.SendQueueSize = pump.DefaultQueueSize
	}
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = defaultHandshakeTimeout
	}
	if cfg.CreatePath == "" {
		cfg.CreatePath = "/ws/create"
	}
	if cfg.JoinPath == "" {
		cfg.JoinPath = "/ws/join"
	}
	if cfg.TCPCodec == nil {
		cfg.TCPCodec = codec.NewJSON()
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Gateway[G, I, O]{
		cfg:      cfg,
		games:    games,
		conns:    pump.NewRegistry[*client[I]](),
		greeting: greeting,
		versions: versions,
		ctx:      ctx,
		cancel:   cancel,
		logger:   log.With(log.FieldModule("gateway")),
	}, nil
}

// Connections 返回当前挂接的连接数。
func (g *Gateway[G, I, O]) Connections() int {
	return g.conns.Count()
}

// Close 关闭所有连接并等待它们退出；对局随连接断开被销毁。
func (g *Gateway[G, I, O]) Close() {
	g.logger.Info("gateway closing", zap.Int("connections", g.conns.Count()))
	g.cancel()

	var closing []*conc.Future[struct{}]
	g.conns.Range(func(_ uint64, c *client[I]) bool {
		closing = append(closing, conc.Go(func() (struct{}, error) {
			c.close()
			if c.pump != nil {
				<-c.pump.Done()
			}
			return struct{}{}, nil
		}))
		return true
	})
	_ = conc.AwaitAll(closing...)
}

// connContext 为一条连接创建带追踪与日志字段的上下文，随 Gateway 关闭而取消。
//
// span 覆盖连接的整个生命周期：挂接成功后由断线回调结束，否则调用方在握手失败时结束。
func (g *Gateway[G, I, O]) connContext(intent string, stream transport.Stream) (context.Context, trace.Span) {
	ctx, span := log.NewIntentContextWithParent(g.ctx, tracerName, intent)
	span.SetAttributes(
		attribute.String("net.peer.addr", remoteAddr(stream)),
		attribute.String("snap.transport", string(stream.Kind())))
	ctx = log.WithFields(ctx,
		log.FieldRemote(remoteAddr(stream)),
		zap.String("transport", string(stream.Kind())))
	return ctx, span
}

// endHandshake 在连接未能挂接时结束其 span。
func endHandshake(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "handshake rejected")
		span.End()
	}
}

// create 分配新对局并把 stream 挂接为 0 号玩家。
func (g *Gateway[G, I, O]) create(ctx context.Context, stream transport.Stream, c codec.Codec) error {
	users, err := g.games.Create()
	if err != nil {
		log.Ctx(ctx).Info("create game rejected", zap.Error(err))
		g.reject(ctx, stream, c, err)
		return err
	}
	creator := users[0]
	welcome := Welcome{UserID: creator, Player: 0, JoinIDs: users[1:]}
	if err := g.attach(ctx, stream, c, creator, 0, welcome); err != nil {
		// 新分配的 ID 不可能已被挂接；出现即说明状态异常，回收对局。
		_, _ = g.games.Destroy(creator)
		return err
	}
	return nil
}

// join 把 stream 挂接到已存在对局中的 user 座位。
func (g *Gateway[G, I, O]) join(ctx context.Context, stream transport.Stream, c codec.Codec, user session.UserID) error {
	members, err := g.games.MembersOf(user)
	if err != nil {
		log.Ctx(ctx).Info("join rejected", log.FieldUserID(user), zap.Error(err))
		g.reject(ctx, stream, c, err)
		return err
	}
	player := lo.IndexOf(members, user)
	return g.attach(ctx, stream, c, user, player, Welcome{UserID: user, Player: player})
}

// attach 为参与者打开 pump 并登记，随后发送 Welcome 与对局问候。
// 返回 nil 表示 pump 已打开，连接 span 交由断线回调结束。
func (g *Gateway[G, I, O]) attach(ctx context.Context, stream transport.Stream, c codec.Codec, user session.UserID, player session.PlayerNumber, welcome Welcome) error {
	cl := &client[I]{user: user, ready: make(chan struct{})}
	if err := g.conns.Register(user, cl); err != nil {
		log.Ctx(ctx).Info("attach rejected", log.FieldUserID(user), zap.Error(err))
		close(cl.ready)
		g.reject(ctx, stream, c, err)
		return err
	}

	ctx = log.WithUserID(ctx, user)
	cl.pump = pump.Open[I, any](ctx, stream,
		func(msg I) {
			g.route(ctx, user, msg)
		},
		func(cause error) {
			<-cl.ready
			g.detach(ctx, cl, cause)
			span := trace.SpanFromContext(ctx)
			if cause != nil && !transport.IsNormalClose(cause) {
				span.RecordError(cause)
			}
			span.End()
		},
		pump.WithQueueSize(g.cfg.SendQueueSize),
		pump.WithCodec(c),
	)
	close(cl.ready)

	// 登记之前对局可能已被销毁，此时没有人会再关闭这条连接。
	if _, err := g.games.Locate(user); err != nil {
		log.Ctx(ctx).Info("game destroyed while attaching", zap.Error(err))
		cl.pump.Close()
		return nil
	}

	trace.SpanFromContext(ctx).AddEvent("attached", trace.WithAttributes(
		attribute.Int64("snap.user", int64(user)),
		attribute.Int("snap.player", player)))
	_ = cl.pump.Send(welcome)
	if g.greeting != nil {
		_ = cl.pump.Send(g.greeting(player))
	}
	log.Ctx(ctx).Info("player attached", zap.Int("player", player))
	return nil
}

// route 将入站消息交给对局处理，并把结果投递给各接收者已挂接的连接。
func (g *Gateway[G, I, O]) route(ctx context.Context, sender session.UserID, msg I) {
	out, err := g.games.HandleMessage(message.NewInbound(sender, msg))
	if err != nil {
		if merr.IsUnexpected(err) {
			log.Ctx(ctx).Error("route message failed", network.FieldStage(network.StageDispatch), zap.Error(err))
		} else {
			log.Ctx(ctx).RatedWarn(routeLogCost, "route message failed", network.FieldStage(network.StageDispatch), zap.Error(err))
		}
		return
	}
	for _, o := range out {
		g.deliver(ctx, o)
	}
}

func (g *Gateway[G, I, O]) deliver(ctx context.Context, o message.Outbound[session.UserID, O]) {
	cl, ok := g.conns.Get(o.Recipient)
	if !ok || !cl.attached() {
		metrics.OutboundDropped.WithLabelValues(metrics.ReasonUnattached).Inc()
		return
	}
	if err := cl.pump.Send(o.Message); err != nil {
		log.Ctx(ctx).RatedWarn(sendLogCost, "deliver message failed",
			log.FieldUserID(o.Recipient), network.FieldStage(network.StageSend), zap.Error(err))
	}
}

// detach 在连接断开后销毁其对局并关闭同局其它连接。
func (g *Gateway[G, I, O]) detach(ctx context.Context, cl *client[I], cause error) {
	_ = g.conns.Unregister(cl.user, cl)

	members, err := g.games.Destroy(cl.user)
	if err != nil {
		log.Ctx(ctx).Error("destroy game failed", zap.Error(err))
		return
	}
	siblings := typeutil.NewSet(members...)
	siblings.Remove(cl.user)
	siblings.Range(func(m session.UserID) bool {
		if sibling, ok := g.conns.Get(m); ok {
			sibling.close()
		}
		return true
	})
	log.Ctx(ctx).Info("player detached", zap.Int("siblings", siblings.Len()), zap.NamedError("cause", cause))
}

// reject 发送一帧终止性错误后关闭连接。
func (g *Gateway[G, I, O]) reject(ctx context.Context, stream transport.Stream, c codec.Codec, cause error) {
	f, err := c.Encode(merr.NewStatus(cause))
	if err == nil {
		if err := stream.WriteFrame(f); err != nil {
			log.Ctx(ctx).Debug("write terminal frame failed", zap.Error(err))
		}
	}
	_ = stream.Close()
}

func remoteAddr(s transport.Stream) string {
	if addr := s.RemoteAddr(); addr != nil {
		return addr.String()
	}
	return ""
}
