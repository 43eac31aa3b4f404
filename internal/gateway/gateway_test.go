package gateway

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/samber/lo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/lk2023060901/snap-garden-go/internal/game/snap"
	"github.com/lk2023060901/snap-garden-go/internal/json"
	"github.com/lk2023060901/snap-garden-go/internal/network/acceptor"
	"github.com/lk2023060901/snap-garden-go/internal/network/codec"
	"github.com/lk2023060901/snap-garden-go/internal/network/connector"
	"github.com/lk2023060901/snap-garden-go/internal/network/transport"
	"github.com/lk2023060901/snap-garden-go/internal/session"
	"github.com/lk2023060901/snap-garden-go/pkg/metrics"
	"github.com/lk2023060901/snap-garden-go/pkg/util/merr"
)

type snapGateway = Gateway[*snap.Game, snap.Input, snap.Output]

type testEnv struct {
	gw     *snapGateway
	server *httptest.Server
	dialer *connector.Connector
}

func newTestEnv(t *testing.T, maxGames int, cfg Config) *testEnv {
	games, err := session.NewManager[*snap.Game, snap.Input, snap.Output](maxGames, snap.New)
	require.NoError(t, err)
	gw, err := New(cfg, games, snap.Greet)
	require.NoError(t, err)

	srv := httptest.NewServer(gw.Handler())
	t.Cleanup(func() {
		gw.Close()
		srv.Close()
	})
	return &testEnv{
		gw:     gw,
		server: srv,
		dialer: connector.New(connector.Config{Attempts: 1}),
	}
}

func (e *testEnv) wsURL(path string) string {
	return "ws" + strings.TrimPrefix(e.server.URL, "http") + path
}

func (e *testEnv) dial(t *testing.T, path string) transport.Stream {
	stream, err := e.dialer.Dial(context.Background(), e.wsURL(path))
	require.NoError(t, err)
	t.Cleanup(func() { _ = stream.Close() })
	return stream
}

func readInto(t *testing.T, stream transport.Stream, v any) {
	f, err := stream.ReadFrame()
	require.NoError(t, err)
	require.NoError(t, codec.NewJSON().Decode(f, v))
}

func send(t *testing.T, stream transport.Stream, v any) {
	f, err := codec.NewJSON().Encode(v)
	require.NoError(t, err)
	require.NoError(t, stream.WriteFrame(f))
}

// attach 读取挂接后的 Welcome 与座位号消息。
func attach(t *testing.T, stream transport.Stream, player int) Welcome {
	var welcome Welcome
	readInto(t, stream, &welcome)
	assert.Equal(t, player, welcome.Player)

	var greet snap.Output
	readInto(t, stream, &greet)
	assert.Equal(t, snap.Greet(player), greet)
	return welcome
}

func joinPath(user uint64) string {
	return "/ws/join/" + strconv.FormatUint(user, 10)
}

func TestCreateJoinAndRoute(t *testing.T) {
	env := newTestEnv(t, 2, Config{})

	creator := env.dial(t, "/ws/create")
	welcome := attach(t, creator, 0)
	require.Len(t, welcome.JoinIDs, 1)
	assert.NotEqual(t, welcome.UserID, welcome.JoinIDs[0])

	joiner := env.dial(t, joinPath(welcome.JoinIDs[0]))
	joined := attach(t, joiner, 1)
	assert.Equal(t, welcome.JoinIDs[0], joined.UserID)
	assert.Empty(t, joined.JoinIDs)

	send(t, creator, snap.NewDraw(100))
	for _, s := range []transport.Stream{creator, joiner} {
		var out snap.Output
		readInto(t, s, &out)
		assert.Equal(t, snap.CardDrawn, out.Kind)
		assert.Equal(t, 0, out.Player)
	}

	assert.Equal(t, 2, env.gw.Connections())
	assert.Equal(t, 1, env.gw.games.Stats().Active)
}

// 对手挂接之前产生的对局消息直接丢弃，不会在挂接后补发。
func TestOutputBeforeJoinIsDropped(t *testing.T) {
	env := newTestEnv(t, 1, Config{})
	dropped := testutil.ToFloat64(metrics.OutboundDropped.WithLabelValues(metrics.ReasonUnattached))

	creator := env.dial(t, "/ws/create")
	welcome := attach(t, creator, 0)

	send(t, creator, snap.NewDraw(100))
	var early snap.Output
	readInto(t, creator, &early)
	assert.Equal(t, snap.CardDrawn, early.Kind)
	assert.Equal(t, 0, early.Player)
	require.Eventually(t, func() bool {
		return testutil.ToFloat64(metrics.OutboundDropped.WithLabelValues(metrics.ReasonUnattached)) > dropped
	}, time.Second, 10*time.Millisecond)

	// 挂接后先收到 Welcome 与座位号，下一帧是挂接之后才发生的抽牌。
	joiner := env.dial(t, joinPath(welcome.JoinIDs[0]))
	attach(t, joiner, 1)
	send(t, joiner, snap.NewDraw(100))
	for _, s := range []transport.Stream{joiner, creator} {
		var out snap.Output
		readInto(t, s, &out)
		assert.Equal(t, snap.CardDrawn, out.Kind)
		assert.Equal(t, 1, out.Player)
	}
}

func endedSpans(rec *tracetest.SpanRecorder, name string) []sdktrace.ReadOnlySpan {
	return lo.Filter(rec.Ended(), func(s sdktrace.ReadOnlySpan, _ int) bool { return s.Name() == name })
}

// 连接 span 从握手开始，到断线清理完成后结束；被拒绝的连接在握手时即结束。
func TestConnectionSpanCoversLifetime(t *testing.T) {
	rec := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))
	otel.SetTracerProvider(tp)
	t.Cleanup(func() {
		_ = tp.Shutdown(context.Background())
		otel.SetTracerProvider(noop.NewTracerProvider())
	})

	env := newTestEnv(t, 1, Config{})
	creator := env.dial(t, "/ws/create")
	attach(t, creator, 0)
	assert.Empty(t, endedSpans(rec, ActionCreate))

	rejected := env.dial(t, "/ws/create")
	var status merr.Status
	readInto(t, rejected, &status)
	require.Eventually(t, func() bool { return len(endedSpans(rec, ActionCreate)) == 1 }, time.Second, 10*time.Millisecond)
	assert.Equal(t, codes.Error, endedSpans(rec, ActionCreate)[0].Status().Code)

	require.NoError(t, creator.Close())
	require.Eventually(t, func() bool { return len(endedSpans(rec, ActionCreate)) == 2 }, time.Second, 10*time.Millisecond)
	lifetime := endedSpans(rec, ActionCreate)[1]
	events := lo.Map(lifetime.Events(), func(e sdktrace.Event, _ int) string { return e.Name })
	assert.Contains(t, events, "attached")
	assert.Equal(t, 1, env.gw.games.Stats().Free)
}

func TestJoinUnknownUser(t *testing.T) {
	env := newTestEnv(t, 1, Config{})

	stream := env.dial(t, joinPath(42))
	var status merr.Status
	readInto(t, stream, &status)
	assert.Equal(t, merr.Code(merr.ErrGameNotFound), status.Code)

	_, err := stream.ReadFrame()
	assert.Error(t, err)
}

func TestJoinTwiceRejected(t *testing.T) {
	env := newTestEnv(t, 1, Config{})

	creator := env.dial(t, "/ws/create")
	welcome := attach(t, creator, 0)

	again := env.dial(t, joinPath(welcome.UserID))
	var status merr.Status
	readInto(t, again, &status)
	assert.Equal(t, merr.Code(merr.ErrUserAlreadyAttached), status.Code)

	// 原连接不受影响。
	assert.Equal(t, 1, env.gw.Connections())
}

func TestServerFull(t *testing.T) {
	env := newTestEnv(t, 1, Config{})

	first := env.dial(t, "/ws/create")
	attach(t, first, 0)

	second := env.dial(t, "/ws/create")
	var status merr.Status
	readInto(t, second, &status)
	assert.Equal(t, merr.Code(merr.ErrServerFull), status.Code)
	assert.Contains(t, status.Error, "server full")
}

func TestDisconnectClosesSiblings(t *testing.T) {
	env := newTestEnv(t, 1, Config{})

	creator := env.dial(t, "/ws/create")
	welcome := attach(t, creator, 0)
	joiner := env.dial(t, joinPath(welcome.JoinIDs[0]))
	attach(t, joiner, 1)

	require.NoError(t, creator.Close())

	_, err := joiner.ReadFrame()
	assert.Error(t, err)
	require.Eventually(t, func() bool {
		st := env.gw.games.Stats()
		return st.Active == 0 && st.Users == 0 && env.gw.Connections() == 0
	}, 5*time.Second, 10*time.Millisecond)

	// 对局销毁后旧 ID 不可再加入，槽位可以被重新创建。
	stale := env.dial(t, joinPath(welcome.JoinIDs[0]))
	var status merr.Status
	readInto(t, stale, &status)
	assert.Equal(t, merr.Code(merr.ErrGameNotFound), status.Code)

	next := env.dial(t, "/ws/create")
	fresh := attach(t, next, 0)
	assert.Greater(t, fresh.UserID, welcome.JoinIDs[0])
}

func TestHTTPRejections(t *testing.T) {
	env := newTestEnv(t, 1, Config{MinClientVersion: "1.2.0"})

	resp, err := http.Get(env.server.URL + "/ws/join/not-a-number")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	req, err := http.NewRequest(http.MethodGet, env.server.URL+"/ws/create", nil)
	require.NoError(t, err)
	req.Header.Set(VersionHeader, "1.1.9")
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUpgradeRequired, resp.StatusCode)

	resp, err = http.Get(env.server.URL + StatsPath)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	var stats session.Stats
	require.NoError(t, json.Unmarshal(body, &stats))
	assert.Equal(t, session.Stats{Capacity: 1, Free: 1}, stats)
}

func TestInvalidConfig(t *testing.T) {
	games, err := session.NewManager[*snap.Game, snap.Input, snap.Output](1, snap.New)
	require.NoError(t, err)

	_, err = New[*snap.Game, snap.Input, snap.Output](Config{MinClientVersion: "banana"}, games, nil)
	assert.ErrorIs(t, err, merr.ErrParameterInvalid)

	_, err = New[*snap.Game, snap.Input, snap.Output](Config{}, nil, nil)
	assert.ErrorIs(t, err, merr.ErrParameterInvalid)
}

func TestTCPHello(t *testing.T) {
	env := newTestEnv(t, 1, Config{HandshakeTimeout: time.Second})

	a, err := acceptor.Listen("127.0.0.1:0", acceptor.Config{})
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Serve(ctx, env.gw) }()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	target := "tcp://" + a.Addr().String()
	creator, err := env.dialer.Dial(context.Background(), target)
	require.NoError(t, err)
	defer creator.Close()
	send(t, creator, Hello{Action: ActionCreate})
	welcome := attach(t, creator, 0)

	joiner, err := env.dialer.Dial(context.Background(), target)
	require.NoError(t, err)
	defer joiner.Close()
	send(t, joiner, Hello{Action: ActionJoin, UserID: welcome.JoinIDs[0]})
	attach(t, joiner, 1)

	unknown, err := env.dialer.Dial(context.Background(), target)
	require.NoError(t, err)
	defer unknown.Close()
	send(t, unknown, Hello{Action: "spectate"})
	var status merr.Status
	readInto(t, unknown, &status)
	assert.Equal(t, merr.Code(merr.ErrParameterInvalid), status.Code)
}
