package gateway

import (
	"net/http"
	"strconv"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/lk2023060901/snap-garden-go/internal/json"
	"github.com/lk2023060901/snap-garden-go/internal/network/codec"
	"github.com/lk2023060901/snap-garden-go/internal/network/transport"
	"github.com/lk2023060901/snap-garden-go/pkg/log"
)

// StatsPath 为槽位表统计信息的只读接口。
const StatsPath = "/stats"

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// Handler 返回挂载了创建、加入与统计路由的 http.Handler。
func (g *Gateway[G, I, O]) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET "+g.cfg.CreatePath, g.serveCreate)
	mux.HandleFunc("GET "+g.cfg.JoinPath+"/{userID}", g.serveJoin)
	mux.HandleFunc("GET "+StatsPath, g.serveStats)
	return mux
}

func (g *Gateway[G, I, O]) serveCreate(w http.ResponseWriter, r *http.Request) {
	stream, ok := g.upgrade(w, r)
	if !ok {
		return
	}
	ctx, span := g.connContext(ActionCreate, stream)
	endHandshake(span, g.create(ctx, stream, codec.NewJSON()))
}

func (g *Gateway[G, I, O]) serveJoin(w http.ResponseWriter, r *http.Request) {
	user, err := strconv.ParseUint(r.PathValue("userID"), 10, 64)
	if err != nil {
		http.Error(w, "invalid user id", http.StatusBadRequest)
		return
	}
	stream, ok := g.upgrade(w, r)
	if !ok {
		return
	}
	ctx, span := g.connContext(ActionJoin, stream)
	endHandshake(span, g.join(ctx, stream, codec.NewJSON(), user))
}

func (g *Gateway[G, I, O]) serveStats(w http.ResponseWriter, _ *http.Request) {
	body, err := json.Marshal(g.games.Stats())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(body)
}

// upgrade 校验客户端版本后完成 WebSocket 握手。
func (g *Gateway[G, I, O]) upgrade(w http.ResponseWriter, r *http.Request) (transport.Stream, bool) {
	if err := g.versions.check(r.Header.Get(VersionHeader)); err != nil {
		log.RatedInfo(1, "client version rejected", zap.String("remote", r.RemoteAddr), zap.Error(err))
		http.Error(w, err.Error(), http.StatusUpgradeRequired)
		return nil, false
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade 已经写回了错误响应。
		log.RatedInfo(1, "websocket upgrade failed", zap.String("remote", r.RemoteAddr), zap.Error(err))
		return nil, false
	}
	return transport.NewWebSocket(conn, g.cfg.WebSocket), true
}
