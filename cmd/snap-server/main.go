// snap-server 托管双人 Snap 纸牌对局：WebSocket/TCP 入口、对局槽位表与 Prometheus 指标。
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	_ "go.uber.org/automaxprocs"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/lk2023060901/snap-garden-go/application"
	"github.com/lk2023060901/snap-garden-go/internal/game/snap"
	"github.com/lk2023060901/snap-garden-go/internal/gateway"
	"github.com/lk2023060901/snap-garden-go/internal/network/acceptor"
	"github.com/lk2023060901/snap-garden-go/internal/network/codec"
	"github.com/lk2023060901/snap-garden-go/internal/network/compressor"
	"github.com/lk2023060901/snap-garden-go/internal/network/serializer"
	"github.com/lk2023060901/snap-garden-go/internal/network/transport"
	"github.com/lk2023060901/snap-garden-go/internal/session"
	"github.com/lk2023060901/snap-garden-go/pkg/log"
	"github.com/lk2023060901/snap-garden-go/pkg/metrics"
	"github.com/lk2023060901/snap-garden-go/pkg/tracer"
)

const shutdownTimeout = 5 * time.Second

func main() {
	app := application.New()
	if err := app.Run(); err != nil {
		log.Fatal("load configuration failed", zap.Error(err))
	}
	defer log.Cleanup()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, app.Server()); err != nil {
		log.Error("snap server exited", zap.Error(err))
		_ = log.Sync()
		os.Exit(1)
	}
	log.Info("snap server stopped")
}

func run(ctx context.Context, cfg application.ServerConfig) error {
	metrics.Register(prometheus.DefaultRegisterer)

	shutdownTracing, err := tracer.Setup(ctx, cfg.Tracing)
	if err != nil {
		return errors.Wrap(err, "setup tracing")
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := shutdownTracing(flushCtx); err != nil {
			log.Warn("flush traces failed", zap.Error(err))
		}
	}()

	games, err := session.NewManager[*snap.Game, snap.Input, snap.Output](cfg.MaxGames, snap.New)
	if err != nil {
		return err
	}

	tcpCodec, err := newTCPCodec(cfg.TCP)
	if err != nil {
		return err
	}
	gw, err := gateway.New(gateway.Config{
		SendQueueSize:    cfg.SendQueueSize,
		HandshakeTimeout: cfg.HandshakeTimeout,
		MinClientVersion: cfg.MinClientVersion,
		CreatePath:       cfg.HTTP.CreatePath,
		JoinPath:         cfg.HTTP.JoinPath,
		WebSocket: transport.WebSocketOptions{
			ReadLimit:    int64(cfg.TCP.MaxFrameSize),
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
		},
		TCPCodec: tcpCodec,
	}, games, snap.Greet)
	if err != nil {
		return err
	}
	defer gw.Close()

	g, ctx := errgroup.WithContext(ctx)

	if cfg.HTTP.Addr != "" {
		serveHTTP(ctx, g, "gateway", cfg.HTTP.Addr, gw.Handler())
	}
	if cfg.Metrics.Addr != "" {
		mux := http.NewServeMux()
		mux.Handle(cfg.Metrics.Path, promhttp.Handler())
		serveHTTP(ctx, g, "metrics", cfg.Metrics.Addr, mux)
	}
	if cfg.TCP.Addr != "" {
		a, err := acceptor.Listen(cfg.TCP.Addr, acceptor.Config{
			PoolSize: cfg.AcceptorPoolSize,
			Stream: transport.TCPOptions{
				MaxFrameSize: uint32(cfg.TCP.MaxFrameSize),
				ReadTimeout:  cfg.ReadTimeout,
				WriteTimeout: cfg.WriteTimeout,
			},
		})
		if err != nil {
			return err
		}
		log.Info("tcp gateway listening", zap.Stringer("addr", a.Addr()))
		g.Go(func() error {
			return a.Serve(ctx, gw)
		})
	}

	log.Info("snap server started",
		zap.Int("maxGames", cfg.MaxGames),
		zap.Int("sendQueueSize", cfg.SendQueueSize))
	return g.Wait()
}

func newTCPCodec(cfg application.TCPConfig) (codec.Codec, error) {
	if !cfg.Compression {
		return codec.NewJSON(), nil
	}
	zc, err := compressor.NewZstd(compressor.ZstdOptions{
		MinSize:        cfg.MinCompressSize,
		MaxDecodedSize: cfg.MaxFrameSize,
	})
	if err != nil {
		return nil, errors.Wrap(err, "create zstd compressor")
	}
	return codec.New(codec.Options{
		Serializer:        serializer.JSONSerializer{},
		Compressor:        zc,
		EnableCompression: true,
	})
}

// serveHTTP 在 g 中运行一个 HTTP 服务，ctx 结束时优雅关闭。
func serveHTTP(ctx context.Context, g *errgroup.Group, name, addr string, h http.Handler) {
	srv := &http.Server{Addr: addr, Handler: h, ReadHeaderTimeout: 10 * time.Second}
	g.Go(func() error {
		log.Info("http server listening", zap.String("server", name), zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return errors.Wrapf(err, "%s server", name)
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
}
