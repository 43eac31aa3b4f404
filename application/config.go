package application

import (
	"time"

	zlog "github.com/lk2023060901/snap-garden-go/pkg/log"
	"github.com/lk2023060901/snap-garden-go/pkg/tracer"
	"github.com/lk2023060901/snap-garden-go/pkg/util/merr"
	zviper "github.com/lk2023060901/snap-garden-go/pkg/util/viper"
)

// HTTPConfig 为 WebSocket 入口配置。
type HTTPConfig struct {
	Addr       string `mapstructure:"addr"`
	CreatePath string `mapstructure:"create-path"`
	JoinPath   string `mapstructure:"join-path"`
}

// TCPConfig 为裸 TCP 入口配置，Addr 为空表示不开启。
type TCPConfig struct {
	Addr            string `mapstructure:"addr"`
	MaxFrameSize    int    `mapstructure:"max-frame-size"`
	Compression     bool   `mapstructure:"compression"`
	MinCompressSize int    `mapstructure:"min-compress-size"`
}

// MetricsConfig 为 Prometheus 指标出口配置，Addr 为空表示不开启。
type MetricsConfig struct {
	Addr string `mapstructure:"addr"`
	Path string `mapstructure:"path"`
}

// ServerConfig 对应配置文件中的 server 段。
type ServerConfig struct {
	HTTP    HTTPConfig    `mapstructure:"http"`
	TCP     TCPConfig     `mapstructure:"tcp"`
	Metrics MetricsConfig `mapstructure:"metrics"`
	Tracing tracer.Config `mapstructure:"tracing"`

	MaxGames         int           `mapstructure:"max-games"`
	SendQueueSize    int           `mapstructure:"send-queue-size"`
	AcceptorPoolSize int           `mapstructure:"acceptor-pool-size"`
	ReadTimeout      time.Duration `mapstructure:"read-timeout"`
	WriteTimeout     time.Duration `mapstructure:"write-timeout"`
	HandshakeTimeout time.Duration `mapstructure:"handshake-timeout"`
	MinClientVersion string        `mapstructure:"min-client-version"`
}

// RateConfig 为全局限速日志的令牌桶参数，CreditPerSecond 为 0 表示不限速。
type RateConfig struct {
	CreditPerSecond float64 `mapstructure:"credit-per-second"`
	MaxBalance      float64 `mapstructure:"max-balance"`
}

// LogConfig 对应配置文件中的 log 段，即进程级 Logger。
// Enable 为 false 时丢弃全部输出。
type LogConfig struct {
	Enable      bool `mapstructure:"enable"`
	zlog.Config `mapstructure:",squash"`
	Rate        RateConfig `mapstructure:"rate"`
}

// rootConfig 为整个配置文件中 Application 关心的部分。
// logging 段为按名称划分的模块 Logger。
type rootConfig struct {
	Server  ServerConfig           `mapstructure:"server"`
	Log     LogConfig              `mapstructure:"log"`
	Modules map[string]zlog.Config `mapstructure:"logging"`
}

func setDefaults(cfg *zviper.Config) {
	cfg.SetDefault("server.http.addr", ":8080")
	cfg.SetDefault("server.http.create-path", "/ws/create")
	cfg.SetDefault("server.http.join-path", "/ws/join")
	cfg.SetDefault("server.tcp.addr", "")
	cfg.SetDefault("server.tcp.max-frame-size", 1<<20)
	cfg.SetDefault("server.tcp.compression", false)
	cfg.SetDefault("server.tcp.min-compress-size", 256)
	cfg.SetDefault("server.metrics.addr", ":9090")
	cfg.SetDefault("server.metrics.path", "/metrics")
	cfg.SetDefault("server.max-games", 3)
	cfg.SetDefault("server.send-queue-size", 25)
	cfg.SetDefault("server.acceptor-pool-size", 256)
	cfg.SetDefault("server.read-timeout", 0)
	cfg.SetDefault("server.write-timeout", 10*time.Second)
	cfg.SetDefault("server.handshake-timeout", 10*time.Second)
	cfg.SetDefault("server.min-client-version", "")
	cfg.SetDefault("server.tracing.endpoint", "")
	cfg.SetDefault("server.tracing.service-name", "snap-server")
	cfg.SetDefault("server.tracing.sample-ratio", 1.0)

	// 只有设置过默认值的键才能被 SNAP_LOG_* 覆盖。
	cfg.SetDefault("log.enable", false)
	cfg.SetDefault("log.level", "info")
	cfg.SetDefault("log.format", "text")
	cfg.SetDefault("log.stdout", false)
	cfg.SetDefault("log.file.rootpath", "")
	cfg.SetDefault("log.file.filename", "")
	cfg.SetDefault("log.rate.credit-per-second", 0)
	cfg.SetDefault("log.rate.max-balance", 60)
}

// Validate 检查配置是否可用于启动服务。
func (c *ServerConfig) Validate() error {
	if c.MaxGames <= 0 {
		return merr.WrapErrParameterInvalidRange(1, 1<<30, c.MaxGames, "server.max-games")
	}
	if c.SendQueueSize <= 0 {
		return merr.WrapErrParameterInvalidRange(1, 1<<20, c.SendQueueSize, "server.send-queue-size")
	}
	if c.HTTP.Addr == "" && c.TCP.Addr == "" {
		return merr.WrapErrParameterInvalidMsg("neither server.http.addr nor server.tcp.addr is set")
	}
	return c.Tracing.Validate()
}
