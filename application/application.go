package application

import (
	"fmt"
	"io"
	"io/fs"
	"os"

	"github.com/cockroachdb/errors"
	"github.com/spf13/pflag"

	zlog "github.com/lk2023060901/snap-garden-go/pkg/log"
	zviper "github.com/lk2023060901/snap-garden-go/pkg/util/viper"
)

const (
	envPrefix         = "SNAP"
	defaultConfigPath = "./config.yaml"
)

// Application is the main runtime container for the snap server.
// It owns configuration and manages common dependencies.
type Application struct {
	cfg     *zviper.Config
	server  ServerConfig
	loggers map[string]*zlog.MLogger
}

// New creates a new Application instance.
func New() *Application {
	return &Application{}
}

// Run is the entry of the application.
// It parses command-line arguments (os.Args) and loads configuration file
// using the following priority:
//  1. Default: ./config.yaml
//  2. Env: SNAP_CONFIG_FILE_PATH
//  3. CLI: --config <path> or --config=<path>
//
// A missing default file is tolerated and defaults apply. SNAP_SERVER_* and SNAP_LOG_*
// env vars override single keys.
func (a *Application) Run() error {
	return a.RunWithArgs(os.Args[1:])
}

// RunWithArgs is Run with explicit command-line arguments.
func (a *Application) RunWithArgs(args []string) error {
	cfg, err := a.loadConfig(args)
	if err != nil {
		return err
	}
	a.cfg = cfg

	var root rootConfig
	if err := cfg.Unmarshal(&root); err != nil {
		return fmt.Errorf("decode config: %w", err)
	}
	if err := root.Server.Validate(); err != nil {
		return err
	}
	a.server = root.Server

	if err := initGlobalLogger(root.Log); err != nil {
		return err
	}
	return a.initModuleLoggers(root.Modules)
}

// Server returns the decoded server section.
func (a *Application) Server() ServerConfig {
	return a.server
}

// Config returns the loaded configuration, if any.
func (a *Application) Config() *zviper.Config {
	return a.cfg
}

// Logger returns a named logger created from configuration.
// If the name is unknown, it falls back to the global logger.
func (a *Application) Logger(name string) *zlog.MLogger {
	if a.loggers == nil {
		return &zlog.MLogger{Logger: zlog.L()}
	}
	if lg, ok := a.loggers[name]; ok && lg != nil {
		return lg
	}
	return &zlog.MLogger{Logger: zlog.L()}
}

// loadConfig resolves config file path and loads it via viper wrapper.
func (a *Application) loadConfig(args []string) (*zviper.Config, error) {
	flags := pflag.NewFlagSet("snap-server", pflag.ContinueOnError)
	flags.SetOutput(io.Discard)
	configFlag := flags.String("config", "", "path to the YAML/JSON config file")
	if err := flags.Parse(args); err != nil {
		return nil, fmt.Errorf("parse arguments: %w", err)
	}

	configPath, explicit := defaultConfigPath, false
	if envPath := os.Getenv(envPrefix + "_CONFIG_FILE_PATH"); envPath != "" {
		configPath, explicit = envPath, true
	}
	if *configFlag != "" {
		configPath, explicit = *configFlag, true
	}

	cfg := zviper.New()
	setDefaults(cfg)
	cfg.BindEnv(envPrefix)
	if err := cfg.LoadFile(configPath); err != nil {
		// 默认路径下没有配置文件时直接使用默认值；显式指定的文件必须存在。
		if explicit || !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to load config file %q: %w", configPath, err)
		}
	}
	return cfg, nil
}

// initGlobalLogger replaces the process-wide logger with one built from the log section.
// Every key can be overridden by env, e.g. SNAP_LOG_ENABLE, SNAP_LOG_LEVEL,
// SNAP_LOG_FILE_FILENAME or SNAP_LOG_RATE_CREDIT_PER_SECOND.
func initGlobalLogger(lc LogConfig) error {
	cfg := lc.Config
	cfg.DisableErrorVerbose = true
	if !lc.Enable {
		cfg.Stdout = false
		cfg.File.Filename = ""
	}

	logger, props, err := zlog.InitLogger(&cfg)
	if err != nil {
		return fmt.Errorf("init global logger: %w", err)
	}
	zlog.ReplaceGlobals(logger, props)
	zlog.SetRateLimit(lc.Rate.CreditPerSecond, lc.Rate.MaxBalance)
	return nil
}

// initModuleLoggers creates named loggers from the "logging" section.
//
// Example:
//
//	logging:
//	  session:
//	    level: debug
//	    stdout: true
//	    file:
//	      rootpath: ./logs
//	      filename: session.log
func (a *Application) initModuleLoggers(modules map[string]zlog.Config) error {
	if len(modules) == 0 {
		return nil
	}
	a.loggers = make(map[string]*zlog.MLogger, len(modules))
	for name, lc := range modules {
		logger, _, err := zlog.InitLogger(&lc)
		if err != nil {
			return fmt.Errorf("init module logger %q: %w", name, err)
		}
		a.loggers[name] = &zlog.MLogger{Logger: logger}
	}
	return nil
}
