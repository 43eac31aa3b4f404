// Licensed to the LF AI & Data foundation under one
// or more contributor license agreements. See the NOTICE file
// distributed with this work for additional information
// regarding copyright ownership. The ASF licenses this file
// to you under the Apache License, Version 2.0 (the
// "License"); you may not use this file except in compliance
// with the License. You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Copyright 2019 PingCAP, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// See the License for the specific language governing permissions and
// limitations under the License.

package log

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/cockroachdb/errors"
	"github.com/uber/jaeger-client-go/utils"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"
	"gopkg.in/natefinch/lumberjack.v2"
)

var (
	_globalL       atomic.Pointer[zap.Logger]
	_globalP       atomic.Pointer[ZapProperties]
	_globalR       atomic.Pointer[rateLimiterBox]
	_globalCleanup atomic.Pointer[func()]

	// 按级别预先裁剪好的 Logger，Ctx 根据当前全局级别挑选。
	_globalLevelLogger sync.Map
	// 以 rate group 名称共享的限速器。
	_namedRateLimiters sync.Map
)

// RateLimiter 为限速日志所需的最小接口，jaeger 的 utils.RateLimiter 满足它。
type RateLimiter interface {
	CheckCredit(delta float64) bool
}

type rateLimiterBox struct{ RateLimiter }

type nopRateLimiter struct{}

func (nopRateLimiter) CheckCredit(float64) bool { return true }

func init() {
	lg, props, _ := InitLogger(&Config{Level: "debug", Stdout: true, DisableErrorVerbose: true}, zap.OnFatal(zapcore.WriteThenPanic))
	ReplaceGlobals(lg, props)
	SetRateLimit(0, 0)
}

// InitLogger 按配置创建 Logger，输出到标准输出和/或滚动文件。
// 底层 core 固定为 debug 级别，实际级别由返回的 ZapProperties.Level 控制，便于运行时调整。
func InitLogger(cfg *Config, opts ...zap.Option) (*zap.Logger, *ZapProperties, error) {
	var outputs []zapcore.WriteSyncer
	if cfg.File.Filename != "" {
		fl, err := initFileLog(&cfg.File)
		if err != nil {
			return nil, nil, err
		}
		outputs = append(outputs, zapcore.AddSync(fl))
	}
	if cfg.Stdout {
		outputs = append(outputs, zapcore.Lock(os.Stdout))
	}

	level := zapcore.DebugLevel
	name := cfg.Level
	if strings.EqualFold(name, "trace") {
		name = "debug"
	}
	if err := level.UnmarshalText([]byte(name)); err != nil {
		return nil, nil, errors.Wrapf(err, "invalid log level %q", cfg.Level)
	}

	debugCfg := *cfg
	debugCfg.Level = "debug"
	lg, props, err := InitLoggerWithWriteSyncer(&debugCfg, zap.CombineWriteSyncers(outputs...), opts...)
	if err != nil {
		return nil, nil, err
	}
	props.Level.SetLevel(level)
	return lg.WithOptions(zap.AddCallerSkip(1)), props, nil
}

// InitTestLogger 创建一个把输出转交给 t.Logf 的 Logger。
func InitTestLogger(t zaptest.TestingT, cfg *Config, opts ...zap.Option) (*zap.Logger, *ZapProperties, error) {
	w := testingWriter{t: t}
	opts = append([]zap.Option{zap.ErrorOutput(w)}, opts...)
	return InitLoggerWithWriteSyncer(cfg, w, opts...)
}

type testingWriter struct {
	t zaptest.TestingT
}

func (w testingWriter) Write(p []byte) (int, error) {
	w.t.Logf("%s", bytes.TrimRight(p, "\n"))
	return len(p), nil
}

func (w testingWriter) Sync() error { return nil }

// InitLoggerWithWriteSyncer 使用给定的输出创建 Logger。
func InitLoggerWithWriteSyncer(cfg *Config, output zapcore.WriteSyncer, opts ...zap.Option) (*zap.Logger, *ZapProperties, error) {
	level := zap.NewAtomicLevel()
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		return nil, nil, errors.Wrapf(err, "invalid log level %q", cfg.Level)
	}
	if cfg.AsyncWriteEnable {
		cfg.initialize()
		bws := &zapcore.BufferedWriteSyncer{
			WS:            output,
			Size:          cfg.AsyncWriteBufferSize,
			FlushInterval: cfg.AsyncWriteFlushInterval,
		}
		registerCleanup(func() { _ = bws.Stop() })
		output = bws
	}
	core := zapcore.NewCore(newEncoder(cfg), output, level)
	lg := zap.New(core, append(cfg.buildOptions(output), opts...)...)
	return lg, &ZapProperties{Core: core, Syncer: output, Level: level}, nil
}

func initFileLog(cfg *FileLogConfig) (*lumberjack.Logger, error) {
	path := filepath.Join(cfg.RootPath, cfg.Filename)
	if st, err := os.Stat(path); err == nil && st.IsDir() {
		return nil, errors.Newf("log file %s is a directory", path)
	}
	if cfg.MaxSize == 0 {
		cfg.MaxSize = defaultLogMaxSize
	}
	return &lumberjack.Logger{
		Filename:   path,
		MaxSize:    cfg.MaxSize,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxDays,
		LocalTime:  true,
	}, nil
}

// L 返回全局 Logger，可并发使用。
func L() *zap.Logger {
	return _globalL.Load()
}

// R 返回全局限速器；未开启限速时返回一个从不丢日志的实现。
func R() RateLimiter {
	if box := _globalR.Load(); box != nil && box.RateLimiter != nil {
		return box.RateLimiter
	}
	return nopRateLimiter{}
}

// SetRateLimit 设置 RatedInfo/RatedWarn 共用的全局限速器。
// creditPerSecond <= 0 时关闭限速。
func SetRateLimit(creditPerSecond, maxBalance float64) {
	if creditPerSecond <= 0 {
		_globalR.Store(&rateLimiterBox{nopRateLimiter{}})
		return
	}
	if maxBalance < 1 {
		maxBalance = 1
	}
	_globalR.Store(&rateLimiterBox{utils.NewRateLimiter(creditPerSecond, maxBalance)})
}

func ctxL() *zap.Logger {
	if l, ok := _globalLevelLogger.Load(_globalP.Load().Level.Level()); ok {
		return l.(*zap.Logger)
	}
	return L()
}

// ReplaceGlobals 替换全局 Logger 以及 Ctx 使用的分级 Logger。
func ReplaceGlobals(logger *zap.Logger, props *ZapProperties) {
	// logger 带有 InitLogger 添加的一层 caller skip，Ctx 返回的 Logger 直接被调用，需要去掉这一层。
	direct := logger.WithOptions(zap.AddCallerSkip(-1))
	for _, level := range []zapcore.Level{
		zapcore.DebugLevel, zapcore.InfoLevel, zapcore.WarnLevel, zapcore.ErrorLevel,
		zapcore.DPanicLevel, zapcore.PanicLevel, zapcore.FatalLevel,
	} {
		_globalLevelLogger.Store(level, direct.WithOptions(zap.IncreaseLevel(level)))
	}
	_globalL.Store(logger)
	_globalP.Store(props)
}

// Cleanup 执行最近一次注册的清理函数，例如停止缓冲写入。
func Cleanup() {
	if fn := _globalCleanup.Load(); fn != nil {
		(*fn)()
	}
}

func registerCleanup(cleanup func()) {
	if old := _globalCleanup.Swap(&cleanup); old != nil {
		(*old)()
	}
}

// Sync 刷新所有全局 Logger 中缓冲的日志。
func Sync() error {
	err := L().Sync()
	_globalLevelLogger.Range(func(_, val any) bool {
		err = errors.CombineErrors(err, val.(*zap.Logger).Sync())
		return true
	})
	return err
}
