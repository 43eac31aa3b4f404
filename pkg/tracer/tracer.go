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

// Package tracer 按配置安装全局 OpenTelemetry TracerProvider。
package tracer

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.uber.org/zap"

	"github.com/lk2023060901/snap-garden-go/pkg/log"
	"github.com/lk2023060901/snap-garden-go/pkg/util/merr"
)

const defaultServiceName = "snap-server"

// Config 为链路追踪配置。Endpoint 为空时不安装 TracerProvider，span 全部为空操作。
type Config struct {
	// Endpoint 为 OTLP/HTTP 接收端，例如 http://127.0.0.1:4318。
	Endpoint string `mapstructure:"endpoint"`
	// ServiceName 写入 service.name 资源属性。
	ServiceName string `mapstructure:"service-name"`
	// SampleRatio 为根 span 的采样比例，取值 [0, 1]。
	SampleRatio float64 `mapstructure:"sample-ratio"`
}

// Validate 检查采样比例。
func (c Config) Validate() error {
	if c.SampleRatio < 0 || c.SampleRatio > 1 {
		return merr.WrapErrParameterInvalidRange(0.0, 1.0, c.SampleRatio, "tracing.sample-ratio")
	}
	return nil
}

// Shutdown 刷新并关闭 TracerProvider。
type Shutdown func(context.Context) error

func nop(context.Context) error { return nil }

// Setup 使用 OTLP/HTTP 导出器安装全局 TracerProvider。
func Setup(ctx context.Context, cfg Config) (Shutdown, error) {
	if cfg.Endpoint == "" {
		log.Info("tracing disabled")
		return nop, nil
	}
	if err := cfg.Validate(); err != nil {
		return nop, err
	}
	exporter, err := otlptracehttp.New(ctx, otlptracehttp.WithEndpointURL(cfg.Endpoint))
	if err != nil {
		return nop, err
	}
	return install(ctx, cfg, sdktrace.WithBatcher(exporter))
}

// install 以给定的 span 处理方式安装 TracerProvider，测试中可传入同步的内存处理器。
func install(ctx context.Context, cfg Config, opts ...sdktrace.TracerProviderOption) (Shutdown, error) {
	name := cfg.ServiceName
	if name == "" {
		name = defaultServiceName
	}
	res, err := resource.New(ctx, resource.WithAttributes(semconv.ServiceName(name)))
	if err != nil {
		return nop, err
	}
	opts = append(opts,
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(cfg.SampleRatio))),
	)
	tp := sdktrace.NewTracerProvider(opts...)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.TraceContext{})
	log.Info("tracing enabled", zap.String("endpoint", cfg.Endpoint),
		zap.String("service", name), zap.Float64("sampleRatio", cfg.SampleRatio))
	return tp.Shutdown, nil
}
