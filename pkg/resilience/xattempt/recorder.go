package xattempt

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Recorder 尝试级指标记录器接口。
// 默认实现为 no-op（成功的分类是静默的），
// 通过 WithRecorder(NewOTelRecorder(...)) 接入 OpenTelemetry。
type Recorder interface {
	// Attempt 在每次尝试结束后调用。
	Attempt(ctx context.Context, attempt int, success bool)

	// Backoff 在每次退避等待开始前调用，wait 为加抖动后的等待时长。
	Backoff(ctx context.Context, wait time.Duration)
}

// noopRecorder Runner 的默认记录器。
type noopRecorder struct{}

func (noopRecorder) Attempt(context.Context, int, bool)     {}
func (noopRecorder) Backoff(context.Context, time.Duration) {}

const (
	defaultInstrumentationName = "github.com/omeyang/xguard/xattempt"

	metricAttemptTotal = "xguard.attempt.total"
	metricBackoffDelay = "xguard.backoff.delay"
)

type otelConfig struct {
	instrumentationName string
	meterProvider       metric.MeterProvider
}

// RecorderOption 定义 OTel Recorder 的配置选项。
type RecorderOption func(*otelConfig)

// WithInstrumentationName 设置 OTel instrumentation 名称。
func WithInstrumentationName(name string) RecorderOption {
	return func(cfg *otelConfig) {
		if name != "" {
			cfg.instrumentationName = name
		}
	}
}

// WithMeterProvider 设置 MeterProvider，默认使用全局 Provider。
func WithMeterProvider(provider metric.MeterProvider) RecorderOption {
	return func(cfg *otelConfig) {
		if provider != nil {
			cfg.meterProvider = provider
		}
	}
}

// NewOTelRecorder 创建基于 OpenTelemetry 的 Recorder。
// 记录两项指标：
//   - xguard.attempt.total（计数器，按 outcome=ok|error 区分）
//   - xguard.backoff.delay（直方图，单位秒）
func NewOTelRecorder(opts ...RecorderOption) (Recorder, error) {
	cfg := &otelConfig{
		instrumentationName: defaultInstrumentationName,
		meterProvider:       otel.GetMeterProvider(),
	}
	for _, opt := range opts {
		opt(cfg)
	}

	meter := cfg.meterProvider.Meter(cfg.instrumentationName)

	total, err := meter.Int64Counter(
		metricAttemptTotal,
		metric.WithDescription("total attempts"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, fmt.Errorf("xattempt: create counter failed: %w", err)
	}

	delay, err := meter.Float64Histogram(
		metricBackoffDelay,
		metric.WithDescription("backoff delay before a delayed retry"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("xattempt: create histogram failed: %w", err)
	}

	return &otelRecorder{
		total: total,
		delay: delay,
	}, nil
}

type otelRecorder struct {
	total metric.Int64Counter
	delay metric.Float64Histogram
}

func (r *otelRecorder) Attempt(ctx context.Context, attempt int, success bool) {
	outcome := "error"
	if success {
		outcome = "ok"
	}
	r.total.Add(ctx, 1, metric.WithAttributes(
		attribute.String("outcome", outcome),
		attribute.Int("attempt", attempt),
	))
}

func (r *otelRecorder) Backoff(ctx context.Context, wait time.Duration) {
	r.delay.Record(ctx, wait.Seconds())
}

// 确保实现了 Recorder 接口
var (
	_ Recorder = noopRecorder{}
	_ Recorder = (*otelRecorder)(nil)
)
