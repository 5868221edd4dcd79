package xshardlock

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// instrumentationVersion 指标作用域版本。
const instrumentationVersion = "0.1.0"

// 指标名与 OTel Meter scope name（Meter("xshardlock")）保持一致的前缀，
// 各包自治命名；如需统一命名空间应在采集端处理。
const (
	// metricNameAcquireTotal 获取次数计数器
	metricNameAcquireTotal = "xshardlock.acquire.total"
	// metricNameReleaseTotal 释放次数计数器
	metricNameReleaseTotal = "xshardlock.release.total"
	// metricNameAcquireDuration 获取耗时直方图
	metricNameAcquireDuration = "xshardlock.acquire.duration"
)

// 指标标签值
const (
	resultAcquired = "acquired"
	resultBusy     = "busy"
	resultTimeout  = "timeout"
	resultCanceled = "canceled"
)

// durationBuckets 获取耗时直方图的桶边界（秒）。
// 无争用获取在亚微秒级，长尾主要由槽位等待贡献。
var durationBuckets = []float64{0.000001, 0.00001, 0.0001, 0.001, 0.01, 0.1, 1.0}

// Metrics 锁操作指标收集器。
type Metrics struct {
	meter           metric.Meter
	acquireTotal    metric.Int64Counter
	releaseTotal    metric.Int64Counter
	acquireDuration metric.Float64Histogram
}

// NewMetrics 创建指标收集器。
// meterProvider 为 nil 时返回 nil（不收集指标）。
func NewMetrics(meterProvider metric.MeterProvider) (*Metrics, error) {
	if meterProvider == nil {
		return nil, nil
	}

	m := &Metrics{}
	m.meter = meterProvider.Meter("xshardlock",
		metric.WithInstrumentationVersion(instrumentationVersion),
	)

	var err error
	if m.acquireTotal, err = m.meter.Int64Counter(metricNameAcquireTotal,
		metric.WithDescription("锁获取次数"), metric.WithUnit("{acquire}")); err != nil {
		return nil, err
	}
	if m.releaseTotal, err = m.meter.Int64Counter(metricNameReleaseTotal,
		metric.WithDescription("锁释放次数"), metric.WithUnit("{release}")); err != nil {
		return nil, err
	}
	if m.acquireDuration, err = m.meter.Float64Histogram(metricNameAcquireDuration,
		metric.WithDescription("锁获取耗时"), metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(durationBuckets...)); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *Metrics) recordAcquire(ctx context.Context, mode, result string, d time.Duration) {
	attrs := metric.WithAttributes(
		attribute.String("mode", mode),
		attribute.String("result", result),
	)
	m.acquireTotal.Add(ctx, 1, attrs)
	if d > 0 {
		m.acquireDuration.Record(ctx, d.Seconds(),
			metric.WithAttributes(attribute.String("mode", mode)))
	}
}

func (m *Metrics) recordRelease(ctx context.Context, mode string) {
	m.releaseTotal.Add(ctx, 1,
		metric.WithAttributes(attribute.String("mode", mode)))
}

// resultLabel 把获取结果映射为指标标签值。
func resultLabel(err error) string {
	switch {
	case err == nil:
		return resultAcquired
	case errors.Is(err, context.DeadlineExceeded):
		return resultTimeout
	case errors.Is(err, context.Canceled):
		return resultCanceled
	default:
		return "error"
	}
}
