// Package metrics exposes Prometheus collectors for bundle loads, transfers,
// patch runs and tracked objects. A nil *Metrics is valid and records
// nothing, so components can be built without metrics in tests.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics 汇总所有 bundle 生命周期指标，使用独立 Registry 避免污染全局默认注册表。
type Metrics struct {
	Registry *prometheus.Registry

	BundleLoads    *prometheus.CounterVec
	BundleLoadTime *prometheus.HistogramVec
	LoadedBundles  *prometheus.GaugeVec

	Transfers     *prometheus.CounterVec
	TransferBytes *prometheus.CounterVec

	PatchRuns  *prometheus.CounterVec
	PatchBytes *prometheus.GaugeVec

	TrackedObjects *prometheus.GaugeVec
	ObjectLoads    *prometheus.CounterVec
}

// New 创建并注册全部指标。
func New() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),

		BundleLoads: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bundlehub_bundle_loads_total",
				Help: "Physical bundle loads by result",
			},
			[]string{"stream", "result"},
		),
		BundleLoadTime: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "bundlehub_bundle_load_duration_seconds",
				Help:    "Time spent opening a bundle",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"stream"},
		),
		LoadedBundles: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "bundlehub_loaded_bundles",
				Help: "Bundles currently held by the runtime cache",
			},
			[]string{"stream"},
		),
		Transfers: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bundlehub_transfers_total",
				Help: "Size probes and fetches by kind and result",
			},
			[]string{"stream", "kind", "result"},
		),
		TransferBytes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bundlehub_transfer_bytes_total",
				Help: "Bytes written to the bundle cache",
			},
			[]string{"stream"},
		),
		PatchRuns: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bundlehub_patch_runs_total",
				Help: "Patch plan results by phase and state",
			},
			[]string{"stream", "phase", "state"},
		),
		PatchBytes: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "bundlehub_patch_pending_bytes",
				Help: "Bytes in the latest ready patch plan",
			},
			[]string{"stream"},
		),
		TrackedObjects: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "bundlehub_tracked_objects",
				Help: "Objects and scenes with a positive ref count",
			},
			[]string{"stream"},
		),
		ObjectLoads: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bundlehub_object_loads_total",
				Help: "Object load requests by result",
			},
			[]string{"stream", "result"},
		),
	}

	m.Registry.MustRegister(
		m.BundleLoads,
		m.BundleLoadTime,
		m.LoadedBundles,
		m.Transfers,
		m.TransferBytes,
		m.PatchRuns,
		m.PatchBytes,
		m.TrackedObjects,
		m.ObjectLoads,
	)
	return m
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

// ObserveBundleLoad 记录一次物理加载。
func (m *Metrics) ObserveBundleLoad(stream string, started time.Time, err error) {
	if m == nil {
		return
	}
	m.BundleLoads.WithLabelValues(stream, result(err)).Inc()
	m.BundleLoadTime.WithLabelValues(stream).Observe(time.Since(started).Seconds())
}

// SetLoadedBundles 更新当前驻留的 bundle 数量。
func (m *Metrics) SetLoadedBundles(stream string, n int) {
	if m == nil {
		return
	}
	m.LoadedBundles.WithLabelValues(stream).Set(float64(n))
}

// ObserveTransfer 记录 probe/fetch 结果；bytes 仅对成功的 fetch 计入。
func (m *Metrics) ObserveTransfer(stream, kind string, bytes int64, err error) {
	if m == nil {
		return
	}
	m.Transfers.WithLabelValues(stream, kind, result(err)).Inc()
	if err == nil && kind == "fetch" && bytes > 0 {
		m.TransferBytes.WithLabelValues(stream).Add(float64(bytes))
	}
}

// ObservePatch 记录补丁阶段结果。
func (m *Metrics) ObservePatch(stream, phase, state string, totalBytes int64) {
	if m == nil {
		return
	}
	m.PatchRuns.WithLabelValues(stream, phase, state).Inc()
	if phase == "ready" {
		m.PatchBytes.WithLabelValues(stream).Set(float64(totalBytes))
	}
}

// AddTrackedObjects 调整被引用的对象数量。
func (m *Metrics) AddTrackedObjects(stream string, delta int) {
	if m == nil || delta == 0 {
		return
	}
	m.TrackedObjects.WithLabelValues(stream).Add(float64(delta))
}

// ObserveObjectLoad 记录一次对象加载请求。
func (m *Metrics) ObserveObjectLoad(stream string, err error) {
	if m == nil {
		return
	}
	m.ObjectLoads.WithLabelValues(stream, result(err)).Inc()
}
