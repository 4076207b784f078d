package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewRegistry 创建自定义 Prometheus Registry，并注册常用采集器
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// Handler 返回 Prometheus 指标 HTTP 处理器
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})
}

// AppMetrics 遥测接收指标
type AppMetrics struct {
	DatagramsReceived prometheus.Counter
	BytesReceived     prometheus.Counter
	FramesDiscarded   *prometheus.CounterVec // labels: reason=too_short|checksum|malformed
	RecordsClassified *prometheus.CounterVec // labels: class=fresh|duplicate|gap|out_of_order
	MissingFrames     prometheus.Counter     // 在线判定的缺失帧数累计
	PayloadTruncated  prometheus.Counter
	SinkErrors        prometheus.Counter
	ProcessingSeconds prometheus.Histogram // 解码+分类耗时
	DevicesTracked    prometheus.Gauge
	OnlineGauge       prometheus.Gauge // 当前在线设备数
}

// NewAppMetrics 注册并返回业务指标
func NewAppMetrics(reg prometheus.Registerer) *AppMetrics {
	m := &AppMetrics{
		DatagramsReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "telemetry_datagrams_received_total",
			Help: "Total UDP datagrams received.",
		}),
		BytesReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "telemetry_bytes_received_total",
			Help: "Total bytes received over UDP.",
		}),
		FramesDiscarded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "telemetry_frames_discarded_total",
			Help: "Frames dropped before classification.",
		}, []string{"reason"}),
		RecordsClassified: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "telemetry_records_classified_total",
			Help: "Classified frames by online class.",
		}, []string{"class"}),
		MissingFrames: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "telemetry_missing_frames_total",
			Help: "Sequence numbers skipped according to the online classifier.",
		}),
		PayloadTruncated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "telemetry_payload_truncated_total",
			Help: "DATA frames whose payload was shorter than the declared batch.",
		}),
		SinkErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "telemetry_sink_errors_total",
			Help: "Records lost because the sink write failed.",
		}),
		ProcessingSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "telemetry_processing_seconds",
			Help:    "Decode and classification time per frame.",
			Buckets: prometheus.ExponentialBuckets(1e-6, 4, 10),
		}),
		DevicesTracked: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "telemetry_devices_tracked",
			Help: "Devices with classifier state.",
		}),
		OnlineGauge: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "telemetry_devices_online",
			Help: "Devices heard from within the session timeout.",
		}),
	}
	reg.MustRegister(
		m.DatagramsReceived, m.BytesReceived, m.FramesDiscarded, m.RecordsClassified, m.MissingFrames,
		m.PayloadTruncated, m.SinkErrors, m.ProcessingSeconds, m.DevicesTracked, m.OnlineGauge,
	)
	return m
}
