package app

import (
	"github.com/taoyao-code/telemetry-collector/internal/health"
	"github.com/taoyao-code/telemetry-collector/internal/ingest"
	"github.com/taoyao-code/telemetry-collector/internal/udpserver"
)

// NewHealthAggregator 组装 sink 与 udp 检查器
func NewHealthAggregator(sink *SinkHandle, proc *ingest.Processor, udp *udpserver.Server) *health.Aggregator {
	agg := health.NewAggregator(0, sink.Checkers...)
	agg.AddChecker(health.NewSinkChecker(sink.Driver, sink.Pinger, func() uint64 { return proc.Stats().SinkErrors }))
	agg.AddChecker(health.NewUDPChecker(
		func() string {
			if a := udp.Addr(); a != nil {
				return a.String()
			}
			return ""
		},
		udp.Done,
		func() map[string]interface{} {
			st := proc.Stats()
			return map[string]interface{}{
				"datagrams":  st.Datagrams,
				"classified": st.Classified,
				"records":    st.Records,
				"discarded":  st.Discarded(),
			}
		},
	))
	return agg
}
