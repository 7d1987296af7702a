package assistant

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	Turns        *prometheus.CounterVec
	TurnDuration prometheus.Histogram
	ToolCalls    *prometheus.CounterVec
}

func NewMetrics() *Metrics {
	return &Metrics{
		Turns: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "carepilot_assistant_turns_total",
			Help: "Conversational turns by outcome",
		}, []string{"outcome"}),
		TurnDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "carepilot_assistant_turn_duration_seconds",
			Help:    "Wall time of a conversational turn, tool execution included",
			Buckets: []float64{0.5, 1, 2, 5, 10, 20, 30, 60, 120},
		}),
		ToolCalls: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "carepilot_assistant_tool_calls_total",
			Help: "Tool calls executed by the assistant, by action and outcome",
		}, []string{"action", "outcome"}),
	}
}
