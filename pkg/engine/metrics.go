package engine

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/rmax-ai/claude-usage/pkg/usage"
)

var (
	// UsageUtilization tracks the last displayed utilization per window
	UsageUtilization = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "claude_usage_utilization_percent",
			Help: "Utilization of a claude.ai quota window",
		},
		[]string{"window", "source"},
	)

	// FetchTotal counts fetch attempts by outcome
	FetchTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "claude_usage_fetch_total",
			Help: "Total number of usage fetches by status",
		},
		[]string{"status"},
	)

	// FetchDuration tracks how long a fetch takes, browser start-up included
	FetchDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "claude_usage_fetch_duration_seconds",
			Help:    "Duration of usage fetches",
			Buckets: []float64{0.5, 1, 2.5, 5, 10, 20, 30, 60, 90},
		},
	)

	// TriggersDropped counts poll requests ignored because a poll was running
	TriggersDropped = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "claude_usage_triggers_dropped_total",
			Help: "Poll triggers dropped while another poll was in flight",
		},
		[]string{"trigger"},
	)

	// LastSuccess is the unix time of the last live fetch
	LastSuccess = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "claude_usage_last_success_timestamp_seconds",
			Help: "Unix time of the last successful fetch",
		},
	)
)

func init() {
	prometheus.MustRegister(UsageUtilization)
	prometheus.MustRegister(FetchTotal)
	prometheus.MustRegister(FetchDuration)
	prometheus.MustRegister(TriggersDropped)
	prometheus.MustRegister(LastSuccess)
}

func observeSnapshot(snap usage.Snapshot, live bool) {
	UsageUtilization.Reset()
	for _, name := range usage.Windows {
		UsageUtilization.WithLabelValues(string(name), string(snap.Source)).Set(float64(snap.Window(name).Utilization))
	}
	if live {
		LastSuccess.Set(float64(snap.LastUpdate.Unix()))
	}
}
