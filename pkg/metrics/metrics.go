package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "tradewire"

// Metrics holds every pipeline counter. Build one per registry.
type Metrics struct {
	Commands       *prometheus.CounterVec // result: published|invalid|saturated|transport_error|canceled
	Offers         *prometheus.CounterVec // result: accepted|backpressured|fatal
	Received       prometheus.Counter
	DecodeFailures *prometheus.CounterVec // kind
	PollErrors     prometheus.Counter
	Submissions    *prometheus.CounterVec // result: confirmed|failed|rejected
	InFlight       prometheus.Gauge
	SubmitLatency  prometheus.Histogram
}

func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Commands: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "publish", Name: "commands_total",
			Help: "User commands by publish outcome.",
		}, []string{"result"}),
		Offers: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "publish", Name: "offers_total",
			Help: "Transport offer attempts by result.",
		}, []string{"result"}),
		Received: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "consume", Name: "messages_total",
			Help: "Messages handed to the consumer by the transport.",
		}),
		DecodeFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "consume", Name: "decode_failures_total",
			Help: "Dropped messages by decode error kind.",
		}, []string{"kind"}),
		PollErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "consume", Name: "poll_errors_total",
			Help: "Transport errors while polling.",
		}),
		Submissions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "ledger", Name: "submissions_total",
			Help: "Ledger submissions by result.",
		}, []string{"result"}),
		InFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "ledger", Name: "in_flight",
			Help: "Workers currently dispatched to the ledger.",
		}),
		SubmitLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: "ledger", Name: "submit_seconds",
			Help:    "Time from dispatch to ledger confirmation or failure.",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
		}),
	}
	if reg != nil {
		reg.MustRegister(m.Commands, m.Offers, m.Received, m.DecodeFailures,
			m.PollErrors, m.Submissions, m.InFlight, m.SubmitLatency)
	}
	return m
}
