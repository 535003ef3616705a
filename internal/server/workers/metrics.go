package workers

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	outcomeOK       = "ok"
	outcomeError    = "error"
	outcomePanic    = "panic"
	outcomeRejected = "rejected"
)

type metrics struct {
	workers  prometheus.Gauge
	busy     prometheus.Gauge
	tasks    *prometheus.CounterVec
	rejected prometheus.Counter
}

func newMetrics(reg prometheus.Registerer, queued func() float64) *metrics {
	f := promauto.With(reg)

	f.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: "schemadiagram",
		Subsystem: "executor",
		Name:      "queue_depth",
		Help:      "Tasks waiting in the backlog",
	}, queued)

	return &metrics{
		workers: f.NewGauge(prometheus.GaugeOpts{
			Namespace: "schemadiagram",
			Subsystem: "executor",
			Name:      "workers",
			Help:      "Live workers, core and extra",
		}),
		busy: f.NewGauge(prometheus.GaugeOpts{
			Namespace: "schemadiagram",
			Subsystem: "executor",
			Name:      "active_workers",
			Help:      "Workers currently running a task",
		}),
		// Labels: outcome (ok, error, panic, rejected)
		tasks: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "schemadiagram",
			Subsystem: "executor",
			Name:      "tasks_total",
			Help:      "Finished tasks by outcome",
		}, []string{"outcome"}),
		rejected: f.NewCounter(prometheus.CounterOpts{
			Namespace: "schemadiagram",
			Subsystem: "executor",
			Name:      "rejected_total",
			Help:      "Tasks refused because the pool was saturated",
		}),
	}
}
