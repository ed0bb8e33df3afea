package manager

import "github.com/prometheus/client_golang/prometheus"

var (
	admissionTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "rkllmd",
			Subsystem: "engine",
			Name:      "admission_total",
			Help:      "Admission decisions by result (admitted, busy)",
		},
		[]string{"result"},
	)

	engineBusy = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "rkllmd",
			Subsystem: "engine",
			Name:      "busy",
			Help:      "1 while a request holds the engine",
		},
	)

	fragmentsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "rkllmd",
			Subsystem: "engine",
			Name:      "fragments_total",
			Help:      "Text fragments forwarded to clients",
		},
	)

	runErrorsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "rkllmd",
			Subsystem: "engine",
			Name:      "run_errors_total",
			Help:      "Messages that ended in the engine error state",
		},
	)

	messageDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "rkllmd",
			Subsystem: "engine",
			Name:      "message_duration_seconds",
			Help:      "Time from run start to message completion",
			Buckets:   []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60, 120},
		},
	)
)

func init() {
	prometheus.MustRegister(admissionTotal, engineBusy, fragmentsTotal, runErrorsTotal, messageDuration)
}
