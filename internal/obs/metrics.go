package obs

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	decisionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "authz_decisions_total",
			Help: "Access decisions by outcome and deny reason.",
		},
		[]string{"outcome", "reason"},
	)

	decisionDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "authz_decision_duration_seconds",
			Help:    "Latency of access decisions.",
			Buckets: []float64{.001, .0025, .005, .01, .025, .05, .1, .25},
		},
	)

	auditQueueDepth = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "authz_audit_queue_depth",
		Help: "Audit records buffered awaiting flush.",
	})

	auditFlushFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "authz_audit_flush_failures_total",
		Help: "Audit batches that exhausted their flush retries.",
	})
)

func Init() {
	prometheus.MustRegister(decisionsTotal, decisionDuration, auditQueueDepth, auditFlushFailures)
}

func Handler() http.Handler {
	return promhttp.Handler()
}

func ObserveDecision(allowed bool, reason string, elapsed time.Duration) {
	outcome := "allow"
	if !allowed {
		outcome = "deny"
	}
	decisionsTotal.WithLabelValues(outcome, reason).Inc()
	decisionDuration.Observe(elapsed.Seconds())
}

func SetAuditQueueDepth(depth int) {
	auditQueueDepth.Set(float64(depth))
}

func IncAuditFlushFailures() {
	auditFlushFailures.Inc()
}
