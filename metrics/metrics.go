package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var verdictCount = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "promotion_verdicts_total",
	Help: "Number of advertisement evaluations, by verdict reason",
}, []string{"admitted", "reason"})

var resolveDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Name: "promotion_invite_resolve_duration_sec",
	Help: "Duration of invite resolution requests",
}, []string{"status"})

var storeErrorCount = promauto.NewCounter(prometheus.CounterOpts{
	Name: "promotion_store_errors_total",
	Help: "Number of cooldown store failures",
})

var prunedRecordCount = promauto.NewCounter(prometheus.CounterOpts{
	Name: "promotion_pruned_records_total",
	Help: "Number of expired cooldown timestamps removed by the retention job",
})

func ObserveVerdict(admitted bool, reason string) {
	a := "false"
	if admitted {
		a = "true"
	}
	verdictCount.WithLabelValues(a, reason).Inc()
}

func ObserveResolve(d time.Duration, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	resolveDuration.WithLabelValues(status).Observe(d.Seconds())
}

func IncStoreError() {
	storeErrorCount.Inc()
}

func AddPruned(n int64) {
	prunedRecordCount.Add(float64(n))
}
