package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

var ApplicationsCreated = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "iq_sync_applications_created_total",
		Help: "Applications created in IQ Server",
	},
	[]string{"organization"},
)

var ScansTriggered = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "iq_sync_scans_triggered_total",
		Help: "Source control evaluations requested",
	},
	[]string{"organization"},
)

var ApplicationsDeleted = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "iq_sync_applications_deleted_total",
		Help: "Applications deleted from IQ Server",
	},
	[]string{"organization"},
)

var Errors = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "iq_sync_errors_total",
		Help: "Failed operations per organization",
	},
	[]string{"organization"},
)

func init() {
	prometheus.MustRegister(ApplicationsCreated)
	prometheus.MustRegister(ScansTriggered)
	prometheus.MustRegister(ApplicationsDeleted)
	prometheus.MustRegister(Errors)
}
