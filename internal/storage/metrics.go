package storage

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RecordsWrittenTotal counts persisted records by table.
	RecordsWrittenTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mevflow_storage_records_written_total",
		Help: "Total records written to the sink",
	}, []string{"record"})

	// WriteErrorsTotal counts failed sink writes by table.
	WriteErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mevflow_storage_write_errors_total",
		Help: "Total failed sink writes",
	}, []string{"record"})
)
