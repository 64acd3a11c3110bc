// Package migration drives the export → transfer → import pipeline between
// the two application stores.
//
// This file exposes Prometheus instrumentation for the pipeline. Labels are
// kept to the table name (which is operator-controlled and allow-listed at
// the boundary) so cardinality stays bounded.
package migration

import "github.com/prometheus/client_golang/prometheus"

var (
	// rowsExported counts rows written to the intermediate file, per table.
	rowsExported = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "migration_rows_exported_total",
			Help: "Total number of rows exported to intermediate files.",
		},
		[]string{"table"},
	)

	// rowsImported counts rows bulk-loaded into the destination store, per table.
	rowsImported = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "migration_rows_imported_total",
			Help: "Total number of rows bulk-loaded into the destination store.",
		},
		[]string{"table"},
	)

	// runs counts full migration sequences by outcome ("ok" or "error").
	runs = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "migration_runs_total",
			Help: "Total number of full export/transfer/import sequences.",
		},
		[]string{"outcome"},
	)
)

func init() {
	prometheus.MustRegister(rowsExported, rowsImported, runs)
}
