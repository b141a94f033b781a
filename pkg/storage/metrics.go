package storage

import "github.com/VictoriaMetrics/metrics"

var (
	metricEntriesStored  = metrics.NewCounter(`recorder_entries_stored_total`)
	metricEntriesDropped = metrics.NewCounter(`recorder_entries_dropped_total`)
	metricQueryScans     = metrics.NewCounter(`recorder_query_scans_total`)
	metricScanFailures   = metrics.NewCounter(`recorder_scan_failures_total`)
	metricPrunedObjects  = metrics.NewCounter(`recorder_pruned_objects_total`)
)
