package metrics

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds all Prometheus metrics for the feed service
type Metrics struct {
	FeedPages         *prometheus.CounterVec   // status: ok, degraded, invalid_cursor, invalid_request
	ItemsScored       *prometheus.CounterVec   // kind
	ItemsDropped      *prometheus.CounterVec   // reason: unresolved_reference, already_emitted
	SourceErrors      *prometheus.CounterVec   // source
	AggregateDuration *prometheus.HistogramVec // stage: fetch, score_merge
	ScoreCacheLookups *prometheus.CounterVec   // result: hit, miss
}
