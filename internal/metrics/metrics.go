// Package metrics exposes the Prometheus counters/gauges/histograms
// this node tracks: ring placement, replication fan-out, and rebalance
// activity. Trimmed from the teacher's metrics.Metrics (which also
// tracked commit-log/memtable/SSTable/compaction/cache groups that do
// not exist here — durable storage is a Non-goal).
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds every metric this node records.
type Metrics struct {
	Registry *prometheus.Registry

	WriteRequestsTotal    prometheus.Counter
	WriteRequestsDuration prometheus.Histogram
	ReadRequestsTotal     prometheus.Counter
	ReadRequestsDuration  prometheus.Histogram
	DeleteRequestsTotal   prometheus.Counter
	DeleteRequestsDuration prometheus.Histogram

	ForwardedRequestsTotal prometheus.Counter
	ReplicationSentTotal   prometheus.Counter
	ReplicationErrorsTotal prometheus.Counter

	RebalanceTotal         prometheus.Counter
	RebalanceDuration      prometheus.Histogram
	RebalanceFailuresTotal prometheus.Counter

	RingSize           prometheus.Gauge
	MembershipJoins    prometheus.Counter
	MembershipLeaves   prometheus.Counter
}

// New creates and registers every metric under a fresh registry scoped
// to nodeID, grounded on the teacher's Namespace+ConstLabels pattern.
// A fresh *prometheus.Registry per node (rather than the global
// default registry) lets tests build multiple Metrics instances
// without colliding, and lets the HTTP server mount exactly this
// node's series at /metrics.
func New(nodeID string) *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)
	labels := prometheus.Labels{"node_id": nodeID}

	return &Metrics{
		Registry: reg,

		WriteRequestsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "ringkv", Subsystem: "coordinator", Name: "write_requests_total",
			Help: "Total number of write requests handled by this node.", ConstLabels: labels,
		}),
		WriteRequestsDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "ringkv", Subsystem: "coordinator", Name: "write_request_duration_seconds",
			Help: "Write request latency.", ConstLabels: labels, Buckets: prometheus.DefBuckets,
		}),
		ReadRequestsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "ringkv", Subsystem: "coordinator", Name: "read_requests_total",
			Help: "Total number of read requests handled by this node.", ConstLabels: labels,
		}),
		ReadRequestsDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "ringkv", Subsystem: "coordinator", Name: "read_request_duration_seconds",
			Help: "Read request latency.", ConstLabels: labels, Buckets: prometheus.DefBuckets,
		}),
		DeleteRequestsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "ringkv", Subsystem: "coordinator", Name: "delete_requests_total",
			Help: "Total number of delete requests handled by this node.", ConstLabels: labels,
		}),
		DeleteRequestsDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "ringkv", Subsystem: "coordinator", Name: "delete_request_duration_seconds",
			Help: "Delete request latency.", ConstLabels: labels, Buckets: prometheus.DefBuckets,
		}),
		ForwardedRequestsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "ringkv", Subsystem: "coordinator", Name: "forwarded_requests_total",
			Help: "Requests single-hop forwarded to the ring owner.", ConstLabels: labels,
		}),
		ReplicationSentTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "ringkv", Subsystem: "replication", Name: "sent_total",
			Help: "Replication RPCs sent to successors.", ConstLabels: labels,
		}),
		ReplicationErrorsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "ringkv", Subsystem: "replication", Name: "errors_total",
			Help: "Replication RPCs that failed (best-effort, logged and swallowed).", ConstLabels: labels,
		}),
		RebalanceTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "ringkv", Subsystem: "rebalance", Name: "total",
			Help: "Rebalance operations performed by this node.", ConstLabels: labels,
		}),
		RebalanceDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "ringkv", Subsystem: "rebalance", Name: "duration_seconds",
			Help: "Rebalance operation latency.", ConstLabels: labels, Buckets: prometheus.DefBuckets,
		}),
		RebalanceFailuresTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "ringkv", Subsystem: "rebalance", Name: "failures_total",
			Help: "Rebalance operations that failed.", ConstLabels: labels,
		}),
		RingSize: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "ringkv", Subsystem: "ring", Name: "size",
			Help: "Number of nodes this node currently sees in the ring.", ConstLabels: labels,
		}),
		MembershipJoins: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "ringkv", Subsystem: "membership", Name: "joins_total",
			Help: "Peer join events dispatched by the membership watcher.", ConstLabels: labels,
		}),
		MembershipLeaves: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "ringkv", Subsystem: "membership", Name: "leaves_total",
			Help: "Peer leave events dispatched by the membership watcher.", ConstLabels: labels,
		}),
	}
}
