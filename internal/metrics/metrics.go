// Package metrics holds the Prometheus collectors of amanidx.
//
// Collectors are package-level and always updated; they are exposed only
// once Register has been called (by the CLI when metrics are enabled).
package metrics

import (
	"errors"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "amanidx"

// Job outcomes used as label values.
const (
	OutcomeDone      = "done"
	OutcomeFailed    = "failed"
	OutcomeAbandoned = "abandoned"
)

// Scheduler metrics.
var (
	JobsEnqueuedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_enqueued_total",
			Help:      "Total number of index jobs enqueued",
		},
		[]string{"priority"},
	)

	JobsProcessedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_processed_total",
			Help:      "Total number of index jobs finished, by outcome",
		},
		[]string{"outcome"},
	)

	JobDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "job_duration_seconds",
			Help:      "Time from job start to completion",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"outcome"},
	)

	QueueDepth = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "queue_depth",
			Help:      "Jobs waiting in the queue",
		},
		[]string{"priority"},
	)

	RunningJobs = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "running_jobs",
			Help:      "Jobs currently being processed",
		},
	)
)

// Index metrics.
var (
	CommitsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "commits_total",
			Help:      "Total number of index commits",
		},
		[]string{"status"},
	)

	CommitDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "commit_duration_seconds",
			Help:      "Index commit duration in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		},
	)

	SearchesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "searches_total",
			Help:      "Total number of searches, by status",
		},
		[]string{"status"},
	)

	ParserWarningsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "parser_warnings_total",
			Help:      "Recoverable problems found in index XML",
		},
	)
)

// Pool metrics.
var (
	PoolOpenReaders = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pool_open_readers",
			Help:      "Index readers currently registered as open",
		},
	)

	PoolEvictionsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pool_evictions_total",
			Help:      "Readers closed to respect the open reader limit",
		},
	)

	PoolCloseFailuresTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pool_close_failures_total",
			Help:      "Reader closes that failed and were retried later",
		},
	)
)

// Collectors returns every collector of the package.
func Collectors() []prometheus.Collector {
	return []prometheus.Collector{
		JobsEnqueuedTotal,
		JobsProcessedTotal,
		JobDuration,
		QueueDepth,
		RunningJobs,
		CommitsTotal,
		CommitDuration,
		SearchesTotal,
		ParserWarningsTotal,
		PoolOpenReaders,
		PoolEvictionsTotal,
		PoolCloseFailuresTotal,
	}
}

var registerOnce sync.Once

// Register adds every collector to reg once per process. Collectors that are
// already registered with reg are not an error.
func Register(reg prometheus.Registerer) error {
	var err error
	registerOnce.Do(func() {
		for _, c := range Collectors() {
			if e := reg.Register(c); e != nil {
				var already prometheus.AlreadyRegisteredError
				if !errors.As(e, &already) {
					err = errors.Join(err, e)
				}
			}
		}
	})
	return err
}
