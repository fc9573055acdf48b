// Package metrics provides internal metrics collection.
// This package is internal and should not be imported by external projects.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Collector exposes the engine's coordination metrics.
type Collector struct {
	tasksTotal         *prometheus.CounterVec
	taskDuration       *prometheus.HistogramVec
	resultsTotal       *prometheus.CounterVec
	queueDepth         prometheus.Gauge
	queueRejections    prometheus.Counter
	consensusRounds    *prometheus.CounterVec
	conflictResolved   *prometheus.CounterVec
	votesTotal         prometheus.Counter
	notificationsTotal *prometheus.CounterVec
}

// NewCollector registers the coordination metrics on reg; a nil reg uses
// the default registerer.
func NewCollector(namespace string, reg prometheus.Registerer) *Collector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Collector{
		tasksTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "tasks_total",
				Help:      "Total number of tasks by type and terminal status",
			},
			[]string{"type", "status"},
		),
		taskDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "task_duration_seconds",
				Help:      "Completed task duration in seconds",
				Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 300},
			},
			[]string{"type"},
		),
		resultsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "results_submitted_total",
				Help:      "Total number of agent results submitted",
			},
			[]string{"success"},
		),
		queueDepth: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "queue_depth",
				Help:      "Current number of tasks resident in the queue",
			},
		),
		queueRejections: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "queue_rejections_total",
				Help:      "Total number of enqueues rejected by the size bound",
			},
		),
		consensusRounds: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "consensus_rounds_total",
				Help:      "Total number of consensus rounds by outcome",
			},
			[]string{"outcome"},
		),
		conflictResolved: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "conflict_resolutions_total",
				Help:      "Total number of conflict resolutions by strategy",
			},
			[]string{"strategy"},
		),
		votesTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "votes_submitted_total",
				Help:      "Total number of consensus votes submitted",
			},
		),
		notificationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "assignment_notifications_total",
				Help:      "Total number of assignment notifications by delivery outcome",
			},
			[]string{"outcome"},
		),
	}
}

func (c *Collector) TaskFinished(taskType, status string, duration time.Duration) {
	c.tasksTotal.WithLabelValues(taskType, status).Inc()
	c.taskDuration.WithLabelValues(taskType).Observe(duration.Seconds())
}

func (c *Collector) ResultSubmitted(success bool) {
	if success {
		c.resultsTotal.WithLabelValues("true").Inc()
	} else {
		c.resultsTotal.WithLabelValues("false").Inc()
	}
}

func (c *Collector) SetQueueDepth(depth int) {
	c.queueDepth.Set(float64(depth))
}

func (c *Collector) QueueRejected() {
	c.queueRejections.Inc()
}

func (c *Collector) ConsensusRound(outcome string) {
	c.consensusRounds.WithLabelValues(outcome).Inc()
}

func (c *Collector) ConflictResolved(strategy string) {
	c.conflictResolved.WithLabelValues(strategy).Inc()
}

func (c *Collector) VoteSubmitted() {
	c.votesTotal.Inc()
}

func (c *Collector) NotificationSent(outcome string) {
	c.notificationsTotal.WithLabelValues(outcome).Inc()
}
