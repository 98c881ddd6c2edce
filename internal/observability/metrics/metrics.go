package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

type Config struct {
	ServiceName string
	Environment string
}

// PipelineMetrics tracks outbox delivery and moderation activity.
type PipelineMetrics struct {
	cfg Config

	workerRuns         *prometheus.CounterVec
	runDuration        *prometheus.HistogramVec
	jobsProcessed      *prometheus.CounterVec
	jobsDeadLettered   *prometheus.CounterVec
	channelSends       *prometheus.CounterVec
	dlrMatched         *prometheus.CounterVec
	moderationVerdicts *prometheus.CounterVec
}

var (
	pipelineOnce sync.Once
	pipeline     *PipelineMetrics
)

// Pipeline returns the process-wide pipeline metrics.
func Pipeline() *PipelineMetrics {
	return PipelineWithConfig(Config{ServiceName: "revaly"})
}

func PipelineWithConfig(cfg Config) *PipelineMetrics {
	pipelineOnce.Do(func() {
		pipeline = newPipelineMetrics(cfg)
	})
	return pipeline
}

// ResetPipelineMetricsForTest clears the singleton so tests can swap registries.
func ResetPipelineMetricsForTest() {
	pipelineOnce = sync.Once{}
	pipeline = nil
}

func newPipelineMetrics(cfg Config) *PipelineMetrics {
	if cfg.ServiceName == "" {
		cfg.ServiceName = "revaly"
	}
	constLabels := prometheus.Labels{
		"service": cfg.ServiceName,
		"env":     cfg.Environment,
	}

	m := &PipelineMetrics{
		cfg: cfg,
		workerRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "revaly_outbox_worker_runs_total",
			Help:        "Outbox worker batch runs.",
			ConstLabels: constLabels,
		}, nil),
		runDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:        "revaly_outbox_worker_run_duration_seconds",
			Help:        "Duration of an outbox worker batch run.",
			ConstLabels: constLabels,
			Buckets:     prometheus.DefBuckets,
		}, nil),
		jobsProcessed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "revaly_outbox_jobs_processed_total",
			Help:        "Outbox jobs completing a processing pass, by result.",
			ConstLabels: constLabels,
		}, []string{"result"}),
		jobsDeadLettered: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "revaly_outbox_jobs_dead_lettered_total",
			Help:        "Outbox jobs promoted to the dead-letter state.",
			ConstLabels: constLabels,
		}, nil),
		channelSends: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "revaly_channel_sends_total",
			Help:        "Channel send attempts, by channel and result.",
			ConstLabels: constLabels,
		}, []string{"channel", "result"}),
		dlrMatched: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "revaly_dlrs_matched_total",
			Help:        "Provider delivery receipts matched to an invite.",
			ConstLabels: constLabels,
		}, nil),
		moderationVerdicts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "revaly_moderation_verdicts_total",
			Help:        "Moderation gate outcomes.",
			ConstLabels: constLabels,
		}, []string{"outcome"}),
	}

	prometheus.DefaultRegisterer.MustRegister(
		m.workerRuns,
		m.runDuration,
		m.jobsProcessed,
		m.jobsDeadLettered,
		m.channelSends,
		m.dlrMatched,
		m.moderationVerdicts,
	)
	return m
}

func (m *PipelineMetrics) IncWorkerRun() {
	if m == nil {
		return
	}
	m.workerRuns.WithLabelValues().Inc()
}

func (m *PipelineMetrics) ObserveRunDuration(d time.Duration) {
	if m == nil {
		return
	}
	m.runDuration.WithLabelValues().Observe(d.Seconds())
}

func (m *PipelineMetrics) IncJobProcessed(result string) {
	if m == nil {
		return
	}
	m.jobsProcessed.WithLabelValues(result).Inc()
}

func (m *PipelineMetrics) IncDeadLettered() {
	if m == nil {
		return
	}
	m.jobsDeadLettered.WithLabelValues().Inc()
}

func (m *PipelineMetrics) IncChannelSend(channel, result string) {
	if m == nil {
		return
	}
	m.channelSends.WithLabelValues(channel, result).Inc()
}

func (m *PipelineMetrics) IncDLRMatched() {
	if m == nil {
		return
	}
	m.dlrMatched.WithLabelValues().Inc()
}

func (m *PipelineMetrics) IncModerationVerdict(outcome string) {
	if m == nil {
		return
	}
	m.moderationVerdicts.WithLabelValues(outcome).Inc()
}
