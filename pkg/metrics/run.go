package metrics

import (
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

const (
	prometheusNamespace = "alerting"
	prometheusSubsystem = "reconciler"
)

// RunCollector provides the following metrics of a single reconciler run:
// - alerting_reconciler_results_total{"kind", "action", "status"}
// - alerting_reconciler_step_duration_seconds{"step"}
// - alerting_reconciler_run_info{"command", "run_id"}
// - alerting_reconciler_last_run_timestamp_seconds
type RunCollector struct {
	results      *prometheus.CounterVec
	stepDuration *prometheus.HistogramVec
	runInfo      *prometheus.GaugeVec
	lastRun      prometheus.Gauge
	registry     *prometheus.Registry
	logger       *zap.SugaredLogger
}

func NewRunCollector(command, runID string, logger *zap.SugaredLogger) *RunCollector {
	c := &RunCollector{
		results: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: prometheusNamespace,
			Subsystem: prometheusSubsystem,
			Name:      "results_total",
			Help:      "Reconciliation results per resource kind, action and status",
		}, []string{"kind", "action", "status"}),
		stepDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: prometheusNamespace,
			Subsystem: prometheusSubsystem,
			Name:      "step_duration_seconds",
			Help:      "Duration of the reconciliation steps",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 14),
		}, []string{"step"}),
		runInfo: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: prometheusNamespace,
			Subsystem: prometheusSubsystem,
			Name:      "run_info",
			Help:      "Information about the reconciler run",
		}, []string{"command", "run_id"}),
		lastRun: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: prometheusNamespace,
			Subsystem: prometheusSubsystem,
			Name:      "last_run_timestamp_seconds",
			Help:      "Unix time of the last reconciler run",
		}),
		registry: prometheus.NewRegistry(),
		logger:   logger,
	}
	c.runInfo.WithLabelValues(command, runID).Set(1)
	c.lastRun.SetToCurrentTime()
	c.registry.MustRegister(c)
	return c
}

func (c *RunCollector) Describe(ch chan<- *prometheus.Desc) {
	c.results.Describe(ch)
	c.stepDuration.Describe(ch)
	c.runInfo.Describe(ch)
	c.lastRun.Describe(ch)
}

func (c *RunCollector) Collect(ch chan<- prometheus.Metric) {
	c.results.Collect(ch)
	c.stepDuration.Collect(ch)
	c.runInfo.Collect(ch)
	c.lastRun.Collect(ch)
}

func (c *RunCollector) ObserveResult(kind, action, status string) {
	m, err := c.results.GetMetricWithLabelValues(kind, action, status)
	if err != nil {
		c.logger.Errorf("RunCollector: unable to retrieve result metric for kind=%s: %s", kind, err)
		return
	}
	m.Inc()
}

func (c *RunCollector) ObserveStep(step string, duration time.Duration) {
	m, err := c.stepDuration.GetMetricWithLabelValues(step)
	if err != nil {
		c.logger.Errorf("RunCollector: unable to retrieve duration metric for step=%s: %s", step, err)
		return
	}
	m.Observe(duration.Seconds())
}

func (c *RunCollector) Registry() *prometheus.Registry {
	return c.registry
}

// WriteToTextfile stores the metrics in the text format of the node exporter textfile collector.
func (c *RunCollector) WriteToTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, c.registry); err != nil {
		return errors.Wrapf(err, "failed to write metrics to '%s'", path)
	}
	return nil
}
