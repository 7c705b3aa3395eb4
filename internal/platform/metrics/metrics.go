package metrics

import (
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "verisay"

const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
	OutcomeSkipped = "skipped"
)

// Client holds the client-side flow metrics. A nil *Client records nothing.
type Client struct {
	registry     *prometheus.Registry
	submissions  *prometheus.CounterVec
	attachments  *prometheus.CounterVec
	stepDuration *prometheus.HistogramVec
	errors       *prometheus.CounterVec
	captures     *prometheus.CounterVec
}

func NewClient() *Client {
	c := &Client{
		registry: prometheus.NewRegistry(),
		submissions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "agreement",
				Name:      "submissions_total",
				Help:      "Agreement submissions by outcome.",
			},
			[]string{"outcome"},
		),
		attachments: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "agreement",
				Name:      "attachment_uploads_total",
				Help:      "Attachment upload attempts by group and outcome.",
			},
			[]string{"group", "outcome"},
		),
		stepDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "agreement",
				Name:      "step_duration_seconds",
				Help:      "Latency of each upload pipeline step.",
				Buckets:   prometheus.ExponentialBuckets(0.05, 2, 10),
			},
			[]string{"step"},
		),
		errors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "errors_total",
				Help:      "Flow errors by category.",
			},
			[]string{"category"},
		),
		captures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "capture",
				Name:      "attempts_total",
				Help:      "Capture attempts by kind and outcome.",
			},
			[]string{"kind", "outcome"},
		),
	}
	c.registry.MustRegister(c.submissions, c.attachments, c.stepDuration, c.errors, c.captures)
	return c
}

func (c *Client) Gatherer() prometheus.Gatherer {
	if c == nil {
		return prometheus.NewRegistry()
	}
	return c.registry
}

func (c *Client) RecordSubmission(outcome string) {
	if c == nil {
		return
	}
	c.submissions.WithLabelValues(outcome).Inc()
}

func (c *Client) RecordAttachment(group, outcome string) {
	if c == nil {
		return
	}
	c.attachments.WithLabelValues(group, outcome).Inc()
}

func (c *Client) ObserveStep(step string, started time.Time) {
	if c == nil {
		return
	}
	c.stepDuration.WithLabelValues(step).Observe(time.Since(started).Seconds())
}

func (c *Client) RecordError(category string) {
	if c == nil || strings.TrimSpace(category) == "" {
		return
	}
	c.errors.WithLabelValues(category).Inc()
}

func (c *Client) RecordCapture(kind, outcome string) {
	if c == nil {
		return
	}
	c.captures.WithLabelValues(kind, outcome).Inc()
}

// WriteTextfile dumps the current values in the node_exporter textfile format.
func (c *Client) WriteTextfile(path string) error {
	if c == nil || strings.TrimSpace(path) == "" {
		return nil
	}
	return prometheus.WriteToTextfile(path, c.registry)
}
