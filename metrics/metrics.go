// Package metrics exposes the control plane's Prometheus metrics. The
// collector feeds on the event bus, so core packages publish events and
// never import prometheus themselves.
package metrics

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/rudder-cd/rudder/events"
)

var httpBuckets = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5}

// Collector owns every rudder metric. Construction registers against the
// default prometheus registry; an already-registered collector is reused,
// so building a second Collector observes the same series.
type Collector struct {
	deployments *prometheus.CounterVec
	flips       *prometheus.CounterVec
	tickets     *prometheus.CounterVec
	drift       *prometheus.CounterVec
	emergencies *prometheus.CounterVec

	httpRequests *prometheus.CounterVec
	httpLatency  *prometheus.HistogramVec
}

func NewCollector() *Collector {
	return &Collector{
		deployments: registerCounterVec(prometheus.CounterOpts{
			Namespace: "rudder",
			Name:      "deployments_total",
			Help:      "Deployment lifecycle events by outcome",
		}, []string{"project", "environment", "outcome"}),
		flips: registerCounterVec(prometheus.CounterOpts{
			Namespace: "rudder",
			Name:      "traffic_flips_total",
			Help:      "Promotions and rollbacks that switched live traffic",
		}, []string{"project", "environment", "direction"}),
		tickets: registerCounterVec(prometheus.CounterOpts{
			Namespace: "rudder",
			Name:      "protection_tickets_total",
			Help:      "Confirmation ticket decisions",
		}, []string{"decision"}),
		drift: registerCounterVec(prometheus.CounterOpts{
			Namespace: "rudder",
			Name:      "registry_drift_total",
			Help:      "Drift findings between the registry and live containers",
		}, []string{"project"}),
		emergencies: registerCounterVec(prometheus.CounterOpts{
			Namespace: "rudder",
			Name:      "emergency_windows_total",
			Help:      "Emergency window openings and closings",
		}, []string{"action"}),
		httpRequests: registerCounterVec(prometheus.CounterOpts{
			Namespace: "rudder",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Count of processed HTTP requests",
		}, []string{"method", "route", "status"}),
		httpLatency: registerHistogramVec(prometheus.HistogramOpts{
			Namespace: "rudder",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Latency distribution of HTTP handlers",
			Buckets:   httpBuckets,
		}, []string{"method", "route", "status"}),
	}
}

// Run consumes the event bus until the context ends or the bus closes the
// subscription
func (c *Collector) Run(ctx context.Context, bus *events.Bus) {
	id, ch := bus.Subscribe(64)
	defer bus.Unsubscribe(id)

	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-ch:
			if !ok {
				return
			}
			c.Record(evt)
		}
	}
}

// Record maps one event onto its metric. Unknown event types are ignored.
func (c *Collector) Record(evt events.Event) {
	switch evt.Type {
	case events.DeploymentStarted:
		c.deployments.WithLabelValues(evt.Project, evt.Environment, "started").Inc()
	case events.DeploymentSuccess:
		c.deployments.WithLabelValues(evt.Project, evt.Environment, "success").Inc()
	case events.DeploymentFailed:
		c.deployments.WithLabelValues(evt.Project, evt.Environment, "failed").Inc()
	case events.SlotPromoted:
		c.flips.WithLabelValues(evt.Project, evt.Environment, "promote").Inc()
	case events.SlotRolledBack:
		c.flips.WithLabelValues(evt.Project, evt.Environment, "rollback").Inc()
	case events.ProtectionQueued:
		c.tickets.WithLabelValues("queued").Inc()
	case events.ProtectionConfirmed:
		c.tickets.WithLabelValues("confirmed").Inc()
	case events.ProtectionDenied:
		c.tickets.WithLabelValues("denied").Inc()
	case events.RegistryDriftDetected:
		c.drift.WithLabelValues(evt.Project).Inc()
	case events.EmergencyOpened:
		c.emergencies.WithLabelValues("opened").Inc()
	case events.EmergencyClosed:
		c.emergencies.WithLabelValues("closed").Inc()
	}
}

// ObserveHTTPRequest records one served request
func (c *Collector) ObserveHTTPRequest(method, route string, status int, duration time.Duration) {
	labels := prometheus.Labels{
		"method": method,
		"route":  route,
		"status": strconv.Itoa(status),
	}
	c.httpRequests.With(labels).Inc()
	c.httpLatency.With(labels).Observe(duration.Seconds())
}

func registerCounterVec(opts prometheus.CounterOpts, labels []string) *prometheus.CounterVec {
	vec := prometheus.NewCounterVec(opts, labels)
	if err := prometheus.Register(vec); err != nil {
		var registered prometheus.AlreadyRegisteredError
		if errors.As(err, &registered) {
			if existing, ok := registered.ExistingCollector.(*prometheus.CounterVec); ok {
				return existing
			}
		}
	}
	return vec
}

func registerHistogramVec(opts prometheus.HistogramOpts, labels []string) *prometheus.HistogramVec {
	vec := prometheus.NewHistogramVec(opts, labels)
	if err := prometheus.Register(vec); err != nil {
		var registered prometheus.AlreadyRegisteredError
		if errors.As(err, &registered) {
			if existing, ok := registered.ExistingCollector.(*prometheus.HistogramVec); ok {
				return existing
			}
		}
	}
	return vec
}
