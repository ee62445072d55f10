// Package metricsvc exposes domain events as prometheus metrics.
package metricsvc

import (
	"context"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/samaecole/backend/core/document"
	"github.com/samaecole/backend/core/identity"
	"github.com/samaecole/backend/core/invitation"
)

const namespace = "samaecole"

// Collector counts sessions, invitations, rendered documents and sign-in refusals.
type Collector struct {
	sessions       *prometheus.CounterVec
	invitations    *prometheus.CounterVec
	documents      *prometheus.CounterVec
	signInFailures *prometheus.CounterVec
	requests       *prometheus.HistogramVec
}

var (
	_ identity.Listener   = (*Collector)(nil)
	_ invitation.Listener = (*Collector)(nil)
	_ document.Listener   = (*Collector)(nil)
)

// NewCollector registers the metrics on reg.
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		sessions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "session_events_total",
			Help:      "Session lifecycle events.",
		}, []string{"event"}),
		invitations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "invitation_events_total",
			Help:      "Staff invitation lifecycle events.",
		}, []string{"event"}),
		documents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "documents_rendered_total",
			Help:      "PDF documents rendered, by kind.",
		}, []string{"kind"}),
		signInFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "signin_failures_total",
			Help:      "Refused sign-in attempts, by reason.",
		}, []string{"reason"}),
		requests: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latencies.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
	}
	reg.MustRegister(c.sessions, c.invitations, c.documents, c.signInFailures, c.requests)
	return c
}

func (c *Collector) SessionEvent(_ context.Context, event identity.Event, _ identity.Session) {
	c.sessions.WithLabelValues(string(event)).Inc()
}

func (c *Collector) InvitationEvent(_ context.Context, event invitation.Event, _ invitation.Invitation) {
	c.invitations.WithLabelValues(string(event)).Inc()
}

func (c *Collector) DocumentRendered(_ context.Context, kind string) {
	c.documents.WithLabelValues(kind).Inc()
}

func (c *Collector) SignInFailed(reason string) {
	c.signInFailures.WithLabelValues(reason).Inc()
}

func (c *Collector) ObserveRequest(method, route string, status int, elapsed time.Duration) {
	c.requests.WithLabelValues(method, route, strconv.Itoa(status)).Observe(elapsed.Seconds())
}
