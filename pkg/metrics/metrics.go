package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

type Metrics struct {
	registry *prometheus.Registry

	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	WebhookEventsTotal   *prometheus.CounterVec
	DispatchRequests     *prometheus.CounterVec
	OrdersCreatedTotal   prometheus.Counter
	OrderTransitionTotal *prometheus.CounterVec
}

func New() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		HTTPRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "orderly",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests by route, method and status class.",
		}, []string{"route", "method", "status"}),
		HTTPRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "orderly",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency by route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route", "method"}),
		WebhookEventsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "orderly",
			Subsystem: "webhooks",
			Name:      "events_total",
			Help:      "Webhook events by provider and outcome.",
		}, []string{"provider", "outcome"}),
		DispatchRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "orderly",
			Subsystem: "dispatch",
			Name:      "requests_total",
			Help:      "Delivery dispatch API calls by operation and outcome.",
		}, []string{"operation", "outcome"}),
		OrdersCreatedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "orderly",
			Subsystem: "orders",
			Name:      "created_total",
			Help:      "Orders created through checkout.",
		}),
		OrderTransitionTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "orderly",
			Subsystem: "orders",
			Name:      "transitions_total",
			Help:      "Order status transitions by target status.",
		}, []string{"to_status"}),
	}

	registry.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.WebhookEventsTotal,
		m.DispatchRequests,
		m.OrdersCreatedTotal,
		m.OrderTransitionTotal,
	)

	return m
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
