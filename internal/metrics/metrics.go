// Package metrics exposes the shop's Prometheus collectors.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	HTTPRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "minishop_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	HTTPDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "minishop_http_request_duration_ms",
			Help:    "Duration of HTTP requests in ms",
			Buckets: []float64{5, 10, 25, 50, 100, 200, 400, 800, 1600},
		},
		[]string{"method", "route"},
	)

	// Checkouts counts checkout attempts by result: ok, empty, failed,
	// unpersisted (receipt written, cleared cart not saved).
	Checkouts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "minishop_checkouts_total",
			Help: "Checkout attempts by result",
		},
		[]string{"result"},
	)

	// PersistFailures counts cart writes that only reached memory.
	PersistFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "minishop_cart_persist_failures_total",
			Help: "Cart mutations whose storage write failed",
		},
		[]string{"op"},
	)

	ActiveCarts = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "minishop_active_carts",
		Help: "Carts currently held in memory",
	})
)

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
