// Package metrics exposes Prometheus collectors for the recipe API and the
// shopping list, and keeps a SQLite log of recipe API requests.
package metrics

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"leftover-chef/internal/mealdb"
	"leftover-chef/internal/shopping"
)

// Outcome labels.
const (
	OutcomeOK       = "ok"
	OutcomeNotFound = "not_found"
	OutcomeTimeout  = "timeout"
	OutcomeError    = "error"
)

// Recorder owns the Prometheus registry. It implements mealdb.Observer.
type Recorder struct {
	registry    *prometheus.Registry
	store       *Store
	requests    *prometheus.CounterVec
	latency     *prometheus.HistogramVec
	generations *prometheus.CounterVec
	listItems   prometheus.Gauge
	planChanges *prometheus.CounterVec
}

// NewRecorder registers the collectors. store may be nil to skip the SQLite log.
func NewRecorder(store *Store) *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		store:    store,
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "leftoverchef",
			Name:      "mealdb_requests_total",
			Help:      "Recipe API requests by endpoint and outcome.",
		}, []string{"endpoint", "outcome"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "leftoverchef",
			Name:      "mealdb_request_duration_seconds",
			Help:      "Recipe API request latency.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"endpoint"}),
		generations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "leftoverchef",
			Name:      "shopping_list_generations_total",
			Help:      "Shopping list aggregation runs by result.",
		}, []string{"result"}),
		listItems: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "leftoverchef",
			Name:      "shopping_list_items",
			Help:      "Items on the current shopping list.",
		}),
		planChanges: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "leftoverchef",
			Name:      "meal_plan_changes_total",
			Help:      "Meal plan mutations by kind.",
		}, []string{"kind"}),
	}
	r.registry.MustRegister(
		r.requests, r.latency, r.generations, r.listItems, r.planChanges,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return r
}

// ObserveRequest implements mealdb.Observer.
func (r *Recorder) ObserveRequest(endpoint string, latency time.Duration, err error) {
	outcome := Outcome(err)
	r.requests.WithLabelValues(endpoint, outcome).Inc()
	r.latency.WithLabelValues(endpoint).Observe(latency.Seconds())

	if r.store == nil {
		return
	}
	m := LookupMetric{Endpoint: endpoint, Outcome: outcome, LatencyMS: latency.Milliseconds()}
	if err := r.store.Record(context.Background(), m); err != nil {
		slog.Warn("Failed to record lookup metric", "endpoint", endpoint, "error", err)
	}
}

// ObserveGeneration counts an aggregation run; result is applied, stale or failed.
func (r *Recorder) ObserveGeneration(result string, items int) {
	r.generations.WithLabelValues(result).Inc()
	if result == shopping.GenerationApplied {
		r.listItems.Set(float64(items))
	}
}

// ObserveListSize updates the shopping list gauge after a toggle or clear.
func (r *Recorder) ObserveListSize(items int) {
	r.listItems.Set(float64(items))
}

// ObservePlanChange counts a meal plan mutation.
func (r *Recorder) ObservePlanChange(kind string) {
	r.planChanges.WithLabelValues(kind).Inc()
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

// Registry returns the underlying registry.
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// Outcome maps a recipe API error to its label.
func Outcome(err error) string {
	switch {
	case err == nil:
		return OutcomeOK
	case errors.Is(err, mealdb.ErrNotFound):
		return OutcomeNotFound
	case errors.Is(err, mealdb.ErrTimeout):
		return OutcomeTimeout
	default:
		return OutcomeError
	}
}

var _ mealdb.Observer = (*Recorder)(nil)
