// Package metrics exposes the service's Prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Collection bundles the application counters.
type Collection struct {
	GamesStarted    prometheus.Counter
	GamesCompleted  prometheus.Counter
	MintsMatched    prometheus.Counter
	AssetsFrozen    prometheus.Counter
	AssetsReleased  prometheus.Counter
	OperationErrors *prometheus.CounterVec
}

// New registers the application metrics plus the default Go and process
// collectors on the given registry.
func New(registry *prometheus.Registry) *Collection {
	c := &Collection{
		GamesStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "monkey_matching_games_started_total",
			Help: "Total number of games started or regenerated",
		}),
		GamesCompleted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "monkey_matching_games_completed_total",
			Help: "Total number of games completed",
		}),
		MintsMatched: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "monkey_matching_mints_matched_total",
			Help: "Total number of targets satisfied by submitted assets",
		}),
		AssetsFrozen: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "monkey_matching_assets_frozen_total",
			Help: "Total number of freeze locks created",
		}),
		AssetsReleased: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "monkey_matching_assets_released_total",
			Help: "Total number of freeze locks released",
		}),
		OperationErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "monkey_matching_operation_errors_total",
			Help: "Total number of failed operations by entry point",
		}, []string{"operation"}),
	}

	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		c.GamesStarted,
		c.GamesCompleted,
		c.MintsMatched,
		c.AssetsFrozen,
		c.AssetsReleased,
		c.OperationErrors,
	)

	return c
}
