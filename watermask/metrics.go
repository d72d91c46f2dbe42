package watermask

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	tileReads = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "watermask_tile_reads_total",
		Help: "Physical tile block reads issued per raster.",
	}, []string{"raster"})

	tileReadSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "watermask_tile_read_seconds",
		Help:    "Duration of physical tile block reads.",
		Buckets: []float64{0.0001, 0.001, 0.01, 0.1, 0.3, 1, 3},
	})

	cacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "watermask_tile_cache_hits_total",
		Help: "Tile lookups served from a cache.",
	})

	cacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "watermask_tile_cache_misses_total",
		Help: "Tile lookups that required a physical read.",
	})

	queriedPoints = promauto.NewCounter(prometheus.CounterOpts{
		Name: "watermask_queried_points_total",
		Help: "Points answered by batch and single queries.",
	})
)
