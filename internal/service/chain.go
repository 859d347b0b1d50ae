package service

import "github.com/erazemk/darila/internal/limiter"

// Chain wraps core with the standard decorators. Rate limiting is skipped
// when lim is nil.
func Chain(core Items, lim *limiter.Limiter, failOpen bool) Items {
	items := core
	if lim != nil {
		items = &ItemLimiting{Items: items, Limiter: lim, FailOpen: failOpen}
	}
	items = &ItemMetrics{Items: items}
	return &ItemLogging{Items: items}
}
