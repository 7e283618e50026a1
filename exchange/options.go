/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package exchange

import "math/rand/v2"

const (
	// DefaultMaxAttempts bounds the number of randomized passes per draw.
	DefaultMaxAttempts = 1000

	// DefaultSearchLimit bounds the number of placements the fallback
	// search may try before giving up.
	DefaultSearchLimit = 1_000_000
)

// Option configures an Engine.
type Option func(*Engine)

// WithMaxAttempts sets how many randomized passes are tried before the draw
// is considered exhausted. Zero removes the bound entirely, in which case an
// infeasible roster of two or more participants only returns when drawn
// through AssignContext and its context ends.
func WithMaxAttempts(n int) Option {
	return func(e *Engine) {
		if n >= 0 {
			e.maxAttempts = n
		}
	}
}

// WithFallback controls whether an exhausted draw falls back to an exact
// backtracking search over the same constraints.
func WithFallback(enabled bool) Option {
	return func(e *Engine) {
		e.fallback = enabled
	}
}

// WithSearchLimit bounds the fallback search.
func WithSearchLimit(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.searchLimit = n
		}
	}
}

// WithRand makes the engine draw its shuffles from r. A *rand.Rand is not
// safe for concurrent use, so an engine built with one must not be shared
// between goroutines.
func WithRand(r *rand.Rand) Option {
	return func(e *Engine) {
		e.rng = r
	}
}
