/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package exchange

import (
	"context"
	"fmt"
	"math/rand/v2"
)

// Engine computes assignments for rosters. The zero value is not usable;
// build one with NewEngine.
type Engine struct {
	maxAttempts int
	fallback    bool
	searchLimit int
	rng         *rand.Rand
}

// Stats describes how a draw was reached.
type Stats struct {
	// Attempts is the number of randomized passes run.
	Attempts int
	// Fallback is true when the backtracking search ran.
	Fallback bool
}

func NewEngine(opts ...Option) *Engine {
	e := &Engine{
		maxAttempts: DefaultMaxAttempts,
		fallback:    true,
		searchLimit: DefaultSearchLimit,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Assign is shorthand for NewEngine(opts...).Assign(r).
func Assign(r *Roster, opts ...Option) ([]Participant, error) {
	return NewEngine(opts...).Assign(r)
}

// Assign draws a full assignment for r. The result holds every participant
// in roster order with GivingTo and ReceivingFrom set. On failure no partial
// result is returned and the error wraps ErrAssignmentExhausted.
func (e *Engine) Assign(r *Roster) ([]Participant, error) {
	result, _, err := e.AssignWithStats(r)
	return result, err
}

// AssignWithStats is Assign that also reports how the draw was reached.
// With WithMaxAttempts(0) and an infeasible roster it never returns; use
// AssignContext when the draw must be stoppable.
func (e *Engine) AssignWithStats(r *Roster) ([]Participant, Stats, error) {
	return e.AssignContext(context.Background(), r)
}

// AssignContext is AssignWithStats bounded by ctx. Cancellation is checked
// between passes and periodically during the fallback search; the returned
// error then wraps both ErrAssignmentExhausted and ctx.Err().
func (e *Engine) AssignContext(ctx context.Context, r *Roster) ([]Participant, Stats, error) {
	var stats Stats

	roster := r.Participants()
	if len(roster) < 2 {
		return nil, stats, fmt.Errorf("%w: need at least 2 participants, have %d",
			ErrAssignmentExhausted, len(roster))
	}

	for e.maxAttempts == 0 || stats.Attempts < e.maxAttempts {
		if err := ctx.Err(); err != nil {
			return nil, stats, fmt.Errorf("%w: stopped after %d attempts: %w",
				ErrAssignmentExhausted, stats.Attempts, err)
		}

		stats.Attempts++

		if work, ok := e.pass(roster); ok {
			return finish(roster, work), stats, nil
		}
	}

	if e.fallback {
		stats.Fallback = true

		work, err := e.search(ctx, roster)
		if err != nil {
			return nil, stats, err
		}
		return finish(roster, work), stats, nil
	}

	return nil, stats, fmt.Errorf("%w: no valid draw after %d attempts",
		ErrAssignmentExhausted, stats.Attempts)
}

// pass runs one randomized greedy draw over a fresh copy of roster.
func (e *Engine) pass(roster []Participant) ([]Participant, bool) {
	work := reset(roster)
	candidates := make([]int, len(work))

	for g := range work {
		if work[g].GivingTo != "" {
			continue
		}

		for i := range candidates {
			candidates[i] = i
		}
		e.shuffle(candidates)

		drawn := false
		for _, c := range candidates {
			if CanGiveTo(work[g], work[c]) != nil {
				continue
			}
			commit(&work[g], &work[c])
			drawn = true
			break
		}

		if !drawn {
			return nil, false
		}
	}

	return work, true
}

func (e *Engine) shuffle(s []int) {
	swap := func(i, j int) {
		s[i], s[j] = s[j], s[i]
	}
	if e.rng != nil {
		e.rng.Shuffle(len(s), swap)
		return
	}
	rand.Shuffle(len(s), swap)
}

// commit records that giver gives to recipient. The recipient also excludes
// the giver for the rest of the draw so the pair cannot swap gifts.
func commit(giver, recipient *Participant) {
	giver.GivingTo = recipient.Name
	recipient.ReceivingFrom = giver.Name
	recipient.Excluding = append(recipient.Excluding, giver.Name)
	recipient.Drawn = true
}

// uncommit reverts the most recent commit between giver and recipient.
func uncommit(giver, recipient *Participant) {
	giver.GivingTo = ""
	recipient.ReceivingFrom = ""
	recipient.Excluding = recipient.Excluding[:len(recipient.Excluding)-1]
	recipient.Drawn = false
}

func reset(roster []Participant) []Participant {
	work := make([]Participant, len(roster))
	for i, p := range roster {
		work[i] = p.Clone()
		work[i].Reset()
	}
	return work
}

// finish restores the exclusions callers supplied; the reverse exclusions
// added by commit only matter during a draw.
func finish(roster, work []Participant) []Participant {
	for i := range work {
		work[i].Excluding = roster[i].Clone().Excluding
	}
	return work
}
