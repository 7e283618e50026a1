/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package exchange

import (
	"context"
	"fmt"
)

// search finds an assignment by depth-first backtracking, trying candidate
// recipients in shuffled order. Unlike pass it is exact: if it returns an
// error wrapping ErrAssignmentExhausted without hitting the search limit,
// no valid assignment exists.
func (e *Engine) search(ctx context.Context, roster []Participant) ([]Participant, error) {
	work := reset(roster)
	steps := 0

	var place func(g int) (bool, error)
	place = func(g int) (bool, error) {
		if g == len(work) {
			return true, nil
		}

		candidates := make([]int, len(work))
		for i := range candidates {
			candidates[i] = i
		}
		e.shuffle(candidates)

		for _, c := range candidates {
			if CanGiveTo(work[g], work[c]) != nil {
				continue
			}

			steps++
			if steps%1024 == 0 {
				if err := ctx.Err(); err != nil {
					return false, fmt.Errorf("%w: search stopped after %d placements: %w",
						ErrAssignmentExhausted, steps, err)
				}
			}
			if steps > e.searchLimit {
				return false, fmt.Errorf("%w: search gave up after %d placements",
					ErrAssignmentExhausted, e.searchLimit)
			}

			commit(&work[g], &work[c])

			ok, err := place(g + 1)
			if err != nil || ok {
				return ok, err
			}

			uncommit(&work[g], &work[c])
		}

		return false, nil
	}

	ok, err := place(0)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: no valid draw exists for this roster", ErrAssignmentExhausted)
	}

	return work, nil
}
