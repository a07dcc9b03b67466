package engine

import (
	"errors"
	"fmt"
)

// PassBudget bounds the fixed-point passes of one poll cycle.
//
// Propagation over a dependency cycle can keep flagging instances dirty.
// The budget stops such a cycle; the remaining work carries over to the
// next one, so the runtime degrades to one step per cycle instead of
// spinning.
type PassBudget struct {
	maxPasses int
	current   int
}

// NewPassBudget creates a budget allowing maxPasses passes.
func NewPassBudget(maxPasses int) *PassBudget {
	return &PassBudget{maxPasses: maxPasses}
}

// Check counts one pass and fails once the budget is exceeded.
func (b *PassBudget) Check(cycle int64) error {
	b.current++
	if b.current > b.maxPasses {
		return &BudgetExceededError{
			Cycle:  cycle,
			Passes: b.current,
			Limit:  b.maxPasses,
		}
	}
	return nil
}

// Reset clears the counter for a new cycle.
func (b *PassBudget) Reset() {
	b.current = 0
}

// Current returns the passes counted so far.
func (b *PassBudget) Current() int {
	return b.current
}

// MaxPasses returns the limit.
func (b *PassBudget) MaxPasses() int {
	return b.maxPasses
}

// BudgetExceededError is returned by PollOnce when a cycle did not reach a
// fixed point within its pass budget.
type BudgetExceededError struct {
	Cycle  int64
	Passes int
	Limit  int
}

func (e *BudgetExceededError) Error() string {
	return fmt.Sprintf("poll cycle %d did not settle: %d passes > %d limit", e.Cycle, e.Passes, e.Limit)
}

// IsBudgetExceeded reports whether err is a BudgetExceededError.
func IsBudgetExceeded(err error) bool {
	var be *BudgetExceededError
	return errors.As(err, &be)
}
