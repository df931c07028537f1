// Package sequencer tracks the current position in the linear step list.
package sequencer

import (
	"context"

	"github.com/smallbiznis/launchpad/internal/onboarding/domain"
)

// PersistFunc mirrors the new index to durable storage.
type PersistFunc func(ctx context.Context, index int)

// Sequencer holds a clamped index into an ordered step list. Every
// mutating call persists the resulting index before returning.
type Sequencer struct {
	steps   []domain.StepID
	index   int
	persist PersistFunc
}

func New(steps []domain.StepID, index int, persist PersistFunc) *Sequencer {
	if persist == nil {
		persist = func(context.Context, int) {}
	}
	owned := make([]domain.StepID, len(steps))
	copy(owned, steps)
	return &Sequencer{
		steps:   owned,
		index:   domain.ClampIndex(index, len(owned)),
		persist: persist,
	}
}

func (s *Sequencer) Advance(ctx context.Context) int {
	return s.Jump(ctx, s.index+1)
}

func (s *Sequencer) Retreat(ctx context.Context) int {
	return s.Jump(ctx, s.index-1)
}

// Jump moves to index, clamped to the step bounds.
func (s *Sequencer) Jump(ctx context.Context, index int) int {
	s.index = domain.ClampIndex(index, len(s.steps))
	s.persist(ctx, s.index)
	return s.index
}

func (s *Sequencer) Index() int {
	return s.index
}

func (s *Sequencer) Current() domain.StepID {
	if len(s.steps) == 0 {
		return ""
	}
	return s.steps[s.index]
}

func (s *Sequencer) Total() int {
	return len(s.steps)
}

func (s *Sequencer) IsLast() bool {
	return s.index == len(s.steps)-1
}

// ProgressFraction is (index+1)/total.
func (s *Sequencer) ProgressFraction() float64 {
	if len(s.steps) == 0 {
		return 0
	}
	return float64(s.index+1) / float64(len(s.steps))
}
