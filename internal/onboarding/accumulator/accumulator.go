// Package accumulator merges per-step results into one growing data bag.
package accumulator

import (
	"context"

	"github.com/smallbiznis/launchpad/internal/onboarding/domain"
)

type PersistFunc func(ctx context.Context, data domain.Data)

// Accumulator only grows by shallow merge; keys are never deleted
// individually.
type Accumulator struct {
	data    domain.Data
	persist PersistFunc
}

func New(initial domain.Data, persist PersistFunc) *Accumulator {
	if persist == nil {
		persist = func(context.Context, domain.Data) {}
	}
	return &Accumulator{data: initial.Clone(), persist: persist}
}

// Update stores {...previous, ...patch}, persists it and returns a copy.
func (a *Accumulator) Update(ctx context.Context, patch domain.Data) domain.Data {
	a.data = a.data.Merge(patch)
	a.persist(ctx, a.data.Clone())
	return a.data.Clone()
}

func (a *Accumulator) Value() domain.Data {
	return a.data.Clone()
}

// Reset empties the bag without persisting; callers clear the store.
func (a *Accumulator) Reset() {
	a.data = domain.Data{}
}
