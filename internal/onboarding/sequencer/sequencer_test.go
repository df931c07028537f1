package sequencer

import (
	"context"
	"math/rand"
	"testing"

	"github.com/smallbiznis/launchpad/internal/onboarding/domain"
	"github.com/stretchr/testify/assert"
)

func TestIndexStaysInBounds(t *testing.T) {
	ctx := context.Background()
	rng := rand.New(rand.NewSource(7))

	for run := 0; run < 50; run++ {
		seq := New(domain.Steps, rng.Intn(20)-10, nil)
		for i := 0; i < 200; i++ {
			if rng.Intn(2) == 0 {
				seq.Advance(ctx)
			} else {
				seq.Retreat(ctx)
			}
			assert.GreaterOrEqual(t, seq.Index(), 0)
			assert.LessOrEqual(t, seq.Index(), seq.Total()-1)
		}
	}
}

func TestEveryCallPersists(t *testing.T) {
	ctx := context.Background()
	var persisted []int
	seq := New(domain.Steps, 0, func(_ context.Context, index int) {
		persisted = append(persisted, index)
	})

	seq.Retreat(ctx)
	seq.Advance(ctx)
	seq.Advance(ctx)
	seq.Jump(ctx, 100)
	seq.Advance(ctx)

	assert.Equal(t, []int{0, 1, 2, 5, 5}, persisted)
	assert.True(t, seq.IsLast())
	assert.Equal(t, domain.StepFinalConfirmation, seq.Current())
}

func TestProgressFraction(t *testing.T) {
	seq := New(domain.Steps, 0, nil)
	assert.InDelta(t, 1.0/6.0, seq.ProgressFraction(), 1e-9)
	assert.Equal(t, domain.StepVerifyEmail, seq.Current())

	seq.Jump(context.Background(), 5)
	assert.InDelta(t, 1.0, seq.ProgressFraction(), 1e-9)

	empty := New(nil, 3, nil)
	assert.Equal(t, 0, empty.Index())
	assert.Equal(t, domain.StepID(""), empty.Current())
	assert.Zero(t, empty.ProgressFraction())
}
