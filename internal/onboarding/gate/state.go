// Package gate decides whether the rest of the application is usable for a
// user while onboarding is incomplete, and drives the step flow.
package gate

import (
	"fmt"

	"github.com/smallbiznis/launchpad/internal/onboarding/domain"
)

type State string

const (
	StateUninitialized  State = "uninitialized"
	StateCheckingRemote State = "checking-remote"
	StateBanner         State = "banner-not-started"
	StateModal          State = "modal-in-progress"
	StateReadOnly       State = "readonly-deferred"
	StateHidden         State = "hidden-completed"
)

var allowedTransitions = map[State][]State{
	StateUninitialized:  {StateCheckingRemote},
	StateCheckingRemote: {StateBanner, StateModal, StateReadOnly, StateHidden},
	StateBanner:         {StateModal, StateReadOnly, StateBanner},
	StateModal:          {StateReadOnly, StateHidden, StateBanner},
	StateReadOnly:       {StateModal, StateBanner},
	StateHidden:         {},
}

// CanTransition reports whether the gate may move from one state to another.
func CanTransition(from, to State) bool {
	for _, allowed := range allowedTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

func validateTransition(from, to State) error {
	if !CanTransition(from, to) {
		return fmt.Errorf("%w: %s -> %s", domain.ErrInvalidTransition, from, to)
	}
	return nil
}

// stateForStatus maps a stored status to the state shown after a check.
func stateForStatus(status domain.Status) State {
	switch status {
	case domain.StatusInProgress:
		return StateModal
	case domain.StatusDeferred:
		return StateReadOnly
	case domain.StatusCompleted:
		return StateHidden
	default:
		return StateBanner
	}
}
