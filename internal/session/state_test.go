package session

import (
	"errors"
	"testing"

	"solana-rent-reclaimer/internal/domain"
)

func TestNext_DeclaredTransitions(t *testing.T) {
	tests := []struct {
		from State
		in   Input
		want State
	}{
		{StateIdle, InputScanned, StateAwaitingConfirmation},
		{StateIdle, InputNoCandidates, StateCompleted},
		{StateAwaitingConfirmation, InputConfirmed, StateAwaitingCredential},
		{StateAwaitingConfirmation, InputDeclined, StateCancelled},
		{StateAwaitingCredential, InputCredentialRejected, StateAwaitingCredential},
		{StateAwaitingCredential, InputAttemptsExhausted, StateFailed},
		{StateAwaitingCredential, InputCredentialAccepted, StateProcessing},
		{StateAwaitingCredential, InputCancel, StateCancelled},
		{StateProcessing, InputAnyConfirmed, StateCompleted},
		{StateProcessing, InputNoneConfirmed, StateFailed},
	}

	for _, tt := range tests {
		got, err := Next(tt.from, tt.in)
		if err != nil {
			t.Errorf("Next(%s, %s) unexpected error: %v", tt.from, tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("Next(%s, %s) = %s, want %s", tt.from, tt.in, got, tt.want)
		}
	}
}

func TestNext_UndeclaredTransitions(t *testing.T) {
	tests := []struct {
		from State
		in   Input
	}{
		{StateIdle, InputConfirmed},
		{StateAwaitingConfirmation, InputCredentialAccepted},
		{StateProcessing, InputCancel},
		{StateProcessing, InputExpired},
		{StateCompleted, InputCancel},
		{StateCancelled, InputConfirmed},
		{StateFailed, InputScanned},
	}

	for _, tt := range tests {
		got, err := Next(tt.from, tt.in)
		if !errors.Is(err, domain.ErrInvalidTransition) {
			t.Errorf("Next(%s, %s) error = %v, want ErrInvalidTransition", tt.from, tt.in, err)
		}
		if got != tt.from {
			t.Errorf("Next(%s, %s) moved to %s", tt.from, tt.in, got)
		}
	}
}

func TestTerminalStatesHaveNoExits(t *testing.T) {
	for e := range transitions {
		if e.from.IsTerminal() {
			t.Errorf("terminal state %s has outgoing transition on %s", e.from, e.input)
		}
	}
}

func TestProcessingOnlyReachedFromCredential(t *testing.T) {
	for e, to := range transitions {
		if to == StateProcessing && (e.from != StateAwaitingCredential || e.input != InputCredentialAccepted) {
			t.Errorf("processing reachable via %s on %s", e.from, e.input)
		}
	}
}
