package session

import (
	"fmt"

	"solana-rent-reclaimer/internal/domain"
)

// State is the lifecycle state of a reclaim session.
type State string

const (
	StateIdle                 State = "idle"
	StateAwaitingConfirmation State = "awaiting-confirmation"
	StateAwaitingCredential   State = "awaiting-credential"
	StateProcessing           State = "processing"
	StateCompleted            State = "completed"
	StateCancelled            State = "cancelled"
	StateFailed               State = "failed"
)

// String returns the string representation of State.
func (s State) String() string {
	return string(s)
}

// IsTerminal reports whether the session has ended.
func (s State) IsTerminal() bool {
	return s == StateCompleted || s == StateCancelled || s == StateFailed
}

// Input is an event that drives a session between states.
type Input string

const (
	InputScanned            Input = "scanned"             // at least one candidate found
	InputNoCandidates       Input = "no-candidates"       // scan found nothing to close
	InputConfirmed          Input = "confirmed"           // allow-listed token received
	InputDeclined           Input = "declined"            // any other token
	InputCredentialAccepted Input = "credential-accepted" // parsed and matches the wallet
	InputCredentialRejected Input = "credential-rejected" // malformed or mismatched, attempts left
	InputAttemptsExhausted  Input = "attempts-exhausted"  // last allowed attempt rejected
	InputAnyConfirmed       Input = "batches-confirmed"   // at least one batch confirmed
	InputNoneConfirmed      Input = "batches-failed"      // no batch confirmed
	InputCancel             Input = "cancel"              // requester cancelled
	InputExpired            Input = "expired"             // idle past the session TTL
)

type edge struct {
	from  State
	input Input
}

// transitions is the complete transition table. Pairs absent from it are
// rejected with ErrInvalidTransition.
var transitions = map[edge]State{
	{StateIdle, InputScanned}:      StateAwaitingConfirmation,
	{StateIdle, InputNoCandidates}: StateCompleted,
	{StateIdle, InputCancel}:       StateCancelled,
	{StateIdle, InputExpired}:      StateCancelled,

	{StateAwaitingConfirmation, InputConfirmed}: StateAwaitingCredential,
	{StateAwaitingConfirmation, InputDeclined}:  StateCancelled,
	{StateAwaitingConfirmation, InputCancel}:    StateCancelled,
	{StateAwaitingConfirmation, InputExpired}:   StateCancelled,

	{StateAwaitingCredential, InputCredentialAccepted}: StateProcessing,
	{StateAwaitingCredential, InputCredentialRejected}: StateAwaitingCredential,
	{StateAwaitingCredential, InputAttemptsExhausted}:  StateFailed,
	{StateAwaitingCredential, InputCancel}:             StateCancelled,
	{StateAwaitingCredential, InputExpired}:            StateCancelled,

	{StateProcessing, InputAnyConfirmed}:  StateCompleted,
	{StateProcessing, InputNoneConfirmed}: StateFailed,
}

// Next returns the state reached from s on input.
func Next(s State, in Input) (State, error) {
	to, ok := transitions[edge{s, in}]
	if !ok {
		return s, fmt.Errorf("%w: %s on %s", domain.ErrInvalidTransition, s, in)
	}
	return to, nil
}
