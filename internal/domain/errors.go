package domain

import "errors"

// Reclamation errors. Callers match them with errors.Is; lower layers wrap
// them with context using %w.
var (
	// ErrInvalidAddressFormat is returned for a wallet address that is not a
	// base58 encoded ed25519 public key. User-correctable.
	ErrInvalidAddressFormat = errors.New("invalid address format")

	// ErrNetwork is returned when the ledger could not be reached or answered
	// with a transport-level failure. Retried with backoff at the scan layer only.
	ErrNetwork = errors.New("network error")

	// ErrNoReclaimableAccounts marks a scan that found nothing to close.
	// It is informational: a valid zero-candidate result, not a failure.
	ErrNoReclaimableAccounts = errors.New("no reclaimable accounts")

	// ErrCredentialFormat is returned for secret key material that cannot be decoded.
	ErrCredentialFormat = errors.New("malformed credential")

	// ErrCredentialWalletMismatch is returned when the public key derived from a
	// credential differs from the session wallet. No instruction is ever sent.
	ErrCredentialWalletMismatch = errors.New("credential does not match wallet")

	// ErrPartialBatchFailure is returned when some batches confirmed and some did not.
	ErrPartialBatchFailure = errors.New("partial batch failure")

	// ErrTimeout is returned when a batch confirmation was not observed in time.
	// The signature is retained for manual follow-up.
	ErrTimeout = errors.New("confirmation timeout")

	// ErrForeignCandidate is returned when a candidate is not owned by the wallet
	// the batches are being built for.
	ErrForeignCandidate = errors.New("candidate owned by another wallet")

	// ErrInvalidTransition is returned for an input the session state machine
	// does not declare for its current state.
	ErrInvalidTransition = errors.New("invalid session transition")

	// ErrSessionNotFound is returned when the requester has no live session.
	ErrSessionNotFound = errors.New("session not found")

	// ErrSessionBusy is returned when a requester already has a session in progress.
	ErrSessionBusy = errors.New("session busy")

	// ErrNotCancellable is returned when cancellation is requested after
	// submission has begun. Submitted transactions cannot be recalled.
	ErrNotCancellable = errors.New("session can no longer be cancelled")
)

// ErrReclaimFailed is returned when no batch of a reclamation confirmed.
var ErrReclaimFailed = errors.New("no batch confirmed")
