package solana

import "context"

// SignatureWatcher delivers confirmation notifications for submitted signatures.
type SignatureWatcher interface {
	// SubscribeSignature registers interest in signature reaching commitment.
	// The returned channel receives at most one notification and is closed
	// when the subscription ends or the watcher is closed.
	SubscribeSignature(ctx context.Context, signature, commitment string) (<-chan SignatureNotification, error)

	// Close closes the WebSocket connection.
	Close() error
}

// SignatureNotification is the payload of a signatureNotification message.
type SignatureNotification struct {
	Signature string
	Slot      int64
	Err       interface{}
}

// Failed reports whether the transaction landed with an error.
func (n SignatureNotification) Failed() bool {
	return n.Err != nil
}
