package queue

import "context"

// notifier is a single slot, level triggered wake signal.
// Signal on an already signaled notifier is a no-op, so a wake-up arriving
// while the consumer is busy stays set until the next Wait. A stale signal
// makes the consumer re-check an empty queue once, which is harmless.
type notifier struct {
	ch chan struct{}
}

func newNotifier() *notifier {
	return &notifier{ch: make(chan struct{}, 1)}
}

// Signal marks work available. Never blocks.
func (n *notifier) Signal() {
	select {
	case n.ch <- struct{}{}:
	default:
	}
}

// Wait blocks until signaled or ctx is done. Consumes the signal.
func (n *notifier) Wait(ctx context.Context) error {
	select {
	case <-n.ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Clear drops a pending signal if there is one.
func (n *notifier) Clear() {
	select {
	case <-n.ch:
	default:
	}
}
