// Package reliable implements best-effort acknowledged delivery on top of
// the UDP transport. A reliable send registers a waiter keyed by the
// message's MESSAGE_ID, transmits, and retransmits on a fixed schedule
// until the matching ACK resolves the waiter or the attempt budget runs
// out. There is no backoff and no infinite retry; exhaustion is reported to
// the caller and the message is forgotten.
package reliable

import (
	"context"
	"errors"
	"net"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/lsnp-net/lsnp/limits"
	"github.com/lsnp-net/lsnp/transport"
)

var (
	// ErrNotAcknowledged indicates every attempt timed out without an ACK.
	ErrNotAcknowledged = errors.New("message not acknowledged")

	// ErrMissingMessageID indicates a reliable send without an ID to wait on.
	ErrMissingMessageID = errors.New("missing message id")
)

// Waiters tracks in-flight reliable sends by MESSAGE_ID. Resolution closes
// the waiter's channel, waking every blocked sender for that ID at once.
type Waiters struct {
	mu      sync.Mutex
	pending map[string]chan struct{}
}

// NewWaiters creates an empty waiter registry.
func NewWaiters() *Waiters {
	return &Waiters{pending: make(map[string]chan struct{})}
}

// Register creates (or joins) the waiter for id and returns its channel.
func (w *Waiters) Register(id string) <-chan struct{} {
	w.mu.Lock()
	defer w.mu.Unlock()
	ch, ok := w.pending[id]
	if !ok {
		ch = make(chan struct{})
		w.pending[id] = ch
	}
	return ch
}

// Resolve marks id acknowledged. Reports whether a waiter existed; ACKs for
// unknown or already-resolved IDs are no-ops, which makes duplicate ACKs
// harmless.
func (w *Waiters) Resolve(id string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	ch, ok := w.pending[id]
	if !ok {
		return false
	}
	delete(w.pending, id)
	close(ch)
	return true
}

// Cancel removes the waiter for id without resolving it. Safe to call after
// Resolve.
func (w *Waiters) Cancel(id string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.pending, id)
}

// Pending returns the number of unresolved waiters.
func (w *Waiters) Pending() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.pending)
}

// Sender performs blocking reliable sends. Safe for concurrent use; each
// call blocks only its own goroutine.
type Sender struct {
	transport transport.Transport
	waiters   *Waiters
	attempts  int
	timeout   time.Duration
}

// NewSender creates a Sender with the standard retry schedule.
func NewSender(t transport.Transport, w *Waiters) *Sender {
	return &Sender{
		transport: t,
		waiters:   w,
		attempts:  limits.SendAttempts,
		timeout:   limits.AckTimeout,
	}
}

// SetRetryPolicy overrides the attempt count and per-attempt timeout.
// Invalid values are ignored.
func (s *Sender) SetRetryPolicy(attempts int, timeout time.Duration) {
	if attempts > 0 {
		s.attempts = attempts
	}
	if timeout > 0 {
		s.timeout = timeout
	}
}

// Waiters exposes the registry so the inbound path can resolve ACKs.
func (s *Sender) Waiters() *Waiters {
	return s.waiters
}

// SendReliable transmits frame to addr until the ACK for messageID arrives.
// It blocks up to attempts x timeout. A transport-level send error consumes
// the attempt but the wait still happens, since an earlier transmission may
// yet be acknowledged. Returns nil on ACK, ErrNotAcknowledged on a spent
// budget, or the context error if cancelled mid-flight.
func (s *Sender) SendReliable(ctx context.Context, frame []byte, addr net.Addr, messageID string) error {
	if messageID == "" {
		return ErrMissingMessageID
	}

	ackCh := s.waiters.Register(messageID)
	defer s.waiters.Cancel(messageID)

	for attempt := 1; attempt <= s.attempts; attempt++ {
		if err := s.transport.Send(frame, addr); err != nil {
			logrus.WithFields(logrus.Fields{
				"function":   "SendReliable",
				"message_id": messageID,
				"attempt":    attempt,
				"error":      err,
			}).Debug("Transmission failed, still waiting for ACK")
		}

		timer := time.NewTimer(s.timeout)
		select {
		case <-ackCh:
			timer.Stop()
			return nil
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}

	logrus.WithFields(logrus.Fields{
		"function":   "SendReliable",
		"message_id": messageID,
		"attempts":   s.attempts,
	}).Warn("Message never acknowledged")
	return ErrNotAcknowledged
}
