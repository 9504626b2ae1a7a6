/*
Package sessions records capture sessions and fans out the post-write event.

FLOW:
  Record validates the request, enforces the daily seconds cap, appends
  the session and hands a SessionCreated event to the Dispatcher. Once the
  session is stored the write is never failed retroactively: handler
  failures are retried a bounded number of times and then logged.

DISPATCH:
  Handlers run synchronously in registration order. The Dispatcher is the
  seam where a durable queue could be inserted; handlers only see the
  event, never the write path.

SEE ALSO:
  - challenges/tracker.go: The progress handler
*/
package sessions

import (
	"context"
	"log"
	"time"

	"github.com/warp/capture-engine/engine"
)

// Handler reacts to a persisted session. Returning an error signals that
// nothing was mutated and the call may be retried.
type Handler interface {
	HandleSessionCreated(ctx context.Context, s engine.Session) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, s engine.Session) error

func (f HandlerFunc) HandleSessionCreated(ctx context.Context, s engine.Session) error {
	return f(ctx, s)
}

type Dispatcher struct {
	handlers    []Handler
	MaxAttempts int
	Backoff     time.Duration
}

func NewDispatcher(handlers ...Handler) *Dispatcher {
	return &Dispatcher{handlers: handlers, MaxAttempts: 3, Backoff: 50 * time.Millisecond}
}

// Register appends a handler.
func (d *Dispatcher) Register(h Handler) {
	d.handlers = append(d.handlers, h)
}

// Dispatch delivers the event to every handler. It never returns an error;
// the returned count is the number of handlers that gave up.
func (d *Dispatcher) Dispatch(ctx context.Context, s engine.Session) int {
	failed := 0
	for _, h := range d.handlers {
		if err := d.deliver(ctx, h, s); err != nil {
			failed++
			log.Printf("[Sessions] Handler failed for session %s: %v", s.ID, err)
		}
	}
	return failed
}

func (d *Dispatcher) deliver(ctx context.Context, h Handler, s engine.Session) error {
	attempts := d.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	var err error
	for i := 1; i <= attempts; i++ {
		if err = h.HandleSessionCreated(ctx, s); err == nil {
			return nil
		}
		if !engine.IsRetryable(err) || i == attempts {
			break
		}
		log.Printf("[Sessions] Retrying session %s (attempt %d/%d): %v", s.ID, i, attempts, err)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(d.Backoff * time.Duration(i)):
		}
	}
	return err
}
