package session

import (
	"context"
	"sync"

	"github.com/ehrlich-b/scened/internal/wireproto"
)

// slot is a mutable box for one queued envelope. Holding a pointer to the
// same slot in the channel and updating its contents in place is what lets
// Egress coalesce same-key sends without reordering or growing the queue —
// the channel position is reserved once; later same-key sends just replace
// what's behind it.
type slot struct {
	key string
	mu  sync.Mutex
	env *wireproto.Envelope
}

// Egress is one recipient's outbound queue. The actor is the sole producer
// (Send); the connection's writer goroutine is the sole consumer (Recv) —
// matching the teacher's single-producer/single-consumer Send channel per
// connection, extended here with coalescing and an explicit overload signal
// in place of silent drop-and-forget.
type Egress struct {
	ch      chan *slot
	dropped chan struct{}

	mu      sync.Mutex
	pending map[string]*slot
}

func newEgress(capacity int) *Egress {
	return &Egress{
		ch:      make(chan *slot, capacity),
		dropped: make(chan struct{}),
		pending: make(map[string]*slot),
	}
}

// Send enqueues env for delivery. key groups coalescable sends — pass ""
// for events that must never coalesce (creation, deletion, presence).
// Returns true if the queue was full and this recipient should be dropped
// with OVERLOADED; the caller is responsible for acting on that (closing
// the egress and the underlying connection).
func (e *Egress) Send(key string, env *wireproto.Envelope) (overloaded bool) {
	if key != "" {
		e.mu.Lock()
		if s, ok := e.pending[key]; ok {
			s.mu.Lock()
			s.env = env
			s.mu.Unlock()
			e.mu.Unlock()
			return false
		}
		e.mu.Unlock()
	}

	s := &slot{key: key, env: env}
	select {
	case e.ch <- s:
		if key != "" {
			e.mu.Lock()
			e.pending[key] = s
			e.mu.Unlock()
		}
		return false
	default:
		return true
	}
}

// Recv blocks for the next envelope. ok is false once the egress has been
// closed (explicit LEAVE, disconnect, or an OVERLOADED drop).
func (e *Egress) Recv(ctx context.Context) (env *wireproto.Envelope, ok bool) {
	select {
	case s, open := <-e.ch:
		if !open {
			return nil, false
		}
		// Hold e.mu across the read and the pending removal so a same-key
		// Send cannot update this slot after its envelope has been taken.
		e.mu.Lock()
		s.mu.Lock()
		env = s.env
		s.mu.Unlock()
		if s.key != "" && e.pending[s.key] == s {
			delete(e.pending, s.key)
		}
		e.mu.Unlock()
		return env, true
	case <-e.dropped:
		return nil, false
	case <-ctx.Done():
		return nil, false
	}
}

// Drop signals an overload close to any blocked Recv and prevents further
// delivery. Safe to call once per Egress.
func (e *Egress) Drop() {
	select {
	case <-e.dropped:
	default:
		close(e.dropped)
	}
}

// Close is the normal-path teardown for an Egress (user left on purpose).
func (e *Egress) Close() {
	close(e.ch)
}
