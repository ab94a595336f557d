package services

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Ticket tags an in-flight fetch with the parameters it was issued for.
type Ticket struct {
	ID     string
	Scope  string
	Params string
}

// RequestTracker remembers the latest ticket per scope (a view or resource
// kind). A response whose ticket is no longer current belongs to a superseded
// request and must be discarded rather than applied.
type RequestTracker struct {
	mu      sync.Mutex
	current map[string]Ticket
}

// NewRequestTracker returns an empty tracker.
func NewRequestTracker() *RequestTracker {
	return &RequestTracker{current: map[string]Ticket{}}
}

// Begin issues a ticket for scope with params and makes it current,
// superseding any earlier ticket for the same scope.
func (t *RequestTracker) Begin(scope, params string) Ticket {
	tk := Ticket{ID: uuid.NewString(), Scope: scope, Params: params}
	t.mu.Lock()
	t.current[scope] = tk
	t.mu.Unlock()
	return tk
}

// Current reports whether tk still matches the latest intent of its scope:
// the latest ticket issued for the scope asks for the same params.
func (t *RequestTracker) Current(tk Ticket) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	cur, ok := t.current[tk.Scope]
	return ok && cur.Params == tk.Params
}

// Finish settles tk, returning ErrSuperseded when a newer ticket for the
// same scope asks for different params. The latest ticket stays recorded, so
// an overlapping request for the same params settles cleanly whichever of
// the two finishes first.
func (t *RequestTracker) Finish(tk Ticket) error {
	if !t.Current(tk) {
		return ErrSuperseded
	}
	return nil
}

// WithTimeout races fetch against d. The fallback value is returned, with
// false, when fetch fails or does not finish in time; fetch's context is
// cancelled either way.
func WithTimeout[T any](ctx context.Context, d time.Duration, fetch func(context.Context) (T, error), fallback func() T) (T, bool) {
	ctx, cancel := context.WithTimeout(ctx, d)
	defer cancel()

	type result struct {
		v   T
		err error
	}
	ch := make(chan result, 1)
	go func() {
		v, err := fetch(ctx)
		ch <- result{v, err}
	}()

	select {
	case r := <-ch:
		if r.err == nil {
			return r.v, true
		}
	case <-ctx.Done():
	}
	return fallback(), false
}
