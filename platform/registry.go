package platform

import (
	"context"
	"fmt"
	"sync"

	"github.com/puzpuzpuz/xsync/v3"
)

// Single-resolution future. The first caller of Do runs the function; concurrent callers wait for its result. A successful result is kept forever. A failure is returned to everybody waiting on that attempt, then cleared so a later call can try again.
type Gate[T any] struct {
	lk       sync.Mutex
	pending  *gateCall[T]
	resolved bool
	val      T
}

type gateCall[T any] struct {
	done chan struct{}
	val  T
	err  error
}

func (g *Gate[T]) Do(ctx context.Context, fn func(ctx context.Context) (T, error)) (T, error) {
	g.lk.Lock()
	if g.resolved {
		v := g.val
		g.lk.Unlock()
		return v, nil
	}
	if call := g.pending; call != nil {
		g.lk.Unlock()
		gateCoalesced.Inc()
		select {
		case <-call.done:
			return call.val, call.err
		case <-ctx.Done():
			var zero T
			return zero, ctx.Err()
		}
	}
	call := &gateCall[T]{done: make(chan struct{})}
	g.pending = call
	g.lk.Unlock()

	g.run(ctx, call, fn)
	return call.val, call.err
}

// Runs fn for a pending call and settles it. A panic in fn fails the attempt like any other error, so waiters are released and a later call can retry.
func (g *Gate[T]) run(ctx context.Context, call *gateCall[T], fn func(ctx context.Context) (T, error)) {
	defer func() {
		if r := recover(); r != nil {
			var zero T
			call.val = zero
			call.err = fmt.Errorf("panic in gated call: %v", r)
		}
		g.lk.Lock()
		g.pending = nil
		if call.err == nil {
			g.resolved = true
			g.val = call.val
		}
		g.lk.Unlock()
		close(call.done)
	}()
	call.val, call.err = fn(ctx)
}

// Whether a successful result is held.
func (g *Gate[T]) Resolved() bool {
	g.lk.Lock()
	defer g.lk.Unlock()
	return g.resolved
}

// Holds one platform session per account, shared by everything acting as that account.
type Registry struct {
	sessions *xsync.MapOf[string, *Gate[API]]
	login    func(ctx context.Context, config LoginConfig) (API, error)
}

func NewRegistry() *Registry {
	return &Registry{
		sessions: xsync.NewMapOf[string, *Gate[API]](),
		login: func(ctx context.Context, config LoginConfig) (API, error) {
			c, err := Login(ctx, config)
			if err != nil {
				return nil, err
			}
			return c, nil
		},
	}
}

// Registry which creates sessions using the provided function instead of a network login.
func NewRegistryWithLogin(login func(ctx context.Context, config LoginConfig) (API, error)) *Registry {
	r := NewRegistry()
	r.login = login
	return r
}

// Returns the session for the configured account, logging in if there isn't one yet.
func (r *Registry) Session(ctx context.Context, config LoginConfig) (API, error) {
	gate, _ := r.sessions.LoadOrCompute(config.Identifier, func() *Gate[API] {
		return &Gate[API]{}
	})
	return gate.Do(ctx, func(ctx context.Context) (API, error) {
		return r.login(ctx, config)
	})
}
