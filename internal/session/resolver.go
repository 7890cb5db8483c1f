package session

import (
	"context"
	"errors"
)

// Resolver finds the credential for outbound calls. The in-memory context
// is the fast path; when it is empty the durable store is consulted and a
// hit is copied back into the context so later calls stay in memory.
type Resolver struct {
	Session *Context
	Durable DurableStore
	Key     string
}

// Resolve returns the current token, or "" when there is none.
func (r *Resolver) Resolve(ctx context.Context) (string, error) {
	if tok := r.Session.Token(); tok != "" {
		return tok, nil
	}
	if r.Durable == nil || r.Key == "" {
		return "", nil
	}
	s, err := r.Durable.Load(ctx, r.Key)
	if errors.Is(err, ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	// A concurrent login may have landed while we were loading.
	if tok := r.Session.Token(); tok != "" {
		return tok, nil
	}
	r.Session.SetAuth(s.Token, s.Identity)
	return r.Session.Token(), nil
}

// Establish records a fresh login in memory and in the durable store.
func (r *Resolver) Establish(ctx context.Context, s Session) error {
	r.Session.SetAuth(s.Token, s.Identity)
	if r.Durable == nil || r.Key == "" {
		return nil
	}
	return r.Durable.Save(ctx, r.Key, r.Session.Snapshot())
}

// Terminate clears the session in memory and in the durable store.
func (r *Resolver) Terminate(ctx context.Context) error {
	r.Session.Logout()
	if r.Durable == nil || r.Key == "" {
		return nil
	}
	return r.Durable.Delete(ctx, r.Key)
}

func (r *Resolver) Generation() uint64 {
	return r.Session.Generation()
}

// TerminateIf clears the session only if it was not replaced since gen was
// observed, removing the durable copy as well.
func (r *Resolver) TerminateIf(ctx context.Context, gen uint64) (bool, error) {
	if !r.Session.LogoutIf(gen) {
		return false, nil
	}
	if r.Durable == nil || r.Key == "" {
		return true, nil
	}
	return true, r.Durable.Delete(ctx, r.Key)
}
