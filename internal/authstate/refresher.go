package authstate

import (
	"context"
	"time"

	"golang.org/x/sync/singleflight"
)

// Credentials is the material produced by an authorization flow or a token
// refresh. ExpiresAt nil means a non-expiring credential.
type Credentials struct {
	Secrets   map[string]string
	ExpiresAt *time.Time
}

// RefreshFunc performs one credential refresh against the provider.
type RefreshFunc func() (Credentials, error)

// Refresher serializes credential refreshes per binding: concurrent
// dispatches that observe an expiring token share a single in-flight
// refresh instead of each triggering their own.
type Refresher struct {
	group singleflight.Group
}

// NewRefresher creates a Refresher.
func NewRefresher() *Refresher {
	return &Refresher{}
}

// Do runs fn for the given binding key, deduplicating concurrent calls.
// Waiters that are cancelled stop waiting, but the in-flight refresh runs
// to completion so other waiters still receive its result.
func (r *Refresher) Do(ctx context.Context, bindingID string, fn RefreshFunc) (Credentials, error) {
	ch := r.group.DoChan(bindingID, func() (any, error) {
		return fn()
	})
	select {
	case res := <-ch:
		if res.Err != nil {
			return Credentials{}, res.Err
		}
		return res.Val.(Credentials), nil
	case <-ctx.Done():
		return Credentials{}, ctx.Err()
	}
}
