// Package dedup decides whether a peer is worth connecting to, given the
// payload identity it presented and how recently that identity was handled.
package dedup

import (
	"time"

	"github.com/srg/nearby/internal/expiring"
	"github.com/srg/nearby/internal/payload"
)

// DefaultCooldown is the window during which a seen identity is not reconnected.
const DefaultCooldown = time.Minute

// IdentityFunc extracts the stable identity of a payload.
type IdentityFunc func(payload.Payload) string

// Filter is a per-identity cooldown on top of an expiring cache. Like the
// cache, it is owned by the work queue and not safe for concurrent use.
type Filter struct {
	identity IdentityFunc
	seen     *expiring.Cache[string, time.Time]
	now      func() time.Time
}

// NewFilter creates a filter. A zero cooldown means DefaultCooldown; a nil
// identity function means payload.IdentityKey.
func NewFilter(cooldown time.Duration, identity IdentityFunc, now func() time.Time) *Filter {
	if cooldown <= 0 {
		cooldown = DefaultCooldown
	}
	if identity == nil {
		identity = payload.IdentityKey
	}
	if now == nil {
		now = time.Now
	}
	return &Filter{
		identity: identity,
		seen:     expiring.New[string, time.Time](cooldown, now),
		now:      now,
	}
}

// ShouldConnect reports whether a connection is still worth doing. An unknown
// payload always warrants a connection. A known identity is let through at
// most once per cooldown window; letting it through starts a new window.
func (f *Filter) ShouldConnect(p *payload.Payload) bool {
	if p == nil {
		return true
	}
	key := f.identity(*p)
	if _, fresh := f.seen.Get(key); fresh {
		return false
	}
	f.seen.Set(key, f.now())
	return true
}

// NoteIdentitySeen starts a new cooldown window for p's identity.
func (f *Filter) NoteIdentitySeen(p payload.Payload) {
	f.seen.Set(f.identity(p), f.now())
}

// LastSeen returns when p's identity last started a cooldown window, if that
// window is still open.
func (f *Filter) LastSeen(p payload.Payload) (time.Time, bool) {
	return f.seen.Get(f.identity(p))
}

// RemoveExpired purges identities whose cooldown ended.
func (f *Filter) RemoveExpired() int {
	return f.seen.RemoveExpired()
}

// RemoveAll forgets every identity.
func (f *Filter) RemoveAll() {
	f.seen.RemoveAll()
}
