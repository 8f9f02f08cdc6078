package peer

import (
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/srg/nearby/internal/radio"
)

// Registry owns every Record, indexed by radio handle and by peer id. It is
// not safe for concurrent use.
type Registry struct {
	byHandle map[radio.Handle]*Record
	byID     map[uuid.UUID]*Record
	logger   *logrus.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry(logger *logrus.Logger) *Registry {
	if logger == nil {
		logger = logrus.New()
	}
	return &Registry{
		byHandle: make(map[radio.Handle]*Record),
		byID:     make(map[uuid.UUID]*Record),
		logger:   logger,
	}
}

// Upsert returns the record for h, creating it with role if h is new.
// The second result reports whether the record was created.
func (r *Registry) Upsert(h radio.Handle, role Role, now time.Time) (*Record, bool) {
	if rec, ok := r.byHandle[h]; ok {
		return rec, false
	}
	rec := newRecord(h, role, now)
	r.byHandle[h] = rec
	r.byID[rec.ID] = rec

	r.logger.WithFields(logrus.Fields{
		"peer_id": rec.ID,
		"address": h,
		"role":    role,
	}).Debug("Peer registered")
	return rec, true
}

// ByHandle looks a record up by radio handle.
func (r *Registry) ByHandle(h radio.Handle) (*Record, bool) {
	rec, ok := r.byHandle[h]
	return rec, ok
}

// ByID looks a record up by peer id.
func (r *Registry) ByID(id uuid.UUID) (*Record, bool) {
	rec, ok := r.byID[id]
	return rec, ok
}

// Remove detaches the record for h and deletes it. Removing an unknown handle
// is a no-op.
func (r *Registry) Remove(h radio.Handle) {
	rec, ok := r.byHandle[h]
	if !ok {
		return
	}
	rec.Detach()
	delete(r.byHandle, h)
	delete(r.byID, rec.ID)

	r.logger.WithFields(logrus.Fields{
		"peer_id": rec.ID,
		"address": h,
	}).Debug("Peer removed")
}

// RemoveAll detaches and deletes every record.
func (r *Registry) RemoveAll() {
	for h := range r.byHandle {
		r.Remove(h)
	}
}

// Stale returns disconnected, unexpired records whose last activity is more
// than expiry before now.
func (r *Registry) Stale(now time.Time, expiry time.Duration) []*Record {
	var stale []*Record
	for _, rec := range r.byHandle {
		if rec.Expired || rec.Link != LinkDisconnected {
			continue
		}
		if now.Sub(rec.LastActivity()) > expiry {
			stale = append(stale, rec)
		}
	}
	sortByFirstSeen(stale)
	return stale
}

// Eligible returns records that want a connection and can take one: not
// expired, not in flight. Oldest first-seen first.
func (r *Registry) Eligible() []*Record {
	var eligible []*Record
	for _, rec := range r.byHandle {
		if rec.Expired || rec.InFlight() || !rec.WantsConnection {
			continue
		}
		eligible = append(eligible, rec)
	}
	sortByFirstSeen(eligible)
	return eligible
}

// InFlight counts records that are awaiting, connecting or connected.
func (r *Registry) InFlight() int {
	n := 0
	for _, rec := range r.byHandle {
		if rec.InFlight() {
			n++
		}
	}
	return n
}

// All returns every record, oldest first-seen first.
func (r *Registry) All() []*Record {
	all := make([]*Record, 0, len(r.byHandle))
	for _, rec := range r.byHandle {
		all = append(all, rec)
	}
	sortByFirstSeen(all)
	return all
}

// Len returns the number of records.
func (r *Registry) Len() int {
	return len(r.byHandle)
}

func sortByFirstSeen(recs []*Record) {
	sort.SliceStable(recs, func(i, j int) bool {
		if recs[i].FirstSeenAt.Equal(recs[j].FirstSeenAt) {
			return recs[i].Handle < recs[j].Handle
		}
		return recs[i].FirstSeenAt.Before(recs[j].FirstSeenAt)
	})
}
