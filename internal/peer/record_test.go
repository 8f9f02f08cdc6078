package peer

import (
	"testing"
	"time"

	"github.com/srg/nearby/internal/timing"
	"github.com/stretchr/testify/assert"
)

func TestArmTimeoutNeverStacks(t *testing.T) {
	rec := newRecord("AA:00", RoleReader, time.Unix(0, 0))
	cancelled := 0
	var seqs []uint64
	arm := func(seq uint64) timing.CancelFunc {
		seqs = append(seqs, seq)
		return func() { cancelled++ }
	}

	rec.ArmTimeout(arm)
	rec.ArmTimeout(arm)

	assert.Equal(t, 1, cancelled, "re-arming MUST cancel the previous timer")
	assert.False(t, rec.IsCurrentTimeout(seqs[0]), "superseded timer MUST NOT be current")
	assert.True(t, rec.IsCurrentTimeout(seqs[1]))

	rec.CancelTimeout()
	assert.Equal(t, 2, cancelled)
	assert.False(t, rec.IsCurrentTimeout(seqs[1]), "cancelled timer MUST NOT be current")
}

func TestLingerAndDetach(t *testing.T) {
	rec := newRecord("AA:01", RoleWriter, time.Unix(0, 0))
	var seq uint64
	rec.ArmLinger(func(s uint64) timing.CancelFunc {
		seq = s
		return func() {}
	})
	rec.Link = LinkConnected
	rec.AwaitingConnection = true

	assert.True(t, rec.IsCurrentLinger(seq))
	assert.True(t, rec.HasPendingTimers())

	rec.Detach()
	assert.False(t, rec.IsCurrentLinger(seq))
	assert.False(t, rec.HasPendingTimers())
	assert.False(t, rec.InFlight(), "detached record MUST NOT hold a slot")
}

func TestLastActivity(t *testing.T) {
	first := time.Unix(100, 0)
	rec := newRecord("AA:02", RoleReader, first)
	assert.Equal(t, first, rec.LastActivity())

	rec.Seen(first.Add(time.Minute))
	assert.Equal(t, first.Add(time.Minute), rec.LastActivity())
}

func TestSnapshotCopiesPayload(t *testing.T) {
	rec := newRecord("AA:03", RoleReader, time.Unix(0, 0))
	rec.Expire()
	snap := rec.Snapshot()
	assert.True(t, snap.Expired)
	assert.Nil(t, snap.Payload)
	assert.Equal(t, rec.ID, snap.ID)
}
