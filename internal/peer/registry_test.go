package peer_test

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/sirupsen/logrus"
	"github.com/srg/nearby/internal/peer"
	"github.com/srg/nearby/internal/radio"
	"github.com/srg/nearby/internal/timing"
	"github.com/stretchr/testify/suite"
)

type RegistryTestSuite struct {
	suite.Suite
	clock    *clock.Mock
	registry *peer.Registry
}

func (s *RegistryTestSuite) SetupTest() {
	s.clock = clock.NewMock()
	s.registry = peer.NewRegistry(logrus.New())
}

func (s *RegistryTestSuite) TestUpsertIsIdempotentPerHandle() {
	rec, created := s.registry.Upsert("AA:01", peer.RoleReader, s.clock.Now())
	s.True(created)

	again, created := s.registry.Upsert("AA:01", peer.RoleWriter, s.clock.Now())
	s.False(created, "known handle MUST NOT create a second record")
	s.Same(rec, again)
	s.Equal(peer.RoleReader, again.Role, "upsert MUST NOT overwrite the stored role")
	s.Equal(1, s.registry.Len())
}

func (s *RegistryTestSuite) TestLookupsAgree() {
	rec, _ := s.registry.Upsert("AA:02", peer.RoleWriter, s.clock.Now())

	byHandle, ok := s.registry.ByHandle("AA:02")
	s.Require().True(ok)
	byID, ok := s.registry.ByID(rec.ID)
	s.Require().True(ok)
	s.Same(byHandle, byID, "handle and id lookups MUST return the same record")
}

func (s *RegistryTestSuite) TestRemove() {
	s.Run("detaches timers and deletes both indexes", func() {
		rec, _ := s.registry.Upsert("AA:03", peer.RoleReader, s.clock.Now())
		var cancelled atomic.Int32
		rec.ArmTimeout(func(uint64) timing.CancelFunc { return func() { cancelled.Add(1) } })
		rec.Link = peer.LinkConnected

		s.registry.Remove("AA:03")

		s.Equal(int32(1), cancelled.Load(), "pending timeout MUST be cancelled on removal")
		s.False(rec.HasPendingTimers())
		s.Equal(peer.LinkDisconnected, rec.Link)
		_, ok := s.registry.ByHandle("AA:03")
		s.False(ok)
		_, ok = s.registry.ByID(rec.ID)
		s.False(ok)
	})

	s.Run("is idempotent", func() {
		s.NotPanics(func() {
			s.registry.Remove("AA:03")
			s.registry.Remove("never-seen")
		})
	})
}

func (s *RegistryTestSuite) TestStale() {
	old, _ := s.registry.Upsert("AA:10", peer.RoleReader, s.clock.Now())
	s.clock.Add(20 * time.Second)
	seen, _ := s.registry.Upsert("AA:11", peer.RoleReader, s.clock.Now())
	connected, _ := s.registry.Upsert("AA:12", peer.RoleReader, s.clock.Now())
	connected.Link = peer.LinkConnected
	expired, _ := s.registry.Upsert("AA:13", peer.RoleReader, s.clock.Now())
	expired.Expire()

	s.clock.Add(15 * time.Second)
	seen.Seen(s.clock.Now())
	s.clock.Add(time.Second)

	stale := s.registry.Stale(s.clock.Now(), 30*time.Second)
	s.Require().Len(stale, 1, "only the disconnected, unexpired, long-unseen peer MUST be stale")
	s.Same(old, stale[0])

	s.clock.Add(30 * time.Second)
	stale = s.registry.Stale(s.clock.Now(), 30*time.Second)
	s.Len(stale, 2, "connected and expired peers MUST never be reported stale")
}

func (s *RegistryTestSuite) TestEligibleOrdersByFirstSeen() {
	var recs []*peer.Record
	for _, h := range []radio.Handle{"AA:20", "AA:21", "AA:22", "AA:23"} {
		rec, _ := s.registry.Upsert(h, peer.RoleReader, s.clock.Now())
		rec.WantsConnection = true
		recs = append(recs, rec)
		s.clock.Add(time.Second)
	}
	recs[1].AwaitingConnection = true
	recs[2].Expired = true

	eligible := s.registry.Eligible()
	s.Require().Len(eligible, 2)
	s.Same(recs[0], eligible[0])
	s.Same(recs[3], eligible[1])
	s.Equal(1, s.registry.InFlight())
}

func (s *RegistryTestSuite) TestRemoveAll() {
	s.registry.Upsert("AA:30", peer.RoleReader, s.clock.Now())
	s.registry.Upsert("AA:31", peer.RoleWriter, s.clock.Now())
	s.registry.RemoveAll()
	s.Equal(0, s.registry.Len())
	s.Empty(s.registry.All())
}

func TestRegistryTestSuite(t *testing.T) {
	suite.Run(t, new(RegistryTestSuite))
}
