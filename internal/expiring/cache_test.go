package expiring_test

import (
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/srg/nearby/internal/expiring"
	"github.com/stretchr/testify/suite"
)

type CacheTestSuite struct {
	suite.Suite
	clock *clock.Mock
	cache *expiring.Cache[string, int]
}

func (s *CacheTestSuite) SetupTest() {
	s.clock = clock.NewMock()
	s.cache = expiring.New[string, int](10*time.Second, s.clock.Now)
}

func (s *CacheTestSuite) TestGetHonoursTTL() {
	s.cache.Set("a", 1)

	s.clock.Add(10 * time.Second)
	v, ok := s.cache.Get("a")
	s.True(ok, "entry exactly ttl old MUST still be returned")
	s.Equal(1, v)

	s.clock.Add(time.Nanosecond)
	_, ok = s.cache.Get("a")
	s.False(ok, "entry older than ttl MUST read as absent")
	s.Equal(1, s.cache.Len(), "Get MUST NOT purge eagerly")
}

func (s *CacheTestSuite) TestSetRefreshesTimestamp() {
	s.cache.Set("a", 1)
	s.clock.Add(8 * time.Second)
	s.cache.Set("a", 2)
	s.clock.Add(8 * time.Second)

	v, ok := s.cache.Get("a")
	s.True(ok, "overwrite MUST refresh the timestamp")
	s.Equal(2, v)
}

func (s *CacheTestSuite) TestRemoveExpired() {
	s.Run("removes exactly the stale keys", func() {
		s.cache.Set("old", 1)
		s.clock.Add(6 * time.Second)
		s.cache.Set("mid", 2)
		s.clock.Add(5 * time.Second)
		s.cache.Set("new", 3)

		s.Equal(1, s.cache.RemoveExpired())
		_, ok := s.cache.Get("mid")
		s.True(ok)
		s.Equal(2, s.cache.Len())
	})

	s.Run("refreshed key moves behind fresher ones", func() {
		s.cache.RemoveAll()
		s.cache.Set("x", 1)
		s.cache.Set("y", 2)
		s.clock.Add(6 * time.Second)
		s.cache.Set("x", 10)
		s.clock.Add(5 * time.Second)

		s.Equal(1, s.cache.RemoveExpired(), "only y MUST be stale")
		v, ok := s.cache.Get("x")
		s.True(ok)
		s.Equal(10, v)
	})
}

func (s *CacheTestSuite) TestRemoveAndRemoveAll() {
	s.cache.Set("a", 1)
	s.cache.Set("b", 2)

	s.cache.Remove("a")
	s.cache.Remove("missing")
	_, ok := s.cache.Get("a")
	s.False(ok)

	s.cache.RemoveAll()
	s.Equal(0, s.cache.Len())
}

func (s *CacheTestSuite) TestNoExpiry() {
	c := expiring.New[string, string](expiring.NoExpiry, s.clock.Now)
	c.Set("k", "v")
	s.clock.Add(365 * 24 * time.Hour)

	v, ok := c.Get("k")
	s.True(ok, "entries MUST never expire without a ttl")
	s.Equal("v", v)
	s.Equal(0, c.RemoveExpired())
}

func TestCacheTestSuite(t *testing.T) {
	suite.Run(t, new(CacheTestSuite))
}
