// Package bucketing spreads per-user rows across a fixed number of
// partitions with murmur3, so one heavy user cannot hot-spot a partition
// and a user's rows always land in the same one.
package bucketing

import (
	"hash"
	"sync"
	"time"

	"github.com/spaolacci/murmur3"

	"cashback-service/internal/config"
)

type Manager struct {
	userBuckets  int
	eventBuckets int
	hasherPool   sync.Pool
}

func NewManager(cfg *config.Config) *Manager {
	return New(cfg.Bucketing.UserBuckets, cfg.Bucketing.EventBuckets)
}

func New(userBuckets, eventBuckets int) *Manager {
	if userBuckets <= 0 {
		userBuckets = 1
	}
	if eventBuckets <= 0 {
		eventBuckets = 1
	}
	return &Manager{
		userBuckets:  userBuckets,
		eventBuckets: eventBuckets,
		hasherPool: sync.Pool{
			New: func() interface{} { return murmur3.New64() },
		},
	}
}

// UserBucket returns the journal partition for userID (0 to userBuckets-1).
func (m *Manager) UserBucket(userID string) int {
	return m.bucket(userID, m.userBuckets)
}

// EventBucket returns the analytics bucket for an identifier.
func (m *Manager) EventBucket(identifier string) int {
	return m.bucket(identifier, m.eventBuckets)
}

func (m *Manager) UserBuckets() int {
	return m.userBuckets
}

// DateBucket is the UTC day of t, used as a clustering prefix for events.
func DateBucket(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}

func (m *Manager) bucket(key string, n int) int {
	return int(m.hash(key) % uint64(n))
}

func (m *Manager) hash(key string) uint64 {
	h := m.hasherPool.Get().(hash.Hash64)
	defer m.hasherPool.Put(h)

	h.Reset()
	h.Write([]byte(key))
	return h.Sum64()
}
