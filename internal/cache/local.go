package cache

import (
	"sync/atomic"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// Local is the bounded in-process tier. Entries expire after the
// configured TTL and the least recently used entry is evicted under
// capacity pressure. Entries are immutable: a Set stores a new entry, it
// never mutates one in place.
type Local struct {
	lru    *expirable.LRU[string, []byte]
	hits   atomic.Int64
	misses atomic.Int64
}

// NewLocal creates the local tier with a fixed capacity and default TTL.
func NewLocal(maxSize int, ttl time.Duration) *Local {
	if maxSize <= 0 {
		maxSize = 1000
	}
	return &Local{lru: expirable.NewLRU[string, []byte](maxSize, nil, ttl)}
}

func (l *Local) Get(key string) ([]byte, bool) {
	v, ok := l.lru.Get(key)
	if ok {
		l.hits.Add(1)
	} else {
		l.misses.Add(1)
	}
	return v, ok
}

func (l *Local) Set(key string, value []byte) {
	l.lru.Add(key, value)
}

func (l *Local) Delete(key string) {
	l.lru.Remove(key)
}

func (l *Local) Purge() {
	l.lru.Purge()
}

func (l *Local) Len() int {
	return l.lru.Len()
}

// Stats reports hit/miss counters since startup.
func (l *Local) Stats() (hits, misses int64) {
	return l.hits.Load(), l.misses.Load()
}
