// Package cache holds expiry helpers shared by the quiz cache backends.
package cache

import (
	"math/rand"
	"sync"
	"time"
)

// TTL hands out expirations of base plus up to 10% random jitter so entries
// cached together do not expire together. A non-positive base means entries
// never expire and Next returns 0.
type TTL struct {
	base time.Duration

	mu  sync.Mutex
	rnd *rand.Rand
}

func NewTTL(base time.Duration) *TTL {
	return &TTL{base: base, rnd: rand.New(rand.NewSource(time.Now().UnixNano()))}
}

func (t *TTL) Next() time.Duration {
	if t.base <= 0 {
		return 0
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.base + time.Duration(t.rnd.Int63n(int64(t.base)/10+1))
}
