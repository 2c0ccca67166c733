package notify

import (
	"sync"
	"time"

	"github.com/couchcryptid/crop-advisory-service/internal/domain"
	"github.com/jonboulle/clockwork"
)

const farmWideField = "FARM_WIDE"

// cacheKey identifies the last notification of a given type for a field
// (or for the whole farm) and crop.
type cacheKey struct {
	FarmID  string
	FieldID string
	Type    domain.RecommendationType
	Crop    domain.CropType
}

func keyFor(rec domain.Recommendation) cacheKey {
	field := rec.FieldID
	if field == "" {
		field = farmWideField
	}
	return cacheKey{FarmID: rec.FarmID, FieldID: field, Type: rec.Type, Crop: rec.CropType}
}

func (k cacheKey) String() string {
	return k.FarmID + "_" + k.FieldID + "|" + string(k.Type) + "_" + string(k.Crop)
}

// dedupCache is a thread-safe LRU of the last emitted recommendation per
// key. Entries expire a fixed time after they were written.
type dedupCache struct {
	maxEntries int
	ttl        time.Duration
	clock      clockwork.Clock

	mu      sync.Mutex
	entries map[cacheKey]*entry
	head    *entry // most recently used
	tail    *entry // least recently used
}

type entry struct {
	key       cacheKey
	rec       domain.Recommendation
	writtenAt time.Time
	prev      *entry
	next      *entry
}

func newDedupCache(maxEntries int, ttl time.Duration, clock clockwork.Clock) *dedupCache {
	return &dedupCache{
		maxEntries: maxEntries,
		ttl:        ttl,
		clock:      clock,
		entries:    make(map[cacheKey]*entry),
	}
}

// decide looks up the live entry for key and asks admit whether candidate
// should be emitted. prev is nil when nothing is cached. When admit returns
// true the candidate replaces the entry before the lock is released, so two
// concurrent candidates for the same key cannot both be admitted against
// the same previous value.
func (c *dedupCache) decide(key cacheKey, candidate domain.Recommendation, admit func(prev *domain.Recommendation) bool) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.clock.Now()
	e, ok := c.entries[key]
	if ok && now.Sub(e.writtenAt) >= c.ttl {
		c.delete(e)
		ok = false
	}

	var prev *domain.Recommendation
	if ok {
		prev = &e.rec
		c.moveToFront(e)
	}
	if !admit(prev) {
		return false
	}

	if ok {
		e.rec = candidate
		e.writtenAt = now
		return true
	}

	e = &entry{key: key, rec: candidate, writtenAt: now}
	c.entries[key] = e
	c.addToFront(e)
	if len(c.entries) > c.maxEntries {
		c.delete(c.tail)
	}
	return true
}

// clearField removes every entry belonging to the field and returns how
// many were removed.
func (c *dedupCache) clearField(farmID, fieldID string) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for k, e := range c.entries {
		if k.FarmID == farmID && k.FieldID == fieldID {
			c.delete(e)
			removed++
		}
	}
	return removed
}

func (c *dedupCache) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *dedupCache) delete(e *entry) {
	delete(c.entries, e.key)
	c.remove(e)
}

func (c *dedupCache) moveToFront(e *entry) {
	if e == c.head {
		return
	}
	c.remove(e)
	c.addToFront(e)
}

func (c *dedupCache) addToFront(e *entry) {
	e.next = c.head
	e.prev = nil
	if c.head != nil {
		c.head.prev = e
	}
	c.head = e
	if c.tail == nil {
		c.tail = e
	}
}

func (c *dedupCache) remove(e *entry) {
	if e.prev != nil {
		e.prev.next = e.next
	} else {
		c.head = e.next
	}
	if e.next != nil {
		e.next.prev = e.prev
	} else {
		c.tail = e.prev
	}
	e.prev = nil
	e.next = nil
}
