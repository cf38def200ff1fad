// Package cache implements the bounded arena of in-flight reliable messages
// awaiting acknowledgement.
//
// Capacity is limited twice: by an entry-count ceiling and by a ceiling on
// the sum of payload sizes. Both are checked on every insertion and an
// insertion that would exceed either is rejected, never queued.
//
// A Cache is not safe for concurrent use. It is owned by the goroutine that
// drives the node, and only the retransmission scheduler and inbound ack
// resolution mutate it.
package cache

import (
	"fmt"
	"time"

	"github.com/benbjohnson/clock"
)

// Capacity defaults.
const (
	// MaxPayloadSize is the largest payload a single entry may hold.
	MaxPayloadSize = 255

	// DefaultMaxItems is the default entry-count ceiling.
	DefaultMaxItems = 100

	// DefaultMaxMem is the default ceiling on the sum of payload sizes.
	DefaultMaxMem = 10000
)

// Buffer is an owned, bounded copy of a message payload.
type Buffer struct {
	data []byte
}

// NewBuffer copies p into a new Buffer.
// Returns ErrPayloadTooLarge if p is longer than MaxPayloadSize.
func NewBuffer(p []byte) (Buffer, error) {
	if len(p) > MaxPayloadSize {
		return Buffer{}, ErrPayloadTooLarge
	}
	data := make([]byte, len(p))
	copy(data, p)
	return Buffer{data: data}, nil
}

// Bytes returns the buffer contents. The slice must not be modified.
func (b Buffer) Bytes() []byte { return b.data }

// Len returns the payload size.
func (b Buffer) Len() int { return len(b.data) }

// Entry is one in-flight message awaiting acknowledgement.
type Entry struct {
	// Payload is the fully encoded message, resent verbatim.
	Payload Buffer

	// TTL is the mesh hop budget, forwarded unchanged.
	TTL uint8

	// ReplyID is the correlation key, unique among active entries.
	ReplyID uint32

	// ReplyIDPrev is an optional secondary correlation key chaining this
	// message to an earlier one. Zero means unset.
	ReplyIDPrev uint32

	// Timeout is the per-attempt wait before a resend is due.
	Timeout time.Duration

	// ExpireAt is the absolute deadline of the current attempt.
	ExpireAt time.Time

	// SentAt is the time of the most recent transmission.
	SentAt time.Time

	// TryCount is the number of resends remaining.
	TryCount uint8

	// Attempts is the number of resends already performed.
	Attempts uint8
}

// Config configures a Cache.
type Config struct {
	// MaxItems is the entry-count ceiling (default: DefaultMaxItems).
	MaxItems int

	// MaxMem is the payload-bytes ceiling (default: DefaultMaxMem).
	MaxMem int

	// Clock is the time source for SentAt/ExpireAt (default: wall clock).
	Clock clock.Clock
}

// Cache is a fixed arena of Entry slots.
type Cache struct {
	slots []Entry
	inUse []bool

	usedSlots int
	usedMem   int
	maxMem    int

	clock clock.Clock
}

// New creates a cache with the given configuration.
func New(config Config) *Cache {
	if config.MaxItems <= 0 {
		config.MaxItems = DefaultMaxItems
	}
	if config.MaxMem <= 0 {
		config.MaxMem = DefaultMaxMem
	}
	if config.Clock == nil {
		config.Clock = clock.New()
	}

	return &Cache{
		slots:  make([]Entry, config.MaxItems),
		inUse:  make([]bool, config.MaxItems),
		maxMem: config.MaxMem,
		clock:  config.Clock,
	}
}

// Add stores a copy of payload and returns its slot.
//
// The entry is stamped SentAt = now and ExpireAt = now + timeout.
// Returns ErrDuplicateReplyID if replyID is already active, ErrOutOfSlots or
// ErrOutOfMemory if a ceiling would be exceeded.
func (c *Cache) Add(payload []byte, ttl uint8, replyID uint32, timeout time.Duration, tryCount uint8) (int, error) {
	return c.AddChained(payload, ttl, replyID, 0, timeout, tryCount)
}

// AddChained is Add with a secondary correlation key.
func (c *Cache) AddChained(payload []byte, ttl uint8, replyID, replyIDPrev uint32, timeout time.Duration, tryCount uint8) (int, error) {
	if replyID == 0 {
		return -1, ErrInvalidReplyID
	}
	if len(payload) > MaxPayloadSize {
		return -1, ErrPayloadTooLarge
	}
	if _, err := c.Find(replyID); err == nil {
		return -1, ErrDuplicateReplyID
	}
	if c.usedSlots >= len(c.slots) {
		return -1, ErrOutOfSlots
	}
	if c.usedMem+len(payload) > c.maxMem {
		return -1, ErrOutOfMemory
	}

	slot := c.freeSlot()
	if slot < 0 {
		// usedSlots says there is room but the arena disagrees.
		return -1, fmt.Errorf("%w: no free slot with %d/%d used", ErrInconsistent, c.usedSlots, len(c.slots))
	}

	buf, err := NewBuffer(payload)
	if err != nil {
		return -1, err
	}

	now := c.clock.Now()
	c.slots[slot] = Entry{
		Payload:     buf,
		TTL:         ttl,
		ReplyID:     replyID,
		ReplyIDPrev: replyIDPrev,
		Timeout:     timeout,
		ExpireAt:    now.Add(timeout),
		SentAt:      now,
		TryCount:    tryCount,
	}
	c.inUse[slot] = true
	c.usedSlots++
	c.usedMem += buf.Len()

	return slot, nil
}

// Find returns the slot holding replyID, or ErrNotFound.
func (c *Cache) Find(replyID uint32) (int, error) {
	if replyID == 0 {
		return -1, ErrNotFound
	}
	for i := range c.slots {
		if c.inUse[i] && c.slots[i].ReplyID == replyID {
			return i, nil
		}
	}
	return -1, ErrNotFound
}

// FindPrev returns the first slot whose secondary key is replyIDPrev.
func (c *Cache) FindPrev(replyIDPrev uint32) (int, error) {
	if replyIDPrev == 0 {
		return -1, ErrNotFound
	}
	for i := range c.slots {
		if c.inUse[i] && c.slots[i].ReplyIDPrev == replyIDPrev {
			return i, nil
		}
	}
	return -1, ErrNotFound
}

// Entry returns a copy of the entry at slot.
func (c *Cache) Entry(slot int) (Entry, bool) {
	if slot < 0 || slot >= len(c.slots) || !c.inUse[slot] {
		return Entry{}, false
	}
	return c.slots[slot], true
}

// Delete removes the entry for replyID and returns the removed entry.
func (c *Cache) Delete(replyID uint32) (Entry, error) {
	slot, err := c.Find(replyID)
	if err != nil {
		return Entry{}, err
	}
	return c.DeleteSlot(slot)
}

// DeleteSlot removes the entry at slot and returns it.
func (c *Cache) DeleteSlot(slot int) (Entry, error) {
	if slot < 0 || slot >= len(c.slots) || !c.inUse[slot] {
		return Entry{}, ErrInvalidSlot
	}

	e := c.slots[slot]
	c.usedMem -= e.Payload.Len()
	c.usedSlots--
	c.inUse[slot] = false
	c.slots[slot] = Entry{}

	return e, nil
}

// Resend records a retransmission of the entry at slot: TryCount is
// decremented, Attempts incremented, SentAt set to now and ExpireAt to
// expireAt. Returns ErrNoAttemptsLeft if TryCount is already zero.
func (c *Cache) Resend(slot int, expireAt time.Time) (Entry, error) {
	if slot < 0 || slot >= len(c.slots) || !c.inUse[slot] {
		return Entry{}, ErrInvalidSlot
	}

	e := &c.slots[slot]
	if e.TryCount == 0 {
		return *e, ErrNoAttemptsLeft
	}

	e.TryCount--
	e.Attempts++
	e.SentAt = c.clock.Now()
	e.ExpireAt = expireAt

	return *e, nil
}

// UsedSlots returns the tracked number of active entries in O(1).
func (c *Cache) UsedSlots() int { return c.usedSlots }

// CountUsedSlots recomputes the number of active entries by scanning the
// arena. It must always agree with UsedSlots.
func (c *Cache) CountUsedSlots() int {
	n := 0
	for _, used := range c.inUse {
		if used {
			n++
		}
	}
	return n
}

// UsedMemory returns the tracked sum of active payload sizes.
func (c *Cache) UsedMemory() int { return c.usedMem }

// CountUsedMemory recomputes the sum of active payload sizes.
func (c *Cache) CountUsedMemory() int {
	n := 0
	for i, used := range c.inUse {
		if used {
			n += c.slots[i].Payload.Len()
		}
	}
	return n
}

// Capacity returns the entry-count ceiling, which is also the arena size.
func (c *Cache) Capacity() int { return len(c.slots) }

// MaxMem returns the payload-bytes ceiling.
func (c *Cache) MaxMem() int { return c.maxMem }

// Check compares the tracked counters against a live scan.
// A non-nil result indicates an internal bookkeeping bug.
func (c *Cache) Check() error {
	if n := c.CountUsedSlots(); n != c.usedSlots {
		return fmt.Errorf("%w: slots tracked=%d counted=%d", ErrInconsistent, c.usedSlots, n)
	}
	if n := c.CountUsedMemory(); n != c.usedMem {
		return fmt.Errorf("%w: memory tracked=%d counted=%d", ErrInconsistent, c.usedMem, n)
	}
	return nil
}

func (c *Cache) freeSlot() int {
	for i, used := range c.inUse {
		if !used {
			return i
		}
	}
	return -1
}
