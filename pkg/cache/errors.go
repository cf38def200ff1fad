package cache

import (
	"errors"
	"fmt"
)

// Errors returned by the cache package.
var (
	// ErrCacheFull is the parent of every capacity error. Use errors.Is to
	// detect either ceiling being reached.
	ErrCacheFull = errors.New("cache: full")

	// ErrOutOfSlots is returned when the entry-count ceiling is reached.
	ErrOutOfSlots = fmt.Errorf("%w: out of slots", ErrCacheFull)

	// ErrOutOfMemory is returned when the payload-bytes ceiling would be exceeded.
	ErrOutOfMemory = fmt.Errorf("%w: out of memory", ErrCacheFull)

	// ErrDuplicateReplyID is returned when the reply id is already active.
	// The caller must retry with a regenerated id.
	ErrDuplicateReplyID = errors.New("cache: duplicate reply id")

	// ErrNotFound is returned when no active entry matches.
	ErrNotFound = errors.New("cache: entry not found")

	// ErrInvalidReplyID is returned for the reserved reply id 0.
	ErrInvalidReplyID = errors.New("cache: invalid reply id")

	// ErrPayloadTooLarge is returned when a payload exceeds MaxPayloadSize.
	ErrPayloadTooLarge = errors.New("cache: payload too large")

	// ErrNoAttemptsLeft is returned when resending an entry whose try count is zero.
	ErrNoAttemptsLeft = errors.New("cache: no attempts left")

	// ErrInvalidSlot is returned for a slot index outside the arena or not in use.
	ErrInvalidSlot = errors.New("cache: invalid slot")

	// ErrInconsistent is returned by Check when the tracked counters disagree
	// with a live scan of the arena.
	ErrInconsistent = errors.New("cache: tracked counters diverge from arena")
)
