package exchange

import (
	"time"

	"github.com/backkem/meshmqtt/pkg/cache"
	"github.com/backkem/meshmqtt/pkg/telemetry"
	"github.com/benbjohnson/clock"
	"github.com/pion/logging"
)

// Instruction is the outcome of one Poll.
type Instruction struct {
	// Action tells the host what to do.
	Action Action

	// Slot is the cache slot the instruction refers to.
	Slot int

	// ReplyID is the correlation id of the entry.
	ReplyID uint32

	// ReplyIDPrev is the entry's secondary correlation key.
	ReplyIDPrev uint32

	// TTL is the hop budget to resend with.
	TTL uint8

	// Payload is a copy of the message to resend. Nil for ActionFailed.
	Payload []byte

	// Attempt is the number of resends performed, including this one.
	Attempt uint8

	// ExpireAt is the new deadline after a resend.
	ExpireAt time.Time
}

// SchedulerConfig configures a Scheduler.
type SchedulerConfig struct {
	// Cache holds the in-flight entries. Required.
	Cache *cache.Cache

	// Tracker receives a resend count per retransmission. Optional.
	Tracker *telemetry.Tracker

	// Backoff computes the wait after each resend
	// (default: AdditiveBackoff with DefaultBackoff).
	Backoff Backoff

	// ScanLimit bounds the slots inspected per Poll (default: DefaultScanLimit).
	ScanLimit int

	// Clock is the time source (default: wall clock).
	Clock clock.Clock

	// LoggerFactory is the factory for creating loggers.
	// If nil, logging is disabled.
	LoggerFactory logging.LoggerFactory
}

// Scheduler applies the retry policy to the message cache.
//
// Each Poll inspects at most ScanLimit slots starting where the previous
// Poll stopped and acts on at most one due entry. Repeated polling visits
// every slot in turn.
//
// A Scheduler is not safe for concurrent use; it shares the cache's owner.
type Scheduler struct {
	cache     *cache.Cache
	tracker   *telemetry.Tracker
	backoff   Backoff
	scanLimit int
	clock     clock.Clock
	cursor    int

	log logging.LeveledLogger
}

// NewScheduler creates a scheduler over the given cache.
func NewScheduler(config SchedulerConfig) (*Scheduler, error) {
	if config.Cache == nil {
		return nil, ErrNoCache
	}
	if config.Backoff == nil {
		config.Backoff = NewAdditiveBackoff(DefaultBackoff, 0, nil)
	}
	if config.ScanLimit <= 0 {
		config.ScanLimit = DefaultScanLimit
	}
	if config.Clock == nil {
		config.Clock = clock.New()
	}

	s := &Scheduler{
		cache:     config.Cache,
		tracker:   config.Tracker,
		backoff:   config.Backoff,
		scanLimit: config.ScanLimit,
		clock:     config.Clock,
	}
	if config.LoggerFactory != nil {
		s.log = config.LoggerFactory.NewLogger("exchange")
	}
	return s, nil
}

// SetBackoff replaces the backoff policy. Entries already scheduled keep
// their current deadline.
func (s *Scheduler) SetBackoff(b Backoff) {
	if b != nil {
		s.backoff = b
	}
}

// Cursor returns the slot the next Poll starts from.
func (s *Scheduler) Cursor() int { return s.cursor }

// Poll runs one bounded scheduling step.
//
// For the first due entry found: if it has resends left, TryCount is
// decremented, the deadline moves to now + backoff, the tracker counts a
// resend and an ActionResend carrying a copy of the payload is returned.
// Otherwise the entry is deleted and ActionFailed is returned. If nothing
// within the scan window is due, ActionNone is returned.
func (s *Scheduler) Poll() Instruction {
	capacity := s.cache.Capacity()
	if capacity == 0 || s.cache.UsedSlots() == 0 {
		return Instruction{Action: ActionNone}
	}

	limit := s.scanLimit
	if limit > capacity {
		limit = capacity
	}

	now := s.clock.Now()
	for i := 0; i < limit; i++ {
		slot := s.cursor
		s.cursor = (s.cursor + 1) % capacity

		e, ok := s.cache.Entry(slot)
		if !ok || now.Before(e.ExpireAt) {
			continue
		}

		if e.TryCount == 0 {
			return s.fail(slot, e)
		}
		return s.resend(slot, e, now)
	}

	return Instruction{Action: ActionNone}
}

func (s *Scheduler) resend(slot int, e cache.Entry, now time.Time) Instruction {
	attempt := int(e.Attempts) + 1
	expireAt := now.Add(s.backoff.Calculate(e.Timeout, attempt))

	updated, err := s.cache.Resend(slot, expireAt)
	if err != nil {
		// TryCount was checked above; only a concurrent misuse gets here.
		if s.log != nil {
			s.log.Warnf("resend of reply id %d failed: %v", e.ReplyID, err)
		}
		return Instruction{Action: ActionNone}
	}

	if s.tracker != nil {
		s.tracker.OnResend()
	}

	payload := make([]byte, updated.Payload.Len())
	copy(payload, updated.Payload.Bytes())

	if s.log != nil {
		s.log.Debugf("resend reply id %d attempt %d, %d left, next at %v",
			updated.ReplyID, updated.Attempts, updated.TryCount, expireAt.Sub(now))
	}

	return Instruction{
		Action:      ActionResend,
		Slot:        slot,
		ReplyID:     updated.ReplyID,
		ReplyIDPrev: updated.ReplyIDPrev,
		TTL:         updated.TTL,
		Payload:     payload,
		Attempt:     updated.Attempts,
		ExpireAt:    expireAt,
	}
}

func (s *Scheduler) fail(slot int, e cache.Entry) Instruction {
	if _, err := s.cache.DeleteSlot(slot); err != nil && s.log != nil {
		s.log.Warnf("delete of reply id %d failed: %v", e.ReplyID, err)
	}

	if s.log != nil {
		s.log.Warnf("delivery failed for reply id %d after %d resends", e.ReplyID, e.Attempts)
	}

	return Instruction{
		Action:      ActionFailed,
		Slot:        slot,
		ReplyID:     e.ReplyID,
		ReplyIDPrev: e.ReplyIDPrev,
		TTL:         e.TTL,
		Attempt:     e.Attempts,
	}
}
