package exchange

import (
	"fmt"
	"time"
)

// Reliability defaults.
const (
	// DefaultTTL is the mesh hop budget stamped on outbound frames.
	DefaultTTL = 3

	// DefaultTryCount is the number of resends before a message is
	// reported undeliverable.
	DefaultTryCount = 10

	// DefaultTimeout is the wait after a transmission before the first
	// resend is due.
	DefaultTimeout = 70 * time.Millisecond

	// DefaultBackoff is the additive delay applied per resend attempt.
	DefaultBackoff = 70 * time.Millisecond

	// DefaultScanLimit is the number of cache slots inspected per Poll.
	DefaultScanLimit = 8
)

// Params holds the retry policy applied to reliable sends.
type Params struct {
	// TryCount is the number of resends after the initial transmission.
	TryCount uint8

	// Timeout is the per-attempt wait. Zero disables reliability.
	Timeout time.Duration

	// Backoff is added to the wait once per attempt already made.
	Backoff time.Duration
}

// DefaultParams returns the default retry policy.
func DefaultParams() Params {
	return Params{
		TryCount: DefaultTryCount,
		Timeout:  DefaultTimeout,
		Backoff:  DefaultBackoff,
	}
}

// Reliable returns true if sends under these params are tracked for
// acknowledgement.
func (p Params) Reliable() bool {
	return p.Timeout > 0
}

// Validate checks the params for negative durations.
func (p Params) Validate() error {
	if p.Timeout < 0 {
		return fmt.Errorf("%w: negative timeout %v", ErrInvalidParams, p.Timeout)
	}
	if p.Backoff < 0 {
		return fmt.Errorf("%w: negative backoff %v", ErrInvalidParams, p.Backoff)
	}
	return nil
}

// MaxWait returns the longest a synchronous send can wait before the retry
// budget is exhausted: the initial timeout plus, for every resend k,
// timeout + backoff*k.
func (p Params) MaxWait() time.Duration {
	n := time.Duration(p.TryCount)
	return (n+1)*p.Timeout + p.Backoff*n*(n+1)/2
}
