// Package telemetry tracks process-wide round-trip statistics for reliable
// mesh messages.
//
// Three exponentially weighted moving averages are kept in fixed point, each
// with its own scale and smoothing denominator, giving fast, medium and slow
// latency trends without retaining sample history:
//
//	acc += (sample*scale - acc) / denominator
//
// A Tracker is not safe for concurrent use. It is owned by the goroutine that
// drives the node.
package telemetry

import (
	"math"
	"time"
)

// Accumulator scales and smoothing denominators.
const (
	FastScale   = 64
	MediumScale = 512
	SlowScale   = 4096

	FastDenominator   = 8
	MediumDenominator = 64
	SlowDenominator   = 512
)

// MaxRTT is the largest representable round-trip sample in milliseconds.
// Larger samples are clamped.
const MaxRTT = math.MaxUint16

// Snapshot is a read-only copy of the tracker state.
type Snapshot struct {
	// RTTMin is the smallest sample seen in milliseconds.
	// It stays at MaxRTT until the first acknowledgement.
	RTTMin uint16
	// RTTMax is the largest sample seen in milliseconds.
	RTTMax uint16

	// AvgFast, AvgMedium and AvgSlow are the scaled accumulators
	// (average * FastScale, * MediumScale, * SlowScale).
	AvgFast   uint32
	AvgMedium uint32
	AvgSlow   uint32

	// ResendPackets counts retransmissions.
	ResendPackets uint32
	// AckPackets counts acknowledgements matched to a pending message.
	AckPackets uint32
}

// Fast returns the fast moving average in milliseconds.
func (s Snapshot) Fast() float64 { return float64(s.AvgFast) / FastScale }

// Medium returns the medium moving average in milliseconds.
func (s Snapshot) Medium() float64 { return float64(s.AvgMedium) / MediumScale }

// Slow returns the slow moving average in milliseconds.
func (s Snapshot) Slow() float64 { return float64(s.AvgSlow) / SlowScale }

// Tracker aggregates round-trip samples and resend/ack counters.
type Tracker struct {
	state  Snapshot
	seeded bool
}

// NewTracker creates a tracker with RTTMin at its maximum value.
func NewTracker() *Tracker {
	return &Tracker{
		state: Snapshot{RTTMin: MaxRTT},
	}
}

// OnAck records a round-trip sample for an acknowledged message.
// Negative samples are treated as zero.
func (t *Tracker) OnAck(rtt time.Duration) {
	sample := clampMillis(rtt)

	t.state.AckPackets++

	if sample < t.state.RTTMin {
		t.state.RTTMin = sample
	}
	if sample > t.state.RTTMax {
		t.state.RTTMax = sample
	}

	// The first sample seeds every accumulator so the averages start at an
	// observed value rather than climbing from zero.
	if !t.seeded {
		t.state.AvgFast = uint32(sample) * FastScale
		t.state.AvgMedium = uint32(sample) * MediumScale
		t.state.AvgSlow = uint32(sample) * SlowScale
		t.seeded = true
		return
	}

	t.state.AvgFast = ewma(t.state.AvgFast, sample, FastScale, FastDenominator)
	t.state.AvgMedium = ewma(t.state.AvgMedium, sample, MediumScale, MediumDenominator)
	t.state.AvgSlow = ewma(t.state.AvgSlow, sample, SlowScale, SlowDenominator)
}

// OnResend counts one retransmission.
func (t *Tracker) OnResend() {
	t.state.ResendPackets++
}

// Snapshot returns a copy of the current state.
func (t *Tracker) Snapshot() Snapshot {
	return t.state
}

func ewma(acc uint32, sample uint16, scale, denominator int64) uint32 {
	cur := int64(acc)
	cur += (int64(sample)*scale - cur) / denominator
	if cur < 0 {
		cur = 0
	}
	return uint32(cur)
}

func clampMillis(d time.Duration) uint16 {
	ms := d.Milliseconds()
	if ms < 0 {
		return 0
	}
	if ms > MaxRTT {
		return MaxRTT
	}
	return uint16(ms)
}
