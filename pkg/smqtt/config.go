package smqtt

import (
	"fmt"
	"time"

	"github.com/backkem/meshmqtt/pkg/cache"
	"github.com/backkem/meshmqtt/pkg/dedup"
	"github.com/backkem/meshmqtt/pkg/exchange"
	"github.com/backkem/meshmqtt/pkg/message"
	"github.com/backkem/meshmqtt/pkg/transport"
	"github.com/benbjohnson/clock"
	"github.com/pion/logging"
)

// GatewayName is the node name that addresses whichever gateway hears a
// message. Gateways treat it as their own name.
const GatewayName = "m"

// Default values for node configuration.
const (
	// DefaultDeferredCapacity is the number of sends a handler may queue
	// between two polls.
	DefaultDeferredCapacity = 8

	// DefaultPollInterval is the Run loop scheduling tick.
	DefaultPollInterval = 10 * time.Millisecond
)

// maxReplyIDAttempts bounds regeneration of a colliding reply id.
const maxReplyIDAttempts = 4

// DeliveryFailedHandler is called when a reliable message could not be
// delivered. err wraps ErrDeliveryFailed, or the error that prevented a
// deferred send from being queued.
type DeliveryFailedHandler func(replyID uint32, err error)

// Config contains configuration for creating a Node.
type Config struct {
	// Name is this node's name, used as the source of every message.
	// Required.
	Name string

	// Transport carries frames to and from the mesh. Required.
	Transport transport.Transport

	// Mode selects which messages are delivered and acknowledged
	// (default: exchange.ModeNodeStandard).
	Mode exchange.Mode

	// TTL is the hop budget stamped on outbound frames
	// (default: exchange.DefaultTTL).
	TTL uint8

	// TryCount is the number of resends for reliable messages
	// (default: exchange.DefaultTryCount).
	TryCount uint8

	// Timeout is the wait before the first resend
	// (default: exchange.DefaultTimeout).
	Timeout time.Duration

	// Backoff is the additive delay per resend
	// (default: exchange.DefaultBackoff).
	Backoff time.Duration

	// Jitter randomizes each resend wait upwards by up to this fraction.
	// Must be in [0, 1). Zero disables jitter.
	Jitter float64

	// DisableReliability sends every message once, without tracking.
	DisableReliability bool

	// MaxItems and MaxMem bound the message cache
	// (default: cache.DefaultMaxItems and cache.DefaultMaxMem).
	MaxItems int
	MaxMem   int

	// DedupWindow is the number of message ids remembered for duplicate
	// suppression (default: dedup.DefaultCapacity).
	DedupWindow int

	// ScanLimit bounds the cache slots inspected per Poll
	// (default: exchange.DefaultScanLimit).
	ScanLimit int

	// DeferredCapacity bounds sends queued from handlers
	// (default: DefaultDeferredCapacity).
	DeferredCapacity int

	// PollInterval is the Run loop scheduling tick (default: DefaultPollInterval).
	PollInterval time.Duration

	// StatsInterval is the period of OnStats calls from Run.
	// Zero disables periodic stats.
	StatsInterval time.Duration

	// OnDeliveryFailed is called from the node goroutine when a reliable
	// message is given up on. Optional.
	OnDeliveryFailed DeliveryFailedHandler

	// OnStats receives periodic statistics from Run. Optional.
	OnStats func(Stats)

	// Clock is the time source (default: wall clock).
	Clock clock.Clock

	// IDSource generates message ids and reply ids
	// (default: seeded from crypto/rand).
	IDSource *message.IDSource

	// Random drives backoff jitter (default: exchange.DefaultRandomSource).
	Random exchange.RandomSource

	// LoggerFactory is the factory for creating loggers.
	// If nil, logging is disabled.
	LoggerFactory logging.LoggerFactory
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.Name == "" {
		return ErrNameRequired
	}
	if err := (message.Topic{Device: c.Name}).Validate(); err != nil {
		return fmt.Errorf("%w: %q", ErrInvalidName, c.Name)
	}

	if c.Transport == nil {
		return ErrTransportRequired
	}

	if !c.Mode.IsValid() {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, exchange.ErrInvalidMode)
	}

	if c.Jitter < 0 || c.Jitter >= 1 {
		return fmt.Errorf("%w: jitter %v out of range [0, 1)", ErrInvalidConfig, c.Jitter)
	}

	if err := (exchange.Params{Timeout: c.Timeout, Backoff: c.Backoff}).Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	if c.MaxItems < 0 || c.MaxMem < 0 || c.DedupWindow < 0 || c.DeferredCapacity < 0 {
		return fmt.Errorf("%w: negative capacity", ErrInvalidConfig)
	}

	return nil
}

// applyDefaults fills in default values for unset fields.
func (c *Config) applyDefaults() {
	if c.TTL == 0 {
		c.TTL = exchange.DefaultTTL
	}

	if c.TryCount == 0 {
		c.TryCount = exchange.DefaultTryCount
	}

	if c.Timeout == 0 {
		c.Timeout = exchange.DefaultTimeout
	}

	if c.Backoff == 0 {
		c.Backoff = exchange.DefaultBackoff
	}

	if c.MaxItems == 0 {
		c.MaxItems = cache.DefaultMaxItems
	}

	if c.MaxMem == 0 {
		c.MaxMem = cache.DefaultMaxMem
	}

	if c.DedupWindow == 0 {
		c.DedupWindow = dedup.DefaultCapacity
	}

	if c.ScanLimit == 0 {
		c.ScanLimit = exchange.DefaultScanLimit
	}

	if c.DeferredCapacity == 0 {
		c.DeferredCapacity = DefaultDeferredCapacity
	}

	if c.PollInterval == 0 {
		c.PollInterval = DefaultPollInterval
	}

	if c.Clock == nil {
		c.Clock = clock.New()
	}

	if c.IDSource == nil {
		c.IDSource = message.NewIDSource()
	}
}

// Params returns the retry policy described by the configuration.
func (c *Config) Params() exchange.Params {
	p := exchange.Params{
		TryCount: c.TryCount,
		Timeout:  c.Timeout,
		Backoff:  c.Backoff,
	}
	if c.DisableReliability {
		p.Timeout = 0
	}
	return p
}
