package smqtt

import (
	"fmt"
	"sync"
	"time"

	"github.com/backkem/meshmqtt/pkg/cache"
	"github.com/backkem/meshmqtt/pkg/dedup"
	"github.com/backkem/meshmqtt/pkg/exchange"
	"github.com/backkem/meshmqtt/pkg/message"
	"github.com/backkem/meshmqtt/pkg/telemetry"
	"github.com/backkem/meshmqtt/pkg/transport"
	"github.com/benbjohnson/clock"
	"github.com/pion/logging"
)

// Stats is a point-in-time view of a node.
type Stats struct {
	// Telemetry holds the round-trip statistics.
	Telemetry telemetry.Snapshot

	// UsedSlots and Capacity describe cache entry occupancy.
	UsedSlots int
	Capacity  int

	// UsedMemory and MaxMem describe cache payload bytes.
	UsedMemory int
	MaxMem     int

	// Deferred is the number of sends waiting for the next Poll.
	Deferred int

	// Waiting is the number of synchronous senders blocked on an ack.
	Waiting int
}

// Node is a mesh publish/subscribe endpoint.
//
// The message cache, dedup ledger, telemetry tracker and scheduler are owned
// by a single goroutine: either the caller driving Parse and Poll directly,
// or the Run loop. Other goroutines reach a running node through Submit.
type Node struct {
	config    Config
	name      string
	mode      exchange.Mode
	ttl       uint8
	params    exchange.Params
	transport transport.Transport
	clock     clock.Clock
	ids       *message.IDSource

	cache     *cache.Cache
	ledger    *dedup.Ledger
	tracker   *telemetry.Tracker
	scheduler *exchange.Scheduler
	deferred  *deferredQueue

	events EventHandler
	raw    RawHandler

	// busy is set while a handler may be running.
	busy    bool
	waiters map[uint32]chan error

	mu       sync.Mutex
	state    NodeState
	submitCh chan func(*Node)
	runDone  chan struct{}

	log logging.LeveledLogger
}

// NewNode creates a node with the given configuration.
func NewNode(config Config) (*Node, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	config.applyDefaults()

	n := &Node{
		config:    config,
		name:      config.Name,
		mode:      config.Mode,
		ttl:       config.TTL,
		params:    config.Params(),
		transport: config.Transport,
		clock:     config.Clock,
		ids:       config.IDSource,
		ledger:    dedup.NewLedger(config.DedupWindow),
		tracker:   telemetry.NewTracker(),
		deferred:  newDeferredQueue(config.DeferredCapacity),
		waiters:   make(map[uint32]chan error),
		state:     NodeStateInitialized,
		submitCh:  make(chan func(*Node)),
	}

	if config.LoggerFactory != nil {
		n.log = config.LoggerFactory.NewLogger("smqtt")
	}

	n.cache = cache.New(cache.Config{
		MaxItems: config.MaxItems,
		MaxMem:   config.MaxMem,
		Clock:    config.Clock,
	})

	scheduler, err := exchange.NewScheduler(exchange.SchedulerConfig{
		Cache:         n.cache,
		Tracker:       n.tracker,
		Backoff:       exchange.NewAdditiveBackoff(n.params.Backoff, config.Jitter, config.Random),
		ScanLimit:     config.ScanLimit,
		Clock:         config.Clock,
		LoggerFactory: config.LoggerFactory,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create scheduler: %w", err)
	}
	n.scheduler = scheduler

	if n.log != nil {
		n.log.Infof("node %q created: mode=%v ttl=%d tries=%d timeout=%v backoff=%v",
			n.name, n.mode, n.ttl, n.params.TryCount, n.params.Timeout, n.params.Backoff)
	}

	return n, nil
}

// Name returns the node name.
func (n *Node) Name() string { return n.name }

// Mode returns the operating mode.
func (n *Node) Mode() exchange.Mode { return n.mode }

// Clock returns the node's time source.
func (n *Node) Clock() clock.Clock { return n.clock }

// Params returns the retry policy applied to new messages.
func (n *Node) Params() exchange.Params { return n.params }

// State returns the current lifecycle state.
func (n *Node) State() NodeState {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.state
}

// HandleEvents registers the decoded message handler. It can be set once.
func (n *Node) HandleEvents(h EventHandler) error {
	if n.events != nil {
		return ErrHandlerAlreadySet
	}
	n.events = h
	return nil
}

// HandleRaw registers the undecoded message handler. It can be set once.
func (n *Node) HandleRaw(h RawHandler) error {
	if n.raw != nil {
		return ErrHandlerAlreadySet
	}
	n.raw = h
	return nil
}

// SetTimeouts changes the retry policy. Messages already in flight keep
// their try count and timeout; later resends use the new backoff.
// A zero timeout disables reliability for new messages.
func (n *Node) SetTimeouts(tryCount uint8, timeout, backoff time.Duration) error {
	p := exchange.Params{TryCount: tryCount, Timeout: timeout, Backoff: backoff}
	if err := p.Validate(); err != nil {
		return err
	}
	n.params = p
	n.scheduler.SetBackoff(exchange.NewAdditiveBackoff(backoff, n.config.Jitter, n.config.Random))

	if n.log != nil {
		n.log.Debugf("timeouts set: tries=%d timeout=%v backoff=%v", tryCount, timeout, backoff)
	}
	return nil
}

// SetMode changes the operating mode.
func (n *Node) SetMode(mode exchange.Mode) error {
	if !mode.IsValid() {
		return exchange.ErrInvalidMode
	}
	n.mode = mode
	return nil
}

// SetTTL changes the hop budget stamped on new messages.
func (n *Node) SetTTL(ttl uint8) {
	n.ttl = ttl
}

// Stats returns current statistics.
func (n *Node) Stats() Stats {
	return Stats{
		Telemetry:  n.tracker.Snapshot(),
		UsedSlots:  n.cache.UsedSlots(),
		Capacity:   n.cache.Capacity(),
		UsedMemory: n.cache.UsedMemory(),
		MaxMem:     n.cache.MaxMem(),
		Deferred:   n.deferred.len(),
		Waiting:    len(n.waiters),
	}
}

// Pending reports whether replyID is still awaiting acknowledgement.
func (n *Node) Pending(replyID uint32) bool {
	if _, err := n.cache.Find(replyID); err == nil {
		return true
	}
	return n.deferred.has(replyID)
}

// Cancel stops tracking a reliable message. A synchronous sender waiting on
// it returns ErrCancelled. Returns cache.ErrNotFound if replyID is not
// pending.
func (n *Node) Cancel(replyID uint32) error {
	if n.deferred.remove(replyID) {
		n.resolve(replyID, ErrCancelled)
		return nil
	}
	if _, err := n.cache.Delete(replyID); err != nil {
		return err
	}
	n.resolve(replyID, ErrCancelled)

	if n.log != nil {
		n.log.Debugf("cancelled reply id %d", replyID)
	}
	return nil
}

// Close shuts down the transport. A Run loop returns once the transport's
// inbound channel closes.
func (n *Node) Close() error {
	n.mu.Lock()
	if n.state == NodeStateClosed {
		n.mu.Unlock()
		return ErrNodeClosed
	}
	running := n.state.IsRunning()
	n.state = NodeStateClosed
	n.mu.Unlock()

	if n.log != nil {
		n.log.Infof("closing node %q", n.name)
	}

	err := n.transport.Close()
	if !running {
		n.resolveAll(ErrNodeClosed)
	}
	return err
}

// addressedToMe reports whether a topic device names this node.
func (n *Node) addressedToMe(device string) bool {
	if device == n.name {
		return true
	}
	return n.mode.IsGateway() && device == GatewayName
}

// resolve completes the synchronous sender waiting on replyID, if any.
func (n *Node) resolve(replyID uint32, err error) {
	ch, ok := n.waiters[replyID]
	if !ok {
		return
	}
	delete(n.waiters, replyID)
	ch <- err
}

func (n *Node) resolveAll(err error) {
	for id := range n.waiters {
		n.resolve(id, err)
	}
}

// reportFailure notifies the application that replyID will not be delivered.
func (n *Node) reportFailure(replyID uint32, err error) {
	n.resolve(replyID, err)
	if n.config.OnDeliveryFailed != nil {
		n.config.OnDeliveryFailed(replyID, err)
	}
}
