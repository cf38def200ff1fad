package gateway

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/backkem/meshmqtt/pkg/message"
	"github.com/backkem/meshmqtt/pkg/smqtt"
	"github.com/pion/logging"
)

// DefaultQueueSize bounds broker publishes waiting for the broker goroutine.
const DefaultQueueSize = 64

// BridgeConfig configures a Bridge.
type BridgeConfig struct {
	// Node is the gateway's mesh node. Required. The bridge registers
	// itself as the node's event handler.
	Node *smqtt.Node

	// Broker is the MQTT side. Required.
	Broker Broker

	// Prefix is the broker topic root (default: DefaultPrefix).
	Prefix string

	// QueueSize bounds pending broker publishes (default: DefaultQueueSize).
	QueueSize int

	// LoggerFactory is the factory for creating loggers.
	// If nil, logging is disabled.
	LoggerFactory logging.LoggerFactory
}

type paramKey struct {
	device string
	name   string
}

type brokerMessage struct {
	topic    string
	payload  []byte
	retained bool
}

// Bridge relays between the mesh and an MQTT broker.
//
// Mesh to broker:
//   - Publish sets the retained state topic <prefix>/<device>/<name>
//   - Get, Subscribe and Unsubscribe are published on the matching request
//     topic with the requesting node's name as payload
//
// Broker to mesh:
//   - <prefix>/<device>/<name>/set becomes a mesh Publish to device, using
//     the kind last seen for that parameter, or string
//
// Mesh events arrive on the node goroutine and are queued for a broker
// goroutine. Broker messages are handed to the node with Submit.
type Bridge struct {
	node   *smqtt.Node
	broker Broker
	topics Topics

	// kinds is touched only on the node goroutine.
	kinds map[paramKey]message.Kind

	out       chan brokerMessage
	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	closeOnce sync.Once

	log logging.LeveledLogger
}

// Verify Bridge implements smqtt.EventHandler.
var _ smqtt.EventHandler = (*Bridge)(nil)

// NewBridge creates a bridge and registers it with the node.
func NewBridge(config BridgeConfig) (*Bridge, error) {
	if config.Node == nil {
		return nil, ErrNodeRequired
	}
	if config.Broker == nil {
		return nil, ErrBrokerRequired
	}
	if config.QueueSize <= 0 {
		config.QueueSize = DefaultQueueSize
	}

	ctx, cancel := context.WithCancel(context.Background())
	b := &Bridge{
		node:   config.Node,
		broker: config.Broker,
		topics: Topics{Prefix: config.Prefix},
		kinds:  make(map[paramKey]message.Kind),
		out:    make(chan brokerMessage, config.QueueSize),
		ctx:    ctx,
		cancel: cancel,
	}
	if config.LoggerFactory != nil {
		b.log = config.LoggerFactory.NewLogger("gateway")
	}

	if err := config.Node.HandleEvents(b); err != nil {
		cancel()
		return nil, err
	}

	b.wg.Add(1)
	go b.publishLoop()

	return b, nil
}

// Topics returns the topic layout used by the bridge.
func (b *Bridge) Topics() Topics { return b.topics }

// Start subscribes to the broker command topics.
func (b *Bridge) Start() error {
	if b.ctx.Err() != nil {
		return ErrBridgeClosed
	}
	if err := b.broker.Subscribe(b.topics.AllSet(), b.handleSet); err != nil {
		return err
	}
	if b.log != nil {
		b.log.Infof("bridge started on %s", b.topics.AllSet())
	}
	return nil
}

// Close unsubscribes and stops the broker goroutine. The broker itself is
// left open.
func (b *Bridge) Close() error {
	err := ErrBridgeClosed
	b.closeOnce.Do(func() {
		err = b.broker.Unsubscribe(b.topics.AllSet())
		b.cancel()
		b.wg.Wait()
	})
	return err
}

// HandleEvent relays a mesh message to the broker.
func (b *Bridge) HandleEvent(n *smqtt.Node, e smqtt.Event) {
	device, name := e.Topic.Device, e.Topic.Name

	switch e.Command {
	case message.CommandPublish:
		if e.Topic.Kind != "" {
			b.kinds[paramKey{device, name}] = e.Topic.Kind
		}
		b.enqueue(b.topics.State(device, name), []byte(e.Value.Text), true)

	case message.CommandGet:
		b.enqueue(b.topics.Get(device, name), []byte(e.Source), false)

	case message.CommandSubscribe:
		b.enqueue(b.topics.Subscribe(device, name), []byte(e.Source), false)

	case message.CommandUnsubscribe:
		b.enqueue(b.topics.Unsubscribe(device, name), []byte(e.Source), false)
	}
}

type statsPayload struct {
	RTTMin        uint16  `json:"rtt_min_ms"`
	RTTMax        uint16  `json:"rtt_max_ms"`
	RTTFast       float64 `json:"rtt_fast_ms"`
	RTTMedium     float64 `json:"rtt_medium_ms"`
	RTTSlow       float64 `json:"rtt_slow_ms"`
	ResendPackets uint32  `json:"resend_packets"`
	AckPackets    uint32  `json:"ack_packets"`
	UsedSlots     int     `json:"used_slots"`
	Capacity      int     `json:"capacity"`
	UsedMemory    int     `json:"used_memory"`
	MaxMem        int     `json:"max_mem"`
}

// PublishStats publishes node statistics on the retained stats topic.
// Suitable as smqtt.Config.OnStats.
func (b *Bridge) PublishStats(s smqtt.Stats) {
	data, err := json.Marshal(statsPayload{
		RTTMin:        s.Telemetry.RTTMin,
		RTTMax:        s.Telemetry.RTTMax,
		RTTFast:       s.Telemetry.Fast(),
		RTTMedium:     s.Telemetry.Medium(),
		RTTSlow:       s.Telemetry.Slow(),
		ResendPackets: s.Telemetry.ResendPackets,
		AckPackets:    s.Telemetry.AckPackets,
		UsedSlots:     s.UsedSlots,
		Capacity:      s.Capacity,
		UsedMemory:    s.UsedMemory,
		MaxMem:        s.MaxMem,
	})
	if err != nil {
		return
	}
	b.enqueue(b.topics.Stats(), data, true)
}

// handleSet runs on a broker goroutine.
func (b *Bridge) handleSet(topic string, payload []byte) {
	device, name, err := b.topics.ParseSet(topic)
	if err != nil {
		if b.log != nil {
			b.log.Debugf("ignoring %s: %v", topic, err)
		}
		return
	}
	value := string(payload)

	err = b.node.Submit(b.ctx, func(n *smqtt.Node) {
		kind, ok := b.kinds[paramKey{device, name}]
		if !ok {
			kind = message.KindString
		}
		if _, err := n.Publish(device, name, message.Raw(kind, value)); err != nil && b.log != nil {
			b.log.Warnf("set %s/%s failed: %v", device, name, err)
		}
	})
	if err != nil && b.log != nil {
		b.log.Warnf("dropping set %s/%s: %v", device, name, err)
	}
}

func (b *Bridge) enqueue(topic string, payload []byte, retained bool) {
	select {
	case b.out <- brokerMessage{topic: topic, payload: payload, retained: retained}:
	default:
		if b.log != nil {
			b.log.Warnf("broker queue full, dropping %s", topic)
		}
	}
}

func (b *Bridge) publishLoop() {
	defer b.wg.Done()

	for {
		select {
		case <-b.ctx.Done():
			return
		case m := <-b.out:
			if err := b.broker.Publish(m.topic, m.payload, m.retained); err != nil && b.log != nil {
				b.log.Warnf("publish %s failed: %v", m.topic, err)
			}
		}
	}
}
