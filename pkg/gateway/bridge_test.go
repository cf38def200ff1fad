package gateway

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/backkem/meshmqtt/pkg/exchange"
	"github.com/backkem/meshmqtt/pkg/message"
	"github.com/backkem/meshmqtt/pkg/smqtt"
	"github.com/backkem/meshmqtt/pkg/transport"
)

// fakeBroker records publishes and lets tests deliver messages.
type fakeBroker struct {
	mu        sync.Mutex
	published []brokerMessage
	handlers  map[string]MessageHandler
	closed    bool
}

func newFakeBroker() *fakeBroker {
	return &fakeBroker{handlers: make(map[string]MessageHandler)}
}

func (f *fakeBroker) Publish(topic string, payload []byte, retained bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.published = append(f.published, brokerMessage{topic: topic, payload: payload, retained: retained})
	return nil
}

func (f *fakeBroker) Subscribe(topic string, h MessageHandler) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handlers[topic] = h
	return nil
}

func (f *fakeBroker) Unsubscribe(topic string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.handlers, topic)
	return nil
}

func (f *fakeBroker) Close() error {
	f.closed = true
	return nil
}

// deliver calls the handler subscribed with filter.
func (f *fakeBroker) deliver(filter, topic string, payload []byte) bool {
	f.mu.Lock()
	h, ok := f.handlers[filter]
	f.mu.Unlock()
	if ok {
		h(topic, payload)
	}
	return ok
}

// waitPublish waits for a publish on topic.
func (f *fakeBroker) waitPublish(topic string) (brokerMessage, bool) {
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		f.mu.Lock()
		for _, m := range f.published {
			if m.topic == topic {
				f.mu.Unlock()
				return m, true
			}
		}
		f.mu.Unlock()
		time.Sleep(time.Millisecond)
	}
	return brokerMessage{}, false
}

type lampEvents struct {
	mu     sync.Mutex
	events []smqtt.Event
}

func (l *lampEvents) HandleEvent(n *smqtt.Node, e smqtt.Event) {
	l.mu.Lock()
	l.events = append(l.events, e)
	l.mu.Unlock()
}

func (l *lampEvents) wait(n int) []smqtt.Event {
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		l.mu.Lock()
		if len(l.events) >= n {
			out := append([]smqtt.Event(nil), l.events...)
			l.mu.Unlock()
			return out
		}
		l.mu.Unlock()
		time.Sleep(time.Millisecond)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]smqtt.Event(nil), l.events...)
}

type bridgeFixture struct {
	broker *fakeBroker
	bridge *Bridge
	gw     *smqtt.Node
	lamp   *smqtt.Node
	events *lampEvents
}

func newBridgeFixture(t *testing.T) *bridgeFixture {
	t.Helper()

	pair, err := transport.NewMeshPair(transport.MeshPairConfig{})
	if err != nil {
		t.Fatalf("NewMeshPair failed: %v", err)
	}

	newNode := func(name string, mode exchange.Mode, tr transport.Transport) *smqtt.Node {
		n, err := smqtt.NewNode(smqtt.Config{
			Name:         name,
			Transport:    tr,
			Mode:         mode,
			Timeout:      20 * time.Millisecond,
			Backoff:      5 * time.Millisecond,
			PollInterval: time.Millisecond,
		})
		if err != nil {
			t.Fatalf("NewNode(%s) failed: %v", name, err)
		}
		return n
	}

	f := &bridgeFixture{
		broker: newFakeBroker(),
		gw:     newNode("gw", exchange.ModeGatewayAckAll, pair.Mesh(0)),
		lamp:   newNode("lamp1", exchange.ModeNodeStandard, pair.Mesh(1)),
		events: &lampEvents{},
	}
	f.lamp.HandleEvents(f.events)

	f.bridge, err = NewBridge(BridgeConfig{Node: f.gw, Broker: f.broker})
	if err != nil {
		t.Fatalf("NewBridge failed: %v", err)
	}
	if err := f.bridge.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	for _, n := range []*smqtt.Node{f.gw, f.lamp} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			n.Run(ctx)
		}()
	}
	for _, n := range []*smqtt.Node{f.gw, f.lamp} {
		for !n.State().IsRunning() {
			time.Sleep(time.Millisecond)
		}
	}

	t.Cleanup(func() {
		f.bridge.Close()
		cancel()
		wg.Wait()
		pair.Close()
	})
	return f
}

// submit runs fn on n's goroutine and waits for it.
func submit(t *testing.T, n *smqtt.Node, fn func(*smqtt.Node)) {
	t.Helper()
	done := make(chan struct{})
	if err := n.Submit(context.Background(), func(n *smqtt.Node) { fn(n); close(done) }); err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	<-done
}

func TestNewBridge_Errors(t *testing.T) {
	if _, err := NewBridge(BridgeConfig{Broker: newFakeBroker()}); err != ErrNodeRequired {
		t.Errorf("no node = %v", err)
	}

	pair, _ := transport.NewMeshPair(transport.MeshPairConfig{})
	defer pair.Close()
	n, _ := smqtt.NewNode(smqtt.Config{Name: "gw", Transport: pair.Mesh(0)})

	if _, err := NewBridge(BridgeConfig{Node: n}); err != ErrBrokerRequired {
		t.Errorf("no broker = %v", err)
	}

	b, err := NewBridge(BridgeConfig{Node: n, Broker: newFakeBroker()})
	if err != nil {
		t.Fatalf("NewBridge failed: %v", err)
	}
	defer b.Close()
	if _, err := NewBridge(BridgeConfig{Node: n, Broker: newFakeBroker()}); err != smqtt.ErrHandlerAlreadySet {
		t.Errorf("second bridge on one node = %v, want ErrHandlerAlreadySet", err)
	}
}

func TestBridge_MeshPublishToBroker(t *testing.T) {
	f := newBridgeFixture(t)

	submit(t, f.lamp, func(n *smqtt.Node) { n.Report("power", message.Switch(true)) })

	m, ok := f.broker.waitPublish("smqtt/lamp1/power")
	if !ok {
		t.Fatal("state not published to broker")
	}
	if string(m.payload) != "on" || !m.retained {
		t.Errorf("publish = %q retained=%v", m.payload, m.retained)
	}
}

func TestBridge_BrokerSetToMesh(t *testing.T) {
	f := newBridgeFixture(t)

	// Teach the bridge the parameter kind.
	submit(t, f.lamp, func(n *smqtt.Node) { n.Report("power", message.Switch(true)) })
	if _, ok := f.broker.waitPublish("smqtt/lamp1/power"); !ok {
		t.Fatal("state not published to broker")
	}

	if !f.broker.deliver(f.bridge.Topics().AllSet(), "smqtt/lamp1/power/set", []byte("off")) {
		t.Fatal("bridge did not subscribe to set topics")
	}

	events := f.events.wait(1)
	if len(events) != 1 {
		t.Fatalf("lamp received %d events, want 1", len(events))
	}
	e := events[0]
	if !e.Match(smqtt.IfSet, message.KindSwitch, "power") || e.Value.Text != "off" || e.Source != "gw" {
		t.Errorf("event = %+v", e)
	}
}

func TestBridge_UnknownKindIsString(t *testing.T) {
	f := newBridgeFixture(t)

	f.broker.deliver(f.bridge.Topics().AllSet(), "smqtt/lamp1/label/set", []byte("kitchen"))

	events := f.events.wait(1)
	if len(events) != 1 {
		t.Fatalf("lamp received %d events, want 1", len(events))
	}
	if events[0].Topic.Kind != message.KindString || events[0].Value.Text != "kitchen" {
		t.Errorf("event = %+v", events[0])
	}
}

func TestBridge_RequestsToBroker(t *testing.T) {
	f := newBridgeFixture(t)

	submit(t, f.lamp, func(n *smqtt.Node) {
		n.Get("thermo", "temp")
		n.Subscribe("thermo", "humidity")
		n.Unsubscribe("thermo", "humidity")
	})

	for _, topic := range []string{
		"smqtt/thermo/temp/get",
		"smqtt/thermo/humidity/subscribe",
		"smqtt/thermo/humidity/unsubscribe",
	} {
		m, ok := f.broker.waitPublish(topic)
		if !ok {
			t.Errorf("%s not published", topic)
			continue
		}
		if string(m.payload) != "lamp1" || m.retained {
			t.Errorf("%s = %q retained=%v", topic, m.payload, m.retained)
		}
	}
}

func TestBridge_PublishStats(t *testing.T) {
	f := newBridgeFixture(t)

	submit(t, f.gw, func(n *smqtt.Node) { f.bridge.PublishStats(n.Stats()) })

	m, ok := f.broker.waitPublish("smqtt/gateway/stats")
	if !ok {
		t.Fatal("stats not published")
	}
	var s statsPayload
	if err := json.Unmarshal(m.payload, &s); err != nil {
		t.Fatalf("stats payload: %v", err)
	}
	if s.Capacity == 0 || s.MaxMem == 0 || !m.retained {
		t.Errorf("stats = %+v", s)
	}
}

func TestBridge_Close(t *testing.T) {
	f := newBridgeFixture(t)

	if err := f.bridge.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if err := f.bridge.Close(); err != ErrBridgeClosed {
		t.Errorf("second Close = %v, want ErrBridgeClosed", err)
	}
	if f.broker.deliver(f.bridge.Topics().AllSet(), "smqtt/lamp1/power/set", nil) {
		t.Error("set subscription should be removed")
	}
	if err := f.bridge.Start(); err != ErrBridgeClosed {
		t.Errorf("Start after Close = %v", err)
	}
}
