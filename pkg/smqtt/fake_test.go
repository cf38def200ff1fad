package smqtt

import (
	"context"
	"sync"
	"testing"

	"github.com/backkem/meshmqtt/pkg/message"
	"github.com/backkem/meshmqtt/pkg/transport"
	"github.com/benbjohnson/clock"
)

// fakeTransport records sent packets and lets tests inject inbound ones.
type fakeTransport struct {
	mu      sync.Mutex
	sent    []transport.Packet
	inbound chan transport.Packet
	closed  bool
	sendErr error

	// respond, if set, is called for every sent packet; a non-nil result
	// is queued as inbound.
	respond func(p transport.Packet) *transport.Packet
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{inbound: make(chan transport.Packet, 64)}
}

func (f *fakeTransport) Send(ctx context.Context, p transport.Packet) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return f.SendAsync(p)
}

func (f *fakeTransport) SendAsync(p transport.Packet) error {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return transport.ErrClosed
	}
	if f.sendErr != nil {
		err := f.sendErr
		f.mu.Unlock()
		return err
	}
	f.sent = append(f.sent, p)
	respond := f.respond
	f.mu.Unlock()

	if respond != nil {
		if r := respond(p); r != nil {
			f.inbound <- *r
		}
	}
	return nil
}

func (f *fakeTransport) Inbound() <-chan transport.Packet { return f.inbound }

func (f *fakeTransport) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return transport.ErrClosed
	}
	f.closed = true
	close(f.inbound)
	return nil
}

func (f *fakeTransport) Sent() []transport.Packet {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]transport.Packet, len(f.sent))
	copy(out, f.sent)
	return out
}

func (f *fakeTransport) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = nil
}

// newTestNode creates a node over a fake transport and a mock clock.
func newTestNode(t *testing.T, name string, mutate func(*Config)) (*Node, *fakeTransport, *clock.Mock) {
	t.Helper()

	tr := newFakeTransport()
	mock := clock.NewMock()
	config := Config{
		Name:      name,
		Transport: tr,
		Clock:     mock,
		IDSource:  message.NewIDSourceWithSeed(1),
	}
	if mutate != nil {
		mutate(&config)
	}

	n, err := NewNode(config)
	if err != nil {
		t.Fatalf("NewNode failed: %v", err)
	}
	return n, tr, mock
}

// buildMessage encodes a message from src with the given id.
func buildMessage(t *testing.T, src, id string, cmd message.Command, topic message.Topic, value string) []byte {
	t.Helper()

	mid, err := message.ParseMessageID(id)
	if err != nil {
		t.Fatalf("ParseMessageID failed: %v", err)
	}
	data, err := message.Build(message.Header{Source: src, ID: mid}, cmd, topic, value)
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	return data
}

// ackFor builds the acknowledgement a peer named acker would send for p.
func ackFor(t *testing.T, p transport.Packet, acker, id string) transport.Packet {
	t.Helper()

	m, err := message.Decode(p.Data)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	mid, _ := message.ParseMessageID(id)
	data, err := message.Reheader(m, message.Header{Source: acker, ID: mid})
	if err != nil {
		t.Fatalf("Reheader failed: %v", err)
	}
	return transport.Packet{Data: data, ReplyID: p.ReplyID, ReplyIDPrev: p.ReplyID, TTL: p.TTL}
}

// recorder collects events.
type recorder struct {
	events []Event
	raw    []RawPacket
}

func (r *recorder) HandleEvent(n *Node, e Event) { r.events = append(r.events, e) }

func (r *recorder) HandleRaw(n *Node, p RawPacket) { r.raw = append(r.raw, p) }
