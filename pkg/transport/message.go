package transport

import (
	"context"
	"net"
	"time"

	"github.com/backkem/meshmqtt/pkg/message"
)

// Packet is one message travelling over the mesh together with its frame
// fields.
type Packet struct {
	// Data is the encoded message.
	Data []byte

	// ReplyID correlates a message with its acknowledgement.
	ReplyID uint32

	// ReplyIDPrev is the optional secondary correlation key.
	ReplyIDPrev uint32

	// TTL is the mesh hop budget.
	TTL uint8

	// From is the link-layer source of a received packet. Nil on send.
	From net.Addr

	// Received is when the transport read the packet. Zero on send.
	Received time.Time
}

// IsAck reports whether the packet is an acknowledgement. An ack carries
// the reply id it acknowledges in both correlation fields.
func (p Packet) IsAck() bool {
	return p.ReplyID != 0 && p.ReplyIDPrev == p.ReplyID
}

// Frame returns the frame carrying p.
func (p Packet) Frame() *message.Frame {
	return &message.Frame{
		TTL:         p.TTL,
		ReplyID:     p.ReplyID,
		ReplyIDPrev: p.ReplyIDPrev,
		Payload:     p.Data,
	}
}

// PacketFromFrame converts a decoded frame into a received packet.
func PacketFromFrame(f *message.Frame, from net.Addr, received time.Time) Packet {
	return Packet{
		Data:        f.Payload,
		ReplyID:     f.ReplyID,
		ReplyIDPrev: f.ReplyIDPrev,
		TTL:         f.TTL,
		From:        from,
		Received:    received,
	}
}

// Transport moves packets between mesh nodes.
//
// Send and SendAsync may be called from the node goroutine; the transport
// keeps its own goroutines for I/O and delivers received packets on the
// Inbound channel, which is closed when the transport shuts down.
type Transport interface {
	// Send writes the packet and blocks until it is handed to the network.
	Send(ctx context.Context, p Packet) error

	// SendAsync queues the packet and returns immediately.
	// Returns ErrQueueFull when the queue is saturated.
	SendAsync(p Packet) error

	// Inbound delivers received packets.
	Inbound() <-chan Packet

	// Close stops the transport.
	Close() error
}
