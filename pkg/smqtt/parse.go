package smqtt

import (
	"github.com/backkem/meshmqtt/pkg/dedup"
	"github.com/backkem/meshmqtt/pkg/exchange"
	"github.com/backkem/meshmqtt/pkg/message"
	"github.com/backkem/meshmqtt/pkg/transport"
)

// Result is the outcome of processing one inbound message.
type Result int

const (
	// ResultDispatched means the message was handed to a handler.
	ResultDispatched Result = iota

	// ResultAcked means the message acknowledged one of our pending
	// messages. No handler is called.
	ResultAcked

	// ResultDuplicate means the message id was seen recently.
	ResultDuplicate

	// ResultMalformed means the message could not be decoded.
	ResultMalformed

	// ResultFiltered means the operating mode excludes the message.
	ResultFiltered

	// ResultUnhandled means the message was accepted but no handler is set.
	ResultUnhandled
)

// String returns a human-readable name for the result.
func (r Result) String() string {
	switch r {
	case ResultDispatched:
		return "Dispatched"
	case ResultAcked:
		return "Acked"
	case ResultDuplicate:
		return "Duplicate"
	case ResultMalformed:
		return "Malformed"
	case ResultFiltered:
		return "Filtered"
	case ResultUnhandled:
		return "Unhandled"
	default:
		return "Unknown"
	}
}

// Parse processes one inbound message carried with the given reply id.
func (n *Node) Parse(data []byte, replyID uint32) Result {
	return n.ParsePacket(transport.Packet{Data: data, ReplyID: replyID})
}

// ParsePacket processes one inbound packet:
//
//  1. Decode; malformed input is dropped.
//  2. Self echoes are dropped unless the node receives everything.
//  3. A seen message id is a duplicate. It is acknowledged again when the
//     mode acknowledges it, and never dispatched.
//  4. A reply id matching a pending message completes it.
//  5. Acks for other nodes are dropped.
//  6. The mode decides on acknowledgement and delivery.
func (n *Node) ParsePacket(p transport.Packet) Result {
	if n.busy {
		if n.log != nil {
			n.log.Warn("parse called from a handler, dropping")
		}
		return ResultFiltered
	}

	m, err := message.Decode(p.Data)
	if err != nil {
		if n.log != nil {
			n.log.Debugf("dropping malformed message: %v", err)
		}
		return ResultMalformed
	}

	self := m.Header.Source == n.name
	if self && n.mode != exchange.ModeNodeReceiveAll {
		return ResultFiltered
	}

	mine := n.addressedToMe(m.Topic.Device)

	if n.ledger.SeenOrRecord(dedup.ID(m.Header.ID)) {
		if !self && !p.IsAck() && exchange.ShouldAckDuplicate(n.mode, mine) {
			n.ack(m, p.ReplyID)
		}
		if n.log != nil {
			n.log.Tracef("duplicate %s from %s", m.Header.ID, m.Header.Source)
		}
		return ResultDuplicate
	}

	if !self && p.ReplyID != 0 {
		if e, err := n.cache.Delete(p.ReplyID); err == nil {
			rtt := n.clock.Since(e.SentAt)
			n.tracker.OnAck(rtt)
			n.resolve(p.ReplyID, nil)
			if n.log != nil {
				n.log.Debugf("reply id %d acked by %s after %v", p.ReplyID, m.Header.Source, rtt)
			}
			return ResultAcked
		}
	}

	if p.IsAck() {
		return ResultFiltered
	}

	deliver, ack := exchange.AckPolicy(n.mode, mine)
	if ack && !self {
		n.ack(m, p.ReplyID)
	}
	if !deliver {
		return ResultFiltered
	}

	return n.dispatch(m, p, mine)
}

// ack acknowledges a reliable message by echoing its body under our header.
func (n *Node) ack(m *message.Message, replyID uint32) {
	if replyID == 0 {
		return
	}

	data, err := message.Reheader(m, message.Header{Source: n.name, ID: n.ids.NextMessageID()})
	if err != nil {
		if n.log != nil {
			n.log.Debugf("cannot ack reply id %d: %v", replyID, err)
		}
		return
	}

	err = n.transmit(transport.Packet{Data: data, ReplyID: replyID, ReplyIDPrev: replyID, TTL: n.ttl})
	if err != nil && n.log != nil {
		n.log.Debugf("ack of reply id %d not sent: %v", replyID, err)
	}
}

// dispatch hands an accepted message to the registered handlers.
func (n *Node) dispatch(m *message.Message, p transport.Packet, mine bool) Result {
	if n.events == nil && n.raw == nil {
		return ResultUnhandled
	}

	n.busy = true
	defer func() { n.busy = false }()

	if n.raw != nil {
		elapsed := n.clock.Since(p.Received)
		if p.Received.IsZero() || elapsed < 0 {
			elapsed = 0
		}
		n.raw.HandleRaw(n, RawPacket{Data: p.Data, ReplyID: p.ReplyID, Elapsed: elapsed})
	}

	if n.events != nil {
		n.events.HandleEvent(n, Event{
			Source:    m.Header.Source,
			MessageID: m.Header.ID,
			Command:   m.Command,
			Topic:     m.Topic,
			Value:     message.Value{Kind: m.Topic.Kind, Text: m.Value},
			ReplyID:   p.ReplyID,
			Mine:      mine,
		})
	}

	return ResultDispatched
}
