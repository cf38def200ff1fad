package smqtt

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/backkem/meshmqtt/pkg/cache"
	"github.com/backkem/meshmqtt/pkg/message"
	"github.com/backkem/meshmqtt/pkg/transport"
)

// Publish sends a parameter value to device. It returns the reply id the
// acknowledgement will carry, or zero when reliability is disabled.
//
// Called from a handler, the send is queued until the next Poll.
func (n *Node) Publish(device, name string, v message.Value) (uint32, error) {
	return n.sendMessage(message.CommandPublish, message.Topic{Device: device, Kind: v.Kind, Name: name}, v.Text)
}

// Report publishes one of this node's own parameters.
func (n *Node) Report(name string, v message.Value) (uint32, error) {
	return n.Publish(n.name, name, v)
}

// Subscribe asks device to publish updates of param. param is a parameter
// name, "kind/name", or empty for every parameter.
func (n *Node) Subscribe(device, param string) (uint32, error) {
	return n.sendMessage(message.CommandSubscribe, paramTopic(device, param), "")
}

// Unsubscribe cancels a subscription made with Subscribe.
func (n *Node) Unsubscribe(device, param string) (uint32, error) {
	return n.sendMessage(message.CommandUnsubscribe, paramTopic(device, param), "")
}

// Get asks device to publish the current value of param once.
func (n *Node) Get(device, param string) (uint32, error) {
	return n.sendMessage(message.CommandGet, paramTopic(device, param), "")
}

// Send writes an encoded message directly to the transport, blocking until
// it is handed to the network. The message is not tracked for
// acknowledgement.
func (n *Node) Send(ctx context.Context, data []byte, replyID uint32) error {
	return n.transport.Send(ctx, transport.Packet{Data: data, ReplyID: replyID, TTL: n.ttl})
}

// SendAsync queues an encoded message on the transport without tracking it.
func (n *Node) SendAsync(data []byte, replyID uint32) error {
	return n.transport.SendAsync(transport.Packet{Data: data, ReplyID: replyID, TTL: n.ttl})
}

// paramTopic splits an optional "kind/name" parameter.
func paramTopic(device, param string) message.Topic {
	t := message.Topic{Device: device, Name: param}
	if kind, name, ok := strings.Cut(param, "/"); ok {
		t.Kind = message.Kind(kind)
		t.Name = name
	}
	return t
}

// sendMessage builds a message under a fresh header and sends it.
func (n *Node) sendMessage(cmd message.Command, topic message.Topic, value string) (uint32, error) {
	if n.State() == NodeStateClosed {
		return 0, ErrNodeClosed
	}

	data, err := message.Build(message.Header{Source: n.name, ID: n.ids.NextMessageID()}, cmd, topic, value)
	if err != nil {
		return 0, err
	}
	return n.sendData(data)
}

// sendData transmits data, tracking it in the cache when the retry policy
// is reliable. While a handler runs the send is deferred.
func (n *Node) sendData(data []byte) (uint32, error) {
	if !n.params.Reliable() {
		if n.busy {
			return 0, n.deferred.push(pendingSend{data: data})
		}
		return 0, n.transmit(transport.Packet{Data: data, TTL: n.ttl})
	}

	if n.busy {
		replyID, err := n.allocReplyID()
		if err != nil {
			return 0, err
		}
		if err := n.deferred.push(pendingSend{data: data, replyID: replyID}); err != nil {
			return 0, err
		}
		if n.log != nil {
			n.log.Tracef("deferred reply id %d", replyID)
		}
		return replyID, nil
	}

	for attempt := 0; attempt < maxReplyIDAttempts; attempt++ {
		replyID := n.ids.NextReplyID()
		err := n.track(data, replyID)
		if errors.Is(err, cache.ErrDuplicateReplyID) {
			continue
		}
		if err != nil {
			return 0, err
		}
		return replyID, nil
	}
	return 0, ErrReplyIDExhausted
}

// allocReplyID picks a reply id unused by the cache and the deferred queue.
func (n *Node) allocReplyID() (uint32, error) {
	for attempt := 0; attempt < maxReplyIDAttempts; attempt++ {
		replyID := n.ids.NextReplyID()
		if !n.Pending(replyID) {
			return replyID, nil
		}
	}
	return 0, ErrReplyIDExhausted
}

// track stores data in the cache and performs the first transmission.
// Once cached, the outcome is reported by acknowledgement or by delivery
// failure; a failed first transmission is left to the scheduler.
func (n *Node) track(data []byte, replyID uint32) error {
	if _, err := n.cache.Add(data, n.ttl, replyID, n.params.Timeout, n.params.TryCount); err != nil {
		if n.log != nil && !errors.Is(err, cache.ErrDuplicateReplyID) {
			n.log.Warnf("cannot track reply id %d: %v", replyID, err)
		}
		return err
	}

	if err := n.transmit(transport.Packet{Data: data, ReplyID: replyID, TTL: n.ttl}); err != nil && n.log != nil {
		n.log.Debugf("first transmission of reply id %d failed: %v", replyID, err)
	}
	return nil
}

func (n *Node) transmit(p transport.Packet) error {
	if err := n.transport.SendAsync(p); err != nil {
		return fmt.Errorf("send reply id %d: %w", p.ReplyID, err)
	}
	return nil
}

// flushDeferred sends everything queued by handlers.
func (n *Node) flushDeferred() {
	for {
		p, ok := n.deferred.pop()
		if !ok {
			return
		}

		if p.replyID == 0 {
			if err := n.transmit(transport.Packet{Data: p.data, TTL: n.ttl}); err != nil && n.log != nil {
				n.log.Debugf("deferred send failed: %v", err)
			}
			continue
		}

		if err := n.track(p.data, p.replyID); err != nil {
			n.reportFailure(p.replyID, fmt.Errorf("%w: %v", ErrDeliveryFailed, err))
		}
	}
}
