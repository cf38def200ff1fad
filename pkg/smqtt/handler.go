package smqtt

import (
	"time"

	"github.com/backkem/meshmqtt/pkg/message"
)

// Event is a decoded inbound message handed to an EventHandler.
type Event struct {
	// Source is the name of the sending node.
	Source string

	// MessageID is the sender's message id.
	MessageID message.MessageID

	// Command is the requested operation.
	Command message.Command

	// Topic is the addressed parameter.
	Topic message.Topic

	// Value carries the topic kind and the raw value text.
	Value message.Value

	// ReplyID is the frame correlation id; zero for unreliable messages.
	ReplyID uint32

	// Mine is true when the topic addresses this node.
	Mine bool
}

// IfType selects which published values Event.Match accepts.
type IfType int

const (
	// IfSet matches a publish addressed to this node: a request to set one
	// of its parameters.
	IfSet IfType = iota

	// IfValue matches a publish of another node's parameter: a value report.
	IfValue

	// IfEither matches both.
	IfEither
)

// String returns a human-readable name for the match type.
func (t IfType) String() string {
	switch t {
	case IfSet:
		return "Set"
	case IfValue:
		return "Value"
	case IfEither:
		return "Either"
	default:
		return "Unknown"
	}
}

// Match reports whether e is a publish of the given kind and parameter
// name, selected by t. An empty kind matches any kind.
func (e Event) Match(t IfType, kind message.Kind, name string) bool {
	if e.Command != message.CommandPublish {
		return false
	}
	if kind != "" && e.Topic.Kind != kind {
		return false
	}
	if e.Topic.Name != name {
		return false
	}

	switch t {
	case IfSet:
		return e.Mine
	case IfValue:
		return !e.Mine
	case IfEither:
		return true
	default:
		return false
	}
}

// RawPacket is an inbound message handed to a RawHandler undecoded.
type RawPacket struct {
	// Data is the encoded message. It is only valid during the call.
	Data []byte

	// ReplyID is the frame correlation id.
	ReplyID uint32

	// Elapsed is the time from transport receipt to dispatch.
	Elapsed time.Duration
}

// EventHandler receives decoded messages.
//
// Handlers run on the node goroutine. Sends issued from a handler are
// deferred until the next Poll.
type EventHandler interface {
	HandleEvent(n *Node, e Event)
}

// EventHandlerFunc adapts a function to EventHandler.
type EventHandlerFunc func(n *Node, e Event)

// HandleEvent calls f(n, e).
func (f EventHandlerFunc) HandleEvent(n *Node, e Event) { f(n, e) }

// RawHandler receives messages before decoding into an Event.
type RawHandler interface {
	HandleRaw(n *Node, p RawPacket)
}

// RawHandlerFunc adapts a function to RawHandler.
type RawHandlerFunc func(n *Node, p RawPacket)

// HandleRaw calls f(n, p).
func (f RawHandlerFunc) HandleRaw(n *Node, p RawPacket) { f(n, p) }
