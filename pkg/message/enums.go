// Package message implements the mesh publish/subscribe wire format.
//
// A message is a single line of text:
//
//	<srcNode>/<msgId> <tag>:<destNode>/<kind>/<name>/<value>
//
// The header names the sending node and carries a 4-character message id
// used for duplicate suppression. The body carries a one-character command
// tag and a topic whose kind token is compressed to a short code.
//
// Messages travel inside a Frame, a fixed-width binary envelope carrying the
// mesh hop budget and the correlation ids used to match acknowledgements.
//
// The package provides:
//   - Header, body and topic encoding/decoding
//   - Kind compression (bijective table, unknown kinds pass through)
//   - Typed value formatting for the common parameter kinds
//   - Frame encoding with explicit big-endian fields
//   - Message id and reply id generation
package message

// Command is the operation a message requests.
// The value is the tag character used on the wire.
type Command byte

const (
	// CommandPublish carries a parameter value.
	CommandPublish Command = 'P'

	// CommandSubscribe asks the destination to publish updates of a parameter.
	CommandSubscribe Command = 'S'

	// CommandUnsubscribe cancels a subscription.
	CommandUnsubscribe Command = 'U'

	// CommandGet asks the destination to publish the current value once.
	CommandGet Command = 'G'
)

// String returns a human-readable name for the command.
func (c Command) String() string {
	switch c {
	case CommandPublish:
		return "Publish"
	case CommandSubscribe:
		return "Subscribe"
	case CommandUnsubscribe:
		return "Unsubscribe"
	case CommandGet:
		return "Get"
	default:
		return "Unknown"
	}
}

// IsValid returns true if the command is a defined value.
func (c Command) IsValid() bool {
	switch c {
	case CommandPublish, CommandSubscribe, CommandUnsubscribe, CommandGet:
		return true
	}
	return false
}

// Tag returns the wire tag character.
func (c Command) Tag() byte { return byte(c) }

// ParseCommand converts a wire tag to a Command.
func ParseCommand(tag byte) (Command, error) {
	c := Command(tag)
	if !c.IsValid() {
		return 0, ErrInvalidCommand
	}
	return c, nil
}

// Kind is a parameter type keyword such as "switch" or "temp".
// Kinds outside the compression table are carried verbatim.
type Kind string

// Parameter kinds with a compressed wire code.
const (
	KindSwitch   Kind = "switch"
	KindTemp     Kind = "temp"
	KindHumidity Kind = "humidity"
	KindPressure Kind = "pressure"
	KindTrigger  Kind = "trigger"
	KindContact  Kind = "contact"
	KindDimmer   Kind = "dimmer"
	KindString   Kind = "string"
	KindNumber   Kind = "number"
	KindFloat    Kind = "float"
	KindInt      Kind = "int"
	KindShutter  Kind = "shutter"
	KindCounter  Kind = "counter"
	KindBinary   Kind = "bin"
)
