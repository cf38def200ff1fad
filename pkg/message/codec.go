package message

import (
	"bytes"
	"strings"
)

// Message is a decoded mesh message.
type Message struct {
	Header  Header
	Command Command
	Topic   Topic

	// Value is the raw value text; empty for subscribe, unsubscribe and get.
	Value string
}

// Build encodes a message:
//
//	<src>/<id> <tag>:<device>/<compressed kind>/<name>/<value>
//
// Returns ErrMessageTooLong if the result exceeds MaxMessageSize.
func Build(h Header, cmd Command, topic Topic, value string) ([]byte, error) {
	if err := h.Validate(); err != nil {
		return nil, err
	}
	if !cmd.IsValid() {
		return nil, ErrInvalidCommand
	}
	if err := topic.Validate(); err != nil {
		return nil, err
	}

	kind := CompressKind(topic.Kind)
	size := h.Size() + 1 + 2 + len(topic.Device) + 1 + len(kind) + 1 + len(topic.Name) + 1 + len(value)
	if size > MaxMessageSize {
		return nil, ErrMessageTooLong
	}

	buf := make([]byte, 0, size)
	buf = h.AppendTo(buf)
	buf = append(buf, headerSeparator, cmd.Tag(), tagSeparator)
	buf = append(buf, topic.Device...)
	buf = append(buf, fieldSeparator)
	buf = append(buf, kind...)
	buf = append(buf, fieldSeparator)
	buf = append(buf, topic.Name...)
	buf = append(buf, fieldSeparator)
	buf = append(buf, value...)

	return buf, nil
}

// Encode encodes m. See Build.
func (m *Message) Encode() ([]byte, error) {
	return Build(m.Header, m.Command, m.Topic, m.Value)
}

// Decode parses an encoded message. Every error wraps ErrMalformed.
func Decode(data []byte) (*Message, error) {
	if len(data) == 0 {
		return nil, ErrMissingHeader
	}
	// Transports built on C strings may deliver a trailing NUL.
	data = bytes.TrimRight(data, "\x00")

	sep := bytes.IndexByte(data, headerSeparator)
	if sep < 0 {
		return nil, ErrMissingBody
	}

	header, err := ParseHeader(string(data[:sep]))
	if err != nil {
		return nil, err
	}

	body := data[sep+1:]
	if len(body) < 2 || body[1] != tagSeparator {
		return nil, ErrMissingBody
	}

	cmd, err := ParseCommand(body[0])
	if err != nil {
		return nil, err
	}

	parts := strings.SplitN(string(body[2:]), "/", 4)
	if len(parts) != 4 || parts[0] == "" {
		return nil, ErrInvalidTopic
	}

	return &Message{
		Header:  header,
		Command: cmd,
		Topic: Topic{
			Device: parts[0],
			Kind:   DecompressKind(parts[1]),
			Name:   parts[2],
		},
		Value: parts[3],
	}, nil
}

// PeekHeader decodes only the header of an encoded message.
func PeekHeader(data []byte) (Header, error) {
	sep := bytes.IndexByte(data, headerSeparator)
	if sep < 0 {
		return Header{}, ErrMissingBody
	}
	return ParseHeader(string(data[:sep]))
}

// Reheader re-encodes m under a new header, keeping the body.
// Used to build acknowledgements that echo the received body.
func Reheader(m *Message, h Header) ([]byte, error) {
	return Build(h, m.Command, m.Topic, m.Value)
}
