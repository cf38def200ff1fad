package message

import (
	"strings"
)

// MessageID identifies a message for duplicate suppression.
// It is 4 printable characters on the wire.
type MessageID [MessageIDSize]byte

// String returns the id as text.
func (id MessageID) String() string { return string(id[:]) }

// ParseMessageID converts a 4-character string to a MessageID.
func ParseMessageID(s string) (MessageID, error) {
	var id MessageID
	if len(s) != MessageIDSize {
		return id, ErrInvalidMessageID
	}
	for i := 0; i < MessageIDSize; i++ {
		if !isIDChar(s[i]) {
			return id, ErrInvalidMessageID
		}
		id[i] = s[i]
	}
	return id, nil
}

// Header is the "<srcNode>/<msgId>" prefix of every message.
type Header struct {
	// Source is the name of the sending node.
	Source string

	// ID is the message id.
	ID MessageID
}

// Size returns the encoded header size in bytes.
func (h Header) Size() int {
	return len(h.Source) + 1 + MessageIDSize
}

// Validate checks that the header can be encoded unambiguously.
func (h Header) Validate() error {
	if h.Source == "" {
		return ErrEmptyDevice
	}
	if !validName(h.Source) {
		return ErrInvalidName
	}
	for _, b := range h.ID {
		if !isIDChar(b) {
			return ErrInvalidMessageID
		}
	}
	return nil
}

// AppendTo appends the encoded header to buf.
func (h Header) AppendTo(buf []byte) []byte {
	buf = append(buf, h.Source...)
	buf = append(buf, fieldSeparator)
	return append(buf, h.ID[:]...)
}

// String returns the encoded header.
func (h Header) String() string {
	return string(h.AppendTo(make([]byte, 0, h.Size())))
}

// ParseHeader decodes a "<srcNode>/<msgId>" string.
func ParseHeader(s string) (Header, error) {
	i := strings.LastIndexByte(s, fieldSeparator)
	if i <= 0 {
		return Header{}, ErrMissingHeader
	}

	id, err := ParseMessageID(s[i+1:])
	if err != nil {
		return Header{}, err
	}

	src := s[:i]
	if !validName(src) {
		return Header{}, ErrMissingHeader
	}

	return Header{Source: src, ID: id}, nil
}

// isIDChar reports whether b may appear in a message id.
func isIDChar(b byte) bool {
	return (b >= '0' && b <= '9') || (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z')
}

// validName reports whether s is free of separator characters.
func validName(s string) bool {
	return !strings.ContainsAny(s, "/ \r\n")
}
