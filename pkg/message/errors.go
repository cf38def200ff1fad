package message

import (
	"errors"
	"fmt"
)

// ErrMalformed is the parent of every decode error. Inbound processing
// treats any error wrapping it as a packet to drop silently.
var ErrMalformed = errors.New("message: malformed")

// Message layer errors.
var (
	// Header and body decoding errors
	ErrMissingHeader    = fmt.Errorf("%w: missing header", ErrMalformed)
	ErrMissingBody      = fmt.Errorf("%w: missing body", ErrMalformed)
	ErrInvalidMessageID = fmt.Errorf("%w: invalid message id", ErrMalformed)
	ErrInvalidCommand   = fmt.Errorf("%w: invalid command tag", ErrMalformed)
	ErrInvalidTopic     = fmt.Errorf("%w: invalid topic", ErrMalformed)

	// Frame errors
	ErrFrameTooShort = fmt.Errorf("%w: frame too short", ErrMalformed)
	ErrFrameLength   = fmt.Errorf("%w: frame length mismatch", ErrMalformed)

	// Encoding errors
	ErrMessageTooLong = errors.New("message: exceeds maximum size")
	ErrInvalidName    = errors.New("message: name contains a reserved character")
	ErrEmptyDevice    = errors.New("message: device name is empty")
)

// Wire format constants.
const (
	// MaxMessageSize is the largest encoded message (header + body).
	MaxMessageSize = 250

	// MessageIDSize is the length of a message id in bytes.
	MessageIDSize = 4

	// FrameHeaderSize is TTL (1) + ReplyID (4) + ReplyIDPrev (4) + Length (1).
	FrameHeaderSize = 10

	// MaxFramePayload is the largest payload a frame can carry.
	MaxFramePayload = 255

	// headerSeparator splits header from body.
	headerSeparator = ' '

	// fieldSeparator splits header and topic fields.
	fieldSeparator = '/'

	// tagSeparator follows the command tag.
	tagSeparator = ':'
)
