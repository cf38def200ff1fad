package transport

import "errors"

// Transport errors.
var (
	// ErrClosed is returned when an operation is attempted on a closed transport.
	ErrClosed = errors.New("transport: closed")

	// ErrInvalidAddress is returned when a peer address cannot be resolved.
	ErrInvalidAddress = errors.New("transport: invalid address")

	// ErrNoPeers is returned when a send has no destination.
	ErrNoPeers = errors.New("transport: no peers configured")

	// ErrQueueFull is returned by SendAsync when the outbound queue is full.
	ErrQueueFull = errors.New("transport: outbound queue full")

	// ErrSendFailed is returned when writing to every peer failed.
	ErrSendFailed = errors.New("transport: send failed")

	// ErrMessageTooLarge is returned when a payload exceeds the frame limit.
	ErrMessageTooLarge = errors.New("transport: message too large")
)
