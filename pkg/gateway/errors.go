package gateway

import "errors"

// Errors returned by the gateway package.
var (
	// ErrNotConnected is returned when the broker connection is down.
	ErrNotConnected = errors.New("gateway: broker not connected")

	// ErrConnectionFailed is returned when the initial broker connection fails.
	ErrConnectionFailed = errors.New("gateway: broker connection failed")

	// ErrPublishFailed is returned when a broker publish fails.
	ErrPublishFailed = errors.New("gateway: publish failed")

	// ErrSubscribeFailed is returned when a broker subscribe fails.
	ErrSubscribeFailed = errors.New("gateway: subscribe failed")

	// ErrUnsubscribeFailed is returned when a broker unsubscribe fails.
	ErrUnsubscribeFailed = errors.New("gateway: unsubscribe failed")

	// ErrInvalidTopic is returned for empty topics or topics outside the prefix.
	ErrInvalidTopic = errors.New("gateway: invalid topic")

	// ErrNodeRequired is returned when a bridge is created without a node.
	ErrNodeRequired = errors.New("gateway: node is required")

	// ErrBrokerRequired is returned when a bridge is created without a broker.
	ErrBrokerRequired = errors.New("gateway: broker is required")

	// ErrBridgeClosed is returned after Close.
	ErrBridgeClosed = errors.New("gateway: bridge closed")
)
