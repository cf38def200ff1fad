package smqtt

import "errors"

// Package-level errors.
var (
	// ErrInvalidConfig is returned when Config validation fails.
	ErrInvalidConfig = errors.New("smqtt: invalid configuration")

	// ErrNameRequired is returned when Config.Name is empty.
	ErrNameRequired = errors.New("smqtt: node name is required")

	// ErrInvalidName is returned when the node name cannot appear in a header.
	ErrInvalidName = errors.New("smqtt: node name contains a reserved character")

	// ErrTransportRequired is returned when Config.Transport is nil.
	ErrTransportRequired = errors.New("smqtt: transport is required")

	// ErrHandlerAlreadySet is returned when a handler slot is already taken.
	ErrHandlerAlreadySet = errors.New("smqtt: handler already set")

	// ErrDeferredQueueFull is returned when a send issued from a handler
	// cannot be queued.
	ErrDeferredQueueFull = errors.New("smqtt: deferred send queue full")

	// ErrDeliveryFailed is returned when the retry budget of a reliable
	// message is exhausted without an acknowledgement.
	ErrDeliveryFailed = errors.New("smqtt: delivery failed")

	// ErrCancelled is returned to a synchronous sender whose message was
	// cancelled with Cancel.
	ErrCancelled = errors.New("smqtt: message cancelled")

	// ErrReplyIDExhausted is returned when no free reply id was found.
	ErrReplyIDExhausted = errors.New("smqtt: no free reply id")

	// ErrAlreadyRunning is returned when Run is called on a running node.
	ErrAlreadyRunning = errors.New("smqtt: node already running")

	// ErrNotRunning is returned by Submit when no Run loop is active, and to
	// synchronous senders whose Run loop stopped before completion.
	ErrNotRunning = errors.New("smqtt: node not running")

	// ErrNodeClosed is returned after Close.
	ErrNodeClosed = errors.New("smqtt: node closed")

	// ErrReentrantSync is returned when a synchronous send is issued from a
	// handler while no Run loop hosts the node.
	ErrReentrantSync = errors.New("smqtt: synchronous send from a handler")
)
