package gateway

// MessageHandler receives broker messages.
//
// Handlers are invoked on broker goroutines and must not block.
type MessageHandler func(topic string, payload []byte)

// Broker is the MQTT side of the gateway.
type Broker interface {
	// Publish sends payload to topic. Retained messages are kept by the
	// broker for new subscribers.
	Publish(topic string, payload []byte, retained bool) error

	// Subscribe registers handler for a topic filter. Wildcards are allowed.
	Subscribe(topic string, handler MessageHandler) error

	// Unsubscribe removes a subscription made with Subscribe.
	Unsubscribe(topic string) error

	// Close disconnects from the broker.
	Close() error
}
