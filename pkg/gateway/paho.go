package gateway

import (
	"crypto/tls"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/pion/logging"
)

// Broker connection defaults.
const (
	DefaultBrokerPort    = 1883
	DefaultBrokerTLSPort = 8883
	DefaultClientID      = "smqtt-gateway"

	defaultConnectTimeout    = 10 * time.Second
	defaultPublishTimeout    = 5 * time.Second
	defaultReconnectInitial  = time.Second
	defaultReconnectMax      = time.Minute
	defaultKeepAlive         = 60 * time.Second
	defaultDisconnectQuiesce = 1000 // milliseconds

	maxQoS = 2
)

// PahoConfig configures a PahoBroker.
type PahoConfig struct {
	// Host is the broker host name. Required.
	Host string

	// Port is the broker port (default: 1883, or 8883 with TLS).
	Port int

	// TLS selects ssl:// instead of tcp://.
	TLS bool

	// ClientID identifies the gateway to the broker (default: DefaultClientID).
	ClientID string

	// Username and Password authenticate the connection when Username is set.
	Username string
	Password string

	// Prefix is the topic root; the status topic lives under it
	// (default: DefaultPrefix).
	Prefix string

	// QoS is used for every publish and subscription (0-2).
	QoS byte

	// ConnectTimeout bounds the initial connection (default: 10s).
	ConnectTimeout time.Duration

	// PublishTimeout bounds each broker round trip (default: 5s).
	PublishTimeout time.Duration

	// ReconnectInitial and ReconnectMax bound the reconnect backoff
	// (default: 1s and 1m).
	ReconnectInitial time.Duration
	ReconnectMax     time.Duration

	// LoggerFactory is the factory for creating loggers.
	// If nil, logging is disabled.
	LoggerFactory logging.LoggerFactory
}

// Validate checks the configuration for errors.
func (c *PahoConfig) Validate() error {
	if c.Host == "" {
		return fmt.Errorf("%w: host is required", ErrConnectionFailed)
	}
	if c.QoS > maxQoS {
		return fmt.Errorf("%w: qos %d", ErrConnectionFailed, c.QoS)
	}
	return nil
}

// applyDefaults fills in default values for unset fields.
func (c *PahoConfig) applyDefaults() {
	if c.Port == 0 {
		c.Port = DefaultBrokerPort
		if c.TLS {
			c.Port = DefaultBrokerTLSPort
		}
	}
	if c.ClientID == "" {
		c.ClientID = DefaultClientID
	}
	if c.ConnectTimeout == 0 {
		c.ConnectTimeout = defaultConnectTimeout
	}
	if c.PublishTimeout == 0 {
		c.PublishTimeout = defaultPublishTimeout
	}
	if c.ReconnectInitial == 0 {
		c.ReconnectInitial = defaultReconnectInitial
	}
	if c.ReconnectMax == 0 {
		c.ReconnectMax = defaultReconnectMax
	}
}

// BrokerURL returns the broker address in paho form.
func (c *PahoConfig) BrokerURL() string {
	scheme := "tcp"
	if c.TLS {
		scheme = "ssl"
	}
	return fmt.Sprintf("%s://%s:%d", scheme, c.Host, c.Port)
}

// PahoBroker is a Broker backed by eclipse/paho.mqtt.golang.
//
// Subscriptions are restored after a reconnect. The gateway status topic is
// set to online on every connect, to offline on Close, and to offline by
// the broker through the last will when the connection drops.
type PahoBroker struct {
	client pahomqtt.Client
	config PahoConfig
	topics Topics

	subMu         sync.RWMutex
	subscriptions map[string]MessageHandler

	log logging.LeveledLogger
}

// Verify PahoBroker implements Broker.
var _ Broker = (*PahoBroker)(nil)

type statusPayload struct {
	Status    string `json:"status"`
	ClientID  string `json:"client_id"`
	Reason    string `json:"reason,omitempty"`
	Timestamp string `json:"timestamp"`
}

func buildStatus(status, clientID, reason string) []byte {
	data, _ := json.Marshal(statusPayload{
		Status:    status,
		ClientID:  clientID,
		Reason:    reason,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
	return data
}

// buildClientOptions creates paho options from the configuration.
func buildClientOptions(c PahoConfig, topics Topics) *pahomqtt.ClientOptions {
	opts := pahomqtt.NewClientOptions()
	opts.AddBroker(c.BrokerURL())
	opts.SetClientID(c.ClientID)

	if c.Username != "" {
		opts.SetUsername(c.Username)
		opts.SetPassword(c.Password)
	}

	opts.SetCleanSession(true)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(c.ReconnectInitial)
	opts.SetMaxReconnectInterval(c.ReconnectMax)
	opts.SetConnectTimeout(c.ConnectTimeout)
	opts.SetKeepAlive(defaultKeepAlive)

	if c.TLS {
		opts.SetTLSConfig(&tls.Config{MinVersion: tls.VersionTLS12})
	}

	// The broker publishes this if the gateway disappears.
	opts.SetBinaryWill(topics.Status(), buildStatus("offline", c.ClientID, "unexpected_disconnect"), 1, true)

	return opts
}

// ConnectPaho connects to the broker described by config.
func ConnectPaho(config PahoConfig) (*PahoBroker, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	config.applyDefaults()

	b := &PahoBroker{
		config:        config,
		topics:        Topics{Prefix: config.Prefix},
		subscriptions: make(map[string]MessageHandler),
	}
	if config.LoggerFactory != nil {
		b.log = config.LoggerFactory.NewLogger("gateway")
	}

	opts := buildClientOptions(config, b.topics)
	opts.SetOnConnectHandler(func(pahomqtt.Client) { b.handleConnect() })
	opts.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) {
		if b.log != nil {
			b.log.Warnf("broker connection lost: %v", err)
		}
	})

	if b.log != nil {
		b.log.Infof("connecting to broker %s as %s", config.BrokerURL(), config.ClientID)
	}

	b.client = pahomqtt.NewClient(opts)
	token := b.client.Connect()
	if !token.WaitTimeout(config.ConnectTimeout) {
		return nil, fmt.Errorf("%w: timeout after %v", ErrConnectionFailed, config.ConnectTimeout)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}

	return b, nil
}

func (b *PahoBroker) handleConnect() {
	b.subMu.RLock()
	for topic, h := range b.subscriptions {
		b.client.Subscribe(topic, b.config.QoS, b.wrapHandler(h))
	}
	b.subMu.RUnlock()

	b.client.Publish(b.topics.Status(), b.config.QoS, true, buildStatus("online", b.config.ClientID, ""))

	if b.log != nil {
		b.log.Info("broker connected")
	}
}

// wrapHandler adapts a MessageHandler and recovers from handler panics.
func (b *PahoBroker) wrapHandler(h MessageHandler) pahomqtt.MessageHandler {
	return func(_ pahomqtt.Client, msg pahomqtt.Message) {
		defer func() {
			if r := recover(); r != nil && b.log != nil {
				b.log.Errorf("handler panic on %s: %v", msg.Topic(), r)
			}
		}()
		h(msg.Topic(), msg.Payload())
	}
}

// Publish sends payload to topic.
func (b *PahoBroker) Publish(topic string, payload []byte, retained bool) error {
	if topic == "" {
		return ErrInvalidTopic
	}
	if !b.client.IsConnected() {
		return ErrNotConnected
	}

	token := b.client.Publish(topic, b.config.QoS, retained, payload)
	if !token.WaitTimeout(b.config.PublishTimeout) {
		return fmt.Errorf("%w: timeout after %v", ErrPublishFailed, b.config.PublishTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: %w", ErrPublishFailed, err)
	}
	return nil
}

// Subscribe registers handler for a topic filter.
func (b *PahoBroker) Subscribe(topic string, handler MessageHandler) error {
	if topic == "" || handler == nil {
		return ErrInvalidTopic
	}
	if !b.client.IsConnected() {
		return ErrNotConnected
	}

	b.subMu.Lock()
	b.subscriptions[topic] = handler
	b.subMu.Unlock()

	token := b.client.Subscribe(topic, b.config.QoS, b.wrapHandler(handler))
	if !token.WaitTimeout(b.config.PublishTimeout) {
		b.forget(topic)
		return fmt.Errorf("%w: timeout after %v", ErrSubscribeFailed, b.config.PublishTimeout)
	}
	if err := token.Error(); err != nil {
		b.forget(topic)
		return fmt.Errorf("%w: %w", ErrSubscribeFailed, err)
	}
	return nil
}

// Unsubscribe removes a subscription.
func (b *PahoBroker) Unsubscribe(topic string) error {
	if topic == "" {
		return ErrInvalidTopic
	}
	b.forget(topic)

	if !b.client.IsConnected() {
		return ErrNotConnected
	}

	token := b.client.Unsubscribe(topic)
	if !token.WaitTimeout(b.config.PublishTimeout) {
		return fmt.Errorf("%w: timeout after %v", ErrUnsubscribeFailed, b.config.PublishTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: %w", ErrUnsubscribeFailed, err)
	}
	return nil
}

// Close publishes a graceful offline status and disconnects.
func (b *PahoBroker) Close() error {
	if b.client.IsConnected() {
		token := b.client.Publish(b.topics.Status(), b.config.QoS, true,
			buildStatus("offline", b.config.ClientID, "graceful_shutdown"))
		token.WaitTimeout(b.config.PublishTimeout)
	}
	b.client.Disconnect(defaultDisconnectQuiesce)
	return nil
}

func (b *PahoBroker) forget(topic string) {
	b.subMu.Lock()
	delete(b.subscriptions, topic)
	b.subMu.Unlock()
}
