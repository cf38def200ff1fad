package config

import (
	"time"

	"github.com/backkem/meshmqtt/pkg/gateway"
	"github.com/backkem/meshmqtt/pkg/smqtt"
	"github.com/backkem/meshmqtt/pkg/transport"
	"github.com/pion/logging"
)

// SmqttConfig returns the node configuration. The caller supplies the
// transport and any callbacks.
func (c *Config) SmqttConfig(t transport.Transport, lf logging.LoggerFactory) smqtt.Config {
	return smqtt.Config{
		Name:               c.Node.Name,
		Transport:          t,
		Mode:               c.NodeMode(),
		TTL:                uint8(c.Node.TTL),
		TryCount:           uint8(c.Node.TryCount),
		Timeout:            c.Timeout(),
		Backoff:            c.Backoff(),
		Jitter:             c.Node.Jitter,
		DisableReliability: c.Node.DisableReliability,
		MaxItems:           c.Node.MaxItems,
		MaxMem:             c.Node.MaxMem,
		DedupWindow:        c.Node.DedupWindow,
		StatsInterval:      c.StatsInterval(),
		LoggerFactory:      lf,
	}
}

// MeshConfig returns the transport configuration with peers resolved.
func (c *Config) MeshConfig(lf logging.LoggerFactory) (transport.MeshConfig, error) {
	peers, err := transport.ResolvePeers(c.Mesh.Peers)
	if err != nil {
		return transport.MeshConfig{}, err
	}
	return transport.MeshConfig{
		ListenAddr:       c.Mesh.Listen,
		Peers:            peers,
		InboundQueueSize: c.Mesh.InboundQueueSize,
		LoggerFactory:    lf,
	}, nil
}

// PahoConfig returns the broker connection configuration.
func (c *Config) PahoConfig(lf logging.LoggerFactory) gateway.PahoConfig {
	return gateway.PahoConfig{
		Host:             c.MQTT.Broker.Host,
		Port:             c.MQTT.Broker.Port,
		TLS:              c.MQTT.Broker.TLS,
		ClientID:         c.MQTT.Broker.ClientID,
		Username:         c.MQTT.Auth.Username,
		Password:         c.MQTT.Auth.Password,
		Prefix:           c.MQTT.Prefix,
		QoS:              byte(c.MQTT.QoS),
		ReconnectInitial: time.Duration(c.MQTT.Reconnect.InitialDelay) * time.Second,
		ReconnectMax:     time.Duration(c.MQTT.Reconnect.MaxDelay) * time.Second,
		LoggerFactory:    lf,
	}
}
