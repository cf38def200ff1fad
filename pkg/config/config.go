package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/backkem/meshmqtt/pkg/cache"
	"github.com/backkem/meshmqtt/pkg/dedup"
	"github.com/backkem/meshmqtt/pkg/exchange"
	"github.com/backkem/meshmqtt/pkg/gateway"
	"github.com/backkem/meshmqtt/pkg/message"
	"github.com/backkem/meshmqtt/pkg/transport"
	"gopkg.in/yaml.v3"
)

// ErrInvalidConfig is wrapped by every validation failure.
var ErrInvalidConfig = errors.New("config: invalid configuration")

// Config is the root configuration structure.
type Config struct {
	Node      NodeConfig      `yaml:"node"`
	Mesh      MeshConfig      `yaml:"mesh"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	Discovery DiscoveryConfig `yaml:"discovery"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// NodeConfig contains the mesh node settings.
type NodeConfig struct {
	Name string `yaml:"name"`
	Mode string `yaml:"mode"`
	TTL  int    `yaml:"ttl"`

	// Reliability. Timeouts are in milliseconds.
	TryCount           int     `yaml:"try_count"`
	TimeoutMS          int     `yaml:"timeout_ms"`
	BackoffMS          int     `yaml:"backoff_ms"`
	Jitter             float64 `yaml:"jitter"`
	DisableReliability bool    `yaml:"disable_reliability"`

	// Resource limits.
	MaxItems    int `yaml:"max_items"`
	MaxMem      int `yaml:"max_mem"`
	DedupWindow int `yaml:"dedup_window"`

	// StatsInterval is in seconds; zero disables periodic stats.
	StatsInterval int `yaml:"stats_interval"`
}

// MeshConfig contains the datagram transport settings.
type MeshConfig struct {
	Listen           string   `yaml:"listen"`
	Peers            []string `yaml:"peers"`
	InboundQueueSize int      `yaml:"inbound_queue_size"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Enabled   bool                `yaml:"enabled"`
	Broker    MQTTBrokerConfig    `yaml:"broker"`
	Auth      MQTTAuthConfig      `yaml:"auth"`
	Prefix    string              `yaml:"prefix"`
	QoS       int                 `yaml:"qos"`
	Reconnect MQTTReconnectConfig `yaml:"reconnect"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
type MQTTBrokerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	TLS      bool   `yaml:"tls"`
	ClientID string `yaml:"client_id"`
}

// MQTTAuthConfig contains MQTT authentication credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// MQTTReconnectConfig contains reconnection delays in seconds.
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
}

// DiscoveryConfig contains mDNS settings.
type DiscoveryConfig struct {
	// Advertise announces this node on the network.
	Advertise bool `yaml:"advertise"`

	// Browse looks for gateways at startup and adds them as mesh peers.
	Browse bool `yaml:"browse"`

	// BrowseTimeout is in seconds.
	BrowseTimeout int `yaml:"browse_timeout"`
}

// MetricsConfig contains the Prometheus endpoint settings.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Listen  string `yaml:"listen"`
	Path    string `yaml:"path"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	// Level is one of trace, debug, info, warn, error, disabled.
	Level string `yaml:"level"`
}

// Load reads configuration from a YAML file with environment overrides.
// An empty path yields the defaults with overrides applied. Each override
// function runs after the environment is applied and before validation,
// so command-line flags take precedence over both.
//
// Environment variables:
//   - SMQTT_NODE_NAME
//   - SMQTT_MESH_LISTEN
//   - SMQTT_MQTT_HOST
//   - SMQTT_MQTT_USERNAME
//   - SMQTT_MQTT_PASSWORD
func Load(path string, overrides ...func(*Config)) (*Config, error) {
	return LoadInto(Default(), path, overrides...)
}

// LoadInto is Load starting from cfg instead of Default. Binaries use it
// to supply their own defaults, which the file may still change.
func LoadInto(cfg *Config, path string, overrides ...func(*Config)) (*Config, error) {
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}

		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	applyEnvOverrides(cfg)
	for _, override := range overrides {
		override(cfg)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// Default returns a Config with the protocol defaults filled in.
// The node name is left empty and must be supplied.
func Default() *Config {
	return &Config{
		Node: NodeConfig{
			Mode:        exchange.ModeNodeStandard.String(),
			TTL:         exchange.DefaultTTL,
			TryCount:    exchange.DefaultTryCount,
			TimeoutMS:   int(exchange.DefaultTimeout / time.Millisecond),
			BackoffMS:   int(exchange.DefaultBackoff / time.Millisecond),
			MaxItems:    cache.DefaultMaxItems,
			MaxMem:      cache.DefaultMaxMem,
			DedupWindow: dedup.DefaultCapacity,
		},
		Mesh: MeshConfig{
			Listen: transport.ListenAddr(transport.DefaultPort),
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     gateway.DefaultBrokerPort,
				ClientID: gateway.DefaultClientID,
			},
			Prefix: gateway.DefaultPrefix,
			QoS:    1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
			},
		},
		Discovery: DiscoveryConfig{
			BrowseTimeout: 5,
		},
		Metrics: MetricsConfig{
			Listen: ":9110",
			Path:   "/metrics",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("SMQTT_NODE_NAME"); v != "" {
		cfg.Node.Name = v
	}
	if v := os.Getenv("SMQTT_MESH_LISTEN"); v != "" {
		cfg.Mesh.Listen = v
	}

	// MQTT
	if v := os.Getenv("SMQTT_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("SMQTT_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("SMQTT_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}
}

// Validate checks the configuration and reports every problem found.
func (c *Config) Validate() error {
	var errs []string

	// Node
	if c.Node.Name == "" {
		errs = append(errs, "node.name is required (set SMQTT_NODE_NAME)")
	} else if err := (message.Topic{Device: c.Node.Name}).Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("node.name %q: %v", c.Node.Name, err))
	}
	if _, err := exchange.ParseMode(c.Node.Mode); err != nil {
		errs = append(errs, fmt.Sprintf("node.mode %q is not a known mode", c.Node.Mode))
	}
	if c.Node.TTL < 0 || c.Node.TTL > 255 {
		errs = append(errs, "node.ttl must be between 0 and 255")
	}
	if c.Node.TryCount < 0 || c.Node.TryCount > 255 {
		errs = append(errs, "node.try_count must be between 0 and 255")
	}
	if c.Node.TimeoutMS < 0 || c.Node.BackoffMS < 0 {
		errs = append(errs, "node.timeout_ms and node.backoff_ms must not be negative")
	}
	if c.Node.Jitter < 0 || c.Node.Jitter >= 1 {
		errs = append(errs, "node.jitter must be in [0, 1)")
	}
	if c.Node.MaxItems < 0 || c.Node.MaxMem < 0 || c.Node.DedupWindow < 0 {
		errs = append(errs, "node limits must not be negative")
	}

	// Mesh
	if c.Mesh.Listen == "" {
		errs = append(errs, "mesh.listen is required")
	}
	if _, err := transport.ResolvePeers(c.Mesh.Peers); err != nil {
		errs = append(errs, fmt.Sprintf("mesh.peers: %v", err))
	}

	// MQTT
	if c.MQTT.Enabled {
		if c.MQTT.Broker.Host == "" {
			errs = append(errs, "mqtt.broker.host is required when mqtt is enabled")
		}
		if c.MQTT.Broker.Port < 0 || c.MQTT.Broker.Port > 65535 {
			errs = append(errs, "mqtt.broker.port must be between 1 and 65535")
		}
	}
	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}

	// Metrics
	if c.Metrics.Enabled && c.Metrics.Listen == "" {
		errs = append(errs, "metrics.listen is required when metrics is enabled")
	}

	// Logging
	if _, err := ParseLogLevel(c.Logging.Level); err != nil {
		errs = append(errs, fmt.Sprintf("logging.level %q is not a known level", c.Logging.Level))
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(errs, "; "))
	}

	return nil
}

// NodeMode returns the parsed node mode.
func (c *Config) NodeMode() exchange.Mode {
	m, _ := exchange.ParseMode(c.Node.Mode)
	return m
}

// Timeout returns the first resend wait as a Duration.
func (c *Config) Timeout() time.Duration {
	return time.Duration(c.Node.TimeoutMS) * time.Millisecond
}

// Backoff returns the additive resend delay as a Duration.
func (c *Config) Backoff() time.Duration {
	return time.Duration(c.Node.BackoffMS) * time.Millisecond
}

// StatsInterval returns the stats period as a Duration.
func (c *Config) StatsInterval() time.Duration {
	return time.Duration(c.Node.StatsInterval) * time.Second
}

// BrowseTimeout returns the gateway browse timeout as a Duration.
func (c *Config) BrowseTimeout() time.Duration {
	return time.Duration(c.Discovery.BrowseTimeout) * time.Second
}
