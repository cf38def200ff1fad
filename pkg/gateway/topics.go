package gateway

import (
	"strings"
)

// DefaultPrefix is the root of every broker topic the gateway uses.
const DefaultPrefix = "smqtt"

// Topic suffixes.
const (
	suffixSet         = "set"
	suffixGet         = "get"
	suffixSubscribe   = "subscribe"
	suffixUnsubscribe = "unsubscribe"
)

// Topics builds broker topic names under a prefix:
//
//	<prefix>/<device>/<name>              retained parameter state
//	<prefix>/<device>/<name>/set          command to the mesh
//	<prefix>/<device>/<name>/get          mesh get request
//	<prefix>/<device>/<name>/subscribe    mesh subscribe request
//	<prefix>/<device>/<name>/unsubscribe  mesh unsubscribe request
//	<prefix>/gateway/status               gateway availability
//	<prefix>/gateway/stats                gateway statistics
type Topics struct {
	Prefix string
}

func (t Topics) prefix() string {
	if t.Prefix == "" {
		return DefaultPrefix
	}
	return t.Prefix
}

// State returns the retained state topic of a parameter. An empty name
// addresses the device as a whole.
func (t Topics) State(device, name string) string {
	if name == "" {
		return t.prefix() + "/" + device
	}
	return t.prefix() + "/" + device + "/" + name
}

// Set returns the command topic of a parameter.
func (t Topics) Set(device, name string) string {
	return t.State(device, name) + "/" + suffixSet
}

// Get returns the get-request topic of a parameter.
func (t Topics) Get(device, name string) string {
	return t.State(device, name) + "/" + suffixGet
}

// Subscribe returns the subscribe-request topic of a parameter.
func (t Topics) Subscribe(device, name string) string {
	return t.State(device, name) + "/" + suffixSubscribe
}

// Unsubscribe returns the unsubscribe-request topic of a parameter.
func (t Topics) Unsubscribe(device, name string) string {
	return t.State(device, name) + "/" + suffixUnsubscribe
}

// AllSet returns the wildcard filter matching every command topic.
func (t Topics) AllSet() string {
	return t.prefix() + "/+/+/" + suffixSet
}

// Status returns the gateway availability topic.
func (t Topics) Status() string {
	return t.prefix() + "/gateway/status"
}

// Stats returns the gateway statistics topic.
func (t Topics) Stats() string {
	return t.prefix() + "/gateway/stats"
}

// ParseSet extracts the device and parameter name from a command topic.
func (t Topics) ParseSet(topic string) (device, name string, err error) {
	rest, ok := strings.CutPrefix(topic, t.prefix()+"/")
	if !ok {
		return "", "", ErrInvalidTopic
	}
	parts := strings.Split(rest, "/")
	if len(parts) != 3 || parts[2] != suffixSet || parts[0] == "" || parts[1] == "" {
		return "", "", ErrInvalidTopic
	}
	return parts[0], parts[1], nil
}
