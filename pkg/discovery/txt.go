package discovery

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/backkem/meshmqtt/pkg/exchange"
	"github.com/backkem/meshmqtt/pkg/message"
)

// TXT record keys.
const (
	// TXTKeyName is the mesh node name.
	TXTKeyName = "N"

	// TXTKeyMode is the operating mode name (exchange.Mode.String).
	TXTKeyMode = "M"

	// TXTKeyTTL is the hop budget the node stamps on its frames.
	TXTKeyTTL = "T"
)

// MaxNodeNameLength bounds the advertised node name.
const MaxNodeNameLength = 32

// GatewayTXT holds TXT records for _smqtt._udp.
type GatewayTXT struct {
	// Name is the mesh name of the gateway node (required).
	Name string

	// Mode must be one of the gateway modes.
	Mode exchange.Mode

	// TTL is the hop budget of the gateway's frames (optional).
	TTL uint8
}

// Encode converts the TXT record to DNS-SD format strings.
func (g *GatewayTXT) Encode() []string {
	txt := []string{
		fmt.Sprintf("%s=%s", TXTKeyName, g.Name),
		fmt.Sprintf("%s=%s", TXTKeyMode, g.Mode),
	}
	if g.TTL > 0 {
		txt = append(txt, fmt.Sprintf("%s=%d", TXTKeyTTL, g.TTL))
	}
	return txt
}

// Validate checks the name and that the mode is a gateway mode.
func (g *GatewayTXT) Validate() error {
	if err := validateNodeName(g.Name); err != nil {
		return err
	}
	if !g.Mode.IsGateway() {
		return fmt.Errorf("%w: %s is not a gateway mode", ErrInvalidMode, g.Mode)
	}
	return nil
}

// NodeTXT holds TXT records for _smqtt-node._udp.
type NodeTXT struct {
	// Name is the mesh name of the node (required).
	Name string

	// Mode must be one of the node modes.
	Mode exchange.Mode
}

// Encode converts the TXT record to DNS-SD format strings.
func (n *NodeTXT) Encode() []string {
	return []string{
		fmt.Sprintf("%s=%s", TXTKeyName, n.Name),
		fmt.Sprintf("%s=%s", TXTKeyMode, n.Mode),
	}
}

// Validate checks the name and that the mode is not a gateway mode.
func (n *NodeTXT) Validate() error {
	if err := validateNodeName(n.Name); err != nil {
		return err
	}
	if !n.Mode.IsValid() || n.Mode.IsGateway() {
		return fmt.Errorf("%w: %s is not a node mode", ErrInvalidMode, n.Mode)
	}
	return nil
}

func validateNodeName(name string) error {
	if len(name) > MaxNodeNameLength {
		return ErrInvalidNodeName
	}
	if err := (message.Topic{Device: name}).Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidNodeName, err)
	}
	return nil
}

// ParseTXT parses raw TXT record strings into a map.
func ParseTXT(records []string) map[string]string {
	result := make(map[string]string)
	for _, record := range records {
		if idx := strings.IndexByte(record, '='); idx > 0 {
			key := record[:idx]
			value := record[idx+1:]
			result[key] = value
		}
	}
	return result
}

// ParseGatewayTXT parses raw TXT records into GatewayTXT.
func ParseGatewayTXT(records []string) (*GatewayTXT, error) {
	m := ParseTXT(records)
	txt := &GatewayTXT{}

	name, ok := m[TXTKeyName]
	if !ok {
		return nil, ErrInvalidTXTRecord
	}
	txt.Name = name

	mode, err := exchange.ParseMode(m[TXTKeyMode])
	if err != nil {
		return nil, ErrInvalidTXTRecord
	}
	txt.Mode = mode

	if v, ok := m[TXTKeyTTL]; ok {
		ttl, err := strconv.ParseUint(v, 10, 8)
		if err != nil {
			return nil, ErrInvalidTXTRecord
		}
		txt.TTL = uint8(ttl)
	}

	if err := txt.Validate(); err != nil {
		return nil, err
	}
	return txt, nil
}

// ParseNodeTXT parses raw TXT records into NodeTXT.
func ParseNodeTXT(records []string) (*NodeTXT, error) {
	m := ParseTXT(records)

	name, ok := m[TXTKeyName]
	if !ok {
		return nil, ErrInvalidTXTRecord
	}
	mode, err := exchange.ParseMode(m[TXTKeyMode])
	if err != nil {
		return nil, ErrInvalidTXTRecord
	}

	txt := &NodeTXT{Name: name, Mode: mode}
	if err := txt.Validate(); err != nil {
		return nil, err
	}
	return txt, nil
}
