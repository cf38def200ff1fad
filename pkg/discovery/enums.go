package discovery

// ServiceType identifies the type of DNS-SD service.
type ServiceType int

// ServiceType constants.
const (
	// ServiceTypeUnknown represents an unknown or invalid service type.
	ServiceTypeUnknown ServiceType = iota

	// ServiceTypeGateway is advertised by nodes running in a gateway mode.
	// Service: _smqtt._udp
	ServiceTypeGateway

	// ServiceTypeNode is advertised by ordinary mesh nodes.
	// Service: _smqtt-node._udp
	ServiceTypeNode
)

// DNS-SD service strings.
const (
	// ServiceGateway is the DNS-SD service type for mesh gateways.
	ServiceGateway = "_smqtt._udp"

	// ServiceNode is the DNS-SD service type for standard mesh nodes.
	ServiceNode = "_smqtt-node._udp"

	// DefaultDomain is the default mDNS domain.
	DefaultDomain = "local."
)

// String returns a human-readable name for the service type.
func (s ServiceType) String() string {
	switch s {
	case ServiceTypeGateway:
		return "Gateway"
	case ServiceTypeNode:
		return "Node"
	default:
		return "Unknown"
	}
}

// IsValid returns true if the service type is a known value.
func (s ServiceType) IsValid() bool {
	return s == ServiceTypeGateway || s == ServiceTypeNode
}

// ServiceString returns the DNS-SD service string for the service type.
func (s ServiceType) ServiceString() string {
	switch s {
	case ServiceTypeGateway:
		return ServiceGateway
	case ServiceTypeNode:
		return ServiceNode
	default:
		return ""
	}
}
