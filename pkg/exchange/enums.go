// Package exchange implements message reliability over the mesh.
//
// The exchange layer sits between the wire codec (pkg/message) and the node
// facade (pkg/smqtt). It provides:
//
//   - Retransmission scheduling: a bounded, round-robin scan of the message
//     cache that surfaces at most one resend or failure per poll
//   - Additive backoff between successive attempts of the same message
//   - Acknowledgement policy per operating mode
//
// Nothing in this package starts goroutines or timers. The host drives the
// Scheduler by calling Poll from its own loop.
package exchange

// Mode is the operating mode of a node. It decides which inbound messages
// are delivered to the application and which are acknowledged.
type Mode int

const (
	// ModeNodeStandard processes and acknowledges only messages addressed
	// to this node.
	ModeNodeStandard Mode = iota

	// ModeNodeReceiveAll delivers every observed message and never
	// acknowledges. Used for diagnostics.
	ModeNodeReceiveAll

	// ModeGatewayAckAll delivers and acknowledges every message.
	ModeGatewayAckAll

	// ModeGatewayAckMine delivers every message but acknowledges only
	// those addressed to this node.
	ModeGatewayAckMine
)

// String returns a human-readable name for the mode.
func (m Mode) String() string {
	switch m {
	case ModeNodeStandard:
		return "NodeStandard"
	case ModeNodeReceiveAll:
		return "NodeReceiveAll"
	case ModeGatewayAckAll:
		return "GatewayAckAll"
	case ModeGatewayAckMine:
		return "GatewayAckMine"
	default:
		return "Unknown"
	}
}

// IsValid returns true if the mode is a defined value.
func (m Mode) IsValid() bool {
	return m >= ModeNodeStandard && m <= ModeGatewayAckMine
}

// IsGateway returns true for the two gateway modes.
func (m Mode) IsGateway() bool {
	return m == ModeGatewayAckAll || m == ModeGatewayAckMine
}

// ParseMode converts a mode name, as returned by String, to a Mode.
func ParseMode(s string) (Mode, error) {
	for m := ModeNodeStandard; m <= ModeGatewayAckMine; m++ {
		if m.String() == s {
			return m, nil
		}
	}
	return 0, ErrInvalidMode
}

// Action is the kind of work a Poll call hands back to the host.
type Action int

const (
	// ActionNone means nothing was due during this poll.
	ActionNone Action = iota

	// ActionResend means the payload must be sent again.
	ActionResend

	// ActionFailed means the retry budget is exhausted and the entry has
	// been removed from the cache.
	ActionFailed
)

// String returns a human-readable name for the action.
func (a Action) String() string {
	switch a {
	case ActionNone:
		return "None"
	case ActionResend:
		return "Resend"
	case ActionFailed:
		return "Failed"
	default:
		return "Unknown"
	}
}
