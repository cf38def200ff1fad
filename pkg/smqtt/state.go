package smqtt

// NodeState represents the lifecycle state of a Node.
type NodeState int

const (
	// NodeStateInitialized means the node is created but no Run loop is active.
	// Parse and Poll may be driven directly by the caller.
	NodeStateInitialized NodeState = iota

	// NodeStateRunning means a Run loop owns the node.
	NodeStateRunning

	// NodeStateClosed means the node and its transport have been shut down.
	NodeStateClosed
)

// String returns a human-readable name for the state.
func (s NodeState) String() string {
	switch s {
	case NodeStateInitialized:
		return "Initialized"
	case NodeStateRunning:
		return "Running"
	case NodeStateClosed:
		return "Closed"
	default:
		return "Unknown"
	}
}

// IsRunning returns true if a Run loop owns the node.
func (s NodeState) IsRunning() bool {
	return s == NodeStateRunning
}

// CanRun returns true if Run can be called in this state.
func (s NodeState) CanRun() bool {
	return s == NodeStateInitialized
}
