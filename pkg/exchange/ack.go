package exchange

// AckPolicy returns what a node in the given mode does with an inbound,
// non-duplicate message: whether to hand it to the application and whether
// to send an acknowledgement for it.
//
//	mode            deliver          ack
//	NodeStandard    addressed to me  addressed to me
//	NodeReceiveAll  always           never
//	GatewayAckAll   always           always
//	GatewayAckMine  always           addressed to me
func AckPolicy(mode Mode, addressedToMe bool) (deliver, ack bool) {
	switch mode {
	case ModeNodeStandard:
		return addressedToMe, addressedToMe
	case ModeNodeReceiveAll:
		return true, false
	case ModeGatewayAckAll:
		return true, true
	case ModeGatewayAckMine:
		return true, addressedToMe
	default:
		return false, false
	}
}

// ShouldAckDuplicate reports whether a duplicate should be acknowledged
// again. The sender resent because the first ack was lost, so duplicates
// follow the same ack rule as fresh messages; they are never delivered.
func ShouldAckDuplicate(mode Mode, addressedToMe bool) bool {
	_, ack := AckPolicy(mode, addressedToMe)
	return ack
}
