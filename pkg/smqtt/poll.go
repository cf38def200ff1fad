package smqtt

import (
	"fmt"

	"github.com/backkem/meshmqtt/pkg/exchange"
	"github.com/backkem/meshmqtt/pkg/transport"
)

// Poll runs one scheduling step. Sends deferred by handlers are flushed
// first, then at most one due message is resent or given up on.
//
// A resend is handed to the transport; the returned error reports a
// transport failure, and the scheduler tries again after the next backoff.
// A message given up on is reported to OnDeliveryFailed and to its
// synchronous sender, and the returned error wraps ErrDeliveryFailed.
func (n *Node) Poll() (exchange.Instruction, error) {
	if n.busy {
		return exchange.Instruction{Action: exchange.ActionNone}, nil
	}

	n.flushDeferred()

	ins := n.scheduler.Poll()
	switch ins.Action {
	case exchange.ActionResend:
		err := n.transmit(transport.Packet{
			Data:        ins.Payload,
			ReplyID:     ins.ReplyID,
			ReplyIDPrev: ins.ReplyIDPrev,
			TTL:         ins.TTL,
		})
		return ins, err

	case exchange.ActionFailed:
		err := fmt.Errorf("%w: reply id %d after %d resends", ErrDeliveryFailed, ins.ReplyID, ins.Attempt)
		n.reportFailure(ins.ReplyID, err)
		return ins, err
	}

	return ins, nil
}
