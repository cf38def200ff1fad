package smqtt

import (
	"context"
	"errors"

	"github.com/backkem/meshmqtt/pkg/message"
	"github.com/backkem/meshmqtt/pkg/transport"
)

// PublishSync publishes a value and blocks until it is acknowledged, the
// retry budget is exhausted (ErrDeliveryFailed), it is cancelled
// (ErrCancelled), the Run loop hosting it stops (ErrNotRunning) or ctx is
// done. With reliability disabled it returns once the message is handed to
// the transport.
//
// On a running node the send is performed by the Run loop and PublishSync
// may be called from any goroutine except a handler. On a node without a
// Run loop, PublishSync drives Parse and Poll itself until completion.
func (n *Node) PublishSync(ctx context.Context, device, name string, v message.Value) error {
	return n.sendSync(ctx, func(n *Node) (uint32, error) {
		return n.Publish(device, name, v)
	})
}

// SubscribeSync subscribes and blocks until the subscription is
// acknowledged. See PublishSync.
func (n *Node) SubscribeSync(ctx context.Context, device, param string) error {
	return n.sendSync(ctx, func(n *Node) (uint32, error) {
		return n.Subscribe(device, param)
	})
}

type syncStart struct {
	replyID uint32
	err     error
}

func (n *Node) sendSync(ctx context.Context, send func(*Node) (uint32, error)) error {
	if n.State().IsRunning() {
		return n.sendSyncHosted(ctx, send)
	}
	if n.busy {
		return ErrReentrantSync
	}
	return n.sendSyncInline(ctx, send)
}

// sendSyncHosted hands the send to the Run loop and waits for its outcome.
func (n *Node) sendSyncHosted(ctx context.Context, send func(*Node) (uint32, error)) error {
	started := make(chan syncStart, 1)
	done := make(chan error, 1)

	err := n.Submit(ctx, func(n *Node) {
		replyID, err := send(n)
		if err == nil && replyID != 0 {
			n.waiters[replyID] = done
		}
		started <- syncStart{replyID: replyID, err: err}
	})
	if err != nil {
		return err
	}

	var s syncStart
	select {
	case s = <-started:
	case <-ctx.Done():
		return ctx.Err()
	}
	if s.err != nil || s.replyID == 0 {
		return s.err
	}

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		forget := func(n *Node) {
			delete(n.waiters, s.replyID)
			n.Cancel(s.replyID)
		}
		if err := n.Submit(context.Background(), forget); errors.Is(err, ErrNotRunning) {
			// Run has returned, so the caller owns the node again.
			forget(n)
		}
		return ctx.Err()
	}
}

// sendSyncInline performs the send and drives the node until it completes.
func (n *Node) sendSyncInline(ctx context.Context, send func(*Node) (uint32, error)) error {
	replyID, err := send(n)
	if err != nil || replyID == 0 {
		return err
	}

	done := make(chan error, 1)
	n.waiters[replyID] = done

	poll := n.clock.Ticker(n.config.PollInterval)
	defer poll.Stop()

	inbound := n.transport.Inbound()
	for {
		select {
		case err := <-done:
			return err

		case <-ctx.Done():
			delete(n.waiters, replyID)
			n.Cancel(replyID)
			return ctx.Err()

		case p, ok := <-inbound:
			if !ok {
				delete(n.waiters, replyID)
				return transport.ErrClosed
			}
			n.ParsePacket(p)

		case <-poll.C:
			n.Poll()
		}
	}
}
