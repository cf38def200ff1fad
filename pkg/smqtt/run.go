package smqtt

import (
	"context"
	"time"

	"github.com/backkem/meshmqtt/pkg/transport"
)

// Run owns the node until ctx is done or the transport closes. It parses
// inbound packets, polls the scheduler every PollInterval, runs functions
// passed to Submit and, if configured, reports Stats every StatsInterval.
//
// Returns ctx.Err() on cancellation and transport.ErrClosed when the
// transport's inbound channel closes. Synchronous senders still waiting
// when Run returns get ErrNotRunning, or ErrNodeClosed after Close.
// Their messages stay cached and resume on the next Run.
func (n *Node) Run(ctx context.Context) error {
	n.mu.Lock()
	if !n.state.CanRun() {
		state := n.state
		n.mu.Unlock()
		if state == NodeStateClosed {
			return ErrNodeClosed
		}
		return ErrAlreadyRunning
	}
	n.state = NodeStateRunning
	done := make(chan struct{})
	n.runDone = done
	n.mu.Unlock()

	if n.log != nil {
		n.log.Infof("node %q running", n.name)
	}

	defer func() {
		n.mu.Lock()
		if n.state == NodeStateRunning {
			n.state = NodeStateInitialized
			n.resolveAll(ErrNotRunning)
		} else {
			n.resolveAll(ErrNodeClosed)
		}
		close(done)
		n.mu.Unlock()
	}()

	poll := n.clock.Ticker(n.config.PollInterval)
	defer poll.Stop()

	var statsC <-chan time.Time
	if n.config.StatsInterval > 0 && n.config.OnStats != nil {
		stats := n.clock.Ticker(n.config.StatsInterval)
		defer stats.Stop()
		statsC = stats.C
	}

	inbound := n.transport.Inbound()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case p, ok := <-inbound:
			if !ok {
				return transport.ErrClosed
			}
			n.ParsePacket(p)

		case <-poll.C:
			if _, err := n.Poll(); err != nil && n.log != nil {
				n.log.Debugf("poll: %v", err)
			}

		case fn := <-n.submitCh:
			fn(n)

		case <-statsC:
			n.config.OnStats(n.Stats())
		}
	}
}

// Submit runs fn on the goroutine executing Run and waits until it has been
// accepted. It returns ErrNotRunning when no Run loop is active.
func (n *Node) Submit(ctx context.Context, fn func(*Node)) error {
	n.mu.Lock()
	running := n.state.IsRunning()
	done := n.runDone
	n.mu.Unlock()

	if !running {
		return ErrNotRunning
	}

	select {
	case n.submitCh <- fn:
		return nil
	case <-done:
		return ErrNotRunning
	case <-ctx.Done():
		return ctx.Err()
	}
}
