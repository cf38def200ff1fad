package transport

import (
	"context"
	"errors"
	"io"
	"net"
	"sync"
	"time"

	"github.com/backkem/meshmqtt/pkg/message"
	"github.com/benbjohnson/clock"
	"github.com/pion/logging"
)

// Queue defaults.
const (
	DefaultInboundQueueSize  = 64
	DefaultOutboundQueueSize = 16
)

// maxDatagramSize is the largest frame the mesh carries.
const maxDatagramSize = message.FrameHeaderSize + message.MaxFramePayload

// MeshConfig configures the datagram mesh transport.
type MeshConfig struct {
	// Conn is an optional pre-existing PacketConn to use.
	// If nil, a new UDP connection will be created using ListenAddr.
	Conn net.PacketConn

	// ListenAddr is the address to listen on (e.g., ":4210").
	// Ignored if Conn is provided.
	ListenAddr string

	// Peers receive a copy of every sent frame. Required for sending.
	Peers []net.Addr

	// InboundQueueSize bounds received packets waiting for the node
	// (default: DefaultInboundQueueSize). Packets beyond it are dropped.
	InboundQueueSize int

	// OutboundQueueSize bounds SendAsync packets waiting for the writer
	// (default: DefaultOutboundQueueSize).
	OutboundQueueSize int

	// Clock stamps received packets (default: wall clock).
	Clock clock.Clock

	// LoggerFactory is the factory for creating loggers.
	// If nil, logging is disabled.
	LoggerFactory logging.LoggerFactory
}

// Mesh carries frames over a net.PacketConn, flooding every send to the
// configured peers. It runs one read goroutine and one write goroutine.
type Mesh struct {
	conn     net.PacketConn
	peers    []net.Addr
	inbound  chan Packet
	outbound chan Packet
	closeCh  chan struct{}
	wg       sync.WaitGroup
	clock    clock.Clock
	log      logging.LeveledLogger

	mu     sync.RWMutex
	closed bool
}

// Verify Mesh implements Transport.
var _ Transport = (*Mesh)(nil)

// NewMesh creates and starts a mesh transport with the given configuration.
func NewMesh(config MeshConfig) (*Mesh, error) {
	if config.InboundQueueSize <= 0 {
		config.InboundQueueSize = DefaultInboundQueueSize
	}
	if config.OutboundQueueSize <= 0 {
		config.OutboundQueueSize = DefaultOutboundQueueSize
	}
	if config.Clock == nil {
		config.Clock = clock.New()
	}

	m := &Mesh{
		conn:     config.Conn,
		peers:    config.Peers,
		inbound:  make(chan Packet, config.InboundQueueSize),
		outbound: make(chan Packet, config.OutboundQueueSize),
		closeCh:  make(chan struct{}),
		clock:    config.Clock,
	}

	if config.LoggerFactory != nil {
		m.log = config.LoggerFactory.NewLogger("transport")
	}

	if m.conn == nil {
		addr := config.ListenAddr
		if addr == "" {
			addr = ":0" // Use ephemeral port
		}

		conn, err := net.ListenPacket("udp", addr)
		if err != nil {
			return nil, err
		}
		m.conn = conn
	}

	if m.log != nil {
		m.log.Infof("starting mesh transport on %s with %d peers", m.conn.LocalAddr(), len(m.peers))
	}

	m.wg.Add(2)
	go m.readLoop()
	go m.writeLoop()

	return m, nil
}

// Send frames the packet and writes it to every peer.
// It succeeds if at least one peer write succeeded.
func (m *Mesh) Send(ctx context.Context, p Packet) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.RLock()
	closed := m.closed
	m.mu.RUnlock()
	if closed {
		return ErrClosed
	}

	return m.write(ctx, p)
}

// SendAsync queues the packet for the write goroutine.
func (m *Mesh) SendAsync(p Packet) error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return ErrClosed
	}
	if len(p.Data) > message.MaxFramePayload {
		return ErrMessageTooLarge
	}

	select {
	case m.outbound <- p:
		return nil
	default:
		return ErrQueueFull
	}
}

// Inbound returns the channel of received packets.
func (m *Mesh) Inbound() <-chan Packet {
	return m.inbound
}

// LocalAddr returns the local address the transport is listening on.
func (m *Mesh) LocalAddr() net.Addr {
	return m.conn.LocalAddr()
}

// Peers returns the configured destinations.
func (m *Mesh) Peers() []net.Addr {
	return m.peers
}

// Close stops the transport and waits for its goroutines to exit.
// The Inbound channel is closed once the read loop has stopped.
func (m *Mesh) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	m.closed = true
	m.mu.Unlock()

	if m.log != nil {
		m.log.Info("stopping mesh transport")
	}

	close(m.closeCh)

	// Set a short deadline to unblock any pending reads
	m.conn.SetReadDeadline(time.Now())
	err := m.conn.Close()
	m.wg.Wait()

	return err
}

func (m *Mesh) write(ctx context.Context, p Packet) error {
	if len(m.peers) == 0 {
		return ErrNoPeers
	}

	data, err := p.Frame().Encode()
	if err != nil {
		return ErrMessageTooLarge
	}

	if deadline, ok := ctx.Deadline(); ok {
		m.conn.SetWriteDeadline(deadline)
		defer m.conn.SetWriteDeadline(time.Time{})
	}

	sent := 0
	for _, addr := range m.peers {
		if m.log != nil {
			m.log.Tracef("sending %d bytes reply id %d to %v", len(data), p.ReplyID, addr)
		}
		if _, err := m.conn.WriteTo(data, addr); err != nil {
			if m.log != nil {
				m.log.Warnf("send to %v failed: %v", addr, err)
			}
			continue
		}
		sent++
	}

	if sent == 0 {
		return ErrSendFailed
	}
	return nil
}

// writeLoop drains the SendAsync queue.
func (m *Mesh) writeLoop() {
	defer m.wg.Done()

	for {
		select {
		case <-m.closeCh:
			return
		case p := <-m.outbound:
			if err := m.write(context.Background(), p); err != nil && m.log != nil {
				m.log.Debugf("async send of reply id %d failed: %v", p.ReplyID, err)
			}
		}
	}
}

// readLoop reads frames from the connection and queues them.
func (m *Mesh) readLoop() {
	defer m.wg.Done()
	defer close(m.inbound)

	buf := make([]byte, maxDatagramSize+1)

	for {
		select {
		case <-m.closeCh:
			return
		default:
		}

		n, addr, err := m.conn.ReadFrom(buf)
		if err != nil {
			// Check if we're shutting down
			select {
			case <-m.closeCh:
				return
			default:
				if m.log != nil {
					m.log.Warnf("mesh read error: %v", err)
				}
				if isClosedError(err) {
					return
				}
				continue
			}
		}

		if n == 0 {
			continue
		}

		frame, err := message.DecodeFrame(buf[:n])
		if err != nil {
			if m.log != nil {
				m.log.Debugf("dropping %d bytes from %v: %v", n, addr, err)
			}
			continue
		}

		if m.log != nil {
			m.log.Tracef("received %d bytes reply id %d from %v", n, frame.ReplyID, addr)
		}

		select {
		case m.inbound <- PacketFromFrame(frame, addr, m.clock.Now()):
		default:
			if m.log != nil {
				m.log.Warnf("inbound queue full, dropping reply id %d", frame.ReplyID)
			}
		}
	}
}

// isClosedError reports whether err means the connection is gone for good.
func isClosedError(err error) bool {
	return errors.Is(err, net.ErrClosed) || errors.Is(err, io.EOF)
}
