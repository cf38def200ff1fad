package transport

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"
)

func recvPacket(t *testing.T, m *Mesh, timeout time.Duration) (Packet, bool) {
	t.Helper()
	select {
	case p, ok := <-m.Inbound():
		return p, ok
	case <-time.After(timeout):
		return Packet{}, false
	}
}

func TestMeshPair_SendReceive(t *testing.T) {
	pair, err := NewMeshPair(MeshPairConfig{})
	if err != nil {
		t.Fatalf("NewMeshPair failed: %v", err)
	}
	defer pair.Close()

	out := Packet{Data: []byte("ctrl/aB3x P:lamp1/$s/power/1"), ReplyID: 77, ReplyIDPrev: 5, TTL: 3}
	if err := pair.Mesh(0).Send(context.Background(), out); err != nil {
		t.Fatalf("Send failed: %v", err)
	}

	in, ok := recvPacket(t, pair.Mesh(1), time.Second)
	if !ok {
		t.Fatal("timeout waiting for packet")
	}
	if string(in.Data) != string(out.Data) {
		t.Errorf("data = %q, want %q", in.Data, out.Data)
	}
	if in.ReplyID != 77 || in.ReplyIDPrev != 5 || in.TTL != 3 {
		t.Errorf("frame fields = %d/%d/%d, want 77/5/3", in.ReplyID, in.ReplyIDPrev, in.TTL)
	}
	if in.From == nil {
		t.Error("From should be set on received packets")
	}
	if in.Received.IsZero() {
		t.Error("Received should be stamped on received packets")
	}
}

func TestPacket_IsAck(t *testing.T) {
	tests := []struct {
		p    Packet
		want bool
	}{
		{Packet{ReplyID: 7, ReplyIDPrev: 7}, true},
		{Packet{ReplyID: 7}, false},
		{Packet{ReplyID: 7, ReplyIDPrev: 3}, false},
		{Packet{}, false},
	}
	for _, tt := range tests {
		if got := tt.p.IsAck(); got != tt.want {
			t.Errorf("IsAck(%d/%d) = %v, want %v", tt.p.ReplyID, tt.p.ReplyIDPrev, got, tt.want)
		}
	}
}

func TestMeshPair_SendAsync(t *testing.T) {
	pair, err := NewMeshPair(MeshPairConfig{})
	if err != nil {
		t.Fatalf("NewMeshPair failed: %v", err)
	}
	defer pair.Close()

	if err := pair.Mesh(1).SendAsync(Packet{Data: []byte("async"), ReplyID: 1}); err != nil {
		t.Fatalf("SendAsync failed: %v", err)
	}

	in, ok := recvPacket(t, pair.Mesh(0), time.Second)
	if !ok {
		t.Fatal("timeout waiting for packet")
	}
	if string(in.Data) != "async" {
		t.Errorf("data = %q", in.Data)
	}
}

func TestMeshPair_CorruptFramesDropped(t *testing.T) {
	pair, err := NewMeshPair(MeshPairConfig{})
	if err != nil {
		t.Fatalf("NewMeshPair failed: %v", err)
	}
	defer pair.Close()

	// Write a raw datagram that is not a valid frame, then a valid one.
	f0, _ := newPipeFactoryPairFromPipe(pair.Pipe())
	conn, _ := f0.CreateUDPConn(DefaultPort)
	conn.WriteTo([]byte{1, 2, 3}, nil)

	if err := pair.Mesh(0).Send(context.Background(), Packet{Data: []byte("ok"), ReplyID: 2}); err != nil {
		t.Fatalf("Send failed: %v", err)
	}

	in, ok := recvPacket(t, pair.Mesh(1), time.Second)
	if !ok {
		t.Fatal("timeout waiting for packet")
	}
	if string(in.Data) != "ok" {
		t.Errorf("first delivered packet = %q, want the valid frame", in.Data)
	}
}

func TestMesh_Errors(t *testing.T) {
	m, err := NewMesh(MeshConfig{ListenAddr: "127.0.0.1:0"})
	if err != nil {
		t.Fatalf("NewMesh failed: %v", err)
	}

	if err := m.Send(context.Background(), Packet{Data: []byte("x")}); !errors.Is(err, ErrNoPeers) {
		t.Errorf("Send without peers = %v, want ErrNoPeers", err)
	}
	if err := m.SendAsync(Packet{Data: make([]byte, 300)}); !errors.Is(err, ErrMessageTooLarge) {
		t.Errorf("SendAsync oversized = %v, want ErrMessageTooLarge", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := m.Send(ctx, Packet{Data: []byte("x")}); !errors.Is(err, context.Canceled) {
		t.Errorf("Send with cancelled context = %v", err)
	}

	if err := m.Close(); err != nil {
		t.Errorf("Close = %v", err)
	}
	if err := m.Close(); err != ErrClosed {
		t.Errorf("second Close = %v, want ErrClosed", err)
	}
	if err := m.Send(context.Background(), Packet{}); err != ErrClosed {
		t.Errorf("Send after close = %v, want ErrClosed", err)
	}
	if err := m.SendAsync(Packet{}); err != ErrClosed {
		t.Errorf("SendAsync after close = %v, want ErrClosed", err)
	}

	if _, ok := <-m.Inbound(); ok {
		t.Error("Inbound should be closed after Close")
	}
}

func TestMesh_UDPLoopback(t *testing.T) {
	a, err := NewMesh(MeshConfig{ListenAddr: "127.0.0.1:0"})
	if err != nil {
		t.Fatalf("NewMesh(a) failed: %v", err)
	}
	defer a.Close()

	b, err := NewMesh(MeshConfig{ListenAddr: "127.0.0.1:0", Peers: []net.Addr{a.LocalAddr()}})
	if err != nil {
		t.Fatalf("NewMesh(b) failed: %v", err)
	}
	defer b.Close()

	if err := b.Send(context.Background(), Packet{Data: []byte("udp"), ReplyID: 9, TTL: 1}); err != nil {
		t.Fatalf("Send failed: %v", err)
	}

	in, ok := recvPacket(t, a, time.Second)
	if !ok {
		t.Fatal("timeout waiting for UDP packet")
	}
	if string(in.Data) != "udp" || in.ReplyID != 9 {
		t.Errorf("packet = %q/%d", in.Data, in.ReplyID)
	}
}

func TestResolvePeers(t *testing.T) {
	peers, err := ResolvePeers([]string{"127.0.0.1:5000", "127.0.0.1"})
	if err != nil {
		t.Fatalf("ResolvePeers failed: %v", err)
	}
	if len(peers) != 2 {
		t.Fatalf("len = %d, want 2", len(peers))
	}
	if peers[0].String() != "127.0.0.1:5000" {
		t.Errorf("peer 0 = %s", peers[0])
	}
	if peers[1].String() != "127.0.0.1:4210" {
		t.Errorf("peer 1 = %s, want default port", peers[1])
	}

	if _, err := ResolvePeers([]string{"127.0.0.1:notaport"}); !errors.Is(err, ErrInvalidAddress) {
		t.Errorf("bad port error = %v", err)
	}

	if ListenAddr(0) != ":4210" || ListenAddr(1) != ":1" {
		t.Errorf("ListenAddr = %q/%q", ListenAddr(0), ListenAddr(1))
	}
}
