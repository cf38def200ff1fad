package smqtt

import (
	"testing"
	"time"

	"github.com/backkem/meshmqtt/pkg/exchange"
	"github.com/backkem/meshmqtt/pkg/message"
	"github.com/backkem/meshmqtt/pkg/transport"
)

var lampPower = message.Topic{Device: "lamp1", Kind: message.KindSwitch, Name: "power"}

func TestParse_DeliversAndAcks(t *testing.T) {
	n, tr, _ := newTestNode(t, "lamp1", nil)
	r := &recorder{}
	n.HandleEvents(r)

	data := buildMessage(t, "ctrl", "aB3x", message.CommandPublish, lampPower, "on")
	if got := n.Parse(data, 42); got != ResultDispatched {
		t.Fatalf("Parse() = %v, want Dispatched", got)
	}

	if len(r.events) != 1 {
		t.Fatalf("%d events, want 1", len(r.events))
	}
	e := r.events[0]
	if e.Source != "ctrl" || e.MessageID.String() != "aB3x" || e.Command != message.CommandPublish {
		t.Errorf("event header = %s/%s %v", e.Source, e.MessageID, e.Command)
	}
	if e.Topic != lampPower || e.Value.Text != "on" || e.Value.Kind != message.KindSwitch {
		t.Errorf("event body = %+v %+v", e.Topic, e.Value)
	}
	if !e.Mine || e.ReplyID != 42 {
		t.Errorf("Mine=%v ReplyID=%d", e.Mine, e.ReplyID)
	}

	sent := tr.Sent()
	if len(sent) != 1 {
		t.Fatalf("%d packets sent, want 1 ack", len(sent))
	}
	ack := sent[0]
	if !ack.IsAck() || ack.ReplyID != 42 {
		t.Errorf("ack frame = %d/%d", ack.ReplyID, ack.ReplyIDPrev)
	}
	m, err := message.Decode(ack.Data)
	if err != nil {
		t.Fatalf("Decode(ack) failed: %v", err)
	}
	if m.Header.Source != "lamp1" || m.Header.ID.String() == "aB3x" {
		t.Errorf("ack header = %v, want our name and a fresh id", m.Header)
	}
	if m.Command != message.CommandPublish || m.Topic != lampPower || m.Value != "on" {
		t.Errorf("ack body = %v %+v %q, want the received body", m.Command, m.Topic, m.Value)
	}
}

func TestParse_UnreliableNotAcked(t *testing.T) {
	n, tr, _ := newTestNode(t, "lamp1", nil)
	n.HandleEvents(&recorder{})

	data := buildMessage(t, "ctrl", "aB3x", message.CommandPublish, lampPower, "on")
	if got := n.Parse(data, 0); got != ResultDispatched {
		t.Fatalf("Parse() = %v", got)
	}
	if len(tr.Sent()) != 0 {
		t.Error("reply id 0 must not be acknowledged")
	}
}

func TestParse_Duplicate(t *testing.T) {
	n, tr, _ := newTestNode(t, "lamp1", nil)
	r := &recorder{}
	n.HandleEvents(r)

	data := buildMessage(t, "ctrl", "aB3x", message.CommandPublish, lampPower, "on")
	n.Parse(data, 42)
	if got := n.Parse(data, 42); got != ResultDuplicate {
		t.Fatalf("second Parse() = %v, want Duplicate", got)
	}

	if len(r.events) != 1 {
		t.Errorf("%d events, want 1", len(r.events))
	}
	if len(tr.Sent()) != 2 {
		t.Errorf("%d acks, want 2 (duplicate re-acked)", len(tr.Sent()))
	}
}

func TestParse_Malformed(t *testing.T) {
	n, tr, _ := newTestNode(t, "lamp1", nil)

	for _, data := range [][]byte{nil, []byte("garbage"), []byte("ctrl/aB3x X:lamp1/$s/power/on")} {
		if got := n.Parse(data, 1); got != ResultMalformed {
			t.Errorf("Parse(%q) = %v, want Malformed", data, got)
		}
	}
	if len(tr.Sent()) != 0 {
		t.Error("malformed input must not be acknowledged")
	}
	if n.ledger.Len() != 0 {
		t.Error("malformed input must not enter the dedup ledger")
	}
}

func TestParse_NotAddressed(t *testing.T) {
	n, tr, _ := newTestNode(t, "lamp2", nil)
	r := &recorder{}
	n.HandleEvents(r)

	data := buildMessage(t, "ctrl", "aB3x", message.CommandPublish, lampPower, "on")
	if got := n.Parse(data, 42); got != ResultFiltered {
		t.Fatalf("Parse() = %v, want Filtered", got)
	}
	if len(r.events) != 0 || len(tr.Sent()) != 0 {
		t.Error("message for another node must be neither delivered nor acked")
	}
}

func TestParse_SelfEcho(t *testing.T) {
	n, tr, _ := newTestNode(t, "lamp1", nil)
	r := &recorder{}
	n.HandleEvents(r)

	id, _ := n.Report("power", message.Switch(true))
	echo := tr.Sent()[0]

	if got := n.ParsePacket(echo); got != ResultFiltered {
		t.Fatalf("ParsePacket(echo) = %v, want Filtered", got)
	}
	if !n.Pending(id) {
		t.Error("an echo must not complete the pending message")
	}
	if len(r.events) != 0 {
		t.Error("echo delivered")
	}
}

func TestParse_ReceiveAllMode(t *testing.T) {
	n, tr, _ := newTestNode(t, "sniffer", func(c *Config) { c.Mode = exchange.ModeNodeReceiveAll })
	r := &recorder{}
	n.HandleEvents(r)

	data := buildMessage(t, "ctrl", "aB3x", message.CommandPublish, lampPower, "on")
	if got := n.Parse(data, 42); got != ResultDispatched {
		t.Fatalf("Parse() = %v, want Dispatched", got)
	}
	if r.events[0].Mine {
		t.Error("Mine should be false for another node's topic")
	}

	echo := buildMessage(t, "sniffer", "zzzz", message.CommandGet, lampPower, "")
	if got := n.Parse(echo, 7); got != ResultDispatched {
		t.Errorf("Parse(echo) = %v, want Dispatched in receive-all mode", got)
	}

	if len(tr.Sent()) != 0 {
		t.Error("receive-all mode must never acknowledge")
	}
}

func TestParse_GatewayModes(t *testing.T) {
	tests := []struct {
		mode    exchange.Mode
		device  string
		wantAck bool
		wantMe  bool
	}{
		{exchange.ModeGatewayAckAll, "lamp1", true, false},
		{exchange.ModeGatewayAckAll, GatewayName, true, true},
		{exchange.ModeGatewayAckMine, "lamp1", false, false},
		{exchange.ModeGatewayAckMine, GatewayName, true, true},
		{exchange.ModeGatewayAckMine, "gw", true, true},
	}
	for _, tt := range tests {
		t.Run(tt.mode.String()+"/"+tt.device, func(t *testing.T) {
			n, tr, _ := newTestNode(t, "gw", func(c *Config) { c.Mode = tt.mode })
			r := &recorder{}
			n.HandleEvents(r)

			topic := message.Topic{Device: tt.device, Kind: message.KindTemp, Name: "t1"}
			data := buildMessage(t, "sensor", "aaaa", message.CommandPublish, topic, "21.5")
			if got := n.Parse(data, 9); got != ResultDispatched {
				t.Fatalf("Parse() = %v, gateways deliver everything", got)
			}
			if acked := len(tr.Sent()) == 1; acked != tt.wantAck {
				t.Errorf("acked = %v, want %v", acked, tt.wantAck)
			}
			if r.events[0].Mine != tt.wantMe {
				t.Errorf("Mine = %v, want %v", r.events[0].Mine, tt.wantMe)
			}
		})
	}
}

func TestParse_GatewayNameOnlyForGateways(t *testing.T) {
	n, _, _ := newTestNode(t, "lamp1", nil)

	topic := message.Topic{Device: GatewayName, Kind: message.KindTemp, Name: "t1"}
	data := buildMessage(t, "sensor", "aaaa", message.CommandPublish, topic, "21.5")
	if got := n.Parse(data, 9); got != ResultFiltered {
		t.Errorf("Parse() = %v, a standard node is not the gateway", got)
	}
}

func TestParse_ForeignAckIgnored(t *testing.T) {
	n, tr, _ := newTestNode(t, "gw", func(c *Config) { c.Mode = exchange.ModeGatewayAckAll })
	r := &recorder{}
	n.HandleEvents(r)

	// lamp1 acknowledging a message from ctrl.
	data := buildMessage(t, "lamp1", "bbbb", message.CommandPublish, lampPower, "on")
	p := transport.Packet{Data: data, ReplyID: 42, ReplyIDPrev: 42}
	if got := n.ParsePacket(p); got != ResultFiltered {
		t.Fatalf("ParsePacket(foreign ack) = %v, want Filtered", got)
	}
	if len(tr.Sent()) != 0 || len(r.events) != 0 {
		t.Error("a foreign ack must be neither acked nor delivered")
	}

	if got := n.ParsePacket(p); got != ResultDuplicate {
		t.Fatalf("repeated foreign ack = %v, want Duplicate", got)
	}
	if len(tr.Sent()) != 0 {
		t.Error("a duplicate ack must not be acked")
	}
}

func TestParse_AckCompletesPending(t *testing.T) {
	n, tr, mock := newTestNode(t, "ctrl", nil)
	r := &recorder{}
	n.HandleEvents(r)

	id, err := n.Publish("lamp1", "power", message.Switch(true))
	if err != nil {
		t.Fatalf("Publish failed: %v", err)
	}
	if id == 0 || !n.Pending(id) {
		t.Fatalf("reply id %d not pending", id)
	}

	mock.Add(25 * time.Millisecond)

	ack := ackFor(t, tr.Sent()[0], "lamp1", "cccc")
	if got := n.ParsePacket(ack); got != ResultAcked {
		t.Fatalf("ParsePacket(ack) = %v, want Acked", got)
	}
	if n.Pending(id) {
		t.Error("reply id still pending after ack")
	}
	if len(r.events) != 0 {
		t.Error("an ack must not be dispatched")
	}

	s := n.Stats()
	if s.UsedSlots != 0 || s.UsedMemory != 0 {
		t.Errorf("cache not freed: %+v", s)
	}
	if s.Telemetry.AckPackets != 1 || s.Telemetry.RTTMin != 25 || s.Telemetry.RTTMax != 25 {
		t.Errorf("telemetry = %+v, want one 25ms sample", s.Telemetry)
	}

	// A second copy of the same ack is a duplicate.
	if got := n.ParsePacket(ack); got != ResultDuplicate {
		t.Errorf("repeated ack = %v, want Duplicate", got)
	}
}

func TestParse_PlainReplyIDCompletesPending(t *testing.T) {
	n, tr, _ := newTestNode(t, "ctrl", nil)

	id, _ := n.Publish("lamp1", "power", message.Switch(true))
	ack := ackFor(t, tr.Sent()[0], "lamp1", "cccc")

	if got := n.Parse(ack.Data, id); got != ResultAcked {
		t.Errorf("Parse() = %v, want Acked", got)
	}
}

func TestParse_Unhandled(t *testing.T) {
	n, tr, _ := newTestNode(t, "lamp1", nil)

	data := buildMessage(t, "ctrl", "aB3x", message.CommandGet, lampPower, "")
	if got := n.Parse(data, 42); got != ResultUnhandled {
		t.Fatalf("Parse() = %v, want Unhandled", got)
	}
	if len(tr.Sent()) != 1 {
		t.Error("an unhandled message is still acknowledged")
	}
}

func TestParse_RawHandler(t *testing.T) {
	n, _, mock := newTestNode(t, "lamp1", nil)
	r := &recorder{}
	n.HandleRaw(r)

	data := buildMessage(t, "ctrl", "aB3x", message.CommandPublish, lampPower, "on")
	p := transport.Packet{Data: data, ReplyID: 5, Received: mock.Now()}
	mock.Add(3 * time.Millisecond)

	if got := n.ParsePacket(p); got != ResultDispatched {
		t.Fatalf("ParsePacket() = %v", got)
	}
	if len(r.raw) != 1 {
		t.Fatalf("%d raw packets, want 1", len(r.raw))
	}
	if string(r.raw[0].Data) != string(data) || r.raw[0].ReplyID != 5 {
		t.Errorf("raw = %q/%d", r.raw[0].Data, r.raw[0].ReplyID)
	}
	if r.raw[0].Elapsed != 3*time.Millisecond {
		t.Errorf("Elapsed = %v, want 3ms", r.raw[0].Elapsed)
	}
}

func TestResult_String(t *testing.T) {
	tests := []struct {
		r    Result
		want string
	}{
		{ResultDispatched, "Dispatched"},
		{ResultAcked, "Acked"},
		{ResultDuplicate, "Duplicate"},
		{ResultMalformed, "Malformed"},
		{ResultFiltered, "Filtered"},
		{ResultUnhandled, "Unhandled"},
		{Result(99), "Unknown"},
	}
	for _, tt := range tests {
		if got := tt.r.String(); got != tt.want {
			t.Errorf("Result(%d).String() = %q, want %q", tt.r, got, tt.want)
		}
	}
}

func TestEvent_Match(t *testing.T) {
	set := Event{Command: message.CommandPublish, Topic: lampPower, Mine: true}
	report := Event{Command: message.CommandPublish, Topic: lampPower, Mine: false}
	get := Event{Command: message.CommandGet, Topic: lampPower, Mine: true}

	tests := []struct {
		name  string
		e     Event
		t     IfType
		kind  message.Kind
		pname string
		want  bool
	}{
		{"set matches set", set, IfSet, message.KindSwitch, "power", true},
		{"set is not a value", set, IfValue, message.KindSwitch, "power", false},
		{"report is a value", report, IfValue, message.KindSwitch, "power", true},
		{"report is not a set", report, IfSet, message.KindSwitch, "power", false},
		{"either", report, IfEither, message.KindSwitch, "power", true},
		{"any kind", set, IfSet, "", "power", true},
		{"wrong kind", set, IfSet, message.KindDimmer, "power", false},
		{"wrong name", set, IfSet, message.KindSwitch, "mode", false},
		{"not a publish", get, IfEither, message.KindSwitch, "power", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.e.Match(tt.t, tt.kind, tt.pname); got != tt.want {
				t.Errorf("Match() = %v, want %v", got, tt.want)
			}
		})
	}
}
