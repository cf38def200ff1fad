package message

import (
	"errors"
	"strings"
	"testing"
)

func testHeader() Header {
	return Header{Source: "ctrl", ID: MessageID{'a', 'B', '3', 'x'}}
}

func TestBuildWireFormat(t *testing.T) {
	data, err := Build(testHeader(), CommandPublish, Topic{Device: "lamp1", Kind: KindSwitch, Name: "power"}, "1")
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	want := "ctrl/aB3x P:lamp1/$s/power/1"
	if string(data) != want {
		t.Errorf("Build = %q, want %q", data, want)
	}
}

func TestBuildDecodeRoundtrip(t *testing.T) {
	tests := []struct {
		name  string
		cmd   Command
		topic Topic
		value string
	}{
		{"publish switch", CommandPublish, Topic{Device: "lamp1", Kind: KindSwitch, Name: "power"}, "1"},
		{"publish string", CommandPublish, Topic{Device: "lamp1", Kind: KindString, Name: "power"}, "1"},
		{"subscribe", CommandSubscribe, Topic{Device: "lamp1", Kind: KindTemp, Name: "t1"}, ""},
		{"subscribe all", CommandSubscribe, Topic{Device: "lamp1"}, ""},
		{"unsubscribe", CommandUnsubscribe, Topic{Device: "lamp1", Kind: KindTemp, Name: "t1"}, ""},
		{"get", CommandGet, Topic{Device: "hall", Kind: KindContact, Name: "door"}, ""},
		{"unknown kind", CommandPublish, Topic{Device: "d", Kind: "colour", Name: "rgb"}, "ff00ff"},
		{"value with separators", CommandPublish, Topic{Device: "d", Kind: KindString, Name: "msg"}, "a/b c:d"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := Build(testHeader(), tt.cmd, tt.topic, tt.value)
			if err != nil {
				t.Fatalf("Build failed: %v", err)
			}

			m, err := Decode(data)
			if err != nil {
				t.Fatalf("Decode failed: %v", err)
			}

			if m.Header != testHeader() {
				t.Errorf("header = %+v, want %+v", m.Header, testHeader())
			}
			if m.Command != tt.cmd {
				t.Errorf("command = %v, want %v", m.Command, tt.cmd)
			}
			if m.Topic != tt.topic {
				t.Errorf("topic = %+v, want %+v", m.Topic, tt.topic)
			}
			if m.Value != tt.value {
				t.Errorf("value = %q, want %q", m.Value, tt.value)
			}

			again, err := m.Encode()
			if err != nil {
				t.Fatalf("Encode failed: %v", err)
			}
			if string(again) != string(data) {
				t.Errorf("re-encode = %q, want %q", again, data)
			}
		})
	}
}

func TestDecodeMalformed(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"empty", ""},
		{"no body", "ctrl/aB3x"},
		{"no header id", "ctrl P:lamp1/$s/power/1"},
		{"short id", "ctrl/aB3 P:lamp1/$s/power/1"},
		{"bad id char", "ctrl/aB-x P:lamp1/$s/power/1"},
		{"missing source", "/aB3x P:lamp1/$s/power/1"},
		{"no tag separator", "ctrl/aB3x Plamp1/$s/power/1"},
		{"unknown tag", "ctrl/aB3x X:lamp1/$s/power/1"},
		{"short topic", "ctrl/aB3x P:lamp1/$s/power"},
		{"empty device", "ctrl/aB3x P:/$s/power/1"},
		{"body too short", "ctrl/aB3x P"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode([]byte(tt.data))
			if err == nil {
				t.Fatal("Decode should fail")
			}
			if !errors.Is(err, ErrMalformed) {
				t.Errorf("error %v does not wrap ErrMalformed", err)
			}
		})
	}
}

func TestDecodeTrailingNUL(t *testing.T) {
	m, err := Decode([]byte("ctrl/aB3x P:lamp1/$s/power/1\x00"))
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if m.Value != "1" {
		t.Errorf("value = %q, want %q", m.Value, "1")
	}
}

func TestBuildRejects(t *testing.T) {
	topic := Topic{Device: "lamp1", Kind: KindSwitch, Name: "power"}

	if _, err := Build(testHeader(), Command('X'), topic, ""); !errors.Is(err, ErrInvalidCommand) {
		t.Errorf("bad command error = %v", err)
	}
	if _, err := Build(Header{ID: testHeader().ID}, CommandPublish, topic, ""); !errors.Is(err, ErrEmptyDevice) {
		t.Errorf("empty source error = %v", err)
	}
	if _, err := Build(testHeader(), CommandPublish, Topic{Device: "a/b", Name: "x"}, ""); !errors.Is(err, ErrInvalidName) {
		t.Errorf("slash in device error = %v", err)
	}
	if _, err := Build(testHeader(), CommandPublish, Topic{Device: "a", Kind: "$s", Name: "x"}, ""); !errors.Is(err, ErrInvalidName) {
		t.Errorf("reserved kind error = %v", err)
	}
	if _, err := Build(testHeader(), CommandPublish, topic, strings.Repeat("v", MaxMessageSize)); !errors.Is(err, ErrMessageTooLong) {
		t.Errorf("oversized error = %v", err)
	}
}

func TestReheader(t *testing.T) {
	data, _ := Build(testHeader(), CommandPublish, Topic{Device: "lamp1", Kind: KindDimmer, Name: "level"}, "42")
	m, _ := Decode(data)

	ack, err := Reheader(m, Header{Source: "lamp1", ID: MessageID{'z', 'z', 'z', '1'}})
	if err != nil {
		t.Fatalf("Reheader failed: %v", err)
	}

	want := "lamp1/zzz1 P:lamp1/$d/level/42"
	if string(ack) != want {
		t.Errorf("Reheader = %q, want %q", ack, want)
	}
}

func TestPeekHeader(t *testing.T) {
	h, err := PeekHeader([]byte("node-7/Q9q9 G:x/$t/t/"))
	if err != nil {
		t.Fatalf("PeekHeader failed: %v", err)
	}
	if h.Source != "node-7" || h.ID.String() != "Q9q9" {
		t.Errorf("header = %+v", h)
	}
}

func TestCommandTags(t *testing.T) {
	tests := []struct {
		cmd  Command
		tag  byte
		name string
	}{
		{CommandPublish, 'P', "Publish"},
		{CommandSubscribe, 'S', "Subscribe"},
		{CommandUnsubscribe, 'U', "Unsubscribe"},
		{CommandGet, 'G', "Get"},
	}

	for _, tt := range tests {
		if tt.cmd.Tag() != tt.tag {
			t.Errorf("%s tag = %c, want %c", tt.name, tt.cmd.Tag(), tt.tag)
		}
		if tt.cmd.String() != tt.name {
			t.Errorf("String() = %q, want %q", tt.cmd.String(), tt.name)
		}
		got, err := ParseCommand(tt.tag)
		if err != nil || got != tt.cmd {
			t.Errorf("ParseCommand(%c) = %v, %v", tt.tag, got, err)
		}
	}

	if _, err := ParseCommand('p'); err == nil {
		t.Error("lowercase tag should be rejected")
	}
}
