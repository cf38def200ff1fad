package gateway

import (
	"testing"
)

func TestTopics(t *testing.T) {
	tp := Topics{}

	tests := []struct {
		got, want string
	}{
		{tp.State("lamp1", "power"), "smqtt/lamp1/power"},
		{tp.State("lamp1", ""), "smqtt/lamp1"},
		{tp.Set("lamp1", "power"), "smqtt/lamp1/power/set"},
		{tp.Get("lamp1", "power"), "smqtt/lamp1/power/get"},
		{tp.Subscribe("lamp1", "power"), "smqtt/lamp1/power/subscribe"},
		{tp.Unsubscribe("lamp1", "power"), "smqtt/lamp1/power/unsubscribe"},
		{tp.AllSet(), "smqtt/+/+/set"},
		{tp.Status(), "smqtt/gateway/status"},
		{tp.Stats(), "smqtt/gateway/stats"},
		{Topics{Prefix: "home"}.State("a", "b"), "home/a/b"},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("topic = %q, want %q", tt.got, tt.want)
		}
	}
}

func TestTopics_ParseSet(t *testing.T) {
	tp := Topics{Prefix: "home"}

	device, name, err := tp.ParseSet("home/lamp1/power/set")
	if err != nil {
		t.Fatalf("ParseSet failed: %v", err)
	}
	if device != "lamp1" || name != "power" {
		t.Errorf("ParseSet = %q/%q", device, name)
	}

	for _, bad := range []string{
		"smqtt/lamp1/power/set",
		"home/lamp1/power",
		"home/lamp1/power/get",
		"home//power/set",
		"home/lamp1/a/b/set",
		"",
	} {
		if _, _, err := tp.ParseSet(bad); err != ErrInvalidTopic {
			t.Errorf("ParseSet(%q) = %v, want ErrInvalidTopic", bad, err)
		}
	}
}
