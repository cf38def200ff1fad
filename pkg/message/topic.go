package message

import (
	"strings"
)

// kindCodes maps verbose kinds to their wire code.
// The table is fixed: changing a code breaks interoperability.
var kindCodes = map[Kind]string{
	KindSwitch:   "$s",
	KindTemp:     "$t",
	KindHumidity: "$h",
	KindPressure: "$p",
	KindTrigger:  "$g",
	KindContact:  "$c",
	KindDimmer:   "$d",
	KindString:   "$r",
	KindNumber:   "$n",
	KindFloat:    "$f",
	KindInt:      "$i",
	KindShutter:  "$u",
	KindCounter:  "$o",
	KindBinary:   "$b",
}

// codeKinds is the inverse of kindCodes.
var codeKinds = func() map[string]Kind {
	m := make(map[string]Kind, len(kindCodes))
	for k, c := range kindCodes {
		m[c] = k
	}
	return m
}()

// CompressKind returns the wire token for k.
// Kinds not in the table are returned unchanged.
func CompressKind(k Kind) string {
	if c, ok := kindCodes[k]; ok {
		return c
	}
	return string(k)
}

// DecompressKind returns the kind for a wire token.
// Unknown tokens are returned unchanged.
func DecompressKind(token string) Kind {
	if k, ok := codeKinds[token]; ok {
		return k
	}
	return Kind(token)
}

// Topic addresses a parameter of a device.
type Topic struct {
	// Device is the destination node name.
	Device string

	// Kind is the parameter type; may be empty for subscriptions.
	Kind Kind

	// Name is the parameter name; empty means every parameter of Device.
	Name string
}

// String returns the decompressed "device/kind/name" form.
func (t Topic) String() string {
	return t.Device + "/" + string(t.Kind) + "/" + t.Name
}

// Validate checks that every field can be encoded unambiguously.
func (t Topic) Validate() error {
	if t.Device == "" {
		return ErrEmptyDevice
	}
	if !validName(t.Device) || !validName(string(t.Kind)) || !validName(t.Name) {
		return ErrInvalidName
	}
	// A verbatim kind equal to a code would decode as a different kind.
	if _, ok := codeKinds[string(t.Kind)]; ok {
		return ErrInvalidName
	}
	return nil
}

// ParseTopic decodes a "device/kind/name" string in decompressed form.
func ParseTopic(s string) (Topic, error) {
	parts := strings.SplitN(s, "/", 3)
	if len(parts) != 3 || parts[0] == "" {
		return Topic{}, ErrInvalidTopic
	}
	return Topic{Device: parts[0], Kind: Kind(parts[1]), Name: parts[2]}, nil
}

// Match reports whether t addresses the given device and parameter.
// See CompareTopic.
func (t Topic) Match(device, name string) bool {
	return CompareTopic(t, device, name)
}

// CompareTopic is a structural match used for subscription filtering.
// An empty name matches every parameter of device. A non-empty name matches
// the parameter name exactly, or "kind/name" when a kind is given.
func CompareTopic(t Topic, device, name string) bool {
	if t.Device != device {
		return false
	}
	if name == "" {
		return true
	}
	if t.Name == name {
		return true
	}
	if i := strings.IndexByte(name, fieldSeparator); i >= 0 {
		return string(t.Kind) == name[:i] && t.Name == name[i+1:]
	}
	return false
}
