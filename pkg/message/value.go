package message

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrValueKind is returned when a value is read as the wrong kind or its
// text does not parse.
var ErrValueKind = errors.New("message: value does not match kind")

// Value is a parameter value tagged with its kind.
// The constructors below are the only formatting rules; the send path is
// the same for every kind.
type Value struct {
	Kind Kind
	Text string
}

// ShutterCommand is the value of a shutter parameter.
type ShutterCommand uint8

const (
	ShutterOpen ShutterCommand = iota
	ShutterClose
	ShutterStop
)

var shutterText = [...]string{"open", "close", "stop"}

// String returns the wire text of the shutter command.
func (s ShutterCommand) String() string {
	if int(s) < len(shutterText) {
		return shutterText[s]
	}
	return "unknown"
}

// Switch formats an on/off value.
func Switch(on bool) Value {
	if on {
		return Value{Kind: KindSwitch, Text: "on"}
	}
	return Value{Kind: KindSwitch, Text: "off"}
}

// Trigger formats a trigger event.
func Trigger() Value { return Value{Kind: KindTrigger, Text: "triggered"} }

// Contact formats a contact sensor state.
func Contact(open bool) Value {
	if open {
		return Value{Kind: KindContact, Text: "open"}
	}
	return Value{Kind: KindContact, Text: "closed"}
}

// Shutter formats a shutter command.
func Shutter(cmd ShutterCommand) Value { return Value{Kind: KindShutter, Text: cmd.String()} }

// Temperature formats a temperature reading.
func Temperature(v float32) Value { return Value{Kind: KindTemp, Text: formatFloat(v)} }

// Humidity formats a humidity reading.
func Humidity(v float32) Value { return Value{Kind: KindHumidity, Text: formatFloat(v)} }

// Pressure formats a pressure reading.
func Pressure(v float32) Value { return Value{Kind: KindPressure, Text: formatFloat(v)} }

// Float formats a generic float.
func Float(v float32) Value { return Value{Kind: KindFloat, Text: formatFloat(v)} }

// Dimmer formats a dimmer level.
func Dimmer(level uint8) Value {
	return Value{Kind: KindDimmer, Text: strconv.Itoa(int(level))}
}

// Int formats an integer.
func Int(v int) Value { return Value{Kind: KindInt, Text: strconv.Itoa(v)} }

// Counter formats a counter value.
func Counter(v int) Value { return Value{Kind: KindCounter, Text: strconv.Itoa(v)} }

// Number formats a number parameter descriptor as "min,max,step".
func Number(min, max, step int) Value {
	return Value{Kind: KindNumber, Text: fmt.Sprintf("%d,%d,%d", min, max, step)}
}

// String formats a free-form string.
func String(s string) Value { return Value{Kind: KindString, Text: s} }

// Binary formats raw bytes as standard base64.
func Binary(data []byte) Value {
	return Value{Kind: KindBinary, Text: base64.StdEncoding.EncodeToString(data)}
}

// Raw pairs arbitrary text with an arbitrary kind.
func Raw(kind Kind, text string) Value { return Value{Kind: kind, Text: text} }

// Bool reads a switch or contact value. "on", "open", "1" and "true" are true.
func (v Value) Bool() (bool, error) {
	switch strings.ToLower(v.Text) {
	case "on", "open", "1", "true":
		return true, nil
	case "off", "closed", "0", "false":
		return false, nil
	}
	return false, ErrValueKind
}

// Float reads a numeric value as float64.
func (v Value) Float() (float64, error) {
	f, err := strconv.ParseFloat(v.Text, 32)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrValueKind, err)
	}
	return f, nil
}

// Int reads an integer value.
func (v Value) Int() (int, error) {
	i, err := strconv.Atoi(v.Text)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrValueKind, err)
	}
	return i, nil
}

// Number reads a "min,max,step" descriptor.
func (v Value) Number() (min, max, step int, err error) {
	parts := strings.Split(v.Text, ",")
	if len(parts) != 3 {
		return 0, 0, 0, ErrValueKind
	}
	var out [3]int
	for i, p := range parts {
		out[i], err = strconv.Atoi(p)
		if err != nil {
			return 0, 0, 0, fmt.Errorf("%w: %v", ErrValueKind, err)
		}
	}
	return out[0], out[1], out[2], nil
}

// Shutter reads a shutter command.
func (v Value) Shutter() (ShutterCommand, error) {
	for i, s := range shutterText {
		if v.Text == s {
			return ShutterCommand(i), nil
		}
	}
	return 0, ErrValueKind
}

// Bytes decodes a binary value.
func (v Value) Bytes() ([]byte, error) {
	b, err := base64.StdEncoding.DecodeString(v.Text)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValueKind, err)
	}
	return b, nil
}

func formatFloat(v float32) string {
	return strconv.FormatFloat(float64(v), 'f', 2, 32)
}
