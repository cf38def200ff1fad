package message

import (
	"encoding/binary"
)

// Frame is the binary envelope a message travels in over the mesh.
//
// Wire layout, all integers big-endian:
//
//	offset size field
//	0      1    TTL
//	1      4    ReplyID
//	5      4    ReplyIDPrev
//	9      1    Payload length
//	10     n    Payload
type Frame struct {
	// TTL is the mesh hop budget. It is not interpreted by this package.
	TTL uint8

	// ReplyID correlates a message with its acknowledgement. Zero means the
	// message expects none.
	ReplyID uint32

	// ReplyIDPrev optionally chains the message to an earlier reply id.
	ReplyIDPrev uint32

	// Payload is an encoded message.
	Payload []byte
}

// Size returns the encoded frame size.
func (f *Frame) Size() int {
	return FrameHeaderSize + len(f.Payload)
}

// Encode encodes the frame to a new buffer.
func (f *Frame) Encode() ([]byte, error) {
	buf := make([]byte, f.Size())
	if _, err := f.EncodeTo(buf); err != nil {
		return nil, err
	}
	return buf, nil
}

// EncodeTo encodes the frame into buf, which must hold Size() bytes.
// Returns the number of bytes written.
func (f *Frame) EncodeTo(buf []byte) (int, error) {
	if len(f.Payload) > MaxFramePayload {
		return 0, ErrMessageTooLong
	}
	if len(buf) < f.Size() {
		return 0, ErrFrameTooShort
	}

	buf[0] = f.TTL
	binary.BigEndian.PutUint32(buf[1:5], f.ReplyID)
	binary.BigEndian.PutUint32(buf[5:9], f.ReplyIDPrev)
	buf[9] = uint8(len(f.Payload))
	copy(buf[FrameHeaderSize:], f.Payload)

	return f.Size(), nil
}

// DecodeFrame decodes a frame. The payload is copied.
// Trailing bytes beyond the declared length are rejected.
func DecodeFrame(data []byte) (*Frame, error) {
	if len(data) < FrameHeaderSize {
		return nil, ErrFrameTooShort
	}

	n := int(data[9])
	if len(data) != FrameHeaderSize+n {
		return nil, ErrFrameLength
	}

	f := &Frame{
		TTL:         data[0],
		ReplyID:     binary.BigEndian.Uint32(data[1:5]),
		ReplyIDPrev: binary.BigEndian.Uint32(data[5:9]),
	}
	if n > 0 {
		f.Payload = make([]byte, n)
		copy(f.Payload, data[FrameHeaderSize:])
	}

	return f, nil
}
