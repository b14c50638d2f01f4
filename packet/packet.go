// Package packet decodes the manufacturer-specific advertisement payload that
// sensors broadcast:
//
//	[declaredLength:1][header:2 little endian][body:declaredLength-2]
package packet

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// HeaderSize is the size of the header discriminant in bytes.
const HeaderSize = 2

// ErrMalformedPacket is returned when the declared length does not fit the buffer.
var ErrMalformedPacket = errors.New("malformed packet")

// Kind is the packet discriminant, decoded once at the radio boundary.
type Kind uint16

const (
	KindUnknown     Kind = 0x0000
	KindTelemetry   Kind = 0xA001
	KindEnrollOffer Kind = 0xA002
	KindRemoveOffer Kind = 0xA003
)

func (k Kind) String() string {
	switch k {
	case KindTelemetry:
		return "telemetry"
	case KindEnrollOffer:
		return "enroll_offer"
	case KindRemoveOffer:
		return "remove_offer"
	default:
		return "unknown"
	}
}

func kindOf(header uint16) Kind {
	switch k := Kind(header); k {
	case KindTelemetry, KindEnrollOffer, KindRemoveOffer:
		return k
	default:
		return KindUnknown
	}
}

// Packet is an opened advertisement payload.
type Packet struct {
	// Header is the raw discriminant, kept for logging unknown kinds.
	Header uint16
	Kind   Kind
	Body   []byte
}

// Open validates declaredLength against raw (header followed by body) and
// splits it. Unknown headers are returned with KindUnknown, not rejected.
func Open(raw []byte, declaredLength int) (Packet, error) {
	if declaredLength < HeaderSize {
		return Packet{}, fmt.Errorf("%w: declared length %d below header size", ErrMalformedPacket, declaredLength)
	}
	if declaredLength > len(raw) {
		return Packet{}, fmt.Errorf("%w: declared length %d exceeds buffer of %d bytes", ErrMalformedPacket, declaredLength, len(raw))
	}

	header := binary.LittleEndian.Uint16(raw[:HeaderSize])
	body := make([]byte, declaredLength-HeaderSize)
	copy(body, raw[HeaderSize:declaredLength])

	return Packet{
		Header: header,
		Kind:   kindOf(header),
		Body:   body,
	}, nil
}

// Parse reads the leading length byte of payload and opens the rest.
func Parse(payload []byte) (Packet, error) {
	if len(payload) == 0 {
		return Packet{}, fmt.Errorf("%w: empty payload", ErrMalformedPacket)
	}
	return Open(payload[1:], int(payload[0]))
}

// Encode builds a wire payload for header and body.
func Encode(header uint16, body []byte) ([]byte, error) {
	declared := HeaderSize + len(body)
	if declared > 0xFF {
		return nil, fmt.Errorf("body of %d bytes does not fit a one-byte length", len(body))
	}
	out := make([]byte, 1+declared)
	out[0] = byte(declared)
	binary.LittleEndian.PutUint16(out[1:1+HeaderSize], header)
	copy(out[1+HeaderSize:], body)
	return out, nil
}
