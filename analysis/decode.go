package analysis

import (
	"errors"
	"fmt"
	"math"
)

// SampleSize is the length of a telemetry body.
const SampleSize = 2

// ErrShortSample is returned when a telemetry body is shorter than SampleSize.
var ErrShortSample = errors.New("telemetry body too short")

const signBit = 0x80

// Decode converts the two-byte fixed-point encoding into a temperature.
// The low 7 bits of magnitude are the integer part; fraction bit i, counted
// from the most significant bit, is worth 1/2^(i+1). The high bit of
// magnitude is the sign.
func Decode(magnitude, fraction byte) float64 {
	value := float64(magnitude &^ signBit)
	for i := 0; i < 8; i++ {
		if fraction&(0x80>>i) != 0 {
			value += 1 / float64(uint(2)<<i)
		}
	}
	if magnitude&signBit != 0 {
		value = -value
	}
	return value
}

// Encode is the inverse of Decode. The fraction is truncated to 1/256 and
// values outside (-128, 128) are rejected.
func Encode(x float64) (magnitude, fraction byte, err error) {
	if math.IsNaN(x) || math.Abs(x) >= 128 {
		return 0, 0, fmt.Errorf("value %v out of range", x)
	}
	abs := math.Abs(x)
	integer := math.Floor(abs)
	magnitude = byte(integer)
	fraction = byte((abs - integer) * 256)
	if x < 0 && (magnitude != 0 || fraction != 0) {
		magnitude |= signBit
	}
	return magnitude, fraction, nil
}

// DecodeBody decodes a telemetry packet body.
func DecodeBody(body []byte) (float64, error) {
	if len(body) < SampleSize {
		return 0, fmt.Errorf("%w: got %d bytes, want %d", ErrShortSample, len(body), SampleSize)
	}
	return Decode(body[0], body[1]), nil
}
