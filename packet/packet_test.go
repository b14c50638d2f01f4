package packet

import (
	"bytes"
	"errors"
	"testing"
)

func TestOpen_Valid(t *testing.T) {
	raw := []byte{0x01, 0xA0, 0x25, 0x33, 0xFF}

	pkt, err := Open(raw, 4)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if pkt.Header != 0xA001 {
		t.Errorf("Expected header 0xA001, got 0x%04X", pkt.Header)
	}
	if pkt.Kind != KindTelemetry {
		t.Errorf("Expected kind telemetry, got %s", pkt.Kind)
	}
	if !bytes.Equal(pkt.Body, []byte{0x25, 0x33}) {
		t.Errorf("Expected body [25 33], got % X", pkt.Body)
	}
}

func TestOpen_BodyIsCopied(t *testing.T) {
	raw := []byte{0x02, 0xA0, 0x10}
	pkt, err := Open(raw, 3)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	raw[2] = 0x99
	if pkt.Body[0] != 0x10 {
		t.Error("Expected body to be independent of the input buffer")
	}
}

func TestOpen_Malformed(t *testing.T) {
	tests := []struct {
		name     string
		raw      []byte
		declared int
	}{
		{"declared below header", []byte{0x01, 0xA0}, 1},
		{"declared zero", []byte{}, 0},
		{"declared exceeds buffer", []byte{0x01, 0xA0, 0x00}, 4},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Open(tt.raw, tt.declared)
			if !errors.Is(err, ErrMalformedPacket) {
				t.Errorf("Expected ErrMalformedPacket, got %v", err)
			}
		})
	}
}

func TestOpen_UnknownHeaderPassedThrough(t *testing.T) {
	pkt, err := Open([]byte{0x34, 0x12, 0x01}, 3)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if pkt.Kind != KindUnknown {
		t.Errorf("Expected KindUnknown, got %s", pkt.Kind)
	}
	if pkt.Header != 0x1234 {
		t.Errorf("Expected raw header 0x1234, got 0x%04X", pkt.Header)
	}
}

func TestOpen_HeaderOnly(t *testing.T) {
	pkt, err := Open([]byte{0x02, 0xA0}, 2)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if pkt.Kind != KindEnrollOffer || len(pkt.Body) != 0 {
		t.Errorf("Expected empty enroll offer, got %s with %d body bytes", pkt.Kind, len(pkt.Body))
	}
}

func TestParse(t *testing.T) {
	payload, err := Encode(uint16(KindRemoveOffer), []byte{0xAB})
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	if payload[0] != 3 {
		t.Errorf("Expected declared length 3, got %d", payload[0])
	}

	pkt, err := Parse(payload)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if pkt.Kind != KindRemoveOffer {
		t.Errorf("Expected remove offer, got %s", pkt.Kind)
	}
	if !bytes.Equal(pkt.Body, []byte{0xAB}) {
		t.Errorf("Expected body [AB], got % X", pkt.Body)
	}
}

func TestParse_Truncated(t *testing.T) {
	// length byte claims 6 bytes but only 3 follow
	_, err := Parse([]byte{0x06, 0x01, 0xA0, 0x25})
	if !errors.Is(err, ErrMalformedPacket) {
		t.Errorf("Expected ErrMalformedPacket, got %v", err)
	}

	if _, err := Parse(nil); !errors.Is(err, ErrMalformedPacket) {
		t.Errorf("Expected ErrMalformedPacket for empty payload, got %v", err)
	}
}

func TestEncode_TooLong(t *testing.T) {
	if _, err := Encode(uint16(KindTelemetry), make([]byte, 254)); err == nil {
		t.Error("Expected error for oversized body")
	}
}
