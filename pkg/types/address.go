package types

import (
	"fmt"
	"strconv"
	"strings"
)

// Address is a 48-bit BLE device address plus its address-type tag.
// MAC is stored in display order (most significant byte first).
type Address struct {
	MAC    [6]byte
	Random bool
}

// ParseAddress parses "AA:BB:CC:DD:EE:FF" (case-insensitive). An optional
// "/random" or "/public" suffix sets the address type.
func ParseAddress(s string) (Address, error) {
	var addr Address

	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '/'); i >= 0 {
		switch strings.ToLower(s[i+1:]) {
		case "random":
			addr.Random = true
		case "public":
		default:
			return Address{}, fmt.Errorf("invalid address type %q", s[i+1:])
		}
		s = s[:i]
	}

	parts := strings.Split(s, ":")
	if len(parts) != 6 {
		return Address{}, fmt.Errorf("invalid MAC address %q: expected 6 octets", s)
	}
	for i, p := range parts {
		if len(p) != 2 {
			return Address{}, fmt.Errorf("invalid MAC address %q: octet %d", s, i)
		}
		b, err := strconv.ParseUint(p, 16, 8)
		if err != nil {
			return Address{}, fmt.Errorf("invalid MAC address %q: %w", s, err)
		}
		addr.MAC[i] = byte(b)
	}
	return addr, nil
}

// String renders the MAC in upper-case colon notation, without the type tag.
func (a Address) String() string {
	return fmt.Sprintf("%02X:%02X:%02X:%02X:%02X:%02X",
		a.MAC[0], a.MAC[1], a.MAC[2], a.MAC[3], a.MAC[4], a.MAC[5])
}

// TypeString returns "random" or "public".
func (a Address) TypeString() string {
	if a.Random {
		return "random"
	}
	return "public"
}

// Equal reports whether both the MAC and the address type match.
func (a Address) Equal(b Address) bool {
	return a.MAC == b.MAC && a.Random == b.Random
}
