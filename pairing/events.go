package pairing

import (
	"errors"

	"github.com/mjasion/balena-home/vitalsgw/pkg/types"
)

// ErrConnectionFailed wraps transport errors reported in Connected.Err.
var ErrConnectionFailed = errors.New("connection failed")

// Event is delivered to the machine by the radio transport or the button.
type Event interface {
	event()
}

// AdvertisementSeen is one received broadcast. Payload is the manufacturer
// data in wire format, length byte first.
type AdvertisementSeen struct {
	Address    types.Address
	RSSI       int16
	Categories []types.Category
	Payload    []byte
}

// Connected reports the outcome of Radio.Connect. Err is nil on success.
type Connected struct {
	Handle  uint16
	Address types.Address
	Err     error
}

// Disconnected reports a terminated link.
type Disconnected struct {
	Handle  uint16
	Address types.Address
	Reason  uint8
}

// DiscoveryComplete is emitted when a timed discovery window ends. Cancelled
// discoveries do not emit it, but one already queued may still arrive.
type DiscoveryComplete struct {
	// Discovery is the id returned by the StartDiscovery call it ends.
	Discovery uint64
}

// ButtonPressed carries a classified button press.
type ButtonPressed struct {
	Press types.Press
}

func (AdvertisementSeen) event() {}
func (Connected) event()         {}
func (Disconnected) event()      {}
func (DiscoveryComplete) event() {}
func (ButtonPressed) event()     {}
