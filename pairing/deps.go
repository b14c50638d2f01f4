package pairing

import (
	"time"

	"github.com/mjasion/balena-home/vitalsgw/analysis"
	"github.com/mjasion/balena-home/vitalsgw/pkg/types"
	"github.com/mjasion/balena-home/vitalsgw/rtc"
)

// DiscoveryParams configures one discovery window.
type DiscoveryParams struct {
	// Duration of the window; zero scans until cancelled.
	Duration time.Duration
	// AllowList restricts reported advertisers. Nil means unrestricted.
	AllowList []types.Address
}

// Radio is the BLE transport. Results of Connect and the end of a timed
// discovery are delivered asynchronously as events. StartDiscovery returns an
// id that the matching DiscoveryComplete carries.
type Radio interface {
	StartDiscovery(params DiscoveryParams) (uint64, error)
	// CancelDiscovery returns once no further advertisements will be delivered.
	CancelDiscovery() error
	Connect(address types.Address) error
	Disconnect(handle uint16) error
}

// Sleeper is the low-power controller.
type Sleeper interface {
	ArmPeriodicWake(interval time.Duration) error
	DisarmPeriodicWake()
	HaltNow()
}

// Indicator drives the status LED.
type Indicator interface {
	SetSolid()
	SetOff()
	Blink(on, off time.Duration)
}

// Store persists the preserved snapshot before halting.
type Store interface {
	Save(snap rtc.Snapshot) error
}

// Observer receives every classification made at the end of a telemetry scan.
type Observer interface {
	Classified(result analysis.Result, registered int)
}

// Deps groups the machine's collaborators. Observer is optional.
type Deps struct {
	Radio     Radio
	Sleeper   Sleeper
	Indicator Indicator
	Store     Store
	Observer  Observer
}
