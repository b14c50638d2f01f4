//go:build linux

package radio

import (
	"tinygo.org/x/bluetooth"

	"github.com/mjasion/balena-home/vitalsgw/pkg/types"
)

func newAdapter(id string) *bluetooth.Adapter {
	return bluetooth.NewAdapter(id)
}

// BlueZ stores MACs least significant byte first.
func toDeviceAddress(a types.Address) (bluetooth.Address, error) {
	var mac bluetooth.MAC
	for i := range a.MAC {
		mac[i] = a.MAC[len(a.MAC)-1-i]
	}
	addr := bluetooth.Address{MACAddress: bluetooth.MACAddress{MAC: mac}}
	addr.SetRandom(a.Random)
	return addr, nil
}

func fromDeviceAddress(addr bluetooth.Address) (types.Address, error) {
	var a types.Address
	for i := range addr.MAC {
		a.MAC[i] = addr.MAC[len(addr.MAC)-1-i]
	}
	a.Random = addr.IsRandom()
	return a, nil
}
