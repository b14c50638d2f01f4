//go:build !linux

package radio

import (
	"errors"

	"tinygo.org/x/bluetooth"

	"github.com/mjasion/balena-home/vitalsgw/pkg/types"
)

var errUnsupported = errors.New("BLE address mapping requires BlueZ")

func newAdapter(string) *bluetooth.Adapter {
	return bluetooth.DefaultAdapter
}

func toDeviceAddress(types.Address) (bluetooth.Address, error) {
	return bluetooth.Address{}, errUnsupported
}

func fromDeviceAddress(addr bluetooth.Address) (types.Address, error) {
	return types.ParseAddress(addr.String())
}
