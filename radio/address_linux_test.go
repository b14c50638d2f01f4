//go:build linux

package radio

import (
	"testing"

	"github.com/mjasion/balena-home/vitalsgw/pkg/types"
)

func TestDeviceAddressRoundTrip(t *testing.T) {
	for _, addr := range []types.Address{sensorA, sensorB} {
		dev, err := toDeviceAddress(addr)
		if err != nil {
			t.Fatalf("toDeviceAddress failed: %v", err)
		}
		if dev.MAC[0] != addr.MAC[5] {
			t.Errorf("Expected BlueZ byte order, got %v", dev.MAC)
		}
		if dev.IsRandom() != addr.Random {
			t.Errorf("Expected random=%v, got %v", addr.Random, dev.IsRandom())
		}

		back, err := fromDeviceAddress(dev)
		if err != nil {
			t.Fatalf("fromDeviceAddress failed: %v", err)
		}
		if !back.Equal(addr) {
			t.Errorf("Expected %v after round trip, got %v", addr, back)
		}
	}
}
