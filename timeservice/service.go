// Package timeservice publishes the read-only remote time characteristic
// sensors read after connecting to the gateway.
package timeservice

import (
	"fmt"

	"go.uber.org/zap"
	"tinygo.org/x/bluetooth"
)

var (
	// DeviceInformationUUID is the primary service hosting the characteristic.
	DeviceInformationUUID = bluetooth.New16BitUUID(0x180A)
	// CurrentTimeUUID is the read-only characteristic.
	CurrentTimeUUID = bluetooth.New16BitUUID(0x2A2B)
)

// Server is the part of bluetooth.Adapter needed to host the service.
type Server interface {
	AddService(service *bluetooth.Service) error
}

// Service returns the service definition serving value.
func Service(value string) *bluetooth.Service {
	return &bluetooth.Service{
		UUID: DeviceInformationUUID,
		Characteristics: []bluetooth.CharacteristicConfig{
			{
				UUID:  CurrentTimeUUID,
				Value: []byte(value),
				Flags: bluetooth.CharacteristicReadPermission,
			},
		},
	}
}

// Register adds the service to server.
func Register(server Server, value string, logger *zap.Logger) error {
	if err := server.AddService(Service(value)); err != nil {
		return fmt.Errorf("failed to register time service: %w", err)
	}
	logger.Info("time service registered",
		zap.String("service", DeviceInformationUUID.String()),
		zap.String("characteristic", CurrentTimeUUID.String()),
		zap.Int("value_len", len(value)))
	return nil
}

// Advertise makes the gateway connectable under name, listing the service.
func Advertise(adapter *bluetooth.Adapter, name string, logger *zap.Logger) (*bluetooth.Advertisement, error) {
	adv := adapter.DefaultAdvertisement()
	err := adv.Configure(bluetooth.AdvertisementOptions{
		LocalName:    name,
		ServiceUUIDs: []bluetooth.UUID{DeviceInformationUUID},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to configure advertisement: %w", err)
	}
	if err := adv.Start(); err != nil {
		return nil, fmt.Errorf("failed to start advertisement: %w", err)
	}
	logger.Info("advertising", zap.String("name", name))
	return adv, nil
}
