package panel

import (
	"fmt"

	"go.uber.org/zap"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/host/v3"
)

// Open initializes the host drivers and looks up the LED and button pins.
func Open(ledPin, buttonPin string, th Thresholds, logger *zap.Logger) (*LED, *Button, error) {
	if _, err := host.Init(); err != nil {
		return nil, nil, fmt.Errorf("failed to initialize GPIO host: %w", err)
	}

	led, err := lookup(ledPin)
	if err != nil {
		return nil, nil, err
	}
	btn, err := lookup(buttonPin)
	if err != nil {
		return nil, nil, err
	}

	button, err := NewButton(btn, th, logger.With(zap.String("pin", buttonPin)))
	if err != nil {
		return nil, nil, err
	}

	logger.Info("GPIO panel ready",
		zap.String("led_pin", led.Name()),
		zap.String("button_pin", btn.Name()),
	)
	return NewLED(led, logger.With(zap.String("pin", ledPin))), button, nil
}

func lookup(name string) (gpio.PinIO, error) {
	p := gpioreg.ByName(name)
	if p == nil {
		return nil, fmt.Errorf("GPIO pin %s not found", name)
	}
	return p, nil
}
