// Package panel drives the status LED and the mode button over GPIO.
package panel

import (
	"sync"
	"time"

	"go.uber.org/zap"
	"periph.io/x/conn/v3/gpio"
)

// OutputPin is the part of gpio.PinOut the LED needs.
type OutputPin interface {
	Out(l gpio.Level) error
}

// LED is a GPIO status LED. Blink runs in its own goroutine until the next
// SetSolid, SetOff or Blink call.
type LED struct {
	pin    OutputPin
	logger *zap.Logger

	mu   sync.Mutex
	stop chan struct{}
	wg   sync.WaitGroup
}

// NewLED returns an LED that starts switched off.
func NewLED(pin OutputPin, logger *zap.Logger) *LED {
	l := &LED{pin: pin, logger: logger}
	l.write(gpio.Low)
	return l
}

// SetSolid switches the LED on.
func (l *LED) SetSolid() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.stopBlinkLocked()
	l.write(gpio.High)
}

// SetOff switches the LED off.
func (l *LED) SetOff() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.stopBlinkLocked()
	l.write(gpio.Low)
}

// Blink toggles the LED with the given on and off periods.
func (l *LED) Blink(on, off time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.stopBlinkLocked()

	stop := make(chan struct{})
	l.stop = stop
	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		for {
			l.write(gpio.High)
			select {
			case <-stop:
				return
			case <-time.After(on):
			}
			l.write(gpio.Low)
			select {
			case <-stop:
				return
			case <-time.After(off):
			}
		}
	}()
}

// Close stops blinking and switches the LED off.
func (l *LED) Close() {
	l.SetOff()
}

func (l *LED) stopBlinkLocked() {
	if l.stop == nil {
		return
	}
	close(l.stop)
	l.stop = nil
	l.wg.Wait()
}

func (l *LED) write(level gpio.Level) {
	if err := l.pin.Out(level); err != nil {
		l.logger.Warn("failed to drive LED", zap.Bool("level", bool(level)), zap.Error(err))
	}
}

// LogIndicator stands in for the LED when no GPIO panel is attached.
type LogIndicator struct {
	logger *zap.Logger
}

func NewLogIndicator(logger *zap.Logger) *LogIndicator {
	return &LogIndicator{logger: logger}
}

func (i *LogIndicator) SetSolid() {
	i.logger.Debug("indicator solid")
}

func (i *LogIndicator) SetOff() {
	i.logger.Debug("indicator off")
}

func (i *LogIndicator) Blink(on, off time.Duration) {
	i.logger.Debug("indicator blinking", zap.Duration("on", on), zap.Duration("off", off))
}
