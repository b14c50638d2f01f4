package panel

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"periph.io/x/conn/v3/gpio"

	"github.com/mjasion/balena-home/vitalsgw/pkg/types"
)

// edgePoll bounds how long Run blocks in WaitForEdge before rechecking ctx.
const edgePoll = 100 * time.Millisecond

// InputPin is the part of gpio.PinIn the button needs.
type InputPin interface {
	In(pull gpio.Pull, edge gpio.Edge) error
	Read() gpio.Level
	WaitForEdge(timeout time.Duration) bool
}

// Thresholds classify a press by how long the button was held.
// Holds shorter than Debounce are contact bounce and dropped.
type Thresholds struct {
	Debounce time.Duration
	Medium   time.Duration
	Long     time.Duration
}

// ClassifyPress maps a hold duration to a press: short below Medium, medium
// below Long, long otherwise.
func ClassifyPress(held time.Duration, th Thresholds) types.Press {
	switch {
	case held >= th.Long:
		return types.LongPress
	case held >= th.Medium:
		return types.MediumPress
	default:
		return types.ShortPress
	}
}

// Button is an active-low push button with the internal pull-up enabled.
type Button struct {
	pin        InputPin
	thresholds Thresholds
	logger     *zap.Logger
	now        func() time.Time
}

// NewButton configures the pin for both-edge detection.
func NewButton(pin InputPin, th Thresholds, logger *zap.Logger) (*Button, error) {
	if err := pin.In(gpio.PullUp, gpio.BothEdges); err != nil {
		return nil, fmt.Errorf("failed to configure button pin: %w", err)
	}
	return &Button{
		pin:        pin,
		thresholds: th,
		logger:     logger,
		now:        time.Now,
	}, nil
}

// Run reports classified presses on out until ctx is cancelled. A press is
// reported on release.
func (b *Button) Run(ctx context.Context, out chan<- types.Press) {
	var (
		pressed   bool
		pressedAt time.Time
	)

	for {
		if ctx.Err() != nil {
			return
		}
		if !b.pin.WaitForEdge(edgePoll) {
			continue
		}

		down := b.pin.Read() == gpio.Low
		switch {
		case down && !pressed:
			pressed = true
			pressedAt = b.now()
		case !down && pressed:
			pressed = false
			held := b.now().Sub(pressedAt)
			if held < b.thresholds.Debounce {
				b.logger.Debug("ignoring bounce", zap.Duration("held", held))
				continue
			}

			press := ClassifyPress(held, b.thresholds)
			b.logger.Info("button pressed",
				zap.Stringer("press", press),
				zap.Duration("held", held),
			)
			select {
			case out <- press:
			case <-ctx.Done():
				return
			}
		}
	}
}
