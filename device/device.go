// Package device runs the gateway's wake cycles: every cycle restores the
// preserved state, runs a fresh pairing machine until it halts and then
// sleeps until the next wake.
package device

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/mjasion/balena-home/vitalsgw/analysis"
	"github.com/mjasion/balena-home/vitalsgw/pairing"
	"github.com/mjasion/balena-home/vitalsgw/pkg/buffer"
	"github.com/mjasion/balena-home/vitalsgw/pkg/types"
	"github.com/mjasion/balena-home/vitalsgw/rtc"
)

const instrumentationName = "vitalsgw/device"

// Radio is a pairing.Radio that delivers its results on a channel.
type Radio interface {
	pairing.Radio
	Events() <-chan pairing.Event
}

// Sleeper is the halt controller shared by every cycle.
type Sleeper interface {
	pairing.Sleeper
	WakeCause() types.WakeCause
	Sleep(ctx context.Context, presses <-chan types.Press) (types.WakeCause, *types.Press, error)
}

// Store loads and persists the preserved snapshot.
type Store interface {
	Load() (rtc.Snapshot, error)
	Save(snap rtc.Snapshot) error
}

// Publisher receives every classified reading.
type Publisher interface {
	PublishReading(reading types.Reading) error
}

// Deps groups the device's collaborators. Readings, Publisher and Presses
// are optional.
type Deps struct {
	Radio     Radio
	Sleeper   Sleeper
	Indicator pairing.Indicator
	Store     Store
	Readings  *buffer.RingBuffer[types.Reading]
	Publisher Publisher
	Presses   <-chan types.Press
}

// Device owns the collaborators that outlive a single cycle.
type Device struct {
	cfg    pairing.Config
	deps   Deps
	logger *zap.Logger

	tracer     trace.Tracer
	cycles     metric.Int64Counter
	classified metric.Int64Counter
	now        func() time.Time
}

// New validates deps and registers the device's instruments.
func New(cfg pairing.Config, deps Deps, logger *zap.Logger) (*Device, error) {
	if deps.Radio == nil || deps.Sleeper == nil || deps.Indicator == nil || deps.Store == nil {
		return nil, fmt.Errorf("radio, sleeper, indicator and store are required")
	}

	meter := otel.Meter(instrumentationName)
	cycles, err := meter.Int64Counter("vitalsgw.cycles",
		metric.WithDescription("Completed wake cycles"))
	if err != nil {
		return nil, fmt.Errorf("failed to create cycle counter: %w", err)
	}
	classified, err := meter.Int64Counter("vitalsgw.classifications",
		metric.WithDescription("Telemetry classifications by liferate"))
	if err != nil {
		return nil, fmt.Errorf("failed to create classification counter: %w", err)
	}

	return &Device{
		cfg:        cfg,
		deps:       deps,
		logger:     logger,
		tracer:     otel.Tracer(instrumentationName),
		cycles:     cycles,
		classified: classified,
		now:        time.Now,
	}, nil
}

// Run cycles until ctx is cancelled. A cancelled cycle persists its state
// before Run returns nil.
func (d *Device) Run(ctx context.Context) error {
	cause := d.deps.Sleeper.WakeCause()
	var pending *types.Press

	if d.deps.Presses == nil {
		d.warnIfUnpairable()
	}

	for {
		if err := d.cycle(ctx, cause, pending); err != nil {
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		}

		var err error
		cause, pending, err = d.deps.Sleeper.Sleep(ctx, d.deps.Presses)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return fmt.Errorf("sleep interrupted: %w", err)
		}
	}
}

// warnIfUnpairable reports a gateway with no button and no registered
// sensor. Only a button press can start registration, so it sleeps for good.
func (d *Device) warnIfUnpairable() {
	snap, err := d.deps.Store.Load()
	if err != nil {
		return
	}
	for _, e := range snap.Table {
		if e.Occupied {
			return
		}
	}
	d.logger.Warn("no button attached and no sensors registered, the gateway cannot pair until the panel is enabled")
}

func (d *Device) cycle(ctx context.Context, cause types.WakeCause, pending *types.Press) error {
	ctx, span := d.tracer.Start(ctx, "device.cycle",
		trace.WithAttributes(attribute.String("wake.cause", cause.String())))
	defer span.End()

	snap, err := d.deps.Store.Load()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "load failed")
		return fmt.Errorf("failed to load preserved state: %w", err)
	}

	d.discardStaleEvents()

	m, err := pairing.New(d.cfg, snap, pairing.Deps{
		Radio:     d.deps.Radio,
		Sleeper:   d.deps.Sleeper,
		Indicator: d.deps.Indicator,
		Store:     d.deps.Store,
		Observer:  d,
	}, d.logger)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "machine init failed")
		return fmt.Errorf("failed to restore pairing state: %w", err)
	}

	m.Boot(cause)
	if pending != nil && !m.Halted() {
		m.Handle(pairing.ButtonPressed{Press: *pending})
	}

	err = m.Run(ctx, d.deps.Radio.Events(), d.deps.Presses)

	span.SetAttributes(attribute.Int("registry.sensors", len(m.Entries())))
	d.cycles.Add(ctx, 1, metric.WithAttributes(attribute.String("wake.cause", cause.String())))
	return err
}

// discardStaleEvents drops radio events left over from the previous cycle.
func (d *Device) discardStaleEvents() {
	events := d.deps.Radio.Events()
	discarded := 0
	for {
		select {
		case <-events:
			discarded++
		default:
			if discarded > 0 {
				d.logger.Debug("discarded stale radio events", zap.Int("count", discarded))
			}
			return
		}
	}
}

// Classified implements pairing.Observer.
func (d *Device) Classified(result analysis.Result, registered int) {
	reading := NewReading(result, registered, d.now())

	d.classified.Add(context.Background(), 1,
		metric.WithAttributes(attribute.String("liferate", reading.Liferate)))

	if d.deps.Readings != nil {
		d.deps.Readings.Add(reading)
	}
	if d.deps.Publisher != nil {
		if err := d.deps.Publisher.PublishReading(reading); err != nil {
			d.logger.Warn("failed to publish reading", zap.Error(err))
		}
	}
}

// NewReading converts a classification into an exported reading.
func NewReading(result analysis.Result, registered int, at time.Time) types.Reading {
	reading := types.Reading{
		Timestamp:         at,
		SampleValid:       result.Valid,
		Score:             result.Score,
		Liferate:          result.Liferate.String(),
		LiferateCode:      int(result.Liferate),
		RegisteredSensors: registered,
	}
	if result.Valid {
		reading.TemperatureCelsius = result.Temperature
	}
	return reading
}
