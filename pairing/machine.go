// Package pairing implements the gateway's mode state machine. It decides for
// every radio event whether it is telemetry to record, a sensor offering to
// enroll, or a sensor confirming removal, and drives discovery, connections
// and the halt cycle accordingly.
package pairing

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/mjasion/balena-home/vitalsgw/analysis"
	"github.com/mjasion/balena-home/vitalsgw/packet"
	"github.com/mjasion/balena-home/vitalsgw/pkg/types"
	"github.com/mjasion/balena-home/vitalsgw/registry"
	"github.com/mjasion/balena-home/vitalsgw/rtc"
)

// Mode is the active device mode. It is never preserved across a halt.
type Mode int

const (
	Idle Mode = iota
	Registering
	Deleting
)

func (m Mode) String() string {
	switch m {
	case Registering:
		return "registering"
	case Deleting:
		return "deleting"
	default:
		return "idle"
	}
}

// Indicator patterns.
const (
	enrolledBlink  = 100 * time.Millisecond
	removedBlink   = 700 * time.Millisecond
	failedBlinkOn  = 250 * time.Millisecond
	failedBlinkOff = 1750 * time.Millisecond
)

// Config holds the machine's tunables.
type Config struct {
	// RSSIFloor rejects advertisements weaker than this, in dBm.
	RSSIFloor int16
	// ScanWindow is the telemetry discovery window after a timer wake.
	ScanWindow time.Duration
	// WakeInterval is armed before halting while the registry is non-empty.
	WakeInterval time.Duration
	// PairingTimeout bounds Registering and Deleting discovery. Zero scans
	// until the operator leaves the mode.
	PairingTimeout time.Duration
}

// Machine owns the mode, the registry and the telemetry sample. All methods
// are safe for concurrent use; events are processed one at a time.
type Machine struct {
	mu sync.Mutex

	cfg    Config
	deps   Deps
	logger *zap.Logger

	registry *registry.Registry
	sample   analysis.Sample

	mode       Mode
	scanning   bool
	discovery  uint64
	connecting bool
	halted     bool
	done       chan struct{}
}

// New restores a machine from a preserved snapshot. The snapshot's table is
// used in place.
func New(cfg Config, snap rtc.Snapshot, deps Deps, logger *zap.Logger) (*Machine, error) {
	reg := registry.New(snap.Table)
	if err := reg.Init(); err != nil {
		return nil, err
	}

	return &Machine{
		cfg:      cfg,
		deps:     deps,
		logger:   logger,
		registry: reg,
		sample:   snap.Sample,
		mode:     Idle,
		done:     make(chan struct{}),
	}, nil
}

// Boot runs the wake sequence for cause. A button wake does nothing until the
// press itself is delivered.
func (m *Machine) Boot(cause types.WakeCause) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.logger.Info("waking up",
		zap.Stringer("cause", cause),
		zap.Int("registered_sensors", m.registry.Len()))

	switch cause {
	case types.WakeTimerExpired:
		m.deps.Indicator.SetSolid()

		allow, err := m.registry.ExportAddresses()
		if err != nil {
			m.logger.Warn("no registered sensors to scan for", zap.Error(err))
			m.deps.Indicator.SetOff()
			m.halt()
			return
		}

		m.logger.Info("scanning for telemetry",
			zap.Duration("window", m.cfg.ScanWindow),
			zap.Int("allow_list", len(allow)))
		m.scheduleWake()
		if !m.startDiscovery(DiscoveryParams{Duration: m.cfg.ScanWindow, AllowList: allow}) {
			m.deps.Indicator.SetOff()
			m.halt()
		}

	case types.WakeButtonEdge:
		m.logger.Debug("waiting for button press")

	default:
		m.logger.Info("unexpected wake, going back to sleep")
		m.scheduleWake()
		m.halt()
	}
}

// Run processes radio events and button presses until the machine halts or
// ctx is cancelled. Cancellation persists the snapshot and halts.
func (m *Machine) Run(ctx context.Context, events <-chan Event, presses <-chan types.Press) error {
	for {
		select {
		case <-m.done:
			return nil
		case <-ctx.Done():
			m.mu.Lock()
			if !m.halted {
				m.logger.Info("shutting down, persisting state")
				m.halt()
			}
			m.mu.Unlock()
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			m.Handle(ev)
		case p, ok := <-presses:
			if !ok {
				presses = nil
				continue
			}
			m.Handle(ButtonPressed{Press: p})
		}
	}
}

// Handle processes a single event. Events after a halt are ignored.
func (m *Machine) Handle(ev Event) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.halted {
		return
	}

	switch e := ev.(type) {
	case AdvertisementSeen:
		m.onAdvertisement(e)
	case Connected:
		m.onConnected(e)
	case Disconnected:
		m.logger.Info("sensor disconnected",
			zap.Stringer("address", e.Address),
			zap.Uint16("handle", e.Handle),
			zap.Uint8("reason", e.Reason))
	case DiscoveryComplete:
		m.onDiscoveryComplete(e)
	case ButtonPressed:
		m.onPress(e.Press)
	}
}

func (m *Machine) onPress(p types.Press) {
	m.logger.Info("button pressed",
		zap.Stringer("press", p),
		zap.Stringer("mode", m.mode))

	switch p {
	case types.MediumPress:
		switch m.mode {
		case Idle:
			m.enterRegistering()
		case Registering:
			m.logger.Info("leaving registration mode")
			m.exitToSleep()
		}

	case types.LongPress:
		switch m.mode {
		case Idle:
			if m.registry.IsEmpty() {
				m.logger.Info("registry is empty, nothing to delete")
				m.sleepIfIdle()
				return
			}
			m.enterDeleting()
		case Deleting:
			m.logger.Info("leaving deletion mode")
			m.exitToSleep()
		}

	case types.ShortPress:
		if m.mode == Idle {
			m.sleepIfIdle()
		}
	}
}

func (m *Machine) enterRegistering() {
	m.cancelDiscovery()
	m.mode = Registering
	m.deps.Indicator.SetSolid()

	m.logger.Info("entering registration mode",
		zap.Duration("timeout", m.cfg.PairingTimeout))
	m.startDiscovery(DiscoveryParams{Duration: m.cfg.PairingTimeout})
}

func (m *Machine) enterDeleting() {
	allow, err := m.registry.ExportAddresses()
	if err != nil {
		m.logger.Warn("failed to export registry", zap.Error(err))
		return
	}

	m.cancelDiscovery()
	m.mode = Deleting
	m.deps.Indicator.SetSolid()

	m.logger.Info("entering deletion mode",
		zap.Duration("timeout", m.cfg.PairingTimeout),
		zap.Int("allow_list", len(allow)))
	m.startDiscovery(DiscoveryParams{Duration: m.cfg.PairingTimeout, AllowList: allow})
}

// sleepIfIdle halts a wake that has nothing left to do, so the telemetry
// cycle continues. An Idle wake with a running telemetry scan is left alone.
func (m *Machine) sleepIfIdle() {
	if m.mode == Idle && !m.scanning && !m.connecting {
		m.exitToSleep()
	}
}

func (m *Machine) onAdvertisement(ev AdvertisementSeen) {
	if m.connecting {
		return
	}

	switch m.mode {
	case Idle:
		m.acceptTelemetry(ev)
	case Registering:
		m.acceptEnrollOffer(ev)
	case Deleting:
		m.acceptRemoveOffer(ev)
	}
}

func (m *Machine) open(ev AdvertisementSeen) (packet.Packet, bool) {
	pkt, err := packet.Parse(ev.Payload)
	if err != nil {
		m.logger.Warn("dropping advertisement",
			zap.Stringer("address", ev.Address),
			zap.Error(err))
		return packet.Packet{}, false
	}

	m.logger.Debug("advertisement",
		zap.Stringer("address", ev.Address),
		zap.Int16("rssi", ev.RSSI),
		zap.Stringer("kind", pkt.Kind),
		zap.Uint16("header", pkt.Header),
		zap.Int("body_len", len(pkt.Body)))
	return pkt, true
}

// acceptTelemetry relies on the telemetry scan being restricted to registered
// addresses, so no signal floor applies.
func (m *Machine) acceptTelemetry(ev AdvertisementSeen) {
	if !m.registry.ContainsAddress(ev.Address) {
		return
	}
	pkt, ok := m.open(ev)
	if !ok || pkt.Kind != packet.KindTelemetry {
		return
	}

	value, err := analysis.DecodeBody(pkt.Body)
	if err != nil {
		m.logger.Warn("invalid telemetry body",
			zap.Stringer("address", ev.Address),
			zap.Error(err))
		return
	}

	m.sample = analysis.Sample{Value: value, Set: true}
	m.logger.Info("telemetry received",
		zap.Stringer("address", ev.Address),
		zap.Float64("temperature_celsius", value),
		zap.Binary("raw", pkt.Body))
}

func (m *Machine) acceptEnrollOffer(ev AdvertisementSeen) {
	if ev.RSSI < m.cfg.RSSIFloor {
		return
	}

	category, ok := m.wantedCategory(ev.Categories)
	if !ok {
		return
	}
	if m.registry.ContainsAddress(ev.Address) && !m.registry.IsEmpty() {
		return
	}

	pkt, ok := m.open(ev)
	if !ok || pkt.Kind != packet.KindEnrollOffer {
		return
	}

	m.logger.Info("sensor offers enrollment",
		zap.Stringer("address", ev.Address),
		zap.Stringer("category", category),
		zap.Int16("rssi", ev.RSSI))

	m.cancelDiscovery()
	if err := m.registry.Insert(category, ev.Address); err != nil {
		m.logger.Warn("failed to register sensor",
			zap.Stringer("address", ev.Address),
			zap.Error(err))
		return
	}
	m.connect(ev.Address)
}

func (m *Machine) wantedCategory(categories []types.Category) (types.Category, bool) {
	for _, c := range categories {
		if m.registry.WantsCategory(c) {
			return c, true
		}
	}
	return 0, false
}

func (m *Machine) acceptRemoveOffer(ev AdvertisementSeen) {
	if ev.RSSI < m.cfg.RSSIFloor {
		return
	}
	if !m.registry.ContainsAddress(ev.Address) {
		return
	}

	pkt, ok := m.open(ev)
	if !ok || pkt.Kind != packet.KindRemoveOffer {
		return
	}

	m.logger.Info("sensor offers removal",
		zap.Stringer("address", ev.Address),
		zap.Int16("rssi", ev.RSSI))

	m.cancelDiscovery()
	m.connect(ev.Address)
}

func (m *Machine) connect(address types.Address) {
	m.connecting = true
	if err := m.deps.Radio.Connect(address); err != nil {
		m.connecting = false
		m.connectionFailed(address, err)
	}
}

func (m *Machine) onConnected(ev Connected) {
	m.connecting = false

	if ev.Err != nil {
		m.connectionFailed(ev.Address, ev.Err)
		return
	}

	m.logger.Info("connection established",
		zap.Stringer("address", ev.Address),
		zap.Uint16("handle", ev.Handle),
		zap.Stringer("mode", m.mode))

	switch {
	case m.mode == Registering:
		m.logger.Info("registration completed", zap.Stringer("address", ev.Address))
		m.deps.Indicator.Blink(enrolledBlink, enrolledBlink)

	case m.mode == Deleting && m.registry.ContainsAddress(ev.Address):
		if err := m.registry.RemoveByAddress(ev.Address); err != nil {
			m.logger.Warn("deletion failed",
				zap.Stringer("address", ev.Address),
				zap.Error(err))
			m.deps.Indicator.Blink(failedBlinkOn, failedBlinkOff)
			break
		}
		m.logger.Info("deletion completed", zap.Stringer("address", ev.Address))
		m.deps.Indicator.Blink(removedBlink, removedBlink)

	default:
		m.logger.Warn("unexpected connection",
			zap.Stringer("address", ev.Address),
			zap.Stringer("mode", m.mode))
		m.deps.Indicator.Blink(failedBlinkOn, failedBlinkOff)
	}

	m.logRegistry()

	if err := m.deps.Radio.Disconnect(ev.Handle); err != nil {
		m.logger.Warn("failed to disconnect",
			zap.Stringer("address", ev.Address),
			zap.Uint16("handle", ev.Handle),
			zap.Error(err))
	}
}

// connectionFailed rolls back the registry: an enrollment committed before
// connecting is undone, and a sensor that could not confirm removal is
// dropped as well.
func (m *Machine) connectionFailed(address types.Address, cause error) {
	m.logger.Warn("connection not established",
		zap.Stringer("address", address),
		zap.Stringer("mode", m.mode),
		zap.Error(cause))

	if err := m.registry.RemoveByAddress(address); err != nil && !errors.Is(err, registry.ErrNotFound) {
		m.logger.Warn("failed to roll back registry",
			zap.Stringer("address", address),
			zap.Error(err))
	}
	m.deps.Indicator.Blink(failedBlinkOn, failedBlinkOff)
	m.logRegistry()
}

func (m *Machine) onDiscoveryComplete(ev DiscoveryComplete) {
	if !m.scanning || ev.Discovery != m.discovery {
		m.logger.Debug("ignoring stale discovery completion",
			zap.Uint64("discovery", ev.Discovery),
			zap.Uint64("current", m.discovery))
		return
	}
	m.scanning = false

	if m.mode != Idle {
		m.logger.Info("pairing window elapsed", zap.Stringer("mode", m.mode))
		m.exitToSleep()
		return
	}

	res := analysis.Evaluate(m.sample)
	fields := []zap.Field{
		zap.Stringer("liferate", res.Liferate),
		zap.Int("code", int(res.Liferate)),
		zap.Int("score", res.Score),
	}
	if res.Valid {
		fields = append(fields, zap.Float64("temperature_celsius", res.Temperature))
		m.logger.Info("telemetry classified", fields...)
	} else {
		m.logger.Warn("no telemetry recorded, state unknown", fields...)
	}

	if m.deps.Observer != nil {
		m.deps.Observer.Classified(res, m.registry.Len())
	}

	m.deps.Indicator.SetOff()
	m.halt()
}

func (m *Machine) startDiscovery(params DiscoveryParams) bool {
	id, err := m.deps.Radio.StartDiscovery(params)
	if err != nil {
		m.logger.Error("failed to start discovery", zap.Error(err))
		return false
	}
	m.scanning = true
	m.discovery = id
	return true
}

func (m *Machine) cancelDiscovery() {
	if !m.scanning {
		return
	}
	if err := m.deps.Radio.CancelDiscovery(); err != nil {
		m.logger.Warn("failed to cancel discovery", zap.Error(err))
	}
	m.scanning = false
}

// scheduleWake arms the periodic wake while sensors are registered and
// clears it once the registry is empty.
func (m *Machine) scheduleWake() {
	if m.registry.IsEmpty() {
		m.deps.Sleeper.DisarmPeriodicWake()
		return
	}
	if err := m.deps.Sleeper.ArmPeriodicWake(m.cfg.WakeInterval); err != nil {
		m.logger.Error("failed to arm periodic wake", zap.Error(err))
	}
}

// exitToSleep leaves the current mode: arm the telemetry cycle if there is
// anything to read, turn the indicator off and halt.
func (m *Machine) exitToSleep() {
	m.mode = Idle
	m.scheduleWake()
	m.deps.Indicator.SetOff()
	m.halt()
}

func (m *Machine) halt() {
	m.cancelDiscovery()

	snap := rtc.Snapshot{Table: m.registry.Table(), Sample: m.sample}
	if err := m.deps.Store.Save(snap); err != nil {
		m.logger.Error("failed to persist state", zap.Error(err))
	}

	m.logger.Info("going to sleep", zap.Int("registered_sensors", m.registry.Len()))
	m.halted = true
	m.deps.Sleeper.HaltNow()
	close(m.done)
}

func (m *Machine) logRegistry() {
	for i, e := range m.registry.Entries() {
		m.logger.Debug("registry entry",
			zap.Int("slot", i),
			zap.Stringer("category", e.Category),
			zap.Stringer("address", e.Address))
	}
	m.logger.Info("registry", zap.Int("registered_sensors", m.registry.Len()))
}

// Done is closed when the machine halts.
func (m *Machine) Done() <-chan struct{} {
	return m.done
}

// Halted reports whether the machine has halted.
func (m *Machine) Halted() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.halted
}

// Mode returns the active mode.
func (m *Machine) Mode() Mode {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.mode
}

// Sample returns the latest telemetry sample.
func (m *Machine) Sample() analysis.Sample {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sample
}

// Entries returns the occupied registry slots.
func (m *Machine) Entries() []registry.Entry {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.registry.Entries()
}
