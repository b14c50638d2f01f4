// Package radio implements the gateway's BLE transport on top of the host
// Bluetooth stack (BlueZ over D-Bus on Linux).
package radio

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"tinygo.org/x/bluetooth"

	"github.com/mjasion/balena-home/vitalsgw/packet"
	"github.com/mjasion/balena-home/vitalsgw/pairing"
	"github.com/mjasion/balena-home/vitalsgw/pkg/types"
)

// ReasonLocalHostTerminated is reported in Disconnected for links closed by
// the gateway.
const ReasonLocalHostTerminated uint8 = 0x13

const eventQueueSize = 64

var errDiscoveryActive = errors.New("discovery already active")

// BlueZ implements pairing.Radio. Results are delivered on Events.
type BlueZ struct {
	adapter    *bluetooth.Adapter
	categories []types.Category
	logger     *zap.Logger
	events     chan pairing.Event
	closed     chan struct{}
	closeOnce  sync.Once

	mu       sync.Mutex
	scanning bool
	gen      uint64
	stopScan chan struct{}
	scanDone chan struct{}
	timer    *time.Timer

	nextHandle uint16
	links      map[uint16]link
}

type link struct {
	device  bluetooth.Device
	address types.Address
}

// NewBlueZ enables the adapter. categories are the service classes reported
// in AdvertisementSeen.Categories.
func NewBlueZ(adapterID string, categories []types.Category, logger *zap.Logger) (*BlueZ, error) {
	adapter := newAdapter(adapterID)

	logger.Info("initializing BLE adapter", zap.String("adapter", adapterID))
	if err := adapter.Enable(); err != nil {
		return nil, fmt.Errorf("failed to enable BLE adapter: %w", err)
	}
	logger.Info("BLE adapter initialized successfully")

	return &BlueZ{
		adapter:    adapter,
		categories: categories,
		logger:     logger,
		events:     make(chan pairing.Event, eventQueueSize),
		closed:     make(chan struct{}),
		links:      make(map[uint16]link),
	}, nil
}

// Adapter exposes the enabled adapter for local GATT services.
func (r *BlueZ) Adapter() *bluetooth.Adapter {
	return r.adapter
}

// Events returns the channel advertisements and connection results arrive on.
func (r *BlueZ) Events() <-chan pairing.Event {
	return r.events
}

// StartDiscovery starts scanning. A timed discovery emits DiscoveryComplete
// carrying the returned id when the window ends.
func (r *BlueZ) StartDiscovery(params pairing.DiscoveryParams) (uint64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.scanning {
		return 0, errDiscoveryActive
	}

	allow := newAllowList(params.AllowList)
	stop := make(chan struct{})
	done := make(chan struct{})

	r.gen++
	gen := r.gen
	r.scanning = true
	r.stopScan = stop
	r.scanDone = done

	r.logger.Debug("starting BLE scan",
		zap.Duration("duration", params.Duration),
		zap.Int("allow_list", len(params.AllowList)))

	go func() {
		defer close(done)
		err := r.adapter.Scan(func(_ *bluetooth.Adapter, result bluetooth.ScanResult) {
			select {
			case <-stop:
				return
			default:
			}

			addr, err := fromDeviceAddress(result.Address)
			if err != nil {
				return
			}
			if !allow.permits(addr) {
				return
			}
			if ev, ok := r.advertisement(addr, result.RSSI, result); ok {
				r.emit(ev, stop)
			}
		})
		if err != nil {
			r.logger.Error("BLE scan failed", zap.Error(err))
		}
	}()

	if params.Duration > 0 {
		r.timer = time.AfterFunc(params.Duration, func() { r.finishDiscovery(gen) })
	}
	return gen, nil
}

// CancelDiscovery stops scanning and waits for the scan to wind down. No
// DiscoveryComplete is emitted.
func (r *BlueZ) CancelDiscovery() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.scanning {
		return nil
	}
	r.gen++
	return r.stopScanLocked()
}

func (r *BlueZ) finishDiscovery(gen uint64) {
	r.mu.Lock()
	if !r.scanning || gen != r.gen {
		r.mu.Unlock()
		return
	}
	if err := r.stopScanLocked(); err != nil {
		r.logger.Warn("failed to stop BLE scan", zap.Error(err))
	}
	r.mu.Unlock()

	r.logger.Debug("discovery window elapsed")
	r.emit(pairing.DiscoveryComplete{Discovery: gen}, nil)
}

func (r *BlueZ) stopScanLocked() error {
	if r.timer != nil {
		r.timer.Stop()
		r.timer = nil
	}
	close(r.stopScan)
	r.scanning = false

	err := r.adapter.StopScan()
	<-r.scanDone
	if err != nil {
		return fmt.Errorf("failed to stop BLE scan: %w", err)
	}
	return nil
}

// Connect opens a link in the background and reports the result as Connected.
func (r *BlueZ) Connect(address types.Address) error {
	target, err := toDeviceAddress(address)
	if err != nil {
		return fmt.Errorf("%w: %v", pairing.ErrConnectionFailed, err)
	}

	r.logger.Info("connecting", zap.Stringer("address", address))
	go func() {
		device, err := r.adapter.Connect(target, bluetooth.ConnectionParams{})
		if err != nil {
			r.emit(pairing.Connected{
				Address: address,
				Err:     fmt.Errorf("%w: %v", pairing.ErrConnectionFailed, err),
			}, nil)
			return
		}

		r.mu.Lock()
		r.nextHandle++
		handle := r.nextHandle
		r.links[handle] = link{device: device, address: address}
		r.mu.Unlock()

		r.emit(pairing.Connected{Handle: handle, Address: address}, nil)
	}()
	return nil
}

// Disconnect closes the link and reports Disconnected.
func (r *BlueZ) Disconnect(handle uint16) error {
	r.mu.Lock()
	l, ok := r.links[handle]
	delete(r.links, handle)
	r.mu.Unlock()

	if !ok {
		return fmt.Errorf("unknown connection handle %d", handle)
	}
	if err := l.device.Disconnect(); err != nil {
		return fmt.Errorf("failed to disconnect %s: %w", l.address, err)
	}

	go r.emit(pairing.Disconnected{
		Handle:  handle,
		Address: l.address,
		Reason:  ReasonLocalHostTerminated,
	}, nil)
	return nil
}

// Close stops scanning and drops every open link.
func (r *BlueZ) Close() error {
	var errs []error
	if err := r.CancelDiscovery(); err != nil {
		errs = append(errs, err)
	}

	r.mu.Lock()
	links := r.links
	r.links = make(map[uint16]link)
	r.mu.Unlock()

	for handle, l := range links {
		if err := l.device.Disconnect(); err != nil {
			errs = append(errs, fmt.Errorf("failed to disconnect handle %d: %w", handle, err))
		}
	}

	r.closeOnce.Do(func() { close(r.closed) })
	return errors.Join(errs...)
}

// emit delivers ev unless the radio is closed or stop fires first.
func (r *BlueZ) emit(ev pairing.Event, stop <-chan struct{}) {
	select {
	case r.events <- ev:
	case <-stop:
	case <-r.closed:
	}
}

// payload is the part of bluetooth.AdvertisementPayload the radio reads.
type payload interface {
	HasServiceUUID(bluetooth.UUID) bool
	ManufacturerData() []bluetooth.ManufacturerDataElement
}

// advertisement converts a scan result. The first manufacturer data element
// is re-framed to the wire format with its company id as the header.
func (r *BlueZ) advertisement(addr types.Address, rssi int16, p payload) (pairing.AdvertisementSeen, bool) {
	return buildAdvertisement(addr, rssi, p, r.categories, r.logger)
}

func buildAdvertisement(addr types.Address, rssi int16, p payload, categories []types.Category, logger *zap.Logger) (pairing.AdvertisementSeen, bool) {
	ev := pairing.AdvertisementSeen{
		Address: addr,
		RSSI:    rssi,
	}

	for _, c := range categories {
		if p.HasServiceUUID(bluetooth.New16BitUUID(uint16(c))) {
			ev.Categories = append(ev.Categories, c)
		}
	}

	data := p.ManufacturerData()
	if len(data) == 0 {
		return ev, len(ev.Categories) > 0
	}

	framed, err := packet.Encode(data[0].CompanyID, data[0].Data)
	if err != nil {
		logger.Debug("oversized manufacturer data", zap.Stringer("address", addr), zap.Error(err))
		return ev, len(ev.Categories) > 0
	}
	ev.Payload = framed
	return ev, true
}

// allowList is nil for unrestricted discovery.
type allowList map[types.Address]struct{}

func newAllowList(addrs []types.Address) allowList {
	if addrs == nil {
		return nil
	}
	allow := make(allowList, len(addrs))
	for _, a := range addrs {
		allow[a] = struct{}{}
	}
	return allow
}

func (a allowList) permits(addr types.Address) bool {
	if a == nil {
		return true
	}
	_, ok := a[addr]
	return ok
}
