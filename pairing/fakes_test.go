package pairing

import (
	"fmt"
	"sync"
	"time"

	"github.com/mjasion/balena-home/vitalsgw/analysis"
	"github.com/mjasion/balena-home/vitalsgw/pkg/types"
)

type fakeRadio struct {
	mu          sync.Mutex
	calls       []string
	discoveries []DiscoveryParams
	connects    []types.Address
	disconnects []uint16
	connectErr  error
	startErr    error
	onConnect   func(types.Address)
}

// StartDiscovery numbers discoveries from 1 in call order.
func (r *fakeRadio) StartDiscovery(params DiscoveryParams) (uint64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, "start")
	if r.startErr != nil {
		return 0, r.startErr
	}
	r.discoveries = append(r.discoveries, params)
	return uint64(len(r.discoveries)), nil
}

// current returns the id of the latest discovery.
func (r *fakeRadio) current() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return uint64(len(r.discoveries))
}

func (r *fakeRadio) CancelDiscovery() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, "cancel")
	return nil
}

func (r *fakeRadio) Connect(address types.Address) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, "connect")
	r.connects = append(r.connects, address)
	if r.onConnect != nil {
		r.onConnect(address)
	}
	return r.connectErr
}

func (r *fakeRadio) Disconnect(handle uint16) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, "disconnect")
	r.disconnects = append(r.disconnects, handle)
	return nil
}

type fakeSleeper struct {
	mu      sync.Mutex
	armed   []time.Duration
	disarms int
	halts   int
}

func (s *fakeSleeper) DisarmPeriodicWake() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.disarms++
}

func (s *fakeSleeper) ArmPeriodicWake(interval time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.armed = append(s.armed, interval)
	return nil
}

func (s *fakeSleeper) HaltNow() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.halts++
}

type fakeIndicator struct {
	mu    sync.Mutex
	calls []string
}

func (i *fakeIndicator) SetSolid() { i.record("solid") }
func (i *fakeIndicator) SetOff()   { i.record("off") }
func (i *fakeIndicator) Blink(on, off time.Duration) {
	i.record(fmt.Sprintf("blink %v/%v", on, off))
}

func (i *fakeIndicator) record(s string) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.calls = append(i.calls, s)
}

func (i *fakeIndicator) last() string {
	i.mu.Lock()
	defer i.mu.Unlock()
	if len(i.calls) == 0 {
		return ""
	}
	return i.calls[len(i.calls)-1]
}

type fakeObserver struct {
	results    []analysis.Result
	registered []int
}

func (o *fakeObserver) Classified(result analysis.Result, registered int) {
	o.results = append(o.results, result)
	o.registered = append(o.registered, registered)
}
