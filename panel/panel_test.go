package panel

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
	"periph.io/x/conn/v3/gpio"

	"github.com/mjasion/balena-home/vitalsgw/pkg/types"
)

type fakeOutput struct {
	mu     sync.Mutex
	level  gpio.Level
	writes int
	highs  int
}

func (p *fakeOutput) Out(l gpio.Level) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.level = l
	p.writes++
	if l == gpio.High {
		p.highs++
	}
	return nil
}

func (p *fakeOutput) snapshot() (gpio.Level, int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.level, p.highs
}

type fakeInput struct {
	mu    sync.Mutex
	level gpio.Level
	edges chan gpio.Level
	pull  gpio.Pull
	edge  gpio.Edge
	inErr error
}

func (p *fakeInput) In(pull gpio.Pull, edge gpio.Edge) error {
	p.pull, p.edge = pull, edge
	return p.inErr
}

func (p *fakeInput) Read() gpio.Level {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.level
}

func (p *fakeInput) WaitForEdge(timeout time.Duration) bool {
	select {
	case l := <-p.edges:
		p.mu.Lock()
		p.level = l
		p.mu.Unlock()
		return true
	case <-time.After(timeout):
		return false
	}
}

func TestClassifyPress(t *testing.T) {
	th := Thresholds{Debounce: 20 * time.Millisecond, Medium: time.Second, Long: 5 * time.Second}

	tests := []struct {
		held time.Duration
		want types.Press
	}{
		{50 * time.Millisecond, types.ShortPress},
		{999 * time.Millisecond, types.ShortPress},
		{time.Second, types.MediumPress},
		{4999 * time.Millisecond, types.MediumPress},
		{5 * time.Second, types.LongPress},
		{30 * time.Second, types.LongPress},
	}

	for _, tt := range tests {
		if got := ClassifyPress(tt.held, th); got != tt.want {
			t.Errorf("ClassifyPress(%v) = %v, want %v", tt.held, got, tt.want)
		}
	}
}

func TestLED_SolidAndOff(t *testing.T) {
	pin := &fakeOutput{}
	led := NewLED(pin, zap.NewNop())

	led.SetSolid()
	if level, _ := pin.snapshot(); level != gpio.High {
		t.Error("Expected LED on after SetSolid")
	}

	led.SetOff()
	if level, _ := pin.snapshot(); level != gpio.Low {
		t.Error("Expected LED off after SetOff")
	}
}

func TestLED_BlinkStopsOnSetOff(t *testing.T) {
	pin := &fakeOutput{}
	led := NewLED(pin, zap.NewNop())

	led.Blink(5*time.Millisecond, 5*time.Millisecond)
	time.Sleep(60 * time.Millisecond)
	led.SetOff()

	level, highs := pin.snapshot()
	if highs < 2 {
		t.Errorf("Expected LED to toggle while blinking, got %d on writes", highs)
	}
	if level != gpio.Low {
		t.Error("Expected LED off after blinking stopped")
	}

	time.Sleep(20 * time.Millisecond)
	if _, after := pin.snapshot(); after != highs {
		t.Errorf("Expected no writes after SetOff, got %d more", after-highs)
	}
}

func TestNewButton_ConfiguresPullUp(t *testing.T) {
	pin := &fakeInput{level: gpio.High, edges: make(chan gpio.Level)}
	if _, err := NewButton(pin, Thresholds{}, zap.NewNop()); err != nil {
		t.Fatalf("NewButton failed: %v", err)
	}
	if pin.pull != gpio.PullUp || pin.edge != gpio.BothEdges {
		t.Errorf("Expected pull-up with both edges, got %v/%v", pin.pull, pin.edge)
	}

	pin.inErr = errors.New("busy")
	if _, err := NewButton(pin, Thresholds{}, zap.NewNop()); err == nil {
		t.Error("Expected error when the pin cannot be configured")
	}
}

func TestButton_Run(t *testing.T) {
	tests := []struct {
		name string
		held time.Duration
		want *types.Press
	}{
		{"bounce", 5 * time.Millisecond, nil},
		{"short", 300 * time.Millisecond, pressPtr(types.ShortPress)},
		{"medium", 2 * time.Second, pressPtr(types.MediumPress)},
		{"long", 6 * time.Second, pressPtr(types.LongPress)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pin := &fakeInput{level: gpio.High, edges: make(chan gpio.Level)}
			button, err := NewButton(pin, Thresholds{Debounce: 20 * time.Millisecond, Medium: time.Second, Long: 5 * time.Second}, zap.NewNop())
			if err != nil {
				t.Fatalf("NewButton failed: %v", err)
			}

			start := time.Unix(1000, 0)
			times := []time.Time{start, start.Add(tt.held)}
			button.now = func() time.Time {
				next := times[0]
				times = times[1:]
				return next
			}

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			out := make(chan types.Press, 1)
			done := make(chan struct{})
			go func() {
				button.Run(ctx, out)
				close(done)
			}()

			pin.edges <- gpio.Low
			pin.edges <- gpio.High

			if tt.want == nil {
				select {
				case p := <-out:
					t.Errorf("Expected bounce to be dropped, got %v", p)
				case <-time.After(250 * time.Millisecond):
				}
			} else {
				select {
				case p := <-out:
					if p != *tt.want {
						t.Errorf("Expected %v, got %v", *tt.want, p)
					}
				case <-time.After(time.Second):
					t.Fatal("Timed out waiting for press")
				}
			}

			cancel()
			select {
			case <-done:
			case <-time.After(time.Second):
				t.Fatal("Run did not return after cancel")
			}
		})
	}
}

func pressPtr(p types.Press) *types.Press {
	return &p
}
