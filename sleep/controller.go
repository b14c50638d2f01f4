// Package sleep emulates the halt/wake cycle of a battery powered board on a
// Linux host: the gateway "halts" between cycles and is woken either by the
// periodic wake timer or by the button.
package sleep

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/mjasion/balena-home/vitalsgw/pkg/types"
)

// Controller owns the periodic wake schedule and the halted flag.
type Controller struct {
	mu     sync.Mutex
	cron   *cron.Cron
	entry  cron.EntryID
	armed  time.Duration
	halted bool
	cause  types.WakeCause

	wake   chan struct{}
	logger *zap.Logger
}

// New starts the scheduler. The first cycle reports WakeOther (power-on).
func New(logger *zap.Logger) *Controller {
	c := &Controller{
		cron:   cron.New(),
		cause:  types.WakeOther,
		wake:   make(chan struct{}, 1),
		logger: logger,
	}
	c.cron.Start()
	return c
}

// WakeCause reports why the current cycle started.
func (c *Controller) WakeCause() types.WakeCause {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cause
}

// ArmPeriodicWake schedules the wake timer, replacing any previous schedule.
func (c *Controller) ArmPeriodicWake(d time.Duration) error {
	if d < time.Second {
		return fmt.Errorf("wake interval must be at least 1s, got %v", d)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.disarmLocked()
	id, err := c.cron.AddFunc("@every "+d.String(), c.fire)
	if err != nil {
		return fmt.Errorf("failed to schedule wake: %w", err)
	}
	c.entry = id
	c.armed = d

	c.logger.Debug("periodic wake armed", zap.Duration("interval", d))
	return nil
}

// DisarmPeriodicWake clears the wake schedule.
func (c *Controller) DisarmPeriodicWake() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.armed != 0 {
		c.logger.Debug("periodic wake disarmed")
	}
	c.disarmLocked()
}

// Armed returns the armed wake interval, zero when none is armed.
func (c *Controller) Armed() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.armed
}

// HaltNow marks the device halted. Sleep performs the actual wait.
func (c *Controller) HaltNow() {
	c.mu.Lock()
	c.halted = true
	armed := c.armed
	c.mu.Unlock()

	c.logger.Info("entering halt", zap.Duration("wake_interval", armed))
}

// Halted reports whether HaltNow was called in the current cycle.
func (c *Controller) Halted() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.halted
}

// Sleep blocks until the armed wake fires or a button press arrives. A wake
// caused by the button returns the press so the next cycle can consume it.
// With nothing armed only the button (or ctx) ends the halt. The wake
// schedule is cleared on return.
func (c *Controller) Sleep(ctx context.Context, presses <-chan types.Press) (types.WakeCause, *types.Press, error) {
	var (
		cause types.WakeCause
		press *types.Press
	)

	select {
	case <-ctx.Done():
		return types.WakeOther, nil, ctx.Err()
	case <-c.wake:
		cause = types.WakeTimerExpired
	case p, ok := <-presses:
		if !ok {
			return types.WakeOther, nil, fmt.Errorf("button channel closed")
		}
		cause = types.WakeButtonEdge
		press = &p
	}

	c.mu.Lock()
	c.disarmLocked()
	c.halted = false
	c.cause = cause
	c.mu.Unlock()

	c.logger.Debug("woke up", zap.Stringer("cause", cause))
	return cause, press, nil
}

// Stop stops the scheduler.
func (c *Controller) Stop() {
	c.mu.Lock()
	c.disarmLocked()
	c.mu.Unlock()
	<-c.cron.Stop().Done()
}

func (c *Controller) fire() {
	select {
	case c.wake <- struct{}{}:
	default:
	}
}

func (c *Controller) disarmLocked() {
	if c.entry != 0 {
		c.cron.Remove(c.entry)
		c.entry = 0
	}
	c.armed = 0
	select {
	case <-c.wake:
	default:
	}
}
