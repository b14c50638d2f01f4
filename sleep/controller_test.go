package sleep

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/mjasion/balena-home/vitalsgw/pkg/types"
)

func TestNew_FirstCycleIsPowerOn(t *testing.T) {
	c := New(zap.NewNop())
	defer c.Stop()

	if c.WakeCause() != types.WakeOther {
		t.Errorf("Expected first wake cause other, got %v", c.WakeCause())
	}
	if c.Halted() {
		t.Error("Expected controller not to start halted")
	}
}

func TestArmPeriodicWake_RejectsSubSecond(t *testing.T) {
	c := New(zap.NewNop())
	defer c.Stop()

	if err := c.ArmPeriodicWake(100 * time.Millisecond); err == nil {
		t.Error("Expected error for sub-second interval")
	}
	if c.Armed() != 0 {
		t.Errorf("Expected nothing armed, got %v", c.Armed())
	}
}

func TestArmPeriodicWake_Replaces(t *testing.T) {
	c := New(zap.NewNop())
	defer c.Stop()

	if err := c.ArmPeriodicWake(5 * time.Second); err != nil {
		t.Fatalf("ArmPeriodicWake failed: %v", err)
	}
	if err := c.ArmPeriodicWake(10 * time.Second); err != nil {
		t.Fatalf("ArmPeriodicWake failed: %v", err)
	}

	if c.Armed() != 10*time.Second {
		t.Errorf("Expected 10s armed, got %v", c.Armed())
	}
	if n := len(c.cron.Entries()); n != 1 {
		t.Errorf("Expected 1 scheduled entry, got %d", n)
	}
}

func TestDisarmPeriodicWake(t *testing.T) {
	c := New(zap.NewNop())
	defer c.Stop()

	if err := c.ArmPeriodicWake(5 * time.Second); err != nil {
		t.Fatalf("ArmPeriodicWake failed: %v", err)
	}
	c.DisarmPeriodicWake()

	if c.Armed() != 0 {
		t.Errorf("Expected nothing armed, got %v", c.Armed())
	}
	if n := len(c.cron.Entries()); n != 0 {
		t.Errorf("Expected no scheduled entries, got %d", n)
	}

	// disarming twice is harmless
	c.DisarmPeriodicWake()
	if c.Armed() != 0 {
		t.Errorf("Expected nothing armed, got %v", c.Armed())
	}
}

func TestSleep_TimerWake(t *testing.T) {
	c := New(zap.NewNop())
	defer c.Stop()

	if err := c.ArmPeriodicWake(time.Second); err != nil {
		t.Fatalf("ArmPeriodicWake failed: %v", err)
	}
	c.HaltNow()
	if !c.Halted() {
		t.Fatal("Expected controller to be halted")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	cause, press, err := c.Sleep(ctx, make(chan types.Press))
	if err != nil {
		t.Fatalf("Sleep failed: %v", err)
	}
	if cause != types.WakeTimerExpired {
		t.Errorf("Expected timer wake, got %v", cause)
	}
	if press != nil {
		t.Errorf("Expected no press, got %v", *press)
	}
	if c.Halted() {
		t.Error("Expected halted flag cleared after wake")
	}
	if c.Armed() != 0 {
		t.Errorf("Expected wake schedule cleared, got %v", c.Armed())
	}
	if c.WakeCause() != types.WakeTimerExpired {
		t.Errorf("Expected recorded cause timer, got %v", c.WakeCause())
	}
}

func TestSleep_ButtonWake(t *testing.T) {
	c := New(zap.NewNop())
	defer c.Stop()

	presses := make(chan types.Press, 1)
	presses <- types.LongPress
	c.HaltNow()

	cause, press, err := c.Sleep(context.Background(), presses)
	if err != nil {
		t.Fatalf("Sleep failed: %v", err)
	}
	if cause != types.WakeButtonEdge {
		t.Errorf("Expected button wake, got %v", cause)
	}
	if press == nil || *press != types.LongPress {
		t.Errorf("Expected long press to be returned, got %v", press)
	}
}

func TestSleep_ContextCancelled(t *testing.T) {
	c := New(zap.NewNop())
	defer c.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, _, err := c.Sleep(ctx, nil); err != context.Canceled {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
}

func TestSleep_ClosedButtonChannel(t *testing.T) {
	c := New(zap.NewNop())
	defer c.Stop()

	presses := make(chan types.Press)
	close(presses)

	if _, _, err := c.Sleep(context.Background(), presses); err == nil {
		t.Error("Expected error for closed button channel")
	}
}
