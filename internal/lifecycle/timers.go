package lifecycle

import (
	"sync"
	"time"
)

// oneShotTimer is a cancellable, wake-capable one-shot alarm whose fire
// callback posts an event onto the owning lifecycle's mailbox rather than
// running any logic inline (§5, §9: "WakeupMessage alarm primitive" ->
// "a pair of cancellable one-shot timer handles bound to the mailbox").
type oneShotTimer struct {
	mu     sync.Mutex
	timer  *time.Timer
	active bool
}

// Schedule arms the timer, cancelling any previous arming first.
func (t *oneShotTimer) Schedule(d time.Duration, fire func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stopLocked()
	t.active = true
	t.timer = time.AfterFunc(d, func() {
		t.mu.Lock()
		wasActive := t.active
		t.active = false
		t.mu.Unlock()
		if wasActive {
			fire()
		}
	})
}

// Cancel disarms the timer. Idempotent.
func (t *oneShotTimer) Cancel() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stopLocked()
}

func (t *oneShotTimer) stopLocked() {
	if t.timer != nil {
		t.timer.Stop()
	}
	t.active = false
}

// Active reports whether the timer is currently armed.
func (t *oneShotTimer) Active() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.active
}

// TimerSet owns the two inactivity timers of §4.3.
type TimerSet struct {
	shutdown    oneShotTimer
	bridgedIdle oneShotTimer

	// mu guards bridgedIdleActive: the latch is cleared from the fire
	// closure on the timer's own goroutine, while the dispatcher arms,
	// cancels, and inspects it.
	mu                sync.Mutex
	bridgedIdleActive bool // idempotent-arming latch, per §4.3
}

// NewTimerSet returns an unarmed TimerSet.
func NewTimerSet() *TimerSet {
	return &TimerSet{}
}

// ScheduleShutdown arms ShutdownTimer for delayMS milliseconds. Callers are
// responsible for only calling this when I4's armed-iff condition holds.
func (t *TimerSet) ScheduleShutdown(delayMS int, onFire func()) {
	t.shutdown.Schedule(time.Duration(delayMS)*time.Millisecond, onFire)
}

// CancelShutdown disarms ShutdownTimer.
func (t *TimerSet) CancelShutdown() {
	t.shutdown.Cancel()
}

// ShutdownArmed reports whether ShutdownTimer is currently armed.
func (t *TimerSet) ShutdownArmed() bool {
	return t.shutdown.Active()
}

// ScheduleBridgedIdle arms BridgedIdleTimer, but only if it isn't already
// armed (§4.3's bridged_idle_active latch makes (re)scheduling idempotent).
func (t *TimerSet) ScheduleBridgedIdle(delayMS int, onFire func()) {
	t.mu.Lock()
	if t.bridgedIdleActive {
		t.mu.Unlock()
		return
	}
	t.bridgedIdleActive = true
	t.mu.Unlock()

	t.bridgedIdle.Schedule(time.Duration(delayMS)*time.Millisecond, func() {
		t.mu.Lock()
		t.bridgedIdleActive = false
		t.mu.Unlock()
		onFire()
	})
}

// CancelBridgedIdle disarms BridgedIdleTimer and clears the latch. The
// underlying timer is stopped first, so a late fire that already lost the
// oneShotTimer active check can never run the latch-clearing closure after
// the latch has been re-armed.
func (t *TimerSet) CancelBridgedIdle() {
	t.bridgedIdle.Cancel()
	t.mu.Lock()
	t.bridgedIdleActive = false
	t.mu.Unlock()
}

// BridgedIdleArmed reports whether BridgedIdleTimer is currently armed.
func (t *TimerSet) BridgedIdleArmed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.bridgedIdleActive
}

// CancelAll disarms both timers (Running exit, §5: "Exits from Running
// always cancel both timers").
func (t *TimerSet) CancelAll() {
	t.CancelShutdown()
	t.CancelBridgedIdle()
}
