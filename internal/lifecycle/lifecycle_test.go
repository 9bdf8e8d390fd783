package lifecycle

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/kestrel-systems/softap-lifecycle/internal/logger"
)

type harness struct {
	l       *SoftApLifecycle
	driver  *fakeDriver
	planner *fakePlanner
	capProv *fakeCapProvider
	store   *fakeConfigStore
	obs     *fakeObservers
	cancel  context.CancelFunc
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	h := &harness{
		driver:  newFakeDriver(),
		planner: &fakePlanner{},
		capProv: &fakeCapProvider{shutdownMS: 50, bridgedIdleMS: 50},
		store:   &fakeConfigStore{},
		obs:     &fakeObservers{},
		cancel:  cancel,
	}
	h.l = New(ctx, Config{
		ID:          "ap0",
		Role:        RoleLocalOnly,
		Driver:      h.driver,
		Planner:     h.planner,
		CapProvider: h.capProv,
		ConfigStore: h.store,
		Observers:   h.obs,
		Logger:      logger.NewComponentLogger("test"),
	})
	t.Cleanup(func() {
		cancel()
		<-h.l.Done()
	})
	return h
}

func waitForState(t *testing.T, obs *fakeObservers, want StateName, timeout time.Duration) {
	t.Helper()
	deadline := time.After(timeout)
	for {
		if obs.lastState() == want {
			return
		}
		select {
		case <-deadline:
			t.Fatalf("timed out waiting for state %s, got sequence %v", want, obs.stateSeq())
		case <-time.After(2 * time.Millisecond):
		}
	}
}

func basicConfig() ApConfiguration {
	return ApConfiguration{SSID: "test-ap", Bands: []Band{Band2Point4GHz}}
}

func basicCap() Capability {
	return Capability{MaxSupportedClients: 4, ClientForceDisconnect: true}
}

func TestLifecycleCleanStartAndStop(t *testing.T) {
	h := newHarness(t)

	h.l.Start("user", basicConfig(), basicCap())
	waitForState(t, h.obs, StateEnabled, time.Second)

	h.l.Stop()
	waitForState(t, h.obs, StateDisabled, time.Second)

	seq := h.obs.stateSeq()
	if len(seq) < 4 || seq[0] != StateEnabling || seq[1] != StateEnabled || seq[2] != StateDisabling || seq[3] != StateDisabled {
		t.Fatalf("unexpected state sequence: %v, want Enabling, Enabled, Disabling, Disabled", seq)
	}
}

func TestLifecyclePlannerFailureGoesToFailedWithoutDisabled(t *testing.T) {
	h := newHarness(t)
	h.planner.fail = true

	h.l.Start("user", basicConfig(), basicCap())
	waitForState(t, h.obs, StateFailed, time.Second)

	time.Sleep(20 * time.Millisecond)
	seq := h.obs.stateSeq()
	for _, s := range seq {
		if s == StateDisabled {
			t.Fatalf("unexpected Disabled broadcast after a start failure: %v", seq)
		}
	}
	if len(h.obs.startFailures) != 1 || h.obs.startFailures[0] != FailureNoChannel {
		t.Fatalf("OnStartFailure = %v, want one call with FailureNoChannel", h.obs.startFailures)
	}
}

func TestLifecycleShutdownTimerFiresWithNoClients(t *testing.T) {
	h := newHarness(t)
	cfg := basicConfig()
	cfg.AutoShutdownEnabled = true
	cfg.ShutdownTimeoutMS = 20

	h.l.Start("user", cfg, basicCap())
	waitForState(t, h.obs, StateEnabled, time.Second)

	waitForState(t, h.obs, StateDisabled, time.Second)
	if h.obs.stopped == 0 {
		t.Fatal("expected OnStopped to fire after the shutdown timer")
	}
}

func TestLifecycleAdmitsAndTracksClient(t *testing.T) {
	h := newHarness(t)
	h.l.Start("user", basicConfig(), basicCap())
	waitForState(t, h.obs, StateEnabled, time.Second)

	c := Client{MAC: "aa:aa:aa:aa:aa:aa", InstanceID: "wlan-test0"}
	h.l.NotifyClientAssocChanged(c, true)

	time.Sleep(20 * time.Millisecond)

	var buf strings.Builder
	if err := h.l.Dump(&buf); err != nil {
		t.Fatalf("Dump() error = %v", err)
	}
	if !strings.Contains(buf.String(), "clients=1") {
		t.Fatalf("Dump() = %q, want it to report one client", buf.String())
	}
}

func TestLifecycleRejectsBlockedClient(t *testing.T) {
	h := newHarness(t)
	cfg := basicConfig()
	cfg.BlockedMACs = []string{"bb:bb:bb:bb:bb:bb"}

	h.l.Start("user", cfg, basicCap())
	waitForState(t, h.obs, StateEnabled, time.Second)

	c := Client{MAC: "bb:bb:bb:bb:bb:bb", InstanceID: "wlan-test0"}
	h.l.NotifyClientAssocChanged(c, true)

	time.Sleep(20 * time.Millisecond)

	var buf strings.Builder
	if err := h.l.Dump(&buf); err != nil {
		t.Fatalf("Dump() error = %v", err)
	}
	if !strings.Contains(buf.String(), "clients=0") {
		t.Fatalf("Dump() = %q, want the blocked client to never be admitted", buf.String())
	}
}

func TestLifecycleFailureNotificationTransitionsToFailed(t *testing.T) {
	h := newHarness(t)
	h.l.Start("user", basicConfig(), basicCap())
	waitForState(t, h.obs, StateEnabled, time.Second)

	h.l.NotifyFailure()
	// Failed and Disabling are broadcast back to back from the same
	// handler, so wait for Failed anywhere in the sequence instead of as
	// the latest state.
	waitForCondition(t, time.Second, "a Failed broadcast", func() bool {
		for _, s := range h.obs.stateSeq() {
			if s == StateFailed {
				return true
			}
		}
		return false
	})

	select {
	case <-h.l.Done():
	case <-time.After(time.Second):
		t.Fatal("dispatcher did not exit after a fatal driver failure")
	}
}

// §4.1.2: Start while Running is ignored rather than falling through to
// Idle's Start handling and re-acquiring an interface.
func TestLifecycleStartWhileRunningIgnored(t *testing.T) {
	h := newHarness(t)
	h.l.Start("user", basicConfig(), basicCap())
	waitForState(t, h.obs, StateEnabled, time.Second)

	h.l.Start("user", basicConfig(), basicCap())
	time.Sleep(20 * time.Millisecond)

	if got := h.driver.setupCalls(); got != 1 {
		t.Fatalf("SetupInterface calls = %d, want 1 (second Start ignored)", got)
	}
}

// §3/§4.1: the terminal quit disposes the lifecycle; after a clean Stop
// the dispatcher exits on its own, without the surrounding context being
// cancelled.
func TestLifecycleStopDisposesLifecycle(t *testing.T) {
	h := newHarness(t)
	h.l.Start("user", basicConfig(), basicCap())
	waitForState(t, h.obs, StateEnabled, time.Second)

	h.l.Stop()
	select {
	case <-h.l.Done():
	case <-time.After(time.Second):
		t.Fatal("dispatcher did not exit after the terminal quit")
	}
}

func TestLifecycleRoleIsImmutable(t *testing.T) {
	h := newHarness(t)
	if h.l.Role() != RoleLocalOnly {
		t.Fatalf("Role() = %v, want %v", h.l.Role(), RoleLocalOnly)
	}
	h.l.Start("user", basicConfig(), basicCap())
	waitForState(t, h.obs, StateEnabled, time.Second)
	if h.l.Role() != RoleLocalOnly {
		t.Fatalf("Role() changed after Start: %v", h.l.Role())
	}
}

// §4.1.1's literal ordering: an interface-acquisition failure takes the
// same failure path as a missing SSID — no Enabling broadcast precedes it.
func TestLifecycleInterfaceAcquisitionFailureNeverPublishesEnabling(t *testing.T) {
	h := newHarness(t)
	h.driver.failSetup = true

	h.l.Start("user", basicConfig(), basicCap())
	waitForState(t, h.obs, StateFailed, time.Second)

	for _, s := range h.obs.stateSeq() {
		if s == StateEnabling {
			t.Fatalf("unexpected Enabling broadcast before an interface-acquisition failure: %v", h.obs.stateSeq())
		}
	}
	if len(h.obs.startFailures) != 1 || h.obs.startFailures[0] != FailureGeneral {
		t.Fatalf("OnStartFailure = %v, want one call with FailureGeneral", h.obs.startFailures)
	}
}

func TestLifecycleInvalidConfigurationNeverPublishesEnabling(t *testing.T) {
	h := newHarness(t)
	cfg := basicConfig()
	cfg.SSID = ""

	h.l.Start("user", cfg, basicCap())
	waitForState(t, h.obs, StateFailed, time.Second)

	for _, s := range h.obs.stateSeq() {
		if s == StateEnabling {
			t.Fatalf("unexpected Enabling broadcast before a config-validation failure: %v", h.obs.stateSeq())
		}
	}
}

// §4.1.2: UpdateCapability is tethered-mode only; a local-only AP must
// ignore it entirely, including its re-evaluate-admission side effect.
func TestLifecycleUpdateCapabilityIgnoredForLocalOnlyRole(t *testing.T) {
	h := newHarness(t)
	h.l.Start("user", basicConfig(), basicCap())
	waitForState(t, h.obs, StateEnabled, time.Second)

	c1 := Client{MAC: "aa:aa:aa:aa:aa:01", InstanceID: "wlan-test0"}
	c2 := Client{MAC: "aa:aa:aa:aa:aa:02", InstanceID: "wlan-test0"}
	h.l.NotifyClientAssocChanged(c1, true)
	h.l.NotifyClientAssocChanged(c2, true)
	waitForDumpContains(t, h, "clients=2", time.Second)

	// A cap of 1 would evict one of the two clients if the update applied.
	h.l.UpdateCapability(Capability{MaxSupportedClients: 1, ClientForceDisconnect: true})
	time.Sleep(20 * time.Millisecond)

	if s := dumpString(t, h); !strings.Contains(s, "clients=2") {
		t.Fatalf("dump = %q, want UpdateCapability ignored for a local-only role", s)
	}
}

// §4.1.3 step (1): a custom BSSID the driver doesn't support fails the
// start as UnsupportedConfiguration, not General.
func TestLifecycleUnsupportedBSSIDFailsStart(t *testing.T) {
	h := newHarness(t)
	h.driver.macSetSupported = false
	cfg := basicConfig()
	cfg.BSSID = "aa:bb:cc:dd:ee:ff"

	h.l.Start("user", cfg, basicCap())
	waitForState(t, h.obs, StateFailed, time.Second)

	if len(h.obs.startFailures) != 1 || h.obs.startFailures[0] != FailureUnsupportedConfiguration {
		t.Fatalf("OnStartFailure = %v, want one call with FailureUnsupportedConfiguration", h.obs.startFailures)
	}
}

// §6: interface_name()/requestor()/current_state_name() are synchronous
// pure accessors, readable without a Dump round-trip.
func TestLifecyclePureAccessorsTrackDispatcherState(t *testing.T) {
	h := newHarness(t)
	if h.l.CurrentStateName() != StateDisabled {
		t.Fatalf("CurrentStateName() = %v, want Disabled before Start", h.l.CurrentStateName())
	}

	h.l.Start("requestor-1", basicConfig(), basicCap())
	waitForState(t, h.obs, StateEnabled, time.Second)

	waitForCondition(t, time.Second, "CurrentStateName() to report Enabled", func() bool {
		return h.l.CurrentStateName() == StateEnabled
	})
	if h.l.Requestor() != "requestor-1" {
		t.Fatalf("Requestor() = %q, want %q", h.l.Requestor(), "requestor-1")
	}
	if h.l.InterfaceName() == "" {
		t.Fatal("InterfaceName() = \"\", want a non-empty interface name while Running")
	}
}
