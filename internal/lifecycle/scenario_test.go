package lifecycle

import (
	"strings"
	"testing"
	"time"
)

// dumpString is a convenience wrapper around Dump for scenario assertions.
func dumpString(t *testing.T, h *harness) string {
	t.Helper()
	var buf strings.Builder
	if err := h.l.Dump(&buf); err != nil {
		t.Fatalf("Dump() error = %v", err)
	}
	return buf.String()
}

// waitForDumpContains polls Dump() until it contains want or timeout elapses.
func waitForDumpContains(t *testing.T, h *harness, want string, timeout time.Duration) string {
	t.Helper()
	deadline := time.After(timeout)
	for {
		s := dumpString(t, h)
		if strings.Contains(s, want) {
			return s
		}
		select {
		case <-deadline:
			t.Fatalf("timed out waiting for dump to contain %q, last dump: %q", want, s)
		case <-time.After(2 * time.Millisecond):
		}
	}
}

// waitForCondition polls cond() until it returns true or timeout elapses.
func waitForCondition(t *testing.T, timeout time.Duration, msg string, cond func() bool) {
	t.Helper()
	deadline := time.After(timeout)
	for {
		if cond() {
			return
		}
		select {
		case <-deadline:
			t.Fatalf("timed out waiting for condition: %s", msg)
		case <-time.After(2 * time.Millisecond):
		}
	}
}

// Scenario 1 (§8.1): happy path. ShutdownTimer arms once Enabled with no
// clients, the first client join cancels it, and a clean Stop produces
// Disabling then Disabled.
func TestScenarioHappyPath(t *testing.T) {
	h := newHarness(t)
	cfg := basicConfig()
	cfg.AutoShutdownEnabled = true
	cfg.ShutdownTimeoutMS = 60_000

	h.l.Start("user", cfg, basicCap())
	waitForState(t, h.obs, StateEnabled, time.Second)

	waitForCondition(t, time.Second, "ShutdownTimer armed with no clients", h.l.timers.ShutdownArmed)

	c1 := Client{MAC: "aa:aa:aa:aa:aa:01", InstanceID: "wlan-test0"}
	h.l.NotifyClientAssocChanged(c1, true)
	waitForDumpContains(t, h, "clients=1", time.Second)

	waitForCondition(t, time.Second, "ShutdownTimer cancelled after a client joins", func() bool {
		return !h.l.timers.ShutdownArmed()
	})

	h.l.Stop()
	waitForState(t, h.obs, StateDisabled, time.Second)

	seq := h.obs.stateSeq()
	if len(seq) < 2 || seq[len(seq)-2] != StateDisabling || seq[len(seq)-1] != StateDisabled {
		t.Fatalf("final two states = %v, want [...Disabling Disabled]", seq)
	}
}

// Scenario 2 (§8.2): inactivity expiry. With no clients ever joining, the
// ShutdownTimer firing drives Disabling then Disabled on its own.
func TestScenarioInactivityExpiry(t *testing.T) {
	h := newHarness(t)
	cfg := basicConfig()
	cfg.AutoShutdownEnabled = true
	cfg.ShutdownTimeoutMS = 20

	h.l.Start("user", cfg, basicCap())
	waitForState(t, h.obs, StateEnabled, time.Second)

	waitForState(t, h.obs, StateDisabled, time.Second)

	seq := h.obs.stateSeq()
	foundDisabling := false
	for i, s := range seq {
		if s == StateDisabling && i+1 < len(seq) && seq[i+1] == StateDisabled {
			foundDisabling = true
		}
	}
	if !foundDisabling {
		t.Fatalf("state sequence = %v, want a Disabling immediately before the terminal Disabled", seq)
	}
}

// Scenario 3 (§8.3): bridged fallback. Requesting 2.4+5GHz when capability
// reports 5GHz unavailable collapses to single-band 2.4GHz before Start
// ever reaches the driver, and the run proceeds exactly like scenario 1.
func TestScenarioBridgedFallback(t *testing.T) {
	h := newHarness(t)
	cfg := basicConfig()
	cfg.Bands = []Band{Band2Point4GHz, Band5GHz}

	cap := basicCap()
	cap.AvailableBands = Band2Point4GHz

	h.l.Start("user", cfg, cap)
	waitForState(t, h.obs, StateEnabled, time.Second)

	s := waitForDumpContains(t, h, "bridged=false", time.Second)
	if !strings.Contains(s, "bridged=false") {
		t.Fatalf("dump = %q, want the fallback to collapse to single-band (bridged=false)", s)
	}
}

// Scenario 4 (§8.4): blocked client. A client whose MAC is in BlockedMACs
// is force-disconnected with reason BlockedByUser and never admitted; if
// the first disconnect attempt fails, the retry loop issues another one.
func TestScenarioBlockedClient(t *testing.T) {
	h := newHarness(t)
	cfg := basicConfig()
	blockedMAC := "bb:bb:bb:bb:bb:bb"
	cfg.BlockedMACs = []string{blockedMAC}

	h.l.Start("user", cfg, basicCap())
	waitForState(t, h.obs, StateEnabled, time.Second)

	h.driver.failForceDisc = true
	c := Client{MAC: blockedMAC, InstanceID: "wlan-test0"}
	h.l.NotifyClientAssocChanged(c, true)

	waitForDumpContains(t, h, "pending=1", time.Second)
	s := dumpString(t, h)
	if !strings.Contains(s, "clients=0") {
		t.Fatalf("dump = %q, want the blocked client to never be admitted", s)
	}

	calls := h.driver.forceDisconnectCalls()
	if len(calls) == 0 || calls[0].mac != blockedMAC || calls[0].reason != RejectBlockedByUser {
		t.Fatalf("forceDisconnectCalls = %+v, want a first call for %s with reason %s", calls, blockedMAC, RejectBlockedByUser)
	}

	// RETRY_DELAY_MS (§6) is a fixed 1s; wait past it for the self-scheduled
	// ForceDisconnectPending retry (§4.5) to issue a second attempt.
	waitForCondition(t, 2*time.Second, "a retried force-disconnect attempt", func() bool {
		return len(h.driver.forceDisconnectCalls()) >= 2
	})
}

// Scenario 5 (§8.5): capacity eviction. Lowering max_clients below the
// current registry size evicts the oldest admitted client first.
func TestScenarioCapacityEviction(t *testing.T) {
	h := newHarness(t)
	cfg := basicConfig()

	h.l.Start("user", cfg, basicCap())
	waitForState(t, h.obs, StateEnabled, time.Second)

	c1 := Client{MAC: "aa:aa:aa:aa:aa:01", InstanceID: "wlan-test0"}
	c2 := Client{MAC: "aa:aa:aa:aa:aa:02", InstanceID: "wlan-test0"}
	h.l.NotifyClientAssocChanged(c1, true)
	waitForDumpContains(t, h, "clients=1", time.Second)
	h.l.NotifyClientAssocChanged(c2, true)
	waitForDumpContains(t, h, "clients=2", time.Second)

	cfg.MaxClients = 1
	h.l.UpdateConfiguration(cfg)
	waitForDumpContains(t, h, "clients=1", time.Second)

	calls := h.driver.forceDisconnectCalls()
	found := false
	for _, call := range calls {
		if call.mac == c1.MAC && call.reason == RejectNoMoreStas {
			found = true
		}
	}
	if !found {
		t.Fatalf("forceDisconnectCalls = %+v, want the oldest client %s evicted with reason %s", calls, c1.MAC, RejectNoMoreStas)
	}
}

// Scenario 6 (§8.6): bridged idle shutdown. With two live instances and
// zero clients, BridgedIdleTimer firing drops the higher-frequency idle
// instance from the bridge.
func TestScenarioBridgedIdleShutdown(t *testing.T) {
	h := newHarness(t)
	cfg := basicConfig()
	cfg.Bands = []Band{Band2Point4GHz, Band5GHz}
	cfg.BridgedOpportunisticShutdownEnabled = true

	cap := basicCap()
	cap.AvailableBands = Band2Point4GHz | Band5GHz

	h.l.Start("user", cfg, cap)
	waitForState(t, h.obs, StateEnabled, time.Second)

	h.l.NotifyApInfoChanged(RadioInstanceInfo{InstanceID: "i1", Frequency: 2412})
	h.l.NotifyApInfoChanged(RadioInstanceInfo{InstanceID: "i2", Frequency: 5180})

	waitForDumpContains(t, h, "instances=i1,i2", time.Second)
	waitForCondition(t, time.Second, "BridgedIdleTimer armed with two idle instances", h.l.timers.BridgedIdleArmed)

	waitForCondition(t, 2*time.Second, "the higher-frequency instance dropped from the bridge", func() bool {
		for _, id := range h.driver.removedInstanceIDs() {
			if id == "i2" {
				return true
			}
		}
		return false
	})

	waitForDumpContains(t, h, "instances=i1", time.Second)
}
