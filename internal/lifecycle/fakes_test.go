package lifecycle

import (
	"context"
	"sync"
	"time"
)

// fakeDriver is a minimal, in-memory NativeDriver for dispatcher tests: it
// never touches real hardware and lets tests fail a call by name.
type fakeDriver struct {
	mu sync.Mutex

	ifaceCounter int
	callbacks    map[string]InterfaceCallbacks
	up           map[string]bool

	failSetup     bool
	failStart     bool
	failTeardown  bool
	failForceDisc bool

	macSetSupported  bool
	failSetMAC       bool
	failResetMAC     bool
	countryCodeFails bool

	forceDisconnects []forceDisconnectCall
	removedInstances []string
	loggingStarted   []string
	loggingStopped   []string
}

// forceDisconnectCall records one ForceClientDisconnect invocation for
// scenario assertions (blocked-client / capacity-eviction / teardown).
type forceDisconnectCall struct {
	mac    string
	reason RejectReason
}

func newFakeDriver() *fakeDriver {
	return &fakeDriver{
		callbacks:       make(map[string]InterfaceCallbacks),
		up:              make(map[string]bool),
		macSetSupported: true,
	}
}

func (d *fakeDriver) SetupInterface(ctx context.Context, cb InterfaceCallbacks, requestor string, bands []Band, bridged bool) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.failSetup {
		return "", errStub("setup failed")
	}
	d.ifaceCounter++
	name := "wlan-test0"
	d.callbacks[name] = cb
	return name, nil
}

func (d *fakeDriver) StartSoftAp(ctx context.Context, ifaceName string, cfg EffectiveConfig, listener SoftApListener) error {
	d.mu.Lock()
	if d.failStart {
		d.mu.Unlock()
		return errStub("start failed")
	}
	cb := d.callbacks[ifaceName]
	d.mu.Unlock()

	// Real hardware reports the interface up asynchronously after the
	// radio actually starts; simulate that instead of the core seeing the
	// interface already up the instant Running.onEnter queries it, which
	// would make IfaceStatusChanged(true) look like a no-op transition.
	if cb.OnUp != nil {
		go func() {
			time.Sleep(2 * time.Millisecond)
			d.mu.Lock()
			d.up[ifaceName] = true
			d.mu.Unlock()
			cb.OnUp(ifaceName)
		}()
	}
	return nil
}

func (d *fakeDriver) TeardownInterface(ctx context.Context, ifaceName string) error {
	d.mu.Lock()
	d.up[ifaceName] = false
	d.mu.Unlock()
	if d.failTeardown {
		return errStub("teardown failed")
	}
	return nil
}

func (d *fakeDriver) IsInterfaceUp(ctx context.Context, ifaceName string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.up[ifaceName], nil
}

func (d *fakeDriver) ForceClientDisconnect(ctx context.Context, ifaceName, mac string, reason RejectReason) error {
	d.mu.Lock()
	d.forceDisconnects = append(d.forceDisconnects, forceDisconnectCall{mac: mac, reason: reason})
	d.mu.Unlock()
	if d.failForceDisc {
		return errStub("force disconnect failed")
	}
	return nil
}

func (d *fakeDriver) setupCalls() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.ifaceCounter
}

func (d *fakeDriver) forceDisconnectCalls() []forceDisconnectCall {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]forceDisconnectCall, len(d.forceDisconnects))
	copy(out, d.forceDisconnects)
	return out
}

func (d *fakeDriver) removedInstanceIDs() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]string, len(d.removedInstances))
	copy(out, d.removedInstances)
	return out
}

func (d *fakeDriver) ResetFactoryMAC(ctx context.Context, ifaceName string) error {
	if d.failResetMAC {
		return errStub("reset factory mac failed")
	}
	return nil
}

func (d *fakeDriver) SetMAC(ctx context.Context, ifaceName, mac string) error {
	if d.failSetMAC {
		return errStub("set mac failed")
	}
	return nil
}

func (d *fakeDriver) IsSetMACSupported(ifaceName string) bool { return d.macSetSupported }

func (d *fakeDriver) SetCountryCode(ctx context.Context, ifaceName, countryCode string) error {
	if d.countryCodeFails {
		return errStub("set country code failed")
	}
	return nil
}

func (d *fakeDriver) RemoveInstanceFromBridge(ctx context.Context, ifaceName, instanceID string) error {
	d.mu.Lock()
	d.removedInstances = append(d.removedInstances, instanceID)
	d.mu.Unlock()
	return nil
}

func (d *fakeDriver) StartLogging(ctx context.Context, ifaceName string) error {
	d.mu.Lock()
	d.loggingStarted = append(d.loggingStarted, ifaceName)
	d.mu.Unlock()
	return nil
}

func (d *fakeDriver) StopLogging(ctx context.Context, ifaceName string) error {
	d.mu.Lock()
	d.loggingStopped = append(d.loggingStopped, ifaceName)
	d.mu.Unlock()
	return nil
}

type errStub string

func (e errStub) Error() string { return string(e) }

// fakePlanner always succeeds and picks a fixed channel, unless told to fail.
type fakePlanner struct {
	fail    bool
	failErr error
}

func (p *fakePlanner) UpdateBandAndChannel(ctx context.Context, cfg *EffectiveConfig, cap Capability) error {
	if p.fail {
		if p.failErr != nil {
			return p.failErr
		}
		return &PlannerError{Kind: PlannerNoChannel}
	}
	cfg.Channel = 6
	cfg.CountryCode = "US"
	return nil
}

// fakeCapProvider supplies fixed timer defaults.
type fakeCapProvider struct {
	shutdownMS    int
	bridgedIdleMS int
	features      map[Feature]bool
}

func (p *fakeCapProvider) DefaultShutdownMS() int         { return p.shutdownMS }
func (p *fakeCapProvider) DefaultBridgedIdleMS() int      { return p.bridgedIdleMS }
func (p *fakeCapProvider) SupportsFeature(f Feature) bool { return p.features[f] }

// fakeConfigStore returns the configuration handed to it unchanged, unless
// bssid is requested to be randomized.
type fakeConfigStore struct {
	randomizedBSSID string
}

func (s *fakeConfigStore) DefaultConfig() ApConfiguration { return ApConfiguration{} }

func (s *fakeConfigStore) RandomizeBSSIDIfUnset(cfg ApConfiguration) ApConfiguration {
	if cfg.BSSID == "" && s.randomizedBSSID != "" {
		cfg.BSSID = s.randomizedBSSID
	}
	return cfg
}

// fakeObservers records every callback invocation for assertions.
type fakeObservers struct {
	mu            sync.Mutex
	states        []StateName
	reasons       []FailureReason
	started       int
	stopped       int
	startFailures []FailureReason
	blocked       []string
}

func (o *fakeObservers) OnStateChanged(id string, state StateName, reason FailureReason) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.states = append(o.states, state)
	o.reasons = append(o.reasons, reason)
}

func (o *fakeObservers) OnConnectedClientsOrInfoChanged(id string, clients map[string][]Client, info map[string]RadioInstanceInfo) {
}

func (o *fakeObservers) OnBlockedClientConnecting(id string, mac string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.blocked = append(o.blocked, mac)
}

func (o *fakeObservers) OnStarted(id string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.started++
}

func (o *fakeObservers) OnStopped(id string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.stopped++
}

func (o *fakeObservers) OnStartFailure(id string, reason FailureReason) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.startFailures = append(o.startFailures, reason)
}

func (o *fakeObservers) lastState() StateName {
	o.mu.Lock()
	defer o.mu.Unlock()
	if len(o.states) == 0 {
		return ""
	}
	return o.states[len(o.states)-1]
}

func (o *fakeObservers) stateSeq() []StateName {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]StateName, len(o.states))
	copy(out, o.states)
	return out
}
