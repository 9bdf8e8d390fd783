package lifecycle

import (
	"fmt"
	"time"
)

// retryDelayMS is RETRY_DELAY_MS (§6): the fixed delay between
// PendingDisconnectQueue retries. Unlike collaborator-I/O retries
// (internal/errors.RetryWithBackoff), the spec calls for a constant
// interval here, not exponential backoff.
const retryDelayMS = 1000

// startAttemptResult carries the outcome of startSoftAp back to the
// calling state handler, which decides the transition.
type startAttemptResult struct {
	ok     bool
	reason FailureReason
}

// prepareStartConfig validates the requested configuration and resolves
// it against the current capability: BSSID randomization (ConfigStore)
// and the bridged-to-single-band fallback (§4.1.1). It must run before
// interface acquisition, which in turn must run before Enabling is
// published — see idleState.handle.
func (l *SoftApLifecycle) prepareStartConfig(cfg ApConfiguration, cap Capability) (ApConfiguration, error) {
	if err := cfg.Validate(); err != nil {
		l.log.Warn("rejected start configuration for %s: %v", l.id, err)
		return ApConfiguration{}, err
	}

	l.capability = cap
	l.ifaceDestroyed = false

	resolved := l.configStore.RandomizeBSSIDIfUnset(cfg)
	l.bssidRandomized = cfg.BSSID == "" && resolved.BSSID != ""
	resolved.Bands = resolveBands(resolved.Bands, cap)
	l.config = resolved
	return resolved, nil
}

// acquireInterface implements §4.1.1's "acquire interface from driver"
// step. An empty name or driver error take the same failure path as the
// SSID-missing case: no Enabling broadcast precedes it.
func (l *SoftApLifecycle) acquireInterface(resolved ApConfiguration) error {
	callbacks := InterfaceCallbacks{
		OnDestroyed: func(string) { l.NotifyIfaceDestroyed() },
		OnUp:        func(string) { l.NotifyIfaceStatusChanged(true) },
		OnDown:      func(string) { l.NotifyIfaceStatusChanged(false) },
	}

	ifaceName, err := l.driver.SetupInterface(l.ctx, callbacks, l.requestor, resolved.Bands, resolved.IsBridgedMode())
	if err != nil {
		return err
	}
	if ifaceName == "" {
		return fmt.Errorf("driver returned an empty interface name")
	}
	l.ifaceName = ifaceName
	return nil
}

// startSoftAp implements the six-step §4.1.3 sub-procedure once the
// interface has already been acquired by acquireInterface: resolve the
// channel and country code, program BSSID and country code, validate
// configured features against capability, and start the radio. It
// always runs from Idle's Start handling (idleState.handle), synchronously, on the
// dispatcher goroutine — nothing else touches l.driver/l.planner
// concurrently.
//
// The country code is a ChannelPlanner output in this system (there is
// no other source for it in ApConfiguration), so step (3) necessarily
// runs before steps (1)/(2) can be evaluated against a concrete country;
// the fail-fast semantics those steps describe are preserved, just
// computed in planner-first order.
func (l *SoftApLifecycle) startSoftAp(resolved ApConfiguration) startAttemptResult {
	eff := EffectiveConfig{
		SSID:     resolved.SSID,
		BSSID:    resolved.BSSID,
		Bands:    resolved.Bands,
		Hidden:   resolved.Hidden,
		Tethered: l.role == RoleTethered,
	}

	if err := l.planner.UpdateBandAndChannel(l.ctx, &eff, l.capability); err != nil {
		l.log.Warn("channel planning failed for %s: %v", l.id, err)
		return startAttemptResult{ok: false, reason: plannerFailureReason(err)}
	}

	is5GHz := unionBands(resolved.Bands)&Band5GHz != 0

	// (1) BSSID: unset ⇒ reset to factory, soft-fail (log only). Set ⇒
	// use the driver setter if supported, else UnsupportedConfiguration
	// unless the BSSID was only set because it was randomized for us.
	if resolved.BSSID == "" {
		if err := l.driver.ResetFactoryMAC(l.ctx, l.ifaceName); err != nil {
			l.log.Warn("reset factory MAC failed for %s: %v", l.ifaceName, err)
		}
	} else if l.driver.IsSetMACSupported(l.ifaceName) {
		if err := l.driver.SetMAC(l.ctx, l.ifaceName, resolved.BSSID); err != nil {
			l.log.Warn("set MAC failed for %s: %v", l.ifaceName, err)
		}
	} else if !l.bssidRandomized {
		l.log.Warn("custom BSSID requested for %s but driver does not support it", l.ifaceName)
		return startAttemptResult{ok: false, reason: FailureUnsupportedConfiguration}
	} else {
		l.log.Debug("driver does not support custom MAC; keeping factory MAC for randomized bssid on %s", l.ifaceName)
	}

	// (2) Country code: mandatory for 5 GHz.
	if eff.CountryCode == "" {
		if is5GHz {
			l.log.Warn("no country code resolved for 5GHz ap %s", l.id)
			return startAttemptResult{ok: false, reason: FailureGeneral}
		}
	} else if err := l.driver.SetCountryCode(l.ctx, l.ifaceName, eff.CountryCode); err != nil {
		l.log.Warn("set country code failed for %s: %v", l.ifaceName, err)
		if is5GHz {
			return startAttemptResult{ok: false, reason: FailureGeneral}
		}
	}

	// (4) Validate configured features are supported by capability. A
	// custom BSSID is the one field ApConfiguration exposes that maps
	// directly onto a Capability feature flag.
	if resolved.BSSID != "" && !l.bssidRandomized && !l.capability.Supports(FeatureMACAddressCustomization) {
		l.log.Warn("custom BSSID requested for %s but capability lacks mac_address_customization", l.id)
		return startAttemptResult{ok: false, reason: FailureUnsupportedConfiguration}
	}

	listener := SoftApListener{
		OnFailure:                 func() { l.NotifyFailure() },
		OnInfoChanged:             func(info RadioInstanceInfo) { l.NotifyApInfoChanged(info) },
		OnConnectedClientsChanged: func(c Client, connected bool) { l.NotifyClientAssocChanged(c, connected) },
	}

	// (5) Start the radio.
	if err := l.driver.StartSoftAp(l.ctx, l.ifaceName, eff, listener); err != nil {
		l.log.Warn("start softap failed for %s: %v", l.id, err)
		return startAttemptResult{ok: false, reason: FailureGeneral}
	}

	// (6) Start driver logging and stamp the start timestamp.
	if err := l.driver.StartLogging(l.ctx, l.ifaceName); err != nil {
		l.log.Warn("start logging failed for %s: %v", l.ifaceName, err)
	}
	l.startTimestamp = time.Now()

	if l.coex != nil {
		l.coexToken = l.coex.Register(coexListenerFunc(func() {
			l.log.Debug("ap %s coexistence advisor reported unsafe concurrent operation", l.id)
		}))
	}

	return startAttemptResult{ok: true}
}

// stopSoftAp implements the generic Running-exit teardown of §4.1.2: force
// every registered client off, tear the interface down unless the driver
// already destroyed it, and unregister from the coexistence advisor.
func (l *SoftApLifecycle) stopSoftAp() {
	for _, c := range l.registry.OrderedClients() {
		if err := l.driver.ForceClientDisconnect(l.ctx, c.InstanceID, c.MAC, rejectAdministrative); err != nil {
			l.log.Warn("force disconnect of %s failed during teardown: %v", c, err)
		}
	}

	if l.ifaceName != "" {
		if err := l.driver.StopLogging(l.ctx, l.ifaceName); err != nil {
			l.log.Warn("stop logging for %s failed: %v", l.ifaceName, err)
		}
	}

	if !l.ifaceDestroyed && l.ifaceName != "" {
		if err := l.driver.TeardownInterface(l.ctx, l.ifaceName); err != nil {
			l.log.Warn("teardown of interface %s failed: %v", l.ifaceName, err)
		}
	}
	l.ifaceUp = false

	if l.coex != nil {
		l.coex.Unregister(l.coexToken)
	}
}

// scheduleRetry arms the pending-disconnect retry timer if the queue is
// non-empty. Called after every PendingDisconnectQueue.Add and after each
// retry pass that leaves entries behind.
func (l *SoftApLifecycle) scheduleRetry() {
	if l.pending.Len() == 0 {
		return
	}
	l.retryTimer.Schedule(retryDelayMS*time.Millisecond, func() {
		l.post(event{kind: evForceDisconnectPending})
	})
}

// plannerFailureReason maps a ChannelPlanner error to the FailureReason
// vocabulary, defaulting to General for anything that isn't a PlannerError.
func plannerFailureReason(err error) FailureReason {
	pe, ok := err.(*PlannerError)
	if !ok {
		return FailureGeneral
	}
	switch pe.Kind {
	case PlannerNoChannel:
		return FailureNoChannel
	case PlannerUnsupportedConfiguration:
		return FailureUnsupportedConfiguration
	default:
		return FailureGeneral
	}
}

// reconcileTimers re-derives both inactivity timers' armed state from the
// current registry/config, per I4 and §4.3. Called after every registry or
// configuration mutation while Running.
func (l *SoftApLifecycle) reconcileTimers() {
	if l.registry.TotalCount() == 0 {
		ms := l.config.EffectiveShutdownTimeoutMS(l.capProvider.DefaultShutdownMS())
		switch {
		case ms <= 0:
			l.timers.CancelShutdown()
		case !l.timers.ShutdownArmed():
			// Already-armed stays armed with its original deadline; events
			// that don't change the registry/config (e.g. ApInfoChanged)
			// must not restart the countdown. The UpdateConfig path cancels
			// both timers first when a timer-affecting field changed, so a
			// new delay still takes effect there.
			l.timers.ScheduleShutdown(ms, func() { l.post(event{kind: evNoClientsTimeout}) })
		}
	} else {
		l.timers.CancelShutdown()
	}

	// I5: BridgedIdleTimer additionally requires more than one live
	// instance (|RadioInstanceInfo|>1), not just a bridged-mode config —
	// a bridged config that has fallen back to one instance (§4.1.1) or
	// hasn't yet received a second ApInfoChanged must not arm this timer.
	if l.config.BridgedOpportunisticShutdownEnabled && l.config.IsBridgedMode() && len(l.radioInfo) > 1 {
		if len(l.registry.IdleInstances()) > 0 {
			l.timers.ScheduleBridgedIdle(l.capProvider.DefaultBridgedIdleMS(), func() {
				l.post(event{kind: evNoClientsTimeoutOneInstance})
			})
		} else {
			l.timers.CancelBridgedIdle()
		}
	} else {
		l.timers.CancelBridgedIdle()
	}
}

// rebroadcastEffectiveTimeout implements the UpdateConfig "re-emit the
// ApInfoChanged broadcast for every known instance with the new effective
// timeout value" clause of §4.1.2: update every stored RadioInstanceInfo's
// annotated timeout and publish once.
func (l *SoftApLifecycle) rebroadcastEffectiveTimeout() {
	eff := l.config.EffectiveShutdownTimeoutMS(l.capProvider.DefaultShutdownMS())
	for id, info := range l.radioInfo {
		info.AutoShutdownTimeoutMS = eff
		l.radioInfo[id] = info
	}
	l.publishClientsAndInfo()
}

// highestFrequencyIdleInstance implements §4.1.2's NoClientsTimeoutOneInstance
// selection rule: "choose the single idle instance with the highest
// frequency". Returns ok=false if no instance is currently idle.
func (l *SoftApLifecycle) highestFrequencyIdleInstance() (id string, ok bool) {
	best := -1
	for _, instanceID := range l.registry.IdleInstances() {
		info, known := l.radioInfo[instanceID]
		if !known {
			continue
		}
		if info.Frequency > best {
			best = info.Frequency
			id = instanceID
			ok = true
		}
	}
	return id, ok
}

// coexListenerFunc adapts a plain func to CoexListener.
type coexListenerFunc func()

func (f coexListenerFunc) OnCoexUnsafe() { f() }
