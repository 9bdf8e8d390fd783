package lifecycle

// runningState is the Running super-state from §4.1: an interface is up
// and serving (or attempting to serve) clients. Idle is its parent state;
// dispatch falls through to idleState.handle for anything runningState
// returns unhandled.
type runningState struct{}

func (s *runningState) name() StateName { return StateEnabled }

// onEnter implements §4.1.2's Running entry actions. It deliberately does
// NOT publish Enabled: per the event table, Enabled is only published when
// IfaceStatusChanged reports a false->true transition. Entering Running
// only means a start attempt succeeded and the machine is now waiting to
// observe the interface actually come up.
func (s *runningState) onEnter(l *SoftApLifecycle) {
	up, err := l.driver.IsInterfaceUp(l.ctx, l.ifaceName)
	if err != nil {
		l.log.Warn("querying up-state of %s failed: %v", l.ifaceName, err)
	}
	l.ifaceUp = up
	l.registry.Clear()
	l.pending.Clear()
	l.maxClientsMetricReported = false
	l.reconcileTimers()
}

// onExit runs the full generic teardown exactly once regardless of which
// event triggered the exit (§4.1.2). The terminal Disabled broadcast is
// skipped when the exit was preceded by a Failed broadcast: Failed is
// itself the terminal signal for that run.
func (s *runningState) onExit(l *SoftApLifecycle) {
	l.stopSoftAp()

	hadClients := l.registry.TotalCount() > 0
	hadInfo := len(l.radioInfo) > 0
	l.registry.Clear()
	l.pending.Clear()
	l.retryTimer.Cancel()
	l.timers.CancelAll()

	for id := range l.radioInfo {
		delete(l.radioInfo, id)
	}
	if hadClients || hadInfo {
		l.publishClientsAndInfo()
	}

	clean := l.failureReason == FailureNone
	if clean {
		l.publishState(StateDisabled, FailureNone)
		if l.observers != nil {
			l.observers.OnStopped(l.id)
		}
	}
	l.failureReason = FailureNone
	l.ifaceName = ""
	l.ifaceUp = false
}

func (s *runningState) handle(l *SoftApLifecycle, ev event) (bool, transition) {
	switch ev.kind {
	case evStart:
		l.log.Debug("ignoring Start for %s: already running", l.id)
		return true, stay

	case evStop:
		l.failureReason = FailureNone
		l.publishState(StateDisabling, FailureNone)
		return true, quitMachine

	case evIfaceDestroyed:
		l.ifaceDestroyed = true
		l.failureReason = FailureNone
		l.publishState(StateDisabling, FailureNone)
		return true, quitMachine

	case evIfaceStatusChanged:
		return s.handleIfaceStatusChanged(l, ev)

	case evIfaceDown:
		l.failureReason = FailureGeneral
		l.publishState(StateFailed, FailureGeneral)
		l.publishState(StateDisabling, FailureGeneral)
		return true, quitMachine

	case evFailure:
		l.failureReason = FailureGeneral
		l.publishState(StateFailed, FailureGeneral)
		l.publishState(StateDisabling, FailureGeneral)
		return true, quitMachine

	case evApInfoChanged:
		s.handleApInfoChanged(l, ev)
		return true, stay

	case evClientAssocChanged:
		s.handleClientAssoc(l, ev)
		return true, stay

	case evUpdateCapability:
		// §4.1.2: "(tethered mode only)" — reject silently for local-only APs.
		if l.role != RoleTethered {
			l.log.Debug("ignoring capability update for %s: role %s is not tethered", l.id, l.role)
			return true, stay
		}
		l.capability = ev.capability
		l.log.Debug("ap %s capability updated: max_clients=%d force_disconnect=%v", l.id, l.capability.MaxSupportedClients, l.capability.ClientForceDisconnect)
		s.evictUnadmitted(l)
		return true, stay

	case evUpdateConfig:
		s.handleUpdateConfig(l, ev)
		return true, stay

	case evForceDisconnectPending:
		s.retryPending(l)
		return true, stay

	case evNoClientsTimeout:
		if !l.config.AutoShutdownEnabled || l.registry.TotalCount() > 0 {
			l.log.Error("invariant violation: NoClientsTimeout fired for %s with auto_shutdown_enabled=%v clients=%d", l.id, l.config.AutoShutdownEnabled, l.registry.TotalCount())
			return true, stay
		}
		if l.notifier != nil {
			l.notifier.ShowShutdownTimeoutExpired(l.id)
		}
		l.failureReason = FailureNone
		l.publishState(StateDisabling, FailureNone)
		return true, quitMachine

	case evNoClientsTimeoutOneInstance:
		if !l.config.BridgedOpportunisticShutdownEnabled {
			l.log.Error("invariant violation: NoClientsTimeoutOneInstance fired for %s with opportunistic shutdown disabled", l.id)
			return true, stay
		}
		s.dropIdleInstances(l)
		return true, stay

	default:
		return false, stay
	}
}

// handleIfaceStatusChanged implements §4.1.2's IfaceStatusChanged entry:
// unchanged is a no-op; false->true publishes Enabled and resets to a
// fresh client/info view; true->false is marshalled onward as IfaceDown
// rather than handled inline, matching the event table's "enqueue
// IfaceDown" wording.
func (s *runningState) handleIfaceStatusChanged(l *SoftApLifecycle, ev event) (bool, transition) {
	if ev.up == l.ifaceUp {
		return true, stay
	}
	l.ifaceUp = ev.up

	if !ev.up {
		l.post(event{kind: evIfaceDown})
		return true, stay
	}

	l.publishState(StateEnabled, FailureNone)
	if l.observers != nil {
		l.observers.OnStarted(l.id)
	}
	l.log.Info("ap %s came up successfully", l.id)

	l.registry.Clear()
	for id := range l.radioInfo {
		delete(l.radioInfo, id)
	}
	l.publishClientsAndInfo()
	l.reconcileTimers()
	return true, stay
}

// handleApInfoChanged implements §4.1.2's ApInfoChanged transition,
// including the bridged "wait for the second instance" broadcast
// suppression documented (not fixed) by §9. A negative frequency is read
// as the driver's removal marker for this instance, exempted from the
// "frequency >= 0 required" validity check that otherwise gates an update.
func (s *runningState) handleApInfoChanged(l *SoftApLifecycle, ev event) {
	info := ev.info

	if info.Frequency < 0 {
		if _, had := l.radioInfo[info.InstanceID]; had {
			delete(l.radioInfo, info.InstanceID)
			l.publishClientsAndInfo()
		}
		return
	}

	info.AutoShutdownTimeoutMS = l.config.EffectiveShutdownTimeoutMS(l.capProvider.DefaultShutdownMS())

	if prev, had := l.radioInfo[info.InstanceID]; had && prev == info {
		return
	}

	l.radioInfo[info.InstanceID] = info
	l.registry.EnsureInstance(info.InstanceID)

	if l.config.IsBridgedMode() && len(l.radioInfo) < 2 {
		// §9: suppress the broadcast until the second instance's info has
		// also arrived, since callers interpret |info|==1 as single-AP.
		l.reconcileTimers()
		return
	}

	if !l.config.IsBridgedMode() {
		l.log.Debug("ap %s single-AP instance %s at %d kHz/MHz", l.id, info.InstanceID, info.Frequency)
	}

	l.publishClientsAndInfo()
	l.reconcileTimers()
}

// handleUpdateConfig implements §4.1.2's UpdateConfig transition: reject
// restart-requiring changes (§4.1.4), otherwise adopt the new config,
// refresh derived sets, reset the max-clients metric latch when the cap
// changed, and re-derive timers (re-broadcasting the effective timeout to
// every known instance when a timer-affecting field changed).
func (s *runningState) handleUpdateConfig(l *SoftApLifecycle, ev event) {
	if err := ev.config.Validate(); err != nil {
		l.log.Warn("rejected configuration update for %s: %v", l.id, err)
		return
	}

	if l.config.RestartRequired(ev.config, l.bssidRandomized) {
		l.log.Warn("rejected configuration update for %s: changes a field that requires a restart while running", l.id)
		return
	}

	maxClientsChanged := l.config.MaxClients != ev.config.MaxClients
	timerFieldsChanged := timerAffectingFieldsChanged(l.config, ev.config)

	l.config = ev.config
	if maxClientsChanged {
		l.maxClientsMetricReported = false
	}

	s.evictUnadmitted(l)

	if timerFieldsChanged {
		l.timers.CancelAll()
		l.reconcileTimers()
		l.rebroadcastEffectiveTimeout()
	} else {
		l.reconcileTimers()
	}
}

// handleClientAssoc implements admission (§4.2) for a newly associating
// client, and plain bookkeeping for a disassociating one.
func (s *runningState) handleClientAssoc(l *SoftApLifecycle, ev event) {
	c := ev.client

	if !ev.connected {
		wasPending := l.pending.Remove(c)
		if !l.registry.Remove(c.InstanceID, c.MAC) {
			// Expected when a client we force-disconnected (and therefore
			// already removed) finally reports its disassociation; anything
			// else is an internal-invariant violation (§4.4).
			if !wasPending {
				l.log.Error("invariant violation: disconnect for unknown client %s", c)
			}
			return
		}
		l.publishClientsAndInfo()
		l.reconcileTimers()
		return
	}

	l.pending.Remove(c) // re-association cancels any outstanding retry (§4.5)

	if l.registry.Contains(c.InstanceID, c.MAC) {
		l.log.Warn("ignoring duplicate association for already-registered client %s", c)
		return
	}

	decision := EvaluateAdmission(l.config, l.capability, l.registry.TotalCount(), c)
	if !decision.Accept {
		if decision.NotifyBlocked && l.observers != nil {
			l.observers.OnBlockedClientConnecting(l.id, c.MAC)
		}
		if decision.CountTowardMetric && !l.maxClientsMetricReported {
			l.maxClientsMetricReported = true
			l.log.Info("ap %s reached its client cap; further admissions will be rejected until the config changes", l.id)
		}
		if err := l.driver.ForceClientDisconnect(l.ctx, c.InstanceID, c.MAC, decision.Reason); err != nil {
			l.log.Warn("force disconnect of rejected client %s failed, queuing retry: %v", c, err)
			l.pending.Add(c, decision.Reason)
			l.scheduleRetry()
		}
		return
	}

	l.registry.Insert(c)
	l.publishClientsAndInfo()
	l.reconcileTimers()
}

// evictUnadmitted re-runs admission over the whole registry after a
// capability or configuration change (§4.2's re-evaluation rule). Each
// eviction carries its own reason: BlockedByUser for clients the new
// config blocks or disallows, NoMoreStas for the over-capacity remainder.
func (s *runningState) evictUnadmitted(l *SoftApLifecycle) {
	toEvict := ReevaluateAdmission(l.config, l.capability, l.registry.OrderedClients())
	if len(toEvict) == 0 {
		return
	}
	for _, e := range toEvict {
		l.registry.Remove(e.Client.InstanceID, e.Client.MAC)
		if err := l.driver.ForceClientDisconnect(l.ctx, e.Client.InstanceID, e.Client.MAC, e.Reason); err != nil {
			l.log.Warn("force disconnect during re-evaluation failed for %s, queuing retry: %v", e.Client, err)
			l.pending.Add(e.Client, e.Reason)
		}
	}
	l.scheduleRetry()
	l.publishClientsAndInfo()
	l.reconcileTimers()
}

// retryPending re-attempts every queued forced disconnect once (§4.5).
func (s *runningState) retryPending(l *SoftApLifecycle) {
	for _, e := range l.pending.Entries() {
		if err := l.driver.ForceClientDisconnect(l.ctx, e.Client.InstanceID, e.Client.MAC, e.Reason); err != nil {
			l.log.Warn("retry force-disconnect of %s still failing: %v", e.Client, err)
			continue
		}
		l.pending.Remove(e.Client)
	}
	l.scheduleRetry()
}

// dropIdleInstances implements the BridgedIdleTimer fire (§4.1.2
// NoClientsTimeoutOneInstance): remove the single idle instance with the
// highest frequency from the bridge. A no-op if nothing is idle.
func (s *runningState) dropIdleInstances(l *SoftApLifecycle) {
	id, ok := l.highestFrequencyIdleInstance()
	if !ok {
		return
	}
	if err := l.driver.RemoveInstanceFromBridge(l.ctx, l.ifaceName, id); err != nil {
		l.log.Warn("failed to drop idle instance %s from bridge: %v", id, err)
		return
	}
	l.registry.ForgetInstance(id)
	delete(l.radioInfo, id)
	l.publishClientsAndInfo()
	l.reconcileTimers()
}
