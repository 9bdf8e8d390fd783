package lifecycle

// idleState is the machine's root state: no radio running, no resources
// held. It is also the fallback target for events runningState doesn't
// handle (§4.1).
type idleState struct{}

func (s *idleState) name() StateName { return StateDisabled }

func (s *idleState) onEnter(l *SoftApLifecycle) {
	l.ifaceName = ""
	l.ifaceUp = false
	l.ifaceDestroyed = false
}

func (s *idleState) onExit(l *SoftApLifecycle) {}

func (s *idleState) handle(l *SoftApLifecycle, ev event) (bool, transition) {
	switch ev.kind {
	case evStart:
		l.requestor = ev.requestor

		resolved, err := l.prepareStartConfig(ev.config, ev.capability)
		if err != nil {
			// SSID-missing (or any other struct-tag violation): same failure
			// path as a failed interface acquisition below — no Enabling
			// broadcast precedes it.
			l.failureReason = FailureGeneral
			l.publishState(StateFailed, FailureGeneral)
			if l.observers != nil {
				l.observers.OnStartFailure(l.id, FailureGeneral)
			}
			return true, stay
		}

		// §4.1.1: interface acquisition must run, and be able to fail,
		// before Enabling is published.
		if err := l.acquireInterface(resolved); err != nil {
			l.log.Warn("interface acquisition failed for %s: %v", l.id, err)
			l.failureReason = FailureGeneral
			l.publishState(StateFailed, FailureGeneral)
			if l.observers != nil {
				l.observers.OnStartFailure(l.id, FailureGeneral)
			}
			return true, stay
		}

		// §4.1.1: "dismiss any prior shutdown-expired notification" before
		// publishing Enabling.
		if l.notifier != nil {
			l.notifier.DismissShutdownTimeoutExpired(l.id)
		}
		l.publishState(StateEnabling, FailureNone)

		res := l.startSoftAp(resolved)
		if !res.ok {
			l.failureReason = res.reason
			_ = l.driver.TeardownInterface(l.ctx, l.ifaceName)
			l.ifaceName = ""
			l.ifaceUp = false
			l.publishState(StateFailed, res.reason)
			if l.observers != nil {
				l.observers.OnStartFailure(l.id, res.reason)
			}
			return true, stay
		}
		return true, toRunning

	case evUpdateCapability:
		// §4.1.1: accept only when target mode is tethered.
		if l.role != RoleTethered {
			l.log.Debug("ignoring capability update for %s: role %s is not tethered", l.id, l.role)
			return true, stay
		}
		// No AP running yet; swap it in place (§4.1.4 only constrains
		// updates while Running). A later Start replaces it with the
		// capability carried by its own event.
		l.capability = ev.capability
		return true, stay

	case evUpdateConfig:
		if err := ev.config.Validate(); err != nil {
			l.log.Warn("rejected configuration update for %s: %v", l.id, err)
			return true, stay
		}
		l.config = ev.config
		return true, stay

	case evStop:
		// No AP instance exists to tear down, so this quit is immediate;
		// Running's Stop reaches the same terminal quit through its full
		// exit teardown.
		if l.observers != nil {
			l.observers.OnStopped(l.id)
		}
		return true, quitMachine

	default:
		return false, stay
	}
}
