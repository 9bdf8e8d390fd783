package lifecycle

// AdmissionDecision is the outcome of evaluating an incoming client
// against the current configuration and capability (§4.2).
type AdmissionDecision struct {
	Accept           bool
	Reason           RejectReason
	NotifyBlocked    bool // onBlockedClientConnecting must fire
	CountTowardMetric bool
}

// EvaluateAdmission implements the §4.2 rule list, evaluated in order,
// first match wins.
func EvaluateAdmission(cfg ApConfiguration, cap Capability, registrySize int, c Client) AdmissionDecision {
	// Rule 1: cannot enforce without force-disconnect support.
	if !cap.Supports(FeatureClientForceDisconnect) {
		return AdmissionDecision{Accept: true}
	}

	blocked := cfg.BlockedSet()
	if _, isBlocked := blocked[normalizeMAC(c.MAC)]; isBlocked {
		// Rule 2.
		return AdmissionDecision{Accept: false, Reason: RejectBlockedByUser}
	}

	if cfg.ClientControlEnabled {
		allowed := cfg.AllowedSet()
		if _, isAllowed := allowed[normalizeMAC(c.MAC)]; !isAllowed {
			// Rule 3.
			return AdmissionDecision{Accept: false, Reason: RejectBlockedByUser, NotifyBlocked: true}
		}
	}

	// Rule 4.
	cap4 := effectiveCap(cfg, cap)
	if registrySize >= cap4 {
		return AdmissionDecision{Accept: false, Reason: RejectNoMoreStas, NotifyBlocked: true, CountTowardMetric: true}
	}

	// Rule 5.
	return AdmissionDecision{Accept: true}
}

// effectiveCap is §4.2's `cap = min(capability.max_supported_clients,
// config.max_clients || ∞)`.
func effectiveCap(cfg ApConfiguration, cap Capability) int {
	limit := cap.MaxSupportedClients
	if cfg.MaxClients > 0 && cfg.MaxClients < limit {
		limit = cfg.MaxClients
	}
	if limit <= 0 {
		// No hardware cap reported: config.max_clients (if any) stands alone;
		// 0/0 (both unlimited) means "no cap" modeled as max int.
		if cfg.MaxClients > 0 {
			return cfg.MaxClients
		}
		return int(^uint(0) >> 1)
	}
	return limit
}

// Eviction pairs a client chosen for forced disconnection during
// re-evaluation with the reason the driver call will carry.
type Eviction struct {
	Client Client
	Reason RejectReason
}

// ReevaluateAdmission implements the §4.2 re-evaluation rule that runs
// after a capability/config update while Running: walk the registry,
// evict blocked/disallowed clients first (in insertion order, reason
// BlockedByUser), then evict further clients (still in insertion order,
// reason NoMoreStas) until at or below cap.
func ReevaluateAdmission(cfg ApConfiguration, cap Capability, ordered []Client) (toEvict []Eviction) {
	blocked := cfg.BlockedSet()
	allowed := cfg.AllowedSet()
	capN := effectiveCap(cfg, cap)

	var keep []Client
	for _, c := range ordered {
		_, isBlocked := blocked[normalizeMAC(c.MAC)]
		disallowed := cfg.ClientControlEnabled
		if disallowed {
			_, isAllowed := allowed[normalizeMAC(c.MAC)]
			disallowed = !isAllowed
		}
		if isBlocked || disallowed {
			toEvict = append(toEvict, Eviction{Client: c, Reason: RejectBlockedByUser})
			continue
		}
		keep = append(keep, c)
	}

	for len(keep) > capN {
		toEvict = append(toEvict, Eviction{Client: keep[0], Reason: RejectNoMoreStas})
		keep = keep[1:]
	}

	return toEvict
}
