package lifecycle

import "context"

// EffectiveConfig is what actually gets programmed into the driver once
// startSoftAp (§4.1.3) has resolved BSSID, country code, and channel.
type EffectiveConfig struct {
	SSID        string
	BSSID       string
	Bands       []Band
	Hidden      bool
	CountryCode string
	Channel     int
	Tethered    bool
}

// InterfaceCallbacks are invoked by the driver on interface lifecycle
// events. The core never calls into itself from these: acquireInterface
// (ops.go) wires each callback to post an event onto the lifecycle
// mailbox rather than executing inline (§5).
type InterfaceCallbacks struct {
	OnDestroyed func(ifaceName string)
	OnUp        func(ifaceName string)
	OnDown      func(ifaceName string)
}

// SoftApListener receives driver-reported SoftAP events once an interface
// is running (§6). Like InterfaceCallbacks, these must be marshalled.
type SoftApListener struct {
	OnFailure                 func()
	OnInfoChanged             func(info RadioInstanceInfo)
	OnConnectedClientsChanged func(c Client, connected bool)
}

// NativeDriver is the hardware/HAL seam (§6). The core never assumes
// anything about how the driver is implemented; it only calls this
// interface from the dispatcher goroutine.
type NativeDriver interface {
	SetupInterface(ctx context.Context, cb InterfaceCallbacks, requestor string, bands []Band, bridged bool) (ifaceName string, err error)
	StartSoftAp(ctx context.Context, ifaceName string, cfg EffectiveConfig, listener SoftApListener) error
	TeardownInterface(ctx context.Context, ifaceName string) error
	IsInterfaceUp(ctx context.Context, ifaceName string) (bool, error)
	ForceClientDisconnect(ctx context.Context, ifaceName, mac string, reason RejectReason) error
	ResetFactoryMAC(ctx context.Context, ifaceName string) error
	SetMAC(ctx context.Context, ifaceName, mac string) error
	IsSetMACSupported(ifaceName string) bool
	SetCountryCode(ctx context.Context, ifaceName, countryCode string) error
	RemoveInstanceFromBridge(ctx context.Context, ifaceName, instanceID string) error
	StartLogging(ctx context.Context, ifaceName string) error
	StopLogging(ctx context.Context, ifaceName string) error
}

// Planner error kinds (§6): ChannelPlanner.UpdateBandAndChannel returns one
// of these (wrapped), or nil on success.
type PlannerErrorKind int

const (
	PlannerOK PlannerErrorKind = iota
	PlannerNoChannel
	PlannerUnsupportedConfiguration
	PlannerGeneral
)

// PlannerError carries a PlannerErrorKind so startSoftAp (§4.1.3) can map it
// to the right FailureReason without string matching.
type PlannerError struct {
	Kind PlannerErrorKind
	Err  error
}

func (e *PlannerError) Error() string {
	if e.Err != nil {
		return e.Err.Error()
	}
	switch e.Kind {
	case PlannerNoChannel:
		return "no channel available"
	case PlannerUnsupportedConfiguration:
		return "unsupported configuration"
	default:
		return "channel planning failed"
	}
}

func (e *PlannerError) Unwrap() error { return e.Err }

// ChannelPlanner picks the concrete channel/band for an EffectiveConfig,
// mutating it in place, given the current Capability (§4.1.3 step 3).
type ChannelPlanner interface {
	UpdateBandAndChannel(ctx context.Context, cfg *EffectiveConfig, cap Capability) error
}

// CapabilityProvider supplies defaults the per-AP Capability value doesn't
// carry itself: the two timer defaults (§4.3) and coarse feature support
// used before any AP-specific Capability has been received.
type CapabilityProvider interface {
	DefaultShutdownMS() int
	DefaultBridgedIdleMS() int
	SupportsFeature(f Feature) bool
}

// ConfigStore is the persisted default-configuration store (§6).
type ConfigStore interface {
	DefaultConfig() ApConfiguration
	RandomizeBSSIDIfUnset(cfg ApConfiguration) ApConfiguration
}

// Observers is the set of callback traits the façade invokes synchronously
// from the dispatcher goroutine (§5). Implementations must not block and
// must not call back into the lifecycle except by posting a new event.
type Observers interface {
	OnStateChanged(id string, state StateName, reason FailureReason)
	OnConnectedClientsOrInfoChanged(id string, clients map[string][]Client, info map[string]RadioInstanceInfo)
	OnBlockedClientConnecting(id string, mac string)
	OnStarted(id string)
	OnStopped(id string)
	OnStartFailure(id string, reason FailureReason)
}

// CoexListener is the subscription surface reserved for future bridged-mode
// coexistence shutdown handling. Per §9's open question, the callback is
// intentionally left unimplemented: the registration contract is preserved,
// no behavior is invented.
type CoexListener interface {
	OnCoexUnsafe()
}

// CoexAdvisor lets the lifecycle register/unregister a CoexListener while
// Running (§4.1.2 entry/exit).
type CoexAdvisor interface {
	Register(l CoexListener) (token int)
	Unregister(token int)
}

// Notifier is the end-user-visible notification surface §1 lists as an
// out-of-scope collaborator: the core only ever shows or dismisses one
// notice, the whole-AP shutdown-timer expiry (§4.1.1 Start: "dismiss any
// prior shutdown-expired notification"; §4.1.2 NoClientsTimeout: "show the
// shutdown expired notification"). Optional, like CoexAdvisor: a nil
// Notifier means the daemon has no notification surface wired and the
// calls are simply skipped.
type Notifier interface {
	ShowShutdownTimeoutExpired(id string)
	DismissShutdownTimeoutExpired(id string)
}
