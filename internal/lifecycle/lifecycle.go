package lifecycle

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"github.com/kestrel-systems/softap-lifecycle/internal/logger"
)

// publicState is the dispatcher-owned field subset exposed by the
// synchronous pure accessors (§6: interface_name(), requestor(),
// current_state_name()). Refreshed once per dispatch cycle and read
// lock-free, so those accessors never need a mailbox round-trip like
// Dump does.
type publicState struct {
	ifaceName    string
	requestor    string
	currentState StateName
}

// SoftApLifecycle is the per-instance façade: one value owns exactly one
// dispatcher goroutine and exactly one mailbox (§5). Every exported method
// below is producer-side: it builds an event and posts it, never touching
// the fields the dispatcher goroutine owns.
type SoftApLifecycle struct {
	id   string
	role Role

	driver      NativeDriver
	planner     ChannelPlanner
	capProvider CapabilityProvider
	configStore ConfigStore
	observers   Observers
	coex        CoexAdvisor
	notifier    Notifier

	log *logger.Logger

	mailbox chan event
	done    chan struct{}
	ctx     context.Context // set once by run(); dispatcher-goroutine-owned

	// dispatcher-goroutine-owned state; never touched outside run/dispatch.
	current stateHandler
	idle    *idleState
	running *runningState

	terminated bool

	requestor      string
	config         ApConfiguration
	capability     Capability
	ifaceName      string
	ifaceUp        bool
	ifaceDestroyed bool
	failureReason  FailureReason
	startTimestamp time.Time

	registry   *ClientRegistry
	pending    *PendingDisconnectQueue
	timers     *TimerSet
	retryTimer oneShotTimer

	bssidRandomized bool

	radioInfo    map[string]RadioInstanceInfo
	coexToken    int
	currentState StateName

	published atomic.Pointer[publicState]

	// maxClientsMetricReported is the "max-clients metric already
	// reported" latch of §4.1.2 Running entry / §4.2 rule 4: logged once
	// per config epoch rather than on every rejected admission.
	maxClientsMetricReported bool
}

// Config bundles the collaborators a SoftApLifecycle needs; every field is
// required except Coex and Notifier, which may be nil (§9's open question:
// coexistence listening is reserved, not required; a nil Notifier skips
// the shutdown-expired notice).
type Config struct {
	ID          string
	Role        Role
	Driver      NativeDriver
	Planner     ChannelPlanner
	CapProvider CapabilityProvider
	ConfigStore ConfigStore
	Observers   Observers
	Coex        CoexAdvisor
	Notifier    Notifier
	Logger      *logger.Logger
}

// New constructs a SoftApLifecycle in its initial Disabled state and starts
// its dispatcher goroutine, bound to ctx's lifetime. Callers must call
// Stop() for a clean shutdown and may additionally cancel ctx to force the
// dispatcher to exit without running Running's exit cleanup.
func New(ctx context.Context, cfg Config) *SoftApLifecycle {
	l := &SoftApLifecycle{
		id:           cfg.ID,
		role:         cfg.Role,
		driver:       cfg.Driver,
		planner:      cfg.Planner,
		capProvider:  cfg.CapProvider,
		configStore:  cfg.ConfigStore,
		observers:    cfg.Observers,
		coex:         cfg.Coex,
		notifier:     cfg.Notifier,
		log:          cfg.Logger.WithField("ap", cfg.ID),
		mailbox:      make(chan event, 32),
		done:         make(chan struct{}),
		registry:     NewClientRegistry(),
		pending:      NewPendingDisconnectQueue(),
		timers:       NewTimerSet(),
		radioInfo:    make(map[string]RadioInstanceInfo),
		currentState: StateDisabled,
	}
	l.idle = &idleState{}
	l.running = &runningState{}
	l.published.Store(&publicState{currentState: StateDisabled})

	go l.run(ctx)
	return l
}

// ID returns the AP identifier this lifecycle was constructed with.
func (l *SoftApLifecycle) ID() string { return l.id }

// Role returns the immutable role assigned at construction (I7).
func (l *SoftApLifecycle) Role() Role { return l.role }

// InterfaceName returns the current interface name, or "" outside Running
// (§6 interface_name()). Lock-free; safe from any goroutine.
func (l *SoftApLifecycle) InterfaceName() string { return l.published.Load().ifaceName }

// Requestor returns the requestor tag of the most recent Start (§6
// requestor()). Lock-free; safe from any goroutine.
func (l *SoftApLifecycle) Requestor() string { return l.published.Load().requestor }

// CurrentStateName returns the externally visible state name last
// published (§6 current_state_name()). Lock-free; safe from any goroutine.
func (l *SoftApLifecycle) CurrentStateName() StateName { return l.published.Load().currentState }

// Start requests a transition to Enabled on behalf of requestor (§4.1).
func (l *SoftApLifecycle) Start(requestor string, cfg ApConfiguration, cap Capability) {
	l.post(event{kind: evStart, requestor: requestor, config: cfg, capability: cap})
}

// Stop requests a clean shutdown.
func (l *SoftApLifecycle) Stop() {
	l.post(event{kind: evStop})
}

// UpdateCapability posts a Capability replacement (§4.1.4).
func (l *SoftApLifecycle) UpdateCapability(cap Capability) {
	l.post(event{kind: evUpdateCapability, capability: cap})
}

// UpdateConfiguration posts an ApConfiguration replacement (§4.1.4).
func (l *SoftApLifecycle) UpdateConfiguration(cfg ApConfiguration) {
	l.post(event{kind: evUpdateConfig, config: cfg})
}

// NotifyIfaceStatusChanged marshals a driver-observed interface up/down
// transition onto the mailbox.
func (l *SoftApLifecycle) NotifyIfaceStatusChanged(up bool) {
	l.post(event{kind: evIfaceStatusChanged, up: up})
}

// NotifyIfaceDestroyed marshals the driver's interface-teardown callback.
func (l *SoftApLifecycle) NotifyIfaceDestroyed() {
	l.post(event{kind: evIfaceDestroyed})
}

// NotifyFailure marshals SoftApListener.OnFailure.
func (l *SoftApLifecycle) NotifyFailure() {
	l.post(event{kind: evFailure})
}

// NotifyClientAssocChanged marshals SoftApListener.OnConnectedClientsChanged.
func (l *SoftApLifecycle) NotifyClientAssocChanged(c Client, connected bool) {
	l.post(event{kind: evClientAssocChanged, client: c, connected: connected})
}

// NotifyApInfoChanged marshals SoftApListener.OnInfoChanged.
func (l *SoftApLifecycle) NotifyApInfoChanged(info RadioInstanceInfo) {
	l.post(event{kind: evApInfoChanged, info: info})
}

// Done returns a channel closed once the dispatcher goroutine has exited.
func (l *SoftApLifecycle) Done() <-chan struct{} { return l.done }

// Dump writes a human-readable snapshot of the lifecycle's current state
// to w, for the debug HTTP surface (§6). It is safe to call concurrently:
// it posts a request and blocks for the dispatcher's synchronous reply,
// rather than reading dispatcher-owned fields directly.
func (l *SoftApLifecycle) Dump(w io.Writer) error {
	result := make(chan string, 1)
	l.post(event{kind: evDumpRequest, dumpReply: result})
	select {
	case s := <-result:
		_, err := io.WriteString(w, s)
		return err
	case <-l.done:
		_, err := io.WriteString(w, fmt.Sprintf("ap %s: terminated\n", l.id))
		return err
	}
}

// snapshot renders the dispatcher-owned state as text; called only from
// the dispatcher goroutine in response to evDumpRequest.
func (l *SoftApLifecycle) snapshot() string {
	ids := make([]string, 0, len(l.radioInfo))
	for id := range l.radioInfo {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	return fmt.Sprintf(
		"ap=%s role=%s state=%s iface=%q up=%v bridged=%v instances=%s clients=%d pending=%d shutdown_armed=%v bridged_idle_armed=%v\n",
		l.id, l.role, l.currentState, l.ifaceName, l.ifaceUp, l.config.IsBridgedMode(),
		strings.Join(ids, ","),
		l.registry.TotalCount(), l.pending.Len(),
		l.timers.ShutdownArmed(), l.timers.BridgedIdleArmed(),
	)
}

// refreshPublicState snapshots the fields the synchronous pure accessors
// read; called once per dispatch cycle from the dispatcher goroutine, the
// only writer of ifaceName/requestor/currentState.
func (l *SoftApLifecycle) refreshPublicState() {
	l.published.Store(&publicState{
		ifaceName:    l.ifaceName,
		requestor:    l.requestor,
		currentState: l.currentState,
	})
}

// publishState is the single call site for Observers.OnStateChanged,
// keeping currentState in sync with what's been broadcast (§6).
func (l *SoftApLifecycle) publishState(s StateName, reason FailureReason) {
	l.currentState = s
	if l.observers != nil {
		l.observers.OnStateChanged(l.id, s, reason)
	}
}

// publishClientsAndInfo reports the current registry/radio-info snapshot.
func (l *SoftApLifecycle) publishClientsAndInfo() {
	if l.observers != nil {
		l.observers.OnConnectedClientsOrInfoChanged(l.id, l.registry.ListAll(), l.radioInfoCopy())
	}
}

func (l *SoftApLifecycle) radioInfoCopy() map[string]RadioInstanceInfo {
	out := make(map[string]RadioInstanceInfo, len(l.radioInfo))
	for k, v := range l.radioInfo {
		out[k] = v
	}
	return out
}
