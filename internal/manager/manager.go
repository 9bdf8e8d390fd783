// Package manager orchestrates the set of concurrently running
// SoftApLifecycle instances for the daemon process: it creates and tracks
// them by AP id, fans every lifecycle.Observers callback out to the
// structured logger and (optionally) the debug API's websocket feed, and
// implements the small Registry surface the debug API needs to dump or
// stop an AP by id. This is the softap daemon's analogue of the sensor
// product's component orchestrator, scoped down to one component kind.
package manager

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/kestrel-systems/softap-lifecycle/internal/lifecycle"
	"github.com/kestrel-systems/softap-lifecycle/internal/logger"
)

// Broadcaster is implemented by the debug API server; kept as a narrow
// interface here so this package doesn't import internal/debugapi.
type Broadcaster interface {
	Broadcast(event interface{})
}

// Collaborators bundles the collaborator set every managed lifecycle is
// constructed with, other than its id/role.
type Collaborators struct {
	Driver      lifecycle.NativeDriver
	Planner     lifecycle.ChannelPlanner
	CapProvider lifecycle.CapabilityProvider
	ConfigStore lifecycle.ConfigStore
	Coex        lifecycle.CoexAdvisor
}

// Manager owns a set of SoftApLifecycle instances keyed by AP id.
type Manager struct {
	ctx           context.Context
	collaborators Collaborators
	log           *logger.Logger
	broadcaster   Broadcaster

	mu  sync.RWMutex
	aps map[string]*lifecycle.SoftApLifecycle
}

// New builds a Manager whose lifecycles run under ctx; cancelling ctx
// tears every managed AP down without running its clean-exit sequence.
func New(ctx context.Context, collaborators Collaborators, log *logger.Logger, broadcaster Broadcaster) *Manager {
	return &Manager{
		ctx:           ctx,
		collaborators: collaborators,
		log:           log,
		broadcaster:   broadcaster,
		aps:           make(map[string]*lifecycle.SoftApLifecycle),
	}
}

// Create constructs and registers a new SoftApLifecycle for id, or returns
// the existing one if id is already managed and still live. A lifecycle is
// disposed when it reaches its terminal quit (clean stop, inactivity
// expiry, or fault teardown), so a Create for an id whose previous
// lifecycle has terminated builds a fresh replacement. Per §6's
// new(config, role, requestor) contract, a freshly constructed lifecycle
// has Start(requestor) already enqueued — callers never need to remember a
// separate Start call.
func (m *Manager) Create(id string, role lifecycle.Role, requestor string, cfg lifecycle.ApConfiguration, cap lifecycle.Capability) *lifecycle.SoftApLifecycle {
	m.mu.Lock()
	defer m.mu.Unlock()

	if existing, ok := m.aps[id]; ok {
		select {
		case <-existing.Done():
			// terminated; replace below
		default:
			return existing
		}
	}

	l := lifecycle.New(m.ctx, lifecycle.Config{
		ID:          id,
		Role:        role,
		Driver:      m.collaborators.Driver,
		Planner:     m.collaborators.Planner,
		CapProvider: m.collaborators.CapProvider,
		ConfigStore: m.collaborators.ConfigStore,
		Observers:   m,
		Coex:        m.collaborators.Coex,
		Notifier:    m,
		Logger:      m.log,
	})
	m.aps[id] = l
	l.Start(requestor, cfg, cap)
	return l
}

// State implements debugapi.Registry: the structured pure-accessor view
// (§6's id()/role()/interface_name()/requestor()/current_state_name())
// the debug API's state endpoint exposes.
func (m *Manager) State(id string) (role, ifaceName, requestor, state string, err error) {
	l, ok := m.Get(id)
	if !ok {
		return "", "", "", "", fmt.Errorf("no such ap: %s", id)
	}
	return l.Role().String(), l.InterfaceName(), l.Requestor(), string(l.CurrentStateName()), nil
}

// Get returns the managed lifecycle for id, if any.
func (m *Manager) Get(id string) (*lifecycle.SoftApLifecycle, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	l, ok := m.aps[id]
	return l, ok
}

// IDs implements debugapi.Registry.
func (m *Manager) IDs() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := make([]string, 0, len(m.aps))
	for id := range m.aps {
		ids = append(ids, id)
	}
	return ids
}

// Dump implements debugapi.Registry.
func (m *Manager) Dump(id string, w io.Writer) error {
	l, ok := m.Get(id)
	if !ok {
		return fmt.Errorf("no such ap: %s", id)
	}
	return l.Dump(w)
}

// Stop implements debugapi.Registry.
func (m *Manager) Stop(id string) bool {
	l, ok := m.Get(id)
	if !ok {
		return false
	}
	l.Stop()
	return true
}

// stateChangeEvent is the websocket feed's wire shape.
type stateChangeEvent struct {
	Type   string                  `json:"type"`
	ID     string                  `json:"id"`
	State  lifecycle.StateName     `json:"state,omitempty"`
	Reason lifecycle.FailureReason `json:"reason,omitempty"`
	MAC    string                  `json:"mac,omitempty"`
}

func (m *Manager) OnStateChanged(id string, state lifecycle.StateName, reason lifecycle.FailureReason) {
	m.log.Info("ap %s state -> %s (%s)", id, state, reason)
	m.publish(stateChangeEvent{Type: "state_changed", ID: id, State: state, Reason: reason})
}

func (m *Manager) OnConnectedClientsOrInfoChanged(id string, clients map[string][]lifecycle.Client, info map[string]lifecycle.RadioInstanceInfo) {
	total := 0
	for _, list := range clients {
		total += len(list)
	}
	m.log.Debug("ap %s clients/info changed: %d clients across %d instances", id, total, len(info))
	m.publish(stateChangeEvent{Type: "clients_or_info_changed", ID: id})
}

func (m *Manager) OnBlockedClientConnecting(id string, mac string) {
	m.log.Warn("ap %s blocked client %s from connecting", id, mac)
	m.publish(stateChangeEvent{Type: "blocked_client", ID: id, MAC: mac})
}

func (m *Manager) OnStarted(id string) {
	m.log.Info("ap %s started", id)
	m.publish(stateChangeEvent{Type: "started", ID: id})
}

func (m *Manager) OnStopped(id string) {
	m.log.Info("ap %s stopped", id)
	m.publish(stateChangeEvent{Type: "stopped", ID: id})
}

func (m *Manager) OnStartFailure(id string, reason lifecycle.FailureReason) {
	m.log.Error("ap %s failed to start: %s", id, reason)
	m.publish(stateChangeEvent{Type: "start_failure", ID: id, Reason: reason})
}

// ShowShutdownTimeoutExpired implements lifecycle.Notifier: the manager has
// no end-user notification surface of its own, so it logs and forwards the
// event over the same debug websocket feed every other observer callback
// uses, rather than leaving the notice nowhere for a debug client to see.
func (m *Manager) ShowShutdownTimeoutExpired(id string) {
	m.log.Info("ap %s shutdown-timeout notification shown", id)
	m.publish(stateChangeEvent{Type: "shutdown_timeout_notification_shown", ID: id})
}

// DismissShutdownTimeoutExpired implements lifecycle.Notifier.
func (m *Manager) DismissShutdownTimeoutExpired(id string) {
	m.log.Debug("ap %s shutdown-timeout notification dismissed", id)
	m.publish(stateChangeEvent{Type: "shutdown_timeout_notification_dismissed", ID: id})
}

func (m *Manager) publish(ev stateChangeEvent) {
	if m.broadcaster != nil {
		m.broadcaster.Broadcast(ev)
	}
}
