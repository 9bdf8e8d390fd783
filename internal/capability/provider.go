// Package capability implements lifecycle.CapabilityProvider from the
// daemon's static configuration (§4.6): the two inactivity-timer defaults
// and coarse feature support used before any AP-specific lifecycle.Capability
// value has been received.
package capability

import "github.com/kestrel-systems/softap-lifecycle/internal/lifecycle"

// StaticProvider supplies fixed defaults loaded once at startup.
type StaticProvider struct {
	ShutdownMS    int
	BridgedIdleMS int
	Features      map[lifecycle.Feature]bool
}

// New builds a StaticProvider from daemon-config-derived values.
func New(shutdownMS, bridgedIdleMS int, cap lifecycle.Capability) *StaticProvider {
	return &StaticProvider{
		ShutdownMS:    shutdownMS,
		BridgedIdleMS: bridgedIdleMS,
		Features: map[lifecycle.Feature]bool{
			lifecycle.FeatureMACAddressCustomization: cap.MACAddressCustomization,
			lifecycle.FeatureClientForceDisconnect:   cap.ClientForceDisconnect,
			lifecycle.FeatureACSOffload:              cap.ACSOffload,
		},
	}
}

func (p *StaticProvider) DefaultShutdownMS() int    { return p.ShutdownMS }
func (p *StaticProvider) DefaultBridgedIdleMS() int { return p.BridgedIdleMS }

func (p *StaticProvider) SupportsFeature(f lifecycle.Feature) bool {
	return p.Features[f]
}
