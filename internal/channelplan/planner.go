// Package channelplan provides a minimal, deterministic
// lifecycle.ChannelPlanner: given a requested band set, it picks a fixed
// channel per band rather than scanning for the least congested one. A
// real deployment would plug in ACS (automatic channel selection) hardware
// offload instead; this implementation exists so the lifecycle core has
// something to drive in tests and the simulation driver.
package channelplan

import (
	"context"

	"github.com/kestrel-systems/softap-lifecycle/internal/lifecycle"
)

// defaultChannel is the fixed channel number assigned per band. Real ACS
// would instead survey and pick the least congested channel.
var defaultChannel = map[lifecycle.Band]int{
	lifecycle.Band2Point4GHz: 6,
	lifecycle.Band5GHz:       36,
	lifecycle.Band6GHz:       37,
}

// StaticPlanner implements lifecycle.ChannelPlanner with the fixed
// per-band channel table above.
type StaticPlanner struct {
	CountryCode string
}

// New returns a StaticPlanner that stamps every EffectiveConfig with
// countryCode.
func New(countryCode string) *StaticPlanner {
	return &StaticPlanner{CountryCode: countryCode}
}

// UpdateBandAndChannel picks the first requested band with a known
// channel and assigns it, failing with PlannerNoChannel if cfg requests
// no band this planner recognizes.
func (p *StaticPlanner) UpdateBandAndChannel(ctx context.Context, cfg *lifecycle.EffectiveConfig, cap lifecycle.Capability) error {
	for _, b := range cfg.Bands {
		if ch, ok := defaultChannel[b]; ok {
			cfg.Channel = ch
			cfg.CountryCode = p.CountryCode
			return nil
		}
	}
	return &lifecycle.PlannerError{Kind: lifecycle.PlannerNoChannel}
}
