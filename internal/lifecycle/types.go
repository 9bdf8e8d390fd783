// Package lifecycle implements the SoftAP lifecycle core: a hierarchical
// state machine driving a single access-point instance from cold start to a
// running, client-serving state, and on to a clean or fault-induced
// shutdown. Everything in this package is consumed only by a single
// dispatcher goroutine; no exported method mutates lifecycle state directly,
// they only enqueue events onto the mailbox (see dispatcher.go).
package lifecycle

import (
	"fmt"
	"net"

	"github.com/go-playground/validator/v10"
)

var configValidator = validator.New()

// Band is a bitmask of radio bands a SoftAP instance can serve.
type Band uint32

const (
	Band2Point4GHz Band = 1 << iota
	Band5GHz
	Band6GHz
)

func (b Band) String() string {
	switch b {
	case Band2Point4GHz:
		return "2.4GHz"
	case Band5GHz:
		return "5GHz"
	case Band6GHz:
		return "6GHz"
	default:
		return fmt.Sprintf("Band(%#x)", uint32(b))
	}
}

// unionBands returns the bitwise-OR of a band slice.
func unionBands(bands []Band) Band {
	var u Band
	for _, b := range bands {
		u |= b
	}
	return u
}

// Role identifies the upstream attachment of the AP. It is assigned once at
// construction and never changes for the lifetime of the lifecycle (I7).
type Role int

const (
	RoleTethered Role = iota
	RoleLocalOnly
)

func (r Role) String() string {
	if r == RoleTethered {
		return "tethered"
	}
	return "local-only"
}

// Feature names gated on Capability rather than a platform/SDK version, per
// the design note in §9 of the specification.
type Feature string

const (
	FeatureMACAddressCustomization Feature = "mac_address_customization"
	FeatureClientForceDisconnect   Feature = "client_force_disconnect"
	FeatureACSOffload              Feature = "acs_offload"
)

// ApConfiguration is the immutable, replaceable configuration of a single
// SoftAP instance. A zero value is never valid: Validate rejects it.
type ApConfiguration struct {
	SSID                                string   `json:"ssid" validate:"required,max=32"`
	BSSID                               string   `json:"bssid,omitempty" validate:"omitempty,mac"`
	Bands                               []Band   `json:"bands" validate:"required,min=1"`
	Hidden                              bool     `json:"hidden"`
	BlockedMACs                         []string `json:"blocked_macs,omitempty" validate:"dive,mac"`
	AllowedMACs                         []string `json:"allowed_macs,omitempty" validate:"dive,mac"`
	ClientControlEnabled                bool     `json:"client_control_enabled"`
	MaxClients                          int      `json:"max_clients" validate:"gte=0"`
	ShutdownTimeoutMS                   int      `json:"shutdown_timeout_ms" validate:"gte=0"`
	AutoShutdownEnabled                 bool     `json:"auto_shutdown_enabled"`
	BridgedOpportunisticShutdownEnabled bool     `json:"bridged_opportunistic_shutdown_enabled"`
}

// Validate checks the struct-tag constraints above (SSID required and
// length-bounded, MAC-shaped BSSID/blocked/allowed entries, non-negative
// max_clients/shutdown_timeout_ms). A missing SSID is the one case §4.1.1
// calls out by name as a Start failure; the rest of the tag set widens that
// check to the full field set rather than hand-rolling each comparison.
func (c ApConfiguration) Validate() error {
	return configValidator.Struct(c)
}

// IsBridgedMode reports whether the configuration requests more than one
// concurrent radio instance (§3: |bands|>1 ⇒ bridged mode).
func (c ApConfiguration) IsBridgedMode() bool {
	return len(c.Bands) > 1
}

// BlockedSet returns the blocked-MAC set for O(1) membership tests.
func (c ApConfiguration) BlockedSet() map[string]struct{} {
	return toSet(c.BlockedMACs)
}

// AllowedSet returns the allowed-MAC set for O(1) membership tests.
func (c ApConfiguration) AllowedSet() map[string]struct{} {
	return toSet(c.AllowedMACs)
}

func toSet(macs []string) map[string]struct{} {
	s := make(map[string]struct{}, len(macs))
	for _, m := range macs {
		s[normalizeMAC(m)] = struct{}{}
	}
	return s
}

// EffectiveShutdownTimeoutMS is the §4.3 "effective shutdown timeout":
// auto_shutdown_enabled ? (shutdown_timeout_ms>0 ? shutdown_timeout_ms : default) : 0.
func (c ApConfiguration) EffectiveShutdownTimeoutMS(defaultMS int) int {
	if !c.AutoShutdownEnabled {
		return 0
	}
	if c.ShutdownTimeoutMS > 0 {
		return c.ShutdownTimeoutMS
	}
	return defaultMS
}

// RestartRequired implements §4.1.4: an update that changes SSID,
// hidden-ness, the band list (the fields the channel planner reads), or
// BSSID forces a restart and is rejected at runtime while Running.
// ApConfiguration has no security field, so none is compared. BSSID going
// from a randomized value to unset (null) does NOT require a restart, as a
// special case.
func (c ApConfiguration) RestartRequired(next ApConfiguration, oldBSSIDWasRandomized bool) bool {
	if c.SSID != next.SSID {
		return true
	}
	if c.Hidden != next.Hidden {
		return true
	}
	if !bandsEqual(c.Bands, next.Bands) {
		return true
	}
	if c.BSSID != next.BSSID {
		if next.BSSID == "" && oldBSSIDWasRandomized {
			// falling back to randomized BSSID from a randomized BSSID: no restart.
		} else {
			return true
		}
	}
	return false
}

// timerAffectingFieldsChanged reports whether next changes any field the
// two §4.3 inactivity timers derive their armed-state or delay from. Used
// by the Running UpdateConfig handler (§4.1.2) to decide whether both
// timers must be cancelled, rescheduled, and the effective timeout
// re-broadcast to every known radio instance.
func timerAffectingFieldsChanged(c, next ApConfiguration) bool {
	return c.AutoShutdownEnabled != next.AutoShutdownEnabled ||
		c.ShutdownTimeoutMS != next.ShutdownTimeoutMS ||
		c.BridgedOpportunisticShutdownEnabled != next.BridgedOpportunisticShutdownEnabled
}

func bandsEqual(a, b []Band) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// Capability is a replaceable value describing what the hardware/carrier
// combination currently supports.
type Capability struct {
	MaxSupportedClients     int  `json:"max_supported_clients"`
	MACAddressCustomization bool `json:"mac_address_customization"`
	ClientForceDisconnect   bool `json:"client_force_disconnect"`
	ACSOffload              bool `json:"acs_offload"`

	// AvailableBands is a bitmask of bands the radio/regulatory domain can
	// currently serve (e.g. 5GHz withdrawn for coexistence reasons). Zero
	// means unknown/no restriction, so callers that never populate it (most
	// collaborators, and every single-band configuration) are unaffected.
	AvailableBands Band `json:"available_bands,omitempty"`
}

// resolveBands implements §4.1.1's bridged-to-single-band fallback: if any
// requested band is unavailable per capability, collapse to single-band
// mode using the bitwise-OR of the requested bands that remain available,
// always including 2.4 GHz when the capability supports it.
func resolveBands(bands []Band, cap Capability) []Band {
	if len(bands) <= 1 || cap.AvailableBands == 0 {
		return bands
	}
	allAvailable := true
	for _, b := range bands {
		if cap.AvailableBands&b == 0 {
			allAvailable = false
			break
		}
	}
	if allAvailable {
		return bands
	}

	var fallback Band
	for _, b := range bands {
		if cap.AvailableBands&b != 0 {
			fallback |= b
		}
	}
	if cap.AvailableBands&Band2Point4GHz != 0 {
		fallback |= Band2Point4GHz
	}
	if fallback == 0 {
		return bands
	}
	return []Band{fallback}
}

// Supports reports whether the capability set includes a given feature.
func (c Capability) Supports(f Feature) bool {
	switch f {
	case FeatureMACAddressCustomization:
		return c.MACAddressCustomization
	case FeatureClientForceDisconnect:
		return c.ClientForceDisconnect
	case FeatureACSOffload:
		return c.ACSOffload
	default:
		return false
	}
}

// RadioInstanceInfo is the per-instance radio parameter set the driver
// reports back after (or while) a SoftAP instance is up.
type RadioInstanceInfo struct {
	InstanceID            string `json:"instance_id"`
	Frequency             int    `json:"frequency"` // kHz or MHz, per driver convention
	BandwidthCode         int    `json:"bandwidth_code"`
	StandardCode          int    `json:"standard_code"`
	BSSID                 string `json:"bssid"`
	AutoShutdownTimeoutMS int    `json:"auto_shutdown_timeout_ms"`
}

// Client is a single admitted (or admission-candidate) station.
type Client struct {
	MAC        string `json:"mac"`
	InstanceID string `json:"instance_id"`
}

func (c Client) String() string {
	return fmt.Sprintf("%s@%s", c.MAC, c.InstanceID)
}

// RejectReason enumerates why AdmissionPolicy refused a client.
type RejectReason string

const (
	RejectBlockedByUser RejectReason = "BlockedByUser"
	RejectNoMoreStas    RejectReason = "NoMoreStas"

	// rejectAdministrative is not part of the admission vocabulary; it tags
	// the forced disconnects stopSoftAp issues on the way down, where
	// ForceClientDisconnect needs *a* reason but none of the two admission
	// reasons describes "the AP is shutting down".
	rejectAdministrative RejectReason = "AdministrativeShutdown"
)

// FailureReason enumerates the Failed(reason) vocabulary of §6.
type FailureReason string

const (
	FailureNone                     FailureReason = ""
	FailureGeneral                  FailureReason = "General"
	FailureNoChannel                FailureReason = "NoChannel"
	FailureUnsupportedConfiguration FailureReason = "UnsupportedConfiguration"
)

// StateName is the externally visible state vocabulary of §6.
type StateName string

const (
	StateDisabled  StateName = "Disabled"
	StateEnabling  StateName = "Enabling"
	StateEnabled   StateName = "Enabled"
	StateDisabling StateName = "Disabling"
	StateFailed    StateName = "Failed"
)

// normalizeMAC lower-cases a MAC string for set-membership comparisons; the
// driver/orchestrator boundary is free to send mixed case.
func normalizeMAC(mac string) string {
	hw, err := net.ParseMAC(mac)
	if err != nil {
		return mac
	}
	return hw.String()
}
