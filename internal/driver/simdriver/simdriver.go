// Package simdriver provides an in-memory lifecycle.NativeDriver used in
// place of the real platform HAL: it simulates interface setup/teardown,
// radio start (reporting the interface up and its radio info after small
// fixed delays) and forced client disconnects rather than talking to a
// wireless chipset, so softapd can drive the full lifecycle without
// hardware.
package simdriver

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/kestrel-systems/softap-lifecycle/internal/lifecycle"
	"github.com/kestrel-systems/softap-lifecycle/internal/logger"
)

// Driver is a NativeDriver backed by an in-memory table of "up" interfaces.
type Driver struct {
	log *logger.Logger

	mu        sync.Mutex
	ifaces    map[string]*ifaceState
	nextIndex int
}

type ifaceState struct {
	up        bool
	bridged   bool
	macPerSet bool
	macCustom string
	destroyed bool
	cb        lifecycle.InterfaceCallbacks
}

// New returns a simulation driver logging through log.
func New(log *logger.Logger) *Driver {
	return &Driver{log: log, ifaces: make(map[string]*ifaceState)}
}

func (d *Driver) SetupInterface(ctx context.Context, cb lifecycle.InterfaceCallbacks, requestor string, bands []lifecycle.Band, bridged bool) (string, error) {
	d.mu.Lock()
	d.nextIndex++
	name := fmt.Sprintf("wlan-ap%d", d.nextIndex)
	// up starts false: a real radio doesn't report up the instant its
	// interface is created. StartSoftAp fires the up callback once the
	// simulated radio has actually started, so Running.onEnter's seed
	// query (§4.1.2) never races the first IfaceStatusChanged(true).
	d.ifaces[name] = &ifaceState{bridged: bridged, cb: cb}
	d.mu.Unlock()

	d.log.Info("simulated interface %s created for requestor %q, bridged=%v", name, requestor, bridged)
	return name, nil
}

func (d *Driver) StartSoftAp(ctx context.Context, ifaceName string, cfg lifecycle.EffectiveConfig, listener lifecycle.SoftApListener) error {
	d.mu.Lock()
	st, ok := d.ifaces[ifaceName]
	d.mu.Unlock()
	if !ok {
		return fmt.Errorf("simdriver: unknown interface %s", ifaceName)
	}

	d.log.Info("simulated softap started on %s: ssid=%q channel=%d country=%s", ifaceName, cfg.SSID, cfg.Channel, cfg.CountryCode)

	go func() {
		time.Sleep(5 * time.Millisecond)
		d.mu.Lock()
		st.up = true
		onUp := st.cb.OnUp
		d.mu.Unlock()
		if onUp != nil {
			onUp(ifaceName)
		}
	}()

	if listener.OnInfoChanged != nil {
		go func() {
			time.Sleep(10 * time.Millisecond)
			listener.OnInfoChanged(lifecycle.RadioInstanceInfo{
				InstanceID: ifaceName,
				Frequency:  channelToFrequency(cfg.Channel),
				BSSID:      cfg.BSSID,
			})
		}()
	}

	return nil
}

func (d *Driver) TeardownInterface(ctx context.Context, ifaceName string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	st, ok := d.ifaces[ifaceName]
	if !ok {
		return nil
	}
	st.up = false
	st.destroyed = true
	d.log.Info("simulated interface %s torn down", ifaceName)
	return nil
}

func (d *Driver) IsInterfaceUp(ctx context.Context, ifaceName string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	st, ok := d.ifaces[ifaceName]
	if !ok {
		return false, nil
	}
	return st.up, nil
}

func (d *Driver) ForceClientDisconnect(ctx context.Context, ifaceName, mac string, reason lifecycle.RejectReason) error {
	d.log.Debug("simulated force-disconnect of %s on %s (%s)", mac, ifaceName, reason)
	return nil
}

func (d *Driver) ResetFactoryMAC(ctx context.Context, ifaceName string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if st, ok := d.ifaces[ifaceName]; ok {
		st.macPerSet = false
		st.macCustom = ""
	}
	return nil
}

func (d *Driver) SetMAC(ctx context.Context, ifaceName, mac string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	st, ok := d.ifaces[ifaceName]
	if !ok {
		return fmt.Errorf("simdriver: unknown interface %s", ifaceName)
	}
	st.macPerSet = true
	st.macCustom = mac
	return nil
}

func (d *Driver) IsSetMACSupported(ifaceName string) bool { return true }

func (d *Driver) SetCountryCode(ctx context.Context, ifaceName, countryCode string) error {
	d.log.Debug("simulated set country code %s on %s", countryCode, ifaceName)
	return nil
}

func (d *Driver) RemoveInstanceFromBridge(ctx context.Context, ifaceName, instanceID string) error {
	d.log.Info("simulated removal of instance %s from bridge %s", instanceID, ifaceName)
	return nil
}

func (d *Driver) StartLogging(ctx context.Context, ifaceName string) error {
	d.log.Debug("simulated driver logging started for %s", ifaceName)
	return nil
}

func (d *Driver) StopLogging(ctx context.Context, ifaceName string) error {
	d.log.Debug("simulated driver logging stopped for %s", ifaceName)
	return nil
}

func channelToFrequency(channel int) int {
	switch {
	case channel <= 0:
		return 0
	case channel <= 14:
		return 2407 + channel*5
	default:
		return 5000 + channel*5
	}
}
