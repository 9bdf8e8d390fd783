// Package store provides the persisted lifecycle.ConfigStore backing
// softapd's default AP configuration, using an embedded BadgerDB the same
// way the rest of the daemon's predecessor used it for device records:
// a single small value under a well-known key, written with retry, read
// with a safe fallback to an in-process default on any error.
package store

import (
	"crypto/rand"
	"encoding/json"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/kestrel-systems/softap-lifecycle/internal/errors"
	"github.com/kestrel-systems/softap-lifecycle/internal/lifecycle"
	"github.com/kestrel-systems/softap-lifecycle/internal/logger"
)

const defaultConfigKey = "meta:default_ap_configuration"

// BadgerConfigStore implements lifecycle.ConfigStore on top of an embedded
// BadgerDB, with an in-memory fallback default so a store outage never
// blocks a Start call (the daemon degrades to its compiled-in default
// rather than failing admission of the first AP).
type BadgerConfigStore struct {
	db       *badger.DB
	log      *logger.Logger
	fallback lifecycle.ApConfiguration
}

// Open opens (creating if necessary) the BadgerDB at path and returns a
// ConfigStore seeded with fallback for when the store can't be reached.
func Open(path string, fallback lifecycle.ApConfiguration, log *logger.Logger) (*BadgerConfigStore, error) {
	opts := badger.DefaultOptions(path)
	opts.Logger = nil

	log.Info("opening config store at %s", path)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open config store at %s", path)
	}

	return &BadgerConfigStore{db: db, log: log, fallback: fallback}, nil
}

// Close releases the underlying BadgerDB handle.
func (s *BadgerConfigStore) Close() error {
	return errors.Wrap(s.db.Close(), "failed to close config store")
}

// RunGC periodically reclaims BadgerDB's log space until stop is closed,
// mirroring the teacher's GC-interval convention.
func (s *BadgerConfigStore) RunGC(interval time.Duration, stop <-chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
		again:
			if err := s.db.RunValueLogGC(0.5); err == nil {
				goto again
			}
		}
	}
}

// SaveDefaultConfig persists cfg as the default ApConfiguration, retrying
// transient write failures with backoff.
func (s *BadgerConfigStore) SaveDefaultConfig(cfg lifecycle.ApConfiguration) error {
	data, err := json.Marshal(cfg)
	if err != nil {
		return errors.Wrap(err, "failed to serialize default ap configuration")
	}

	return errors.RetryWithBackoff(s.log, "save default ap configuration", errors.DefaultRetryConfig(), func() error {
		return s.db.Update(func(txn *badger.Txn) error {
			return txn.Set([]byte(defaultConfigKey), data)
		})
	})
}

// DefaultConfig implements lifecycle.ConfigStore: the persisted default,
// or the compiled-in fallback if the store has never been written to (or
// reading it fails).
func (s *BadgerConfigStore) DefaultConfig() lifecycle.ApConfiguration {
	var cfg lifecycle.ApConfiguration
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(defaultConfigKey))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &cfg)
		})
	})
	if err != nil {
		if err != badger.ErrKeyNotFound {
			s.log.Warn("failed to read default ap configuration, using fallback: %v", err)
		}
		return s.fallback
	}
	return cfg
}

// RandomizeBSSIDIfUnset implements lifecycle.ConfigStore: a null BSSID is
// replaced with a locally-administered, unicast random MAC, mirroring the
// conventional SoftAp behavior of never reusing the permanent hardware
// address for a BSSID the caller didn't pin.
func (s *BadgerConfigStore) RandomizeBSSIDIfUnset(cfg lifecycle.ApConfiguration) lifecycle.ApConfiguration {
	if cfg.BSSID != "" {
		return cfg
	}
	mac, err := randomLocallyAdministeredMAC()
	if err != nil {
		s.log.Warn("failed to generate randomized BSSID, leaving unset: %v", err)
		return cfg
	}
	cfg.BSSID = mac
	return cfg
}

func randomLocallyAdministeredMAC() (string, error) {
	var b [6]byte
	if _, err := rand.Read(b[:]); err != nil {
		return "", err
	}
	// Set the locally-administered bit and clear the multicast bit, per
	// the IEEE 802 convention for software-generated addresses.
	b[0] = (b[0] | 0x02) & 0xFE
	return fmt.Sprintf("%02x:%02x:%02x:%02x:%02x:%02x", b[0], b[1], b[2], b[3], b[4], b[5]), nil
}
