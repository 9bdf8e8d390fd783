// Package errors provides the ambient error-handling idiom shared across
// the softap daemon: context-wrapping, a retry-with-backoff helper for
// collaborator I/O (the config store's writes), and a logging close helper for
// shutdown paths.
package errors

import (
	"fmt"
	"time"

	"github.com/kestrel-systems/softap-lifecycle/internal/logger"
)

// RetryConfig configures RetryWithBackoff.
type RetryConfig struct {
	MaxAttempts   int
	InitialDelay  time.Duration
	MaxDelay      time.Duration
	BackoffFactor float64
}

// DefaultRetryConfig is a sensible default for collaborator I/O retries.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:   3,
		InitialDelay:  1 * time.Second,
		MaxDelay:      30 * time.Second,
		BackoffFactor: 2.0,
	}
}

// RetryWithBackoff executes fn with exponential backoff. This is reserved
// for collaborator I/O where the spec is silent on retry cadence (e.g.
// writing the persisted default configuration); the mailbox-driven forced-disconnect
// retry in internal/lifecycle uses a fixed RETRY_DELAY_MS instead, per §4.2.
func RetryWithBackoff(log *logger.Logger, operation string, cfg RetryConfig, fn func() error) error {
	var lastErr error
	delay := cfg.InitialDelay

	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		if err := fn(); err == nil {
			if attempt > 1 && log != nil {
				log.Info("operation %q succeeded after %d attempts", operation, attempt)
			}
			return nil
		} else {
			lastErr = err
		}

		if attempt == cfg.MaxAttempts {
			if log != nil {
				log.Error("operation %q failed after %d attempts: %v", operation, cfg.MaxAttempts, lastErr)
			}
			break
		}

		if log != nil {
			log.Warn("operation %q failed (attempt %d/%d): %v, retrying in %v",
				operation, attempt, cfg.MaxAttempts, lastErr, delay)
		}
		time.Sleep(delay)
		delay = time.Duration(float64(delay) * cfg.BackoffFactor)
		if delay > cfg.MaxDelay {
			delay = cfg.MaxDelay
		}
	}

	return fmt.Errorf("operation %q failed after %d attempts: %w", operation, cfg.MaxAttempts, lastErr)
}

// Wrap adds context to err, returning nil unchanged.
func Wrap(err error, context string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(context, args...), err)
}

// SafeClose closes a resource and logs any failure instead of propagating
// it, for use in shutdown paths where the caller can't usefully act on a
// close error.
func SafeClose(log *logger.Logger, closer interface{ Close() error }, resourceName string) {
	if closer == nil {
		return
	}
	if err := closer.Close(); err != nil && log != nil {
		log.Warn("failed to close %s: %v", resourceName, err)
	}
}
