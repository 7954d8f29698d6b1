package sessionauth

import (
	"errors"
	"time"

	"github.com/relaychat/sessionauth/kv"
)

/*
====================================
SESSION CONFIG
====================================
*/

// SessionConfig controls the lifecycle of session records.
//
// SessionConfig instances are intended to be configured during
// initialization and then treated as immutable.
type SessionConfig struct {
	// KeyPrefix namespaces the four denormalized keys in the store.
	KeyPrefix string

	// TTL is the store-native expiry applied to all four keys. The store
	// purges them passively when it elapses without a refresh.
	TTL time.Duration

	// InactivityCeiling is the application-level staleness bound checked
	// against lastActivity during validation. It is independent of TTL:
	// both default to the same value, with the TTL acting as a passive
	// backstop for the ceiling. The ceiling must not exceed the TTL or a
	// stale record could outlive its pointers.
	InactivityCeiling time.Duration

	// CreateRetries bounds how often CreateSession re-runs its
	// claim-the-pointer loop when concurrent logins race on the same user.
	CreateRetries int
}

// Config is the top-level configuration consumed by [Builder].
//
// Config instances are intended to be configured during initialization and
// then treated as immutable.
type Config struct {
	Session SessionConfig
	Redis   kv.RedisConfig
}

const (
	defaultKeyPrefix         = "sa"
	defaultSessionTTL        = 24 * time.Hour
	defaultInactivityCeiling = 24 * time.Hour
	defaultCreateRetries     = 3
)

func defaultConfig() Config {
	return Config{
		Session: SessionConfig{
			KeyPrefix:         defaultKeyPrefix,
			TTL:               defaultSessionTTL,
			InactivityCeiling: defaultInactivityCeiling,
			CreateRetries:     defaultCreateRetries,
		},
	}
}

func (c *Config) normalize() {
	if c.Session.TTL <= 0 {
		c.Session.TTL = defaultSessionTTL
	}
	if c.Session.InactivityCeiling <= 0 {
		c.Session.InactivityCeiling = defaultInactivityCeiling
	}
	if c.Session.CreateRetries <= 0 {
		c.Session.CreateRetries = defaultCreateRetries
	}
}

func (c Config) validate() error {
	if c.Session.InactivityCeiling > c.Session.TTL {
		return errors.New("config: inactivity ceiling exceeds session TTL")
	}
	return nil
}
