package session

import (
	"fmt"
	"log/slog"
	"regexp"
)

// Option is a functional option for configuring the Manager.
type Option func(*Manager)

// WithPersister sets the persister the manager hands to every handle.
// Compose tiers with NewChainPersister.
func WithPersister(p Persister) Option {
	return func(m *Manager) { m.persister = p }
}

// WithTransport sets a custom session id transport.
func WithTransport(t Transport) Option {
	return func(m *Manager) { m.transport = t }
}

// WithConfig sets custom configuration.
func WithConfig(cfg Config) Option {
	return func(m *Manager) { m.config = cfg }
}

// WithGuardConfig wires the tolerance lookup into every handle the manager
// creates.
func WithGuardConfig(cfg GuardConfig) Option {
	return func(m *Manager) { m.guard = cfg }
}

// WithLogger sets the manager's logger, which also becomes the default for
// the handles it creates.
func WithLogger(log *slog.Logger) Option {
	return func(m *Manager) {
		if log != nil {
			m.log = log
		}
	}
}

// WithExclusions registers request-path patterns whose sessions are never
// persisted at request end. Panics on an invalid pattern to fail fast on
// misconfiguration.
func WithExclusions(patterns ...string) Option {
	return func(m *Manager) {
		for _, p := range patterns {
			re, err := regexp.Compile(p)
			if err != nil {
				panic(fmt.Errorf("session: invalid exclusion pattern %q: %w", p, err))
			}
			m.exclusions = append(m.exclusions, re)
		}
	}
}
