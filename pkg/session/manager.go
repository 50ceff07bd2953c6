package session

import (
	"context"
	"log/slog"
	"regexp"

	"github.com/google/uuid"
)

// Manager is the request-routing collaborator: it resolves a session id from
// the transport, hands out lazy handles, and decides at request end whether
// the session actually needs persisting.
type Manager struct {
	persister  Persister
	transport  Transport
	config     Config
	guard      GuardConfig
	exclusions []*regexp.Regexp
	log        *slog.Logger
}

// New creates a manager. Without options it serves sessions from an
// in-memory persister behind a plain cookie transport.
func New(opts ...Option) *Manager {
	m := &Manager{
		config: DefaultConfig(),
		log:    slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.persister == nil {
		m.persister = NewMemoryPersister(
			WithMaxEntries(m.config.MemoryMaxEntries),
			WithExpireAfterAccess(m.config.MemoryExpireAfterAccess),
			WithShards(m.config.MemoryShards),
			WithMemoryLogger(m.log),
		)
	}
	if m.transport == nil {
		m.transport = NewCookieTransport(m.config.CookieName, m.config.SecureCookies)
	}
	return m
}

// NewFromConfig creates a manager from the provided Config; further options
// may override it.
func NewFromConfig(cfg Config, opts ...Option) *Manager {
	return New(append([]Option{WithConfig(cfg)}, opts...)...)
}

// Persister exposes the configured persister, e.g. for an external cleanup
// scheduler.
func (m *Manager) Persister() Persister { return m.persister }

// Handle creates a lazy handle for the given session id.
func (m *Manager) Handle(id string) *Handle {
	return NewHandle(m.persister, id,
		WithGuard(m.guard),
		WithGuardPrefix(m.config.TolerancePrefix),
		WithDefaultMaxInactive(m.config.DefaultMaxInactive),
		WithHandleLogger(m.log),
	)
}

// NewSessionID mints an opaque session id.
func NewSessionID() string {
	return uuid.NewString()
}

// CleanUp forwards to the persister's synchronous expiry sweep. The manager
// never schedules this itself; call it from your job runner.
func (m *Manager) CleanUp(ctx context.Context) error {
	return m.persister.CleanUp(ctx)
}

// excluded reports whether the request path matches any exclusion pattern.
func (m *Manager) excluded(path string) bool {
	for _, re := range m.exclusions {
		if re.MatchString(path) {
			return true
		}
	}
	return false
}
