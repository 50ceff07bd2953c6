package session

import (
	"net/http"
)

// Middleware wires a session handle into every request and persists it on
// the way out, but only when that is actually warranted:
//
//   - a session that was never touched is skipped entirely,
//   - an unchanged session (same fingerprint as at load) is skipped,
//   - requests matching an exclusion pattern are skipped,
//   - an empty session with no pre-existing persisted record is skipped, so
//     crawlers cannot litter the store with vacuous rows.
//
// Persistence failures are logged and never fail the response.
func (m *Manager) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, err := m.transport.GetToken(r)
		if err != nil || token == "" {
			token = NewSessionID()
			if err := m.transport.SetToken(w, token, 0); err != nil {
				m.log.ErrorContext(r.Context(), "failed to set session cookie", "error", err)
			}
			m.log.DebugContext(r.Context(), "minted new session id", "session_id", token)
		}

		h := m.Handle(token)
		ctx := WithHandle(r.Context(), h)
		next.ServeHTTP(w, r.WithContext(ctx))

		m.saveIfNeeded(r, h)
	})
}

func (m *Manager) saveIfNeeded(r *http.Request, h *Handle) {
	ctx := r.Context()

	if !h.Loaded() {
		return
	}
	if h.Invalidated() {
		m.log.DebugContext(ctx, "not persisting session because it was invalidated", "session_id", h.ID())
		return
	}

	h.FirePassivation()

	switch {
	case !h.Changed():
		m.log.DebugContext(ctx, "not persisting session because nothing changed", "session_id", h.ID())
	case m.excluded(r.URL.Path):
		m.log.DebugContext(ctx, "not persisting session because the request is excluded",
			"session_id", h.ID(), "path", r.URL.Path)
	case h.Empty() && !m.persister.IsValid(ctx, h.ID()):
		m.log.DebugContext(ctx, "not persisting session because it is empty", "session_id", h.ID())
	default:
		if err := h.Flush(ctx); err != nil {
			m.log.ErrorContext(ctx, "failed to persist session", "session_id", h.ID(), "error", err)
		}
	}
}
