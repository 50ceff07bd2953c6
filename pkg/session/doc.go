// Package session persists mutable web session state to a durable store
// while serving fast reads from memory, without losing updates under
// concurrent requests.
//
// Everything revolves around the Persister capability: five operations
// (Persist, Load, Invalidate, IsValid, CleanUp) with three interchangeable
// implementations plus a composite:
//
//   - MemoryPersister: bounded, time-expiring, best-effort local cache with
//     LRU eviction and sharded locking.
//   - PostgresPersister: the authoritative tier. Attributes are serialized
//     to canonical JSON, content-hashed with SHA-256, and upserted with a
//     race-safe insert/update fallback.
//   - RedisPersister: TTL-native shared tier.
//   - ChainPersister: ordered composite that fans writes out to every
//     member and reads from the first member that has the data.
//
// A Handle wraps one session's working state: it lazily loads the record on
// first real access, guards every operation against invalidation and
// age-based expiry, and flushes a fresh snapshot on demand. A Manager ties
// it together for HTTP: its middleware resolves the session id from a
// cookie, parks a lazy handle in the request context, and persists at
// request end only when the session's Fingerprint actually changed.
//
//	┌────────┐  cookie  ┌───────────┐
//	│ Client │ ───────► │ Transport │
//	└────────┘          └───────────┘
//	                          │
//	                          ▼
//	┌─────────────────────────────────┐
//	│     Manager / Handle (guard)    │
//	└─────────────────────────────────┘
//	                          │ flush on change
//	                          ▼
//	              ┌─────────────────────┐
//	              │   ChainPersister    │
//	              │ memory → pg / redis │
//	              └─────────────────────┘
//
// # Usage
//
//	pool, _ := pg.Connect(ctx, pgCfg)
//	chain := session.NewChainPersister(
//	    session.NewMemoryPersister(),
//	    session.NewPostgresPersister(ctx, pool),
//	)
//	manager := session.New(session.WithPersister(chain))
//
//	mux.Handle("/", manager.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
//	    h := session.MustFromContext(r.Context())
//	    _ = h.SetAttribute(r.Context(), "views", 1)
//	})))
//
// Expired durable rows are swept by calling Manager.CleanUp (or the
// persister's CleanUp directly) from an external scheduler; the package
// never runs background jobs of its own.
//
// # Consistency model
//
// Two concurrent requests may hold independent handles for the same session
// id; the design accepts last-write-wins across such races instead of
// serializing them. The memory tier is strictly local and best-effort;
// every caller treats a miss as a normal outcome.
package session
