package session

import "strings"

// DefaultTolerancePrefix is the flat-config prefix consulted by the access
// guard. The key "<prefix>.<operation>" overrides per operation; the bare
// "<prefix>" key is the global flag.
const DefaultTolerancePrefix = "session.ignoreinvalid"

// GuardConfig is the flat key→value configuration lookup the access guard
// queries to decide whether touching an invalidated session is tolerated. It
// is passed explicitly into handles instead of read from ambient state.
type GuardConfig interface {
	Get(key string) any
}

// MapGuardConfig is the trivial GuardConfig over a plain map.
type MapGuardConfig map[string]any

func (m MapGuardConfig) Get(key string) any { return m[key] }

// trueish reports whether a config value enables tolerance: boolean true,
// any nonzero number, or a string spelling "true".
func trueish(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case int:
		return t != 0
	case int32:
		return t != 0
	case int64:
		return t != 0
	case uint:
		return t != 0
	case uint64:
		return t != 0
	case float32:
		return t != 0
	case float64:
		return t != 0
	case string:
		return strings.EqualFold(t, "true")
	default:
		return false
	}
}

// tolerated reports whether the given operation on an invalidated session is
// allowed by the per-operation override or the global flag.
func tolerated(cfg GuardConfig, prefix, operation string) bool {
	if cfg == nil {
		return false
	}
	if prefix == "" {
		prefix = DefaultTolerancePrefix
	}
	return trueish(cfg.Get(prefix+"."+operation)) || trueish(cfg.Get(prefix))
}
