package session

import "errors"

var (
	// ErrNotFound indicates no persisted record exists for the session id.
	// Absence is a normal outcome, not a failure; every persister returns it.
	ErrNotFound = errors.New("session.not_found")

	// ErrInvalidated indicates a terminated session was accessed without a
	// tolerance flag allowing it.
	ErrInvalidated = errors.New("session.invalidated")

	// ErrPersistFailed indicates a write was lost after the insert/update
	// fallback was exhausted.
	ErrPersistFailed = errors.New("session.persist_failed")

	// ErrCorruptStore indicates more than one row exists for a session id.
	ErrCorruptStore = errors.New("session.corrupt_store")

	// ErrSerialization indicates the attribute map could not be encoded or decoded.
	ErrSerialization = errors.New("session.serialization_failed")

	// ErrEmptyAttributeName indicates an attribute operation with an empty key.
	ErrEmptyAttributeName = errors.New("session.empty_attribute_name")
)
