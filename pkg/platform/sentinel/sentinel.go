package sentinel

import "errors"

// Sentinel errors for infrastructure facts. Record stores and audit sinks return
// these (optionally wrapped) so the dispatcher can translate them into domain errors.
//
//   - ErrNotFound: no row matched, including an update/delete filtered out by the owner column
//   - ErrConflict: a uniqueness constraint rejected the write
//   - ErrInvalidState: the record is in the wrong state for the requested transition
//   - ErrUnavailable: the backing store or provider is temporarily unreachable
//
// For validation errors (bad input, missing fields), use pkg/domain-errors directly.
var (
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrInvalidState = errors.New("invalid state")
	ErrUnavailable  = errors.New("unavailable")
)
