// Package store is a thin Redis adapter used as the single source of truth
// for session validity: refresh-token records, access-token blacklist
// entries, and login-attempt counters all live here as TTL-bound keys.
//
// Every operation is bounded by a per-call timeout and reports connection
// failures as ErrUnavailable so callers can fail closed.
package store
