package domain

import "errors"

// Sentinel errors shared across the cache, store, and sync layers.
// Callers match them with errors.Is.
var (
	// ErrDuplicateSession is returned when a session name, after
	// normalization, already exists for the user.
	ErrDuplicateSession = errors.New("session already exists")

	// ErrSessionNotFound is returned for operations on a session that is
	// not a member of the user's session set.
	ErrSessionNotFound = errors.New("session not found")

	// ErrCacheUnavailable is returned when the hot store is unreachable
	// after the bounded reconnect attempts are exhausted.
	ErrCacheUnavailable = errors.New("cache unavailable")

	// ErrSyncFailed is returned when flushing cached messages into the
	// archive fails. The transaction is rolled back and no cache state is
	// touched, so a retry is always safe.
	ErrSyncFailed = errors.New("sync failed")

	// ErrUserNotFound is returned by the user directory for an unknown
	// username.
	ErrUserNotFound = errors.New("user not found")

	// ErrUserExists is returned when creating a user whose username is
	// already taken.
	ErrUserExists = errors.New("user already exists")
)
