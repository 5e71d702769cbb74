// Package blockstore implements the sphere core's pluggable content-
// addressed block storage (spec.md §4.1): a small read/write interface with
// in-memory, embedded-KV, and object-storage backends, and a retrying
// decorator any of them can be wrapped in.
package blockstore

import "errors"

var (
	// ErrBlockNotFound is returned by Get/Require when no block is stored
	// under the requested hash.
	ErrBlockNotFound = errors.New("blockstore: block not found")

	// ErrHashMismatch is returned when a caller supplies bytes that do not
	// hash to the key they are being stored or verified under.
	ErrHashMismatch = errors.New("blockstore: block bytes do not match hash")

	// ErrClosed names the closed-store condition. No store in this package
	// returns it; an operation on a BoltStore after Close fails with the
	// error bbolt itself reports.
	ErrClosed = errors.New("blockstore: store is closed")

	// ErrRetriesExhausted is returned by RetryStore once its retry budget
	// is spent without a successful attempt.
	ErrRetriesExhausted = errors.New("blockstore: retries exhausted")
)
