// Package kv implements the small typed key-value store the sphere core
// uses for local, non-content-addressed bookkeeping (petname address book
// entries, sphere context configuration, sync checkpoints): spec.md's
// "Key Value Store".
package kv

import "errors"

var (
	// ErrKeyNotFound is returned by Get when no value is stored
	// under the requested key.
	ErrKeyNotFound = errors.New("kv: key not found")
)
