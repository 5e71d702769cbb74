package hamt

import "errors"

var (
	// ErrKeyNotFound is returned by Get/Require when no value is stored
	// under the requested key.
	ErrKeyNotFound = errors.New("hamt: key not found")

	// ErrCorruptNode is returned when a loaded node fails to decode, or
	// decodes to a structurally invalid shape (bitfield/pointer count
	// mismatch).
	ErrCorruptNode = errors.New("hamt: corrupt node")
)
