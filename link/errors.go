// Package link implements the sphere core's content-addressed identifiers:
// a codec-aware ContentHash and a phantom-typed Link[T] built on top of it.
package link

import "errors"

var (
	// ErrCodecMismatch is returned when a block is loaded under a codec
	// other than the one its hash declares.
	ErrCodecMismatch = errors.New("link: codec mismatch between hash and requested decoder")

	// ErrUnsupportedCodec is returned for a ContentHash codec this build
	// does not know how to decode.
	ErrUnsupportedCodec = errors.New("link: unsupported codec")

	// ErrInvalidMultihash is returned when a ContentHash cannot be parsed.
	ErrInvalidMultihash = errors.New("link: invalid multihash")
)
