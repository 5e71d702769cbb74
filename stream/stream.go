// Package stream implements the sphere core's block-streaming primitives
// (spec.md §4.11): deriving the block set reachable from a Memo or a
// revision range, framing it as a CAR v1 byte stream and back, tracking
// which emitted blocks are never referenced by another block in the same
// stream, and replaying a stream in reverse order.
package stream

import (
	"context"

	"github.com/subconsciousnetwork/noosphere-sub002/blockstore"
	"github.com/subconsciousnetwork/noosphere-sub002/link"
)

// streamCapacity is the channel capacity block streams use, per spec.md
// §5's backpressure guidance ("recommended 16 items for CAR assembly").
const streamCapacity = 16

// Block is one (hash, bytes) pair as it travels through a block stream.
type Block struct {
	Hash  link.ContentHash
	Bytes []byte
}

// Source is the minimal capability a block stream needs to resolve a hash
// to raw bytes and to discover the hash's outgoing links.
type Source interface {
	blockstore.Reader
}

// walkReachable performs a breadth-first walk of every block reachable
// from roots, sending each discovered block on out exactly once. It does
// not close out; callers drive it from their own goroutine and close when
// done, or use one of the exported *Stream functions which do this for
// the caller.
func walkReachable(ctx context.Context, store Source, roots []link.ContentHash, exclude map[string]bool, out chan<- Block, errc chan<- error) {
	seen := map[string]bool{}
	queue := append([]link.ContentHash(nil), roots...)
	for len(queue) > 0 {
		h := queue[0]
		queue = queue[1:]
		key := string(h.Bytes())
		if seen[key] || (exclude != nil && exclude[key]) {
			continue
		}
		seen[key] = true

		b, err := store.GetBlock(ctx, h)
		if err != nil {
			errc <- err
			return
		}
		select {
		case out <- Block{Hash: h, Bytes: b}:
		case <-ctx.Done():
			errc <- ctx.Err()
			return
		}

		links, err := link.ExtractLinks(b)
		if err != nil {
			errc <- err
			return
		}
		queue = append(queue, links...)
	}
}
