package memo

import (
	"context"
	"fmt"
	"io"

	"github.com/subconsciousnetwork/noosphere-sub002/blockstore"
	"github.com/subconsciousnetwork/noosphere-sub002/kv"
	"github.com/subconsciousnetwork/noosphere-sub002/link"
)

// BodyChunk is one link in the forward-linked chain a chunked-bytes body
// is made of, spec.md §3: "each chunk holds a next optional Link and a
// byte payload".
type BodyChunk struct {
	Next *link.ContentHash `cbor:"n,omitempty"`
	Data []byte            `cbor:"d,omitempty"`
}

// BufferStrategy bounds the body-chunk encoder's in-memory working set,
// spec.md §4.6. LimitBytes of 0 means unbounded (every chunk is held in
// memory until the whole stream has been read). A positive LimitBytes
// spills chunks to scratch once the buffered total exceeds it, per
// spec.md §4.11's scratch-store spill mechanism also used by reverse
// streaming.
type BufferStrategy struct {
	LimitBytes int
}

// Unbounded is the zero-value BufferStrategy: never spill.
var Unbounded = BufferStrategy{}

// Limit returns a BufferStrategy that spills once n bytes are buffered.
func Limit(n int) BufferStrategy {
	return BufferStrategy{LimitBytes: n}
}

// DefaultChunkSize is the size-bound each BodyChunk's Data is split at
// when the caller does not request a different size.
const DefaultChunkSize = 1 << 18 // 256 KiB

func scratchChunkKey(i int) string {
	return fmt.Sprintf("bodychunk/%d", i)
}

// Encode consumes r, splitting it into chunkSize-bounded BodyChunk blocks,
// and returns a Link to the head of the resulting chain (spec.md §4.6).
// Because each chunk's Next must name the hash of the chunk after it, the
// chain is necessarily built tail-first: Encode buffers chunks (spilling
// to scratch under strategy's limit), then walks backward from the last
// chunk read, persisting each as it learns the hash of its successor.
func Encode(ctx context.Context, r io.Reader, store blockstore.Writer, scratch kv.Store, chunkSize int, strategy BufferStrategy) (link.ContentHash, error) {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}

	var inMemory [][]byte
	spilled := 0
	buffered := 0

	flush := func() error {
		for i, chunk := range inMemory {
			if err := scratch.Set(ctx, scratchChunkKey(spilled+i), chunk); err != nil {
				return err
			}
		}
		spilled += len(inMemory)
		inMemory = inMemory[:0]
		buffered = 0
		return nil
	}

	buf := make([]byte, chunkSize)
	for {
		n, err := io.ReadFull(r, buf)
		if n > 0 {
			chunk := append([]byte(nil), buf[:n]...)
			inMemory = append(inMemory, chunk)
			buffered += n
			if strategy.LimitBytes > 0 && buffered > strategy.LimitBytes {
				if ferr := flush(); ferr != nil {
					return link.ContentHash{}, ferr
				}
			}
		}
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			break
		}
		if err != nil {
			return link.ContentHash{}, err
		}
	}

	total := spilled + len(inMemory)
	if total == 0 {
		l, err := blockstore.Put(ctx, store, BodyChunk{})
		if err != nil {
			return link.ContentHash{}, err
		}
		return l.Hash, nil
	}

	fetch := func(i int) ([]byte, error) {
		if i >= spilled {
			return inMemory[i-spilled], nil
		}
		return scratch.Get(ctx, scratchChunkKey(i))
	}

	var next *link.ContentHash
	for i := total - 1; i >= 0; i-- {
		data, err := fetch(i)
		if err != nil {
			return link.ContentHash{}, err
		}
		l, err := blockstore.Put(ctx, store, BodyChunk{Next: next, Data: data})
		if err != nil {
			return link.ContentHash{}, err
		}
		h := l.Hash
		next = &h
	}
	for i := 0; i < spilled; i++ {
		_ = scratch.Unset(ctx, scratchChunkKey(i))
	}
	return *next, nil
}

// chunkReader lazily walks a BodyChunk chain, loading the next block only
// once the current one's Data is exhausted, per spec.md §4.6's "a reader
// walks the chain lazily".
type chunkReader struct {
	ctx   context.Context
	store blockstore.Reader
	next  *link.ContentHash
	buf   []byte
}

// Decode returns an io.Reader over the bytes addressed by head.
func Decode(ctx context.Context, store blockstore.Reader, head link.ContentHash) io.Reader {
	return &chunkReader{ctx: ctx, store: store, next: &head}
}

func (r *chunkReader) Read(p []byte) (int, error) {
	for len(r.buf) == 0 {
		if r.next == nil {
			return 0, io.EOF
		}
		chunk, err := blockstore.Get(r.ctx, r.store, link.To[BodyChunk](*r.next))
		if err != nil {
			return 0, err
		}
		r.buf = chunk.Data
		r.next = chunk.Next
	}
	n := copy(p, r.buf)
	r.buf = r.buf[n:]
	return n, nil
}
