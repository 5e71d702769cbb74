package stream

import (
	"context"

	"github.com/subconsciousnetwork/noosphere-sub002/kv"
	"github.com/subconsciousnetwork/noosphere-sub002/link"
)

// Ledger is where RecordStreamOrphans writes the set of emitted blocks
// that were never referenced by another block in the stream, per
// spec.md §4.11. It is a thin facade over kv.Store so any backend (memory,
// bolt) can serve as a ledger with no new storage abstraction.
type Ledger struct {
	store kv.Store
	ns    string
}

// NewLedger returns a Ledger that namespaces its keys under ns, so one
// kv.Store can back several ledgers (e.g. one per sphere identity).
func NewLedger(store kv.Store, ns string) *Ledger {
	return &Ledger{store: store, ns: ns}
}

func (l *Ledger) key(hash link.ContentHash) string {
	return "orphan/" + l.ns + "/" + hash.String()
}

// Record marks hash as an orphan.
func (l *Ledger) Record(ctx context.Context, hash link.ContentHash) error {
	return l.store.Set(ctx, l.key(hash), []byte{1})
}

// IsOrphan reports whether hash was recorded as an orphan.
func (l *Ledger) IsOrphan(ctx context.Context, hash link.ContentHash) (bool, error) {
	_, err := l.store.Get(ctx, l.key(hash))
	if err != nil {
		if err == kv.ErrKeyNotFound {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// RecordStreamOrphans passes every block from in through to the returned
// channel unchanged, while tracking which of them are referenced by some
// other block's outgoing links in the same stream. Once in closes, it
// writes every emitted block that was never referenced into ledger — spec.md
// §4.11's "extracting outgoing links from the codec ... writes the set of
// blocks that were emitted but never referenced."
//
// referenced and emitted are both exact, in-memory sets: a block is
// either referenced by a link extracted from this stream or it is not,
// and there is no expensive per-element check here (map lookup, not a
// disk or network round trip) that a probabilistic prefilter would pay
// for its keep by skipping.
func RecordStreamOrphans(ctx context.Context, ledger *Ledger, in <-chan Block, inErrc <-chan error) (<-chan Block, <-chan error) {
	out := make(chan Block, streamCapacity)
	errc := make(chan error, 1)

	go func() {
		defer close(out)
		defer close(errc)

		referenced := map[string]bool{}
		emitted := map[string]link.ContentHash{}

	loop:
		for {
			select {
			case b, ok := <-in:
				if !ok {
					break loop
				}
				emitted[string(b.Hash.Bytes())] = b.Hash
				select {
				case out <- b:
				case <-ctx.Done():
					errc <- ctx.Err()
					return
				}
				links, err := link.ExtractLinks(b.Bytes)
				if err != nil {
					errc <- err
					return
				}
				for _, l := range links {
					referenced[string(l.Bytes())] = true
				}
			case <-ctx.Done():
				errc <- ctx.Err()
				return
			}
		}

		if streamErr := <-inErrc; streamErr != nil {
			errc <- streamErr
			return
		}

		for key, hash := range emitted {
			if !referenced[key] {
				if err := ledger.Record(ctx, hash); err != nil {
					errc <- err
					return
				}
			}
		}
	}()

	return out, errc
}
