package stream

import (
	"context"

	"github.com/subconsciousnetwork/noosphere-sub002/link"
	"github.com/subconsciousnetwork/noosphere-sub002/memo"
)

// MemoBodyStream yields every block reachable from the Memo at root: the
// Memo block itself, then (when includeBody is true) its Body and
// everything transitively reachable from Body — the body-chunk chain, or
// whatever maps a sphere-root body links to. It deliberately does not
// follow Parent: that edge belongs to history traversal (MemoHistoryStream),
// not to one revision's own block set, per spec.md §4.11.
func MemoBodyStream(ctx context.Context, store Source, root link.ContentHash, includeBody bool) (<-chan Block, <-chan error) {
	out := make(chan Block, streamCapacity)
	errc := make(chan error, 1)
	go func() {
		defer close(out)
		defer close(errc)

		raw, err := store.GetBlock(ctx, root)
		if err != nil {
			errc <- err
			return
		}
		select {
		case out <- Block{Hash: root, Bytes: raw}:
		case <-ctx.Done():
			errc <- ctx.Err()
			return
		}
		if !includeBody {
			return
		}

		m, err := blockstoreGetMemo(ctx, store, root, raw)
		if err != nil {
			errc <- err
			return
		}
		if m.Body.IsUndef() {
			return
		}
		walkReachable(ctx, store, []link.ContentHash{m.Body}, nil, out, errc)
	}()
	return out, errc
}

// blockstoreGetMemo decodes raw (already fetched for hash) as a Memo
// without a second store round-trip.
func blockstoreGetMemo(ctx context.Context, store Source, hash link.ContentHash, raw []byte) (memo.Memo, error) {
	var m memo.Memo
	if err := decodeCBOR(raw, &m); err != nil {
		return memo.Memo{}, err
	}
	return m, nil
}

// MemoHistoryStream walks root → parent → ... stopping at since
// (exclusive; nil walks to the genesis Memo), and emits the per-revision
// body block set of every visited revision, each block at most once
// across the whole walk, per spec.md §4.11.
func MemoHistoryStream(ctx context.Context, store Source, root link.ContentHash, since *link.ContentHash) (<-chan Block, <-chan error) {
	out := make(chan Block, streamCapacity)
	errc := make(chan error, 1)
	go func() {
		defer close(out)
		defer close(errc)

		seen := map[string]bool{}
		cur := root
		for {
			if since != nil && cur.Equals(*since) {
				return
			}
			raw, err := store.GetBlock(ctx, cur)
			if err != nil {
				errc <- err
				return
			}
			m, err := blockstoreGetMemo(ctx, store, cur, raw)
			if err != nil {
				errc <- err
				return
			}

			if !seen[string(cur.Bytes())] {
				seen[string(cur.Bytes())] = true
				select {
				case out <- Block{Hash: cur, Bytes: raw}:
				case <-ctx.Done():
					errc <- ctx.Err()
					return
				}
				if !m.Body.IsUndef() {
					bodyOut, bodyErr := subWalk(ctx, store, m.Body, seen)
					for _, b := range bodyOut {
						select {
						case out <- b:
						case <-ctx.Done():
							errc <- ctx.Err()
							return
						}
					}
					if bodyErr != nil {
						errc <- bodyErr
						return
					}
				}
			}

			if m.Parent == nil {
				return
			}
			cur = *m.Parent
		}
	}()
	return out, errc
}

// subWalk collects the reachable set from root, skipping anything already
// in seen and marking what it emits as seen, returning the collected
// blocks (rather than streaming them directly) so MemoHistoryStream can
// interleave them with its own cancellation checks.
func subWalk(ctx context.Context, store Source, root link.ContentHash, seen map[string]bool) ([]Block, error) {
	var collected []Block
	queue := []link.ContentHash{root}
	for len(queue) > 0 {
		h := queue[0]
		queue = queue[1:]
		key := string(h.Bytes())
		if seen[key] {
			continue
		}
		seen[key] = true

		b, err := store.GetBlock(ctx, h)
		if err != nil {
			return nil, err
		}
		collected = append(collected, Block{Hash: h, Bytes: b})

		links, err := link.ExtractLinks(b)
		if err != nil {
			return nil, err
		}
		queue = append(queue, links...)
	}
	return collected, nil
}
