package stream

import (
	"context"
	"fmt"

	"github.com/fxamacker/cbor/v2"

	"github.com/subconsciousnetwork/noosphere-sub002/kv"
)

func reverseScratchKey(ns string, i int) string {
	return fmt.Sprintf("reverse/%s/%d", ns, i)
}

// ReverseStream consumes in and re-emits it in reverse order, per spec.md
// §4.11: items are buffered in memory up to memoryLimit bytes, then
// spilled to scratch and read back in reverse. ns namespaces the scratch
// keys so concurrent reversals sharing one scratch store do not collide.
func ReverseStream(ctx context.Context, ns string, in <-chan Block, inErrc <-chan error, scratch kv.Store, memoryLimit int) (<-chan Block, <-chan error) {
	out := make(chan Block, streamCapacity)
	errc := make(chan error, 1)

	go func() {
		defer close(out)
		defer close(errc)

		var inMemory []Block
		buffered := 0
		spilled := 0

		flush := func() error {
			for i, b := range inMemory {
				encoded, err := cbor.Marshal(b)
				if err != nil {
					return err
				}
				if err := scratch.Set(ctx, reverseScratchKey(ns, spilled+i), encoded); err != nil {
					return err
				}
			}
			spilled += len(inMemory)
			inMemory = inMemory[:0]
			buffered = 0
			return nil
		}

	loop:
		for {
			select {
			case b, ok := <-in:
				if !ok {
					break loop
				}
				inMemory = append(inMemory, b)
				buffered += len(b.Bytes)
				if memoryLimit > 0 && buffered > memoryLimit {
					if err := flush(); err != nil {
						errc <- err
						return
					}
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

		total := spilled + len(inMemory)
		fetch := func(i int) (Block, error) {
			if i >= spilled {
				return inMemory[i-spilled], nil
			}
			var b Block
			encoded, err := scratch.Get(ctx, reverseScratchKey(ns, i))
			if err != nil {
				return Block{}, err
			}
			if err := cbor.Unmarshal(encoded, &b); err != nil {
				return Block{}, err
			}
			return b, nil
		}

		for i := total - 1; i >= 0; i-- {
			b, err := fetch(i)
			if err != nil {
				errc <- err
				return
			}
			select {
			case out <- b:
			case <-ctx.Done():
				errc <- ctx.Err()
				return
			}
		}
		for i := 0; i < spilled; i++ {
			_ = scratch.Unset(ctx, reverseScratchKey(ns, i))
		}
	}()

	return out, errc
}
