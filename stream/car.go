package stream

import (
	"bufio"
	"context"
	"fmt"
	"io"

	"github.com/fxamacker/cbor/v2"
	"github.com/ipfs/go-cid"
	varint "github.com/multiformats/go-varint"

	"github.com/subconsciousnetwork/noosphere-sub002/link"
)

// carHeader is the DAG-CBOR header every CAR v1 stream opens with, per
// spec.md §4.11 / §6 ("Standard CAR v1 with a DAG-CBOR header carrying the
// stream's roots").
type carHeader struct {
	Version uint64    `cbor:"version"`
	Roots   []cid.Cid `cbor:"roots"`
}

// ToCarStream writes a CAR v1 byte stream with the given roots to w,
// draining blocks until the channel closes (or ctx is done), and then
// returns the error, if any, received from errc.
func ToCarStream(ctx context.Context, w io.Writer, roots []link.ContentHash, blocks <-chan Block, errc <-chan error) error {
	hdrRoots := make([]cid.Cid, len(roots))
	for i, r := range roots {
		hdrRoots[i] = r.Cid()
	}
	hdrBytes, err := cbor.Marshal(carHeader{Version: 1, Roots: hdrRoots})
	if err != nil {
		return err
	}
	if _, err := w.Write(varint.ToUvarint(uint64(len(hdrBytes)))); err != nil {
		return err
	}
	if _, err := w.Write(hdrBytes); err != nil {
		return err
	}

loop:
	for {
		select {
		case b, ok := <-blocks:
			if !ok {
				break loop
			}
			cidBytes := b.Hash.Bytes()
			frameLen := uint64(len(cidBytes) + len(b.Bytes))
			if _, err := w.Write(varint.ToUvarint(frameLen)); err != nil {
				return err
			}
			if _, err := w.Write(cidBytes); err != nil {
				return err
			}
			if _, err := w.Write(b.Bytes); err != nil {
				return err
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return <-errc
}

// FromCarStream is the inverse of ToCarStream: it decodes a CAR v1 byte
// stream from r, returning its declared roots and a channel of the blocks
// it frames, in stream order.
func FromCarStream(ctx context.Context, r io.Reader) ([]link.ContentHash, <-chan Block, <-chan error) {
	out := make(chan Block, streamCapacity)
	errc := make(chan error, 1)

	br := bufio.NewReader(r)
	hdrLen, err := varint.ReadUvarint(br)
	if err != nil {
		close(out)
		errc <- fmt.Errorf("stream: reading CAR header length: %w", err)
		close(errc)
		return nil, out, errc
	}
	hdrBytes := make([]byte, hdrLen)
	if _, err := io.ReadFull(br, hdrBytes); err != nil {
		close(out)
		errc <- fmt.Errorf("stream: reading CAR header: %w", err)
		close(errc)
		return nil, out, errc
	}
	var hdr carHeader
	if err := cbor.Unmarshal(hdrBytes, &hdr); err != nil {
		close(out)
		errc <- fmt.Errorf("stream: decoding CAR header: %w", err)
		close(errc)
		return nil, out, errc
	}
	roots := make([]link.ContentHash, len(hdr.Roots))
	for i, c := range hdr.Roots {
		roots[i] = link.FromCid(c)
	}

	go func() {
		defer close(out)
		defer close(errc)
		for {
			frameLen, err := varint.ReadUvarint(br)
			if err != nil {
				if err == io.EOF {
					return
				}
				errc <- err
				return
			}
			frame := make([]byte, frameLen)
			if _, err := io.ReadFull(br, frame); err != nil {
				errc <- err
				return
			}
			n, c, err := cid.CidFromBytes(frame)
			if err != nil {
				errc <- err
				return
			}
			h := link.FromCid(c)
			data := frame[n:]
			select {
			case out <- Block{Hash: h, Bytes: append([]byte(nil), data...)}:
			case <-ctx.Done():
				errc <- ctx.Err()
				return
			}
		}
	}()
	return roots, out, errc
}
