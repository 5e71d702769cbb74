package link

import (
	"github.com/fxamacker/cbor/v2"
)

// ExtractLinks decodes a dag-cbor block generically (with no knowledge of
// its static Go type) and returns every ContentHash embedded in it as a
// tag-42 link, duplicates included. Links inside CBOR maps are visited in
// Go's map iteration order, so the order of the result is not defined
// when the block contains a map. This is what the
// Block Streaming ledger (record_stream_orphans) and the history/body
// streamers use to discover a block's outgoing edges without each needing
// a type switch over every struct the sphere core defines.
func ExtractLinks(encoded []byte) ([]ContentHash, error) {
	var v interface{}
	if err := cbor.Unmarshal(encoded, &v); err != nil {
		return nil, err
	}
	var out []ContentHash
	walkLinks(v, &out)
	return out, nil
}

func walkLinks(v interface{}, out *[]ContentHash) {
	switch t := v.(type) {
	case cbor.Tag:
		if t.Number == dagCBORLinkTag {
			if content, ok := t.Content.([]byte); ok && len(content) > 0 && content[0] == 0x00 {
				if h, err := Parse(content[1:]); err == nil {
					*out = append(*out, h)
					return
				}
			}
		}
		walkLinks(t.Content, out)
	case map[interface{}]interface{}:
		for _, mv := range t {
			walkLinks(mv, out)
		}
	case []interface{}:
		for _, item := range t {
			walkLinks(item, out)
		}
	}
}
