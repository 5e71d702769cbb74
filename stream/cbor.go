package stream

import "github.com/fxamacker/cbor/v2"

func decodeCBOR(b []byte, v interface{}) error {
	return cbor.Unmarshal(b, v)
}
