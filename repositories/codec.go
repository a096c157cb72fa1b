package repositories

import (
	"github.com/fxamacker/cbor/v2"
)

// Records are encoded with CBOR Core Deterministic Encoding so the same
// logical record always produces identical bytes. Unknown fields are ignored
// on decode for forward compatibility.
var encMode cbor.EncMode

func init() {
	var err error
	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("repositories: CBOR encoder initialization failed: " + err.Error())
	}
}

func marshalRecord(v any) ([]byte, error) {
	return encMode.Marshal(v)
}

func unmarshalRecord(data []byte, v any) error {
	return cbor.Unmarshal(data, v)
}
