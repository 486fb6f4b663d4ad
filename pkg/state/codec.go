package state

import (
	"fmt"

	"github.com/rotisserie/eris"
	"github.com/shamaton/msgpack/v3"
)

// Encode serializes v with msgpack.
func Encode(v any) ([]byte, error) {
	bz, err := msgpack.Marshal(v)
	if err != nil {
		return nil, eris.Wrap(err, "failed to encode value")
	}
	return bz, nil
}

// Decode deserializes data into v, which must be a pointer.
func Decode(data []byte, v any) (err error) {
	// msgpack panics on some malformed input.
	defer func() {
		if r := recover(); r != nil {
			err = eris.New(fmt.Sprintf("panic during decode: %v", r))
		}
	}()

	if err := msgpack.Unmarshal(data, v); err != nil {
		return eris.Wrap(err, "failed to decode value")
	}
	return nil
}
