package vector

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

// ErrFormat is returned when a stored embedding blob cannot be decoded.
// A row carrying a malformed blob is unusable, but the error must not
// abort a full store scan.
var ErrFormat = errors.New("malformed embedding blob")

// Encode converts an embedding vector into its storage representation:
// a little-endian sequence of IEEE 754 float32 values, 4 bytes per
// element, with no length prefix. The dimension is recovered from the
// blob size on decode.
func Encode(vec []float32) []byte {
	b := make([]byte, len(vec)*4)
	for i, v := range vec {
		binary.LittleEndian.PutUint32(b[i*4:], math.Float32bits(v))
	}
	return b
}

// Decode is the exact inverse of Encode. The round trip is lossless:
// Decode(Encode(v)) yields v bit for bit.
func Decode(b []byte) ([]float32, error) {
	if len(b)%4 != 0 {
		return nil, fmt.Errorf("%w: length %d is not a multiple of 4", ErrFormat, len(b))
	}
	vec := make([]float32, len(b)/4)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return vec, nil
}
