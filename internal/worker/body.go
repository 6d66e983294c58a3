package worker

import (
	"encoding/binary"
	"fmt"
	"math/rand"
	"os"
)

// BodySource supplies POST and PUT payloads: a fixed file content loaded once,
// or random bytes whose length is uniform in [Min, Max].
type BodySource struct {
	fixed    []byte
	hasFixed bool
	min, max int
}

// FixedBody sends the same payload with every upload.
func FixedBody(b []byte) BodySource {
	return BodySource{fixed: b, hasFixed: true}
}

// RandomBody sends a fresh random payload of min..max bytes, both inclusive.
func RandomBody(min, max int) (BodySource, error) {
	if min < 0 || max < min {
		return BodySource{}, fmt.Errorf("invalid random body range [%d, %d]", min, max)
	}
	return BodySource{min: min, max: max}, nil
}

// LoadBodyFile reads path once so every upload shares the bytes.
func LoadBodyFile(path string) (BodySource, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return BodySource{}, fmt.Errorf("read body file: %w", err)
	}
	return FixedBody(data), nil
}

// Fixed reports whether the source replays a loaded file.
func (b BodySource) Fixed() bool { return b.hasFixed }

// next returns the payload for one upload. Random payloads are allocated per
// call: the transport may still be reading the previous body after Issue
// returns.
func (b BodySource) next(rng *rand.Rand) []byte {
	if b.hasFixed {
		return b.fixed
	}
	size := b.min
	if b.max > b.min {
		size += rng.Intn(b.max - b.min + 1)
	}
	buf := make([]byte, size)

	var word [8]byte
	for i := 0; i < size; i += 8 {
		binary.LittleEndian.PutUint64(word[:], rng.Uint64())
		copy(buf[i:], word[:])
	}
	return buf
}
