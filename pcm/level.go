package pcm

import (
	"encoding/binary"
	"math"
)

// Level computes the normalized RMS level of an s16le buffer. It allocates
// nothing and is cheap enough to run on the capture callback.
func Level(data []byte) float64 {
	n := len(data) / 2
	if n == 0 {
		return 0
	}
	var sumSquares float64
	for i := 0; i+1 < len(data); i += 2 {
		sample := int16(binary.LittleEndian.Uint16(data[i:]))
		normalized := float64(sample) / 32768.0
		sumSquares += normalized * normalized
	}
	return math.Sqrt(sumSquares / float64(n))
}
