// Package pcm defines the canonical capture format and the conversion
// path from device-native audio into it.
package pcm

import "time"

const (
	SampleRate     = 16000
	Channels       = 1
	BitsPerSample  = 16
	BytesPerSample = BitsPerSample / 8
)

// BytesPerSecond is the canonical-format data rate.
const BytesPerSecond = SampleRate * Channels * BytesPerSample

// Duration returns the play time of n canonical-format bytes.
func Duration(n int) time.Duration {
	return time.Duration(float64(n) / float64(BytesPerSecond) * float64(time.Second))
}

// ChunkBytes returns the canonical byte count for a chunk of the given
// wall-clock length, rounded down to a whole sample.
func ChunkBytes(d time.Duration) int {
	n := int(d.Seconds() * BytesPerSecond)
	return n - n%BytesPerSample
}
