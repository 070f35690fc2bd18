package wire

import (
	"encoding/binary"

	"dictate/pcm"
)

// WAVHeaderSize is the size of the canonical header frame.
const WAVHeaderSize = 44

// WAVHeader builds the header frame sent before any audio. The data-size
// field is always zero and the RIFF chunk size always 36: the true length
// is unknown when streaming starts and the server treats the header as a
// format descriptor, not a byte-accurate container. Do not "fix" this.
func WAVHeader(sampleRate, channels, bitsPerSample int) []byte {
	h := make([]byte, WAVHeaderSize)
	byteRate := sampleRate * channels * bitsPerSample / 8
	blockAlign := channels * bitsPerSample / 8

	copy(h[0:4], "RIFF")
	binary.LittleEndian.PutUint32(h[4:8], 36)
	copy(h[8:12], "WAVE")
	copy(h[12:16], "fmt ")
	binary.LittleEndian.PutUint32(h[16:20], 16)
	binary.LittleEndian.PutUint16(h[20:22], 1) // PCM
	binary.LittleEndian.PutUint16(h[22:24], uint16(channels))
	binary.LittleEndian.PutUint32(h[24:28], uint32(sampleRate))
	binary.LittleEndian.PutUint32(h[28:32], uint32(byteRate))
	binary.LittleEndian.PutUint16(h[32:34], uint16(blockAlign))
	binary.LittleEndian.PutUint16(h[34:36], uint16(bitsPerSample))
	copy(h[36:40], "data")
	binary.LittleEndian.PutUint32(h[40:44], 0)
	return h
}

// CanonicalWAVHeader returns the header for the canonical capture format.
func CanonicalWAVHeader() []byte {
	return WAVHeader(pcm.SampleRate, pcm.Channels, pcm.BitsPerSample)
}
