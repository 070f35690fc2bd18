package pcm

import "encoding/binary"

const (
	// Peaks below this are treated as noise floor and passed through
	// untouched; boosting them only amplifies hiss.
	silenceFloor = 120

	// Per-chunk exponential smoothing toward the target gain. Snapping
	// instantly produces audible pumping between quiet and loud chunks.
	gainSmoothing = 0.15
)

// gainSteps maps chunk peak magnitude to a target gain, biased toward
// boosting quiet speech. The first bucket is 1/16 of full scale.
var gainSteps = []struct {
	peak   int32
	target float64
}{
	{2048, 6.0},
	{4096, 4.0},
	{8192, 3.0},
	{16384, 2.0},
	{24576, 1.5},
	{32768, 1.0},
}

// Gain is the adaptive gain stage applied after format conversion. It is
// amplitude-only: no spectral analysis, just peak tracking with smoothing.
// Not safe for concurrent use.
type Gain struct {
	applied float64
}

func NewGain() *Gain {
	return &Gain{applied: 1.0}
}

// Applied reports the gain currently in effect.
func (g *Gain) Applied() float64 {
	return g.applied
}

// Process adjusts one canonical-format chunk in place and returns it.
// Near-silent chunks are returned byte-for-byte unchanged.
func (g *Gain) Process(chunk []byte) []byte {
	peak := Peak(chunk)
	if peak < silenceFloor {
		return chunk
	}

	target := 1.0
	for _, s := range gainSteps {
		if peak <= s.peak {
			target = s.target
			break
		}
	}
	g.applied += gainSmoothing * (target - g.applied)

	for i := 0; i+1 < len(chunk); i += 2 {
		s := int16(binary.LittleEndian.Uint16(chunk[i:]))
		amplified := int32(float64(s) * g.applied)
		if amplified > 32767 {
			amplified = 32767
		} else if amplified < -32768 {
			amplified = -32768
		}
		binary.LittleEndian.PutUint16(chunk[i:], uint16(int16(amplified)))
	}
	return chunk
}

// Peak returns the largest absolute sample value in a canonical chunk.
func Peak(chunk []byte) int32 {
	var peak int32
	for i := 0; i+1 < len(chunk); i += 2 {
		s := int32(int16(binary.LittleEndian.Uint16(chunk[i:])))
		if s < 0 {
			s = -s
		}
		if s > peak {
			peak = s
		}
	}
	return peak
}
