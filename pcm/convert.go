package pcm

import "encoding/binary"

// Converter turns device-native s16le frames into canonical-format bytes.
// It is stateful: one sample of history is kept so linear interpolation is
// continuous across chunk boundaries. Each input buffer is consumed whole,
// exactly once; re-feeding the same buffer duplicates audio.
//
// Converter is not safe for concurrent use; the recorder calls it from its
// serial context only.
type Converter struct {
	rate     int
	channels int

	pos    float64 // fractional read position past prev
	prev   int16
	primed bool
}

// NewConverter returns a converter from the given native format. Rate and
// channels must describe what the capture device actually delivers.
func NewConverter(rate, channels int) *Converter {
	if rate <= 0 {
		rate = SampleRate
	}
	if channels <= 0 {
		channels = 1
	}
	return &Converter{rate: rate, channels: channels}
}

// Convert consumes one native buffer and returns zero or more canonical
// bytes. The returned slice is freshly allocated and owned by the caller.
// Length is always a multiple of the sample size.
func (c *Converter) Convert(data []byte) []byte {
	frames := len(data) / 2 / c.channels
	if frames == 0 {
		return nil
	}

	// Fast path: already canonical.
	if c.rate == SampleRate && c.channels == 1 {
		out := make([]byte, frames*2)
		copy(out, data[:frames*2])
		return out
	}

	mono := c.downmix(data, frames)

	if c.rate == SampleRate {
		return encode(mono)
	}
	return encode(c.resample(mono))
}

func (c *Converter) downmix(data []byte, frames int) []int16 {
	mono := make([]int16, frames)
	if c.channels == 1 {
		for i := range mono {
			mono[i] = int16(binary.LittleEndian.Uint16(data[i*2:]))
		}
		return mono
	}
	for i := range mono {
		var sum int32
		for ch := 0; ch < c.channels; ch++ {
			sum += int32(int16(binary.LittleEndian.Uint16(data[(i*c.channels+ch)*2:])))
		}
		mono[i] = int16(sum / int32(c.channels))
	}
	return mono
}

// resample maps the incoming sample stream onto the canonical rate with
// linear interpolation. The window is the retained history sample followed
// by the new block; c.pos tracks the fractional position of the next output
// sample within that window.
func (c *Converter) resample(mono []int16) []int16 {
	buf := make([]int16, 0, len(mono)+1)
	if c.primed {
		buf = append(buf, c.prev)
	}
	buf = append(buf, mono...)

	step := float64(c.rate) / float64(SampleRate)
	out := make([]int16, 0, int(float64(len(buf))/step)+2)
	pos := c.pos
	for int(pos)+1 < len(buf) {
		i := int(pos)
		f := pos - float64(i)
		s := float64(buf[i])*(1-f) + float64(buf[i+1])*f
		out = append(out, int16(s))
		pos += step
	}

	c.prev = buf[len(buf)-1]
	c.primed = true
	c.pos = pos - float64(len(buf)-1)
	return out
}

func encode(samples []int16) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(s))
	}
	return out
}
