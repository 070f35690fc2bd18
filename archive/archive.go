// Package archive writes finished captures to FLAC files for
// diagnostics. Lossless, so an archived capture can reproduce exactly
// what was streamed.
package archive

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/mewkiz/flac"
	"github.com/mewkiz/flac/frame"
	"github.com/mewkiz/flac/meta"

	"dictate/pcm"
)

const blockSize = 4096

// Encode compresses canonical PCM bytes into a FLAC stream.
func Encode(pcmBytes []byte) ([]byte, error) {
	if len(pcmBytes)%pcm.BytesPerSample != 0 {
		return nil, fmt.Errorf("archive: pcm length %d is not sample aligned", len(pcmBytes))
	}

	var buf bytes.Buffer
	info := &meta.StreamInfo{
		BlockSizeMin:  blockSize,
		BlockSizeMax:  blockSize,
		SampleRate:    pcm.SampleRate,
		NChannels:     pcm.Channels,
		BitsPerSample: pcm.BitsPerSample,
		NSamples:      0,
	}
	enc, err := flac.NewEncoder(&buf, info)
	if err != nil {
		return nil, fmt.Errorf("archive: creating flac encoder: %w", err)
	}
	enc.EnablePredictionAnalysis(true)

	samples := make([]int32, 0, blockSize)
	for i := 0; i < len(pcmBytes); i += pcm.BytesPerSample {
		samples = append(samples, int32(int16(binary.LittleEndian.Uint16(pcmBytes[i:]))))
		if len(samples) == blockSize {
			if err := writeBlock(enc, samples); err != nil {
				return nil, err
			}
			samples = samples[:0]
		}
	}
	if len(samples) > 0 {
		if err := writeBlock(enc, samples); err != nil {
			return nil, err
		}
	}

	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("archive: finalizing flac stream: %w", err)
	}
	return buf.Bytes(), nil
}

func writeBlock(enc *flac.Encoder, samples []int32) error {
	block := make([]int32, len(samples))
	copy(block, samples)

	subframe := &frame.Subframe{
		SubHeader: frame.SubHeader{
			Pred: frame.PredVerbatim,
		},
		Samples:  block,
		NSamples: len(block),
	}
	f := &frame.Frame{
		Header: frame.Header{
			BlockSize:     uint16(len(block)),
			SampleRate:    pcm.SampleRate,
			Channels:      frame.ChannelsMono,
			BitsPerSample: pcm.BitsPerSample,
		},
		Subframes: []*frame.Subframe{subframe},
	}
	if err := enc.WriteFrame(f); err != nil {
		return fmt.Errorf("archive: writing flac frame: %w", err)
	}
	return nil
}

// Save encodes pcmBytes and writes a timestamped file under dir,
// returning the file path.
func Save(dir string, pcmBytes []byte) (string, error) {
	data, err := Encode(pcmBytes)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("archive: %w", err)
	}
	name := fmt.Sprintf("capture-%s.flac", time.Now().Format("20060102-150405"))
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("archive: %w", err)
	}
	return path, nil
}
