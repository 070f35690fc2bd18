package archive

import (
	"encoding/binary"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func sinePCM(samples int) []byte {
	data := make([]byte, samples*2)
	for i := 0; i < samples; i++ {
		v := int16(8000 * math.Sin(float64(i)*2*math.Pi*440/16000))
		binary.LittleEndian.PutUint16(data[i*2:], uint16(v))
	}
	return data
}

func TestEncode(t *testing.T) {
	// One full block plus a partial tail block.
	data, err := Encode(sinePCM(blockSize + blockSize/4))
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if len(data) < 4 || string(data[:4]) != "fLaC" {
		t.Fatal("output does not start with FLAC magic")
	}
}

func TestEncodeEmpty(t *testing.T) {
	data, err := Encode(nil)
	if err != nil {
		t.Fatalf("Encode empty: %v", err)
	}
	if len(data) == 0 {
		t.Error("expected non-empty FLAC output (at least header)")
	}
}

func TestEncodeRejectsOddLength(t *testing.T) {
	if _, err := Encode(make([]byte, 3)); err == nil {
		t.Fatal("expected error for sample-misaligned input")
	}
}

func TestSave(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "captures")
	path, err := Save(dir, sinePCM(1024))
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if !strings.HasSuffix(path, ".flac") {
		t.Fatalf("path = %q", path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(data[:4]) != "fLaC" {
		t.Fatal("saved file is not FLAC")
	}
}
