package audiosink

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"
)

func readWavHeader(t *testing.T, path string) (riffSize, dataSize uint32, fileSize int64) {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		t.Fatalf("not a RIFF/WAVE file")
	}
	if string(data[36:40]) != "data" {
		t.Fatalf("expected data chunk at offset 36, got %q", data[36:40])
	}
	riffSize = binary.LittleEndian.Uint32(data[4:8])
	dataSize = binary.LittleEndian.Uint32(data[40:44])
	return riffSize, dataSize, int64(len(data))
}

// TestWavRoundTrip verifies property 5 / scenario E4: after End, the file
// parses as a valid RIFF/WAVE PCM stream of exactly the total samples
// pushed, with RIFF size = file_size-8 and data size = total PCM bytes.
func TestWavRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out.wav")

	sink, err := Begin(path, 2, 44100, 16)
	if err != nil {
		t.Fatal(err)
	}

	const chunk = 12
	const total = 10000
	written := 0
	buf := make([]int16, chunk)
	for written < total {
		n := chunk
		if written+n > total {
			n = total - written
		}
		if err := sink.Push(buf[:n]); err != nil {
			t.Fatal(err)
		}
		written += n
	}
	if err := sink.End(); err != nil {
		t.Fatal(err)
	}

	riffSize, dataSize, fileSize := readWavHeader(t, path)
	wantDataSize := uint32(total * 2) // int16 = 2 bytes per interleaved sample value
	if dataSize != wantDataSize {
		t.Fatalf("data chunk size = %d, want %d", dataSize, wantDataSize)
	}
	if int64(riffSize) != fileSize-8 {
		t.Fatalf("riff chunk size = %d, want %d (file_size-8)", riffSize, fileSize-8)
	}
}

func TestWavRejectsInvalidFormat(t *testing.T) {
	dir := t.TempDir()
	if _, err := Begin(filepath.Join(dir, "x.wav"), 0, 44100, 16); err == nil {
		t.Fatal("expected error for zero channels")
	}
}
