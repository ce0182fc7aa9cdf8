// Package audiosink implements the single-process audio path: a buffered
// PCM sink that writes a RIFF/WAVE file, back-patching the header sizes
// once the recording ends.
package audiosink

import (
	"encoding/binary"
	"fmt"
	"os"
)

// BufferedSamples is the default interleaved-sample buffering capacity
// before a flush to disk, per spec.md §4.F.
const BufferedSamples = 32768

// riffHeaderSize is the byte size of the RIFF/WAVE/fmt header written by
// Begin, up to (but not including) the "data" chunk's PCM payload.
const riffHeaderSize = 44

// WavSink is the audio-to-WAV variant of the capture core's audio path
// (component F). It is not safe for concurrent use; the pipeline driver
// serializes calls to it the same way it serializes video frame delivery.
type WavSink struct {
	f        *os.File
	channels int
	rate     int
	bits     int

	riffSizePos uint32 // offset of the RIFF chunk size field, for back-patch
	dataSizePos uint32 // offset of the data chunk size field, for back-patch

	buf       []int16
	dataLen   uint32 // running total PCM bytes written
}

// Begin creates path and writes the RIFF/WAVE header with placeholder chunk
// sizes, remembering the two offsets End will overwrite. Interleaved
// 16-bit PCM at 44100 Hz stereo is the default per spec.md §4.F; channels,
// rate and bits come from the audio contract established at Start.
func Begin(path string, channels, rate, bits int) (*WavSink, error) {
	if channels <= 0 || rate <= 0 || bits <= 0 || bits%8 != 0 {
		return nil, fmt.Errorf("audiosink: invalid format channels=%d rate=%d bits=%d", channels, rate, bits)
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("audiosink: create %s: %w", path, err)
	}

	blockAlign := channels * bits / 8
	byteRate := rate * blockAlign

	header := make([]byte, riffHeaderSize)
	copy(header[0:4], "RIFF")
	// bytes 4:8 are the RIFF chunk size placeholder, patched in End.
	copy(header[8:12], "WAVE")
	copy(header[12:16], "fmt ")
	binary.LittleEndian.PutUint32(header[16:20], 16) // fmt chunk size
	binary.LittleEndian.PutUint16(header[20:22], 1)  // PCM
	binary.LittleEndian.PutUint16(header[22:24], uint16(channels))
	binary.LittleEndian.PutUint32(header[24:28], uint32(rate))
	binary.LittleEndian.PutUint32(header[28:32], uint32(byteRate))
	binary.LittleEndian.PutUint16(header[32:34], uint16(blockAlign))
	binary.LittleEndian.PutUint16(header[34:36], uint16(bits))
	copy(header[36:40], "data")
	// bytes 40:44 are the data chunk size placeholder, patched in End.

	if _, err := f.Write(header); err != nil {
		f.Close()
		return nil, fmt.Errorf("audiosink: write header: %w", err)
	}

	return &WavSink{
		f:           f,
		channels:    channels,
		rate:        rate,
		bits:        bits,
		riffSizePos: 4,
		dataSizePos: 40,
		buf:         make([]int16, 0, BufferedSamples),
	}, nil
}

// Push appends interleaved 16-bit PCM samples, flushing to disk whenever
// the internal buffer would exceed BufferedSamples.
func (w *WavSink) Push(samples []int16) error {
	for len(samples) > 0 {
		space := cap(w.buf) - len(w.buf)
		n := len(samples)
		if n > space {
			n = space
		}
		w.buf = append(w.buf, samples[:n]...)
		samples = samples[n:]
		if len(w.buf) == cap(w.buf) {
			if err := w.flush(); err != nil {
				return err
			}
		}
	}
	return nil
}

func (w *WavSink) flush() error {
	if len(w.buf) == 0 {
		return nil
	}
	raw := make([]byte, len(w.buf)*2)
	for i, s := range w.buf {
		binary.LittleEndian.PutUint16(raw[i*2:], uint16(s))
	}
	if _, err := w.f.Write(raw); err != nil {
		return fmt.Errorf("audiosink: flush: %w", err)
	}
	w.dataLen += uint32(len(raw))
	w.buf = w.buf[:0]
	return nil
}

// End flushes the tail buffer, then seeks back and overwrites the RIFF and
// data chunk sizes with their final totals, per spec.md §4.F / property 5.
func (w *WavSink) End() error {
	if err := w.flush(); err != nil {
		return err
	}
	fileSize := riffHeaderSize + int64(w.dataLen)

	if _, err := w.f.Seek(int64(w.riffSizePos), 0); err != nil {
		return fmt.Errorf("audiosink: seek riff size: %w", err)
	}
	var sz [4]byte
	binary.LittleEndian.PutUint32(sz[:], uint32(fileSize-8))
	if _, err := w.f.Write(sz[:]); err != nil {
		return fmt.Errorf("audiosink: patch riff size: %w", err)
	}

	if _, err := w.f.Seek(int64(w.dataSizePos), 0); err != nil {
		return fmt.Errorf("audiosink: seek data size: %w", err)
	}
	binary.LittleEndian.PutUint32(sz[:], w.dataLen)
	if _, err := w.f.Write(sz[:]); err != nil {
		return fmt.Errorf("audiosink: patch data size: %w", err)
	}

	return w.f.Close()
}

// BlockAlign returns bytes per interleaved sample frame (channels * bits/8).
func (w *WavSink) BlockAlign() int {
	return w.channels * w.bits / 8
}
