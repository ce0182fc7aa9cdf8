package capture

import (
	"path/filepath"
	"strings"

	"github.com/bakapear/svrcore/internal/pixfmt"
)

// CodecKind distinguishes the two EncoderSink implementations a recording
// may select, per SPEC_FULL.md's MovieParams.Codec addition.
type CodecKind int

const (
	// CodecExternalPipe spawns an external encoder binary and writes raw
	// frames to its stdin (component H, internal/pipeenc).
	CodecExternalPipe CodecKind = iota
	// CodecTwoProcess hands a shared GPU texture to a sibling svrencoder
	// process (component G, internal/ipc).
	CodecTwoProcess
)

// MovieParams is immutable for the duration of one recording, per
// spec.md §3.
type MovieParams struct {
	Width, Height int
	FPS           int

	MosampleMult     int // M; 1 disables motion-sample
	MosampleExposure float64

	Format pixfmt.Format

	EncoderBackend    string
	Codec             CodecKind
	VideoX264CRF      int
	VideoX264Preset   string
	VideoX264Intra    bool
	VideoDNxHRProfile string

	AudioEnabled  bool
	AudioChannels int
	AudioRate     int
	AudioBits     int

	DestFile string
}

// validExts are the container extensions carried through unchanged;
// anything else is rewritten to .mp4, per spec.md §6's "Persisted
// artefacts" note.
var validExts = map[string]bool{
	".mp4": true,
	".mkv": true,
	".mov": true,
}

// normalizeDestExt implements the destination file extension normalization
// spec.md §6 names but does not fully elaborate, resolved against
// original_source/src/svr_game/proc_state.cpp's movie path construction:
// recognised container extensions are kept, anything else (including no
// extension) is rewritten to .mp4.
func normalizeDestExt(dest string) string {
	ext := strings.ToLower(filepath.Ext(dest))
	if validExts[ext] {
		return dest
	}
	base := strings.TrimSuffix(dest, filepath.Ext(dest))
	return base + ".mp4"
}
