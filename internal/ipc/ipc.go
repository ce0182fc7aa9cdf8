// Package ipc implements the two-process capture<->encoder control plane
// (component G): the shared-memory layout, the event-driven command
// protocol and the keyed-mutex texture handoff. The real OS transport is
// Windows-only (golang.org/x/sys/windows); non-Windows builds get a stub
// returning ErrUnsupportedPlatform, mirroring the teacher's own
// be_unsupported.go / terminal_host_windows.go platform split.
package ipc

import (
	"errors"
	"fmt"
)

// ErrUnsupportedPlatform is returned by the non-Windows stub backend: the
// two-process shared-memory variant has no portable equivalent, per
// spec.md §4.G's Windows-specific handle/event model.
var ErrUnsupportedPlatform = errors.New("ipc: two-process shared-memory transport requires windows")

// ErrEncoderCrashed is returned when WaitForMultipleObjects-equivalent
// signalling indicates the encoder process exited instead of acking.
var ErrEncoderCrashed = errors.New("ipc: encoder process exited unexpectedly")

// ErrSetupFailed collapses shared-memory/event/process-spawn allocation
// failures into the single "setup failure" result kind spec.md §7 calls
// for.
var ErrSetupFailed = errors.New("ipc: setup failed")

// EventType is the capture->encoder command enumeration from spec.md §4.G.
// Encoder never initiates; every event flows capture -> encoder.
type EventType uint32

const (
	EventStart EventType = iota + 1
	EventNewVideo
	EventNewAudio
	EventStop
)

func (e EventType) String() string {
	switch e {
	case EventStart:
		return "START"
	case EventNewVideo:
		return "NEW_VIDEO"
	case EventNewAudio:
		return "NEW_AUDIO"
	case EventStop:
		return "STOP"
	default:
		return fmt.Sprintf("EventType(%d)", uint32(e))
	}
}

// Keyed-mutex key assignments for the shared texture handoff (spec.md
// §4.G): GAME writes, ENCODER reads, only one may hold the key at a time.
const (
	KeyGame    uint32 = 1
	KeyEncoder uint32 = 2
)

// MovieParamsWire is the wire layout of the movie_params block embedded in
// shared memory: see spec.md §4.G's header layout.
type MovieParamsWire struct {
	Width, Height int32
	FPS           int32
	Channels      int32
	SampleRate    int32
	Bits          int32
	CRF           int32
	Intra         int32
	UseAudio      bool
	DestFile      string
	VideoEncoder  string
	X264Preset    string
	DNxHRProfile  string
	AudioEncoder  string
}

// ENCODER_MAX_SAMPLES bounds one audio batch sent over the shared memory
// audio buffer, per spec.md §4.G.
const EncoderMaxSamples = 4096

// HeaderSize is the fixed-header byte size ahead of the audio ring buffer,
// and SharedMemSize is the total mapped region size for the worst-case
// stereo 16-bit ENCODER_MAX_SAMPLES batch. These, and the byte offsets
// below, are shared between the capture-side transport
// (sharedmem_windows.go) and the encoder-side binary (cmd/svrencoder) so
// both halves of the protocol agree on one wire layout, mirroring
// proc_encoder.cpp's shared struct.
const (
	HeaderSize    = 4096
	SharedMemSize = HeaderSize + EncoderMaxSamples*2*2
)

// Byte offsets into the mapped region.
const (
	OffGamePID       = 0
	OffGameWakeEvent = 4
	OffEncoderWake   = 8
	OffEventType     = 12
	OffAudioOffset   = 16
	OffWaitingAudio  = 20
	OffError         = 24
	OffErrorMessage  = 28
	ErrorMessageLen  = 1024
	OffTexHandle     = OffErrorMessage + ErrorMessageLen
	OffAudioBuffer   = HeaderSize
)

// ControlPlane is the capture-side handle onto the shared-memory transport:
// it sends commands and waits for the encoder's acknowledgement or crash
// signal.
type ControlPlane interface {
	// SendEvent writes event_type and the relevant payload fields, signals
	// the encoder, and blocks for its response or its process exit.
	// Returns ErrEncoderCrashed if the encoder process signalled instead of
	// acking, or the error recorded in shared.error/error_message if the
	// command itself failed.
	SendEvent(event EventType) error

	// WriteAudio copies n samples into the shared audio buffer ahead of an
	// EventNewAudio SendEvent call.
	WriteAudio(samples []int16) error

	// SharedTexture returns the handle identifying the keyed-mutex-guarded
	// shared texture, for use with a KeyedMutex implementation.
	SharedTexture() uintptr

	// Close tears down the shared memory region and any open handles.
	Close() error
}

// SpawnConfig configures the child encoder process launch (spec.md §4.G's
// "Child process startup").
type SpawnConfig struct {
	EncoderPath  string
	ResourceRoot string // becomes the child's working directory
	SharedMemHandle uintptr
}
