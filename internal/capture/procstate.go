// Package capture implements the pipeline driver (component I): per-frame
// sequencing of the queue/semaphore, staging-ring, pixel-format,
// mosample, audio and control-plane subsystems, recording lifecycle and
// clean shutdown.
package capture

import (
	"fmt"
	"io"
	"path/filepath"

	"github.com/bakapear/svrcore/internal/audiosink"
	"github.com/bakapear/svrcore/internal/corelog"
	"github.com/bakapear/svrcore/internal/gpu"
	"github.com/bakapear/svrcore/internal/ipc"
	"github.com/bakapear/svrcore/internal/mosample"
	"github.com/bakapear/svrcore/internal/pipeenc"
	"github.com/bakapear/svrcore/internal/pixfmt"
	"github.com/bakapear/svrcore/internal/profile"
)

// AudioParams is the audio contract given to Start, per spec.md §6.
type AudioParams struct {
	Enabled  bool
	Channels int
	Rate     int
	Bits     int
}

// ProcState is the capture core's pipeline driver. It owns static resources
// across the lifetime of the embedding host process and per-recording
// dynamic resources bounded by Start/End pairs.
type ProcState struct {
	resourceRoot string
	profilesDir  string
	backend      gpu.RenderBackend
	logCloser    func() error

	encoderPath   string    // external encoder binary for CodecExternalPipe
	encoderStdout io.Writer // defaults to io.Discard if unset
	spawnConfig   ipc.SpawnConfig // for CodecTwoProcess

	rec *recording
}

type recording struct {
	params   MovieParams
	plan     pixfmt.ConversionPlan
	overlay  Overlay
	overlayOn bool

	readback *gpu.Readback   // only set for CodecExternalPipe
	workTex  gpu.Handle      // persistent RGBA32F passthrough target; mosample.State has its own accumulator
	mosampleState *mosample.State

	sink  EncoderSink
	wav   *audiosink.WavSink // only set for CodecExternalPipe with audio enabled

	// two-process variant resources, released on End.
	controlPlane ipc.ControlPlane
	sharedTex    gpu.Handle

	stopped    bool
	frameCount int
}

// Init prepares static state: compute shaders and any other
// recording-independent resources. It must succeed before Start is called.
func Init(resourceRoot, profilesDir string, backend gpu.RenderBackend) (*ProcState, error) {
	closer, err := corelog.Init(resourceRoot)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", gpu.ErrStartFailed, err)
	}
	if err := gpu.CreateShaders(backend); err != nil {
		closer()
		corelog.SetupFailure("capture.Init", err)
		return nil, fmt.Errorf("%w: compute shaders: %v", gpu.ErrStartFailed, err)
	}
	return &ProcState{
		resourceRoot: resourceRoot,
		profilesDir:  profilesDir,
		backend:      backend,
		logCloser:    closer,
	}, nil
}

// SetExternalEncoder configures the external codec binary path and its
// captured stdout (log/diagnostic output, never the frame payload) used by
// the CodecExternalPipe variant.
func (ps *ProcState) SetExternalEncoder(path string, stdout io.Writer) {
	ps.encoderPath = path
	ps.encoderStdout = stdout
}

// SetEncoderSpawnConfig configures the sibling svrencoder process launch
// used by the CodecTwoProcess variant.
func (ps *ProcState) SetEncoderSpawnConfig(cfg ipc.SpawnConfig) {
	ps.spawnConfig = cfg
}

// Start begins a recording: loads and merges the profile (default then
// override), derives MovieParams, builds the ConversionPlan, allocates the
// work texture, initialises the audio sink, and starts the encoder.
func (ps *ProcState) Start(dest, profileName string, srcW, srcH int, codec CodecKind, audio AudioParams) error {
	if ps.rec != nil {
		return fmt.Errorf("capture: Start called while a recording is active")
	}

	prof, err := profile.Load(ps.profilesDir, profileName)
	if err != nil {
		corelog.SetupFailure("capture.Start", err)
		return fmt.Errorf("%w: loading profile: %v", gpu.ErrStartFailed, err)
	}

	params := MovieParams{
		Width: srcW, Height: srcH, FPS: prof.VideoFPS,
		MosampleMult: 1, MosampleExposure: 1.0,
		EncoderBackend:    prof.VideoEncoder,
		Codec:             codec,
		VideoX264CRF:      prof.VideoX264CRF,
		VideoX264Preset:   prof.VideoX264Preset,
		VideoX264Intra:    prof.VideoX264Intra,
		VideoDNxHRProfile: prof.VideoDNxHRProfile,
		AudioEnabled:      audio.Enabled && prof.AudioEnabled,
		AudioChannels:     audio.Channels,
		AudioRate:         audio.Rate,
		AudioBits:         audio.Bits,
		DestFile:          normalizeDestExt(dest),
	}
	if prof.MosampleEnabled {
		params.MosampleMult = prof.MosampleMult
		params.MosampleExposure = prof.MosampleExposure
	}
	format, err := pixfmt.ParseFormat(prof.VideoPixelFormat)
	if err != nil {
		corelog.SetupFailure("capture.Start", err)
		return fmt.Errorf("%w: %v", gpu.ErrStartFailed, err)
	}
	params.Format = format

	rec := &recording{params: params, plan: pixfmt.Plan(params.Format)}

	if prof.OverlayEnabled {
		rec.overlay = NewVelocityOverlay()
		rec.overlayOn = true
	} else {
		rec.overlay = NullOverlay{}
	}

	workTex, err := ps.backend.CreateTexture(gpu.TextureDesc{Width: srcW, Height: srcH, ElementBytes: 16, Kind: gpu.TextureDefault})
	if err != nil {
		corelog.SetupFailure("capture.Start", err)
		return fmt.Errorf("%w: work texture: %v", gpu.ErrStartFailed, err)
	}
	rec.workTex = workTex

	if params.MosampleMult > 1 {
		ms, err := mosample.NewState(ps.backend, srcW, srcH, params.MosampleMult, params.MosampleExposure)
		if err != nil {
			ps.backend.DestroyTexture(workTex)
			corelog.SetupFailure("capture.Start", err)
			return err
		}
		rec.mosampleState = ms
	}

	switch codec {
	case CodecExternalPipe:
		if err := ps.startExternalPipe(rec); err != nil {
			ps.teardownPartial(rec)
			corelog.SetupFailure("capture.Start", err)
			return err
		}
	case CodecTwoProcess:
		if err := ps.startTwoProcess(rec); err != nil {
			ps.teardownPartial(rec)
			corelog.SetupFailure("capture.Start", err)
			return err
		}
	default:
		ps.teardownPartial(rec)
		return fmt.Errorf("capture: unknown codec kind %v", codec)
	}

	ps.rec = rec
	return nil
}

func (ps *ProcState) startExternalPipe(rec *recording) error {
	rb, err := gpu.StartReadback(ps.backend, rec.plan, rec.params.Width, rec.params.Height)
	if err != nil {
		return err
	}
	rec.readback = rb

	args := []string{
		"-crf", fmt.Sprintf("%d", rec.params.VideoX264CRF),
		"-preset", rec.params.VideoX264Preset,
		"-o", rec.params.DestFile,
	}
	stdout := ps.encoderStdout
	if stdout == nil {
		stdout = io.Discard
	}
	bufSize := rec.plan.TotalBytes(rec.params.Width, rec.params.Height)
	enc, err := pipeenc.Start(ps.encoderPath, args, stdout, bufSize, pipeenc.DefaultPoolSize)
	if err != nil {
		rb.Stop()
		return err
	}
	rec.sink = &pipeSink{enc: enc}

	if rec.params.AudioEnabled {
		wavPath := rec.params.DestFile[:len(rec.params.DestFile)-len(filepath.Ext(rec.params.DestFile))] + ".wav"
		wav, err := audiosink.Begin(wavPath, rec.params.AudioChannels, rec.params.AudioRate, rec.params.AudioBits)
		if err != nil {
			return err
		}
		rec.wav = wav
	}
	return nil
}

func (ps *ProcState) startTwoProcess(rec *recording) error {
	cp, err := ipc.Open(ps.spawnConfig)
	if err != nil {
		return err
	}
	rec.controlPlane = cp

	sharedTex, err := ps.backend.CreateTexture(gpu.TextureDesc{Width: rec.params.Width, Height: rec.params.Height, ElementBytes: 4, Kind: gpu.TextureShared})
	if err != nil {
		cp.Close()
		return err
	}
	rec.sharedTex = sharedTex

	mutex := &backendKeyedMutex{backend: ps.backend, tex: sharedTex}
	rec.sink = newTwoProcessSink(ps.backend, cp, mutex, sharedTex)

	if err := cp.SendEvent(ipc.EventStart); err != nil {
		return err
	}
	return nil
}

// backendKeyedMutex adapts RenderBackend's keyed-mutex methods (bound to
// one shared texture) to the ipc.KeyedMutex interface.
type backendKeyedMutex struct {
	backend gpu.RenderBackend
	tex     gpu.Handle
}

func (m *backendKeyedMutex) Acquire(key uint32, timeoutMS uint32) error {
	return m.backend.AcquireKeyedMutex(m.tex, key, timeoutMS)
}
func (m *backendKeyedMutex) Release(key uint32) error {
	return m.backend.ReleaseKeyedMutex(m.tex, key)
}

func (ps *ProcState) teardownPartial(rec *recording) {
	if rec.mosampleState != nil {
		rec.mosampleState.Destroy()
	}
	if rec.readback != nil {
		rec.readback.Stop()
	}
	if rec.workTex != 0 {
		ps.backend.DestroyTexture(rec.workTex)
	}
	if rec.sharedTex != 0 {
		ps.backend.DestroyTexture(rec.sharedTex)
	}
	if rec.controlPlane != nil {
		rec.controlPlane.Close()
	}
}

// NewVideoFrame offers one host frame. If motion-sample is enabled it is
// run through the accumulator state machine (spec.md §4.E); otherwise the
// source is copied directly into the work texture and handed to
// processFinishedTex. Per spec.md §7, once a recording has been marked
// stopped by a prior failure, this becomes a no-op.
func (ps *ProcState) NewVideoFrame(source gpu.Handle) error {
	rec := ps.rec
	if rec == nil || rec.stopped {
		return nil
	}

	if rec.mosampleState != nil {
		_, err := rec.mosampleState.Advance(source, func(acc gpu.Handle) error {
			return ps.processFinishedTex(rec, acc)
		})
		if err != nil {
			ps.markStopped(rec, err)
			return err
		}
		return nil
	}

	if err := ps.backend.CopyResource(rec.workTex, source); err != nil {
		ps.markStopped(rec, err)
		return err
	}
	if err := ps.processFinishedTex(rec, rec.workTex); err != nil {
		ps.markStopped(rec, err)
		return err
	}
	return nil
}

// processFinishedTex composes the overlay, then either converts-and-
// downloads to host memory for the pipe encoder, or releases the keyed
// mutex and sends NEW_VIDEO for the two-process encoder.
func (ps *ProcState) processFinishedTex(rec *recording, acc gpu.Handle) error {
	if err := rec.overlay.Compose(ps.backend, acc); err != nil {
		return fmt.Errorf("capture: overlay compose: %w", err)
	}

	rec.frameCount++

	switch rec.params.Codec {
	case CodecExternalPipe:
		buf := make([]byte, rec.plan.TotalBytes(rec.params.Width, rec.params.Height))
		if err := rec.readback.ConvertAndDownload(acc, 0, buf); err != nil {
			return fmt.Errorf("capture: convert and download: %w", err)
		}
		return rec.sink.PushFrame(buf)
	case CodecTwoProcess:
		return rec.sink.PushFrame(acc)
	default:
		return fmt.Errorf("capture: unknown codec kind %v", rec.params.Codec)
	}
}

// NewAudioSamples offers one PCM block, per spec.md §4.I: appended to the
// WAV sink for the pipe variant, or pushed to the pending ring for batched
// sends in the two-process variant.
func (ps *ProcState) NewAudioSamples(samples []int16) error {
	rec := ps.rec
	if rec == nil || rec.stopped || !rec.params.AudioEnabled {
		return nil
	}
	if rec.wav != nil {
		if err := rec.wav.Push(samples); err != nil {
			ps.markStopped(rec, err)
			return err
		}
		return nil
	}
	if err := rec.sink.PushAudio(samples); err != nil {
		ps.markStopped(rec, err)
		return err
	}
	return nil
}

// GiveVelocity updates the HUD's displayed velocity vector.
func (ps *ProcState) GiveVelocity(x, y, z float32) {
	if ps.rec != nil {
		ps.rec.overlay.SetVelocity(x, y, z)
	}
}

// IsVeloEnabled reports whether the current recording's profile enabled
// the HUD overlay.
func (ps *ProcState) IsVeloEnabled() bool {
	return ps.rec != nil && ps.rec.overlayOn
}

// IsAudioEnabled reports whether the current recording accepts audio.
func (ps *ProcState) IsAudioEnabled() bool {
	return ps.rec != nil && ps.rec.params.AudioEnabled
}

// GetGameRate returns the required host-tick rate: output_fps * M if
// motion-sample is enabled, else output_fps.
func (ps *ProcState) GetGameRate() int {
	if ps.rec == nil {
		return 0
	}
	if ps.rec.params.MosampleMult > 1 {
		return ps.rec.params.FPS * ps.rec.params.MosampleMult
	}
	return ps.rec.params.FPS
}

// markStopped records a per-frame failure (spec.md §7's "encoder command
// failure" / "encoder crash" / "host I/O failure" kinds), logs it, and
// marks the recording stopped so subsequent calls become no-ops. It never
// propagates into a panic: the host's render loop must keep running.
func (ps *ProcState) markStopped(rec *recording, err error) {
	if rec.stopped {
		return
	}
	rec.stopped = true
	corelog.EncoderCrash("capture.ProcState", err)
}

// End stops the current recording: flushes trailing audio/video, sends
// STOP, closes the worker thread and frees dynamic resources. Safe to call
// even if a prior per-frame failure already marked the recording stopped.
func (ps *ProcState) End() error {
	rec := ps.rec
	if rec == nil {
		return nil
	}
	ps.rec = nil

	var firstErr error
	record := func(err error) {
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}

	if rec.wav != nil {
		record(rec.wav.End())
	}
	if rec.sink != nil {
		record(rec.sink.End())
	}
	if rec.mosampleState != nil {
		rec.mosampleState.Destroy()
	}
	if rec.readback != nil {
		rec.readback.Stop()
	}
	if rec.workTex != 0 {
		ps.backend.DestroyTexture(rec.workTex)
	}
	if rec.sharedTex != 0 {
		ps.backend.DestroyTexture(rec.sharedTex)
	}
	return firstErr
}

// Shutdown releases static resources created by Init. Call once, when the
// host process is tearing down entirely (not between recordings).
func (ps *ProcState) Shutdown() error {
	ps.backend.Destroy()
	if ps.logCloser != nil {
		return ps.logCloser()
	}
	return nil
}
