package capture

import (
	"fmt"

	"github.com/bakapear/svrcore/internal/gpu"
	"github.com/bakapear/svrcore/internal/ipc"
	"github.com/bakapear/svrcore/internal/pipeenc"
)

// EncoderSink is spec.md §9's capability trait: the pipeline driver selects
// one of two implementations per MovieParams.Codec. Frame is either a
// []byte (the external-pipe variant's converted plane buffer) or a
// gpu.Handle (the two-process variant's shared GPU texture) — the two
// variants hand off fundamentally different things, so PushFrame takes
// `any` rather than forcing one shape onto the other.
type EncoderSink interface {
	PushFrame(frame any) error
	PushAudio(samples []int16) error
	End() error
}

// pipeSink adapts internal/pipeenc.PipeEncoder (component H) to
// EncoderSink.
type pipeSink struct {
	enc *pipeenc.PipeEncoder
}

func (s *pipeSink) PushFrame(frame any) error {
	data, ok := frame.([]byte)
	if !ok {
		return fmt.Errorf("capture: pipe encoder sink expects []byte frames, got %T", frame)
	}
	return s.enc.PushFrame(data)
}

func (s *pipeSink) PushAudio(samples []int16) error {
	return s.enc.PushAudio(samples)
}

func (s *pipeSink) End() error {
	return s.enc.End()
}

// twoProcessSink adapts the shared-memory control plane (component G) to
// EncoderSink: frames are handed off as a shared GPU texture under the
// keyed-mutex protocol, and audio is batched through a pending ring before
// being flushed to the shared audio buffer, per spec.md §4.G.
type twoProcessSink struct {
	backend  gpu.RenderBackend
	cp       ipc.ControlPlane
	mutex    ipc.KeyedMutex
	sharedTex gpu.Handle

	pending []int16
}

func newTwoProcessSink(backend gpu.RenderBackend, cp ipc.ControlPlane, mutex ipc.KeyedMutex, sharedTex gpu.Handle) *twoProcessSink {
	return &twoProcessSink{backend: backend, cp: cp, mutex: mutex, sharedTex: sharedTex}
}

// PushFrame implements spec.md §4.G's texture handoff protocol: copy the
// finished frame into the shared texture, release GAME (leaving it free for
// ENCODER), send NEW_VIDEO,
// then always reacquire GAME to reclaim the texture for the next frame —
// even along the failure path, per the original's
// encoder_send_shared_tex.
func (s *twoProcessSink) PushFrame(frame any) error {
	h, ok := frame.(gpu.Handle)
	if !ok {
		return fmt.Errorf("capture: two-process encoder sink expects gpu.Handle frames, got %T", frame)
	}
	if err := s.backend.CopyResource(s.sharedTex, h); err != nil {
		return fmt.Errorf("capture: copy into shared texture: %w", err)
	}
	if err := s.mutex.Release(ipc.KeyGame); err != nil {
		return fmt.Errorf("capture: release GAME: %w", err)
	}

	sendErr := s.cp.SendEvent(ipc.EventNewVideo)

	acquireErr := s.mutex.Acquire(ipc.KeyGame, 0)
	if sendErr != nil {
		return sendErr
	}
	return acquireErr
}

func (s *twoProcessSink) PushAudio(samples []int16) error {
	s.pending = append(s.pending, samples...)
	for len(s.pending) >= ipc.EncoderMaxSamples {
		if err := s.flushBatch(ipc.EncoderMaxSamples); err != nil {
			return err
		}
	}
	return nil
}

func (s *twoProcessSink) flushBatch(n int) error {
	if n == 0 {
		return nil
	}
	batch := s.pending[:n]
	if err := s.cp.WriteAudio(batch); err != nil {
		return fmt.Errorf("capture: write audio batch: %w", err)
	}
	if err := s.cp.SendEvent(ipc.EventNewAudio); err != nil {
		return fmt.Errorf("capture: send NEW_AUDIO: %w", err)
	}
	s.pending = s.pending[n:]
	return nil
}

// End flushes any remaining pending samples in a final batch of
// min(pending, MAX), sends STOP, and tears down the control plane, per
// spec.md §4.G / §4.I.
func (s *twoProcessSink) End() error {
	n := len(s.pending)
	if n > ipc.EncoderMaxSamples {
		n = ipc.EncoderMaxSamples
	}
	if err := s.flushBatch(n); err != nil {
		return err
	}
	if err := s.cp.SendEvent(ipc.EventStop); err != nil {
		return err
	}
	return s.cp.Close()
}
