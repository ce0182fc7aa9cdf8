//go:build headless

package capture

import (
	"fmt"
	"testing"

	"github.com/bakapear/svrcore/internal/gpu"
	"github.com/bakapear/svrcore/internal/pixfmt"
)

// fakeSink is an EncoderSink test double that can be made to fail after a
// configured number of accepted frames, simulating an encoder crash.
type fakeSink struct {
	failAfter int // 0 means never fail
	frames    int
	ended     bool
}

func (s *fakeSink) PushFrame(frame any) error {
	s.frames++
	if s.failAfter > 0 && s.frames > s.failAfter {
		return fmt.Errorf("fakeSink: encoder process exited unexpectedly")
	}
	return nil
}

func (s *fakeSink) PushAudio(samples []int16) error { return nil }

func (s *fakeSink) End() error {
	s.ended = true
	return nil
}

func newTestProcState(t *testing.T, width, height int, sink *fakeSink) (*ProcState, *recording, func()) {
	t.Helper()
	backend := gpu.NewHeadlessBackend()
	if err := gpu.CreateShaders(backend); err != nil {
		t.Fatalf("CreateShaders: %v", err)
	}
	dir := t.TempDir()
	ps, err := Init(dir, dir, backend)
	if err != nil {
		t.Fatalf("Init: %v", err)
	}

	plan := pixfmt.Plan(pixfmt.FormatYUV420601)
	rb, err := gpu.StartReadback(backend, plan, width, height)
	if err != nil {
		t.Fatalf("StartReadback: %v", err)
	}
	workTex, err := backend.CreateTexture(gpu.TextureDesc{Width: width, Height: height, ElementBytes: 16, Kind: gpu.TextureDefault})
	if err != nil {
		t.Fatalf("CreateTexture: %v", err)
	}

	rec := &recording{
		params: MovieParams{
			Width: width, Height: height, FPS: 60,
			MosampleMult: 1, MosampleExposure: 1.0,
			Format: pixfmt.FormatYUV420601,
			Codec:  CodecExternalPipe,
		},
		plan:     plan,
		overlay:  NullOverlay{},
		readback: rb,
		workTex:  workTex,
		sink:     sink,
	}
	ps.rec = rec

	cleanup := func() {
		rb.Stop()
		backend.DestroyTexture(workTex)
	}
	return ps, rec, cleanup
}

// srcWithConstantColor allocates and uploads a uniform-colour RGBA32F source
// texture, matching the teacher's use of flat synthetic frames for
// pipeline smoke tests.
func srcWithConstantColor(t *testing.T, backend *gpu.HeadlessBackend, w, h int, r, g, b float32) gpu.Handle {
	t.Helper()
	h2, err := backend.CreateTexture(gpu.TextureDesc{Width: w, Height: h, ElementBytes: 16, Kind: gpu.TextureDefault})
	if err != nil {
		t.Fatalf("CreateTexture: %v", err)
	}
	data := make([]float32, w*h*4)
	for i := 0; i < w*h; i++ {
		data[i*4+0] = r
		data[i*4+1] = g
		data[i*4+2] = b
		data[i*4+3] = 1
	}
	if err := backend.UploadFrame(h2, data); err != nil {
		t.Fatalf("UploadFrame: %v", err)
	}
	return h2
}

// TestPassthroughDeliversFrames is scenario E1: no motion-sample, constant
// source frames, every NewVideoFrame call reaches the sink exactly once and
// End() closes out cleanly.
func TestPassthroughDeliversFrames(t *testing.T) {
	const w, h = 16, 16
	sink := &fakeSink{}
	ps, rec, cleanup := newTestProcState(t, w, h, sink)
	defer cleanup()

	backend := ps.backend.(*gpu.HeadlessBackend)
	src := srcWithConstantColor(t, backend, w, h, 0.5, 0.5, 0.5)
	defer backend.DestroyTexture(src)

	const n = 10
	for i := 0; i < n; i++ {
		if err := ps.NewVideoFrame(src); err != nil {
			t.Fatalf("frame %d: %v", i, err)
		}
	}
	if sink.frames != n {
		t.Fatalf("expected %d frames delivered, got %d", n, sink.frames)
	}
	if rec.frameCount != n {
		t.Fatalf("expected frameCount %d, got %d", n, rec.frameCount)
	}
	if rec.stopped {
		t.Fatal("recording unexpectedly marked stopped")
	}

	if err := ps.End(); err != nil {
		t.Fatalf("End: %v", err)
	}
	if !sink.ended {
		t.Fatal("expected sink.End to be called")
	}
}

// TestEncoderFailureStopsRecordingWithoutPanicking is scenario E5: the
// encoder accepts 10 frames, then the 11th PushFrame fails (simulating a
// crashed child process). GiveFrame must observe and return that failure,
// the recording must be marked stopped, and every subsequent call must
// become a silent no-op rather than retrying against a dead sink or
// panicking the host loop.
func TestEncoderFailureStopsRecordingWithoutPanicking(t *testing.T) {
	const w, h = 16, 16
	sink := &fakeSink{failAfter: 10}
	ps, rec, cleanup := newTestProcState(t, w, h, sink)
	defer cleanup()

	backend := ps.backend.(*gpu.HeadlessBackend)
	src := srcWithConstantColor(t, backend, w, h, 0.2, 0.4, 0.6)
	defer backend.DestroyTexture(src)

	for i := 1; i <= 10; i++ {
		if err := ps.NewVideoFrame(src); err != nil {
			t.Fatalf("frame %d: unexpected error: %v", i, err)
		}
	}
	if rec.stopped {
		t.Fatal("recording marked stopped before the encoder ever failed")
	}

	if err := ps.NewVideoFrame(src); err == nil {
		t.Fatal("expected frame 11 to observe the encoder failure")
	}
	if !rec.stopped {
		t.Fatal("expected recording to be marked stopped after the failure")
	}

	// Further frames and audio become no-ops: no panic, no additional
	// sink calls.
	framesBefore := sink.frames
	if err := ps.NewVideoFrame(src); err != nil {
		t.Fatalf("expected no-op after stop, got error: %v", err)
	}
	if sink.frames != framesBefore {
		t.Fatalf("expected no further PushFrame calls once stopped, got %d -> %d", framesBefore, sink.frames)
	}
	if err := ps.NewAudioSamples([]int16{1, 2, 3}); err != nil {
		t.Fatalf("expected audio no-op after stop, got error: %v", err)
	}

	if err := ps.End(); err != nil {
		t.Fatalf("End after a stopped recording should still succeed, got: %v", err)
	}
}
