//go:build headless

package main

import (
	"fmt"
	"math"

	"github.com/bakapear/svrcore/internal/gpu"
)

// newBackend constructs the pure-Go RenderBackend used by the synthetic
// driver. Building with -tags headless is the supported way to run this
// CLI without a real GPU device, since svrcapture (unlike a real game host)
// has no device of its own to hand the capture core.
func newBackend() (gpu.RenderBackend, func(), error) {
	b := gpu.NewHeadlessBackend()
	return b, func() {}, nil
}

// syntheticSource feeds a pattern of RGBA32F frames into one reused source
// texture via HeadlessBackend.UploadFrame, standing in for the game's
// actual render target in this standalone harness.
type syntheticSource struct {
	backend *gpu.HeadlessBackend
	tex     gpu.Handle
	w, h    int
	pattern string
	pixels  []float32
}

func newFrameSource(backend gpu.RenderBackend, w, h int, pattern string) (frameSource, error) {
	hb, ok := backend.(*gpu.HeadlessBackend)
	if !ok {
		return nil, fmt.Errorf("svrcapture: synthetic pattern injection requires the headless backend")
	}
	tex, err := hb.CreateTexture(gpu.TextureDesc{Width: w, Height: h, ElementBytes: 16, Kind: gpu.TextureDefault})
	if err != nil {
		return nil, err
	}
	return &syntheticSource{
		backend: hb, tex: tex, w: w, h: h, pattern: pattern,
		pixels: make([]float32, w*h*4),
	}, nil
}

// Next renders frame index i into the source texture and returns its
// handle. "grey" is a flat mid-grey frame (scenario E1); "bars" cycles a
// per-column colour bar pattern; "mosample-check" drifts a single bright
// column across the frame over time so accumulated output can be checked
// for the expected blur/positioning (scenario E3).
func (s *syntheticSource) Next(i int) (gpu.Handle, error) {
	switch s.pattern {
	case "bars":
		for y := 0; y < s.h; y++ {
			for x := 0; x < s.w; x++ {
				band := (x + i) % 3
				idx := (y*s.w + x) * 4
				s.pixels[idx+0] = boolToF32(band == 0)
				s.pixels[idx+1] = boolToF32(band == 1)
				s.pixels[idx+2] = boolToF32(band == 2)
				s.pixels[idx+3] = 1
			}
		}
	case "mosample-check":
		col := int(math.Mod(float64(i), float64(s.w)))
		for y := 0; y < s.h; y++ {
			for x := 0; x < s.w; x++ {
				idx := (y*s.w + x) * 4
				v := boolToF32(x == col)
				s.pixels[idx+0], s.pixels[idx+1], s.pixels[idx+2] = v, v, v
				s.pixels[idx+3] = 1
			}
		}
	default: // "grey"
		for i := range s.pixels {
			if (i+1)%4 == 0 {
				s.pixels[i] = 1
			} else {
				s.pixels[i] = 0.5
			}
		}
	}
	if err := s.backend.UploadFrame(s.tex, s.pixels); err != nil {
		return 0, err
	}
	return s.tex, nil
}

func (s *syntheticSource) Close() {
	s.backend.DestroyTexture(s.tex)
}

func boolToF32(b bool) float32 {
	if b {
		return 1
	}
	return 0
}
