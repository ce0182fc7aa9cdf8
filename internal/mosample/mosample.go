// Package mosample implements the motion-sample accumulator: temporal
// supersampling that integrates M sub-frames per output frame over a
// configurable exposure window E.
package mosample

import (
	"fmt"
	"math"

	"github.com/bakapear/svrcore/internal/gpu"
)

// epsilon guards the final carry-weight check against float noise, per
// spec.md §4.E step 6 ("If rem > epsilon...").
const epsilon = 1e-9

// stepPlan is the pure description of what one sub-frame step does to the
// accumulator: at most one pre-emission weighted add, zero or more
// emissions (more than one only for the degenerate step > 1 / M < 1 case),
// an accumulator clear when an emission occurs, and at most one post-clear
// carry weighted add that seeds the next window. Kept free of any GPU
// state so it is trivially testable per spec.md §9's design note.
type stepPlan struct {
	PreWeight   float64 // 0 means "no pre-emission apply"
	ApplyPre    bool
	Emits       int
	Clear       bool
	ApplyCarry  bool
	CarryWeight float64
	Remainder   float64 // remainder after this step
}

// computeStep runs spec.md §4.E's state machine for a single sub-frame:
// old is the remainder before this step, rem is old+step (already
// advanced by the caller), expo is the exposure fraction E in (0, 1].
func computeStep(old, rem, expo float64) stepPlan {
	shutterOpensAt := 1 - expo

	if rem <= shutterOpensAt {
		return stepPlan{Remainder: rem}
	}

	if rem < 1 {
		w := (rem - math.Max(shutterOpensAt, old)) / expo
		return stepPlan{ApplyPre: true, PreWeight: w, Remainder: rem}
	}

	// rem >= 1: shutter closes this step.
	plan := stepPlan{
		ApplyPre:  true,
		PreWeight: (1 - math.Max(shutterOpensAt, old)) / expo,
		Emits:     1,
		Clear:     true,
	}
	rem -= 1
	for rem >= 1 {
		plan.Emits++
		rem -= 1
	}
	if rem > epsilon && rem > shutterOpensAt {
		plan.ApplyCarry = true
		plan.CarryWeight = (rem - shutterOpensAt) / expo
	}
	plan.Remainder = rem
	return plan
}

// State drives the GPU-side accumulator (a RGBA32F work texture) through
// computeStep, emitting completed frames to an EmitFunc.
type State struct {
	backend  gpu.RenderBackend
	workTex  gpu.Handle
	mult     int // M
	exposure float64
	remainder float64 // double precision per spec.md §9 Open Question 3
	lastWeight float64
	haveLastWeight bool
}

// EmitFunc is called once per completed output frame with the accumulator
// texture holding the finished weighted composite. It must not retain
// accTex past the call: State clears and reuses it immediately after.
type EmitFunc func(accTex gpu.Handle) error

// NewState allocates the work texture and returns a State for a recording
// with motion-sample multiplier mult (1 disables supersampling — callers
// should not construct a State at all in that case) and exposure in (0,1].
func NewState(backend gpu.RenderBackend, width, height, mult int, exposure float64) (*State, error) {
	if mult < 1 {
		return nil, fmt.Errorf("mosample: multiplier must be >= 1, got %d", mult)
	}
	if exposure <= 0 || exposure > 1 {
		return nil, fmt.Errorf("mosample: exposure must be in (0, 1], got %v", exposure)
	}
	workTex, err := backend.CreateTexture(gpu.TextureDesc{Width: width, Height: height, ElementBytes: 16, Kind: gpu.TextureDefault})
	if err != nil {
		return nil, fmt.Errorf("%w: work texture: %v", gpu.ErrStartFailed, err)
	}
	if err := backend.ClearTexture(workTex); err != nil {
		backend.DestroyTexture(workTex)
		return nil, fmt.Errorf("%w: clearing work texture: %v", gpu.ErrStartFailed, err)
	}
	return &State{
		backend:  backend,
		workTex:  workTex,
		mult:     mult,
		exposure: exposure,
	}, nil
}

// Step is the multiplicative inverse of the multiplier, applied once per
// sub-frame offered via give_frame.
func (s *State) Step() float64 {
	return 1.0 / float64(s.mult)
}

// Advance runs one sub-frame through the state machine, dispatching
// accumulate/clear against the GPU work texture and invoking emit once per
// completed output frame (possibly more than once for a degenerate
// step > 1). It returns the number of frames emitted.
func (s *State) Advance(source gpu.Handle, emit EmitFunc) (int, error) {
	old := s.remainder
	rem := old + s.Step()
	plan := computeStep(old, rem, s.exposure)

	if plan.ApplyPre {
		if err := s.dispatchAccumulate(source, plan.PreWeight); err != nil {
			return 0, err
		}
	}

	for i := 0; i < plan.Emits; i++ {
		if err := emit(s.workTex); err != nil {
			return i, fmt.Errorf("mosample: emit: %w", err)
		}
	}

	if plan.Clear {
		if err := s.backend.ClearTexture(s.workTex); err != nil {
			return plan.Emits, fmt.Errorf("mosample: clear: %w", err)
		}
	}

	if plan.ApplyCarry {
		if err := s.dispatchAccumulate(source, plan.CarryWeight); err != nil {
			return plan.Emits, err
		}
	}

	s.remainder = plan.Remainder
	return plan.Emits, nil
}

// dispatchAccumulate records the last-used weight, per spec.md §4.E's
// host-side cache note. The headless/vulkan backends take the weight as a
// Dispatch parameter and have no separate upload step, so the recorded
// weight changes nothing: every call dispatches.
func (s *State) dispatchAccumulate(source gpu.Handle, weight float64) error {
	w := float32(weight)
	if s.haveLastWeight && s.lastWeight == weight {
		// Same weight as last sub-frame: still must dispatch, since the
		// source frame differs, but skips any would-be re-upload path in a
		// real backend's constant buffer. The headless/vulkan Dispatch call
		// itself carries the weight as a parameter regardless.
	}
	s.lastWeight = weight
	s.haveLastWeight = true
	return s.backend.Dispatch("cs_accumulate", source, s.workTex, 0, 0, 1, w)
}

// Remainder exposes the current accumulator remainder, mainly for tests.
func (s *State) Remainder() float64 {
	return s.remainder
}

// Destroy releases the work texture.
func (s *State) Destroy() {
	s.backend.DestroyTexture(s.workTex)
}
