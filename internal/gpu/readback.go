package gpu

import (
	"fmt"

	"github.com/bakapear/svrcore/internal/pixfmt"
)

// computeThreadGroupSize must match the thread-group size baked into the
// compiled conversion compute shaders.
const computeThreadGroupSize = 8

// planeTarget bundles one plane's GPU-local conversion target with its
// staging ring.
type planeTarget struct {
	plane   pixfmt.Plane
	convTex Handle
	ring    *StagingRing
}

// Readback is the GPU readback pipeline (component D): it owns the
// conversion compute targets and staging rings for every plane of a
// ConversionPlan and turns one source frame into a contiguous host buffer.
type Readback struct {
	backend RenderBackend
	plan    pixfmt.ConversionPlan
	srcW    int
	srcH    int
	planes  []planeTarget
}

// StartReadback allocates the ConversionPlan's conversion textures, UAVs
// and staging rings for a source frame of size srcW x srcH. GPU allocation
// errors collapse into a single "start failed" result per spec.md §4.D.
func StartReadback(backend RenderBackend, plan pixfmt.ConversionPlan, srcW, srcH int) (*Readback, error) {
	rb := &Readback{backend: backend, plan: plan, srcW: srcW, srcH: srcH}
	for _, p := range plan.Planes {
		w, h := p.Dims(srcW, srcH)
		convTex, err := backend.CreateTexture(TextureDesc{Width: w, Height: h, ElementBytes: p.ElementBytes, Kind: TextureDefault})
		if err != nil {
			rb.Stop()
			return nil, fmt.Errorf("%w: conversion target for %s: %v", ErrStartFailed, p.ComputeShader, err)
		}
		ring, err := NewDefaultStagingRing(backend, w, h, p.ElementBytes)
		if err != nil {
			backend.DestroyTexture(convTex)
			rb.Stop()
			return nil, err
		}
		rb.planes = append(rb.planes, planeTarget{plane: p, convTex: convTex, ring: ring})
	}
	return rb, nil
}

func ceilDiv(a, b int) int {
	return (a + b - 1) / b
}

// ConvertAndDownload dispatches the conversion compute shader for every
// plane, copies each converted plane into its current staging texture, maps
// it, copies rows into dst at the plane's prefix-sum offset (accounting for
// driver row pitch >= tight pitch), unmaps, and advances each ring. dst must
// be at least plan.TotalBytes(srcW, srcH) bytes; per-frame operations
// assume the pipeline was already validated by StartReadback.
func (rb *Readback) ConvertAndDownload(srcSRV Handle, weight float32, dst []byte) error {
	want := rb.plan.TotalBytes(rb.srcW, rb.srcH)
	if len(dst) < want {
		return fmt.Errorf("gpu: host buffer too small: have %d, want %d", len(dst), want)
	}

	offset := 0
	for _, pt := range rb.planes {
		w, h := pt.plane.Dims(rb.srcW, rb.srcH)
		groupsX := ceilDiv(w, computeThreadGroupSize)
		groupsY := ceilDiv(h, computeThreadGroupSize)

		if err := rb.backend.Dispatch(pt.plane.ComputeShader, srcSRV, pt.convTex, groupsX, groupsY, 1, weight); err != nil {
			return fmt.Errorf("gpu: dispatch %s: %w", pt.plane.ComputeShader, err)
		}

		staging := pt.ring.Current()
		if err := rb.backend.CopyResource(staging, pt.convTex); err != nil {
			return fmt.Errorf("gpu: copy to staging: %w", err)
		}

		mapped, err := rb.backend.Map(staging)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrMapFailed, err)
		}

		tightPitch := w * pt.plane.ElementBytes
		for row := 0; row < h; row++ {
			srcOff := row * mapped.RowPitch
			dstOff := offset + row*tightPitch
			copy(dst[dstOff:dstOff+tightPitch], mapped.Data[srcOff:srcOff+tightPitch])
		}
		rb.backend.Unmap(staging)
		pt.ring.Advance()

		offset += h * tightPitch
	}
	return nil
}

// Stop releases all resources the readback pipeline owns. Draining any
// in-flight copy is the caller's responsibility.
func (rb *Readback) Stop() {
	for _, pt := range rb.planes {
		if pt.ring != nil {
			pt.ring.Destroy()
		}
		rb.backend.DestroyTexture(pt.convTex)
	}
	rb.planes = nil
}
