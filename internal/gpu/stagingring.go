package gpu

import "fmt"

// StagingRing rotates N GPU staging textures for one conversion plane,
// decoupling CopyResource (GPU-local -> staging) from Map (staging -> host)
// so one frame's copy can run while the previous frame's map is still in
// flight. N must be a power of two so advancing is a cheap mask.
type StagingRing struct {
	backend  RenderBackend
	textures []Handle
	index    int
	mask     int
}

// defaultRingDepth matches spec.md §3's "N a power of two; default 2".
const defaultRingDepth = 2

// NewStagingRing allocates depth staging textures sized for one plane. depth
// must be a power of two.
func NewStagingRing(backend RenderBackend, depth int, w, h, elementBytes int) (*StagingRing, error) {
	if depth <= 0 || depth&(depth-1) != 0 {
		return nil, fmt.Errorf("gpu: staging ring depth %d is not a power of two", depth)
	}
	r := &StagingRing{backend: backend, mask: depth - 1}
	for i := 0; i < depth; i++ {
		h, err := backend.CreateTexture(TextureDesc{Width: w, Height: h, ElementBytes: elementBytes, Kind: TextureStaging})
		if err != nil {
			for _, prior := range r.textures {
				backend.DestroyTexture(prior)
			}
			return nil, fmt.Errorf("%w: staging texture %d/%d: %v", ErrStartFailed, i, depth, err)
		}
		r.textures = append(r.textures, h)
	}
	return r, nil
}

// NewDefaultStagingRing is a convenience constructor using defaultRingDepth.
func NewDefaultStagingRing(backend RenderBackend, w, h, elementBytes int) (*StagingRing, error) {
	return NewStagingRing(backend, defaultRingDepth, w, h, elementBytes)
}

// Current returns the texture addressed by the current index.
func (r *StagingRing) Current() Handle {
	return r.textures[r.index]
}

// Advance increments the index modulo the ring depth.
func (r *StagingRing) Advance() {
	r.index = (r.index + 1) & r.mask
}

// Depth reports the ring's fixed size.
func (r *StagingRing) Depth() int {
	return len(r.textures)
}

// Destroy releases every texture in the ring. Callers must hold the
// pipeline open until all in-flight copies drain before calling this, per
// spec.md §4.B — the ring has no cancellation semantics.
func (r *StagingRing) Destroy() {
	for _, h := range r.textures {
		r.backend.DestroyTexture(h)
	}
	r.textures = nil
}
