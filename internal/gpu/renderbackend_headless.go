//go:build headless

package gpu

import (
	"fmt"
	"math"
	"sync"
)

// HeadlessBackend is a pure-Go RenderBackend used where no GPU device is
// available: CI, unit tests, and the cmd/svrcapture synthetic driver. It
// performs the same conversion math a real compute shader would, against
// plain Go slices, mirroring the teacher's real-backend/headless-backend
// split (voodoo_vulkan.go / voodoo_vulkan_headless.go) rather than stubbing
// methods out to no-ops: the pixel math itself is worth exercising without
// a GPU.
//
// Staging textures here simulate a driver-imposed row pitch wider than the
// tight pitch, so that tests over this backend genuinely exercise the
// pitch-stripping logic in Readback.ConvertAndDownload rather than taking a
// degenerate pitch == tight-pitch shortcut.
const headlessRowPitchPad = 16

type headlessTexture struct {
	desc   TextureDesc
	pitch  int // bytes per row as "reported by the driver"
	data   []byte
	mapped bool
}

// HeadlessBackend implements RenderBackend over in-process memory.
type HeadlessBackend struct {
	mu       sync.Mutex
	textures map[Handle]*headlessTexture
	shaders  map[string]bool
	next     Handle
	mutexKey map[Handle]uint32 // current keyed-mutex holder per shared texture, 0 = unheld
}

// NewHeadlessBackend constructs an empty backend.
func NewHeadlessBackend() *HeadlessBackend {
	return &HeadlessBackend{
		textures: make(map[Handle]*headlessTexture),
		shaders:  make(map[string]bool),
		mutexKey: make(map[Handle]uint32),
	}
}

func (b *HeadlessBackend) CreateComputeShader(id string, spirv []byte) error {
	if id == "" {
		return fmt.Errorf("gpu: empty compute shader id")
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.shaders[id] = true
	return nil
}

func (b *HeadlessBackend) CreateTexture(desc TextureDesc) (Handle, error) {
	if desc.Width <= 0 || desc.Height <= 0 || desc.ElementBytes <= 0 {
		return 0, fmt.Errorf("gpu: invalid texture desc %+v", desc)
	}
	tight := desc.Width * desc.ElementBytes
	pitch := tight
	if desc.Kind == TextureStaging {
		pitch += headlessRowPitchPad
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.next++
	h := b.next
	b.textures[h] = &headlessTexture{
		desc:  desc,
		pitch: pitch,
		data:  make([]byte, pitch*desc.Height),
	}
	if desc.Kind == TextureShared {
		b.mutexKey[h] = 1 // GAME holds the shared texture initially, per spec.md §4.G
	}
	return h, nil
}

func (b *HeadlessBackend) DestroyTexture(h Handle) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.textures, h)
	delete(b.mutexKey, h)
}

// UploadFrame writes a synthetic RGBA32F source frame (4 float32 per pixel,
// row-major, tight pitch) into a texture created with ElementBytes 16. It
// is not part of RenderBackend: it exists so cmd/svrcapture and tests can
// feed frames into a texture the way a real GPU render would.
func (b *HeadlessBackend) UploadFrame(h Handle, rgba []float32) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	tex, ok := b.textures[h]
	if !ok {
		return fmt.Errorf("gpu: unknown texture %v", h)
	}
	want := tex.desc.Width * tex.desc.Height * 4
	if len(rgba) != want {
		return fmt.Errorf("gpu: UploadFrame expected %d float32s, got %d", want, len(rgba))
	}
	for i, v := range rgba {
		putFloat32(tex.data[i*4:], v)
	}
	return nil
}

// ReadFrame is the inverse of UploadFrame, used by tests to inspect an
// accumulator or conversion target.
func (b *HeadlessBackend) ReadFrame(h Handle) ([]float32, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	tex, ok := b.textures[h]
	if !ok {
		return nil, fmt.Errorf("gpu: unknown texture %v", h)
	}
	out := make([]float32, tex.desc.Width*tex.desc.Height*4)
	for i := range out {
		out[i] = getFloat32(tex.data[i*4:])
	}
	return out, nil
}

func putFloat32(b []byte, f float32) {
	bits := math.Float32bits(f)
	b[0] = byte(bits)
	b[1] = byte(bits >> 8)
	b[2] = byte(bits >> 16)
	b[3] = byte(bits >> 24)
}

func getFloat32(b []byte) float32 {
	bits := uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
	return math.Float32frombits(bits)
}

// Dispatch runs one of the fixed conversion/accumulation kernels identified
// by shaderID against the source and destination textures' own recorded
// dimensions (the group counts are accepted for RenderBackend parity with a
// real dispatch call but are not otherwise consulted).
func (b *HeadlessBackend) Dispatch(shaderID string, srcSRV, dstUAV Handle, groupsX, groupsY, groupsZ int, weight float32) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.shaders[shaderID] {
		return fmt.Errorf("gpu: compute shader %q not created", shaderID)
	}
	src, ok := b.textures[srcSRV]
	if !ok {
		return fmt.Errorf("gpu: unknown source texture %v", srcSRV)
	}
	dst, ok := b.textures[dstUAV]
	if !ok {
		return fmt.Errorf("gpu: unknown destination texture %v", dstUAV)
	}

	switch shaderID {
	case "cs_accumulate":
		return dispatchAccumulate(src, dst, weight)
	case "cs_yuv_y", "cs_yuv_u", "cs_yuv_v", "cs_nv12_y", "cs_nv12_uv", "cs_bgr0":
		return dispatchConvert(shaderID, src, dst)
	default:
		return fmt.Errorf("gpu: unknown compute shader %q", shaderID)
	}
}

func dispatchAccumulate(src, dst *headlessTexture, weight float32) error {
	if dst.desc.ElementBytes != 16 || src.desc.ElementBytes != 16 {
		return fmt.Errorf("gpu: cs_accumulate requires RGBA32F source and target")
	}
	if dst.desc.Width != src.desc.Width || dst.desc.Height != src.desc.Height {
		return fmt.Errorf("gpu: cs_accumulate size mismatch")
	}
	n := dst.desc.Width * dst.desc.Height * 4
	for i := 0; i < n; i++ {
		cur := getFloat32(dst.data[i*4:])
		add := getFloat32(src.data[i*4:])
		putFloat32(dst.data[i*4:], cur+weight*add)
	}
	return nil
}

// rgbaToYUV converts one RGBA32F pixel (0..1 range) to BT.601-ish Y, U, V in
// 0..255 range. Both colour-space tags share this matrix in the headless
// backend: the distinction matters for a real encoder's bitstream tagging,
// not for the arithmetic exercised by tests.
func rgbaToYUV(r, g, b float32) (y, u, v byte) {
	yf := 0.299*r + 0.587*g + 0.114*b
	uf := -0.169*r - 0.331*g + 0.5*b + 0.5
	vf := 0.5*r - 0.419*g - 0.081*b + 0.5
	return clamp8(yf), clamp8(uf), clamp8(vf)
}

func clamp8(f float32) byte {
	v := f * 255.0
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return byte(v + 0.5)
}

func dispatchConvert(shaderID string, src, dst *headlessTexture) error {
	sw, sh := src.desc.Width, src.desc.Height
	dw, dh := dst.desc.Width, dst.desc.Height
	shiftX, shiftY := 0, 0
	for shiftX < 16 && sw>>shiftX != dw {
		shiftX++
	}
	for shiftY < 16 && sh>>shiftY != dh {
		shiftY++
	}

	for y := 0; y < dh; y++ {
		for x := 0; x < dw; x++ {
			sx, sy := x<<shiftX, y<<shiftY
			pi := (sy*sw + sx) * 4
			r := getFloat32(src.data[pi*4:])
			g := getFloat32(src.data[(pi+1)*4:])
			bl := getFloat32(src.data[(pi+2)*4:])
			yy, uu, vv := rgbaToYUV(r, g, bl)

			di := y*dst.pitch + x*dst.desc.ElementBytes
			switch shaderID {
			case "cs_yuv_y", "cs_nv12_y":
				dst.data[di] = yy
			case "cs_yuv_u":
				dst.data[di] = uu
			case "cs_yuv_v":
				dst.data[di] = vv
			case "cs_nv12_uv":
				dst.data[di] = uu
				dst.data[di+1] = vv
			case "cs_bgr0":
				dst.data[di] = clamp8(bl)
				dst.data[di+1] = clamp8(g)
				dst.data[di+2] = clamp8(r)
				dst.data[di+3] = 0
			}
		}
	}
	return nil
}

func (b *HeadlessBackend) CopyResource(dst, src Handle) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	s, ok := b.textures[src]
	if !ok {
		return fmt.Errorf("gpu: unknown source texture %v", src)
	}
	d, ok := b.textures[dst]
	if !ok {
		return fmt.Errorf("gpu: unknown destination texture %v", dst)
	}
	if d.desc.Width != s.desc.Width || d.desc.Height != s.desc.Height {
		return fmt.Errorf("gpu: CopyResource size mismatch")
	}
	tight := s.desc.Width * s.desc.ElementBytes
	for row := 0; row < s.desc.Height; row++ {
		srcOff := row * s.pitch
		dstOff := row * d.pitch
		copy(d.data[dstOff:dstOff+tight], s.data[srcOff:srcOff+tight])
	}
	return nil
}

func (b *HeadlessBackend) ClearTexture(h Handle) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	tex, ok := b.textures[h]
	if !ok {
		return fmt.Errorf("gpu: unknown texture %v", h)
	}
	if tex.desc.ElementBytes == 16 {
		n := tex.desc.Width * tex.desc.Height
		for i := 0; i < n; i++ {
			off := i * 16
			putFloat32(tex.data[off:], 0)
			putFloat32(tex.data[off+4:], 0)
			putFloat32(tex.data[off+8:], 0)
			putFloat32(tex.data[off+12:], 1)
		}
		return nil
	}
	for i := range tex.data {
		tex.data[i] = 0
	}
	return nil
}

func (b *HeadlessBackend) Map(h Handle) (MappedTexture, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	tex, ok := b.textures[h]
	if !ok {
		return MappedTexture{}, fmt.Errorf("%w: unknown texture %v", ErrMapFailed, h)
	}
	if tex.mapped {
		return MappedTexture{}, fmt.Errorf("%w: texture %v already mapped", ErrMapFailed, h)
	}
	tex.mapped = true
	return MappedTexture{Data: tex.data, RowPitch: tex.pitch}, nil
}

func (b *HeadlessBackend) Unmap(h Handle) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if tex, ok := b.textures[h]; ok {
		tex.mapped = false
	}
}

func (b *HeadlessBackend) AcquireKeyedMutex(h Handle, key uint32, timeoutMS uint32) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	holder, ok := b.mutexKey[h]
	if !ok {
		return fmt.Errorf("gpu: texture %v is not a shared/keyed-mutex texture", h)
	}
	if holder != 0 && holder != key {
		return fmt.Errorf("gpu: keyed mutex held by %d, cannot acquire for %d", holder, key)
	}
	b.mutexKey[h] = key
	return nil
}

func (b *HeadlessBackend) ReleaseKeyedMutex(h Handle, key uint32) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	holder, ok := b.mutexKey[h]
	if !ok {
		return fmt.Errorf("gpu: texture %v is not a shared/keyed-mutex texture", h)
	}
	if holder != key {
		return fmt.Errorf("gpu: keyed mutex held by %d, cannot release as %d", holder, key)
	}
	b.mutexKey[h] = 0
	return nil
}

func (b *HeadlessBackend) Destroy() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.textures = make(map[Handle]*headlessTexture)
	b.shaders = make(map[string]bool)
	b.mutexKey = make(map[Handle]uint32)
}
