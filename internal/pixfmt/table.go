// Package pixfmt catalogues the encoder-native planar pixel formats the
// capture core can convert into: plane counts, subsampling shifts and
// per-plane element sizes, keyed by a closed enumeration of format tags.
package pixfmt

import "fmt"

// ColorSpace tags the YUV matrix used by a format, where applicable.
type ColorSpace int

const (
	ColorSpaceNone ColorSpace = iota
	ColorSpace601
	ColorSpace709
)

// Format is the closed enumeration of encoder-native pixel formats.
type Format int

const (
	FormatNV12601 Format = iota
	FormatYUV420601
	FormatYUV422601
	FormatYUV444601
	FormatNV12709
	FormatYUV420709
	FormatYUV422709
	FormatYUV444709
	FormatBGR0
)

func (f Format) String() string {
	if s, ok := names[f]; ok {
		return s
	}
	return fmt.Sprintf("Format(%d)", int(f))
}

var names = map[Format]string{
	FormatNV12601:   "nv12_601",
	FormatYUV420601: "yuv420_601",
	FormatYUV422601: "yuv422_601",
	FormatYUV444601: "yuv444_601",
	FormatNV12709:   "nv12_709",
	FormatYUV420709: "yuv420_709",
	FormatYUV422709: "yuv422_709",
	FormatYUV444709: "yuv444_709",
	FormatBGR0:      "bgr0",
}

// ParseFormat resolves a profile's video_pixel_format string (spec.md §6)
// to a Format, defaulting to FormatYUV420601 for an empty string.
func ParseFormat(name string) (Format, error) {
	if name == "" {
		return FormatYUV420601, nil
	}
	for f, s := range names {
		if s == name {
			return f, nil
		}
	}
	return 0, fmt.Errorf("pixfmt: unknown format %q", name)
}

// Plane describes one plane of a ConversionPlan: its element byte size and
// the right-shift applied to the source width/height to obtain this plane's
// dimensions (subsampling).
type Plane struct {
	ElementBytes int
	ShiftX       int
	ShiftY       int
	// ComputeShader names the conversion compute shader entry point that
	// produces this plane. Every plane has its own shader id and is produced
	// by its own dispatch; NV12's interleaved UV plane comes from a single
	// cs_nv12_uv dispatch that writes both bytes of each element.
	ComputeShader string
}

// ConversionPlan is the derived, per-format description of how a source
// RGBA32F frame decomposes into host-buffer planes.
type ConversionPlan struct {
	Format     Format
	ColorSpace ColorSpace
	Planes     []Plane
}

// Dims returns a plane's pixel dimensions given the full source dimensions,
// using floor division as required for odd source dimensions on subsampled
// formats.
func (p Plane) Dims(srcW, srcH int) (w, h int) {
	return srcW >> p.ShiftX, srcH >> p.ShiftY
}

// Bytes returns the tight (no row-pitch padding) byte size of this plane
// given the full source dimensions.
func (p Plane) Bytes(srcW, srcH int) int {
	w, h := p.Dims(srcW, srcH)
	return w * h * p.ElementBytes
}

var plans = map[Format]ConversionPlan{
	FormatYUV420601: {Format: FormatYUV420601, ColorSpace: ColorSpace601, Planes: []Plane{
		{ElementBytes: 1, ShiftX: 0, ShiftY: 0, ComputeShader: "cs_yuv_y"},
		{ElementBytes: 1, ShiftX: 1, ShiftY: 1, ComputeShader: "cs_yuv_u"},
		{ElementBytes: 1, ShiftX: 1, ShiftY: 1, ComputeShader: "cs_yuv_v"},
	}},
	FormatYUV422601: {Format: FormatYUV422601, ColorSpace: ColorSpace601, Planes: []Plane{
		{ElementBytes: 1, ShiftX: 0, ShiftY: 0, ComputeShader: "cs_yuv_y"},
		{ElementBytes: 1, ShiftX: 1, ShiftY: 0, ComputeShader: "cs_yuv_u"},
		{ElementBytes: 1, ShiftX: 1, ShiftY: 0, ComputeShader: "cs_yuv_v"},
	}},
	FormatYUV444601: {Format: FormatYUV444601, ColorSpace: ColorSpace601, Planes: []Plane{
		{ElementBytes: 1, ShiftX: 0, ShiftY: 0, ComputeShader: "cs_yuv_y"},
		{ElementBytes: 1, ShiftX: 0, ShiftY: 0, ComputeShader: "cs_yuv_u"},
		{ElementBytes: 1, ShiftX: 0, ShiftY: 0, ComputeShader: "cs_yuv_v"},
	}},
	FormatNV12601: {Format: FormatNV12601, ColorSpace: ColorSpace601, Planes: []Plane{
		{ElementBytes: 1, ShiftX: 0, ShiftY: 0, ComputeShader: "cs_nv12_y"},
		{ElementBytes: 2, ShiftX: 1, ShiftY: 1, ComputeShader: "cs_nv12_uv"},
	}},
	FormatBGR0: {Format: FormatBGR0, ColorSpace: ColorSpaceNone, Planes: []Plane{
		{ElementBytes: 4, ShiftX: 0, ShiftY: 0, ComputeShader: "cs_bgr0"},
	}},
}

func init() {
	// 709 variants share plane geometry and compute shader ids with their
	// 601 counterparts; only the ColorSpace tag differs.
	for src, dst := range map[Format]Format{
		FormatYUV420601: FormatYUV420709,
		FormatYUV422601: FormatYUV422709,
		FormatYUV444601: FormatYUV444709,
		FormatNV12601:   FormatNV12709,
	} {
		p := plans[src]
		p.Format = dst
		p.ColorSpace = ColorSpace709
		plans[dst] = p
	}
}

// Plan returns the ConversionPlan for a format. It panics on an unknown
// format, since the enumeration is closed and validated at profile-load
// time.
func Plan(f Format) ConversionPlan {
	p, ok := plans[f]
	if !ok {
		panic(fmt.Sprintf("pixfmt: unknown format %v", f))
	}
	return p
}

// TotalBytes returns Σ(plane_w × plane_h × element_size) for the plan given
// full source dimensions — the contiguous host buffer size a readback of
// this format must produce.
func (cp ConversionPlan) TotalBytes(srcW, srcH int) int {
	total := 0
	for _, p := range cp.Planes {
		total += p.Bytes(srcW, srcH)
	}
	return total
}
