//go:build headless

package gpu

import (
	"testing"

	"github.com/bakapear/svrcore/internal/pixfmt"
)

func setupBackend(t *testing.T) *HeadlessBackend {
	t.Helper()
	b := NewHeadlessBackend()
	for _, id := range []string{"cs_yuv_y", "cs_yuv_u", "cs_yuv_v", "cs_nv12_y", "cs_nv12_uv", "cs_bgr0", "cs_accumulate"} {
		if err := b.CreateComputeShader(id, []byte{0, 1, 2, 3}); err != nil {
			t.Fatal(err)
		}
	}
	return b
}

func uniformFrame(w, h int, r, g, bl float32) []float32 {
	out := make([]float32, w*h*4)
	for i := 0; i < w*h; i++ {
		out[i*4+0] = r
		out[i*4+1] = g
		out[i*4+2] = bl
		out[i*4+3] = 1
	}
	return out
}

// TestReadbackTightnessNV12 verifies property 2 and scenario E6: for a
// 1920x1080 NV12 plan, ConvertAndDownload writes exactly
// 1920*1080 + 960*540*2 = 3,110,400 bytes with no gaps, even though the
// headless backend's staging textures carry a driver row-pitch pad wider
// than the tight pitch.
func TestReadbackTightnessNV12(t *testing.T) {
	backend := setupBackend(t)
	const w, h = 1920, 1080

	srcTex, err := backend.CreateTexture(TextureDesc{Width: w, Height: h, ElementBytes: 16, Kind: TextureDefault})
	if err != nil {
		t.Fatal(err)
	}
	if err := backend.UploadFrame(srcTex, uniformFrame(w, h, 0.5, 0.5, 0.5)); err != nil {
		t.Fatal(err)
	}

	plan := pixfmt.Plan(pixfmt.FormatNV12601)
	rb, err := StartReadback(backend, plan, w, h)
	if err != nil {
		t.Fatal(err)
	}
	defer rb.Stop()

	const want = w*h + (w/2)*(h/2)*2
	buf := make([]byte, want)
	if err := rb.ConvertAndDownload(srcTex, 1.0, buf); err != nil {
		t.Fatal(err)
	}
	if got := plan.TotalBytes(w, h); got != want {
		t.Fatalf("plan.TotalBytes = %d, want %d", got, want)
	}
	// Mid-grey converts to non-zero Y, U and V bytes while the staging
	// row-pitch pad stays zero, so a zero byte means a gap or pad leaked in.
	for i, v := range buf {
		if v == 0 {
			t.Fatalf("byte %d of %d is zero: gap in the tight buffer", i, want)
		}
	}
}

// TestReadbackSmallerBufferRejected ensures ConvertAndDownload refuses to
// write past a too-small destination rather than overrunning it.
func TestReadbackSmallerBufferRejected(t *testing.T) {
	backend := setupBackend(t)
	const w, h = 64, 64

	srcTex, err := backend.CreateTexture(TextureDesc{Width: w, Height: h, ElementBytes: 16, Kind: TextureDefault})
	if err != nil {
		t.Fatal(err)
	}
	if err := backend.UploadFrame(srcTex, uniformFrame(w, h, 1, 1, 1)); err != nil {
		t.Fatal(err)
	}

	plan := pixfmt.Plan(pixfmt.FormatBGR0)
	rb, err := StartReadback(backend, plan, w, h)
	if err != nil {
		t.Fatal(err)
	}
	defer rb.Stop()

	tooSmall := make([]byte, 4)
	if err := rb.ConvertAndDownload(srcTex, 1.0, tooSmall); err == nil {
		t.Fatal("expected error for undersized buffer")
	}
}

// TestReadbackOddDimensionsFloorDivide exercises the documented edge case:
// subsampled chroma planes use floor division on odd source dimensions.
func TestReadbackOddDimensionsFloorDivide(t *testing.T) {
	plan := pixfmt.Plan(pixfmt.FormatYUV420601)
	w, h := plan.Planes[1].Dims(1921, 1081)
	if w != 960 || h != 540 {
		t.Fatalf("chroma dims = %dx%d, want 960x540 (floor of 1921/2 x 1081/2)", w, h)
	}
}
