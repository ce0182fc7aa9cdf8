package pixfmt

import "testing"

func TestNV12DimensionsAndSize(t *testing.T) {
	plan := Plan(FormatNV12601)
	if len(plan.Planes) != 2 {
		t.Fatalf("NV12 plane count = %d, want 2", len(plan.Planes))
	}
	w0, h0 := plan.Planes[0].Dims(1920, 1080)
	if w0 != 1920 || h0 != 1080 {
		t.Fatalf("plane 0 dims = %dx%d, want 1920x1080", w0, h0)
	}
	w1, h1 := plan.Planes[1].Dims(1920, 1080)
	if w1 != 960 || h1 != 540 {
		t.Fatalf("plane 1 dims = %dx%d, want 960x540", w1, h1)
	}
	const want = 1920*1080 + 960*540*2
	if got := plan.TotalBytes(1920, 1080); got != want {
		t.Fatalf("TotalBytes = %d, want %d", got, want)
	}
}

func TestYUV444NoSubsampling(t *testing.T) {
	plan := Plan(FormatYUV444601)
	for i, p := range plan.Planes {
		w, h := p.Dims(1920, 1080)
		if w != 1920 || h != 1080 {
			t.Fatalf("plane %d dims = %dx%d, want 1920x1080", i, w, h)
		}
	}
}

func TestBGR0SinglePlane(t *testing.T) {
	plan := Plan(FormatBGR0)
	if len(plan.Planes) != 1 {
		t.Fatalf("BGR0 plane count = %d, want 1", len(plan.Planes))
	}
	if plan.Planes[0].ElementBytes != 4 {
		t.Fatalf("BGR0 element bytes = %d, want 4", plan.Planes[0].ElementBytes)
	}
}

func TestUnknownFormatPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic for unknown format")
		}
	}()
	Plan(Format(999))
}
