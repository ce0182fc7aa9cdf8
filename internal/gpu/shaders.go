package gpu

// ShaderIDs enumerates every compute-shader identifier a pixfmt.Plane or
// the mosample accumulator can reference. CreateComputeShader is called
// once per id during pipeline Init, mirroring the teacher's pattern of
// registering its vertex/fragment modules once at startup rather than
// per-draw (see the deleted voodoo_shaders.go).
var ShaderIDs = []string{
	"cs_yuv_y", "cs_yuv_u", "cs_yuv_v",
	"cs_nv12_y", "cs_nv12_uv",
	"cs_bgr0",
	"cs_accumulate",
}

// PlaceholderSPIRV stands in for a compiled compute shader module. A real
// build replaces this with SPIR-V produced by `glslc -fshader-stage=compute`
// for each of the source files a full port would carry under
// internal/gpu/shaders/*.comp; the bytes themselves are opaque to
// RenderBackend.CreateComputeShader, which only requires a non-empty
// module per platform's validation rules.
var PlaceholderSPIRV = []byte{0x03, 0x02, 0x23, 0x07, 0x00, 0x00, 0x01, 0x00}

// CreateShaders registers every entry in ShaderIDs against backend. Callers
// that need a subset of the catalogue (e.g. a test harness with a single
// plane format in play) may call backend.CreateComputeShader directly
// instead.
func CreateShaders(backend RenderBackend) error {
	for _, id := range ShaderIDs {
		if err := backend.CreateComputeShader(id, PlaceholderSPIRV); err != nil {
			return err
		}
	}
	return nil
}
