// Package gpu implements the GPU readback pipeline: the staging texture
// ring, the RenderBackend capability interface, and the compute-dispatch +
// row-copy readback that turns a converted frame into a contiguous host
// buffer.
package gpu

import "errors"

// ErrMapFailed is returned by Map when a staging texture's copy has not
// completed or the driver otherwise refuses the map. It is fatal to the
// current recording but must never crash the host.
var ErrMapFailed = errors.New("gpu: staging texture map failed")

// ErrStartFailed wraps any GPU allocation error encountered during backend
// or readback Start, collapsing shader/texture/view creation failures into
// the single "start failed" result the design calls for.
var ErrStartFailed = errors.New("gpu: start failed")

// TextureKind selects the memory domain and usage of a texture created
// through RenderBackend.CreateTexture.
type TextureKind int

const (
	// TextureDefault is a GPU-local read/write resource (e.g. a UAV
	// conversion target or the mosample work texture).
	TextureDefault TextureKind = iota
	// TextureStaging is host-visible, used as a CopyResource destination
	// before Map.
	TextureStaging
	// TextureShared is a cross-process, keyed-mutex-guarded resource used
	// by the two-process capture<->encoder variant.
	TextureShared
)

// TextureDesc describes a texture to allocate.
type TextureDesc struct {
	Width, Height int
	ElementBytes  int
	Kind          TextureKind
}

// Handle is an opaque reference to a backend-owned texture.
type Handle uint64

// MappedTexture is the result of Map: a host-visible view of a staging
// texture's current contents plus the driver-reported row pitch, which may
// be larger than the tight (unpadded) pitch.
type MappedTexture struct {
	Data     []byte
	RowPitch int
}

// RenderBackend is the minimal capability interface spec.md §9 calls for:
// platform-specific GPU bindings abstracted behind create-shader, dispatch,
// create-texture (default/staging/shared), map/unmap, copy-resource,
// create-views and keyed-mutex acquire/release. VulkanBackend and
// HeadlessBackend are its two implementations.
type RenderBackend interface {
	// CreateComputeShader registers a conversion compute shader under an
	// identifier drawn from a pixfmt.Plane.ComputeShader tag.
	CreateComputeShader(id string, spirv []byte) error

	// CreateTexture allocates a GPU resource per desc and returns its
	// handle.
	CreateTexture(desc TextureDesc) (Handle, error)

	// DestroyTexture releases a texture created by CreateTexture.
	DestroyTexture(h Handle)

	// Dispatch runs the named conversion compute shader over srcSRV,
	// writing into dstUAV, in ceil(W/8) x ceil(H/8) x 1 thread groups.
	// weight carries the mosample blend factor for accumulation shaders and
	// is ignored by plain conversion shaders.
	Dispatch(shaderID string, srcSRV, dstUAV Handle, groupsX, groupsY, groupsZ int, weight float32) error

	// CopyResource copies a GPU-local conversion target into a staging
	// texture.
	CopyResource(dst, src Handle) error

	// ClearTexture resets an RGBA32F texture to (0, 0, 0, 1), the mosample
	// accumulator's post-emission clear.
	ClearTexture(h Handle) error

	// Map returns a host-visible view of a staging texture. Returns
	// ErrMapFailed if the copy has not completed or the driver refuses.
	Map(h Handle) (MappedTexture, error)

	// Unmap releases the view returned by Map.
	Unmap(h Handle)

	// AcquireKeyedMutex makes key the shared texture's holder. Neither
	// backend consults timeoutMS: VulkanBackend waits with no time limit
	// until the texture is unheld (or already held by key), and
	// HeadlessBackend returns an error at once if another key holds it.
	AcquireKeyedMutex(h Handle, key uint32, timeoutMS uint32) error

	// ReleaseKeyedMutex gives up the shared texture. key must be the
	// current holder; the texture is left unheld, free for any key to
	// acquire.
	ReleaseKeyedMutex(h Handle, key uint32) error

	// Destroy releases all backend-owned static resources.
	Destroy()
}
