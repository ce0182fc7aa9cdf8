package capture

import (
	"sync"

	"github.com/bakapear/svrcore/internal/gpu"
)

// Overlay is the text/velocity HUD surface spec.md §1 treats as an
// out-of-scope external collaborator: "its only contract is compose onto
// the shared texture before hand-off". This minimal interface is that one
// contract point, grounded on the teacher's video compositor (its
// RegisterSource/refresh-loop shape, reduced here to the single Compose
// call spec.md actually obligates the capture core to make).
type Overlay interface {
	// SetVelocity updates the HUD's displayed velocity vector.
	SetVelocity(x, y, z float32)
	// Compose draws the HUD onto acc, which holds the finished (or
	// in-progress, for the no-mosample path) frame prior to hand-off to
	// the readback/encoder stage.
	Compose(backend gpu.RenderBackend, acc gpu.Handle) error
}

// NullOverlay is the default Overlay when a profile has overlay disabled:
// SetVelocity is retained (the host may still call give_velocity
// unconditionally) but Compose is a no-op.
type NullOverlay struct{}

func (NullOverlay) SetVelocity(x, y, z float32)                             {}
func (NullOverlay) Compose(backend gpu.RenderBackend, acc gpu.Handle) error { return nil }

// velocityOverlay is a minimal enabled Overlay: it tracks the last velocity
// given to it behind a mutex (mirroring the teacher compositor's
// mutex-guarded shared state). Its Compose reads that velocity and draws
// nothing: no backend dispatch is made, since the HUD's rendering itself is
// explicitly out of scope — only that it is composed before hand-off.
type velocityOverlay struct {
	mu  sync.Mutex
	x, y, z float32
}

// NewVelocityOverlay returns an Overlay that records velocity updates. Its
// Compose leaves the frame unchanged; no HUD shader is dispatched.
func NewVelocityOverlay() Overlay {
	return &velocityOverlay{}
}

func (o *velocityOverlay) SetVelocity(x, y, z float32) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.x, o.y, o.z = x, y, z
}

func (o *velocityOverlay) velocity() (float32, float32, float32) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.x, o.y, o.z
}

func (o *velocityOverlay) Compose(backend gpu.RenderBackend, acc gpu.Handle) error {
	// The HUD's own drawing is out of scope (spec.md §1); composing here
	// is limited to the documented contract of running after the
	// accumulator/work texture is finished and before readback begins.
	_, _, _ = o.velocity()
	return nil
}
