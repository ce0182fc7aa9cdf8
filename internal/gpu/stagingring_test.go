//go:build headless

package gpu

import "testing"

// TestStagingRingProgress verifies property 1: for a ring of depth N >= 2,
// after any number of (copy, advance) operations, Current() never returns a
// texture that is still mapped, and no slot is ever mapped twice
// concurrently.
func TestStagingRingProgress(t *testing.T) {
	backend := NewHeadlessBackend()
	if err := backend.CreateComputeShader("cs_bgr0", []byte{0}); err != nil {
		t.Fatal(err)
	}

	ring, err := NewStagingRing(backend, 4, 16, 16, 4)
	if err != nil {
		t.Fatal(err)
	}
	defer ring.Destroy()

	// The previous frame's slot stays mapped until the next slot has been
	// mapped, as when one frame is read back while the next is copied.
	mappedCount := map[Handle]bool{}
	var prev Handle
	for i := 0; i < 50; i++ {
		cur := ring.Current()
		if mappedCount[cur] {
			t.Fatalf("slot %v mapped twice concurrently at iteration %d", cur, i)
		}
		mapped, err := backend.Map(cur)
		if err != nil {
			t.Fatalf("Map: %v", err)
		}
		mappedCount[cur] = true
		_ = mapped
		if prev != 0 {
			backend.Unmap(prev)
			mappedCount[prev] = false
		}
		prev = cur
		ring.Advance()
	}
	backend.Unmap(prev)
}

func TestStagingRingRejectsNonPowerOfTwo(t *testing.T) {
	backend := NewHeadlessBackend()
	if _, err := NewStagingRing(backend, 3, 16, 16, 4); err == nil {
		t.Fatal("expected error for non-power-of-two depth")
	}
}
