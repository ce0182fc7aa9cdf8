package ipc

import (
	"fmt"
	"sync"
)

// KeyedMutex represents spec.md's cross-process GPU texture mutex keyed by
// an integer: only the current key's holder may touch the shared resource.
// No pack example implements a literal D3D11 keyed mutex (there is no
// Vulkan or cross-platform equivalent), so this interface is an explicit
// adaptation: it captures the same Acquire/Release turn-taking contract
// spec.md §4.G and §9 describe, and is satisfied both by
// internal/capture's backendKeyedMutex adapter over a RenderBackend's
// keyed-mutex methods (condition-variable-based in gpu.VulkanBackend) and
// by FakeKeyedMutex below for protocol tests that don't need a real device.
type KeyedMutex interface {
	Acquire(key uint32, timeoutMS uint32) error
	Release(key uint32) error
}

// FakeKeyedMutex is a dependency-free KeyedMutex used to test the protocol
// accounting in property 7 ("capture never writes while not owning GAME;
// encoder never reads while not owning ENCODER") without a GPU device.
type FakeKeyedMutex struct {
	mu     sync.Mutex
	holder uint32 // 0 = unheld
	log    []string
}

// NewFakeKeyedMutex constructs a mutex with GAME as the initial holder, per
// spec.md §4.G step 1 ("Capture acquires GAME at start").
func NewFakeKeyedMutex() *FakeKeyedMutex {
	return &FakeKeyedMutex{holder: KeyGame}
}

func (m *FakeKeyedMutex) Acquire(key uint32, timeoutMS uint32) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.holder != 0 {
		return fmt.Errorf("ipc: keyed mutex held by %d, cannot acquire for %d", m.holder, key)
	}
	m.holder = key
	m.log = append(m.log, fmt.Sprintf("acquire(%d)", key))
	return nil
}

func (m *FakeKeyedMutex) Release(key uint32) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.holder != key {
		return fmt.Errorf("ipc: keyed mutex held by %d, cannot release as %d", m.holder, key)
	}
	m.holder = 0
	m.log = append(m.log, fmt.Sprintf("release(%d)", key))
	return nil
}

// Holder reports the current key holder, 0 if unheld. For test assertions
// only.
func (m *FakeKeyedMutex) Holder() uint32 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.holder
}

// Log returns the recorded acquire/release sequence, for counting
// Acquire/Release pairs per property 7.
func (m *FakeKeyedMutex) Log() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.log))
	copy(out, m.log)
	return out
}
