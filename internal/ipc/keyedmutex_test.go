package ipc

import "testing"

// TestKeyedMutexProtocol verifies property 7: capture (GAME) and encoder
// (ENCODER) alternate ownership strictly, and every acquire is paired with
// a prior release of the other key.
func TestKeyedMutexProtocol(t *testing.T) {
	m := NewFakeKeyedMutex()
	if m.Holder() != KeyGame {
		t.Fatalf("initial holder = %d, want GAME", m.Holder())
	}

	for frame := 0; frame < 5; frame++ {
		// Capture writes (implicitly holds GAME), then releases to ENCODER.
		if err := m.Release(KeyGame); err != nil {
			t.Fatalf("frame %d: release GAME: %v", frame, err)
		}
		// Encoder acquires to read.
		if err := m.Acquire(KeyEncoder, 0); err != nil {
			t.Fatalf("frame %d: acquire ENCODER: %v", frame, err)
		}
		// Encoder releases back.
		if err := m.Release(KeyEncoder); err != nil {
			t.Fatalf("frame %d: release ENCODER: %v", frame, err)
		}
		// Capture reclaims for the next frame.
		if err := m.Acquire(KeyGame, 0); err != nil {
			t.Fatalf("frame %d: acquire GAME: %v", frame, err)
		}
	}

	if m.Holder() != KeyGame {
		t.Fatalf("final holder = %d, want GAME", m.Holder())
	}

	log := m.Log()
	if len(log) != 20 {
		t.Fatalf("expected 20 acquire/release events (4 per frame x 5), got %d", len(log))
	}
}

func TestKeyedMutexRejectsDoubleAcquire(t *testing.T) {
	m := NewFakeKeyedMutex()
	if err := m.Acquire(KeyEncoder, 0); err == nil {
		t.Fatal("expected error acquiring while GAME already holds")
	}
}

func TestKeyedMutexRejectsWrongRelease(t *testing.T) {
	m := NewFakeKeyedMutex()
	if err := m.Release(KeyEncoder); err == nil {
		t.Fatal("expected error releasing a key that does not hold the mutex")
	}
}
