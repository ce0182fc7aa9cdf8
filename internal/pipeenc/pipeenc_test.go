package pipeenc

import (
	"bytes"
	"testing"
)

// TestPushFrameReachesPipe exercises the producer/consumer worker against a
// real "cat" child process: every pushed frame must arrive, in order, on
// the child's stdout, and End must cleanly join the worker and the
// process.
func TestPushFrameReachesPipe(t *testing.T) {
	var out bytes.Buffer
	enc, err := Start("cat", nil, &out, 64, 4)
	if err != nil {
		t.Skipf("cat not available: %v", err)
	}

	frames := [][]byte{
		[]byte("frame-one"),
		[]byte("frame-two"),
		[]byte("frame-three"),
	}
	for _, f := range frames {
		if err := enc.PushFrame(f); err != nil {
			t.Fatalf("PushFrame: %v", err)
		}
	}
	if err := enc.End(); err != nil {
		t.Fatalf("End: %v", err)
	}

	want := "frame-oneframe-twoframe-three"
	if out.String() != want {
		t.Fatalf("pipe output = %q, want %q", out.String(), want)
	}
}

func TestPushFrameRejectsOversizedFrame(t *testing.T) {
	var out bytes.Buffer
	enc, err := Start("cat", nil, &out, 4, 2)
	if err != nil {
		t.Skipf("cat not available: %v", err)
	}
	defer enc.End()

	if err := enc.PushFrame([]byte("too long for 4 bytes")); err == nil {
		t.Fatal("expected error for oversized frame")
	}
}
