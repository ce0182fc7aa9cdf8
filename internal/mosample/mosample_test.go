package mosample

import (
	"math"
	"testing"
)

// TestWeightSumPerWindow verifies property 3: across the M sub-frames that
// contribute to one output frame, the sum of applied weights equals 1
// within epsilon, for a range of M and exposure values.
func TestWeightSumPerWindow(t *testing.T) {
	cases := []struct {
		mult int
		expo float64
	}{
		{1, 1.0},
		{16, 1.0},
		{16, 0.5},
		{7, 0.3},
		{60, 0.8},
	}
	for _, c := range cases {
		rem := 0.0
		step := 1.0 / float64(c.mult)
		sum := 0.0
		emits := 0
		// Drive exactly one full window (until the first emission).
		for i := 0; i < c.mult*4 && emits == 0; i++ {
			old := rem
			rem += step
			plan := computeStep(old, rem, c.expo)
			if plan.ApplyPre {
				sum += plan.PreWeight
			}
			if plan.ApplyCarry {
				sum += plan.CarryWeight
			}
			emits += plan.Emits
			rem = plan.Remainder
		}
		if emits == 0 {
			t.Fatalf("mult=%d expo=%v: no emission observed", c.mult, c.expo)
		}
		if math.Abs(sum-1) > 1e-6 {
			t.Fatalf("mult=%d expo=%v: weight sum = %v, want 1", c.mult, c.expo, sum)
		}
	}
}

// TestEmissionRate verifies property 4: offering T*M sub-frames emits
// exactly T output frames when M divides evenly.
func TestEmissionRate(t *testing.T) {
	const mult = 16
	const expo = 1.0
	const t_ = 60

	rem := 0.0
	step := 1.0 / float64(mult)
	totalEmits := 0
	for i := 0; i < t_*mult; i++ {
		old := rem
		rem += step
		plan := computeStep(old, rem, expo)
		totalEmits += plan.Emits
		rem = plan.Remainder
	}
	if totalEmits != t_ {
		t.Fatalf("emitted %d frames, want %d", totalEmits, t_)
	}
}

// TestEmissionRateNonDivisible checks the cumulative emission count never
// drifts by more than one frame from the ideal T*i/M at any prefix, for a
// multiplier that does not evenly divide the offered count.
func TestEmissionRateNonDivisible(t *testing.T) {
	const mult = 7
	const expo = 1.0
	const n = 500

	rem := 0.0
	step := 1.0 / float64(mult)
	totalEmits := 0
	for i := 1; i <= n; i++ {
		old := rem
		rem += step
		plan := computeStep(old, rem, expo)
		totalEmits += plan.Emits
		rem = plan.Remainder

		ideal := float64(i) / float64(mult)
		if math.Abs(float64(totalEmits)-ideal) > 1.0 {
			t.Fatalf("after %d sub-frames: emitted %d, ideal %v (drift > 1)", i, totalEmits, ideal)
		}
	}
}

// TestExposureHalfStillNormalises exercises E3: exposure 0.5 still
// normalises to a full-weight composite.
func TestExposureHalfStillNormalises(t *testing.T) {
	const mult = 16
	const expo = 0.5

	rem := 0.0
	step := 1.0 / float64(mult)
	sum := 0.0
	for i := 0; i < mult*3; i++ {
		old := rem
		rem += step
		plan := computeStep(old, rem, expo)
		if plan.ApplyPre {
			sum += plan.PreWeight
		}
		if plan.Emits > 0 {
			break
		}
		rem = plan.Remainder
	}
	if math.Abs(sum-1) > 1e-6 {
		t.Fatalf("exposure=0.5 weight sum at first emission = %v, want 1", sum)
	}
}

func TestNoOpBeforeShutterOpens(t *testing.T) {
	plan := computeStep(0, 0.1, 0.5) // shutter opens at 1-0.5=0.5; rem=0.1 is before it
	if plan.ApplyPre || plan.Emits != 0 {
		t.Fatalf("expected no-op before shutter opens, got %+v", plan)
	}
}
