package random

import "testing"

func TestNewSeedVaries(t *testing.T) {
	first, err := NewSeed()
	if err != nil {
		t.Fatalf("new seed: %v", err)
	}
	second, err := NewSeed()
	if err != nil {
		t.Fatalf("new seed: %v", err)
	}
	if first == second {
		t.Fatalf("expected distinct seeds, got %d twice", first)
	}
}

func TestPickerStaysInRange(t *testing.T) {
	picker, err := NewPicker()
	if err != nil {
		t.Fatalf("new picker: %v", err)
	}
	seen := make(map[int]bool)
	for i := 0; i < 500; i++ {
		got := picker.Pick(3)
		if got < 0 || got >= 3 {
			t.Fatalf("pick = %d, want [0,3)", got)
		}
		seen[got] = true
	}
	if len(seen) != 3 {
		t.Fatalf("expected every index to be picked, saw %v", seen)
	}
}

func TestPickerSmallRanges(t *testing.T) {
	picker := NewPickerWithSeed(1, 2)
	if got := picker.Pick(0); got != 0 {
		t.Fatalf("pick(0) = %d, want 0", got)
	}
	if got := picker.Pick(1); got != 0 {
		t.Fatalf("pick(1) = %d, want 0", got)
	}
}

func TestPickerWithSeedIsDeterministic(t *testing.T) {
	a := NewPickerWithSeed(7, 11)
	b := NewPickerWithSeed(7, 11)
	for i := 0; i < 20; i++ {
		if x, y := a.Pick(10), b.Pick(10); x != y {
			t.Fatalf("step %d: %d != %d", i, x, y)
		}
	}
}
