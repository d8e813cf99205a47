package engine

import "testing"

func TestGenerateOutcomeRange(t *testing.T) {
	seen := map[int]bool{}
	for i := 0; i < 1000; i++ {
		d := GenerateOutcome()
		for _, v := range d {
			if v < 0 || v > 9 {
				t.Fatalf("digit out of range: %v", d)
			}
			seen[v] = true
		}
		if len(d.Joined()) != 6 {
			t.Fatalf("Joined = %q", d.Joined())
		}
	}
	// 6000 sorteios uniformes cobrem os 10 dígitos com folga
	if len(seen) != 10 {
		t.Fatalf("digits seen = %v", seen)
	}
}
