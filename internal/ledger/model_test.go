package ledger

import "testing"

func TestParseOutcome(t *testing.T) {
	d, err := ParseOutcome("914472")
	if err != nil {
		t.Fatalf("ParseOutcome: %v", err)
	}
	if d != (Digits{9, 1, 4, 4, 7, 2}) {
		t.Fatalf("digits = %v", d)
	}
	if d.Joined() != "914472" {
		t.Fatalf("Joined = %q", d.Joined())
	}
	if d.Last() != 2 {
		t.Fatalf("Last = %d", d.Last())
	}
}

func TestParseOutcomeRejectsCorrupt(t *testing.T) {
	for _, s := range []string{"", "12345", "1234567", "91447x", "91 472"} {
		if _, err := ParseOutcome(s); err == nil {
			t.Errorf("ParseOutcome(%q): expected error", s)
		}
	}
}

func TestDigitsContains(t *testing.T) {
	d := Digits{9, 1, 4, 4, 7, 2}
	for _, v := range []int{9, 1, 4, 7, 2} {
		if !d.Contains(v) {
			t.Errorf("Contains(%d) = false", v)
		}
	}
	for _, v := range []int{0, 3, 5, 6, 8} {
		if d.Contains(v) {
			t.Errorf("Contains(%d) = true", v)
		}
	}
}

func TestValidOverride(t *testing.T) {
	for _, c := range []Category{CategorySmall, CategoryLarge, CategoryEven, CategoryOdd} {
		if !ValidOverride(c) {
			t.Errorf("ValidOverride(%s) = false", c)
		}
	}
	if ValidOverride(CategoryNumber) {
		t.Error("ValidOverride(NUMBER) = true")
	}
	if ValidOverride(Category("XL")) {
		t.Error("ValidOverride(XL) = true")
	}
}
