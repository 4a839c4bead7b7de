package pagesize

import "testing"

func TestLookupIsCaseInsensitive(t *testing.T) {
	for _, name := range []string{"a4", "A4", " a4 "} {
		got, ok := Lookup(name)
		if !ok {
			t.Fatalf("Lookup(%q) failed", name)
		}
		if got != A4 {
			t.Errorf("Lookup(%q) = %+v, want A4", name, got)
		}
	}
}

func TestLookupOrDefaultFallsBackToLetter(t *testing.T) {
	if got := LookupOrDefault("nonexistent"); got != Letter {
		t.Errorf("Expected Letter fallback, got %+v", got)
	}
	if got := LookupOrDefault(""); got != Letter {
		t.Errorf("Expected Letter for empty name, got %+v", got)
	}
	if got := LookupOrDefault("legal"); got != Legal {
		t.Errorf("Expected Legal, got %+v", got)
	}
}

func TestKnownDimensions(t *testing.T) {
	if Letter.Width != 612 || Letter.Height != 792 {
		t.Errorf("Letter is %vx%v", Letter.Width, Letter.Height)
	}
	if A4.Width != 595.28 || A4.Height != 841.89 {
		t.Errorf("A4 is %vx%v", A4.Width, A4.Height)
	}
}
