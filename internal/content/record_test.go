package content

import "testing"

func TestHashIsStableUnderWhitespaceAndHostCase(t *testing.T) {
	a := Hash("  HTTPS://Example.com/a  ", " Hello World ")
	b := Hash("https://example.com/a", "hello world")
	if a != b {
		t.Errorf("expected stable hash under whitespace/case, got %s != %s", a, b)
	}
}

func TestHashDiffersOnPathCase(t *testing.T) {
	a := Hash("https://example.com/A", "title")
	b := Hash("https://example.com/a", "title")
	if a == b {
		t.Errorf("expected distinct hashes for differing path case")
	}
}

func TestValidateRequiresTitle(t *testing.T) {
	r := &ContentRecord{Category: CategoryNews}
	if err := r.Validate(); err == nil {
		t.Errorf("expected validation error for missing title")
	}
}

func TestValidateRejectsUnknownCategory(t *testing.T) {
	r := &ContentRecord{Title: "x", Category: Category("unknown")}
	if err := r.Validate(); err == nil {
		t.Errorf("expected validation error for unknown category")
	}
}

func TestValidateAcceptsWellFormedRecord(t *testing.T) {
	r := &ContentRecord{Title: "A webMethods release", Category: CategoryNews}
	if err := r.Validate(); err != nil {
		t.Errorf("expected no validation error, got %v", err)
	}
}
