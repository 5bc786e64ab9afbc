package cli

import "testing"

func TestParseWindow(t *testing.T) {
	from, to, err := parseWindow("2024-01-01T00:00:00Z", "")
	if err != nil {
		t.Fatalf("parseWindow: %v", err)
	}
	if from == nil || from.Year() != 2024 || to != nil {
		t.Fatalf("from=%v to=%v", from, to)
	}

	if _, _, err := parseWindow("", "yesterday"); err == nil {
		t.Fatal("expected error for invalid --to")
	}
}
