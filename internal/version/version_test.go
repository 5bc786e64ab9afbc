package version

import (
	"strings"
	"testing"
)

func TestUserAgentCarriesVersion(t *testing.T) {
	old := Version
	Version = "1.2.3"
	defer func() { Version = old }()

	if got := UserAgent(); got != "rateledger/1.2.3" {
		t.Fatalf("UserAgent = %q", got)
	}
	if !strings.Contains(String(), "version: 1.2.3") {
		t.Fatalf("String = %q", String())
	}
}
