package cli

import (
	"fmt"
	"time"
)

// parseWindow turns optional RFC3339 flags into bounds.
func parseWindow(fromRaw, toRaw string) (*time.Time, *time.Time, error) {
	var from, to *time.Time
	if fromRaw != "" {
		v, err := time.Parse(time.RFC3339, fromRaw)
		if err != nil {
			return nil, nil, fmt.Errorf("invalid --from value: %w", err)
		}
		from = &v
	}
	if toRaw != "" {
		v, err := time.Parse(time.RFC3339, toRaw)
		if err != nil {
			return nil, nil, fmt.Errorf("invalid --to value: %w", err)
		}
		to = &v
	}
	return from, to, nil
}
