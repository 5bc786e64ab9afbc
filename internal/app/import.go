package app

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"rate-ledger/internal/analytics"
)

// Import appends one or more exported archives to the configured archive
// and records a ledger_import event per file. Duplicates are kept.
func (a *App) Import(paths []string) (int, error) {
	if len(paths) == 0 {
		return 0, errors.New("at least one file must be provided")
	}
	if a.Config.Ledger.Path == "" {
		return 0, errors.New("ledger.path not configured; nowhere to import into")
	}

	ledger, err := a.openArchive()
	if err != nil {
		return 0, err
	}

	total := 0
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return 0, fmt.Errorf("read %s: %w", path, err)
		}
		before := ledger.Count()
		if err := ledger.Import(data); err != nil {
			return 0, fmt.Errorf("import %s: %w", path, err)
		}
		count := ledger.Count() - before
		ledger.Record(analytics.EventLedgerImport, map[string]string{
			"count":  strconv.Itoa(count),
			"source": path,
		})
		total += count
		a.Logger.Info().Str("path", path).Int("count", count).Msg("archive imported")
	}

	data, err := ledger.Export(a.Config.Ledger.Pretty)
	if err != nil {
		return 0, err
	}
	if err := writeFileAtomic(a.Config.Ledger.Path, data); err != nil {
		return 0, err
	}
	return total, nil
}
