package app

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"rate-ledger/internal/analytics"
)

// loadArchive appends the configured archive to ledger. A missing file is
// an empty archive.
func (a *App) loadArchive(ledger *analytics.Ledger) error {
	path := a.Config.Ledger.Path
	if path == "" {
		return nil
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read ledger archive: %w", err)
	}
	if err := ledger.Import(data); err != nil {
		return fmt.Errorf("load ledger archive %s: %w", path, err)
	}

	a.Logger.Debug().Str("path", path).Int("events", ledger.Count()).Msg("ledger archive loaded")
	return nil
}

// saveArchive applies retention and rewrites the archive atomically.
func (a *App) saveArchive(ledger *analytics.Ledger) error {
	path := a.Config.Ledger.Path
	if path == "" {
		return nil
	}

	if retention := a.Config.Ledger.Retention; retention > 0 {
		if removed := ledger.RemoveOlderThan(time.Now().UTC().Add(-retention)); removed > 0 {
			a.Logger.Info().Int("removed", removed).Dur("retention", retention).Msg("pruned ledger events")
		}
	}

	data, err := ledger.Export(a.Config.Ledger.Pretty)
	if err != nil {
		return err
	}
	return writeFileAtomic(path, data)
}

func (a *App) openArchive() (*analytics.Ledger, error) {
	ledger := analytics.NewLedger(a.Logger)
	if err := a.loadArchive(ledger); err != nil {
		return nil, err
	}
	return ledger, nil
}

func writeFileAtomic(path string, data []byte) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("create temp archive: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write archive: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close archive: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("replace archive: %w", err)
	}
	return nil
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}

// Prune drops archived events older than the cutoff and rewrites the
// archive. A zero cutoff falls back to ledger.retention.
func (a *App) Prune(cutoff time.Time) (int, error) {
	if a.Config.Ledger.Path == "" {
		return 0, errors.New("ledger.path not configured; nothing to prune")
	}
	if cutoff.IsZero() {
		if a.Config.Ledger.Retention <= 0 {
			return 0, errors.New("no cutoff given and ledger.retention is disabled")
		}
		cutoff = time.Now().UTC().Add(-a.Config.Ledger.Retention)
	}

	ledger, err := a.openArchive()
	if err != nil {
		return 0, err
	}
	removed := ledger.RemoveOlderThan(cutoff)

	data, err := ledger.Export(a.Config.Ledger.Pretty)
	if err != nil {
		return 0, err
	}
	if err := writeFileAtomic(a.Config.Ledger.Path, data); err != nil {
		return 0, err
	}
	a.Logger.Info().Int("removed", removed).Time("cutoff", cutoff).Msg("ledger archive pruned")
	return removed, nil
}
