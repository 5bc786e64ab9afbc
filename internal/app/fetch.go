package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"rate-ledger/internal/analytics"
	"rate-ledger/internal/service"
)

// Fetch performs one on-demand refresh through the engine, records the
// manual_refresh action, and archives the resulting events.
func (a *App) Fetch(ctx context.Context, opts FetchOptions, out io.Writer) error {
	cache, closeCache, err := a.openCache(ctx)
	if err != nil {
		return err
	}
	defer closeCache()

	ledger, err := a.openArchive()
	if err != nil {
		return err
	}
	before := len(ledger.Query(analytics.Filter{Name: analytics.EventRateUpdate}))

	engine := service.New(a.newSource(opts.Static), cache, ledger, a.Logger)
	ledger.Record(analytics.EventManualRefresh, map[string]string{"pair": a.Config.App.Pair})
	engine.RefreshNow()
	engine.Wait()

	updates := ledger.Query(analytics.Filter{Name: analytics.EventRateUpdate})
	if err := a.saveArchive(ledger); err != nil {
		return err
	}

	if len(updates) == before {
		if cached, ok := engine.Current(); ok {
			return fmt.Errorf("fetch failed; last known %s rate is %s from %s",
				a.Config.App.Pair, cached.Value.String(), cached.ObservedAt.Format(time.RFC3339))
		}
		return errors.New("fetch failed and no cached rate is available")
	}

	sample, _ := engine.Current()
	fmt.Fprintf(out, "%s %s (observed %s)\n", a.Config.App.Pair, sample.Value.String(), sample.ObservedAt.Format(time.RFC3339))
	return nil
}
