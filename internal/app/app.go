package app

import (
	"context"
	"fmt"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"rate-ledger/internal/alerting"
	"rate-ledger/internal/analytics"
	"rate-ledger/internal/config"
	"rate-ledger/internal/connectivity"
	"rate-ledger/internal/fanout"
	"rate-ledger/internal/fetcher"
	"rate-ledger/internal/relay"
	"rate-ledger/internal/service"
	"rate-ledger/internal/storage"
	"rate-ledger/internal/version"
)

// App aggregates configuration and shared dependencies for the CLI commands.
type App struct {
	Config *config.Config
	Logger zerolog.Logger
}

// NewApp constructs a new application handle.
func NewApp(cfg *config.Config, logger zerolog.Logger) *App {
	return &App{Config: cfg, Logger: logger.With().Str("component", "app").Logger()}
}

func (a *App) newSource(static *decimal.Decimal) fetcher.RateSource {
	if static != nil {
		return fetcher.Static{Rate: *static}
	}

	if a.Config.Source.Kind == config.SourceOnchain {
		return fetcher.NewOnchain(fetcher.OnchainOptions{
			RPCURL:       a.Config.Ethereum.RPCURL,
			VaultAddress: a.Config.Ethereum.VaultAddress,
			Decimals:     a.Config.Ethereum.Decimals,
			Timeout:      a.Config.Ethereum.RequestTimeout,
		}, a.Logger)
	}

	return fetcher.NewCoinbase(fetcher.CoinbaseOptions{
		BaseURL:   a.Config.Source.BaseURL,
		Currency:  a.Config.Source.Currency,
		JSONPath:  a.Config.Source.JSONPath,
		Timeout:   a.Config.Source.RequestTimeout,
		UserAgent: userAgent(a.Config.Source.UserAgent),
	}, a.Logger)
}

func userAgent(configured string) string {
	if configured != "" {
		return configured
	}
	return version.UserAgent()
}

func (a *App) openCache(ctx context.Context) (storage.RateCache, func(), error) {
	pair := a.Config.App.Pair

	switch a.Config.Cache.Backend {
	case config.CachePostgres:
		pool, err := storage.NewPool(ctx, a.Config.Database)
		if err != nil {
			return nil, nil, err
		}
		cache := storage.NewPostgresCache(pool, pair)
		if err := cache.Migrate(ctx); err != nil {
			cache.Close()
			return nil, nil, err
		}
		return cache, cache.Close, nil

	case config.CacheRedis:
		client := redis.NewUniversalClient(&redis.UniversalOptions{
			Addrs:    a.Config.Redis.Addrs,
			Password: a.Config.Redis.Password,
			DB:       a.Config.Redis.DB,
		})
		cache := storage.NewRedisCache(client, a.Config.Redis.KeyPrefix, pair, a.Config.Redis.TTL)
		closer := func() {
			if err := cache.Close(); err != nil {
				a.Logger.Warn().Err(err).Msg("close redis client")
			}
		}
		return cache, closer, nil

	default:
		a.Logger.Debug().Msg("cache.backend is memory; last known rate will not survive restarts")
		return storage.NewMemoryCache(nil), func() {}, nil
	}
}

func (a *App) newNotifier() alerting.Notifier {
	if a.Config.Alerting.Telegram.Enabled {
		cfg := a.Config.Alerting.Telegram
		return alerting.NewTelegramNotifier(cfg.BotToken, cfg.ChatID, cfg.APIBase, cfg.Timeout, a.Logger)
	}
	return nil
}

// Run executes the long-running sync service until SIGINT/SIGTERM.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	return a.serve(ctx, a.newSource(nil))
}

func (a *App) serve(ctx context.Context, source fetcher.RateSource) error {
	cache, closeCache, err := a.openCache(ctx)
	if err != nil {
		return err
	}
	defer closeCache()

	ledger := analytics.NewLedger(a.Logger)
	if err := a.loadArchive(ledger); err != nil {
		return err
	}

	var workers sync.WaitGroup
	spawn := func(fn func()) {
		workers.Add(1)
		go func() {
			defer workers.Done()
			fn()
		}()
	}

	if a.Config.Relay.Enabled {
		r := relay.New(relay.NewWriter(relay.Options{
			Brokers:      a.Config.Relay.Brokers,
			Topic:        a.Config.Relay.Topic,
			BatchTimeout: a.Config.Relay.BatchTimeout,
		}), a.Logger)
		defer func() {
			if err := r.Close(); err != nil {
				a.Logger.Warn().Err(err).Msg("close relay writer")
			}
		}()
		sub := ledger.Subscribe()
		spawn(func() { r.Run(ctx, sub) })
	}

	engine := service.New(source, cache, ledger, a.Logger, service.WithAlignedTicks(a.Config.Sync.AlignToClock))

	registry := fanout.New(engine, ledger, a.Logger)
	registry.Start(a.Config.Sync.FanoutListeners)

	if a.Config.Alerting.Enabled {
		if notifier := a.newNotifier(); notifier != nil {
			watcher := alerting.NewWatcher(a.Config.App.Pair, decimal.NewFromFloat(a.Config.Alerting.ThresholdPct), notifier, a.Logger)
			sub := engine.Subscribe()
			spawn(func() { watcher.Run(ctx, sub) })
		} else {
			a.Logger.Warn().Msg("alerting enabled but no channel configured")
		}
	}

	if a.Config.Connectivity.Enabled {
		prober := connectivity.NewProber(connectivity.ProberOptions{
			Address:  a.Config.Connectivity.Address,
			Interval: a.Config.Connectivity.Interval,
			Timeout:  a.Config.Connectivity.Timeout,
		}, a.Logger)
		spawn(func() { prober.Run(ctx) })
		spawn(func() { connectivity.Watch(ctx, prober.Updates(), engine.RefreshNow) })
	}

	if err := engine.Start(a.Config.Sync.Interval); err != nil {
		return err
	}
	a.Logger.Info().
		Str("pair", a.Config.App.Pair).
		Dur("interval", a.Config.Sync.Interval).
		Int("listeners", registry.Size()).
		Msg("rate sync started")

	<-ctx.Done()

	engine.Stop()
	engine.Wait()
	workers.Wait()

	if err := a.saveArchive(ledger); err != nil {
		return err
	}
	a.Logger.Info().Int("events", ledger.Count()).Msg("rate sync stopped")
	return nil
}

// ExportOptions hold parameters for exporting ledger events.
type ExportOptions struct {
	Name      string
	From      *time.Time
	To        *time.Time
	JSONPath  string
	PNGPath   string
	CSVPath   string
	MaxPoints int
}

// ShowOptions configure the show command.
type ShowOptions struct {
	Name  string
	From  *time.Time
	To    *time.Time
	Limit int
}

// FetchOptions configure a one-shot refresh.
type FetchOptions struct {
	Static *decimal.Decimal
}

func buildFilter(name string, from, to *time.Time) (analytics.Filter, error) {
	f := analytics.Filter{Name: name}
	if from != nil {
		f.From = from.UTC()
	}
	if to != nil {
		f.To = to.UTC()
	}
	if !f.From.IsZero() && !f.To.IsZero() && f.To.Before(f.From) {
		return f, fmt.Errorf("--from must not be after --to")
	}
	return f, nil
}
