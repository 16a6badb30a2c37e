package app

import (
	"context"
	"errors"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"whale-alerts/internal/alerting"
	"whale-alerts/internal/config"
	"whale-alerts/internal/fetcher"
	"whale-alerts/internal/scheduler"
	"whale-alerts/internal/service"
	"whale-alerts/internal/storage"
)

// App aggregates configuration and shared dependencies for the CLI commands.
type App struct {
	Config *config.Config
	Logger zerolog.Logger
	// Out receives human-readable command output; defaults to stdout.
	Out io.Writer
}

// NewApp constructs a new application handle.
func NewApp(cfg *config.Config, logger zerolog.Logger) *App {
	return &App{Config: cfg, Logger: logger.With().Str("component", "app").Logger(), Out: os.Stdout}
}

func (a *App) out() io.Writer {
	if a.Out == nil {
		return os.Stdout
	}
	return a.Out
}

func (a *App) newFetchers() (*fetcher.Feed, *fetcher.Price) {
	feed := fetcher.NewFeed(fetcher.FeedOptions{
		URL:                a.Config.Feed.URL,
		Timeout:            a.Config.Feed.RequestTimeout,
		UserAgent:          a.Config.Feed.UserAgent,
		InsecureSkipVerify: a.Config.Feed.InsecureSkipVerify,
		RequireTLS:         a.Config.Feed.RequireTLS,
	}, a.Logger)

	price := fetcher.NewPrice(fetcher.PriceOptions{
		BaseURL:   a.Config.Price.BaseURL,
		Asset:     a.Config.Price.Asset,
		Currency:  a.Config.Price.Currency,
		Timeout:   a.Config.Price.RequestTimeout,
		UserAgent: a.Config.Price.UserAgent,
	}, a.Logger)

	return feed, price
}

func (a *App) newNotifier() alerting.Notifier {
	if !a.Config.Alerting.Enabled {
		return nil
	}
	if a.Config.Alerting.Telegram.Enabled {
		cfg := a.Config.Alerting.Telegram
		return alerting.NewTelegramNotifier(cfg.BotToken, cfg.ChatID, cfg.APIBase, cfg.Timeout, a.Logger)
	}
	a.Logger.Warn().Msg("alerting enabled but no channel configured")
	return nil
}

func (a *App) openStore(ctx context.Context) (storage.Repository, error) {
	store, err := storage.Open(ctx, a.Config.Storage)
	if err != nil {
		return nil, err
	}
	a.Logger.Debug().Str("driver", a.Config.Storage.Driver).Msg("store opened")
	return store, nil
}

func (a *App) newService(store storage.Repository) (*service.Service, error) {
	loc, err := a.Config.Location()
	if err != nil {
		return nil, err
	}
	feed, price := a.newFetchers()
	opts := service.Options{
		Location:        loc,
		AdvisoryLockKey: a.Config.Scheduler.AdvisoryLockKey,
	}
	return service.New(opts, feed, price, store, a.newNotifier(), a.Logger), nil
}

// Run executes both background loops until SIGINT/SIGTERM.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	store, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer store.Close()

	svc, err := a.newService(store)
	if err != nil {
		return err
	}

	sc := a.Config.Scheduler
	ingest := scheduler.New(scheduler.Options{
		Name:         "ingest",
		Interval:     sc.IngestInterval,
		AlignToStart: sc.AlignToBucket,
		StartupDelay: sc.StartupDelay,
		RunOnStart:   sc.RunOnStart,
	}, a.Logger)
	price := scheduler.New(scheduler.Options{
		Name:         "price",
		Interval:     sc.PriceInterval,
		AlignToStart: sc.AlignToBucket,
		StartupDelay: sc.StartupDelay,
		RunOnStart:   sc.RunOnStart,
	}, a.Logger)

	a.Logger.Info().
		Dur("ingest_interval", sc.IngestInterval).
		Dur("price_interval", sc.PriceInterval).
		Str("feed", a.Config.Feed.URL).
		Msg("starting whale watcher")

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return ingest.Run(gctx, svc.IngestTick) })
	g.Go(func() error { return price.Run(gctx, svc.PriceTick) })

	err = g.Wait()
	if err != nil && !errors.Is(err, context.Canceled) {
		a.Logger.Error().Err(err).Msg("service terminated with error")
		return err
	}

	a.Logger.Info().Msg("whale watcher stopped")
	return nil
}

// Ingest performs a single pipeline run and returns the number of new alerts.
func (a *App) Ingest(ctx context.Context) (int, error) {
	store, err := a.openStore(ctx)
	if err != nil {
		return 0, err
	}
	defer store.Close()

	svc, err := a.newService(store)
	if err != nil {
		return 0, err
	}
	return svc.RunOnce(ctx)
}

// RecordPrice fetches and stores today's reference price once.
func (a *App) RecordPrice(ctx context.Context) (storage.PricePoint, error) {
	store, err := a.openStore(ctx)
	if err != nil {
		return storage.PricePoint{}, err
	}
	defer store.Close()

	svc, err := a.newService(store)
	if err != nil {
		return storage.PricePoint{}, err
	}
	return svc.RecordPrice(ctx)
}

// ExportOptions hold parameters for exporting daily history.
type ExportOptions struct {
	Days    int
	PNGPath string
	CSVPath string
}

// ShowOptions configure the show command.
type ShowOptions struct {
	Kind  string
	Limit int
}
