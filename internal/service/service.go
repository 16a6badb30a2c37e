package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"whale-alerts/internal/alerting"
	"whale-alerts/internal/extractor"
	"whale-alerts/internal/fetcher"
	"whale-alerts/internal/rollup"
	"whale-alerts/internal/storage"
)

// Options carries the pipeline settings taken from configuration.
type Options struct {
	// Location is the timezone for RecordedAt and every calendar-day key.
	Location        *time.Location
	AdvisoryLockKey int64
}

// Service runs the ingestion pipeline and the price recording job.
type Service struct {
	feed     fetcher.FeedFetcher
	price    fetcher.PriceFetcher
	store    storage.Repository
	rollup   *rollup.Rollup
	notifier alerting.Notifier
	logger   zerolog.Logger

	loc     *time.Location
	locker  storage.AdvisoryLocker
	lockKey int64
	now     func() time.Time
}

// New constructs the pipeline service. notifier may be nil.
func New(opts Options, feed fetcher.FeedFetcher, price fetcher.PriceFetcher, store storage.Repository, notifier alerting.Notifier, logger zerolog.Logger) *Service {
	loc := opts.Location
	if loc == nil {
		loc = time.UTC
	}

	var locker storage.AdvisoryLocker
	if l, ok := store.(storage.AdvisoryLocker); ok {
		locker = l
	}

	return &Service{
		feed:     feed,
		price:    price,
		store:    store,
		rollup:   rollup.New(store, loc, logger),
		notifier: notifier,
		logger:   logger.With().Str("component", "service").Logger(),
		loc:      loc,
		locker:   locker,
		lockKey:  opts.AdvisoryLockKey,
		now:      time.Now,
	}
}

// IngestTick adapts RunOnce to the scheduler.
func (s *Service) IngestTick(ctx context.Context, _ time.Time) error {
	_, err := s.RunOnce(ctx)
	return err
}

// PriceTick adapts RecordPrice to the scheduler.
func (s *Service) PriceTick(ctx context.Context, _ time.Time) error {
	_, err := s.RecordPrice(ctx)
	return err
}

// RunOnce fetches the feed, records every new tagged entry and refreshes
// today's aggregate when anything was recorded. It returns the number of alerts
// inserted, which stays valid alongside a non-nil error when the batch aborts
// part way through.
func (s *Service) RunOnce(ctx context.Context) (int, error) {
	logger := s.logger.With().Str("run_id", uuid.NewString()).Logger()

	if s.store == nil || s.feed == nil {
		return 0, storage.ErrNotConfigured
	}

	unlock, proceed, err := s.acquireLock(ctx)
	if err != nil {
		return 0, err
	}
	if !proceed {
		logger.Debug().Msg("skip ingestion because advisory lock held elsewhere")
		return 0, nil
	}
	if unlock != nil {
		defer unlock()
	}

	entries, err := s.feed.FetchFeed(ctx)
	if err != nil {
		return 0, fmt.Errorf("fetch feed: %w", err)
	}
	logger.Debug().Int("entries", len(entries)).Msg("feed fetched")

	recorded, runErr := s.ingest(ctx, logger, entries)

	if err := s.refreshAggregates(ctx, recorded); err != nil && runErr == nil {
		runErr = err
	}
	s.notify(ctx, logger, recorded)

	event := logger.Info()
	if runErr != nil {
		event = logger.Warn().Err(runErr)
	}
	event.Int("entries", len(entries)).Int("recorded", len(recorded)).Msg("ingestion run finished")

	return len(recorded), runErr
}

func (s *Service) ingest(ctx context.Context, logger zerolog.Logger, entries []fetcher.Entry) ([]storage.Alert, error) {
	var recorded []storage.Alert
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return recorded, err
		}
		if !extractor.HasAssetTag(entry.Summary) {
			continue
		}

		exists, err := s.store.AlertExists(ctx, entry.Link)
		if err != nil {
			return recorded, err
		}
		if exists {
			continue
		}

		amounts, err := extractor.Extract(entry.Summary)
		if err != nil {
			return recorded, fmt.Errorf("extract %s: %w", entry.Link, err)
		}

		recordedAt := s.now().In(s.loc)
		alert, inserted, err := s.store.InsertAlertIfAbsent(ctx, storage.Alert{
			Title:      entry.Title,
			Summary:    entry.Summary,
			Link:       entry.Link,
			Published:  entry.Published,
			BTCAmount:  amounts.BTC,
			USDTAmount: amounts.USDT,
			USDCAmount: amounts.USDC,
			RecordedAt: recordedAt,
			RecordedOn: recordedAt.Format(storage.DateLayout),
		})
		if err != nil {
			return recorded, err
		}
		if !inserted {
			// another writer won the race for this link
			continue
		}

		logger.Info().
			Int64("id", alert.ID).
			Str("link", alert.Link).
			Str("btc", amounts.BTC.String()).
			Str("usdt", amounts.USDT.String()).
			Str("usdc", amounts.USDC.String()).
			Msg("alert recorded")
		recorded = append(recorded, alert)
	}
	return recorded, nil
}

// refreshAggregates recomputes the aggregate of the target-timezone date at
// the end of the batch, never the dates of individual recorded alerts.
func (s *Service) refreshAggregates(ctx context.Context, recorded []storage.Alert) error {
	if len(recorded) == 0 {
		return nil
	}

	// aggregates must track persisted rows even if the batch was cut short
	ctx = context.WithoutCancel(ctx)
	_, err := s.rollup.Recompute(ctx, s.now().In(s.loc).Format(storage.DateLayout))
	return err
}

func (s *Service) notify(ctx context.Context, logger zerolog.Logger, recorded []storage.Alert) {
	if s.notifier == nil {
		return
	}
	for _, alert := range recorded {
		note := alerting.Notification{
			Title:      alert.Title,
			Link:       alert.Link,
			BTC:        alert.BTCAmount,
			USDT:       alert.USDTAmount,
			USDC:       alert.USDCAmount,
			RecordedAt: alert.RecordedAt,
		}
		if err := s.notifier.Notify(ctx, note); err != nil {
			logger.Error().Err(err).Str("link", alert.Link).Msg("failed to dispatch alert")
		}
	}
}

// RecordPrice fetches the reference price and stores it under today's date.
func (s *Service) RecordPrice(ctx context.Context) (storage.PricePoint, error) {
	if s.store == nil || s.price == nil {
		return storage.PricePoint{}, storage.ErrNotConfigured
	}

	price, err := s.price.FetchPrice(ctx)
	if err != nil {
		return storage.PricePoint{}, fmt.Errorf("fetch price: %w", err)
	}

	now := s.now().In(s.loc)
	point, err := s.store.UpsertPricePoint(ctx, storage.PricePoint{
		Date:      now.Format(storage.DateLayout),
		PriceUSD:  price,
		UpdatedAt: now,
	})
	if err != nil {
		return storage.PricePoint{}, err
	}

	s.logger.Info().Str("date", point.Date).Str("price_usd", point.PriceUSD.String()).Msg("price recorded")
	return point, nil
}

func (s *Service) acquireLock(ctx context.Context) (func(), bool, error) {
	if s.lockKey == 0 || s.locker == nil {
		return nil, true, nil
	}
	unlock, acquired, err := s.locker.TryAdvisoryLock(ctx, s.lockKey)
	if err != nil {
		return nil, false, fmt.Errorf("acquire advisory lock: %w", err)
	}
	if !acquired {
		return nil, false, nil
	}
	return unlock, true, nil
}
