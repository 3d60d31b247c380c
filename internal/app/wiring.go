package app

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/hitoshi/cleanroom/internal/cache"
	"github.com/hitoshi/cleanroom/internal/config"
	"github.com/hitoshi/cleanroom/internal/events"
	"github.com/hitoshi/cleanroom/internal/handler"
	"github.com/hitoshi/cleanroom/internal/ingest"
	"github.com/hitoshi/cleanroom/internal/metrics"
	"github.com/hitoshi/cleanroom/internal/overlap"
	"github.com/hitoshi/cleanroom/internal/repository"
)

// services はserve/worker/seedで共有するドメインサービス群。
type services struct {
	// Overlap はキャッシュ有効時はCachedService、無効時はoverlap.Service。
	Overlap handler.OverlapServiceInterface
	Ingest  *ingest.Service
	Metrics *metrics.Collector

	// cached はキャッシュ無効時はnil。
	cached  *cache.CachedService
	closers []io.Closer
}

// newServices はDB接続と設定から依存関係をワイヤリングする。
// Redisへの接続に失敗した場合はキャッシュなしで続行する。
func newServices(ctx context.Context, cfg *config.Config, db *sql.DB, reg prometheus.Registerer) *services {
	logger := slog.Default()

	// 1. リポジトリ
	segmentRepo := repository.NewPostgresSegmentRepo(db)
	snapshotRepo := repository.NewPostgresSnapshotRepo(db)

	// 2. 取り込み
	generator := ingest.NewGenerator(nil, cfg.SeedBatchSize)
	ingestSvc := ingest.NewService(segmentRepo, generator, logger)

	// 3. オーバーラップ計算
	collector := metrics.NewCollector(reg)
	overlapSvc := overlap.NewService(segmentRepo, snapshotRepo, ingestSvc, logger)
	overlapSvc.Metrics = collector

	s := &services{
		Overlap: overlapSvc,
		Ingest:  ingestSvc,
		Metrics: collector,
	}

	// 4. スナップショットイベント（任意）
	if cfg.EventsEnabled() {
		publisher := events.NewKafkaPublisher(events.NewKafkaWriter(cfg.KafkaBrokers, cfg.KafkaTopic), logger)
		overlapSvc.Publisher = publisher
		s.closers = append(s.closers, publisher)
		logger.Info("snapshot events enabled",
			slog.Any("brokers", cfg.KafkaBrokers),
			slog.String("topic", cfg.KafkaTopic),
		)
	}

	// 5. 結果キャッシュ（任意）
	if cfg.CacheEnabled() {
		store, err := cache.NewRedisStore(ctx, cache.RedisConfig{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err != nil {
			logger.Warn("overlap cache disabled",
				slog.String("redis_addr", cfg.RedisAddr),
				slog.String("error", err.Error()),
			)
		} else {
			cached := cache.NewCachedService(overlapSvc, store, cfg.CacheTTL, logger)
			cached.Metrics = collector
			s.Overlap = cached
			s.cached = cached
			s.closers = append(s.closers, store)
			logger.Info("overlap cache enabled",
				slog.String("redis_addr", cfg.RedisAddr),
				slog.Duration("ttl", cfg.CacheTTL),
			)
		}
	}

	return s
}

// invalidateCache はキャッシュ有効時にオーバーラップ結果を破棄する。
func (s *services) invalidateCache(ctx context.Context) {
	if s.cached != nil {
		s.cached.Invalidate(ctx)
	}
}

// Close は外部接続をすべて閉じる。
func (s *services) Close() error {
	var errs []error
	for _, c := range s.closers {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
