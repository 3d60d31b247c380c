package ingest

import (
	"context"
	"log/slog"
	"time"

	"github.com/hitoshi/cleanroom/internal/model"
	"github.com/hitoshi/cleanroom/internal/repository"
)

// BatchGenerator は取り込み対象のレコードバッチを生成するインターフェース。
type BatchGenerator interface {
	Generate() (a, b []*model.IdentifierRecord)
}

// Service はセグメントへの識別子取り込みを行う。
type Service struct {
	segmentRepo repository.SegmentRepository
	generator   BatchGenerator
	logger      *slog.Logger
}

// NewService はServiceを生成する。
func NewService(segmentRepo repository.SegmentRepository, generator BatchGenerator, logger *slog.Logger) *Service {
	return &Service{
		segmentRepo: segmentRepo,
		generator:   generator,
		logger:      logger,
	}
}

// Refresh は1バッチ分のレコードを生成し、両セグメントへ同一トランザクションで追記する。
func (s *Service) Refresh(ctx context.Context) error {
	return s.ingest(ctx, "refresh")
}

// Seed は初期データを投入する。
// 初回リクエスト時に暗黙に実行されることはなく、seedサブコマンドやテストから明示的に呼び出す。
func (s *Service) Seed(ctx context.Context) error {
	return s.ingest(ctx, "seed")
}

// Load は外部から読み込んだレコードを両セグメントへ同一トランザクションで追記する。
func (s *Service) Load(ctx context.Context, a, b []*model.IdentifierRecord) error {
	return s.appendRecords(ctx, "load", a, b)
}

func (s *Service) ingest(ctx context.Context, trigger string) error {
	a, b := s.generator.Generate()
	return s.appendRecords(ctx, trigger, a, b)
}

func (s *Service) appendRecords(ctx context.Context, trigger string, a, b []*model.IdentifierRecord) error {
	start := time.Now()
	if err := s.segmentRepo.AppendIdentifiers(ctx, a, b); err != nil {
		s.logger.Error("identifier ingestion failed",
			slog.String("trigger", trigger),
			slog.String("error", err.Error()),
		)
		return err
	}

	s.logger.Info("identifiers ingested",
		slog.String("trigger", trigger),
		slog.Int("segment_a_records", len(a)),
		slog.Int("segment_b_records", len(b)),
		slog.Float64("duration_ms", float64(time.Since(start).Milliseconds())),
	)
	return nil
}
