// Package refresh はセグメントの定期リフレッシュ処理を提供する。
// 一定間隔でセグメントを更新し、重複統計のスナップショットを記録する。
package refresh

import (
	"context"
	"log/slog"
	"time"

	"github.com/hitoshi/cleanroom/internal/model"
)

// DefaultInterval はリフレッシュ間隔のデフォルト値。
const DefaultInterval = 5 * time.Minute

// SnapshotRecorder はリフレッシュとスナップショット記録の実行インターフェース。
type SnapshotRecorder interface {
	RefreshAndRecord(ctx context.Context) (model.OverlapResult, error)
}

// Scheduler はリフレッシュのスケジューリングを行う。
// 失敗したサイクルはログに記録し、次のティックで再実行する。
type Scheduler struct {
	recorder SnapshotRecorder
	logger   *slog.Logger
}

// NewScheduler はSchedulerの新しいインスタンスを生成する。
func NewScheduler(recorder SnapshotRecorder, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		recorder: recorder,
		logger:   logger,
	}
}

// Start は指定間隔のティッカーでスケジューラを起動する。
// intervalが0以下の場合はDefaultIntervalを使用する。
// コンテキストがキャンセルされるまで実行を継続する。
func (s *Scheduler) Start(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.logger.Info("リフレッシュスケジューラを開始しました",
		slog.Duration("interval", interval),
	)

	// 起動直後に1回実行
	s.runAndLog(ctx)

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("リフレッシュスケジューラを停止しました")
			return
		case <-ticker.C:
			s.runAndLog(ctx)
		}
	}
}

// RunOnce はセグメントを1回リフレッシュし、スナップショットを記録する。
func (s *Scheduler) RunOnce(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	start := time.Now()
	result, err := s.recorder.RefreshAndRecord(ctx)
	if err != nil {
		return err
	}

	s.logger.Info("リフレッシュサイクルが完了しました",
		slog.Int("total_a", result.TotalA),
		slog.Int("total_b", result.TotalB),
		slog.Int("overlap_count", result.OverlapCount),
		slog.Float64("percent_overlap", result.PercentOverlap),
		slog.Float64("duration_ms", float64(time.Since(start).Milliseconds())),
	)
	return nil
}

func (s *Scheduler) runAndLog(ctx context.Context) {
	if err := s.RunOnce(ctx); err != nil && ctx.Err() == nil {
		s.logger.Error("リフレッシュサイクルの実行に失敗しました",
			slog.String("error", err.Error()),
		)
	}
}
