// Package overlap は2つのオーディエンスセグメントのオーバーラップ計算と
// 履歴スナップショットの記録を提供する。
//
// サービスは呼び出し間で状態を持たない。毎回セグメントストアから現在の内容を読み直す。
package overlap

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/hitoshi/cleanroom/internal/model"
	"github.com/hitoshi/cleanroom/internal/repository"
)

// Refresher はセグメントに新しい識別子を取り込むインジェスト処理のインターフェース。
type Refresher interface {
	Refresh(ctx context.Context) error
}

// SnapshotPublisher は記録済みスナップショットを外部へ通知するインターフェース。
type SnapshotPublisher interface {
	PublishSnapshot(ctx context.Context, snapshot *model.OverlapSnapshot) error
}

// MetricsRecorder はオーバーラップ計算のメトリクス記録インターフェース。
type MetricsRecorder interface {
	RecordOverlapComputed(result model.OverlapResult, duration time.Duration)
	RecordOverlapFailure()
	RecordRefresh(success bool)
	RecordSnapshotAppended()
}

// Service はセグメントオーバーラップの計算と記録を行う。
type Service struct {
	segmentRepo  repository.SegmentRepository
	snapshotRepo repository.SnapshotRepository
	refresher    Refresher
	logger       *slog.Logger

	// Publisher が設定されている場合、記録したスナップショットを通知する。
	Publisher SnapshotPublisher
	// Metrics が設定されている場合、計算結果と失敗を記録する。
	Metrics MetricsRecorder
	// Now はスナップショットの取得時刻を返す。テストで差し替える。
	Now func() time.Time
}

// NewService はServiceを生成する。
func NewService(
	segmentRepo repository.SegmentRepository,
	snapshotRepo repository.SnapshotRepository,
	refresher Refresher,
	logger *slog.Logger,
) *Service {
	return &Service{
		segmentRepo:  segmentRepo,
		snapshotRepo: snapshotRepo,
		refresher:    refresher,
		logger:       logger,
		Now:          time.Now,
	}
}

// ComputeOverlap はセグメントA・Bの重複を除いたハッシュ化識別子集合を比較し、
// オーバーラップ統計を返す。ストアへの書き込みは行わない。
// 2回の読み出しは相互にアトミックではない。
func (s *Service) ComputeOverlap(ctx context.Context) (model.OverlapResult, error) {
	start := time.Now()

	setA, err := s.distinctHashes(ctx, model.SegmentA)
	if err != nil {
		s.recordFailure()
		return model.OverlapResult{}, err
	}
	setB, err := s.distinctHashes(ctx, model.SegmentB)
	if err != nil {
		s.recordFailure()
		return model.OverlapResult{}, err
	}

	overlap := intersectionSize(setA, setB)
	union := len(setA) + len(setB) - overlap

	result := model.OverlapResult{
		OverlapCount:   overlap,
		TotalA:         len(setA),
		TotalB:         len(setB),
		PercentOverlap: PercentOverlap(overlap, union),
	}

	if s.Metrics != nil {
		s.Metrics.RecordOverlapComputed(result, time.Since(start))
	}

	return result, nil
}

// RefreshAndRecord はインジェストを実行した後にオーバーラップを計算し、
// 結果をスナップショットとして履歴に追記する。
// 履歴の追記に失敗した場合は計算結果を返さずにエラーを返す。
func (s *Service) RefreshAndRecord(ctx context.Context) (model.OverlapResult, error) {
	result, err := s.refreshAndRecord(ctx)
	if s.Metrics != nil {
		s.Metrics.RecordRefresh(err == nil)
	}
	return result, err
}

func (s *Service) refreshAndRecord(ctx context.Context) (model.OverlapResult, error) {
	if err := s.refresher.Refresh(ctx); err != nil {
		return model.OverlapResult{}, fmt.Errorf("failed to refresh segments: %w", err)
	}

	result, err := s.ComputeOverlap(ctx)
	if err != nil {
		return model.OverlapResult{}, err
	}

	// PostgreSQLのTIMESTAMP精度に合わせてマイクロ秒に丸める
	snapshot := result.Snapshot(s.Now().UTC().Truncate(time.Microsecond))
	if err := s.snapshotRepo.AppendSnapshot(ctx, snapshot); err != nil {
		return model.OverlapResult{}, err
	}
	if s.Metrics != nil {
		s.Metrics.RecordSnapshotAppended()
	}

	s.logger.Info("overlap snapshot recorded",
		slog.Int64("snapshot_id", snapshot.ID),
		slog.Int("count_a", snapshot.CountA),
		slog.Int("count_b", snapshot.CountB),
		slog.Int("count_overlap", snapshot.CountOverlap),
	)

	// スナップショットは永続化済みのため、通知の失敗はログに留める
	if s.Publisher != nil {
		if err := s.Publisher.PublishSnapshot(ctx, snapshot); err != nil {
			s.logger.Warn("failed to publish overlap snapshot",
				slog.Int64("snapshot_id", snapshot.ID),
				slog.String("error", err.Error()),
			)
		}
	}

	return result, nil
}

// GetHistory は記録済みの全スナップショットをcaptured_at昇順で返す。
func (s *Service) GetHistory(ctx context.Context) ([]*model.OverlapSnapshot, error) {
	return s.snapshotRepo.ListSnapshots(ctx)
}

// distinctHashes は指定セグメントのハッシュ化識別子を重複排除した集合を返す。
func (s *Service) distinctHashes(ctx context.Context, segment model.SegmentName) (map[string]struct{}, error) {
	records, err := s.segmentRepo.ListIdentifiers(ctx, segment)
	if err != nil {
		return nil, err
	}

	set := make(map[string]struct{}, len(records))
	for _, rec := range records {
		set[rec.HashedIdentifier] = struct{}{}
	}
	return set, nil
}

func (s *Service) recordFailure() {
	if s.Metrics != nil {
		s.Metrics.RecordOverlapFailure()
	}
}

// intersectionSize は2つの集合の積集合のサイズを返す。小さい側を走査する。
func intersectionSize(a, b map[string]struct{}) int {
	if len(a) > len(b) {
		a, b = b, a
	}
	n := 0
	for h := range a {
		if _, ok := b[h]; ok {
			n++
		}
	}
	return n
}

// PercentOverlap は和集合に対する積集合の割合を百分率で返す。
// 値の10進表現を小数第2位に丸める。ちょうど中間の場合は偶数側に丸める。
// 和集合が空の場合は0を返す。
func PercentOverlap(overlap, union int) float64 {
	denom := max(union, 1)
	pct := float64(overlap) / float64(denom) * 100
	// FormatFloatは正確な2進値から丸めるため、x*100の誤差を持ち込まない
	rounded, err := strconv.ParseFloat(strconv.FormatFloat(pct, 'f', 2, 64), 64)
	if err != nil {
		return 0
	}
	return rounded
}
