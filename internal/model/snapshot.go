package model

import "time"

// OverlapSnapshot はある時点のオーバーラップ統計の履歴レコード。
// 作成後はイミュータブルとして扱い、削除しない。
type OverlapSnapshot struct {
	ID           int64
	CapturedAt   time.Time
	CountA       int
	CountB       int
	CountOverlap int
}

// OverlapResult は2つのセグメントのオーバーラップ計算結果を表す。
type OverlapResult struct {
	OverlapCount   int
	TotalA         int
	TotalB         int
	PercentOverlap float64
}

// Snapshot は計算結果から指定時刻のOverlapSnapshotを生成する。
func (r OverlapResult) Snapshot(capturedAt time.Time) *OverlapSnapshot {
	return &OverlapSnapshot{
		CapturedAt:   capturedAt,
		CountA:       r.TotalA,
		CountB:       r.TotalB,
		CountOverlap: r.OverlapCount,
	}
}

// UnionCount はスナップショット取得時点の和集合のサイズを返す。
func (s *OverlapSnapshot) UnionCount() int {
	return s.CountA + s.CountB - s.CountOverlap
}
