package repository

import (
	"context"
	"database/sql"

	"github.com/hitoshi/cleanroom/internal/model"
)

// PostgresSnapshotRepo はPostgreSQLを使用したオーバーラップ履歴リポジトリ。
type PostgresSnapshotRepo struct {
	db *sql.DB
}

// NewPostgresSnapshotRepo はPostgresSnapshotRepoを生成する。
func NewPostgresSnapshotRepo(db *sql.DB) *PostgresSnapshotRepo {
	return &PostgresSnapshotRepo{db: db}
}

// AppendSnapshot は履歴を1行追加し、採番されたIDをsnapshotに設定する。
func (r *PostgresSnapshotRepo) AppendSnapshot(ctx context.Context, snapshot *model.OverlapSnapshot) error {
	err := r.db.QueryRowContext(ctx,
		`INSERT INTO overlap_history (captured_at, count_a, count_b, count_overlap)
		 VALUES ($1, $2, $3, $4)
		 RETURNING id`,
		snapshot.CapturedAt, snapshot.CountA, snapshot.CountB, snapshot.CountOverlap,
	).Scan(&snapshot.ID)
	if err != nil {
		return model.StorageError("failed to append snapshot", err)
	}
	return nil
}

// ListSnapshots は全履歴をcaptured_at昇順で返す。
// 同一時刻のスナップショットは挿入順（id昇順）に並べる。
func (r *PostgresSnapshotRepo) ListSnapshots(ctx context.Context) ([]*model.OverlapSnapshot, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, captured_at, count_a, count_b, count_overlap
		 FROM overlap_history
		 ORDER BY captured_at ASC, id ASC`,
	)
	if err != nil {
		return nil, model.StorageError("failed to list snapshots", err)
	}
	defer rows.Close()

	var snapshots []*model.OverlapSnapshot
	for rows.Next() {
		s := &model.OverlapSnapshot{}
		if err := rows.Scan(&s.ID, &s.CapturedAt, &s.CountA, &s.CountB, &s.CountOverlap); err != nil {
			return nil, model.StorageError("failed to scan snapshot", err)
		}
		snapshots = append(snapshots, s)
	}
	if err := rows.Err(); err != nil {
		return nil, model.StorageError("failed to iterate snapshots", err)
	}

	return snapshots, nil
}
