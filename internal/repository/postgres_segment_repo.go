package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"

	"github.com/hitoshi/cleanroom/internal/model"
)

// PostgresSegmentRepo はPostgreSQLを使用したセグメントリポジトリ。
type PostgresSegmentRepo struct {
	db *sql.DB
}

// NewPostgresSegmentRepo はPostgresSegmentRepoを生成する。
func NewPostgresSegmentRepo(db *sql.DB) *PostgresSegmentRepo {
	return &PostgresSegmentRepo{db: db}
}

// segmentTable はセグメント名に対応するテーブル名を返す。
// テーブル名はSQLに直接埋め込むため、既知のセグメントのみ許可する。
func segmentTable(segment model.SegmentName) (string, error) {
	switch segment {
	case model.SegmentA:
		return "segment_a", nil
	case model.SegmentB:
		return "segment_b", nil
	default:
		return "", segment.Validate()
	}
}

// ListIdentifiers は指定セグメントの全識別子レコードを返す。
func (r *PostgresSegmentRepo) ListIdentifiers(ctx context.Context, segment model.SegmentName) ([]*model.IdentifierRecord, error) {
	table, err := segmentTable(segment)
	if err != nil {
		return nil, err
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT id, raw_identifier, hashed_identifier, attribute_tag FROM `+table,
	)
	if err != nil {
		return nil, model.StorageError(fmt.Sprintf("failed to list identifiers of segment %s", segment), err)
	}
	defer rows.Close()

	var records []*model.IdentifierRecord
	for rows.Next() {
		rec := &model.IdentifierRecord{}
		if err := rows.Scan(&rec.ID, &rec.RawIdentifier, &rec.HashedIdentifier, &rec.AttributeTag); err != nil {
			return nil, model.StorageError("failed to scan identifier", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, model.StorageError("failed to iterate identifiers", err)
	}

	return records, nil
}

// AppendIdentifiers はセグメントA・Bへのレコード追加を同一トランザクションで行う。
// 大量投入に備えてCOPYプロトコルで書き込む。
func (r *PostgresSegmentRepo) AppendIdentifiers(ctx context.Context, a, b []*model.IdentifierRecord) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return model.StorageError("failed to begin transaction", err)
	}
	defer tx.Rollback()

	if err := copyIdentifiers(ctx, tx, "segment_a", a); err != nil {
		return err
	}
	if err := copyIdentifiers(ctx, tx, "segment_b", b); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return model.StorageError("failed to commit transaction", err)
	}

	return nil
}

// copyIdentifiers はトランザクション内でCOPY FROM STDINによりレコードを投入する。
func copyIdentifiers(ctx context.Context, tx *sql.Tx, table string, records []*model.IdentifierRecord) error {
	if len(records) == 0 {
		return nil
	}

	stmt, err := tx.PrepareContext(ctx, pq.CopyIn(table, "raw_identifier", "hashed_identifier", "attribute_tag"))
	if err != nil {
		return model.StorageError(fmt.Sprintf("failed to prepare copy into %s", table), err)
	}
	defer stmt.Close()

	for _, rec := range records {
		if _, err := stmt.ExecContext(ctx, rec.RawIdentifier, rec.HashedIdentifier, rec.AttributeTag); err != nil {
			return model.StorageError(fmt.Sprintf("failed to copy identifier into %s", table), err)
		}
	}

	// 引数なしのExecでバッファをフラッシュする
	if _, err := stmt.ExecContext(ctx); err != nil {
		return model.StorageError(fmt.Sprintf("failed to flush copy into %s", table), err)
	}

	return nil
}
