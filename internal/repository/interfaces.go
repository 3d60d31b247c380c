// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"database/sql"

	"github.com/hitoshi/cleanroom/internal/model"
)

// SegmentRepository はセグメント識別子の永続化インターフェース。
// 識別子は追記のみで、更新・個別削除は行わない。
// 失敗時は model.ErrStorageUnavailable をラップしたエラーを返す。
type SegmentRepository interface {
	// ListIdentifiers は指定セグメントの全識別子レコードを返す。順序は保証しない。
	ListIdentifiers(ctx context.Context, segment model.SegmentName) ([]*model.IdentifierRecord, error)

	// AppendIdentifiers はセグメントA・Bへのレコード追加を同一トランザクションで行う。
	AppendIdentifiers(ctx context.Context, a, b []*model.IdentifierRecord) error
}

// SnapshotRepository はオーバーラップ履歴の永続化インターフェース。
// 失敗時は model.ErrStorageUnavailable をラップしたエラーを返す。
type SnapshotRepository interface {
	// AppendSnapshot は履歴を1行追加する。既存の行は変更しない。
	AppendSnapshot(ctx context.Context, snapshot *model.OverlapSnapshot) error

	// ListSnapshots は全履歴をcaptured_at昇順で返す。
	ListSnapshots(ctx context.Context) ([]*model.OverlapSnapshot, error)
}

// TxBeginner はトランザクション開始用のインターフェース。
type TxBeginner interface {
	BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error)
}
