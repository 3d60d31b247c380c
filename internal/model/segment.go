// Package model はドメインモデルを定義する。
package model

import "fmt"

// SegmentName はオーディエンスセグメントの識別子を表す。
type SegmentName string

const (
	// SegmentA は比較対象の1つ目のセグメント。
	SegmentA SegmentName = "a"
	// SegmentB は比較対象の2つ目のセグメント。
	SegmentB SegmentName = "b"
)

// Validate はセグメント名がサポート対象かどうかを検証する。
func (s SegmentName) Validate() error {
	switch s {
	case SegmentA, SegmentB:
		return nil
	default:
		return fmt.Errorf("unknown segment: %q", string(s))
	}
}

// IdentifierRecord はセグメントに格納される1件のユーザー識別子を表す。
// 作成後は変更されず、個別に削除されることもない。
type IdentifierRecord struct {
	ID               int64
	RawIdentifier    string // 表示・デバッグ用に保持する元の識別子（メールアドレス等）
	HashedIdentifier string // オーバーラップ比較に使う唯一のキー
	AttributeTag     string // 興味カテゴリ等のラベル。比較には使用しない
}
