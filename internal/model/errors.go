package model

import (
	"errors"
	"fmt"
)

// ErrStorageUnavailable はセグメントストアの読み書きができないことを示す。
// リポジトリ層は下位のドライバエラーと合わせてこのエラーをラップして返す。
var ErrStorageUnavailable = errors.New("storage unavailable")

// StorageError はストア操作の失敗をErrStorageUnavailableでラップする。
// op には失敗した操作の説明を渡す。
func StorageError(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrStorageUnavailable, err)
}

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: storage, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeStorageUnavailable = "STORAGE_UNAVAILABLE"
	ErrCodeInternal           = "INTERNAL_ERROR"
)

// NewStorageUnavailableError はストア到達不能エラーを生成する。
func NewStorageUnavailableError() *APIError {
	return &APIError{
		Code:     ErrCodeStorageUnavailable,
		Message:  "セグメントストアに接続できません。",
		Category: "storage",
		Action:   "しばらく待ってから再度お試しください。",
	}
}

// NewInternalError は内部エラーを生成する。
// 詳細はログのみに記録し、ユーザーには一般的なメッセージを返す。
func NewInternalError() *APIError {
	return &APIError{
		Code:     ErrCodeInternal,
		Message:  "内部エラーが発生しました。",
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	}
}
