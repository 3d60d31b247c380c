package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/hitoshi/cleanroom/internal/middleware"
	"github.com/hitoshi/cleanroom/internal/model"
)

// handleServiceError はサービス層から返されたエラーを適切なHTTPステータスコードに変換する。
// ストア到達不能は503、それ以外は500として扱い、詳細はログのみに記録する。
func handleServiceError(w http.ResponseWriter, r *http.Request, err error) {
	attrs := []any{
		slog.String("method", r.Method),
		slog.String("path", r.URL.Path),
		slog.String("request_id", middleware.RequestIDFromContext(r.Context())),
		slog.String("error", err.Error()),
	}

	if errors.Is(err, model.ErrStorageUnavailable) {
		middleware.AddLogAttrs(r.Context(), slog.String("error_code", "STORAGE_UNAVAILABLE"))
		slog.Warn("segment store unavailable", attrs...)
		middleware.WriteStorageUnavailable(w)
		return
	}

	middleware.AddLogAttrs(r.Context(), slog.String("error_code", "INTERNAL_ERROR"))
	slog.Error("internal server error", attrs...)
	middleware.WriteInternalServerError(w)
}

// notFound は未定義パスに統一エラーフォーマットで404を返す。
func notFound(w http.ResponseWriter, r *http.Request) {
	middleware.WriteErrorResponse(w, http.StatusNotFound, &model.APIError{
		Code:     "NOT_FOUND",
		Message:  "指定されたパスは存在しません。",
		Category: "request",
		Action:   "URLを確認してください。",
	})
}

// methodNotAllowed は許可されていないメソッドに統一エラーフォーマットで405を返す。
func methodNotAllowed(w http.ResponseWriter, r *http.Request) {
	middleware.WriteErrorResponse(w, http.StatusMethodNotAllowed, &model.APIError{
		Code:     "METHOD_NOT_ALLOWED",
		Message:  "このメソッドは許可されていません。",
		Category: "request",
		Action:   "HTTPメソッドを確認してください。",
	})
}
