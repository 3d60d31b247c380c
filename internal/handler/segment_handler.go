package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/hitoshi/cleanroom/internal/middleware"
	"github.com/hitoshi/cleanroom/internal/model"
)

// homeMessage は GET / が返す稼働確認メッセージ。
const homeMessage = "Audience Targeting Clean Room API is running!"

// historyTimeLayout は履歴のタイムスタンプ書式。タイムゾーンは出力しない。
const historyTimeLayout = "2006-01-02 15:04:05"

// OverlapServiceInterface はセグメントハンドラーが必要とするサービスインターフェース。
type OverlapServiceInterface interface {
	// ComputeOverlap は現在の2セグメントの重複統計を計算する。
	ComputeOverlap(ctx context.Context) (model.OverlapResult, error)
	// RefreshAndRecord はセグメントを更新し、重複統計をスナップショットとして記録する。
	RefreshAndRecord(ctx context.Context) (model.OverlapResult, error)
	// GetHistory は記録済みスナップショットを古い順に返す。
	GetHistory(ctx context.Context) ([]*model.OverlapSnapshot, error)
}

// SegmentHandler はセグメント重複APIのHTTPハンドラー。
type SegmentHandler struct {
	service OverlapServiceInterface
}

// NewSegmentHandler はSegmentHandlerを生成する。
func NewSegmentHandler(service OverlapServiceInterface) *SegmentHandler {
	return &SegmentHandler{service: service}
}

// overlapResponse は重複統計のAPIレスポンス。
type overlapResponse struct {
	OverlapCount   int     `json:"overlap_count"`
	TotalA         int     `json:"total_a"`
	TotalB         int     `json:"total_b"`
	PercentOverlap float64 `json:"percent_overlap"`
}

// statusResponse はステータスのみを返すレスポンス。
type statusResponse struct {
	Status string `json:"status"`
}

// historyEntryResponse は履歴1件分のAPIレスポンス。
type historyEntryResponse struct {
	Timestamp string `json:"timestamp"`
	TotalA    int    `json:"total_a"`
	TotalB    int    `json:"total_b"`
	Overlap   int    `json:"overlap"`
}

// Home は稼働確認用の文字列を返す。
// GET /
func (h *SegmentHandler) Home(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Write([]byte(homeMessage))
}

// GetSegment は現在のセグメント重複統計を返す。
// GET /segment
func (h *SegmentHandler) GetSegment(w http.ResponseWriter, r *http.Request) {
	result, err := h.service.ComputeOverlap(r.Context())
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	middleware.AddLogAttrs(r.Context(), overlapLogAttrs(result)...)

	writeJSON(w, http.StatusOK, toOverlapResponse(result))
}

// Refresh はセグメントを更新してスナップショットを記録する。
// POST /refresh
func (h *SegmentHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	result, err := h.service.RefreshAndRecord(r.Context())
	if err != nil {
		middleware.AddLogAttrs(r.Context(), slog.String("refresh_outcome", "failed"))
		handleServiceError(w, r, err)
		return
	}
	middleware.AddLogAttrs(r.Context(), slog.String("refresh_outcome", "recorded"))
	middleware.AddLogAttrs(r.Context(), overlapLogAttrs(result)...)

	writeJSON(w, http.StatusOK, statusResponse{Status: "data refreshed"})
}

// History はスナップショット履歴を古い順に返す。
// 履歴がない場合は空配列を返す。
// GET /history
func (h *SegmentHandler) History(w http.ResponseWriter, r *http.Request) {
	snapshots, err := h.service.GetHistory(r.Context())
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	middleware.AddLogAttrs(r.Context(), slog.Int("snapshot_count", len(snapshots)))

	entries := make([]historyEntryResponse, 0, len(snapshots))
	for _, s := range snapshots {
		entries = append(entries, toHistoryEntryResponse(s))
	}

	writeJSON(w, http.StatusOK, entries)
}

// overlapLogAttrs はアクセスログに載せる重複統計。
func overlapLogAttrs(r model.OverlapResult) []slog.Attr {
	return []slog.Attr{
		slog.Int("overlap_count", r.OverlapCount),
		slog.Int("total_a", r.TotalA),
		slog.Int("total_b", r.TotalB),
		slog.Float64("percent_overlap", r.PercentOverlap),
	}
}

func toOverlapResponse(r model.OverlapResult) overlapResponse {
	return overlapResponse{
		OverlapCount:   r.OverlapCount,
		TotalA:         r.TotalA,
		TotalB:         r.TotalB,
		PercentOverlap: r.PercentOverlap,
	}
}

func toHistoryEntryResponse(s *model.OverlapSnapshot) historyEntryResponse {
	return historyEntryResponse{
		Timestamp: s.CapturedAt.UTC().Format(historyTimeLayout),
		TotalA:    s.CountA,
		TotalB:    s.CountB,
		Overlap:   s.CountOverlap,
	}
}

// writeJSON はJSONレスポンスを書き込む。
func writeJSON(w http.ResponseWriter, statusCode int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(v)
}
