package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/hitoshi/cleanroom/internal/metrics"
	"github.com/hitoshi/cleanroom/internal/middleware"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// セグメント重複
	OverlapService OverlapServiceInterface

	// ヘルスチェック（nilの場合は常にok）
	HealthChecker HealthChecker

	// ミドルウェア依存
	CORSAllowedOrigin string
	Logger            *slog.Logger
	Metrics           middleware.HTTPStatusRecorder

	// Gatherer が設定されている場合のみ /metrics を公開する。
	Gatherer prometheus.Gatherer
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	RequestID → Logging → Recovery → Metrics → SecurityHeaders → CORS
func NewRouter(deps *RouterDeps) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r := chi.NewRouter()

	r.Use(middleware.NewRequestIDMiddleware())
	r.Use(middleware.NewLoggingMiddleware(logger))
	r.Use(middleware.NewRecoveryMiddleware(logger))
	r.Use(middleware.NewMetricsMiddleware(deps.Metrics))
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))

	r.NotFound(notFound)
	r.MethodNotAllowed(methodNotAllowed)

	segmentHandler := NewSegmentHandler(deps.OverlapService)
	healthHandler := NewHealthHandler(deps.HealthChecker)

	r.Get("/", segmentHandler.Home)
	r.Get("/segment", segmentHandler.GetSegment)
	r.Post("/refresh", segmentHandler.Refresh)
	r.Get("/history", segmentHandler.History)

	// 運用向け
	r.Get("/health", healthHandler.Health)
	if deps.Gatherer != nil {
		r.Method(http.MethodGet, "/metrics", metrics.Handler(deps.Gatherer))
	}

	return r
}
