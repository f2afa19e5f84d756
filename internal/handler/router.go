package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/hitoshi/verifybot/internal/metrics"
	"github.com/hitoshi/verifybot/internal/middleware"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ヘルスチェック対象の会員台帳
	Store Pinger

	// 実行中セッションの参照
	Sessions SessionLister

	// /metrics で公開するメトリクス。nilの場合はエンドポイントを登録しない。
	Gatherer prometheus.Gatherer

	Logger *slog.Logger
}

// NewRouter は運用エンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	RequestID → LoggingMiddleware → RecoveryMiddleware
func NewRouter(deps *RouterDeps) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(middleware.NewLoggingMiddleware(logger, "/", "/health", "/metrics"))
	r.Use(middleware.NewRecoveryMiddleware(logger))

	ops := NewOpsHandler(deps.Store, deps.Sessions, logger)

	r.Get("/", ops.Alive)
	r.Head("/", ops.Alive)
	r.Get("/health", ops.Health)
	r.Get("/api/sessions", ops.ListSessions)

	if deps.Gatherer != nil {
		r.Method(http.MethodGet, "/metrics", metrics.Handler(deps.Gatherer))
	}

	return r
}
