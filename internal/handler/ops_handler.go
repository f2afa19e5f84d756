package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/hitoshi/verifybot/internal/middleware"
	"github.com/hitoshi/verifybot/internal/model"
)

// Pinger は疎通確認ができる依存先のインターフェース。
type Pinger interface {
	Ping(ctx context.Context) error
}

// SessionLister は実行中セッションの一覧を返すインターフェース。
type SessionLister interface {
	Sessions() []model.SessionInfo
}

// healthTimeout は /health での台帳疎通確認のタイムアウト。
const healthTimeout = 3 * time.Second

// aliveBody は稼働確認用のレスポンス本文。
const aliveBody = "Bot is alive!"

// OpsHandler は稼働確認・ヘルスチェック・セッション一覧の運用エンドポイントを提供する。
type OpsHandler struct {
	store    Pinger
	sessions SessionLister
	logger   *slog.Logger
}

// NewOpsHandler は新しいOpsHandlerを生成する。
func NewOpsHandler(store Pinger, sessions SessionLister, logger *slog.Logger) *OpsHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &OpsHandler{store: store, sessions: sessions, logger: logger}
}

// healthResponse は /health のレスポンス形式。
type healthResponse struct {
	Status string `json:"status"`
	Store  string `json:"store"`
}

// sessionResponse は /api/sessions の各要素。
type sessionResponse struct {
	ID              string     `json:"id"`
	MemberKey       string     `json:"member_key"`
	State           string     `json:"state"`
	StartedAt       *time.Time `json:"started_at,omitempty"`
	TimeoutDeadline *time.Time `json:"timeout_deadline,omitempty"`
}

type sessionListResponse struct {
	Count    int               `json:"count"`
	Sessions []sessionResponse `json:"sessions"`
}

// Alive はプロセスが稼働していることだけを返す。
// GET / （外部の死活監視サービス向け）
func (h *OpsHandler) Alive(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	if r.Method != http.MethodHead {
		w.Write([]byte(aliveBody))
	}
}

// Health は会員台帳へ疎通確認し、結果を返す。
// GET /health
func (h *OpsHandler) Health(w http.ResponseWriter, r *http.Request) {
	if h.store != nil {
		ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
		defer cancel()

		if err := h.store.Ping(ctx); err != nil {
			h.logger.Warn("health check failed", slog.String("error", err.Error()))
			middleware.WriteErrorResponse(w, http.StatusServiceUnavailable, model.NewStoreError(err))
			return
		}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(healthResponse{Status: "ok", Store: "ok"})
}

// ListSessions は実行中セッションの件数と一覧を返す。
// GET /api/sessions
func (h *OpsHandler) ListSessions(w http.ResponseWriter, r *http.Request) {
	resp := sessionListResponse{Sessions: []sessionResponse{}}
	if h.sessions != nil {
		for _, info := range h.sessions.Sessions() {
			resp.Sessions = append(resp.Sessions, toSessionResponse(info))
		}
	}
	resp.Count = len(resp.Sessions)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

func toSessionResponse(info model.SessionInfo) sessionResponse {
	resp := sessionResponse{
		ID:        info.ID,
		MemberKey: info.MemberKey,
		State:     string(info.State),
	}
	if !info.StartedAt.IsZero() {
		startedAt := info.StartedAt
		resp.StartedAt = &startedAt
	}
	if !info.TimeoutDeadline.IsZero() {
		deadline := info.TimeoutDeadline
		resp.TimeoutDeadline = &deadline
	}
	return resp
}
