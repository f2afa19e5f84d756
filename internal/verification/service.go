package verification

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/hitoshi/verifybot/internal/messaging"
	"github.com/hitoshi/verifybot/internal/model"
)

// ServiceDeps はServiceの依存関係を保持する。
type ServiceDeps struct {
	Messenger  messaging.Messenger
	Reconciler Reconciler
	Registry   *Registry     // nilの場合は新規に生成する
	Limiter    *StartLimiter // nilの場合はレート制限しない
	Observer   Observer      // nilの場合はLogObserverを使用する
	Logger     *slog.Logger
}

// Service は認証開始イベントを受け付け、セッションを起動する。
type Service struct {
	cfg        Config
	messenger  messaging.Messenger
	reconciler Reconciler
	registry   *Registry
	limiter    *StartLimiter
	observer   Observer
	logger     *slog.Logger

	wg sync.WaitGroup
}

// NewService はServiceを生成する。
func NewService(cfg Config, deps ServiceDeps) *Service {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Registry == nil {
		deps.Registry = NewRegistry()
	}
	if deps.Observer == nil {
		deps.Observer = NewLogObserver(deps.Logger)
	}
	return &Service{
		cfg:        cfg,
		messenger:  deps.Messenger,
		reconciler: deps.Reconciler,
		registry:   deps.Registry,
		limiter:    deps.Limiter,
		observer:   deps.Observer,
		logger:     deps.Logger,
	}
}

// Begin は認証を開始する。セッションはバックグラウンドで実行され、
// 拒否した場合はその理由を返す。
func (s *Service) Begin(ctx context.Context, req Request) (model.RefusalReason, bool) {
	key := req.Member.ID

	if s.limiter != nil && !s.limiter.Allow(key) {
		s.observer.AdmissionRefused(key, model.RefusalRateLimited)
		return model.RefusalRateLimited, false
	}

	verified, err := s.messenger.HasRole(ctx, req.GuildID, key, s.cfg.VerifiedRole)
	if err != nil {
		s.logger.Warn("認証済みロールの確認に失敗しました",
			slog.String("member_id", key),
			slog.String("error", err.Error()),
		)
	}
	if verified {
		s.observer.AdmissionRefused(key, model.RefusalAlreadyVerified)
		s.notify(ctx, req, alreadyVerified(), alreadyVerifiedNotice(req.Member.Mention), s.cfg.AlreadyVerifiedNoticeTTL)
		return model.RefusalAlreadyVerified, false
	}

	session := newSession(req, s.cfg, s.messenger, s.reconciler, s.observer, s.logger)
	if !s.registry.admit(key, session) {
		s.observer.AdmissionRefused(key, model.RefusalAlreadyInProgress)
		s.notify(ctx, req, alreadyStarted(), alreadyStartedNotice(req.Member.Mention), s.cfg.InProgressNoticeTTL)
		return model.RefusalAlreadyInProgress, false
	}

	s.observer.SessionStarted(session.Info())

	s.wg.Add(1)
	go s.run(ctx, session)

	return "", true
}

func (s *Service) run(ctx context.Context, session *Session) {
	defer s.wg.Done()
	defer s.registry.Release(session.req.Member.ID)
	defer func() {
		if rec := recover(); rec != nil {
			s.logger.Error("認証セッションでpanicが発生しました",
				slog.String("session_id", session.ID),
				slog.String("member_id", session.req.Member.ID),
				slog.Any("panic", rec),
				slog.String("stack", string(debug.Stack())),
			)
			if !session.State().Terminal() {
				session.fail(model.FailureInternal, fmt.Errorf("panic: %v", rec))
			}
		}
	}()

	session.Run(ctx)
}

// notify はDMで通知し、DMが送れない場合は公開チャンネルに一時的な通知を投稿する。
func (s *Service) notify(ctx context.Context, req Request, dm messaging.Message, fallback string, ttl time.Duration) {
	channel, err := s.messenger.OpenDirectChannel(ctx, req.Member.ID)
	if err == nil {
		_, err = s.messenger.SendDirectMessage(ctx, channel, dm)
	}
	if err == nil {
		return
	}

	s.logger.Info("DMを送れないため公開チャンネルで通知します",
		slog.String("member_id", req.Member.ID),
		slog.String("error", err.Error()),
	)
	if req.ChannelID == "" {
		return
	}
	if err := s.messenger.Notice(ctx, req.ChannelID, fallback, ttl); err != nil {
		s.logger.Error("公開チャンネルへの通知に失敗しました",
			slog.String("member_id", req.Member.ID),
			slog.String("error", err.Error()),
		)
	}
}

// Sessions は実行中セッションの一覧を返す。
func (s *Service) Sessions() []model.SessionInfo {
	return s.registry.Snapshot()
}

// ActiveSessions は実行中セッション数を返す。
func (s *Service) ActiveSessions() int {
	return s.registry.Len()
}

// Wait は実行中のセッションがすべて終了するまで待つ。
// ctxが先に終了した場合はctx.Err()を返す。
func (s *Service) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
