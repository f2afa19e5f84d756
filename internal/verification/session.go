// Package verification はメンバーごとの認証セッションとその受付を提供する。
package verification

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/verifybot/internal/messaging"
	"github.com/hitoshi/verifybot/internal/model"
	"github.com/hitoshi/verifybot/internal/reconcile"
	"github.com/hitoshi/verifybot/internal/validate"
)

// Config は認証セッションの設定を保持する。
type Config struct {
	PromptTimeout   time.Duration // 入力・選択の待機時間。待機のたびにリセットされる
	MaxDuration     time.Duration // セッション全体の期限。0の場合は無制限
	VerifiedRole    string
	UnverifiedRoles []string
	WelcomeChannel  string // 空の場合は歓迎メッセージを投稿しない

	AlreadyVerifiedNoticeTTL time.Duration
	InProgressNoticeTTL      time.Duration
}

// DefaultConfig はデフォルトの設定を返す。
func DefaultConfig() Config {
	return Config{
		PromptTimeout:            180 * time.Second,
		VerifiedRole:             "Member Oracle",
		UnverifiedRoles:          []string{"new man", "new woman"},
		WelcomeChannel:           "welcome-oracle-member-❤️",
		AlreadyVerifiedNoticeTTL: 10 * time.Second,
		InProgressNoticeTTL:      15 * time.Second,
	}
}

// Reconciler はセッションが利用する会員台帳の照合処理。
type Reconciler interface {
	Lookup(ctx context.Context, email string) (*model.Record, error)
	Reconcile(ctx context.Context, p model.Profile) (reconcile.Outcome, error)
}

// Request は認証開始イベントの内容。
type Request struct {
	GuildID   string
	ChannelID string // 開始操作が行われた公開チャンネル
	Member    messaging.Member
}

// Session は1メンバー分の認証フローを進める状態機械。
type Session struct {
	ID  string
	req Request

	cfg        Config
	messenger  messaging.Messenger
	reconciler Reconciler
	observer   Observer
	logger     *slog.Logger

	mu        sync.Mutex
	state     model.SessionState
	startedAt time.Time
	deadline  time.Time
	dmChannel string
}

func newSession(req Request, cfg Config, m messaging.Messenger, r Reconciler, o Observer, logger *slog.Logger) *Session {
	return &Session{
		ID:         uuid.NewString(),
		req:        req,
		cfg:        cfg,
		messenger:  m,
		reconciler: r,
		observer:   o,
		logger:     logger.With(slog.String("member_id", req.Member.ID)),
		state:      model.StateAwaitingInput,
		startedAt:  time.Now(),
	}
}

// Info はセッションのスナップショットを返す。
func (s *Session) Info() model.SessionInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	return model.SessionInfo{
		ID:              s.ID,
		MemberKey:       s.req.Member.ID,
		State:           s.state,
		StartedAt:       s.startedAt,
		TimeoutDeadline: s.deadline,
	}
}

// State は現在の状態を返す。
func (s *Session) State() model.SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) transition(next model.SessionState) {
	s.mu.Lock()
	prev := s.state
	s.state = next
	if next != model.StateAwaitingInput && next != model.StateAwaitingChoice {
		s.deadline = time.Time{}
	}
	s.mu.Unlock()

	s.logger.Debug("セッションの状態が遷移しました",
		slog.String("session_id", s.ID),
		slog.String("from", string(prev)),
		slog.String("state", string(next)),
	)
}

func (s *Session) await(state model.SessionState) {
	s.transition(state)
	s.mu.Lock()
	s.deadline = time.Now().Add(s.cfg.PromptTimeout)
	s.mu.Unlock()
}

// Run はセッションを終端状態まで進め、最終状態を返す。
func (s *Session) Run(ctx context.Context) model.SessionState {
	if s.cfg.MaxDuration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.MaxDuration)
		defer cancel()
	}

	dm, err := s.messenger.OpenDirectChannel(ctx, s.req.Member.ID)
	if err == nil {
		s.dmChannel = dm
		_, err = s.messenger.SendDirectMessage(ctx, dm, startPrompt())
	}
	if err != nil {
		return s.failAtEntry(ctx, err)
	}

	profile, state, ok := s.collectProfile(ctx)
	if !ok {
		return state
	}
	s.transition(model.StateInputValid)

	existing, err := s.reconciler.Lookup(ctx, profile.Email)
	if err != nil {
		return s.failStore(ctx, err)
	}
	if existing == nil {
		s.transition(model.StateNoMatch)
		return s.reconcileAndApply(ctx, profile)
	}

	s.transition(model.StateMatchFound)
	s.observer.ConflictDetected(s.Info(), *existing, profile)

	s.await(model.StateAwaitingChoice)
	choice, err := s.messenger.PresentChoice(ctx, s.req.Member.ID, dm, conflictPrompt(*existing, profile),
		[]messaging.Choice{keepChoice, applyChoice}, s.cfg.PromptTimeout)
	if err != nil {
		return s.waitFailed(ctx, err)
	}
	if choice.Emoji == keepChoice.Emoji {
		return s.apply(ctx, *existing, model.StatusKept)
	}
	return s.reconcileAndApply(ctx, profile)
}

// collectProfile は有効な入力を受け取るまで入力待ちを繰り返す。
func (s *Session) collectProfile(ctx context.Context) (model.Profile, model.SessionState, bool) {
	for {
		s.await(model.StateAwaitingInput)
		text, err := s.messenger.AwaitNextMessage(ctx, s.req.Member.ID, s.dmChannel, s.cfg.PromptTimeout)
		if err != nil {
			return model.Profile{}, s.waitFailed(ctx, err), false
		}

		profile, err := validate.Validate(text)
		var verr *validate.ValidationError
		if errors.As(err, &verr) {
			s.observer.InputRejected(s.Info(), verr.Code)
			if _, err := s.messenger.SendDirectMessage(ctx, s.dmChannel, invalidInput(text, verr)); err != nil {
				return model.Profile{}, s.fail(model.FailureDMBlocked, err), false
			}
			continue
		}
		if err != nil {
			return model.Profile{}, s.fail(model.FailureInternal, err), false
		}
		return profile, "", true
	}
}

func (s *Session) reconcileAndApply(ctx context.Context, p model.Profile) model.SessionState {
	out, err := s.reconciler.Reconcile(ctx, p)
	if err != nil {
		return s.failStore(ctx, err)
	}
	// 台帳へ反映済みのため、以降はセッション期限やキャンセルの影響を受けない
	ctx = context.WithoutCancel(ctx)
	s.sendDM(ctx, outcomeMessage(out))
	return s.apply(ctx, out.Member(), out.Status())
}

// applyStep はAPPLYINGで実行する副作用の1つ。失敗しても後続の手順は実行する。
type applyStep struct {
	name string
	run  func(ctx context.Context, rec model.Record) error
}

func (s *Session) applySteps() []applyStep {
	guild, user := s.req.GuildID, s.req.Member.ID
	return []applyStep{
		{"revoke_unverified_roles", func(ctx context.Context, _ model.Record) error {
			var errs []error
			for _, role := range s.cfg.UnverifiedRoles {
				has, err := s.messenger.HasRole(ctx, guild, user, role)
				if err != nil {
					errs = append(errs, err)
					continue
				}
				if has {
					errs = append(errs, s.messenger.RevokeRole(ctx, guild, user, role))
				}
			}
			return errors.Join(errs...)
		}},
		{"grant_verified_role", func(ctx context.Context, _ model.Record) error {
			return s.messenger.GrantRole(ctx, guild, user, s.cfg.VerifiedRole)
		}},
		{"set_display_name", func(ctx context.Context, rec model.Record) error {
			return s.messenger.SetDisplayName(ctx, guild, user, rec.DisplayName())
		}},
		{"announce_welcome", func(ctx context.Context, rec model.Record) error {
			if s.cfg.WelcomeChannel == "" {
				return nil
			}
			return s.messenger.Announce(ctx, guild, s.cfg.WelcomeChannel,
				welcomeMessage(s.req.Member.Mention, rec.MemberID, s.cfg.VerifiedRole))
		}},
	}
}

func (s *Session) apply(ctx context.Context, rec model.Record, status model.ReconcileStatus) model.SessionState {
	ctx = context.WithoutCancel(ctx)
	s.transition(model.StateApplying)

	for _, step := range s.applySteps() {
		err := step.run(ctx, rec)
		if err == nil {
			continue
		}
		if errors.Is(err, messaging.ErrPermissionDenied) {
			perr := model.NewPermissionError(step.name, err)
			s.logger.Warn("権限不足のため手順をスキップしました",
				slog.String("session_id", s.ID),
				slog.String("step", step.name),
				slog.String("action", perr.Action),
			)
			continue
		}
		s.logger.Error("認証後の手順に失敗しました",
			slog.String("session_id", s.ID),
			slog.String("step", step.name),
			slog.String("error", err.Error()),
		)
	}

	s.transition(model.StateComplete)
	s.observer.VerificationCompleted(s.Info(), status, rec.MemberID, rec.FullName)
	return model.StateComplete
}

func (s *Session) failAtEntry(ctx context.Context, err error) model.SessionState {
	if !errors.Is(err, messaging.ErrDMBlocked) {
		return s.fail(model.FailureInternal, err)
	}
	if s.req.ChannelID != "" {
		if nerr := s.messenger.Notice(context.WithoutCancel(ctx), s.req.ChannelID, dmBlockedNotice(s.req.Member.Mention), 0); nerr != nil {
			s.logger.Error("DM拒否の通知に失敗しました",
				slog.String("session_id", s.ID),
				slog.String("error", nerr.Error()),
			)
		}
	}
	return s.fail(model.FailureDMBlocked, model.NewDMBlockedError(err))
}

func (s *Session) failStore(ctx context.Context, err error) model.SessionState {
	var verr *model.VerifyError
	if !errors.As(err, &verr) {
		verr = model.NewStoreError(err)
	}
	s.sendDM(context.WithoutCancel(ctx), failureMessage("❌ Verification Failed", verr))
	return s.fail(model.FailureStore, verr)
}

func (s *Session) fail(reason model.FailureReason, err error) model.SessionState {
	s.transition(model.StateFailed)
	s.observer.SessionFailed(s.Info(), reason, err)
	return model.StateFailed
}

// waitFailed は入力・選択待ちの失敗を終端状態に変換する。
func (s *Session) waitFailed(ctx context.Context, err error) model.SessionState {
	switch {
	case errors.Is(err, messaging.ErrTimeout):
		return s.timeout(ctx, model.NewTimeoutError())
	case errors.Is(err, context.DeadlineExceeded) && s.cfg.MaxDuration > 0:
		return s.timeout(ctx, model.NewSessionDeadlineError())
	case errors.Is(err, messaging.ErrDMBlocked):
		return s.fail(model.FailureDMBlocked, model.NewDMBlockedError(err))
	default:
		return s.fail(model.FailureInternal, err)
	}
}

func (s *Session) timeout(ctx context.Context, verr *model.VerifyError) model.SessionState {
	s.transition(model.StateTimedOut)
	s.sendDM(context.WithoutCancel(ctx), messaging.Message{
		Title:       "⌛ Timeout",
		Description: verr.Message + " " + verr.Action,
		Color:       messaging.ColorRed,
	})
	s.observer.SessionTimedOut(s.Info())
	return model.StateTimedOut
}

// sendDM は結果通知のDMを送る。送信失敗は記録のみ行う。
func (s *Session) sendDM(ctx context.Context, msg messaging.Message) {
	if s.dmChannel == "" {
		return
	}
	if _, err := s.messenger.SendDirectMessage(ctx, s.dmChannel, msg); err != nil {
		s.logger.Warn("DMの送信に失敗しました",
			slog.String("session_id", s.ID),
			slog.String("title", msg.Title),
			slog.String("error", err.Error()),
		)
	}
}
