package verification

import (
	"log/slog"

	"github.com/hitoshi/verifybot/internal/model"
	"github.com/hitoshi/verifybot/internal/validate"
)

// Observer はセッションの進行を通知するシグナルを受け取る。
// 1つのセッションはVerificationCompleted, SessionTimedOut, SessionFailedの
// いずれか1つで必ず終わる。
type Observer interface {
	SessionStarted(info model.SessionInfo)
	AdmissionRefused(memberKey string, reason model.RefusalReason)
	InputRejected(info model.SessionInfo, code validate.Code)
	ConflictDetected(info model.SessionInfo, existing model.Record, incoming model.Profile)
	VerificationCompleted(info model.SessionInfo, status model.ReconcileStatus, memberID, name string)
	SessionTimedOut(info model.SessionInfo)
	SessionFailed(info model.SessionInfo, reason model.FailureReason, err error)
}

// Observers は複数のObserverに同じシグナルを配る。
type Observers []Observer

func (obs Observers) SessionStarted(info model.SessionInfo) {
	for _, o := range obs {
		o.SessionStarted(info)
	}
}

func (obs Observers) AdmissionRefused(memberKey string, reason model.RefusalReason) {
	for _, o := range obs {
		o.AdmissionRefused(memberKey, reason)
	}
}

func (obs Observers) InputRejected(info model.SessionInfo, code validate.Code) {
	for _, o := range obs {
		o.InputRejected(info, code)
	}
}

func (obs Observers) ConflictDetected(info model.SessionInfo, existing model.Record, incoming model.Profile) {
	for _, o := range obs {
		o.ConflictDetected(info, existing, incoming)
	}
}

func (obs Observers) VerificationCompleted(info model.SessionInfo, status model.ReconcileStatus, memberID, name string) {
	for _, o := range obs {
		o.VerificationCompleted(info, status, memberID, name)
	}
}

func (obs Observers) SessionTimedOut(info model.SessionInfo) {
	for _, o := range obs {
		o.SessionTimedOut(info)
	}
}

func (obs Observers) SessionFailed(info model.SessionInfo, reason model.FailureReason, err error) {
	for _, o := range obs {
		o.SessionFailed(info, reason, err)
	}
}

// LogObserver はシグナルを構造化ログとして出力する。
type LogObserver struct {
	logger *slog.Logger
}

// NewLogObserver はLogObserverを生成する。loggerがnilの場合はslog.Defaultを使用する。
func NewLogObserver(logger *slog.Logger) *LogObserver {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogObserver{logger: logger}
}

func sessionAttrs(info model.SessionInfo) []any {
	return []any{
		slog.String("session_id", info.ID),
		slog.String("member_id", info.MemberKey),
		slog.String("state", string(info.State)),
	}
}

func (l *LogObserver) SessionStarted(info model.SessionInfo) {
	l.logger.Info("認証セッションを開始しました", sessionAttrs(info)...)
}

func (l *LogObserver) AdmissionRefused(memberKey string, reason model.RefusalReason) {
	l.logger.Info("認証の開始を拒否しました",
		slog.String("member_id", memberKey),
		slog.String("reason", string(reason)),
	)
}

func (l *LogObserver) InputRejected(info model.SessionInfo, code validate.Code) {
	l.logger.Info("入力を差し戻しました", append(sessionAttrs(info), slog.String("code", string(code)))...)
}

func (l *LogObserver) ConflictDetected(info model.SessionInfo, existing model.Record, incoming model.Profile) {
	l.logger.Info("既存の会員データが見つかりました",
		append(sessionAttrs(info),
			slog.String("member_no", existing.MemberID),
			slog.Bool("identical", existing.SameFields(incoming)),
		)...,
	)
}

func (l *LogObserver) VerificationCompleted(info model.SessionInfo, status model.ReconcileStatus, memberID, name string) {
	l.logger.Info("認証が完了しました",
		append(sessionAttrs(info),
			slog.String("status", string(status)),
			slog.String("member_no", memberID),
			slog.String("name", name),
		)...,
	)
}

func (l *LogObserver) SessionTimedOut(info model.SessionInfo) {
	l.logger.Info("認証セッションがタイムアウトしました", sessionAttrs(info)...)
}

func (l *LogObserver) SessionFailed(info model.SessionInfo, reason model.FailureReason, err error) {
	attrs := append(sessionAttrs(info), slog.String("reason", string(reason)))
	if err != nil {
		attrs = append(attrs, slog.String("error", err.Error()))
	}
	l.logger.Warn("認証セッションが失敗しました", attrs...)
}
