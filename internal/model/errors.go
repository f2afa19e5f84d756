package model

import "fmt"

// VerifyError は認証フローの統一エラーフォーマットを表す。
// DMや公開チャンネルに表示する原因カテゴリと対処方法を含む。
type VerifyError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: validation, timeout, permission, store, dm
	Action   string // ユーザー向け対処方法
	Err      error  // 元になったエラー（任意）
}

// Error はerrorインターフェースを実装する。
func (e *VerifyError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap は元になったエラーを返す。
func (e *VerifyError) Unwrap() error {
	return e.Err
}

// 定義済みエラーコード
const (
	ErrCodeDMBlocked       = "DM_BLOCKED"
	ErrCodeTimeout         = "TIMEOUT"
	ErrCodeStore           = "STORE_ERROR"
	ErrCodePermission      = "PERMISSION_DENIED"
	ErrCodeSessionDeadline = "SESSION_DEADLINE"
	ErrCodeInternal        = "INTERNAL"
)

// FailureReason はセッション失敗理由を表す。値はエラーコードと一致する。
type FailureReason string

const (
	FailureDMBlocked FailureReason = ErrCodeDMBlocked
	FailureStore     FailureReason = ErrCodeStore
	FailureInternal  FailureReason = ErrCodeInternal
)

// RefusalReason はセッション開始を拒否した理由を表す。
type RefusalReason string

const (
	RefusalAlreadyVerified   RefusalReason = "already_verified"
	RefusalAlreadyInProgress RefusalReason = "already_in_progress"
	RefusalRateLimited       RefusalReason = "rate_limited"
)

// NewDMBlockedError はDM送信不可エラーを生成する。
func NewDMBlockedError(err error) *VerifyError {
	return &VerifyError{
		Code:     ErrCodeDMBlocked,
		Message:  "I couldn't DM you.",
		Category: "dm",
		Action:   "Please enable DMs from server members.",
		Err:      err,
	}
}

// NewTimeoutError は入力待ちのタイムアウトエラーを生成する。
func NewTimeoutError() *VerifyError {
	return &VerifyError{
		Code:     ErrCodeTimeout,
		Message:  "Verification timed out.",
		Category: "timeout",
		Action:   "Please restart.",
	}
}

// NewSessionDeadlineError はセッション全体の期限超過エラーを生成する。
func NewSessionDeadlineError() *VerifyError {
	return &VerifyError{
		Code:     ErrCodeSessionDeadline,
		Message:  "Verification took too long.",
		Category: "timeout",
		Action:   "Please restart.",
	}
}

// NewStoreError は会員台帳への書き込み・読み込み失敗エラーを生成する。
func NewStoreError(err error) *VerifyError {
	return &VerifyError{
		Code:     ErrCodeStore,
		Message:  "Verification could not be completed.",
		Category: "store",
		Action:   "Please try again later or contact an administrator.",
		Err:      err,
	}
}

// NewPermissionError はロール付与やニックネーム変更の権限不足エラーを生成する。
func NewPermissionError(step string, err error) *VerifyError {
	return &VerifyError{
		Code:     ErrCodePermission,
		Message:  fmt.Sprintf("missing permission for %s", step),
		Category: "permission",
		Action:   "Check the bot role position and permissions.",
		Err:      err,
	}
}
