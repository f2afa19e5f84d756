// Package model はドメインモデルを定義する。
package model

import (
	"strings"
	"time"
)

// Profile はDMで収集し検証済みになった会員プロフィールを表す。
// セッション内でのみ使用し、検証後は変更しない。
type Profile struct {
	Email           string // 小文字に正規化済み
	FullName        string
	BirthDate       string // 入力されたままの文字列
	DisplayNickname string
}

// Record は会員台帳に永続化された1行を表す。
// MemberIDが設定されEmailが空の行は予約枠として扱う。
type Record struct {
	Email           string
	FullName        string
	BirthDate       string
	DisplayNickname string
	MemberID        string
}

// IsReservedSlot はEmailが空でMemberIDを持つ行かどうかを返す。
// 番号の下限判定はmemberidパッケージが行う。
func (r Record) IsReservedSlot() bool {
	return strings.TrimSpace(r.Email) == "" && strings.TrimSpace(r.MemberID) != ""
}

// SameFields は更新対象フィールド（氏名・生年月日・ニックネーム）が
// トリム後に完全一致するかを返す。
func (r Record) SameFields(p Profile) bool {
	return strings.TrimSpace(r.FullName) == strings.TrimSpace(p.FullName) &&
		strings.TrimSpace(r.BirthDate) == strings.TrimSpace(p.BirthDate) &&
		strings.TrimSpace(r.DisplayNickname) == strings.TrimSpace(p.DisplayNickname)
}

// WithProfile はプロフィールの内容で更新対象フィールドを上書きしたRecordを返す。
// MemberIDは維持する。Emailは空の場合のみプロフィールの値を使う。
func (r Record) WithProfile(p Profile) Record {
	out := r
	if strings.TrimSpace(out.Email) == "" {
		out.Email = p.Email
	}
	out.FullName = p.FullName
	out.BirthDate = p.BirthDate
	out.DisplayNickname = p.DisplayNickname
	return out
}

// DisplayName はギルド内のニックネーム表記 "{MemberID} | {FullName}" を返す。
func (r Record) DisplayName() string {
	return r.MemberID + " | " + r.FullName
}

// ReconcileStatus は照合結果の種別を表す。
type ReconcileStatus string

const (
	// StatusUnchanged は既存レコードと同一で書き込みを行わなかったことを示す。
	StatusUnchanged ReconcileStatus = "unchanged"
	// StatusUpdated は既存レコードを上書きしたことを示す。
	StatusUpdated ReconcileStatus = "updated"
	// StatusNew は予約枠の確保または新規追加で登録したことを示す。
	StatusNew ReconcileStatus = "new"
	// StatusKept は既存データ維持が選択され照合を行わなかったことを示す。
	StatusKept ReconcileStatus = "kept"
)

// SessionState は認証セッションの状態を表す。
type SessionState string

const (
	StateAwaitingInput  SessionState = "awaiting_input"
	StateInputValid     SessionState = "input_valid"
	StateMatchFound     SessionState = "match_found"
	StateAwaitingChoice SessionState = "awaiting_choice"
	StateNoMatch        SessionState = "no_match"
	StateApplying       SessionState = "applying"
	StateComplete       SessionState = "complete"
	StateTimedOut       SessionState = "timed_out"
	StateFailed         SessionState = "failed"
)

// Terminal は終端状態かどうかを返す。
func (s SessionState) Terminal() bool {
	return s == StateComplete || s == StateTimedOut || s == StateFailed
}

// SessionInfo は実行中セッションの運用向けスナップショット。
type SessionInfo struct {
	ID              string
	MemberKey       string
	State           SessionState
	StartedAt       time.Time
	TimeoutDeadline time.Time
}
