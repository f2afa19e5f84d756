// Package messaging は認証フローが利用するメッセージング基盤の抽象を提供する。
package messaging

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrDMBlocked は相手がサーバーメンバーからのDMを拒否している場合に返す。
	ErrDMBlocked = errors.New("direct messages are blocked")
	// ErrTimeout は待機時間内に応答が無かった場合に返す。
	ErrTimeout = errors.New("timed out waiting for a reply")
	// ErrPermissionDenied はボットに操作権限が無い場合に返す。
	ErrPermissionDenied = errors.New("permission denied")
)

// Color はメッセージの強調色（RGB）。
type Color int

const (
	ColorGold   Color = 0xF1C40F
	ColorRed    Color = 0xE74C3C
	ColorBlue   Color = 0x3498DB
	ColorGreen  Color = 0x2ECC71
	ColorOrange Color = 0xE67E22
)

// Message はDMや公開チャンネルに送る埋め込み形式のメッセージ。
type Message struct {
	Title       string
	Description string
	Color       Color
}

// Member は認証対象のギルドメンバー。
type Member struct {
	ID          string
	DisplayName string
	Mention     string
	IsBot       bool
}

// Choice はリアクションで選択させる選択肢。
type Choice struct {
	Emoji string
	Label string
}

// Messenger は認証セッションが利用するメッセージング操作。
// 待機系の操作はタイムアウト時にErrTimeout、ctxキャンセル時にctx.Err()を返す。
type Messenger interface {
	// OpenDirectChannel はメンバーとのDMチャンネルを開きチャンネルIDを返す。
	OpenDirectChannel(ctx context.Context, userID string) (string, error)

	// SendDirectMessage はDMチャンネルにメッセージを送りメッセージIDを返す。
	SendDirectMessage(ctx context.Context, channelID string, msg Message) (string, error)

	// AwaitNextMessage は指定メンバーが指定チャンネルに送る次のテキストを待つ。
	AwaitNextMessage(ctx context.Context, userID, channelID string, timeout time.Duration) (string, error)

	// PresentChoice はメッセージに選択肢のリアクションを付けて送り、そのメッセージへの
	// 指定メンバーのリアクションを待つ。
	PresentChoice(ctx context.Context, userID, channelID string, msg Message, choices []Choice, timeout time.Duration) (Choice, error)

	HasRole(ctx context.Context, guildID, userID, roleName string) (bool, error)
	GrantRole(ctx context.Context, guildID, userID, roleName string) error
	RevokeRole(ctx context.Context, guildID, userID, roleName string) error

	// SetDisplayName はギルド内のニックネームを変更する。権限不足の場合はErrPermissionDeniedを返す。
	SetDisplayName(ctx context.Context, guildID, userID, name string) error

	// Announce はギルドの指定名チャンネルにメッセージを投稿する。
	Announce(ctx context.Context, guildID, channelName string, msg Message) error

	// Notice は公開チャンネルにテキストを投稿する。deleteAfterが正の場合はその後に削除する。
	Notice(ctx context.Context, channelID, text string, deleteAfter time.Duration) error
}
