// Package repository は会員台帳の永続化インターフェースと実装を提供する。
package repository

import (
	"context"
	"errors"

	"github.com/hitoshi/verifybot/internal/model"
)

var (
	// ErrNotFound は更新対象のレコードが存在しない場合に返す。
	ErrNotFound = errors.New("member record not found")
	// ErrSlotUnavailable は指定した予約枠が存在しないか、既に確保済みの場合に返す。
	ErrSlotUnavailable = errors.New("reserved slot unavailable")
)

// MemberRepository は会員台帳の永続化インターフェース。
// 同一プロセス内では書き込み直後の読み取りに結果が反映されること。
type MemberRepository interface {
	// FindByEmail はメールアドレス（大文字小文字を区別しない完全一致）でレコードを検索する。
	// 見つからない場合はnilを返す。
	FindByEmail(ctx context.Context, email string) (*model.Record, error)

	// ListAll は全レコードを台帳の並び順で返す。予約枠の探索順序はこの順に従う。
	ListAll(ctx context.Context) ([]model.Record, error)

	// ListAllIDs は空でない会員番号を台帳の並び順で返す。
	ListAllIDs(ctx context.Context) ([]string, error)

	// Append はレコードを台帳の末尾に追加する。
	Append(ctx context.Context, rec model.Record) (model.Record, error)

	// UpdateByEmail はメールアドレスで特定したレコードの氏名・生年月日・ニックネームを上書きする。
	// 会員番号とメールアドレスは変更しない。存在しない場合はErrNotFoundを返す。
	UpdateByEmail(ctx context.Context, email string, rec model.Record) (model.Record, error)

	// ClaimReservedSlot はメールアドレスが空の予約枠にプロフィールを書き込む。
	// 会員番号は維持する。確保できない場合はErrSlotUnavailableを返す。
	ClaimReservedSlot(ctx context.Context, memberID string, rec model.Record) (model.Record, error)

	// Ping はストアへの疎通を確認する。
	Ping(ctx context.Context) error
}
