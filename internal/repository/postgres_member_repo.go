package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/hitoshi/verifybot/internal/model"
)

// PostgresMemberRepo はPostgreSQLを使用した会員台帳リポジトリ。
// 台帳の並び順はmembers.positionの昇順とする。
type PostgresMemberRepo struct {
	db *sql.DB
}

// NewPostgresMemberRepo はPostgresMemberRepoを生成する。
func NewPostgresMemberRepo(db *sql.DB) *PostgresMemberRepo {
	return &PostgresMemberRepo{db: db}
}

const memberColumns = `email, full_name, birth_date, display_nickname, member_id`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(s rowScanner) (model.Record, error) {
	var rec model.Record
	var email, memberID sql.NullString
	if err := s.Scan(&email, &rec.FullName, &rec.BirthDate, &rec.DisplayNickname, &memberID); err != nil {
		return model.Record{}, err
	}
	rec.Email = nullStringValue(email)
	rec.MemberID = nullStringValue(memberID)
	return rec, nil
}

// FindByEmail はメールアドレスでレコードを検索する。見つからない場合はnilを返す。
func (r *PostgresMemberRepo) FindByEmail(ctx context.Context, email string) (*model.Record, error) {
	rec, err := scanRecord(r.db.QueryRowContext(ctx,
		`SELECT `+memberColumns+` FROM members
		 WHERE lower(email) = lower($1)
		 ORDER BY position ASC
		 LIMIT 1`,
		email,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("メールアドレスによる会員の検索に失敗しました: %w", err)
	}
	return &rec, nil
}

// ListAll は全レコードをposition順に返す。
func (r *PostgresMemberRepo) ListAll(ctx context.Context) ([]model.Record, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+memberColumns+` FROM members ORDER BY position ASC`,
	)
	if err != nil {
		return nil, fmt.Errorf("会員一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var records []model.Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("会員一覧の読み取りに失敗しました: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("会員一覧の読み取りに失敗しました: %w", err)
	}
	return records, nil
}

// ListAllIDs は空でない会員番号をposition順に返す。
func (r *PostgresMemberRepo) ListAllIDs(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT member_id FROM members
		 WHERE member_id IS NOT NULL AND member_id <> ''
		 ORDER BY position ASC`,
	)
	if err != nil {
		return nil, fmt.Errorf("会員番号一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("会員番号の読み取りに失敗しました: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("会員番号の読み取りに失敗しました: %w", err)
	}
	return ids, nil
}

// Append はレコードを末尾に追加する。
func (r *PostgresMemberRepo) Append(ctx context.Context, rec model.Record) (model.Record, error) {
	saved, err := scanRecord(r.db.QueryRowContext(ctx,
		`INSERT INTO members (email, full_name, birth_date, display_nickname, member_id)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING `+memberColumns,
		nullString(rec.Email), rec.FullName, rec.BirthDate, rec.DisplayNickname, nullString(rec.MemberID),
	))
	if err != nil {
		return model.Record{}, fmt.Errorf("会員の追加に失敗しました: %w", err)
	}
	return saved, nil
}

// UpdateByEmail は更新対象フィールドを上書きする。
func (r *PostgresMemberRepo) UpdateByEmail(ctx context.Context, email string, rec model.Record) (model.Record, error) {
	saved, err := scanRecord(r.db.QueryRowContext(ctx,
		`UPDATE members
		 SET full_name = $2, birth_date = $3, display_nickname = $4, updated_at = now()
		 WHERE position = (
		     SELECT position FROM members WHERE lower(email) = lower($1)
		     ORDER BY position ASC LIMIT 1
		 )
		 RETURNING `+memberColumns,
		email, rec.FullName, rec.BirthDate, rec.DisplayNickname,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return model.Record{}, ErrNotFound
	}
	if err != nil {
		return model.Record{}, fmt.Errorf("会員情報の更新に失敗しました: %w", err)
	}
	return saved, nil
}

// ClaimReservedSlot は予約枠にプロフィールを書き込む。
// 対象行はFOR UPDATE SKIP LOCKEDで排他的に確保する。
func (r *PostgresMemberRepo) ClaimReservedSlot(ctx context.Context, memberID string, rec model.Record) (model.Record, error) {
	saved, err := scanRecord(r.db.QueryRowContext(ctx,
		`UPDATE members
		 SET email = $2, full_name = $3, birth_date = $4, display_nickname = $5, updated_at = now()
		 WHERE position = (
		     SELECT position FROM members
		     WHERE member_id = $1 AND (email IS NULL OR email = '')
		     ORDER BY position ASC LIMIT 1
		     FOR UPDATE SKIP LOCKED
		 )
		 RETURNING `+memberColumns,
		memberID, rec.Email, rec.FullName, rec.BirthDate, rec.DisplayNickname,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return model.Record{}, ErrSlotUnavailable
	}
	if err != nil {
		return model.Record{}, fmt.Errorf("予約枠の確保に失敗しました: %w", err)
	}
	return saved, nil
}

// Ping はデータベースへの疎通を確認する。
func (r *PostgresMemberRepo) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

func nullStringValue(ns sql.NullString) string {
	if ns.Valid {
		return ns.String
	}
	return ""
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// compile-time interface check
var _ MemberRepository = (*PostgresMemberRepo)(nil)
