package repository

import (
	"context"
	"slices"
	"strings"
	"sync"

	"github.com/hitoshi/verifybot/internal/model"
)

// MemoryMemberRepo はプロセス内メモリに台帳を保持するリポジトリ。
// 開発環境とテストで使用する。
type MemoryMemberRepo struct {
	mu      sync.RWMutex
	records []model.Record
}

// NewMemoryMemberRepo は初期レコードを持つMemoryMemberRepoを生成する。
func NewMemoryMemberRepo(seed ...model.Record) *MemoryMemberRepo {
	return &MemoryMemberRepo{records: slices.Clone(seed)}
}

func (r *MemoryMemberRepo) FindByEmail(ctx context.Context, email string) (*model.Record, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return findByEmail(r.records, email), nil
}

func (r *MemoryMemberRepo) ListAll(ctx context.Context) ([]model.Record, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Clone(r.records), nil
}

func (r *MemoryMemberRepo) ListAllIDs(ctx context.Context) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return listIDs(r.records), nil
}

func (r *MemoryMemberRepo) Append(ctx context.Context, rec model.Record) (model.Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = append(r.records, rec)
	return rec, nil
}

func (r *MemoryMemberRepo) UpdateByEmail(ctx context.Context, email string, rec model.Record) (model.Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return updateByEmail(r.records, email, rec)
}

func (r *MemoryMemberRepo) ClaimReservedSlot(ctx context.Context, memberID string, rec model.Record) (model.Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return claimSlot(r.records, memberID, rec)
}

func (r *MemoryMemberRepo) Ping(ctx context.Context) error {
	return nil
}

// 以下はメモリ上の行スライスを操作する共通処理。WorkbookMemberRepoも利用する。

func emailEqual(a, b string) bool {
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}

func indexByEmail(records []model.Record, email string) int {
	if strings.TrimSpace(email) == "" {
		return -1
	}
	for i, rec := range records {
		if emailEqual(rec.Email, email) {
			return i
		}
	}
	return -1
}

func findByEmail(records []model.Record, email string) *model.Record {
	i := indexByEmail(records, email)
	if i < 0 {
		return nil
	}
	rec := records[i]
	return &rec
}

func listIDs(records []model.Record) []string {
	ids := make([]string, 0, len(records))
	for _, rec := range records {
		if id := strings.TrimSpace(rec.MemberID); id != "" {
			ids = append(ids, id)
		}
	}
	return ids
}

func updateByEmail(records []model.Record, email string, rec model.Record) (model.Record, error) {
	i := indexByEmail(records, email)
	if i < 0 {
		return model.Record{}, ErrNotFound
	}
	records[i].FullName = rec.FullName
	records[i].BirthDate = rec.BirthDate
	records[i].DisplayNickname = rec.DisplayNickname
	return records[i], nil
}

func claimSlot(records []model.Record, memberID string, rec model.Record) (model.Record, error) {
	for i, row := range records {
		if strings.TrimSpace(row.MemberID) != strings.TrimSpace(memberID) || !row.IsReservedSlot() {
			continue
		}
		records[i].Email = rec.Email
		records[i].FullName = rec.FullName
		records[i].BirthDate = rec.BirthDate
		records[i].DisplayNickname = rec.DisplayNickname
		return records[i], nil
	}
	return model.Record{}, ErrSlotUnavailable
}

// compile-time interface check
var _ MemberRepository = (*MemoryMemberRepo)(nil)
