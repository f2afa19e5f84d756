package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/hitoshi/verifybot/internal/model"
	"github.com/hitoshi/verifybot/internal/repository"
)

// importResult は台帳取り込みの結果件数。
type importResult struct {
	Imported int
	Skipped  int
}

// importRecords はrecordsを台帳の並び順のままdstの末尾へ追加する。
// 既に同じメールアドレスの行、または同じ会員番号の予約枠がある場合は取り込まない。
// 途中で失敗した場合もそれまでの取り込みは残るため、再実行で続きから取り込める。
func importRecords(ctx context.Context, dst repository.MemberRepository, records []model.Record) (importResult, error) {
	var res importResult

	ids, err := dst.ListAllIDs(ctx)
	if err != nil {
		return res, fmt.Errorf("failed to list member numbers: %w", err)
	}
	known := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		known[id] = struct{}{}
	}

	for i, rec := range records {
		// メールアドレスも会員番号も無い行は照合に使えないため取り込まない
		if strings.TrimSpace(rec.Email) == "" && strings.TrimSpace(rec.MemberID) == "" {
			res.Skipped++
			continue
		}

		if rec.IsReservedSlot() {
			if _, ok := known[strings.TrimSpace(rec.MemberID)]; ok {
				res.Skipped++
				continue
			}
		} else {
			existing, err := dst.FindByEmail(ctx, rec.Email)
			if err != nil {
				return res, fmt.Errorf("row %d: failed to look up %s: %w", i+1, rec.Email, err)
			}
			if existing != nil {
				res.Skipped++
				continue
			}
		}

		if _, err := dst.Append(ctx, rec); err != nil {
			return res, fmt.Errorf("row %d: failed to import: %w", i+1, err)
		}
		if id := strings.TrimSpace(rec.MemberID); id != "" {
			known[id] = struct{}{}
		}
		res.Imported++
	}

	slog.Info("workbook import finished",
		slog.Int("imported", res.Imported),
		slog.Int("skipped", res.Skipped),
	)
	return res, nil
}
