package repository

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"sync"

	"github.com/xuri/excelize/v2"

	"github.com/hitoshi/verifybot/internal/model"
)

// DefaultWorkbookSheet は会員台帳のシート名の既定値。
const DefaultWorkbookSheet = "rapih"

// WorkbookMemberRepo はExcelワークブック（.xlsx）を会員台帳とするリポジトリ。
// ヘッダー行は持たず、列はA=Email, B=氏名, C=生年月日, D=ニックネーム, E=会員番号。
// 起動時に全行を読み込み、書き込みのたびにファイル全体を保存し直す。
// 保存に失敗した変更はメモリ上にも反映しない。
type WorkbookMemberRepo struct {
	mu      sync.RWMutex
	path    string
	sheet   string
	records []model.Record
}

// OpenWorkbookMemberRepo はワークブックを読み込んでリポジトリを生成する。
// ファイルが存在しない場合は空の台帳として開始し、最初の書き込みで作成する。
func OpenWorkbookMemberRepo(path, sheet string) (*WorkbookMemberRepo, error) {
	if sheet == "" {
		sheet = DefaultWorkbookSheet
	}
	r := &WorkbookMemberRepo{path: path, sheet: sheet}

	records, err := ReadWorkbook(path, sheet)
	if errors.Is(err, fs.ErrNotExist) {
		return r, nil
	}
	if err != nil {
		return nil, err
	}
	r.records = records
	return r, nil
}

// ReadWorkbook はワークブックの指定シートを台帳の並び順で読み込む。
func ReadWorkbook(path, sheet string) ([]model.Record, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("台帳ファイルを開けませんでした: %w", err)
	}
	defer f.Close()

	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("台帳シートの読み込みに失敗しました: %w", err)
	}

	records := make([]model.Record, 0, len(rows))
	for _, row := range rows {
		records = append(records, recordFromRow(row))
	}
	return records, nil
}

func recordFromRow(row []string) model.Record {
	col := func(i int) string {
		if i < len(row) {
			return row[i]
		}
		return ""
	}
	return model.Record{
		Email:           col(0),
		FullName:        col(1),
		BirthDate:       col(2),
		DisplayNickname: col(3),
		MemberID:        col(4),
	}
}

func (r *WorkbookMemberRepo) FindByEmail(ctx context.Context, email string) (*model.Record, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return findByEmail(r.records, email), nil
}

func (r *WorkbookMemberRepo) ListAll(ctx context.Context) ([]model.Record, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Clone(r.records), nil
}

func (r *WorkbookMemberRepo) ListAllIDs(ctx context.Context) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return listIDs(r.records), nil
}

// Append はレコードを末尾の行に追加して保存する。
func (r *WorkbookMemberRepo) Append(ctx context.Context, rec model.Record) (model.Record, error) {
	return r.mutate(func(records []model.Record) ([]model.Record, model.Record, error) {
		return append(records, rec), rec, nil
	})
}

// UpdateByEmail は該当行の更新対象フィールドを上書きして保存する。
func (r *WorkbookMemberRepo) UpdateByEmail(ctx context.Context, email string, rec model.Record) (model.Record, error) {
	return r.mutate(func(records []model.Record) ([]model.Record, model.Record, error) {
		saved, err := updateByEmail(records, email, rec)
		return records, saved, err
	})
}

// ClaimReservedSlot は予約枠の行にプロフィールを書き込んで保存する。
func (r *WorkbookMemberRepo) ClaimReservedSlot(ctx context.Context, memberID string, rec model.Record) (model.Record, error) {
	return r.mutate(func(records []model.Record) ([]model.Record, model.Record, error) {
		saved, err := claimSlot(records, memberID, rec)
		return records, saved, err
	})
}

// Ping は台帳ファイルを置くディレクトリが存在することを確認する。
func (r *WorkbookMemberRepo) Ping(ctx context.Context) error {
	info, err := os.Stat(filepath.Dir(r.path))
	if err != nil {
		return fmt.Errorf("台帳ディレクトリを確認できません: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("台帳ディレクトリではありません: %s", filepath.Dir(r.path))
	}
	return nil
}

// mutate は行スライスの複製に変更を適用し、保存に成功した場合のみ反映する。
func (r *WorkbookMemberRepo) mutate(fn func([]model.Record) ([]model.Record, model.Record, error)) (model.Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	next, saved, err := fn(slices.Clone(r.records))
	if err != nil {
		return model.Record{}, err
	}
	if err := writeWorkbook(r.path, r.sheet, next); err != nil {
		return model.Record{}, fmt.Errorf("台帳ファイルの保存に失敗しました: %w", err)
	}
	r.records = next
	return saved, nil
}

// writeWorkbook は全行を一時ファイルに書き出してから置き換える。
func writeWorkbook(path, sheet string, records []model.Record) error {
	f := excelize.NewFile()
	defer f.Close()

	if sheet != "Sheet1" {
		if err := f.SetSheetName("Sheet1", sheet); err != nil {
			return err
		}
	}

	for i, rec := range records {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return err
		}
		row := []any{rec.Email, rec.FullName, rec.BirthDate, rec.DisplayNickname, rec.MemberID}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return err
		}
	}

	tmp := path + ".tmp.xlsx"
	if err := f.SaveAs(tmp); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// compile-time interface check
var _ MemberRepository = (*WorkbookMemberRepo)(nil)
