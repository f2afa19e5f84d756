// Package memberid は会員番号（OTM-###）の採番を提供する。
package memberid

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
)

const (
	// Prefix は会員番号の接頭辞。
	Prefix = "OTM-"
	// Floor は採番の下限値。これ未満の番号は採番対象外として無視する。
	Floor = 112
	// Sentinel は採番用スナップショットを読めなかった場合に返す縮退値。
	// 実在する番号ではなく運用者向けのシグナルとして扱う。
	Sentinel = "OTM-999"
)

// Format は番号を3桁ゼロ埋めの会員番号文字列に変換する。
func Format(n int) string {
	return fmt.Sprintf("%s%03d", Prefix, n)
}

// Parse は会員番号の数値部分を返す。接頭辞が異なる、または数値でない場合はfalseを返す。
func Parse(id string) (int, bool) {
	id = strings.TrimSpace(id)
	if !strings.HasPrefix(id, Prefix) {
		return 0, false
	}
	n, err := strconv.Atoi(id[len(Prefix):])
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}

// Allocatable は予約枠や採番の対象となる番号（下限以上）かどうかを返す。
func Allocatable(id string) bool {
	n, ok := Parse(id)
	return ok && n >= Floor
}

// Next は既存の会員番号一覧から次の番号を返す。
// 不正な番号は読み飛ばし、下限以上の番号が無い場合はFloorを返す。
func Next(ids []string) string {
	highest := -1
	for _, id := range ids {
		n, ok := Parse(id)
		if !ok || n < Floor {
			continue
		}
		if n > highest {
			highest = n
		}
	}
	if highest < 0 {
		return Format(Floor)
	}
	return Format(highest + 1)
}

// IDLister は採番に必要な会員番号一覧の読み取りインターフェース。
type IDLister interface {
	ListAllIDs(ctx context.Context) ([]string, error)
}

// NextFrom はストアから会員番号一覧を読み取り次の番号を返す。
// 読み取りに失敗した場合は認証を止めないためにSentinelを返し、
// 第2戻り値でそれが縮退値であることを示す。
func NextFrom(ctx context.Context, lister IDLister, logger *slog.Logger) (string, bool) {
	ids, err := lister.ListAllIDs(ctx)
	if err != nil {
		if logger == nil {
			logger = slog.Default()
		}
		logger.Warn("会員番号一覧の取得に失敗したため縮退値を使用します",
			slog.String("member_no", Sentinel),
			slog.String("error", err.Error()),
		)
		return Sentinel, true
	}
	return Next(ids), false
}
