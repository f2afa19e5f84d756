package reconcile

import (
	"fmt"

	"github.com/hitoshi/verifybot/internal/memberid"
	"github.com/hitoshi/verifybot/internal/model"
)

// Outcome は照合結果を表す。実装はUnchanged, Updated, Newの3種のみ。
type Outcome interface {
	Status() model.ReconcileStatus
	Member() model.Record
	outcome()
}

// Unchanged は既存レコードと同一で書き込みを行わなかった結果。
type Unchanged struct{ Record model.Record }

// Updated は既存レコードの更新対象フィールドを上書きした結果。
type Updated struct{ Record model.Record }

// New は予約枠の確保または末尾への追加で登録した結果。
// Claimedは予約枠を確保した場合にtrueとなる。
type New struct {
	Record  model.Record
	Claimed bool
}

func (Unchanged) Status() model.ReconcileStatus { return model.StatusUnchanged }
func (Updated) Status() model.ReconcileStatus   { return model.StatusUpdated }
func (New) Status() model.ReconcileStatus       { return model.StatusNew }

func (o Unchanged) Member() model.Record { return o.Record }
func (o Updated) Member() model.Record   { return o.Record }
func (o New) Member() model.Record       { return o.Record }

func (Unchanged) outcome() {}
func (Updated) outcome()   {}
func (New) outcome()       {}

// ReconcileError は照合中の永続化失敗を表す。
// 呼び出し側はこのエラーを受け取った場合、ロールを付与してはならない。
type ReconcileError struct {
	Attempted model.Record // 書き込もうとしたレコード
	MemberID  string       // 常にmemberid.Sentinel
	Err       error
}

func newReconcileError(attempted model.Record, err error) *ReconcileError {
	return &ReconcileError{Attempted: attempted, MemberID: memberid.Sentinel, Err: err}
}

func (e *ReconcileError) Error() string {
	return fmt.Sprintf("reconcile %s (member_no=%s): %v", e.Attempted.Email, e.MemberID, e.Err)
}

func (e *ReconcileError) Unwrap() error {
	return e.Err
}
