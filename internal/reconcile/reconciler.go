// Package reconcile は検証済みプロフィールと会員台帳の照合を提供する。
package reconcile

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/hitoshi/verifybot/internal/memberid"
	"github.com/hitoshi/verifybot/internal/model"
	"github.com/hitoshi/verifybot/internal/repository"
)

// Recorder は照合の計測値を受け取るインターフェース。
// metrics.Collectorが実装する。
type Recorder interface {
	ObserveReconcile(status model.ReconcileStatus, elapsed time.Duration)
	SentinelAllocated()
}

type nopRecorder struct{}

func (nopRecorder) ObserveReconcile(model.ReconcileStatus, time.Duration) {}
func (nopRecorder) SentinelAllocated()                                    {}

// Reconciler はプロフィールをUNCHANGED / UPDATED / NEWのいずれかとして台帳に反映する。
// 検索から書き込みまでを1つのミューテックスで直列化するため、
// 同時に行われた新規登録が同じ会員番号を採番することはない。
type Reconciler struct {
	mu       sync.Mutex
	repo     repository.MemberRepository
	logger   *slog.Logger
	recorder Recorder
}

// NewReconciler はReconcilerを生成する。loggerとrecorderはnilでもよい。
func NewReconciler(repo repository.MemberRepository, logger *slog.Logger, recorder Recorder) *Reconciler {
	if logger == nil {
		logger = slog.Default()
	}
	if recorder == nil {
		recorder = nopRecorder{}
	}
	return &Reconciler{repo: repo, logger: logger, recorder: recorder}
}

// Lookup はメールアドレスに一致するレコードを返す。見つからない場合はnilを返す。
func (r *Reconciler) Lookup(ctx context.Context, email string) (*model.Record, error) {
	rec, err := r.repo.FindByEmail(ctx, email)
	if err != nil {
		return nil, model.NewStoreError(err)
	}
	return rec, nil
}

// Reconcile はプロフィールを台帳と照合し、必要な場合のみ1回書き込む。
// 永続化に失敗した場合は*ReconcileErrorを返す。
func (r *Reconciler) Reconcile(ctx context.Context, p model.Profile) (Outcome, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	start := time.Now()
	out, err := r.reconcile(ctx, p)
	if err != nil {
		r.logger.Error("会員台帳との照合に失敗しました",
			slog.String("email", p.Email),
			slog.String("member_no", memberid.Sentinel),
			slog.String("error", err.Error()),
		)
		return nil, err
	}

	r.recorder.ObserveReconcile(out.Status(), time.Since(start))
	r.logger.Info("会員台帳との照合が完了しました",
		slog.String("email", p.Email),
		slog.String("status", string(out.Status())),
		slog.String("member_no", out.Member().MemberID),
	)
	return out, nil
}

func (r *Reconciler) reconcile(ctx context.Context, p model.Profile) (Outcome, error) {
	incoming := model.Record{
		Email:           p.Email,
		FullName:        p.FullName,
		BirthDate:       p.BirthDate,
		DisplayNickname: p.DisplayNickname,
	}

	existing, err := r.repo.FindByEmail(ctx, p.Email)
	if err != nil {
		return nil, newReconcileError(incoming, err)
	}
	if existing != nil {
		if existing.SameFields(p) {
			return Unchanged{Record: *existing}, nil
		}
		next := existing.WithProfile(p)
		saved, err := r.repo.UpdateByEmail(ctx, existing.Email, next)
		if err != nil {
			return nil, newReconcileError(next, err)
		}
		return Updated{Record: saved}, nil
	}

	if out, err := r.claimSlot(ctx, incoming); out != nil || err != nil {
		return out, err
	}

	id, degraded := memberid.NextFrom(ctx, r.repo, r.logger)
	if degraded {
		r.recorder.SentinelAllocated()
	}
	incoming.MemberID = id
	saved, err := r.repo.Append(ctx, incoming)
	if err != nil {
		return nil, newReconcileError(incoming, err)
	}
	return New{Record: saved}, nil
}

// claimSlot は台帳の並び順で最初の予約枠を確保する。
// 予約枠が無い場合や一覧を読めない場合は(nil, nil)を返し、採番に進ませる。
func (r *Reconciler) claimSlot(ctx context.Context, incoming model.Record) (Outcome, error) {
	records, err := r.repo.ListAll(ctx)
	if err != nil {
		r.logger.Warn("予約枠の探索に失敗したため新規採番に進みます",
			slog.String("email", incoming.Email),
			slog.String("error", err.Error()),
		)
		return nil, nil
	}

	for _, rec := range records {
		if !rec.IsReservedSlot() || !memberid.Allocatable(rec.MemberID) {
			continue
		}
		attempted := incoming
		attempted.MemberID = rec.MemberID
		saved, err := r.repo.ClaimReservedSlot(ctx, rec.MemberID, attempted)
		if errors.Is(err, repository.ErrSlotUnavailable) {
			// 別プロセスが先に確保した
			continue
		}
		if err != nil {
			return nil, newReconcileError(attempted, err)
		}
		return New{Record: saved, Claimed: true}, nil
	}
	return nil, nil
}
