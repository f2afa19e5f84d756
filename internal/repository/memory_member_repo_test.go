package repository

import (
	"context"
	"errors"
	"testing"

	"github.com/hitoshi/verifybot/internal/model"
)

// TestMemoryMemberRepo_FindByEmailCaseInsensitive はメールアドレスの大文字小文字を区別せず検索できることを検証する。
func TestMemoryMemberRepo_FindByEmailCaseInsensitive(t *testing.T) {
	repo := NewMemoryMemberRepo(model.Record{Email: "John@X.com", FullName: "John Doe", MemberID: "OTM-112"})

	got, err := repo.FindByEmail(context.Background(), "john@x.com")
	if err != nil {
		t.Fatalf("FindByEmail error: %v", err)
	}
	if got == nil || got.MemberID != "OTM-112" {
		t.Fatalf("unexpected record: %+v", got)
	}

	missing, err := repo.FindByEmail(context.Background(), "")
	if err != nil || missing != nil {
		t.Fatalf("empty email should not match: %+v, %v", missing, err)
	}
}

func TestMemoryMemberRepo_UpdateKeepsMemberID(t *testing.T) {
	repo := NewMemoryMemberRepo(model.Record{Email: "j@x.com", FullName: "John Doe", BirthDate: "01-01", DisplayNickname: "jd", MemberID: "OTM-112"})

	saved, err := repo.UpdateByEmail(context.Background(), "J@X.COM", model.Record{FullName: "John Q", BirthDate: "02-02", DisplayNickname: "jq", MemberID: "OTM-999"})
	if err != nil {
		t.Fatalf("UpdateByEmail error: %v", err)
	}
	if saved.MemberID != "OTM-112" || saved.Email != "j@x.com" || saved.FullName != "John Q" {
		t.Errorf("unexpected record: %+v", saved)
	}

	_, err = repo.UpdateByEmail(context.Background(), "ghost@x.com", model.Record{})
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestMemoryMemberRepo_ClaimReservedSlotOnce(t *testing.T) {
	repo := NewMemoryMemberRepo(
		model.Record{Email: "a@x.com", MemberID: "OTM-112"},
		model.Record{MemberID: "OTM-113"},
	)
	ctx := context.Background()

	if _, err := repo.ClaimReservedSlot(ctx, "OTM-112", model.Record{Email: "b@x.com"}); !errors.Is(err, ErrSlotUnavailable) {
		t.Fatalf("occupied row must not be claimed, got %v", err)
	}
	if _, err := repo.ClaimReservedSlot(ctx, "OTM-113", model.Record{Email: "b@x.com", FullName: "B B"}); err != nil {
		t.Fatalf("ClaimReservedSlot error: %v", err)
	}
	if _, err := repo.ClaimReservedSlot(ctx, "OTM-113", model.Record{Email: "c@x.com"}); !errors.Is(err, ErrSlotUnavailable) {
		t.Fatalf("slot claimed twice, got %v", err)
	}

	all, _ := repo.ListAll(ctx)
	if len(all) != 2 || all[1].Email != "b@x.com" {
		t.Errorf("unexpected rows: %+v", all)
	}
}

func TestMemoryMemberRepo_ListAllIDsSkipsBlank(t *testing.T) {
	repo := NewMemoryMemberRepo(
		model.Record{Email: "a@x.com", MemberID: "OTM-112"},
		model.Record{Email: "b@x.com"},
		model.Record{Email: "c@x.com", MemberID: " OTM-150 "},
	)

	ids, err := repo.ListAllIDs(context.Background())
	if err != nil {
		t.Fatalf("ListAllIDs error: %v", err)
	}
	if len(ids) != 2 || ids[1] != "OTM-150" {
		t.Errorf("ids = %v", ids)
	}
}
