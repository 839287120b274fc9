package app

import (
	"context"
	"testing"

	"github.com/google/uuid"

	"github.com/esnpolimi/subscription-service/internal/domain"
)

func (s *repoStub) ListProfilesByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]domain.Profile, error) {
	out := map[uuid.UUID]domain.Profile{}
	for _, id := range ids {
		if p, ok := s.profiles[id]; ok {
			out[id] = p
		}
	}
	return out, nil
}

func TestAccounts_ClosedAccountsFlaggedDisabled(t *testing.T) {
	repo := newRepoStub()
	svc, _ := newTestService(repo)

	accounts, err := svc.Accounts(context.Background())
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if len(accounts) != 2 {
		t.Fatalf("expected 2 accounts, got %d", len(accounts))
	}
	byID := map[uuid.UUID]domain.Account{}
	for _, a := range accounts {
		byID[a.ID] = a
	}
	if byID[openAccountID].Disabled {
		t.Fatal("open account must be selectable")
	}
	if !byID[closedAccountID].Disabled {
		t.Fatal("closed account must be shown but disabled")
	}
}

func TestBuildLiberatorieBatch(t *testing.T) {
	repo := newRepoStub()
	ev := seedEvent(repo, 1500, 0)
	profile := seedProfile(repo)
	card := "ESN12345678"
	profile.ESNCardNumber = &card
	repo.profiles[profile.ID] = profile

	sub := seedSubscription(repo, ev)
	sub.ProfileID = profile.ID
	sub.StatusQuota = domain.StatusPaid
	svc, _ := newTestService(repo)

	batch, err := svc.BuildLiberatorieBatch(context.Background(), domain.GenerateLiberatoriePDFRequest{
		EventID:         ev.ID,
		SubscriptionIDs: []uuid.UUID{sub.ID},
	})
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if batch.EventName != ev.Name {
		t.Fatalf("expected the event name on the batch, got %q", batch.EventName)
	}
	if len(batch.Participants) != 1 {
		t.Fatalf("expected one participant, got %d", len(batch.Participants))
	}
	p := batch.Participants[0]
	if p.FirstName != profile.FirstName || p.ESNCardNumber != card {
		t.Fatalf("unexpected participant %+v", p)
	}
	if batch.Filename() != "liberatorie_2026-03-10.pdf" {
		t.Fatalf("unexpected filename %q", batch.Filename())
	}
}

func TestBuildLiberatorieBatch_UnpaidQuotaRejected(t *testing.T) {
	repo := newRepoStub()
	ev := seedEvent(repo, 1500, 0)
	profile := seedProfile(repo)
	sub := seedSubscription(repo, ev)
	sub.ProfileID = profile.ID
	svc, _ := newTestService(repo)

	if _, err := svc.BuildLiberatorieBatch(context.Background(), domain.GenerateLiberatoriePDFRequest{
		EventID:         ev.ID,
		SubscriptionIDs: []uuid.UUID{sub.ID},
	}); err != ErrNotQuotaPaid {
		t.Fatalf("expected ErrNotQuotaPaid, got %v", err)
	}
}
