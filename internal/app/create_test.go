package app

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/esnpolimi/subscription-service/internal/domain"
	"github.com/esnpolimi/subscription-service/internal/store"
)

func (s *repoStub) FindProfileByID(ctx context.Context, id uuid.UUID) (*domain.Profile, error) {
	p, ok := s.profiles[id]
	if !ok {
		return nil, store.ErrProfileNotFound
	}
	return &p, nil
}

func (s *repoStub) CreateSubscription(ctx context.Context, sub *domain.Subscription, movements []domain.LedgerMovement) error {
	s.createdSub = sub
	s.createdMovements = movements
	s.subs[sub.ID] = sub
	return nil
}

func seedProfile(repo *repoStub) domain.Profile {
	p := domain.Profile{ID: uuid.New(), FirstName: "Erasmus", LastName: "Student", Email: "erasmus@example.org"}
	if repo.profiles == nil {
		repo.profiles = map[uuid.UUID]domain.Profile{}
	}
	repo.profiles[p.ID] = p
	return p
}

func TestCreateSubscription_DefaultsToPending(t *testing.T) {
	repo := newRepoStub()
	ev := seedEvent(repo, 1500, 0)
	profile := seedProfile(repo)
	svc, ledger := newTestService(repo)

	sub, err := svc.CreateSubscription(context.Background(), domain.CreateSubscriptionRequest{
		ProfileID: profile.ID,
		EventID:   ev.ID,
		ListID:    ev.Lists[0].ID,
	})
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if sub.StatusQuota != domain.StatusPending || sub.StatusDeposit != domain.StatusPending {
		t.Fatalf("expected both components pending, got %s/%s", sub.StatusQuota, sub.StatusDeposit)
	}
	if len(ledger.posted) != 0 {
		t.Fatal("creating an unpaid subscription must not touch the ledger")
	}
}

func TestCreateSubscription_PayAtCreation(t *testing.T) {
	repo := newRepoStub()
	ev := seedEvent(repo, 1500, 0)
	profile := seedProfile(repo)
	svc, ledger := newTestService(repo)

	sub, err := svc.CreateSubscription(context.Background(), domain.CreateSubscriptionRequest{
		ProfileID:   profile.ID,
		EventID:     ev.ID,
		ListID:      ev.Lists[0].ID,
		AccountID:   &openAccountID,
		StatusQuota: domain.StatusPaid,
		Confirm:     true,
	})
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if sub.StatusQuota != domain.StatusPaid {
		t.Fatalf("expected quota paid, got %s", sub.StatusQuota)
	}
	if len(ledger.posted) != 1 || len(repo.createdMovements) != 1 {
		t.Fatalf("expected one credit posted and recorded, got %d/%d", len(ledger.posted), len(repo.createdMovements))
	}
}

func TestCreateSubscription_WindowClosed(t *testing.T) {
	repo := newRepoStub()
	ev := seedEvent(repo, 1500, 0)
	ev.SubscriptionEnd = time.Date(2026, 3, 5, 0, 0, 0, 0, time.UTC) // before the stubbed clock
	profile := seedProfile(repo)
	svc, _ := newTestService(repo)

	_, err := svc.CreateSubscription(context.Background(), domain.CreateSubscriptionRequest{
		ProfileID: profile.ID,
		EventID:   ev.ID,
		ListID:    ev.Lists[0].ID,
	})
	if !errors.Is(err, ErrSubscriptionWindowClosed) {
		t.Fatalf("expected ErrSubscriptionWindowClosed, got %v", err)
	}
}

func TestCreateSubscription_ListCapacityEnforced(t *testing.T) {
	repo := newRepoStub()
	ev := seedEvent(repo, 1500, 0)
	ev.Lists[0].Capacity = 2
	repo.listCounts[ev.Lists[0].ID] = 2
	profile := seedProfile(repo)
	svc, _ := newTestService(repo)

	_, err := svc.CreateSubscription(context.Background(), domain.CreateSubscriptionRequest{
		ProfileID: profile.ID,
		EventID:   ev.ID,
		ListID:    ev.Lists[0].ID,
	})
	if !errors.Is(err, ErrListFull) {
		t.Fatalf("expected ErrListFull, got %v", err)
	}
}

func TestCreateSubscription_RequiredFormFieldEnforced(t *testing.T) {
	repo := newRepoStub()
	ev := seedEvent(repo, 1500, 0)
	phoneField := domain.FieldDefinition{
		ID: uuid.New(), EventID: ev.ID, Name: "Phone",
		Kind: domain.FieldKindForm, Type: domain.FieldPhone, Required: true,
	}
	ev.Fields = []domain.FieldDefinition{phoneField}
	profile := seedProfile(repo)
	svc, _ := newTestService(repo)

	_, err := svc.CreateSubscription(context.Background(), domain.CreateSubscriptionRequest{
		ProfileID: profile.ID,
		EventID:   ev.ID,
		ListID:    ev.Lists[0].ID,
	})
	var validation *ValidationError
	if !errors.As(err, &validation) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if validation.Fields["Phone"] != "field is required" {
		t.Fatalf("expected a required-field error keyed by field name, got %v", validation.Fields)
	}

	// A typed, valid answer satisfies it.
	sub, err := svc.CreateSubscription(context.Background(), domain.CreateSubscriptionRequest{
		ProfileID: profile.ID,
		EventID:   ev.ID,
		ListID:    ev.Lists[0].ID,
		FormAnswers: map[uuid.UUID]domain.FieldValue{
			phoneField.ID: {Type: domain.FieldPhone, Text: "+39 333 1234567"},
		},
	})
	if err != nil {
		t.Fatalf("expected nil error with a valid answer, got %v", err)
	}
	if sub.FormAnswers[phoneField.ID].Text == "" {
		t.Fatal("expected the answer to be stored")
	}
}
