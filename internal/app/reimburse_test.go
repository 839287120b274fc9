package app

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"

	"github.com/esnpolimi/subscription-service/internal/domain"
)

func (s *repoStub) ListSelectedServices(ctx context.Context, subscriptionID uuid.UUID) ([]domain.SelectedService, error) {
	return s.services[subscriptionID], nil
}

func (s *repoStub) MarkDepositsReimbursed(ctx context.Context, ids []uuid.UUID, movements []domain.LedgerMovement) error {
	if s.markErr != nil {
		return s.markErr
	}
	s.markedIDs = ids
	s.markedMovements = movements
	return nil
}

func TestQuotaReimbursementTotal(t *testing.T) {
	services := []domain.SelectedService{
		{Description: "bus ticket", PriceCents: 500, Quantity: 2},
		{Description: "correction", PriceCents: -100, Quantity: 1},
	}

	tests := []struct {
		name              string
		costCents         int64
		alreadyReimbursed bool
		includeServices   bool
		want              int64
	}{
		{"cost plus services, non-positive entries skipped", 2000, false, true, 3000},
		{"cost only", 2000, false, false, 2000},
		{"already reimbursed quota contributes nothing", 2000, true, true, 1000},
		{"nothing left", 2000, true, false, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := quotaReimbursementTotal(tt.costCents, tt.alreadyReimbursed, services, tt.includeServices)
			if got != tt.want {
				t.Fatalf("expected %d, got %d", tt.want, got)
			}
		})
	}
}

func TestReimburseQuota_PostsDebitAndFlipsTerminal(t *testing.T) {
	repo := newRepoStub()
	ev := seedEvent(repo, 2000, 0)
	sub := seedSubscription(repo, ev)
	sub.StatusQuota = domain.StatusPaid
	repo.services = map[uuid.UUID][]domain.SelectedService{
		sub.ID: {
			{Description: "bus ticket", PriceCents: 500, Quantity: 2},
			{Description: "correction", PriceCents: -100, Quantity: 1},
		},
	}
	svc, ledger := newTestService(repo)

	updated, err := svc.ReimburseQuota(context.Background(), domain.ReimburseQuotaRequest{
		EventID:         ev.ID,
		SubscriptionID:  sub.ID,
		AccountID:       openAccountID,
		IncludeServices: true,
		Confirm:         true,
	})
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if updated.StatusQuota != domain.StatusReimbursed {
		t.Fatalf("expected quota reimbursed, got %s", updated.StatusQuota)
	}
	if len(ledger.posted) != 1 {
		t.Fatalf("expected one ledger post, got %d", len(ledger.posted))
	}
	if ledger.posted[0].Direction != "debit" || ledger.posted[0].AmountCents != 3000 {
		t.Fatalf("expected a 3000 debit, got %s %d", ledger.posted[0].Direction, ledger.posted[0].AmountCents)
	}
}

func TestReimburseQuota_RequiresConfirmation(t *testing.T) {
	repo := newRepoStub()
	ev := seedEvent(repo, 2000, 0)
	sub := seedSubscription(repo, ev)
	sub.StatusQuota = domain.StatusPaid
	svc, ledger := newTestService(repo)

	_, err := svc.ReimburseQuota(context.Background(), domain.ReimburseQuotaRequest{
		EventID:        ev.ID,
		SubscriptionID: sub.ID,
		AccountID:      openAccountID,
	})
	var confirmation *ConfirmationRequiredError
	if !errors.As(err, &confirmation) {
		t.Fatalf("expected ConfirmationRequiredError, got %v", err)
	}
	if len(ledger.posted) != 0 {
		t.Fatal("no money may move before the operator confirms")
	}
}

func TestReimburseQuota_NotPaidRejected(t *testing.T) {
	repo := newRepoStub()
	ev := seedEvent(repo, 2000, 0)
	sub := seedSubscription(repo, ev)
	svc, _ := newTestService(repo)

	_, err := svc.ReimburseQuota(context.Background(), domain.ReimburseQuotaRequest{
		EventID:        ev.ID,
		SubscriptionID: sub.ID,
		AccountID:      openAccountID,
		Confirm:        true,
	})
	if !errors.Is(err, ErrNotQuotaPaid) {
		t.Fatalf("expected ErrNotQuotaPaid, got %v", err)
	}
}

func TestReimburseQuota_ReimbursedIsTerminal(t *testing.T) {
	repo := newRepoStub()
	ev := seedEvent(repo, 2000, 0)
	sub := seedSubscription(repo, ev)
	sub.StatusQuota = domain.StatusReimbursed
	svc, _ := newTestService(repo)

	_, err := svc.ReimburseQuota(context.Background(), domain.ReimburseQuotaRequest{
		EventID:        ev.ID,
		SubscriptionID: sub.ID,
		AccountID:      openAccountID,
		Confirm:        true,
	})
	if !errors.Is(err, ErrReimbursedTerminal) {
		t.Fatalf("expected ErrReimbursedTerminal, got %v", err)
	}
}

func TestReimburseDeposits_DebitsEachPayingAccount(t *testing.T) {
	repo := newRepoStub()
	ev := seedEvent(repo, 2000, 1000)

	accountA := uuid.New()
	accountB := uuid.New()
	subA := seedSubscription(repo, ev)
	subA.StatusDeposit = domain.StatusPaid
	repo.trail[subA.ID] = []domain.LedgerMovement{{
		SubscriptionID: subA.ID, Component: domain.ComponentDeposit,
		Direction: domain.DirectionCredit, AmountCents: 1000, AccountID: accountA,
	}}
	subB := seedSubscription(repo, ev)
	subB.StatusDeposit = domain.StatusPaid
	repo.trail[subB.ID] = []domain.LedgerMovement{{
		SubscriptionID: subB.ID, Component: domain.ComponentDeposit,
		Direction: domain.DirectionCredit, AmountCents: 1000, AccountID: accountB,
	}}
	subPending := seedSubscription(repo, ev)

	svc, ledger := newTestService(repo)

	result, err := svc.ReimburseDeposits(context.Background(), domain.ReimburseDepositsRequest{
		EventID:         ev.ID,
		SubscriptionIDs: []uuid.UUID{subA.ID, subB.ID, subPending.ID},
		Confirm:         true,
	})
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if len(result.ReimbursedIDs) != 2 {
		t.Fatalf("expected 2 reimbursed ids, got %d", len(result.ReimbursedIDs))
	}
	if result.TotalCents != 2000 {
		t.Fatalf("expected a 2000 total, got %d", result.TotalCents)
	}
	if msg, ok := result.Failures[subPending.ID]; !ok || msg == "" {
		t.Fatalf("expected a per-id failure for the pending deposit, got %v", result.Failures)
	}
	if len(ledger.posted) != 2 {
		t.Fatalf("expected two ledger debits, got %d", len(ledger.posted))
	}
	debited := map[string]bool{ledger.posted[0].AccountID: true, ledger.posted[1].AccountID: true}
	if !debited[accountA.String()] || !debited[accountB.String()] {
		t.Fatalf("expected each deposit debited from its own paying account, got %v", debited)
	}
	if len(repo.markedIDs) != 2 {
		t.Fatalf("expected both flips persisted together, got %d", len(repo.markedIDs))
	}
}

func TestReimburseDeposits_DatabaseFailureCompensatesLedger(t *testing.T) {
	repo := newRepoStub()
	ev := seedEvent(repo, 2000, 1000)
	account := uuid.New()
	sub := seedSubscription(repo, ev)
	sub.StatusDeposit = domain.StatusPaid
	repo.trail[sub.ID] = []domain.LedgerMovement{{
		SubscriptionID: sub.ID, Component: domain.ComponentDeposit,
		Direction: domain.DirectionCredit, AmountCents: 1000, AccountID: account,
	}}
	repo.markErr = errors.New("deadlock")

	svc, ledger := newTestService(repo)

	_, err := svc.ReimburseDeposits(context.Background(), domain.ReimburseDepositsRequest{
		EventID:         ev.ID,
		SubscriptionIDs: []uuid.UUID{sub.ID},
		Confirm:         true,
	})
	if err == nil {
		t.Fatal("expected the bulk reimbursement to fail")
	}
	if len(ledger.posted) != 2 {
		t.Fatalf("expected the debit plus its compensating credit, got %d posts", len(ledger.posted))
	}
	if ledger.posted[1].Direction != "credit" || ledger.posted[1].AmountCents != 1000 {
		t.Fatalf("expected a 1000 compensating credit, got %s %d", ledger.posted[1].Direction, ledger.posted[1].AmountCents)
	}
}

func TestReimburseDeposits_NoDepositEvent(t *testing.T) {
	repo := newRepoStub()
	ev := seedEvent(repo, 2000, 0)
	svc, _ := newTestService(repo)

	_, err := svc.ReimburseDeposits(context.Background(), domain.ReimburseDepositsRequest{
		EventID:         ev.ID,
		SubscriptionIDs: []uuid.UUID{uuid.New()},
		Confirm:         true,
	})
	if !errors.Is(err, ErrDepositNotApplicable) {
		t.Fatalf("expected ErrDepositNotApplicable, got %v", err)
	}
}
