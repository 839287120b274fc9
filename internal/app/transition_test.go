package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/esnpolimi/subscription-service/internal/domain"
	"github.com/esnpolimi/subscription-service/internal/store"
	"github.com/esnpolimi/subscription-service/pkg/ledgerclient"
	"github.com/esnpolimi/subscription-service/pkg/rabbitmq"
)

// repoStub lets each test override just the repository methods it exercises.
type repoStub struct {
	store.Repository

	subs     map[uuid.UUID]*domain.Subscription
	events   map[uuid.UUID]*domain.Event
	trail    map[uuid.UUID][]domain.LedgerMovement
	services map[uuid.UUID][]domain.SelectedService

	appliedSub       *domain.Subscription
	appliedMovements []domain.LedgerMovement
	applyErr         error

	markedIDs       []uuid.UUID
	markedMovements []domain.LedgerMovement
	markErr         error

	movedIDs    []uuid.UUID
	movedTarget uuid.UUID
	listCounts  map[uuid.UUID]int
	hasSubs     bool

	profiles map[uuid.UUID]domain.Profile

	createdSub       *domain.Subscription
	createdMovements []domain.LedgerMovement
}

func newRepoStub() *repoStub {
	return &repoStub{
		subs:       map[uuid.UUID]*domain.Subscription{},
		events:     map[uuid.UUID]*domain.Event{},
		trail:      map[uuid.UUID][]domain.LedgerMovement{},
		services:   map[uuid.UUID][]domain.SelectedService{},
		listCounts: map[uuid.UUID]int{},
	}
}

func (s *repoStub) CountSubscriptionsByList(ctx context.Context, listID uuid.UUID) (int, error) {
	return s.listCounts[listID], nil
}

func (s *repoStub) MoveSubscriptions(ctx context.Context, ids []uuid.UUID, targetListID uuid.UUID) (int64, error) {
	s.movedIDs = ids
	s.movedTarget = targetListID
	return int64(len(ids)), nil
}

func (s *repoStub) FindSubscriptionByID(ctx context.Context, id uuid.UUID) (*domain.Subscription, error) {
	sub, ok := s.subs[id]
	if !ok {
		return nil, store.ErrSubscriptionNotFound
	}
	clone := *sub
	return &clone, nil
}

func (s *repoStub) FindEventByID(ctx context.Context, id uuid.UUID) (*domain.Event, error) {
	ev, ok := s.events[id]
	if !ok {
		return nil, store.ErrEventNotFound
	}
	return ev, nil
}

func (s *repoStub) LatestUnreversedCredit(ctx context.Context, subscriptionID uuid.UUID, component domain.MovementComponent) (*domain.LedgerMovement, error) {
	movements := s.trail[subscriptionID]
	for i := len(movements) - 1; i >= 0; i-- {
		if movements[i].Component != component {
			continue
		}
		if movements[i].Direction == domain.DirectionDebit {
			break
		}
		return &movements[i], nil
	}
	return nil, store.ErrNoCreditToReverse
}

func (s *repoStub) ApplySubscriptionTransition(ctx context.Context, sub *domain.Subscription, movements []domain.LedgerMovement) error {
	if s.applyErr != nil {
		return s.applyErr
	}
	s.appliedSub = sub
	s.appliedMovements = movements
	return nil
}

// ledgerStub records posted entries and serves a fixed account list.
type ledgerStub struct {
	accounts  []ledgerclient.Account
	posted    []ledgerclient.PostEntryRequest
	attempts  int
	failAfter int // fail the Nth post attempt (1-based); 0 = never fail
}

func (l *ledgerStub) PostEntry(ctx context.Context, entry ledgerclient.PostEntryRequest) (*ledgerclient.PostEntryResponse, error) {
	l.attempts++
	if l.failAfter > 0 && l.attempts == l.failAfter {
		return nil, errors.New("ledger unavailable")
	}
	l.posted = append(l.posted, entry)
	return &ledgerclient.PostEntryResponse{EntryID: fmt.Sprintf("entry-%d", len(l.posted))}, nil
}

func (l *ledgerStub) ListAccounts(ctx context.Context) ([]ledgerclient.Account, error) {
	return l.accounts, nil
}

var (
	openAccountID   = uuid.New()
	closedAccountID = uuid.New()
)

func newTestService(repo *repoStub) (*Service, *ledgerStub) {
	ledger := &ledgerStub{
		accounts: []ledgerclient.Account{
			{ID: openAccountID.String(), Name: "Cassa Contanti", Status: "open"},
			{ID: closedAccountID.String(), Name: "Vecchia Cassa", Status: "closed"},
		},
	}
	svc := NewService(repo, ledger, &rabbitmq.EventProducerFallback{}, NewAccountsCache(ledger, nil, 0))
	svc.now = func() time.Time { return time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC) }
	return svc, ledger
}

func seedEvent(repo *repoStub, costCents, depositCents int64) *domain.Event {
	ev := &domain.Event{
		ID:                uuid.New(),
		Name:              "Ski Trip",
		CostCents:         costCents,
		DepositCents:      depositCents,
		SubscriptionStart: time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
		SubscriptionEnd:   time.Date(2026, 3, 31, 0, 0, 0, 0, time.UTC),
	}
	ev.Lists = []domain.EventList{{ID: uuid.New(), EventID: ev.ID, Name: "Wave 1", Capacity: 0}}
	repo.events[ev.ID] = ev
	return ev
}

func seedSubscription(repo *repoStub, ev *domain.Event) *domain.Subscription {
	sub := &domain.Subscription{
		ID:            uuid.New(),
		ProfileID:     uuid.New(),
		EventID:       ev.ID,
		ListID:        ev.Lists[0].ID,
		StatusQuota:   domain.StatusPending,
		StatusDeposit: domain.StatusPending,
	}
	repo.subs[sub.ID] = sub
	return sub
}

func statusPtr(s domain.PaymentStatus) *domain.PaymentStatus { return &s }

func TestUpdateSubscription_PendingToPaidPostsOneCredit(t *testing.T) {
	repo := newRepoStub()
	ev := seedEvent(repo, 1500, 0)
	sub := seedSubscription(repo, ev)
	svc, ledger := newTestService(repo)

	updated, err := svc.UpdateSubscription(context.Background(), sub.ID, domain.UpdateSubscriptionRequest{
		AccountID:   &openAccountID,
		StatusQuota: statusPtr(domain.StatusPaid),
		Confirm:     true,
	})
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if updated.StatusQuota != domain.StatusPaid {
		t.Fatalf("expected quota paid, got %s", updated.StatusQuota)
	}
	if updated.AccountID == nil || *updated.AccountID != openAccountID {
		t.Fatal("expected the paying account to be persisted on the record")
	}
	if len(ledger.posted) != 1 {
		t.Fatalf("expected exactly one ledger post, got %d", len(ledger.posted))
	}
	if ledger.posted[0].Direction != "credit" || ledger.posted[0].AmountCents != 1500 {
		t.Fatalf("expected a 1500 credit, got %s %d", ledger.posted[0].Direction, ledger.posted[0].AmountCents)
	}
	if len(repo.appliedMovements) != 1 || repo.appliedMovements[0].Component != domain.ComponentQuota {
		t.Fatalf("expected one quota movement in the audit trail, got %+v", repo.appliedMovements)
	}
}

func TestUpdateSubscription_UnchangedStatusIsNoOp(t *testing.T) {
	repo := newRepoStub()
	ev := seedEvent(repo, 1500, 1000)
	sub := seedSubscription(repo, ev)
	svc, ledger := newTestService(repo)

	notes := "paid cash, card 123"
	if _, err := svc.UpdateSubscription(context.Background(), sub.ID, domain.UpdateSubscriptionRequest{
		Notes:         &notes,
		StatusQuota:   statusPtr(domain.StatusPending),
		StatusDeposit: statusPtr(domain.StatusPending),
	}); err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if len(ledger.posted) != 0 {
		t.Fatalf("expected no ledger posts for an unchanged status, got %d", len(ledger.posted))
	}
	if len(repo.appliedMovements) != 0 {
		t.Fatalf("expected no audit movements, got %d", len(repo.appliedMovements))
	}
	if repo.appliedSub.Notes != notes {
		t.Fatalf("expected notes to be updated, got %q", repo.appliedSub.Notes)
	}
}

func TestUpdateSubscription_CombinedTransitionNeedsOneConfirmation(t *testing.T) {
	repo := newRepoStub()
	ev := seedEvent(repo, 1500, 1000)
	sub := seedSubscription(repo, ev)
	svc, ledger := newTestService(repo)

	req := domain.UpdateSubscriptionRequest{
		AccountID:     &openAccountID,
		StatusQuota:   statusPtr(domain.StatusPaid),
		StatusDeposit: statusPtr(domain.StatusPaid),
	}
	_, err := svc.UpdateSubscription(context.Background(), sub.ID, req)
	var confirmation *ConfirmationRequiredError
	if !errors.As(err, &confirmation) {
		t.Fatalf("expected ConfirmationRequiredError, got %v", err)
	}
	if !strings.Contains(confirmation.Summary, "€25.00") {
		t.Fatalf("expected one combined €25.00 summary, got %q", confirmation.Summary)
	}
	if len(ledger.posted) != 0 {
		t.Fatal("no money may move before the operator confirms")
	}

	req.Confirm = true
	updated, err := svc.UpdateSubscription(context.Background(), sub.ID, req)
	if err != nil {
		t.Fatalf("expected nil error after confirmation, got %v", err)
	}
	if updated.StatusQuota != domain.StatusPaid || updated.StatusDeposit != domain.StatusPaid {
		t.Fatal("expected both components paid")
	}
	if len(ledger.posted) != 2 {
		t.Fatalf("expected two ledger credits, got %d", len(ledger.posted))
	}
	amounts := []int64{ledger.posted[0].AmountCents, ledger.posted[1].AmountCents}
	if amounts[0] != 1500 || amounts[1] != 1000 {
		t.Fatalf("expected credits of 1500 and 1000, got %v", amounts)
	}
}

func TestUpdateSubscription_ReversalUsesAuditTrailAccount(t *testing.T) {
	repo := newRepoStub()
	ev := seedEvent(repo, 1500, 0)
	sub := seedSubscription(repo, ev)
	sub.StatusQuota = domain.StatusPaid
	originalAccount := uuid.New()
	sub.AccountID = &originalAccount
	repo.trail[sub.ID] = []domain.LedgerMovement{{
		ID:             uuid.New(),
		SubscriptionID: sub.ID,
		Component:      domain.ComponentQuota,
		Direction:      domain.DirectionCredit,
		AmountCents:    1500,
		AccountID:      originalAccount,
	}}
	svc, ledger := newTestService(repo)

	// The caller sends a different account; the reversal must ignore it.
	if _, err := svc.UpdateSubscription(context.Background(), sub.ID, domain.UpdateSubscriptionRequest{
		AccountID:   &openAccountID,
		StatusQuota: statusPtr(domain.StatusPending),
		Confirm:     true,
	}); err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if len(ledger.posted) != 1 {
		t.Fatalf("expected one ledger post, got %d", len(ledger.posted))
	}
	if ledger.posted[0].Direction != "debit" {
		t.Fatalf("expected a debit, got %s", ledger.posted[0].Direction)
	}
	if ledger.posted[0].AccountID != originalAccount.String() {
		t.Fatalf("expected the reversal to target the original account %s, got %s", originalAccount, ledger.posted[0].AccountID)
	}
}

func TestUpdateSubscription_ReimbursedIsReadOnly(t *testing.T) {
	repo := newRepoStub()
	ev := seedEvent(repo, 1500, 1000)
	sub := seedSubscription(repo, ev)
	sub.StatusDeposit = domain.StatusReimbursed
	svc, _ := newTestService(repo)

	notes := "just the notes"
	_, err := svc.UpdateSubscription(context.Background(), sub.ID, domain.UpdateSubscriptionRequest{Notes: &notes})
	if !errors.Is(err, ErrSubscriptionReadOnly) {
		t.Fatalf("expected ErrSubscriptionReadOnly, got %v", err)
	}
}

func TestUpdateSubscription_ReimbursedViaPatchIsRejected(t *testing.T) {
	repo := newRepoStub()
	ev := seedEvent(repo, 1500, 0)
	sub := seedSubscription(repo, ev)
	sub.StatusQuota = domain.StatusPaid
	svc, _ := newTestService(repo)

	_, err := svc.UpdateSubscription(context.Background(), sub.ID, domain.UpdateSubscriptionRequest{
		StatusQuota: statusPtr(domain.StatusReimbursed),
	})
	if !errors.Is(err, ErrReimburseViaEndpoint) {
		t.Fatalf("expected ErrReimburseViaEndpoint, got %v", err)
	}
}

func TestUpdateSubscription_ClosedAccountRejected(t *testing.T) {
	repo := newRepoStub()
	ev := seedEvent(repo, 1500, 0)
	sub := seedSubscription(repo, ev)
	svc, ledger := newTestService(repo)

	_, err := svc.UpdateSubscription(context.Background(), sub.ID, domain.UpdateSubscriptionRequest{
		AccountID:   &closedAccountID,
		StatusQuota: statusPtr(domain.StatusPaid),
		Confirm:     true,
	})
	if !errors.Is(err, ErrAccountClosed) {
		t.Fatalf("expected ErrAccountClosed, got %v", err)
	}
	if len(ledger.posted) != 0 {
		t.Fatal("no money may move toward a closed account")
	}
}

func TestUpdateSubscription_DepositTransitionRejectedWithoutDeposit(t *testing.T) {
	repo := newRepoStub()
	ev := seedEvent(repo, 1500, 0)
	sub := seedSubscription(repo, ev)
	svc, _ := newTestService(repo)

	_, err := svc.UpdateSubscription(context.Background(), sub.ID, domain.UpdateSubscriptionRequest{
		AccountID:     &openAccountID,
		StatusDeposit: statusPtr(domain.StatusPaid),
		Confirm:       true,
	})
	if !errors.Is(err, ErrDepositNotApplicable) {
		t.Fatalf("expected ErrDepositNotApplicable, got %v", err)
	}
}

func TestUpdateSubscription_LedgerFailureLeavesStateUnchanged(t *testing.T) {
	repo := newRepoStub()
	ev := seedEvent(repo, 1500, 1000)
	sub := seedSubscription(repo, ev)
	svc, ledger := newTestService(repo)
	ledger.failAfter = 2 // deposit credit fails after the quota credit posted

	_, err := svc.UpdateSubscription(context.Background(), sub.ID, domain.UpdateSubscriptionRequest{
		AccountID:     &openAccountID,
		StatusQuota:   statusPtr(domain.StatusPaid),
		StatusDeposit: statusPtr(domain.StatusPaid),
		Confirm:       true,
	})
	if err == nil {
		t.Fatal("expected the save to fail when a ledger post fails")
	}
	if repo.appliedSub != nil {
		t.Fatal("expected no database write after a ledger failure")
	}
	// The first credit went through and must have been compensated.
	if len(ledger.posted) != 2 {
		t.Fatalf("expected the posted credit plus its compensation, got %d posts", len(ledger.posted))
	}
	if ledger.posted[1].Direction != "debit" || ledger.posted[1].AmountCents != 1500 {
		t.Fatalf("expected a 1500 compensating debit, got %s %d", ledger.posted[1].Direction, ledger.posted[1].AmountCents)
	}
}

func TestDeleteSubscription_ReimbursedRejected(t *testing.T) {
	repo := newRepoStub()
	ev := seedEvent(repo, 1500, 1000)
	sub := seedSubscription(repo, ev)
	sub.StatusDeposit = domain.StatusReimbursed
	svc, _ := newTestService(repo)

	if err := svc.DeleteSubscription(context.Background(), sub.ID); !errors.Is(err, ErrSubscriptionReadOnly) {
		t.Fatalf("expected ErrSubscriptionReadOnly, got %v", err)
	}
}
