package app

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/esnpolimi/subscription-service/internal/domain"
)

func (s *repoStub) EventHasSubscriptions(ctx context.Context, eventID uuid.UUID) (bool, error) {
	return s.hasSubs, nil
}

func (s *repoStub) CreateEvent(ctx context.Context, ev *domain.Event) error {
	s.events[ev.ID] = ev
	return nil
}

func (s *repoStub) UpdateEvent(ctx context.Context, ev *domain.Event) error {
	s.events[ev.ID] = ev
	return nil
}

func TestCreateEvent_WindowMustBeOrderedAndFuture(t *testing.T) {
	repo := newRepoStub()
	svc, _ := newTestService(repo)
	now := svc.now()

	_, err := svc.CreateEvent(context.Background(), domain.CreateEventRequest{
		Name:              "Ski Trip",
		CostCents:         1500,
		SubscriptionStart: now.Add(48 * time.Hour),
		SubscriptionEnd:   now.Add(24 * time.Hour),
		Lists:             []domain.CreateEventListItem{{Name: "Wave 1"}},
	})
	var validation *ValidationError
	if !errors.As(err, &validation) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if _, ok := validation.Fields["subscription_end_date"]; !ok {
		t.Fatalf("expected an error on subscription_end_date, got %v", validation.Fields)
	}

	_, err = svc.CreateEvent(context.Background(), domain.CreateEventRequest{
		Name:              "Ski Trip",
		CostCents:         1500,
		SubscriptionStart: now.Add(-24 * time.Hour),
		SubscriptionEnd:   now.Add(24 * time.Hour),
		Lists:             []domain.CreateEventListItem{{Name: "Wave 1"}},
	})
	if !errors.As(err, &validation) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if _, ok := validation.Fields["subscription_start_date"]; !ok {
		t.Fatalf("expected an error on subscription_start_date, got %v", validation.Fields)
	}
}

func TestCreateEvent_ChoiceFieldsNeedOptions(t *testing.T) {
	repo := newRepoStub()
	svc, _ := newTestService(repo)
	now := svc.now()

	_, err := svc.CreateEvent(context.Background(), domain.CreateEventRequest{
		Name:              "Ski Trip",
		SubscriptionStart: now.Add(time.Hour),
		SubscriptionEnd:   now.Add(48 * time.Hour),
		Lists:             []domain.CreateEventListItem{{Name: "Wave 1"}},
		Fields: []domain.CreateFieldDefinition{
			{Name: "Room type", Kind: domain.FieldKindForm, Type: domain.FieldSingleChoice},
		},
	})
	var validation *ValidationError
	if !errors.As(err, &validation) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if _, ok := validation.Fields["fields[0].options"]; !ok {
		t.Fatalf("expected an error on fields[0].options, got %v", validation.Fields)
	}
}

func TestUpdateEvent_CostLockedOnceSubscribed(t *testing.T) {
	repo := newRepoStub()
	ev := seedEvent(repo, 1500, 0)
	repo.hasSubs = true
	svc, _ := newTestService(repo)

	newCost := int64(2000)
	_, err := svc.UpdateEvent(context.Background(), ev.ID, domain.UpdateEventRequest{CostCents: &newCost})
	if !errors.Is(err, ErrEventLocked) {
		t.Fatalf("expected ErrEventLocked, got %v", err)
	}

	// Renaming stays allowed.
	name := "Ski Trip 2026"
	updated, err := svc.UpdateEvent(context.Background(), ev.ID, domain.UpdateEventRequest{Name: &name})
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if updated.Name != name || updated.CostCents != 1500 {
		t.Fatalf("expected only the name to change, got %+v", updated)
	}
}

func TestUpdateEvent_CapacityNeverBelowOccupancy(t *testing.T) {
	repo := newRepoStub()
	ev := seedEvent(repo, 1500, 0)
	repo.listCounts[ev.Lists[0].ID] = 5
	svc, _ := newTestService(repo)

	_, err := svc.UpdateEvent(context.Background(), ev.ID, domain.UpdateEventRequest{
		ListCapacities: map[uuid.UUID]int{ev.Lists[0].ID: 3},
	})
	var validation *ValidationError
	if !errors.As(err, &validation) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
}
