/**
 * @description
 * This file contains the core business logic for the subscription-service. The
 * `Service` struct orchestrates the subscription lifecycle, coordinating between
 * the database repository, the ledger service client, the accounts cache and the
 * message broker.
 *
 * Key features:
 * - Create/edit/delete subscriptions with the quota/deposit payment state machine.
 * - Posts exactly one ledger entry per transition into or out of `paid`, recorded
 *   locally in an append-only per-subscription audit trail.
 * - Enforces the operator confirmation contract on every non-zero money movement.
 * - Publishes events to RabbitMQ for asynchronous processing by other services.
 *
 * @dependencies
 * - context, fmt, log, time: Standard Go libraries.
 * - github.com/google/uuid: For UUID generation.
 * - internal/domain, internal/store: For domain models and data access.
 * - pkg/ledgerclient, pkg/rabbitmq: For external service communication.
 */

package app

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/esnpolimi/subscription-service/internal/domain"
	"github.com/esnpolimi/subscription-service/internal/store"
	"github.com/esnpolimi/subscription-service/pkg/ledgerclient"
	"github.com/esnpolimi/subscription-service/pkg/rabbitmq"
)

// LedgerClient is the slice of the ledger service client this service needs.
type LedgerClient interface {
	PostEntry(ctx context.Context, entry ledgerclient.PostEntryRequest) (*ledgerclient.PostEntryResponse, error)
	ListAccounts(ctx context.Context) ([]ledgerclient.Account, error)
}

// Service provides the core business logic for subscriptions.
type Service struct {
	repo     store.Repository
	ledger   LedgerClient
	producer rabbitmq.Publisher
	accounts *AccountsCache
	now      func() time.Time
}

// NewService creates a new subscription service instance.
func NewService(repo store.Repository, ledger LedgerClient, producer rabbitmq.Publisher, accounts *AccountsCache) *Service {
	return &Service{
		repo:     repo,
		ledger:   ledger,
		producer: producer,
		accounts: accounts,
		now:      time.Now,
	}
}

// GetSubscription returns one subscription by id.
func (s *Service) GetSubscription(ctx context.Context, id uuid.UUID) (*domain.Subscription, error) {
	return s.repo.FindSubscriptionByID(ctx, id)
}

// ListSubscriptions returns an event's subscriptions, optionally limited to one list.
func (s *Service) ListSubscriptions(ctx context.Context, eventID uuid.UUID, listID *uuid.UUID) ([]domain.Subscription, error) {
	if _, err := s.repo.FindEventByID(ctx, eventID); err != nil {
		return nil, err
	}
	return s.repo.ListSubscriptionsByEvent(ctx, eventID, listID)
}

// CreateSubscription creates a subscription on an event list. Paying at creation
// (status_quota or status_cauzione sent as "paid") follows the same transition
// contract as an edit: open account, one ledger credit per component, operator
// confirmation on any non-zero total.
func (s *Service) CreateSubscription(ctx context.Context, req domain.CreateSubscriptionRequest) (*domain.Subscription, error) {
	event, err := s.repo.FindEventByID(ctx, req.EventID)
	if err != nil {
		return nil, err
	}
	if !event.SubscriptionWindowOpen(s.now()) {
		return nil, ErrSubscriptionWindowClosed
	}
	list := event.ListByID(req.ListID)
	if list == nil {
		return nil, ErrListNotInEvent
	}
	if list.Capacity > 0 {
		occupancy, err := s.repo.CountSubscriptionsByList(ctx, list.ID)
		if err != nil {
			return nil, err
		}
		if occupancy >= list.Capacity {
			return nil, ErrListFull
		}
	}
	if _, err := s.repo.FindProfileByID(ctx, req.ProfileID); err != nil {
		return nil, err
	}
	if err := validateAnswers(event, req.FormAnswers, req.ExtraAnswers, true); err != nil {
		return nil, err
	}

	sub := &domain.Subscription{
		ID:            uuid.New(),
		ProfileID:     req.ProfileID,
		EventID:       req.EventID,
		ListID:        req.ListID,
		StatusQuota:   domain.StatusPending,
		StatusDeposit: domain.StatusPending,
		AccountID:     req.AccountID,
		Notes:         req.Notes,
		FormAnswers:   req.FormAnswers,
		ExtraAnswers:  req.ExtraAnswers,
	}

	targetQuota := sub.StatusQuota
	if req.StatusQuota != "" {
		targetQuota = req.StatusQuota
	}
	targetDeposit := sub.StatusDeposit
	if req.StatusDeposit != "" {
		targetDeposit = req.StatusDeposit
	}

	plan, err := s.buildTransitionPlan(ctx, sub, event, targetQuota, targetDeposit, req.AccountID)
	if err != nil {
		return nil, err
	}
	if err := plan.requireConfirmation(req.Confirm); err != nil {
		return nil, err
	}

	movements, err := s.postPlannedMovements(ctx, plan)
	if err != nil {
		return nil, err
	}

	sub.StatusQuota = targetQuota
	sub.StatusDeposit = targetDeposit
	if err := s.repo.CreateSubscription(ctx, sub, movements); err != nil {
		s.compensateMovements(ctx, movements)
		return nil, fmt.Errorf("failed to create subscription record: %w", err)
	}

	s.publishMovementEvents(ctx, movements)
	log.Printf("level=info component=app op=create_subscription subscription_id=%s event_id=%s list_id=%s", sub.ID, sub.EventID, sub.ListID)
	return sub, nil
}

// UpdateSubscription edits notes, answers, account and payment statuses. The
// ledger is touched only when a status actually changes; re-submitting the same
// statuses is an idempotent no-op for money.
func (s *Service) UpdateSubscription(ctx context.Context, id uuid.UUID, req domain.UpdateSubscriptionRequest) (*domain.Subscription, error) {
	sub, err := s.repo.FindSubscriptionByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if sub.IsReimbursed() {
		return nil, ErrSubscriptionReadOnly
	}
	event, err := s.repo.FindEventByID(ctx, sub.EventID)
	if err != nil {
		return nil, err
	}

	if req.Notes != nil {
		sub.Notes = *req.Notes
	}
	if req.FormAnswers != nil || req.ExtraAnswers != nil {
		if req.FormAnswers != nil {
			sub.FormAnswers = req.FormAnswers
		}
		if req.ExtraAnswers != nil {
			sub.ExtraAnswers = req.ExtraAnswers
		}
		if err := validateAnswers(event, sub.FormAnswers, sub.ExtraAnswers, false); err != nil {
			return nil, err
		}
	}

	accountID := sub.AccountID
	if req.AccountID != nil {
		accountID = req.AccountID
	}

	targetQuota := sub.StatusQuota
	if req.StatusQuota != nil {
		targetQuota = *req.StatusQuota
	}
	targetDeposit := sub.StatusDeposit
	if req.StatusDeposit != nil {
		targetDeposit = *req.StatusDeposit
	}

	plan, err := s.buildTransitionPlan(ctx, sub, event, targetQuota, targetDeposit, accountID)
	if err != nil {
		return nil, err
	}
	if err := plan.requireConfirmation(req.Confirm); err != nil {
		return nil, err
	}

	movements, err := s.postPlannedMovements(ctx, plan)
	if err != nil {
		return nil, err
	}

	sub.StatusQuota = targetQuota
	sub.StatusDeposit = targetDeposit
	sub.AccountID = accountID
	if err := s.repo.ApplySubscriptionTransition(ctx, sub, movements); err != nil {
		s.compensateMovements(ctx, movements)
		return nil, fmt.Errorf("failed to persist subscription transition: %w", err)
	}

	s.publishMovementEvents(ctx, movements)
	log.Printf("level=info component=app op=update_subscription subscription_id=%s status_quota=%s status_cauzione=%s movements=%d",
		sub.ID, sub.StatusQuota, sub.StatusDeposit, len(movements))
	return sub, nil
}

// DeleteSubscription hard-deletes a subscription. A record with a reimbursed
// component is immutable apart from viewing and cannot be deleted.
func (s *Service) DeleteSubscription(ctx context.Context, id uuid.UUID) error {
	sub, err := s.repo.FindSubscriptionByID(ctx, id)
	if err != nil {
		return err
	}
	if sub.IsReimbursed() {
		return ErrSubscriptionReadOnly
	}
	if err := s.repo.DeleteSubscription(ctx, id); err != nil {
		return err
	}
	log.Printf("level=info component=app op=delete_subscription subscription_id=%s", id)
	return nil
}

// ListMovements returns the payment audit trail for one subscription.
func (s *Service) ListMovements(ctx context.Context, subscriptionID uuid.UUID) ([]domain.LedgerMovement, error) {
	if _, err := s.repo.FindSubscriptionByID(ctx, subscriptionID); err != nil {
		return nil, err
	}
	return s.repo.ListMovementsBySubscription(ctx, subscriptionID)
}

// postPlannedMovements posts each planned movement to the ledger, in order.
// If a later post fails, the earlier ones are compensated with an opposite
// entry so the ledger matches the unchanged database state.
func (s *Service) postPlannedMovements(ctx context.Context, plan *transitionPlan) ([]domain.LedgerMovement, error) {
	movements := make([]domain.LedgerMovement, 0, len(plan.movements))
	for _, m := range plan.movements {
		movement := domain.LedgerMovement{
			ID:             uuid.New(),
			SubscriptionID: plan.subscriptionID,
			Component:      m.component,
			Direction:      m.direction,
			AmountCents:    m.amountCents,
			AccountID:      m.accountID,
			Note:           m.note,
		}
		_, err := s.ledger.PostEntry(ctx, ledgerclient.PostEntryRequest{
			AccountID:   movement.AccountID.String(),
			Direction:   string(movement.Direction),
			AmountCents: movement.AmountCents,
			Reference:   movement.ID.String(),
			Description: movement.Note,
		})
		if err != nil {
			s.compensateMovements(ctx, movements)
			return nil, fmt.Errorf("ledger post failed: %w", err)
		}
		movements = append(movements, movement)
	}
	return movements, nil
}

// compensateMovements posts the opposite of each already-posted entry. Used
// when a later ledger post or the database write fails after money moved.
func (s *Service) compensateMovements(ctx context.Context, posted []domain.LedgerMovement) {
	for _, m := range posted {
		opposite := domain.DirectionDebit
		if m.Direction == domain.DirectionDebit {
			opposite = domain.DirectionCredit
		}
		_, err := s.ledger.PostEntry(ctx, ledgerclient.PostEntryRequest{
			AccountID:   m.AccountID.String(),
			Direction:   string(opposite),
			AmountCents: m.AmountCents,
			Reference:   "compensate-" + m.ID.String(),
			Description: "compensation for failed operation",
		})
		if err != nil {
			log.Printf("CRITICAL: failed to compensate ledger entry %s (account %s, %s %d): %v",
				m.ID, m.AccountID, m.Direction, m.AmountCents, err)
		}
	}
}

func (s *Service) publishMovementEvents(ctx context.Context, movements []domain.LedgerMovement) {
	for _, m := range movements {
		key := rabbitmq.KeyPaymentRecorded
		if m.Direction == domain.DirectionDebit {
			key = rabbitmq.KeyPaymentReversed
		}
		event := rabbitmq.PaymentEvent{
			SubscriptionID: m.SubscriptionID,
			Component:      string(m.Component),
			AmountCents:    m.AmountCents,
			AccountID:      m.AccountID,
			Timestamp:      s.now(),
		}
		if err := s.producer.Publish(ctx, rabbitmq.Exchange, key, event); err != nil {
			log.Printf("level=warn component=app msg=\"event publish failed\" routing_key=%s subscription_id=%s err=%v", key, m.SubscriptionID, err)
		}
	}
}

// validateAnswers checks every answer against the event's field definitions and,
// at creation, that every required form field has an answer. Messages are keyed
// by field name for the per-field error map of the response.
func validateAnswers(event *domain.Event, form, extra map[uuid.UUID]domain.FieldValue, requireAll bool) error {
	fields := map[string]string{}

	check := func(answers map[uuid.UUID]domain.FieldValue, kind domain.FieldKind) {
		for fieldID, value := range answers {
			def := event.FieldByID(fieldID)
			if def == nil {
				fields[fieldID.String()] = "unknown field"
				continue
			}
			if def.Kind != kind {
				fields[def.Name] = fmt.Sprintf("field belongs to %s data", def.Kind)
				continue
			}
			if err := def.Validate(value); err != nil {
				fields[def.Name] = err.Error()
			}
		}
	}
	check(form, domain.FieldKindForm)
	check(extra, domain.FieldKindAdditional)

	if requireAll {
		for _, def := range event.Fields {
			if def.Kind != domain.FieldKindForm || !def.Required {
				continue
			}
			if _, ok := form[def.ID]; !ok {
				fields[def.Name] = "field is required"
			}
		}
	}

	if len(fields) > 0 {
		return &ValidationError{Fields: fields}
	}
	return nil
}

// accountForPayment resolves and validates the target account of a new payment:
// it must be known to the ledger and open. Closed accounts keep displaying on
// historical subscriptions but are rejected here.
func (s *Service) accountForPayment(ctx context.Context, accountID *uuid.UUID) (*domain.Account, error) {
	if accountID == nil {
		return nil, ErrAccountRequired
	}
	accounts, err := s.accounts.Accounts(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list ledger accounts: %w", err)
	}
	for i := range accounts {
		if accounts[i].ID == *accountID {
			if !accounts[i].IsOpen() {
				return nil, ErrAccountClosed
			}
			return &accounts[i], nil
		}
	}
	return nil, ErrAccountUnknown
}

func (s *Service) accountName(ctx context.Context, accountID uuid.UUID) string {
	accounts, err := s.accounts.Accounts(ctx)
	if err != nil {
		return accountID.String()
	}
	for _, a := range accounts {
		if a.ID == accountID {
			return a.Name
		}
	}
	return accountID.String()
}
