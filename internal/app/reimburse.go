/**
 * @description
 * Reimbursement flows: single-quota reimbursement (optionally bundling the
 * subscription's selected services into the reimbursed total) and bulk deposit
 * reimbursement across an explicit batch of subscriptions. Both flip the
 * component to its terminal `reimbursed` state and post one ledger debit per
 * reimbursed amount.
 */

package app

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/google/uuid"

	"github.com/esnpolimi/subscription-service/internal/domain"
	"github.com/esnpolimi/subscription-service/internal/store"
	"github.com/esnpolimi/subscription-service/pkg/rabbitmq"
)

// quotaReimbursementTotal computes the amount a quota reimbursement pays out.
// Entries with a non-positive price or quantity are skipped: they encode
// discounts or data-entry corrections, not purchases to refund.
func quotaReimbursementTotal(costCents int64, quotaAlreadyReimbursed bool, services []domain.SelectedService, includeServices bool) int64 {
	var total int64
	if !quotaAlreadyReimbursed {
		total = costCents
	}
	if includeServices {
		for _, svc := range services {
			if svc.PriceCents <= 0 || svc.Quantity <= 0 {
				continue
			}
			total += svc.PriceCents * svc.Quantity
		}
	}
	return total
}

// ReimburseQuota reimburses one subscription's participation fee from the
// chosen account and flips its quota to reimbursed.
func (s *Service) ReimburseQuota(ctx context.Context, req domain.ReimburseQuotaRequest) (*domain.Subscription, error) {
	sub, err := s.repo.FindSubscriptionByID(ctx, req.SubscriptionID)
	if err != nil {
		return nil, err
	}
	if sub.EventID != req.EventID {
		return nil, newValidationError("subscription_id", "subscription does not belong to the event")
	}
	if sub.StatusQuota == domain.StatusReimbursed {
		return nil, ErrReimbursedTerminal
	}
	if sub.StatusQuota != domain.StatusPaid {
		return nil, ErrNotQuotaPaid
	}
	event, err := s.repo.FindEventByID(ctx, sub.EventID)
	if err != nil {
		return nil, err
	}

	var services []domain.SelectedService
	var servicesCents int64
	if req.IncludeServices {
		if services, err = s.repo.ListSelectedServices(ctx, sub.ID); err != nil {
			return nil, err
		}
		servicesCents = quotaReimbursementTotal(0, true, services, true)
	}
	total := quotaReimbursementTotal(event.CostCents, false, services, req.IncludeServices)

	account, err := s.accountForPayment(ctx, &req.AccountID)
	if err != nil {
		return nil, err
	}

	var movements []domain.LedgerMovement
	if total > 0 {
		if !req.Confirm {
			return nil, &ConfirmationRequiredError{
				Summary: fmt.Sprintf("reverse %s (quota reimbursement) on account %s", domain.FormatEuro(total), account.Name),
			}
		}
		plan := &transitionPlan{
			subscriptionID: sub.ID,
			movements: []plannedMovement{{
				component:   domain.ComponentQuota,
				direction:   domain.DirectionDebit,
				amountCents: total,
				accountID:   account.ID,
				accountName: account.Name,
				note:        quotaReimbursementNote(req.IncludeServices, req.Notes),
			}},
		}
		if movements, err = s.postPlannedMovements(ctx, plan); err != nil {
			return nil, err
		}
	}

	sub.StatusQuota = domain.StatusReimbursed
	if err := s.repo.ApplySubscriptionTransition(ctx, sub, movements); err != nil {
		s.compensateMovements(ctx, movements)
		return nil, fmt.Errorf("failed to persist quota reimbursement: %w", err)
	}

	if err := s.producer.Publish(ctx, rabbitmq.Exchange, rabbitmq.KeyReimbursed, rabbitmq.PaymentEvent{
		SubscriptionID: sub.ID,
		Component:      string(domain.ComponentQuota),
		AmountCents:    total,
		AccountID:      account.ID,
		ServicesCents:  servicesCents,
		Timestamp:      s.now(),
	}); err != nil {
		log.Printf("level=warn component=app msg=\"event publish failed\" routing_key=%s subscription_id=%s err=%v", rabbitmq.KeyReimbursed, sub.ID, err)
	}

	log.Printf("level=info component=app op=reimburse_quota subscription_id=%s amount_cents=%d include_services=%t", sub.ID, total, req.IncludeServices)
	return sub, nil
}

func quotaReimbursementNote(includeServices bool, notes string) string {
	note := "quota reimbursement"
	if includeServices {
		note = "quota reimbursement incl. services"
	}
	if notes != "" {
		note += ": " + notes
	}
	return note
}

// ListReimbursableDeposits lists the bulk candidates: deposit paid, not yet
// reimbursed, within one event and optionally one list.
func (s *Service) ListReimbursableDeposits(ctx context.Context, eventID uuid.UUID, listID *uuid.UUID) ([]domain.Subscription, error) {
	event, err := s.repo.FindEventByID(ctx, eventID)
	if err != nil {
		return nil, err
	}
	if !event.HasDeposit() {
		return nil, ErrDepositNotApplicable
	}
	return s.repo.ListDepositReimbursable(ctx, eventID, listID)
}

// BulkReimbursementResult reports a bulk deposit reimbursement: which ids went
// through and, per skipped id, why.
type BulkReimbursementResult struct {
	ReimbursedIDs []uuid.UUID          `json:"reimbursed_ids"`
	Failures      map[uuid.UUID]string `json:"failures,omitempty"`
	TotalCents    int64                `json:"total_cents"`
}

// ReimburseDeposits reimburses the deposit of an explicit batch of
// subscriptions. Each deposit is debited from the account that originally
// received it (per the audit trail); the request account is only a fallback.
// Ineligible ids are reported per-id; the eligible remainder is processed
// all-or-nothing: one database transaction, with already-posted ledger entries
// compensated when a later post or the commit fails.
func (s *Service) ReimburseDeposits(ctx context.Context, req domain.ReimburseDepositsRequest) (*BulkReimbursementResult, error) {
	event, err := s.repo.FindEventByID(ctx, req.EventID)
	if err != nil {
		return nil, err
	}
	if !event.HasDeposit() {
		return nil, ErrDepositNotApplicable
	}
	if len(req.SubscriptionIDs) == 0 {
		return nil, newValidationError("subscription_ids", "at least one subscription is required")
	}

	var fallback *domain.Account
	if req.AccountID != nil {
		if fallback, err = s.accountForPayment(ctx, req.AccountID); err != nil {
			return nil, err
		}
	}

	result := &BulkReimbursementResult{Failures: map[uuid.UUID]string{}}
	plan := &transitionPlan{}
	var eligible []uuid.UUID

	for _, id := range req.SubscriptionIDs {
		sub, err := s.repo.FindSubscriptionByID(ctx, id)
		if err != nil {
			if errors.Is(err, store.ErrSubscriptionNotFound) {
				result.Failures[id] = "subscription not found"
				continue
			}
			return nil, err
		}
		if sub.EventID != req.EventID {
			result.Failures[id] = "subscription does not belong to the event"
			continue
		}
		if sub.StatusDeposit != domain.StatusPaid {
			result.Failures[id] = "deposit is not in the paid state"
			continue
		}

		accountID, accountName, err := s.depositRefundAccount(ctx, id, fallback)
		if err != nil {
			result.Failures[id] = err.Error()
			continue
		}

		plan.movements = append(plan.movements, plannedMovement{
			component:   domain.ComponentDeposit,
			direction:   domain.DirectionDebit,
			amountCents: event.DepositCents,
			accountID:   accountID,
			accountName: accountName,
			note:        depositReimbursementNote(req.Notes),
		})
		eligible = append(eligible, id)
	}

	if len(eligible) == 0 {
		return result, nil
	}
	if !req.Confirm {
		return nil, &ConfirmationRequiredError{
			Summary: fmt.Sprintf("reverse %s (deposit x %d)", domain.FormatEuro(plan.totalCents()), len(eligible)),
		}
	}

	// One movement per id, posted in order; plannedMovement carries no
	// subscription id, so rebuild them with it after posting.
	movements := make([]domain.LedgerMovement, 0, len(eligible))
	for i, id := range eligible {
		single := &transitionPlan{subscriptionID: id, movements: plan.movements[i : i+1]}
		posted, err := s.postPlannedMovements(ctx, single)
		if err != nil {
			s.compensateMovements(ctx, movements)
			return nil, err
		}
		movements = append(movements, posted...)
	}

	if err := s.repo.MarkDepositsReimbursed(ctx, eligible, movements); err != nil {
		s.compensateMovements(ctx, movements)
		return nil, fmt.Errorf("failed to persist bulk deposit reimbursement: %w", err)
	}

	result.ReimbursedIDs = eligible
	result.TotalCents = plan.totalCents()
	if len(result.Failures) == 0 {
		result.Failures = nil
	}

	if err := s.producer.Publish(ctx, rabbitmq.Exchange, rabbitmq.KeyDepositsBulk, rabbitmq.BulkDepositEvent{
		EventID:    req.EventID,
		Count:      len(eligible),
		TotalCents: result.TotalCents,
		Timestamp:  s.now(),
	}); err != nil {
		log.Printf("level=warn component=app msg=\"event publish failed\" routing_key=%s event_id=%s err=%v", rabbitmq.KeyDepositsBulk, req.EventID, err)
	}

	log.Printf("level=info component=app op=reimburse_deposits event_id=%s count=%d total_cents=%d skipped=%d",
		req.EventID, len(eligible), result.TotalCents, len(result.Failures))
	return result, nil
}

// depositRefundAccount resolves where a deposit refund is debited from: the
// account of the deposit's latest unreversed credit, or the request's fallback
// account when the trail has none (pre-audit-trail data).
func (s *Service) depositRefundAccount(ctx context.Context, subscriptionID uuid.UUID, fallback *domain.Account) (uuid.UUID, string, error) {
	credit, err := s.repo.LatestUnreversedCredit(ctx, subscriptionID, domain.ComponentDeposit)
	if err == nil {
		return credit.AccountID, s.accountName(ctx, credit.AccountID), nil
	}
	if !errors.Is(err, store.ErrNoCreditToReverse) {
		return uuid.Nil, "", err
	}
	if fallback == nil {
		return uuid.Nil, "", errors.New("no paying account on record and no fallback account given")
	}
	return fallback.ID, fallback.Name, nil
}

func depositReimbursementNote(notes string) string {
	note := "deposit reimbursement"
	if notes != "" {
		note += ": " + notes
	}
	return note
}
