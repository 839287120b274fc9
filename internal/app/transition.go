/**
 * @description
 * The quota/deposit payment state machine. A save names a target status per
 * component; this file turns the pair of (current, target) statuses into a
 * transition plan: zero, one or two ledger movements plus the confirmation
 * summary the operator must approve before money moves.
 *
 * Rules per component (quota and deposit independently):
 *   - pending -> paid: open account required, one credit of the event amount.
 *   - paid -> pending: one debit reversing the latest unreversed credit, against
 *     that credit's account (never an account the caller sends).
 *   - paid -> reimbursed: only through the reimbursement endpoints.
 *   - reimbursed -> anything: rejected, terminal.
 *   - same status: no-op, no ledger entry.
 */

package app

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/esnpolimi/subscription-service/internal/domain"
	"github.com/esnpolimi/subscription-service/internal/store"
)

type plannedMovement struct {
	component   domain.MovementComponent
	direction   domain.MovementDirection
	amountCents int64
	accountID   uuid.UUID
	accountName string
	note        string
}

type transitionPlan struct {
	subscriptionID uuid.UUID
	movements      []plannedMovement
}

// buildTransitionPlan validates the requested statuses against the state
// machine and computes the ledger movements the save will produce.
func (s *Service) buildTransitionPlan(ctx context.Context, sub *domain.Subscription, event *domain.Event, targetQuota, targetDeposit domain.PaymentStatus, accountID *uuid.UUID) (*transitionPlan, error) {
	if !targetQuota.Valid() {
		return nil, newValidationError("status_quota", fmt.Sprintf("unknown status %q", targetQuota))
	}
	if !targetDeposit.Valid() {
		return nil, newValidationError("status_cauzione", fmt.Sprintf("unknown status %q", targetDeposit))
	}
	if targetDeposit != sub.StatusDeposit && !event.HasDeposit() {
		return nil, ErrDepositNotApplicable
	}

	plan := &transitionPlan{subscriptionID: sub.ID}

	if err := s.planComponent(ctx, plan, sub, domain.ComponentQuota, sub.StatusQuota, targetQuota, event.CostCents, accountID); err != nil {
		return nil, err
	}
	if err := s.planComponent(ctx, plan, sub, domain.ComponentDeposit, sub.StatusDeposit, targetDeposit, event.DepositCents, accountID); err != nil {
		return nil, err
	}
	return plan, nil
}

func (s *Service) planComponent(ctx context.Context, plan *transitionPlan, sub *domain.Subscription, component domain.MovementComponent, current, target domain.PaymentStatus, amountCents int64, accountID *uuid.UUID) error {
	if current == target {
		return nil
	}
	if current == domain.StatusReimbursed {
		return ErrReimbursedTerminal
	}
	if target == domain.StatusReimbursed {
		if current != domain.StatusPaid {
			return ErrTransitionNotAllowed
		}
		return ErrReimburseViaEndpoint
	}

	switch {
	case current == domain.StatusPending && target == domain.StatusPaid:
		if amountCents == 0 {
			// Free component: the status flips without a money movement.
			return nil
		}
		account, err := s.accountForPayment(ctx, accountID)
		if err != nil {
			return err
		}
		plan.movements = append(plan.movements, plannedMovement{
			component:   component,
			direction:   domain.DirectionCredit,
			amountCents: amountCents,
			accountID:   account.ID,
			accountName: account.Name,
			note:        fmt.Sprintf("%s payment", component),
		})
		return nil

	case current == domain.StatusPaid && target == domain.StatusPending:
		credit, err := s.repo.LatestUnreversedCredit(ctx, sub.ID, component)
		if err != nil {
			if errors.Is(err, store.ErrNoCreditToReverse) && amountCents == 0 {
				// A free component was flipped paid without a credit; nothing to reverse.
				return nil
			}
			return err
		}
		plan.movements = append(plan.movements, plannedMovement{
			component:   component,
			direction:   domain.DirectionDebit,
			amountCents: credit.AmountCents,
			accountID:   credit.AccountID,
			accountName: s.accountName(ctx, credit.AccountID),
			note:        fmt.Sprintf("%s payment reversal", component),
		})
		return nil
	}

	return ErrTransitionNotAllowed
}

// totalCents is the combined money movement of the plan.
func (p *transitionPlan) totalCents() int64 {
	var total int64
	for _, m := range p.movements {
		total += m.amountCents
	}
	return total
}

// requireConfirmation enforces the operator confirmation contract: any plan
// that moves money needs `"confirm": true`, otherwise the caller gets one
// combined human-readable summary to show and re-submit.
func (p *transitionPlan) requireConfirmation(confirmed bool) error {
	if len(p.movements) == 0 || confirmed {
		return nil
	}
	return &ConfirmationRequiredError{Summary: p.summary()}
}

func (p *transitionPlan) summary() string {
	credits := true
	debits := true
	components := make([]string, 0, len(p.movements))
	for _, m := range p.movements {
		if m.direction != domain.DirectionCredit {
			credits = false
		}
		if m.direction != domain.DirectionDebit {
			debits = false
		}
		components = append(components, string(m.component))
	}

	verb := "move"
	switch {
	case credits:
		verb = "charge"
	case debits:
		verb = "reverse"
	}

	account := p.movements[0].accountName
	sameAccount := true
	for _, m := range p.movements[1:] {
		if m.accountName != account {
			sameAccount = false
			break
		}
	}

	summary := fmt.Sprintf("%s %s (%s)", verb, domain.FormatEuro(p.totalCents()), strings.Join(components, " + "))
	if sameAccount {
		summary += fmt.Sprintf(" on account %s", account)
	}
	return summary
}
