/**
 * @description
 * Business-rule errors of the subscription lifecycle. Sentinel errors map to
 * HTTP statuses in the API layer; the two structured types carry extra payload
 * (per-field messages, the confirmation summary) to the client.
 */

package app

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	ErrAccountRequired          = errors.New("an account is required to record a payment")
	ErrAccountClosed            = errors.New("account is closed and cannot receive new payments")
	ErrAccountUnknown           = errors.New("account is not known to the ledger")
	ErrReimbursedTerminal       = errors.New("reimbursed is terminal: no further transitions are accepted")
	ErrSubscriptionReadOnly     = errors.New("subscription has a reimbursed component and is read-only")
	ErrDepositNotApplicable     = errors.New("event has no deposit: deposit transitions are not applicable")
	ErrTransitionNotAllowed     = errors.New("status transition not allowed")
	ErrReimburseViaEndpoint     = errors.New("reimbursement must go through the reimbursement endpoints")
	ErrSubscriptionWindowClosed = errors.New("the event's subscription window is closed")
	ErrListNotInEvent           = errors.New("list does not belong to the event")
	ErrListFull                 = errors.New("list is at capacity")
	ErrSameList                 = errors.New("target list equals the current list")
	ErrNotQuotaPaid             = errors.New("quota is not in the paid state")
	ErrNotDepositPaid           = errors.New("deposit is not in the paid state")
	ErrEventLocked              = errors.New("cost, deposit and capacities are locked once the event has subscriptions")
	ErrWindowOrder              = errors.New("subscription window end precedes its start")
)

// ConfirmationRequiredError is returned when a save would move money and the
// request did not carry `"confirm": true`. The summary is shown to the operator
// verbatim; a combined quota+deposit save produces one combined summary.
type ConfirmationRequiredError struct {
	Summary string
}

func (e *ConfirmationRequiredError) Error() string {
	return fmt.Sprintf("confirmation required: %s", e.Summary)
}

// ValidationError carries per-field messages for a 4xx response body.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s: %s", k, e.Fields[k]))
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

func newValidationError(field, msg string) *ValidationError {
	return &ValidationError{Fields: map[string]string{field: msg}}
}
