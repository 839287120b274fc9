/**
 * @description
 * This file defines the core domain models for the subscription-service.
 * These structs represent the main entities and data transfer objects (DTOs)
 * used throughout the service's business logic, database interactions, and API layers.
 *
 * @notes
 * - Using distinct types for API requests, database models, and external service
 *   payloads ensures clear separation of concerns and type safety.
 * - Amounts are stored as `int64` to represent the value in the smallest currency
 *   unit (euro cents), which avoids floating-point inaccuracies with financial data.
 */

package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// PaymentStatus tracks one payable component of a subscription (quota or deposit).
type PaymentStatus string

const (
	StatusPending    PaymentStatus = "pending"
	StatusPaid       PaymentStatus = "paid"
	StatusReimbursed PaymentStatus = "reimbursed"
)

// Valid reports whether s is one of the three recognised statuses.
func (s PaymentStatus) Valid() bool {
	switch s {
	case StatusPending, StatusPaid, StatusReimbursed:
		return true
	}
	return false
}

// Subscription represents one profile signed up to one list of one event.
// Quota and deposit payment state are tracked independently. This struct maps
// directly to the `subscriptions` table in the database.
type Subscription struct {
	ID            uuid.UUID                `json:"id"`
	ProfileID     uuid.UUID                `json:"profile"`
	EventID       uuid.UUID                `json:"event"`
	ListID        uuid.UUID                `json:"list"`
	StatusQuota   PaymentStatus            `json:"status_quota"`
	StatusDeposit PaymentStatus            `json:"status_cauzione"`
	AccountID     *uuid.UUID               `json:"account_id,omitempty"`
	Notes         string                   `json:"notes"`
	FormAnswers   map[uuid.UUID]FieldValue `json:"form_data,omitempty"`
	ExtraAnswers  map[uuid.UUID]FieldValue `json:"additional_data,omitempty"`
	CreatedAt     time.Time                `json:"created_at"`
	UpdatedAt     time.Time                `json:"updated_at"`
}

// IsReimbursed reports whether either payable component has been reimbursed.
// A subscription with a reimbursed component is read-only apart from viewing.
func (s *Subscription) IsReimbursed() bool {
	return s.StatusQuota == StatusReimbursed || s.StatusDeposit == StatusReimbursed
}

// MovementComponent names which payable amount a ledger movement belongs to.
type MovementComponent string

const (
	ComponentQuota   MovementComponent = "quota"
	ComponentDeposit MovementComponent = "deposit"
)

// MovementDirection is the sign of a ledger movement from the account's perspective.
type MovementDirection string

const (
	DirectionCredit MovementDirection = "credit" // money into the account (a payment)
	DirectionDebit  MovementDirection = "debit"  // money out of the account (reversal or reimbursement)
)

// LedgerMovement is one immutable entry of a subscription's payment audit trail.
// Every transition into or out of `paid`, and every reimbursement, appends exactly
// one movement. Reversals resolve their account from the latest unreversed credit
// rather than trusting the caller, so multiple payment/reversal cycles stay
// individually auditable.
type LedgerMovement struct {
	ID             uuid.UUID         `json:"id"`
	SubscriptionID uuid.UUID         `json:"subscription_id"`
	Component      MovementComponent `json:"component"`
	Direction      MovementDirection `json:"direction"`
	AmountCents    int64             `json:"amount_cents"`
	AccountID      uuid.UUID         `json:"account_id"`
	Note           string            `json:"note,omitempty"`
	CreatedAt      time.Time         `json:"created_at"`
}

// SelectedService is an ad-hoc purchased item tied to a subscription. Its price
// is frozen at purchase time so later catalogue edits do not change what gets
// reimbursed.
type SelectedService struct {
	ID             uuid.UUID `json:"id"`
	SubscriptionID uuid.UUID `json:"subscription_id"`
	Description    string    `json:"description"`
	PriceCents     int64     `json:"price_cents"`
	Quantity       int64     `json:"quantity"`
	CreatedAt      time.Time `json:"created_at"`
}

// Profile is the minimal view of a member needed by this service
// (liberatoria printing and display). Profile CRUD lives elsewhere.
type Profile struct {
	ID            uuid.UUID `json:"id"`
	FirstName     string    `json:"first_name"`
	LastName      string    `json:"last_name"`
	Email         string    `json:"email"`
	ESNCardNumber *string   `json:"esncard_number,omitempty"`
}

// CreateSubscriptionRequest is the DTO for creating a subscription. Field names
// follow the established wire contract of the admin frontend.
type CreateSubscriptionRequest struct {
	ProfileID     uuid.UUID                `json:"profile"`
	EventID       uuid.UUID                `json:"event"`
	ListID        uuid.UUID                `json:"list"`
	AccountID     *uuid.UUID               `json:"account_id,omitempty"`
	Notes         string                   `json:"notes"`
	StatusQuota   PaymentStatus            `json:"status_quota,omitempty"`
	StatusDeposit PaymentStatus            `json:"status_cauzione,omitempty"`
	FormAnswers   map[uuid.UUID]FieldValue `json:"form_data,omitempty"`
	ExtraAnswers  map[uuid.UUID]FieldValue `json:"additional_data,omitempty"`
	Confirm       bool                     `json:"confirm,omitempty"`
}

// UpdateSubscriptionRequest is the DTO for editing a subscription. Pointer fields
// distinguish "leave unchanged" from an explicit new value.
type UpdateSubscriptionRequest struct {
	AccountID     *uuid.UUID               `json:"account_id,omitempty"`
	Notes         *string                  `json:"notes,omitempty"`
	StatusQuota   *PaymentStatus           `json:"status_quota,omitempty"`
	StatusDeposit *PaymentStatus           `json:"status_cauzione,omitempty"`
	FormAnswers   map[uuid.UUID]FieldValue `json:"form_data,omitempty"`
	ExtraAnswers  map[uuid.UUID]FieldValue `json:"additional_data,omitempty"`
	Confirm       bool                     `json:"confirm,omitempty"`
}

// MoveSubscriptionsRequest moves a batch of subscriptions to another list of the
// same event. Metadata-only: payment state, account and notes are untouched.
type MoveSubscriptionsRequest struct {
	SubscriptionIDs []uuid.UUID `json:"subscriptionIds"`
	TargetListID    uuid.UUID   `json:"targetListId"`
}

// ReimburseQuotaRequest reimburses one subscription's participation fee,
// optionally bundling its selected services into the reimbursed total.
type ReimburseQuotaRequest struct {
	EventID         uuid.UUID `json:"event"`
	SubscriptionID  uuid.UUID `json:"subscription_id"`
	AccountID       uuid.UUID `json:"account"`
	Notes           string    `json:"notes"`
	IncludeServices bool      `json:"include_services"`
	Confirm         bool      `json:"confirm,omitempty"`
}

// ReimburseDepositsRequest reimburses deposits for an explicit batch of
// subscriptions. The ids are sent explicitly — never "all matching" — so the
// selection cannot race with the eligible set changing between list and submit.
// Account is a fallback only: each deposit is normally debited from the account
// that originally received it.
type ReimburseDepositsRequest struct {
	EventID         uuid.UUID   `json:"event"`
	SubscriptionIDs []uuid.UUID `json:"subscription_ids"`
	AccountID       *uuid.UUID  `json:"account,omitempty"`
	Notes           string      `json:"notes"`
	Confirm         bool        `json:"confirm,omitempty"`
}

// GenerateLiberatoriePDFRequest selects the paid subscriptions to render into a
// printable waiver batch.
type GenerateLiberatoriePDFRequest struct {
	EventID         uuid.UUID   `json:"event"`
	SubscriptionIDs []uuid.UUID `json:"subscription_ids"`
}

// LiberatoriaRow is one printable-waiver candidate: a quota-paid subscription
// joined with its profile.
type LiberatoriaRow struct {
	Subscription Subscription `json:"subscription"`
	Profile      Profile      `json:"profile"`
}

// FormatEuro renders an amount of euro cents as a human-readable string, e.g.
// FormatEuro(2500) == "€25.00". Used for operator-facing confirmation summaries.
func FormatEuro(cents int64) string {
	sign := ""
	if cents < 0 {
		sign = "-"
		cents = -cents
	}
	return fmt.Sprintf("%s€%d.%02d", sign, cents/100, cents%100)
}
