/**
 * @description
 * This file defines the `Repository` interface, which specifies the contract for all
 * data access operations required by the subscription-service. By defining an interface,
 * we decouple the application's business logic from the specific database implementation
 * (e.g., PostgreSQL), making the code more modular and easier to test.
 *
 * @dependencies
 * - context: Standard Go library.
 * - github.com/google/uuid: For UUID handling.
 * - internal/domain: For the service's domain models.
 */

package store

import (
	"context"

	"github.com/google/uuid"

	"github.com/esnpolimi/subscription-service/internal/domain"
)

// Repository defines the set of methods for interacting with the database.
type Repository interface {
	// Subscription methods
	CreateSubscription(ctx context.Context, sub *domain.Subscription, movements []domain.LedgerMovement) error
	FindSubscriptionByID(ctx context.Context, id uuid.UUID) (*domain.Subscription, error)
	ListSubscriptionsByEvent(ctx context.Context, eventID uuid.UUID, listID *uuid.UUID) ([]domain.Subscription, error)
	CountSubscriptionsByList(ctx context.Context, listID uuid.UUID) (int, error)
	DeleteSubscription(ctx context.Context, id uuid.UUID) error
	// ApplySubscriptionTransition persists new statuses, account, notes and
	// answers together with the ledger movements of the save, in one database
	// transaction.
	ApplySubscriptionTransition(ctx context.Context, sub *domain.Subscription, movements []domain.LedgerMovement) error
	MoveSubscriptions(ctx context.Context, ids []uuid.UUID, targetListID uuid.UUID) (int64, error)
	// MarkDepositsReimbursed flips status_cauzione to reimbursed for every id and
	// appends the matching movements, all-or-nothing.
	MarkDepositsReimbursed(ctx context.Context, ids []uuid.UUID, movements []domain.LedgerMovement) error

	// Ledger audit trail methods
	ListMovementsBySubscription(ctx context.Context, subscriptionID uuid.UUID) ([]domain.LedgerMovement, error)
	// LatestUnreversedCredit returns the most recent credit for the component
	// that has not been followed by a debit; it names the account a reversal
	// must target.
	LatestUnreversedCredit(ctx context.Context, subscriptionID uuid.UUID, component domain.MovementComponent) (*domain.LedgerMovement, error)

	// Selected services methods
	ListSelectedServices(ctx context.Context, subscriptionID uuid.UUID) ([]domain.SelectedService, error)

	// Bulk eligibility listings
	ListDepositReimbursable(ctx context.Context, eventID uuid.UUID, listID *uuid.UUID) ([]domain.Subscription, error)
	ListQuotaPaid(ctx context.Context, eventID uuid.UUID, listID *uuid.UUID) ([]domain.Subscription, error)

	// Event methods
	CreateEvent(ctx context.Context, ev *domain.Event) error
	UpdateEvent(ctx context.Context, ev *domain.Event) error
	FindEventByID(ctx context.Context, id uuid.UUID) (*domain.Event, error)
	ListEvents(ctx context.Context) ([]domain.Event, error)
	EventHasSubscriptions(ctx context.Context, eventID uuid.UUID) (bool, error)

	// Profile methods (read-only: profile CRUD is owned elsewhere)
	FindProfileByID(ctx context.Context, id uuid.UUID) (*domain.Profile, error)
	ListProfilesByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]domain.Profile, error)
}
