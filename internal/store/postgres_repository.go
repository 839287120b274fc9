/**
 * @description
 * This file provides the PostgreSQL implementation of the `Repository` interface.
 * It contains all the necessary SQL queries to interact with the database tables
 * related to subscriptions, ledger movements, events, lists, fields and profiles.
 *
 * @dependencies
 * - context, encoding/json, errors: Standard Go libraries.
 * - github.com/jackc/pgx/v5: The PostgreSQL driver for database operations.
 * - internal/domain: Contains the domain models used for data transfer.
 */

package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/esnpolimi/subscription-service/internal/domain"
)

var (
	ErrSubscriptionNotFound = errors.New("subscription not found")
	ErrEventNotFound        = errors.New("event not found")
	ErrListNotFound         = errors.New("list not found")
	ErrProfileNotFound      = errors.New("profile not found")
	ErrNoCreditToReverse    = errors.New("no unreversed credit movement for this component")
)

// PostgresRepository is a concrete implementation of the Repository interface for PostgreSQL.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository creates a new instance of PostgresRepository.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const subscriptionColumns = `id, profile_id, event_id, list_id, status_quota, status_cauzione, account_id, notes, form_answers, extra_answers, created_at, updated_at`

func scanSubscription(row pgx.Row) (*domain.Subscription, error) {
	var sub domain.Subscription
	var formRaw, extraRaw []byte
	err := row.Scan(
		&sub.ID,
		&sub.ProfileID,
		&sub.EventID,
		&sub.ListID,
		&sub.StatusQuota,
		&sub.StatusDeposit,
		&sub.AccountID,
		&sub.Notes,
		&formRaw,
		&extraRaw,
		&sub.CreatedAt,
		&sub.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if sub.FormAnswers, err = unmarshalAnswers(formRaw); err != nil {
		return nil, fmt.Errorf("decode form answers for %s: %w", sub.ID, err)
	}
	if sub.ExtraAnswers, err = unmarshalAnswers(extraRaw); err != nil {
		return nil, fmt.Errorf("decode additional answers for %s: %w", sub.ID, err)
	}
	return &sub, nil
}

func marshalAnswers(answers map[uuid.UUID]domain.FieldValue) ([]byte, error) {
	if len(answers) == 0 {
		return []byte("{}"), nil
	}
	return json.Marshal(answers)
}

func unmarshalAnswers(raw []byte) (map[uuid.UUID]domain.FieldValue, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var answers map[uuid.UUID]domain.FieldValue
	if err := json.Unmarshal(raw, &answers); err != nil {
		return nil, err
	}
	if len(answers) == 0 {
		return nil, nil
	}
	return answers, nil
}

func uuidStrings(ids []uuid.UUID) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = id.String()
	}
	return out
}

// CreateSubscription inserts a new subscription together with the ledger
// movements of an at-creation payment, in one transaction.
func (r *PostgresRepository) CreateSubscription(ctx context.Context, sub *domain.Subscription, movements []domain.LedgerMovement) error {
	formRaw, err := marshalAnswers(sub.FormAnswers)
	if err != nil {
		return err
	}
	extraRaw, err := marshalAnswers(sub.ExtraAnswers)
	if err != nil {
		return err
	}

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	query := `
		INSERT INTO subscriptions (
			id, profile_id, event_id, list_id, status_quota, status_cauzione, account_id, notes, form_answers, extra_answers
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING created_at, updated_at
	`
	if err := tx.QueryRow(ctx, query,
		sub.ID,
		sub.ProfileID,
		sub.EventID,
		sub.ListID,
		sub.StatusQuota,
		sub.StatusDeposit,
		sub.AccountID,
		sub.Notes,
		formRaw,
		extraRaw,
	).Scan(&sub.CreatedAt, &sub.UpdatedAt); err != nil {
		return err
	}

	if err := insertMovementsTx(ctx, tx, movements); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

// FindSubscriptionByID retrieves a subscription by its id.
func (r *PostgresRepository) FindSubscriptionByID(ctx context.Context, id uuid.UUID) (*domain.Subscription, error) {
	query := `SELECT ` + subscriptionColumns + ` FROM subscriptions WHERE id = $1`
	sub, err := scanSubscription(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSubscriptionNotFound
		}
		return nil, err
	}
	return sub, nil
}

// ListSubscriptionsByEvent lists an event's subscriptions, optionally limited to one list.
func (r *PostgresRepository) ListSubscriptionsByEvent(ctx context.Context, eventID uuid.UUID, listID *uuid.UUID) ([]domain.Subscription, error) {
	query := `SELECT ` + subscriptionColumns + ` FROM subscriptions WHERE event_id = $1`
	args := []interface{}{eventID}
	if listID != nil {
		query += ` AND list_id = $2`
		args = append(args, *listID)
	}
	query += ` ORDER BY created_at`

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectSubscriptions(rows)
}

func collectSubscriptions(rows pgx.Rows) ([]domain.Subscription, error) {
	var subs []domain.Subscription
	for rows.Next() {
		sub, err := scanSubscription(rows)
		if err != nil {
			return nil, err
		}
		subs = append(subs, *sub)
	}
	return subs, rows.Err()
}

// CountSubscriptionsByList returns the current occupancy of a list.
func (r *PostgresRepository) CountSubscriptionsByList(ctx context.Context, listID uuid.UUID) (int, error) {
	var count int
	err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM subscriptions WHERE list_id = $1`, listID).Scan(&count)
	return count, err
}

// DeleteSubscription hard-deletes a subscription and its dependent rows. The
// reimbursed-record guard lives in the application layer; the database enforces
// it a second time so a racing reimbursement cannot slip through.
func (r *PostgresRepository) DeleteSubscription(ctx context.Context, id uuid.UUID) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM selected_services WHERE subscription_id = $1`, id); err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, `DELETE FROM ledger_movements WHERE subscription_id = $1`, id); err != nil {
		return err
	}

	result, err := tx.Exec(ctx, `
		DELETE FROM subscriptions
		WHERE id = $1 AND status_quota <> 'reimbursed' AND status_cauzione <> 'reimbursed'
	`, id)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return ErrSubscriptionNotFound
	}

	return tx.Commit(ctx)
}

// ApplySubscriptionTransition persists the outcome of a save: new statuses,
// account, notes and answers, plus the ledger movements the save produced.
func (r *PostgresRepository) ApplySubscriptionTransition(ctx context.Context, sub *domain.Subscription, movements []domain.LedgerMovement) error {
	formRaw, err := marshalAnswers(sub.FormAnswers)
	if err != nil {
		return err
	}
	extraRaw, err := marshalAnswers(sub.ExtraAnswers)
	if err != nil {
		return err
	}

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	query := `
		UPDATE subscriptions
		SET status_quota = $2,
		    status_cauzione = $3,
		    account_id = $4,
		    notes = $5,
		    form_answers = $6,
		    extra_answers = $7,
		    updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at
	`
	if err := tx.QueryRow(ctx, query,
		sub.ID,
		sub.StatusQuota,
		sub.StatusDeposit,
		sub.AccountID,
		sub.Notes,
		formRaw,
		extraRaw,
	).Scan(&sub.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrSubscriptionNotFound
		}
		return err
	}

	if err := insertMovementsTx(ctx, tx, movements); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

func insertMovementsTx(ctx context.Context, tx pgx.Tx, movements []domain.LedgerMovement) error {
	if len(movements) == 0 {
		return nil
	}
	query := `
		INSERT INTO ledger_movements (id, subscription_id, component, direction, amount_cents, account_id, note)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	for _, m := range movements {
		if _, err := tx.Exec(ctx, query,
			m.ID,
			m.SubscriptionID,
			m.Component,
			m.Direction,
			m.AmountCents,
			m.AccountID,
			m.Note,
		); err != nil {
			return err
		}
	}
	return nil
}

// MoveSubscriptions changes list_id for the given batch and nothing else.
func (r *PostgresRepository) MoveSubscriptions(ctx context.Context, ids []uuid.UUID, targetListID uuid.UUID) (int64, error) {
	result, err := r.db.Exec(ctx, `
		UPDATE subscriptions SET list_id = $1, updated_at = NOW()
		WHERE id = ANY($2::uuid[])
	`, targetListID, uuidStrings(ids))
	if err != nil {
		return 0, err
	}
	return result.RowsAffected(), nil
}

// MarkDepositsReimbursed flips status_cauzione to reimbursed for the whole
// batch and appends the matching debit movements, all-or-nothing. Ids whose
// deposit is no longer in the paid state make the batch fail rather than be
// silently skipped.
func (r *PostgresRepository) MarkDepositsReimbursed(ctx context.Context, ids []uuid.UUID, movements []domain.LedgerMovement) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	result, err := tx.Exec(ctx, `
		UPDATE subscriptions SET status_cauzione = 'reimbursed', updated_at = NOW()
		WHERE id = ANY($1::uuid[]) AND status_cauzione = 'paid'
	`, uuidStrings(ids))
	if err != nil {
		return err
	}
	if result.RowsAffected() != int64(len(ids)) {
		return fmt.Errorf("expected %d deposit flips, got %d: %w", len(ids), result.RowsAffected(), ErrSubscriptionNotFound)
	}

	if err := insertMovementsTx(ctx, tx, movements); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

const movementColumns = `id, subscription_id, component, direction, amount_cents, account_id, note, created_at`

// ListMovementsBySubscription returns the full audit trail, oldest first.
func (r *PostgresRepository) ListMovementsBySubscription(ctx context.Context, subscriptionID uuid.UUID) ([]domain.LedgerMovement, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+movementColumns+` FROM ledger_movements
		WHERE subscription_id = $1 ORDER BY created_at
	`, subscriptionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var movements []domain.LedgerMovement
	for rows.Next() {
		var m domain.LedgerMovement
		if err := rows.Scan(&m.ID, &m.SubscriptionID, &m.Component, &m.Direction, &m.AmountCents, &m.AccountID, &m.Note, &m.CreatedAt); err != nil {
			return nil, err
		}
		movements = append(movements, m)
	}
	return movements, rows.Err()
}

// LatestUnreversedCredit finds the credit a paid->pending reversal must undo:
// the most recent credit for the component not already followed by a debit.
func (r *PostgresRepository) LatestUnreversedCredit(ctx context.Context, subscriptionID uuid.UUID, component domain.MovementComponent) (*domain.LedgerMovement, error) {
	query := `
		SELECT ` + movementColumns + ` FROM ledger_movements
		WHERE subscription_id = $1 AND component = $2 AND direction = 'credit'
		  AND created_at > COALESCE(
			(SELECT MAX(created_at) FROM ledger_movements
			 WHERE subscription_id = $1 AND component = $2 AND direction = 'debit'),
			'-infinity'::timestamptz
		  )
		ORDER BY created_at DESC
		LIMIT 1
	`
	var m domain.LedgerMovement
	err := r.db.QueryRow(ctx, query, subscriptionID, component).Scan(
		&m.ID, &m.SubscriptionID, &m.Component, &m.Direction, &m.AmountCents, &m.AccountID, &m.Note, &m.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNoCreditToReverse
		}
		return nil, err
	}
	return &m, nil
}

// ListSelectedServices returns the ad-hoc purchased items tied to a subscription.
func (r *PostgresRepository) ListSelectedServices(ctx context.Context, subscriptionID uuid.UUID) ([]domain.SelectedService, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, subscription_id, description, price_cents, quantity, created_at
		FROM selected_services
		WHERE subscription_id = $1 ORDER BY created_at
	`, subscriptionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var services []domain.SelectedService
	for rows.Next() {
		var svc domain.SelectedService
		if err := rows.Scan(&svc.ID, &svc.SubscriptionID, &svc.Description, &svc.PriceCents, &svc.Quantity, &svc.CreatedAt); err != nil {
			return nil, err
		}
		services = append(services, svc)
	}
	return services, rows.Err()
}

// ListDepositReimbursable lists subscriptions eligible for bulk deposit
// reimbursement: deposit paid, not yet reimbursed.
func (r *PostgresRepository) ListDepositReimbursable(ctx context.Context, eventID uuid.UUID, listID *uuid.UUID) ([]domain.Subscription, error) {
	return r.listByStatus(ctx, eventID, listID, "status_cauzione")
}

// ListQuotaPaid lists subscriptions with a paid quota (liberatoria candidates).
func (r *PostgresRepository) ListQuotaPaid(ctx context.Context, eventID uuid.UUID, listID *uuid.UUID) ([]domain.Subscription, error) {
	return r.listByStatus(ctx, eventID, listID, "status_quota")
}

func (r *PostgresRepository) listByStatus(ctx context.Context, eventID uuid.UUID, listID *uuid.UUID, column string) ([]domain.Subscription, error) {
	query := `SELECT ` + subscriptionColumns + ` FROM subscriptions WHERE event_id = $1 AND ` + column + ` = 'paid'`
	args := []interface{}{eventID}
	if listID != nil {
		query += ` AND list_id = $2`
		args = append(args, *listID)
	}
	query += ` ORDER BY created_at`

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectSubscriptions(rows)
}
