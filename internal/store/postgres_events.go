/**
 * @description
 * PostgreSQL queries for the events registry (events, lists, field definitions)
 * and the read-only profile lookups. Kept separate from the subscription queries
 * to keep each file focused on one aggregate.
 */

package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/esnpolimi/subscription-service/internal/domain"
)

// CreateEvent inserts an event with its lists and field definitions in one
// transaction. The caller assigns all ids up front.
func (r *PostgresRepository) CreateEvent(ctx context.Context, ev *domain.Event) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	query := `
		INSERT INTO events (id, name, cost_cents, deposit_cents, subscription_start, subscription_end)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at, updated_at
	`
	if err := tx.QueryRow(ctx, query,
		ev.ID, ev.Name, ev.CostCents, ev.DepositCents, ev.SubscriptionStart, ev.SubscriptionEnd,
	).Scan(&ev.CreatedAt, &ev.UpdatedAt); err != nil {
		return err
	}

	for _, list := range ev.Lists {
		if _, err := tx.Exec(ctx, `
			INSERT INTO event_lists (id, event_id, name, capacity) VALUES ($1, $2, $3, $4)
		`, list.ID, list.EventID, list.Name, list.Capacity); err != nil {
			return err
		}
	}

	for _, field := range ev.Fields {
		if err := insertFieldTx(ctx, tx, field); err != nil {
			return err
		}
	}

	return tx.Commit(ctx)
}

func insertFieldTx(ctx context.Context, tx pgx.Tx, field domain.FieldDefinition) error {
	options, err := json.Marshal(field.Options)
	if err != nil {
		return err
	}
	_, err = tx.Exec(ctx, `
		INSERT INTO event_fields (id, event_id, name, kind, field_type, options, required)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, field.ID, field.EventID, field.Name, field.Kind, field.Type, options, field.Required)
	return err
}

// UpdateEvent persists the event row and the capacities of its lists. Lists and
// field definitions are never deleted here; capacity edits are validated by the
// application layer beforehand.
func (r *PostgresRepository) UpdateEvent(ctx context.Context, ev *domain.Event) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	query := `
		UPDATE events
		SET name = $2, cost_cents = $3, deposit_cents = $4,
		    subscription_start = $5, subscription_end = $6, updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at
	`
	if err := tx.QueryRow(ctx, query,
		ev.ID, ev.Name, ev.CostCents, ev.DepositCents, ev.SubscriptionStart, ev.SubscriptionEnd,
	).Scan(&ev.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrEventNotFound
		}
		return err
	}

	for _, list := range ev.Lists {
		result, err := tx.Exec(ctx, `
			UPDATE event_lists SET name = $3, capacity = $4 WHERE id = $1 AND event_id = $2
		`, list.ID, ev.ID, list.Name, list.Capacity)
		if err != nil {
			return err
		}
		if result.RowsAffected() == 0 {
			return fmt.Errorf("list %s: %w", list.ID, ErrListNotFound)
		}
	}

	return tx.Commit(ctx)
}

// FindEventByID loads an event with its lists and field definitions.
func (r *PostgresRepository) FindEventByID(ctx context.Context, id uuid.UUID) (*domain.Event, error) {
	var ev domain.Event
	err := r.db.QueryRow(ctx, `
		SELECT id, name, cost_cents, deposit_cents, subscription_start, subscription_end, created_at, updated_at
		FROM events WHERE id = $1
	`, id).Scan(&ev.ID, &ev.Name, &ev.CostCents, &ev.DepositCents, &ev.SubscriptionStart, &ev.SubscriptionEnd, &ev.CreatedAt, &ev.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrEventNotFound
		}
		return nil, err
	}

	if ev.Lists, err = r.listsForEvent(ctx, id); err != nil {
		return nil, err
	}
	if ev.Fields, err = r.fieldsForEvent(ctx, id); err != nil {
		return nil, err
	}
	return &ev, nil
}

func (r *PostgresRepository) listsForEvent(ctx context.Context, eventID uuid.UUID) ([]domain.EventList, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, event_id, name, capacity FROM event_lists WHERE event_id = $1 ORDER BY name
	`, eventID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var lists []domain.EventList
	for rows.Next() {
		var list domain.EventList
		if err := rows.Scan(&list.ID, &list.EventID, &list.Name, &list.Capacity); err != nil {
			return nil, err
		}
		lists = append(lists, list)
	}
	return lists, rows.Err()
}

func (r *PostgresRepository) fieldsForEvent(ctx context.Context, eventID uuid.UUID) ([]domain.FieldDefinition, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, event_id, name, kind, field_type, options, required
		FROM event_fields WHERE event_id = $1 ORDER BY name
	`, eventID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var fields []domain.FieldDefinition
	for rows.Next() {
		var field domain.FieldDefinition
		var optionsRaw []byte
		if err := rows.Scan(&field.ID, &field.EventID, &field.Name, &field.Kind, &field.Type, &optionsRaw, &field.Required); err != nil {
			return nil, err
		}
		if len(optionsRaw) > 0 {
			if err := json.Unmarshal(optionsRaw, &field.Options); err != nil {
				return nil, fmt.Errorf("decode options for field %s: %w", field.ID, err)
			}
		}
		fields = append(fields, field)
	}
	return fields, rows.Err()
}

// ListEvents returns all events, newest first, each with lists and fields.
func (r *PostgresRepository) ListEvents(ctx context.Context) ([]domain.Event, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, name, cost_cents, deposit_cents, subscription_start, subscription_end, created_at, updated_at
		FROM events ORDER BY created_at DESC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []domain.Event
	for rows.Next() {
		var ev domain.Event
		if err := rows.Scan(&ev.ID, &ev.Name, &ev.CostCents, &ev.DepositCents, &ev.SubscriptionStart, &ev.SubscriptionEnd, &ev.CreatedAt, &ev.UpdatedAt); err != nil {
			return nil, err
		}
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range events {
		if events[i].Lists, err = r.listsForEvent(ctx, events[i].ID); err != nil {
			return nil, err
		}
		if events[i].Fields, err = r.fieldsForEvent(ctx, events[i].ID); err != nil {
			return nil, err
		}
	}
	return events, nil
}

// EventHasSubscriptions reports whether any subscription exists for the event.
// Drives the edit-lock on cost, deposit and capacities.
func (r *PostgresRepository) EventHasSubscriptions(ctx context.Context, eventID uuid.UUID) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM subscriptions WHERE event_id = $1)
	`, eventID).Scan(&exists)
	return exists, err
}

const profileColumns = `id, first_name, last_name, email, esncard_number`

// FindProfileByID retrieves one profile by id.
func (r *PostgresRepository) FindProfileByID(ctx context.Context, id uuid.UUID) (*domain.Profile, error) {
	var p domain.Profile
	err := r.db.QueryRow(ctx, `SELECT `+profileColumns+` FROM profiles WHERE id = $1`, id).
		Scan(&p.ID, &p.FirstName, &p.LastName, &p.Email, &p.ESNCardNumber)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrProfileNotFound
		}
		return nil, err
	}
	return &p, nil
}

// ListProfilesByIDs returns the profiles for the given ids, keyed by id. Missing
// ids are simply absent from the map; the caller decides whether that is fatal.
func (r *PostgresRepository) ListProfilesByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]domain.Profile, error) {
	if len(ids) == 0 {
		return map[uuid.UUID]domain.Profile{}, nil
	}
	rows, err := r.db.Query(ctx, `SELECT `+profileColumns+` FROM profiles WHERE id = ANY($1::uuid[])`, uuidStrings(ids))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	profiles := make(map[uuid.UUID]domain.Profile, len(ids))
	for rows.Next() {
		var p domain.Profile
		if err := rows.Scan(&p.ID, &p.FirstName, &p.LastName, &p.Email, &p.ESNCardNumber); err != nil {
			return nil, err
		}
		profiles[p.ID] = p
	}
	return profiles, rows.Err()
}
