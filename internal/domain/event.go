/**
 * @description
 * Event, list and field-definition models. An event carries its participation
 * fee (quota), an optional refundable deposit, a subscription window, one or
 * more capacity-bounded lists, and a set of typed field definitions that shape
 * the answers collected with each subscription.
 */

package domain

import (
	"time"

	"github.com/google/uuid"
)

// FieldKind separates sign-up form fields from office-only additional fields.
type FieldKind string

const (
	FieldKindForm       FieldKind = "form"
	FieldKindAdditional FieldKind = "additional"
)

// EventList is a capacity-bounded grouping of subscriptions within one event
// (e.g. waves or turns). Capacity 0 means unlimited.
type EventList struct {
	ID       uuid.UUID `json:"id"`
	EventID  uuid.UUID `json:"event_id"`
	Name     string    `json:"name"`
	Capacity int       `json:"capacity"`
}

// Event maps to the `events` table plus its lists and field definitions.
//
// Invariants enforced by the service:
//   - at creation: subscription_end >= subscription_start >= now
//   - cost, deposit and list capacities are edit-locked once the event has any
//     subscription, to preserve historical pricing integrity.
type Event struct {
	ID                uuid.UUID         `json:"id"`
	Name              string            `json:"name"`
	CostCents         int64             `json:"cost_cents"`
	DepositCents      int64             `json:"deposit_cents"`
	SubscriptionStart time.Time         `json:"subscription_start_date"`
	SubscriptionEnd   time.Time         `json:"subscription_end_date"`
	Lists             []EventList       `json:"lists"`
	Fields            []FieldDefinition `json:"fields"`
	CreatedAt         time.Time         `json:"created_at"`
	UpdatedAt         time.Time         `json:"updated_at"`
}

// HasDeposit reports whether the event charges a deposit at all. When false the
// deposit status of its subscriptions is not applicable and transitions on it
// are rejected.
func (e *Event) HasDeposit() bool { return e.DepositCents > 0 }

// ListByID returns the event's list with the given id, or nil.
func (e *Event) ListByID(id uuid.UUID) *EventList {
	for i := range e.Lists {
		if e.Lists[i].ID == id {
			return &e.Lists[i]
		}
	}
	return nil
}

// FieldByID returns the event's field definition with the given id, or nil.
func (e *Event) FieldByID(id uuid.UUID) *FieldDefinition {
	for i := range e.Fields {
		if e.Fields[i].ID == id {
			return &e.Fields[i]
		}
	}
	return nil
}

// SubscriptionWindowOpen reports whether new subscriptions are accepted at t.
func (e *Event) SubscriptionWindowOpen(t time.Time) bool {
	return !t.Before(e.SubscriptionStart) && !t.After(e.SubscriptionEnd)
}

// CreateEventRequest is the DTO for creating an event with its lists and fields.
type CreateEventRequest struct {
	Name              string                   `json:"name"`
	CostCents         int64                    `json:"cost_cents"`
	DepositCents      int64                    `json:"deposit_cents"`
	SubscriptionStart time.Time                `json:"subscription_start_date"`
	SubscriptionEnd   time.Time                `json:"subscription_end_date"`
	Lists             []CreateEventListItem    `json:"lists"`
	Fields            []CreateFieldDefinition  `json:"fields,omitempty"`
}

// CreateEventListItem declares one list of a new event.
type CreateEventListItem struct {
	Name     string `json:"name"`
	Capacity int    `json:"capacity"`
}

// CreateFieldDefinition declares one typed field of a new event.
type CreateFieldDefinition struct {
	Name     string    `json:"name"`
	Kind     FieldKind `json:"kind"`
	Type     FieldType `json:"type"`
	Options  []string  `json:"options,omitempty"`
	Required bool      `json:"required"`
}

// UpdateEventRequest edits an event. Cost, deposit and capacities are rejected
// once the event has subscriptions; the window may only be extended forward.
type UpdateEventRequest struct {
	Name              *string    `json:"name,omitempty"`
	CostCents         *int64     `json:"cost_cents,omitempty"`
	DepositCents      *int64     `json:"deposit_cents,omitempty"`
	SubscriptionStart *time.Time `json:"subscription_start_date,omitempty"`
	SubscriptionEnd   *time.Time `json:"subscription_end_date,omitempty"`
	ListCapacities    map[uuid.UUID]int `json:"list_capacities,omitempty"`
}
