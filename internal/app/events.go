/**
 * @description
 * Events registry operations: creating and editing events with their lists and
 * typed field definitions. Cost, deposit and list capacities are edit-locked
 * once the event has any subscription, to preserve historical pricing integrity.
 */

package app

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/google/uuid"

	"github.com/esnpolimi/subscription-service/internal/domain"
)

// GetEvent returns one event with its lists and field definitions.
func (s *Service) GetEvent(ctx context.Context, id uuid.UUID) (*domain.Event, error) {
	return s.repo.FindEventByID(ctx, id)
}

// ListEvents returns all events, newest first.
func (s *Service) ListEvents(ctx context.Context) ([]domain.Event, error) {
	return s.repo.ListEvents(ctx)
}

// CreateEvent creates an event with its lists and field definitions.
func (s *Service) CreateEvent(ctx context.Context, req domain.CreateEventRequest) (*domain.Event, error) {
	fields := map[string]string{}
	if strings.TrimSpace(req.Name) == "" {
		fields["name"] = "field is required"
	}
	if req.CostCents < 0 {
		fields["cost_cents"] = "must not be negative"
	}
	if req.DepositCents < 0 {
		fields["deposit_cents"] = "must not be negative"
	}
	if req.SubscriptionStart.Before(s.now()) {
		fields["subscription_start_date"] = "must not be in the past"
	}
	if req.SubscriptionEnd.Before(req.SubscriptionStart) {
		fields["subscription_end_date"] = "must not precede the start"
	}
	if len(req.Lists) == 0 {
		fields["lists"] = "at least one list is required"
	}
	for i, list := range req.Lists {
		if strings.TrimSpace(list.Name) == "" {
			fields[fmt.Sprintf("lists[%d].name", i)] = "field is required"
		}
		if list.Capacity < 0 {
			fields[fmt.Sprintf("lists[%d].capacity", i)] = "must not be negative"
		}
	}
	for i, field := range req.Fields {
		validateFieldDefinition(fields, i, field)
	}
	if len(fields) > 0 {
		return nil, &ValidationError{Fields: fields}
	}

	event := &domain.Event{
		ID:                uuid.New(),
		Name:              req.Name,
		CostCents:         req.CostCents,
		DepositCents:      req.DepositCents,
		SubscriptionStart: req.SubscriptionStart,
		SubscriptionEnd:   req.SubscriptionEnd,
	}
	for _, list := range req.Lists {
		event.Lists = append(event.Lists, domain.EventList{
			ID:       uuid.New(),
			EventID:  event.ID,
			Name:     list.Name,
			Capacity: list.Capacity,
		})
	}
	for _, field := range req.Fields {
		event.Fields = append(event.Fields, domain.FieldDefinition{
			ID:       uuid.New(),
			EventID:  event.ID,
			Name:     field.Name,
			Kind:     field.Kind,
			Type:     field.Type,
			Options:  field.Options,
			Required: field.Required,
		})
	}

	if err := s.repo.CreateEvent(ctx, event); err != nil {
		return nil, fmt.Errorf("failed to create event: %w", err)
	}
	log.Printf("level=info component=app op=create_event event_id=%s lists=%d fields=%d", event.ID, len(event.Lists), len(event.Fields))
	return event, nil
}

func validateFieldDefinition(fields map[string]string, i int, field domain.CreateFieldDefinition) {
	prefix := fmt.Sprintf("fields[%d]", i)
	if strings.TrimSpace(field.Name) == "" {
		fields[prefix+".name"] = "field is required"
	}
	if field.Kind != domain.FieldKindForm && field.Kind != domain.FieldKindAdditional {
		fields[prefix+".kind"] = fmt.Sprintf("unknown kind %q", field.Kind)
	}
	if !field.Type.Valid() {
		fields[prefix+".type"] = fmt.Sprintf("unknown type %q", field.Type)
		return
	}
	choice := field.Type == domain.FieldSingleChoice || field.Type == domain.FieldMultiChoice
	if choice && len(field.Options) == 0 {
		fields[prefix+".options"] = "choice fields need at least one option"
	}
	if !choice && len(field.Options) > 0 {
		fields[prefix+".options"] = "options are only valid on choice fields"
	}
}

// UpdateEvent edits an event. Cost, deposit and list capacities are rejected
// once any subscription exists; the window may be adjusted as long as it stays
// ordered.
func (s *Service) UpdateEvent(ctx context.Context, id uuid.UUID, req domain.UpdateEventRequest) (*domain.Event, error) {
	event, err := s.repo.FindEventByID(ctx, id)
	if err != nil {
		return nil, err
	}
	hasSubs, err := s.repo.EventHasSubscriptions(ctx, id)
	if err != nil {
		return nil, err
	}

	if hasSubs && (req.CostCents != nil || req.DepositCents != nil || len(req.ListCapacities) > 0) {
		return nil, ErrEventLocked
	}

	if req.Name != nil {
		if strings.TrimSpace(*req.Name) == "" {
			return nil, newValidationError("name", "field is required")
		}
		event.Name = *req.Name
	}
	if req.CostCents != nil {
		if *req.CostCents < 0 {
			return nil, newValidationError("cost_cents", "must not be negative")
		}
		event.CostCents = *req.CostCents
	}
	if req.DepositCents != nil {
		if *req.DepositCents < 0 {
			return nil, newValidationError("deposit_cents", "must not be negative")
		}
		event.DepositCents = *req.DepositCents
	}
	if req.SubscriptionStart != nil {
		event.SubscriptionStart = *req.SubscriptionStart
	}
	if req.SubscriptionEnd != nil {
		event.SubscriptionEnd = *req.SubscriptionEnd
	}
	if event.SubscriptionEnd.Before(event.SubscriptionStart) {
		return nil, ErrWindowOrder
	}

	for listID, capacity := range req.ListCapacities {
		list := event.ListByID(listID)
		if list == nil {
			return nil, ErrListNotInEvent
		}
		if capacity < 0 {
			return nil, newValidationError("list_capacities", "must not be negative")
		}
		if capacity > 0 {
			occupancy, err := s.repo.CountSubscriptionsByList(ctx, listID)
			if err != nil {
				return nil, err
			}
			if capacity < occupancy {
				return nil, newValidationError("list_capacities", fmt.Sprintf("capacity %d is below the current occupancy %d", capacity, occupancy))
			}
		}
		list.Capacity = capacity
	}

	if err := s.repo.UpdateEvent(ctx, event); err != nil {
		return nil, fmt.Errorf("failed to update event: %w", err)
	}
	log.Printf("level=info component=app op=update_event event_id=%s", event.ID)
	return event, nil
}
