/**
 * @description
 * Liberatoria flows: listing the printable-waiver candidates of an event (quota
 * paid) and assembling the PDF batch for an explicit selection of subscriptions.
 */

package app

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/esnpolimi/subscription-service/internal/domain"
	"github.com/esnpolimi/subscription-service/pkg/liberatoria"
)

// ListPrintableLiberatorie returns the waiver candidates of an event: every
// quota-paid subscription, joined with its profile, optionally limited to one list.
func (s *Service) ListPrintableLiberatorie(ctx context.Context, eventID uuid.UUID, listID *uuid.UUID) ([]domain.LiberatoriaRow, error) {
	if _, err := s.repo.FindEventByID(ctx, eventID); err != nil {
		return nil, err
	}
	subs, err := s.repo.ListQuotaPaid(ctx, eventID, listID)
	if err != nil {
		return nil, err
	}
	profiles, err := s.profilesFor(ctx, subs)
	if err != nil {
		return nil, err
	}

	rows := make([]domain.LiberatoriaRow, 0, len(subs))
	for _, sub := range subs {
		profile, ok := profiles[sub.ProfileID]
		if !ok {
			return nil, fmt.Errorf("profile %s referenced by subscription %s is missing", sub.ProfileID, sub.ID)
		}
		rows = append(rows, domain.LiberatoriaRow{Subscription: sub, Profile: profile})
	}
	return rows, nil
}

// BuildLiberatorieBatch assembles the PDF batch for an explicit selection of
// subscriptions. Each must belong to the event and have a paid quota.
func (s *Service) BuildLiberatorieBatch(ctx context.Context, req domain.GenerateLiberatoriePDFRequest) (*liberatoria.Batch, error) {
	event, err := s.repo.FindEventByID(ctx, req.EventID)
	if err != nil {
		return nil, err
	}
	if len(req.SubscriptionIDs) == 0 {
		return nil, newValidationError("subscription_ids", "at least one subscription is required")
	}

	subs := make([]domain.Subscription, 0, len(req.SubscriptionIDs))
	for _, id := range req.SubscriptionIDs {
		sub, err := s.repo.FindSubscriptionByID(ctx, id)
		if err != nil {
			return nil, err
		}
		if sub.EventID != event.ID {
			return nil, newValidationError("subscription_ids", fmt.Sprintf("subscription %s belongs to another event", id))
		}
		if sub.StatusQuota != domain.StatusPaid {
			return nil, ErrNotQuotaPaid
		}
		subs = append(subs, *sub)
	}

	profiles, err := s.profilesFor(ctx, subs)
	if err != nil {
		return nil, err
	}

	batch := &liberatoria.Batch{
		EventName:   event.Name,
		GeneratedAt: s.now(),
	}
	for _, sub := range subs {
		profile, ok := profiles[sub.ProfileID]
		if !ok {
			return nil, fmt.Errorf("profile %s referenced by subscription %s is missing", sub.ProfileID, sub.ID)
		}
		participant := liberatoria.Participant{
			FirstName: profile.FirstName,
			LastName:  profile.LastName,
			Email:     profile.Email,
		}
		if profile.ESNCardNumber != nil {
			participant.ESNCardNumber = *profile.ESNCardNumber
		}
		batch.Participants = append(batch.Participants, participant)
	}
	return batch, nil
}

func (s *Service) profilesFor(ctx context.Context, subs []domain.Subscription) (map[uuid.UUID]domain.Profile, error) {
	ids := make([]uuid.UUID, 0, len(subs))
	seen := map[uuid.UUID]bool{}
	for _, sub := range subs {
		if !seen[sub.ProfileID] {
			seen[sub.ProfileID] = true
			ids = append(ids, sub.ProfileID)
		}
	}
	return s.repo.ListProfilesByIDs(ctx, ids)
}
