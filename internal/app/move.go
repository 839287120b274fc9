/**
 * @description
 * Move-to-list: relocates a batch of subscriptions to another list of the same
 * event. Metadata-only — payment statuses, accounts and notes are untouched;
 * a single UPDATE changes list_id for the whole batch.
 */

package app

import (
	"context"
	"fmt"
	"log"

	"github.com/esnpolimi/subscription-service/internal/domain"
	"github.com/esnpolimi/subscription-service/pkg/rabbitmq"
)

// MoveSubscriptions moves the batch to the target list, honoring its capacity
// counting the incoming batch. Every subscription must belong to the target
// list's event and must not already sit on the target list.
func (s *Service) MoveSubscriptions(ctx context.Context, req domain.MoveSubscriptionsRequest) (int64, error) {
	if len(req.SubscriptionIDs) == 0 {
		return 0, newValidationError("subscriptionIds", "at least one subscription is required")
	}

	first, err := s.repo.FindSubscriptionByID(ctx, req.SubscriptionIDs[0])
	if err != nil {
		return 0, err
	}
	event, err := s.repo.FindEventByID(ctx, first.EventID)
	if err != nil {
		return 0, err
	}
	target := event.ListByID(req.TargetListID)
	if target == nil {
		return 0, ErrListNotInEvent
	}

	for _, id := range req.SubscriptionIDs {
		sub := first
		if id != first.ID {
			if sub, err = s.repo.FindSubscriptionByID(ctx, id); err != nil {
				return 0, err
			}
		}
		if sub.EventID != event.ID {
			return 0, newValidationError("subscriptionIds", fmt.Sprintf("subscription %s belongs to another event", id))
		}
		if sub.ListID == target.ID {
			return 0, ErrSameList
		}
	}

	if target.Capacity > 0 {
		occupancy, err := s.repo.CountSubscriptionsByList(ctx, target.ID)
		if err != nil {
			return 0, err
		}
		if occupancy+len(req.SubscriptionIDs) > target.Capacity {
			return 0, ErrListFull
		}
	}

	moved, err := s.repo.MoveSubscriptions(ctx, req.SubscriptionIDs, target.ID)
	if err != nil {
		return 0, fmt.Errorf("failed to move subscriptions: %w", err)
	}

	if err := s.producer.Publish(ctx, rabbitmq.Exchange, rabbitmq.KeyMoved, rabbitmq.MoveEvent{
		EventID:      event.ID,
		TargetListID: target.ID,
		Count:        int(moved),
		Timestamp:    s.now(),
	}); err != nil {
		log.Printf("level=warn component=app msg=\"event publish failed\" routing_key=%s event_id=%s err=%v", rabbitmq.KeyMoved, event.ID, err)
	}

	log.Printf("level=info component=app op=move_subscriptions event_id=%s target_list_id=%s count=%d", event.ID, target.ID, moved)
	return moved, nil
}
