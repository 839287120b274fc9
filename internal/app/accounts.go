/**
 * @description
 * Accounts proxy: the frontend picks payment accounts from the ledger service's
 * account list. The list is cached in Redis with a short TTL, invalidated by
 * `account.status.*` broker events and refreshed by the cron job; when Redis is
 * not configured the cache degrades to calling the ledger directly.
 */

package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/esnpolimi/subscription-service/internal/domain"
)

const accountsCacheKey = "subscription-service:ledger-accounts"

// AccountsCache serves the ledger account list with an optional Redis cache.
type AccountsCache struct {
	ledger LedgerClient
	redis  *redis.Client
	ttl    time.Duration
}

// NewAccountsCache creates an accounts cache. redisClient may be nil, in which
// case every call goes straight to the ledger service.
func NewAccountsCache(ledger LedgerClient, redisClient *redis.Client, ttl time.Duration) *AccountsCache {
	return &AccountsCache{ledger: ledger, redis: redisClient, ttl: ttl}
}

// Accounts returns every ledger account. Closed accounts carry disabled=true so
// the frontend keeps showing them (historical references) but grays them out
// for new payments.
func (c *AccountsCache) Accounts(ctx context.Context) ([]domain.Account, error) {
	if c.redis != nil {
		cached, err := c.redis.Get(ctx, accountsCacheKey).Bytes()
		if err == nil {
			var accounts []domain.Account
			if err := json.Unmarshal(cached, &accounts); err == nil {
				return accounts, nil
			}
			log.Printf("level=warn component=accounts_cache msg=\"corrupt cache entry; refreshing\"")
		} else if !errors.Is(err, redis.Nil) {
			log.Printf("level=warn component=accounts_cache msg=\"redis get failed; falling back to ledger\" err=%v", err)
		}
	}
	return c.Refresh(ctx)
}

// Refresh fetches the list from the ledger service and rewrites the cache.
func (c *AccountsCache) Refresh(ctx context.Context) ([]domain.Account, error) {
	raw, err := c.ledger.ListAccounts(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list ledger accounts: %w", err)
	}

	accounts := make([]domain.Account, 0, len(raw))
	for _, a := range raw {
		id, err := uuid.Parse(a.ID)
		if err != nil {
			log.Printf("level=warn component=accounts_cache msg=\"skipping account with invalid id\" account_id=%s", a.ID)
			continue
		}
		status := domain.AccountStatus(a.Status)
		accounts = append(accounts, domain.Account{
			ID:       id,
			Name:     a.Name,
			Status:   status,
			Disabled: status != domain.AccountOpen,
		})
	}

	if c.redis != nil {
		if body, err := json.Marshal(accounts); err == nil {
			if err := c.redis.Set(ctx, accountsCacheKey, body, c.ttl).Err(); err != nil {
				log.Printf("level=warn component=accounts_cache msg=\"redis set failed\" err=%v", err)
			}
		}
	}
	return accounts, nil
}

// Invalidate drops the cached list. Called when an account.status.* event
// arrives from the ledger service.
func (c *AccountsCache) Invalidate(ctx context.Context) {
	if c.redis == nil {
		return
	}
	if err := c.redis.Del(ctx, accountsCacheKey).Err(); err != nil {
		log.Printf("level=warn component=accounts_cache msg=\"redis del failed\" err=%v", err)
	}
}

// Accounts exposes the cached ledger account list on the service.
func (s *Service) Accounts(ctx context.Context) ([]domain.Account, error) {
	return s.accounts.Accounts(ctx)
}

// InvalidateAccounts drops the accounts cache; the next read refetches.
func (s *Service) InvalidateAccounts(ctx context.Context) {
	s.accounts.Invalidate(ctx)
}
