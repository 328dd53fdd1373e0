// Package managers contains Redis-backed state managers.
package managers

import (
	"context"
	"fmt"
	"time"

	"norelock.dev/nowplaying/bot/internal/db/redis"
	"norelock.dev/nowplaying/bot/internal/models"
)

// RecentsKeyPrefix is the prefix for cached recently-played listings.
const RecentsKeyPrefix = "provider:recents"

// DefaultRecentsTTL keeps provider listings fresh enough for inline-query
// bursts while a user types.
const DefaultRecentsTTL = 30 * time.Second

// RecentsManager caches per-user recently-played listings so that rapid
// repeated inline queries do not re-hit the provider API.
type RecentsManager struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRecentsManager creates a new recents manager.
func NewRecentsManager(client *redis.Client, ttl time.Duration) *RecentsManager {
	if ttl <= 0 {
		ttl = DefaultRecentsTTL
	}
	return &RecentsManager{
		client: client,
		ttl:    ttl,
	}
}

func recentsKey(chatUserID int64, provider string) string {
	return fmt.Sprintf("%s:%s:%d", RecentsKeyPrefix, provider, chatUserID)
}

// Get returns the cached listing for a user and provider, or ok=false on a
// miss.
func (m *RecentsManager) Get(ctx context.Context, chatUserID int64, provider string) ([]models.Track, bool) {
	var tracks []models.Track
	if err := m.client.GetObject(ctx, recentsKey(chatUserID, provider), &tracks); err != nil {
		// Absent key and cache error both degrade to a miss; the provider
		// is the source of truth.
		return nil, false
	}
	return tracks, true
}

// Set stores a provider listing with the manager's TTL.
func (m *RecentsManager) Set(ctx context.Context, chatUserID int64, provider string, tracks []models.Track) error {
	return m.client.SetObject(ctx, recentsKey(chatUserID, provider), tracks, m.ttl)
}

// Invalidate drops the cached listing, e.g. after the user relinks.
func (m *RecentsManager) Invalidate(ctx context.Context, chatUserID int64, provider string) error {
	return m.client.Del(ctx, recentsKey(chatUserID, provider))
}
