// pkg/cache/redis.go
package cache

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/kepler-ops/contributor-redact/pkg/model"
)

// scanBatch bounds each SCAN iteration
const scanBatch = 500

// Cleaner removes a contributor's session and identity-cache keys so
// revocation takes effect without waiting for TTL expiry
type Cleaner struct {
	client *redis.Client
	logger *zap.Logger
}

// NewCleaner creates a session cache cleaner
func NewCleaner(client *redis.Client) *Cleaner {
	return &Cleaner{
		client: client,
		logger: zap.L().Named("cache"),
	}
}

// sessionKeyPatterns lists every key family holding per-contributor
// session or identity-cache state
func sessionKeyPatterns(contributorID string) []string {
	return []string{
		fmt.Sprintf("AC_ID_CONTRIBUTOR_ID_CACHE:%s:*", contributorID),
		fmt.Sprintf("MERCURY_ID_CONTRIBUTOR_ID_CACHE:%s:*", contributorID),
		fmt.Sprintf("contributor:session:%s:*", contributorID),
		fmt.Sprintf("contributor:auth:%s:*", contributorID),
		fmt.Sprintf("job:cache:*:%s:*", contributorID),
	}
}

// Clear deletes every matching key across the configured patterns. One
// unreachable pattern degrades the phase rather than failing the run.
func (c *Cleaner) Clear(ctx context.Context, contributor model.Contributor) model.PhaseOutcome {
	outcome := model.NewPhaseOutcome(model.PhaseCache)

	total := 0
	for _, pattern := range sessionKeyPatterns(contributor.ID) {
		deleted, err := c.clearPattern(ctx, pattern)
		if err != nil {
			outcome.AddError(pattern, err)
			continue
		}
		total += deleted
	}

	c.logger.Info("Session cache cleared",
		zap.String("contributor_id", contributor.ID),
		zap.Int("keys_deleted", total))

	return outcome.WithCounts(total, total)
}

// Preview counts matching keys without deleting
func (c *Cleaner) Preview(ctx context.Context, contributor model.Contributor) model.PhaseOutcome {
	outcome := model.NewPhaseOutcome(model.PhaseCache)

	total := 0
	for _, pattern := range sessionKeyPatterns(contributor.ID) {
		keys, err := c.scanPattern(ctx, pattern)
		if err != nil {
			outcome.AddError(pattern, err)
			continue
		}
		if len(keys) > 0 {
			outcome.AddNote("would delete %d key(s) matching %s", len(keys), pattern)
		}
		total += len(keys)
	}

	return outcome.WithCounts(total, 0)
}

func (c *Cleaner) clearPattern(ctx context.Context, pattern string) (int, error) {
	keys, err := c.scanPattern(ctx, pattern)
	if err != nil {
		return 0, err
	}
	if len(keys) == 0 {
		return 0, nil
	}

	deleted, err := c.client.Del(ctx, keys...).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to delete keys for %s: %w", pattern, err)
	}
	return int(deleted), nil
}

func (c *Cleaner) scanPattern(ctx context.Context, pattern string) ([]string, error) {
	var keys []string
	var cursor uint64

	for {
		batch, next, err := c.client.Scan(ctx, cursor, pattern, scanBatch).Result()
		if err != nil {
			return nil, fmt.Errorf("scan for %s failed: %w", pattern, err)
		}
		keys = append(keys, batch...)

		cursor = next
		if cursor == 0 {
			return keys, nil
		}
	}
}
