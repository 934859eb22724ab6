package fieldsvc

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/fieldstock-backend/pkg/logger"
)

const defaultTrustTTL = time.Hour

// TrustSource resolves dealer trust scores.
type TrustSource interface {
	DealerTrust(ctx context.Context, dealerIDs []uuid.UUID) (map[uuid.UUID]int, error)
}

// trustStore is the subset of the redis client the cache needs.
type trustStore interface {
	GetMany(ctx context.Context, keys []string) (map[string]string, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	DealerTrustKey(dealerID string) string
}

// TrustCache serves dealer trust from redis and falls through to the source for misses.
// Cache read or write failures degrade to the source and are only logged.
type TrustCache struct {
	source TrustSource
	store  trustStore
	ttl    time.Duration
	logg   *logger.Logger
}

// NewTrustCache decorates source with a redis-backed cache.
func NewTrustCache(source TrustSource, store trustStore, ttl time.Duration, logg *logger.Logger) (*TrustCache, error) {
	if source == nil {
		return nil, errors.New("trust source is required")
	}
	if store == nil {
		return nil, errors.New("trust store is required")
	}
	if ttl <= 0 {
		ttl = defaultTrustTTL
	}
	return &TrustCache{source: source, store: store, ttl: ttl, logg: logg}, nil
}

// DealerTrust returns cached scores where available and fetches the rest in one call.
func (c *TrustCache) DealerTrust(ctx context.Context, dealerIDs []uuid.UUID) (map[uuid.UUID]int, error) {
	scores := make(map[uuid.UUID]int, len(dealerIDs))
	keys := make([]string, len(dealerIDs))
	for i, id := range dealerIDs {
		keys[i] = c.store.DealerTrustKey(id.String())
	}
	cached, err := c.store.GetMany(ctx, keys)
	if err != nil {
		c.warn(ctx, "dealer trust cache read failed", err)
		cached = nil
	}

	misses := make([]uuid.UUID, 0, len(dealerIDs))
	for i, id := range dealerIDs {
		score, err := strconv.Atoi(cached[keys[i]])
		if err != nil || !validTrust(score) {
			misses = append(misses, id)
			continue
		}
		scores[id] = score
	}
	if len(misses) == 0 {
		return scores, nil
	}

	fetched, err := c.source.DealerTrust(ctx, misses)
	if err != nil {
		return nil, err
	}
	for id, score := range fetched {
		if !validTrust(score) {
			c.warn(ctx, "dealer trust out of range", fmt.Errorf("dealer %s: trust score %d outside 0..100", id, score))
			continue
		}
		scores[id] = score
		if err := c.store.Set(ctx, c.store.DealerTrustKey(id.String()), score, c.ttl); err != nil {
			c.warn(ctx, "dealer trust cache write failed", err)
		}
	}
	return scores, nil
}

func validTrust(score int) bool {
	return score >= 0 && score <= 100
}

func (c *TrustCache) warn(ctx context.Context, msg string, err error) {
	if c.logg == nil {
		return
	}
	c.logg.Warn(c.logg.WithError(ctx, err), msg)
}
