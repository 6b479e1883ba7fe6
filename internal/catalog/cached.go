package catalog

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hackgods/dental-booking-engine/internal/scheduling"
)

// Cache is the injectable cache behind Cached. The Redis implementation
// lives in internal/redis.
type Cache interface {
	Get(ctx context.Context, key string, dst any) (bool, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
}

// Cached is a read-through Store. Writes go to the backing store first and
// then delete the affected keys before returning, so the writer never reads
// its own stale entry. Other processes may see the old value for up to ttl.
type Cached struct {
	store  Store
	cache  Cache
	ttl    time.Duration
	logger *zap.Logger
}

func NewCached(store Store, cache Cache, ttl time.Duration, logger *zap.Logger) *Cached {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Cached{store: store, cache: cache, ttl: ttl, logger: logger}
}

// cachedRule marks "no rule" explicitly so misses are cached too.
type cachedRule struct {
	Found bool             `json:"found"`
	Rule  *scheduling.Rule `json:"rule,omitempty"`
}

func ruleKey(providerID uuid.UUID, day time.Weekday) string {
	return fmt.Sprintf("rule:%s:%d", providerID, day)
}

func rulesKey(providerID uuid.UUID) string {
	return "rules:" + providerID.String()
}

func serviceKey(id uuid.UUID) string {
	return "service:" + id.String()
}

func (c *Cached) GetRule(ctx context.Context, providerID uuid.UUID, day time.Weekday) (*scheduling.Rule, error) {
	key := ruleKey(providerID, day)

	var hit cachedRule
	if ok := c.read(ctx, key, &hit); ok {
		if !hit.Found {
			return nil, ErrRuleNotFound
		}
		return hit.Rule, nil
	}

	rule, err := c.store.GetRule(ctx, providerID, day)
	switch {
	case err == nil:
		c.write(ctx, key, cachedRule{Found: true, Rule: rule})
	case errors.Is(err, ErrRuleNotFound):
		c.write(ctx, key, cachedRule{Found: false})
	}
	return rule, err
}

func (c *Cached) ListRules(ctx context.Context, providerID uuid.UUID) ([]scheduling.Rule, error) {
	key := rulesKey(providerID)

	var rules []scheduling.Rule
	if ok := c.read(ctx, key, &rules); ok {
		return rules, nil
	}

	rules, err := c.store.ListRules(ctx, providerID)
	if err != nil {
		return nil, err
	}
	c.write(ctx, key, rules)
	return rules, nil
}

func (c *Cached) UpsertRule(ctx context.Context, rule scheduling.Rule) error {
	if err := c.store.UpsertRule(ctx, rule); err != nil {
		return err
	}
	return c.invalidate(ctx, ruleKey(rule.ProviderID, rule.DayOfWeek), rulesKey(rule.ProviderID))
}

func (c *Cached) GetService(ctx context.Context, id uuid.UUID) (*Service, error) {
	key := serviceKey(id)

	var svc Service
	if ok := c.read(ctx, key, &svc); ok {
		return &svc, nil
	}

	got, err := c.store.GetService(ctx, id)
	if err != nil {
		return nil, err
	}
	c.write(ctx, key, got)
	return got, nil
}

func (c *Cached) UpsertService(ctx context.Context, svc Service) error {
	if err := c.store.UpsertService(ctx, svc); err != nil {
		return err
	}
	return c.invalidate(ctx, serviceKey(svc.ID))
}

// read treats cache faults as misses; the store stays authoritative.
func (c *Cached) read(ctx context.Context, key string, dst any) bool {
	ok, err := c.cache.Get(ctx, key, dst)
	if err != nil {
		c.logger.Warn("catalog cache read failed", zap.String("key", key), zap.Error(err))
		return false
	}
	return ok
}

func (c *Cached) write(ctx context.Context, key string, value any) {
	if err := c.cache.Set(ctx, key, value, c.ttl); err != nil {
		c.logger.Warn("catalog cache write failed", zap.String("key", key), zap.Error(err))
	}
}

// invalidate must succeed for the write to be reported as done; otherwise
// a stale entry could outlive the write by a full TTL.
func (c *Cached) invalidate(ctx context.Context, keys ...string) error {
	if err := c.cache.Delete(ctx, keys...); err != nil {
		return fmt.Errorf("invalidate catalog cache: %w", err)
	}
	return nil
}
