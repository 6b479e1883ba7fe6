package memstore

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/dental-booking-engine/internal/catalog"
	"github.com/hackgods/dental-booking-engine/internal/scheduling"
)

type CatalogStore struct {
	s *Store
}

func (c *CatalogStore) GetRule(ctx context.Context, providerID uuid.UUID, day time.Weekday) (*scheduling.Rule, error) {
	c.s.mu.RLock()
	defer c.s.mu.RUnlock()

	rule, ok := c.s.rules[ruleKey{providerID, day}]
	if !ok {
		return nil, catalog.ErrRuleNotFound
	}
	return &rule, nil
}

func (c *CatalogStore) ListRules(ctx context.Context, providerID uuid.UUID) ([]scheduling.Rule, error) {
	c.s.mu.RLock()
	defer c.s.mu.RUnlock()

	rules := []scheduling.Rule{}
	for k, r := range c.s.rules {
		if k.providerID == providerID {
			rules = append(rules, r)
		}
	}
	sort.Slice(rules, func(i, j int) bool { return rules[i].DayOfWeek < rules[j].DayOfWeek })
	return rules, nil
}

func (c *CatalogStore) UpsertRule(ctx context.Context, rule scheduling.Rule) error {
	if err := rule.Validate(); err != nil {
		return err
	}
	c.s.mu.Lock()
	defer c.s.mu.Unlock()

	c.s.rules[ruleKey{rule.ProviderID, rule.DayOfWeek}] = rule
	return nil
}

func (c *CatalogStore) GetService(ctx context.Context, id uuid.UUID) (*catalog.Service, error) {
	c.s.mu.RLock()
	defer c.s.mu.RUnlock()

	svc, ok := c.s.services[id]
	if !ok {
		return nil, catalog.ErrServiceNotFound
	}
	return &svc, nil
}

func (c *CatalogStore) UpsertService(ctx context.Context, svc catalog.Service) error {
	c.s.mu.Lock()
	defer c.s.mu.Unlock()

	c.s.services[svc.ID] = svc
	return nil
}
