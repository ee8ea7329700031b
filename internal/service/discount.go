package service

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"console-rental-backend/internal/domain"
	"console-rental-backend/internal/logger"
	"console-rental-backend/internal/store"
	"console-rental-backend/internal/utils"
)

type discountService struct {
	store *store.Store
	clock Clock
	log   *slog.Logger
}

func NewDiscountService(st *store.Store, clock Clock) DiscountService {
	return &discountService{
		store: st,
		clock: clock,
		log:   logger.WithService("discount"),
	}
}

func (s *discountService) RuleFor(ctx context.Context, date string) (domain.PriceRule, error) {
	if _, err := utils.ParseDate(date); err != nil {
		return domain.PriceRule{}, err
	}
	rules, err := store.Load[domain.DiscountRule](ctx, s.store, store.Discounts)
	if err != nil {
		return domain.PriceRule{}, err
	}
	return priceRule(rules, date), nil
}

func (s *discountService) Today(ctx context.Context) (domain.PriceRule, error) {
	return s.RuleFor(ctx, today(s.clock))
}

func (s *discountService) ListRules(ctx context.Context) ([]domain.DiscountRule, error) {
	rules, err := store.Load[domain.DiscountRule](ctx, s.store, store.Discounts)
	if err != nil {
		return nil, err
	}
	out := make([]domain.DiscountRule, 0, len(rules))
	for _, r := range rules {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date < out[j].Date })
	return out, nil
}

// SetRule creates or replaces the rule for rule.Date.
func (s *discountService) SetRule(ctx context.Context, rule *domain.DiscountRule) (*domain.DiscountRule, error) {
	saved := *rule
	if saved.Kind == domain.RuleKindBlackout {
		saved.Value = 0
	}
	saved.UpdatedAt = s.clock.Now()
	if err := saved.Validate(); err != nil {
		return nil, err
	}

	err := s.store.Update(ctx, func(tx *store.Tx) error {
		return store.Put(tx, store.Discounts, saved.Date, saved)
	}, store.Discounts)
	if err != nil {
		return nil, err
	}
	s.log.InfoContext(ctx, "Discount rule set", "date", saved.Date, "type", saved.Kind, "value", saved.Value)
	return &saved, nil
}

// DeleteRule is idempotent.
func (s *discountService) DeleteRule(ctx context.Context, date string) error {
	if _, err := utils.ParseDate(date); err != nil {
		return err
	}
	return s.store.Update(ctx, func(tx *store.Tx) error {
		return store.Remove[domain.DiscountRule](tx, store.Discounts, date)
	}, store.Discounts)
}

func priceRule(rules map[string]domain.DiscountRule, date string) domain.PriceRule {
	rule, ok := rules[date]
	if !ok {
		return domain.PriceRule{Kind: domain.RuleKindNone}
	}
	return rule.PriceRule()
}

// ruleForDay resolves pricing inside a transaction holding the discounts lock.
func ruleForDay(tx *store.Tx, date string) (domain.PriceRule, error) {
	rule, ok, err := store.Get[domain.DiscountRule](tx, store.Discounts, date)
	if err != nil {
		return domain.PriceRule{}, err
	}
	if !ok {
		return domain.PriceRule{Kind: domain.RuleKindNone}, nil
	}
	return rule.PriceRule(), nil
}

func blackoutError(date string, rule domain.PriceRule) error {
	if rule.Description != "" {
		return fmt.Errorf("rentals closed on %s (%s): %w", date, rule.Description, domain.ErrConflict)
	}
	return fmt.Errorf("rentals closed on %s: %w", date, domain.ErrConflict)
}
