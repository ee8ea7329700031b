package domain

import (
	"fmt"
	"time"
)

// DateLayout is the calendar-day key used by discount rules and activity counters.
const DateLayout = "2006-01-02"

type RuleKind string

const (
	RuleKindNone     RuleKind = "none"
	RuleKindDiscount RuleKind = "discount"
	RuleKindBlackout RuleKind = "blackout"
)

// DiscountRule overrides normal pricing for one calendar day.
type DiscountRule struct {
	Date        string    `json:"date"`
	Kind        RuleKind  `json:"type"`
	Value       int       `json:"value"`
	Description string    `json:"description"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func (r DiscountRule) Validate() error {
	if _, err := time.Parse(DateLayout, r.Date); err != nil {
		return fmt.Errorf("discount rule: bad date %q: %w", r.Date, ErrValidation)
	}
	switch r.Kind {
	case RuleKindDiscount:
		if r.Value < 0 || r.Value > 100 {
			return fmt.Errorf("discount rule %s: percent %d out of range: %w", r.Date, r.Value, ErrValidation)
		}
	case RuleKindBlackout:
	default:
		return fmt.Errorf("discount rule %s: unknown type %q: %w", r.Date, r.Kind, ErrValidation)
	}
	return nil
}

// PriceRule is the resolved pricing for a day. The zero value is normal pricing.
type PriceRule struct {
	Kind        RuleKind `json:"type"`
	Percent     int      `json:"value,omitempty"`
	Description string   `json:"description,omitempty"`
}

func (r DiscountRule) PriceRule() PriceRule {
	pr := PriceRule{Kind: r.Kind, Description: r.Description}
	if r.Kind == RuleKindDiscount {
		pr.Percent = r.Value
	}
	return pr
}

func (p PriceRule) IsBlackout() bool {
	return p.Kind == RuleKindBlackout
}

// DiscountPercent is the percent to snapshot onto a rental.
func (p PriceRule) DiscountPercent() int {
	if p.Kind == RuleKindDiscount {
		return p.Percent
	}
	return 0
}
