package utils

import (
	"fmt"
	"time"

	"console-rental-backend/internal/domain"

	"github.com/shopspring/decimal"
)

// hundredthHour is the billing granularity: elapsed time is floored to 0.01 h.
const hundredthHour = 36 * time.Second

// minimumBilledHundredths is the one hour minimum charge.
const minimumBilledHundredths = 100

var hundred = decimal.NewFromInt(100)

// RentalCostBreakdown provides detailed cost breakdown
type RentalCostBreakdown struct {
	BilledHours     decimal.Decimal
	HourlyPrice     decimal.Decimal
	DiscountPercent int
	Subtotal        decimal.Decimal // before discount
	Discount        decimal.Decimal
	TotalCost       decimal.Decimal
}

// ParseDate parses a yyyy-mm-dd calendar day.
func ParseDate(dateStr string) (time.Time, error) {
	t, err := time.Parse(domain.DateLayout, dateStr)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q, expected yyyy-mm-dd: %w", dateStr, domain.ErrValidation)
	}
	return t, nil
}

// DayKey formats t as the calendar day it falls on in loc.
func DayKey(t time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}
	return t.In(loc).Format(domain.DateLayout)
}

// BillableHours floors elapsed to hundredths of an hour, with a one hour minimum.
func BillableHours(elapsed time.Duration) decimal.Decimal {
	hundredths := int64(elapsed / hundredthHour)
	if hundredths < minimumBilledHundredths {
		hundredths = minimumBilledHundredths
	}
	return decimal.New(hundredths, -2)
}

// RentalCost is hours × hourly price less the discount, rounded half-up to
// two decimal places.
func RentalCost(hours, hourlyPrice decimal.Decimal, discountPercent int) decimal.Decimal {
	return CalculateRentalCostWithBreakdown(hours, hourlyPrice, discountPercent).TotalCost
}

// CalculateRentalCost bills a rental that ran from start to end.
func CalculateRentalCost(start, end time.Time, hourlyPrice decimal.Decimal, discountPercent int) RentalCostBreakdown {
	return CalculateRentalCostWithBreakdown(BillableHours(end.Sub(start)), hourlyPrice, discountPercent)
}

// CalculateRentalCostWithBreakdown splits the charge into subtotal and discount.
func CalculateRentalCostWithBreakdown(hours, hourlyPrice decimal.Decimal, discountPercent int) RentalCostBreakdown {
	subtotal := hours.Mul(hourlyPrice)
	total := subtotal.Mul(decimal.NewFromInt(int64(100 - discountPercent))).Div(hundred).Round(2)
	return RentalCostBreakdown{
		BilledHours:     hours,
		HourlyPrice:     hourlyPrice,
		DiscountPercent: discountPercent,
		Subtotal:        subtotal.Round(2),
		Discount:        subtotal.Round(2).Sub(total),
		TotalCost:       total,
	}
}
