package service

import (
	"context"

	"console-rental-backend/internal/domain"
	"console-rental-backend/internal/store"

	"github.com/shopspring/decimal"
)

const dashboardActivityLimit = 10

type Dashboard struct {
	TotalRevenue      decimal.Decimal `json:"total_revenue"`
	RevenuePerMinute  decimal.Decimal `json:"revenue_per_minute"`
	ActiveRentals     int             `json:"active_rentals"`
	TotalUsers        int             `json:"total_users"`
	TotalConsoles     int             `json:"total_consoles"`
	AvailableConsoles int             `json:"available_consoles"`
	Activity          []RentalEntry   `json:"activity"`
}

type statsService struct {
	store *store.Store
}

func NewStatsService(st *store.Store) StatsService {
	return &statsService{store: st}
}

// Dashboard summarizes revenue and occupancy. Revenue per minute is what the
// currently active rentals earn at their snapshot prices, before discount.
func (s *statsService) Dashboard(ctx context.Context) (*Dashboard, error) {
	consoles, err := store.Load[domain.Console](ctx, s.store, store.Consoles)
	if err != nil {
		return nil, err
	}
	users, err := store.Load[domain.User](ctx, s.store, store.Users)
	if err != nil {
		return nil, err
	}
	rentals, err := store.Load[domain.Rental](ctx, s.store, store.Rentals)
	if err != nil {
		return nil, err
	}

	d := &Dashboard{
		TotalRevenue:     decimal.Zero,
		RevenuePerMinute: decimal.Zero,
		TotalUsers:       len(users),
		TotalConsoles:    len(consoles),
	}
	sixty := decimal.NewFromInt(60)
	for _, r := range rentals {
		d.TotalRevenue = d.TotalRevenue.Add(r.TotalCost)
		if r.Status == domain.RentalStatusActive {
			d.ActiveRentals++
			d.RevenuePerMinute = d.RevenuePerMinute.Add(r.HourlyPrice.Div(sixty))
		}
	}
	d.RevenuePerMinute = d.RevenuePerMinute.Round(2)
	for _, c := range consoles {
		if c.Status == domain.ConsoleStatusAvailable {
			d.AvailableConsoles++
		}
	}

	activity := rentalEntries(rentals, users, consoles)
	if len(activity) > dashboardActivityLimit {
		activity = activity[:dashboardActivityLimit]
	}
	d.Activity = activity
	return d, nil
}
