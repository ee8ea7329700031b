package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

type ConsoleStatus string

const (
	ConsoleStatusAvailable ConsoleStatus = "available"
	ConsoleStatusRented    ConsoleStatus = "rented"
)

func (s ConsoleStatus) Valid() bool {
	return s == ConsoleStatusAvailable || s == ConsoleStatusRented
}

type Console struct {
	ID             string          `json:"id"`
	Name           string          `json:"name"`
	Model          string          `json:"model"`
	RentalPrice    decimal.Decimal `json:"rental_price"` // per hour
	SalePrice      decimal.Decimal `json:"sale_price"`
	ShowPhotoInBot bool            `json:"show_photo_in_bot"`
	PhotoPath      string          `json:"photo_path,omitempty"`
	Games          []string        `json:"games"`
	Status         ConsoleStatus   `json:"status"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      *time.Time      `json:"updated_at,omitempty"`
}

func (c Console) Validate() error {
	if c.ID == "" {
		return fmt.Errorf("console: missing id: %w", ErrValidation)
	}
	if !c.Status.Valid() {
		return fmt.Errorf("console %s: unknown status %q: %w", c.ID, c.Status, ErrValidation)
	}
	if c.RentalPrice.IsNegative() {
		return fmt.Errorf("console %s: negative rental price: %w", c.ID, ErrValidation)
	}
	return nil
}

// Occupy moves an available console to rented.
func (c *Console) Occupy() error {
	if c.Status != ConsoleStatusAvailable {
		return fmt.Errorf("console %s is %s: %w", c.ID, c.Status, ErrConflict)
	}
	c.Status = ConsoleStatusRented
	return nil
}

// Release moves a rented console back to available.
func (c *Console) Release() error {
	if c.Status != ConsoleStatusRented {
		return fmt.Errorf("console %s is %s: %w", c.ID, c.Status, ErrConflict)
	}
	c.Status = ConsoleStatusAvailable
	return nil
}
