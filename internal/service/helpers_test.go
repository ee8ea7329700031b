package service_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"console-rental-backend/internal/domain"
	"console-rental-backend/internal/service"
	"console-rental-backend/internal/store"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var testStart = time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type MockNotifier struct {
	mock.Mock
}

func (m *MockNotifier) NotifyUser(ctx context.Context, userID, text string) error {
	args := m.Called(ctx, userID, text)
	return args.Error(0)
}

func (m *MockNotifier) NotifyStaff(ctx context.Context, text string) error {
	args := m.Called(ctx, text)
	return args.Error(0)
}

type fixture struct {
	ctx      context.Context
	dir      string
	store    *store.Store
	clock    *fakeClock
	notifier *MockNotifier

	consoles      service.ConsoleService
	discounts     service.DiscountService
	verifications service.VerificationService
	requests      service.RequestService
	rentals       service.RentalService
	activity      service.ActivityService
	users         service.UserService
	staff         service.StaffService
	settings      service.SettingsService
	stats         service.StatsService
}

// newFixture wires every service over a fresh file store. notifyErr is
// returned by every notification.
func newFixture(t *testing.T, notifyErr error) *fixture {
	t.Helper()
	dir := t.TempDir()
	backend, err := store.NewFileBackend(dir)
	require.NoError(t, err)
	st := store.New(backend)
	clock := &fakeClock{now: testStart}
	notifier := new(MockNotifier)
	notifier.On("NotifyUser", mock.Anything, mock.Anything, mock.Anything).Return(notifyErr).Maybe()
	notifier.On("NotifyStaff", mock.Anything, mock.Anything).Return(notifyErr).Maybe()

	return &fixture{
		ctx:           context.Background(),
		dir:           dir,
		store:         st,
		clock:         clock,
		notifier:      notifier,
		consoles:      service.NewConsoleService(st, clock),
		discounts:     service.NewDiscountService(st, clock),
		verifications: service.NewVerificationService(st, clock, notifier),
		requests:      service.NewRequestService(st, clock, notifier),
		rentals:       service.NewRentalService(st, clock, notifier),
		activity:      service.NewActivityService(st, clock),
		users:         service.NewUserService(st, clock),
		staff:         service.NewStaffService(st, clock),
		settings:      service.NewSettingsService(st),
		stats:         service.NewStatsService(st),
	}
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func seed[T any](t *testing.T, f *fixture, c store.Collection, id string, rec T) {
	t.Helper()
	err := f.store.Update(f.ctx, func(tx *store.Tx) error {
		return store.Put(tx, c, id, rec)
	}, c)
	require.NoError(t, err)
}

func (f *fixture) seedConsole(t *testing.T, id, price string) {
	seed(t, f, store.Consoles, id, domain.Console{
		ID:          id,
		Name:        "PS5 " + id,
		Model:       "PlayStation 5",
		RentalPrice: dec(price),
		SalePrice:   decimal.Zero,
		Games:       []string{},
		Status:      domain.ConsoleStatusAvailable,
		CreatedAt:   testStart,
	})
}

func (f *fixture) seedUser(t *testing.T, id string, status domain.VerificationStatus) {
	seed(t, f, store.Users, id, domain.User{
		ID:                 id,
		FirstName:          "User " + id,
		Username:           "user" + id,
		JoinedAt:           testStart,
		VerificationStatus: status,
	})
}

func (f *fixture) seedStaff(t *testing.T, id string, role domain.StaffRole) {
	seed(t, f, store.StaffAccounts, id, domain.StaffAccount{
		ID:        id,
		Username:  "staff-" + id,
		FullName:  "Staff " + id,
		Role:      role,
		Stats:     domain.StaffStats{DailyActions: map[string]int{}},
		CreatedAt: testStart,
	})
}

func (f *fixture) console(t *testing.T, id string) domain.Console {
	t.Helper()
	c, err := f.consoles.GetConsole(f.ctx, id)
	require.NoError(t, err)
	return *c
}

func (f *fixture) user(t *testing.T, id string) domain.User {
	t.Helper()
	u, err := f.users.GetUser(f.ctx, id)
	require.NoError(t, err)
	return *u
}

func (f *fixture) staffAccount(t *testing.T, id string) domain.StaffAccount {
	t.Helper()
	a, err := f.staff.GetStaff(f.ctx, id)
	require.NoError(t, err)
	return *a
}

func (f *fixture) request(t *testing.T, id string) domain.RentalRequest {
	t.Helper()
	requests, err := store.Load[domain.RentalRequest](f.ctx, f.store, store.RentalRequests)
	require.NoError(t, err)
	r, ok := requests[id]
	require.True(t, ok, "request %s missing", id)
	return r
}

// activeRentalsFor counts active rentals on a console.
func (f *fixture) activeRentalsFor(t *testing.T, consoleID string) int {
	t.Helper()
	rentals, err := store.Load[domain.Rental](f.ctx, f.store, store.Rentals)
	require.NoError(t, err)
	n := 0
	for _, r := range rentals {
		if r.ConsoleID == consoleID && r.Status == domain.RentalStatusActive {
			n++
		}
	}
	return n
}
