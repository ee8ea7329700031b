package service

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"console-rental-backend/internal/domain"
	"console-rental-backend/internal/logger"
	"console-rental-backend/internal/store"

	"github.com/google/uuid"
)

// VerificationEntry is a verification request joined with its submitter.
type VerificationEntry struct {
	domain.VerificationRequest
	UserFirstName string `json:"user_first_name"`
	Username      string `json:"username"`
}

type verificationService struct {
	store    *store.Store
	clock    Clock
	notifier Notifier
	log      *slog.Logger
}

func NewVerificationService(st *store.Store, clock Clock, notifier Notifier) VerificationService {
	return &verificationService{
		store:    st,
		clock:    clock,
		notifier: notifier,
		log:      logger.WithService("verification"),
	}
}

func (s *verificationService) Submit(ctx context.Context, userID, photoURL string) (*domain.VerificationRequest, error) {
	if strings.TrimSpace(userID) == "" || strings.TrimSpace(photoURL) == "" {
		return nil, fmt.Errorf("user id and photo are required: %w", domain.ErrValidation)
	}

	var (
		req  domain.VerificationRequest
		user domain.User
	)
	err := s.store.Update(ctx, func(tx *store.Tx) error {
		var ok bool
		var err error
		user, ok, err = store.Get[domain.User](tx, store.Users, userID)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("user %s: %w", userID, domain.ErrNotFound)
		}
		if err := user.BeginVerification(); err != nil {
			return err
		}

		req = domain.VerificationRequest{
			ID:        uuid.NewString(),
			UserID:    userID,
			PhotoURL:  photoURL,
			Status:    domain.VerificationRequestPending,
			CreatedAt: s.clock.Now(),
		}
		if err := store.Put(tx, store.VerificationRequests, req.ID, req); err != nil {
			return err
		}
		return store.Put(tx, store.Users, user.ID, user)
	}, store.Users, store.VerificationRequests)
	if err != nil {
		return nil, err
	}

	s.log.InfoContext(ctx, "Verification submitted", "request_id", req.ID, "user_id", userID)
	notifyStaff(ctx, s.notifier, s.log, fmt.Sprintf(
		"🛡️ *New verification request*\n\nFrom: %s (@%s)\nID: `%s`", escape(user.FirstName), escape(user.Username), user.ID))
	return &req, nil
}

func (s *verificationService) Resolve(ctx context.Context, requestID, decision, note, staffID string) (*domain.VerificationRequest, error) {
	d, err := domain.ParseDecision(decision)
	if err != nil {
		return nil, err
	}

	var req domain.VerificationRequest
	err = s.store.Update(ctx, func(tx *store.Tx) error {
		var ok bool
		var err error
		req, ok, err = store.Get[domain.VerificationRequest](tx, store.VerificationRequests, requestID)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("verification request %s: %w", requestID, domain.ErrNotFound)
		}
		user, ok, err := store.Get[domain.User](tx, store.Users, req.UserID)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("user %s: %w", req.UserID, domain.ErrNotFound)
		}

		now := s.clock.Now()
		if err := req.Resolve(d, note, staffID, now); err != nil {
			return err
		}
		if err := user.FinishVerification(d, note); err != nil {
			return err
		}
		if err := store.Put(tx, store.VerificationRequests, req.ID, req); err != nil {
			return err
		}
		if err := store.Put(tx, store.Users, user.ID, user); err != nil {
			return err
		}
		return recordWorkflowActivity(ctx, tx, s.log, staffID, domain.ActivityVerification, today(s.clock))
	}, store.Users, store.VerificationRequests, store.StaffAccounts)
	if err != nil {
		return nil, err
	}

	s.log.InfoContext(ctx, "Verification resolved",
		"request_id", req.ID, "user_id", req.UserID, "decision", d, "staff_id", staffID)
	notifyUser(ctx, s.notifier, s.log, req.UserID, verificationMessage(d, note))
	return &req, nil
}

func verificationMessage(d domain.Decision, note string) string {
	if d == domain.DecisionApprove {
		return "✅ *Congratulations!*\n\nYour profile is verified. You can now rent consoles."
	}
	msg := "❌ *Verification rejected*\n\nWe could not confirm your profile."
	if note != "" {
		msg += "\n\n💬 Reason: " + escape(note)
	}
	return msg + "\n\nYou can send your documents again from the verification menu."
}

// ListVerifications returns every request, newest first.
func (s *verificationService) ListVerifications(ctx context.Context) ([]VerificationEntry, error) {
	requests, err := store.Load[domain.VerificationRequest](ctx, s.store, store.VerificationRequests)
	if err != nil {
		return nil, err
	}
	users, err := store.Load[domain.User](ctx, s.store, store.Users)
	if err != nil {
		return nil, err
	}

	out := make([]VerificationEntry, 0, len(requests))
	for _, r := range requests {
		u := users[r.UserID]
		out = append(out, VerificationEntry{
			VerificationRequest: r,
			UserFirstName:       u.FirstName,
			Username:            u.Username,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}
