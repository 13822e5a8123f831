package payment

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/FeliciaLa/ExpertA-sub000/internal/notification"
)

// Service settles payment intents and records receipts for confirmed charges.
type Service struct {
	client   *Client
	repo     Repository
	notifier notification.Notifier
	logger   *slog.Logger
}

// NewService constructs a payment service.
func NewService(client *Client, repo Repository, notifier notification.Notifier, logger *slog.Logger) *Service {
	return &Service{client: client, repo: repo, notifier: notifier, logger: logger}
}

// CreateIntent prepares a charge for one expert's message pack.
func (s *Service) CreateIntent(ctx context.Context, access, expertID string) (Intent, error) {
	return s.client.CreateIntent(ctx, access, expertID)
}

// Confirm settles an intent with the processor. A declined charge surfaces
// ErrPaymentFailed and records nothing; a confirmed one is written as a
// receipt before the outcome is returned.
func (s *Service) Confirm(ctx context.Context, access, callerID, expertID, intentID string) (Outcome, error) {
	outcome, err := s.client.Confirm(ctx, access, intentID, expertID)
	if err != nil {
		return outcome, err
	}

	receipt := Receipt{
		ID:        uuid.NewString(),
		CallerID:  callerID,
		ExpertID:  expertID,
		IntentID:  intentID,
		Amount:    outcome.Amount,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.repo.Record(ctx, receipt); err != nil {
		// The charge went through; losing the receipt must not fail the
		// caller's purchase. Warn so reconciliation against the processor
		// knows a row is missing.
		s.logger.Warn("receipt not recorded",
			"caller", callerID, "intent", intentID, "amount", outcome.Amount, "error", err)
		return outcome, nil
	}

	if s.notifier != nil {
		_ = s.notifier.Send(ctx, notification.Message{
			Kind:        notification.KindPackPurchased,
			Destination: callerID,
			Body:        fmt.Sprintf("Payment of %d recorded for expert %s", outcome.Amount, expertID),
		})
	}

	return outcome, nil
}

// Receipts lists the recorded purchases for a caller.
func (s *Service) Receipts(ctx context.Context, callerID string) ([]Receipt, error) {
	return s.repo.ListByCaller(ctx, callerID)
}
