package ledger

import (
	"context"
	"fmt"

	"github.com/sunroad-co/sunroad-backend/pkg/db/models"
	"github.com/sunroad-co/sunroad-backend/pkg/enums"
)

// Service is the idempotency state machine guarding webhook side effects.
//
// A provider event moves pending -> done on success or pending -> failed on
// error. Failed records may be claimed again by a later delivery; done and
// pending records may not.
type Service interface {
	// Begin claims the event for processing. It returns true when the
	// caller owns processing, false when another delivery already did or
	// still does.
	Begin(ctx context.Context, eventID, eventType string) (bool, error)
	MarkDone(ctx context.Context, eventID string) error
	MarkFailed(ctx context.Context, eventID string, cause error) error
}

type service struct {
	repo Repository
}

// NewService wires a ledger service with the provided repository.
func NewService(repo Repository) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("ledger repository required")
	}
	return &service{repo: repo}, nil
}

func (s *service) Begin(ctx context.Context, eventID, eventType string) (bool, error) {
	if eventID == "" {
		return false, fmt.Errorf("event id is required")
	}

	created, err := s.repo.Insert(ctx, &models.WebhookEvent{
		StripeEventID: eventID,
		EventType:     eventType,
		Status:        enums.WebhookEventStatusPending,
	})
	if err != nil {
		return false, fmt.Errorf("insert ledger record: %w", err)
	}
	if created {
		return true, nil
	}

	// The record exists. Only a previously failed attempt is claimable;
	// pending and done must no-op so duplicates never double-process.
	reclaimed, err := s.repo.ReclaimFailed(ctx, eventID)
	if err != nil {
		return false, fmt.Errorf("reclaim failed record: %w", err)
	}
	return reclaimed, nil
}

func (s *service) MarkDone(ctx context.Context, eventID string) error {
	if eventID == "" {
		return fmt.Errorf("event id is required")
	}
	moved, err := s.repo.Transition(ctx, eventID, enums.WebhookEventStatusPending, enums.WebhookEventStatusDone, nil)
	if err != nil {
		return fmt.Errorf("mark done: %w", err)
	}
	if !moved {
		return fmt.Errorf("event %s was not pending", eventID)
	}
	return nil
}

func (s *service) MarkFailed(ctx context.Context, eventID string, cause error) error {
	if eventID == "" {
		return fmt.Errorf("event id is required")
	}
	var lastError *string
	if cause != nil {
		msg := cause.Error()
		lastError = &msg
	}
	moved, err := s.repo.Transition(ctx, eventID, enums.WebhookEventStatusPending, enums.WebhookEventStatusFailed, lastError)
	if err != nil {
		return fmt.Errorf("mark failed: %w", err)
	}
	if !moved {
		return fmt.Errorf("event %s was not pending", eventID)
	}
	return nil
}
