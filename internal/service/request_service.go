package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"itdesk/internal/middleware"
	"itdesk/internal/models"
	"itdesk/internal/notifications"
	"itdesk/internal/observability"
	"itdesk/internal/repository"
	"itdesk/internal/validation"

	"go.opentelemetry.io/otel/attribute"
	"gorm.io/gorm"
)

// EventPublisher receives committed request changes.
type EventPublisher interface {
	PublishRequestEvent(ctx context.Context, ev notifications.Event) error
}

// RequestService coordinates master mutations with mirror synchronization.
type RequestService struct {
	db       *gorm.DB
	requests repository.RequestRepository
	sync     *Synchronizer
	events   EventPublisher
	policy   Policy
}

type CreateRequestInput struct {
	UserID      *uint
	Username    string
	RequestText string
	Reason      *string
}

type UpdateStatusInput struct {
	ID             uint
	Status         string
	ExpectedStatus *string
}

// NewRequestService wires the coordinator. events may be nil.
func NewRequestService(
	db *gorm.DB,
	requests repository.RequestRepository,
	mirrors repository.MirrorRepository,
	events EventPublisher,
	policy Policy,
) *RequestService {
	return &RequestService{
		db:       db,
		requests: requests,
		sync:     NewSynchronizer(requests, mirrors),
		events:   events,
		policy:   policy,
	}
}

// CreateAndSync inserts a request in status new and mirrors it in the same transaction.
func (s *RequestService) CreateAndSync(ctx context.Context, in CreateRequestInput) (*models.Request, error) {
	// username and requestText are stored as submitted; only the reason is normalized.
	reason := normalizeReason(in.Reason)
	if strings.TrimSpace(in.Username) == "" || strings.TrimSpace(in.RequestText) == "" {
		return nil, models.NewValidationError("username and requestText are required")
	}
	for _, err := range []error{
		validation.ValidateUsername(in.Username),
		validation.ValidateRequestText(in.RequestText),
		validation.ValidateReason(reason),
	} {
		if err != nil {
			return nil, models.NewValidationError(err.Error())
		}
	}

	span, ctx := observability.NewSpan(ctx, "RequestService.CreateAndSync")
	defer span.End()

	req := &models.Request{
		UserID:      in.UserID,
		Username:    in.Username,
		RequestText: in.RequestText,
		Reason:      reason,
		Status:      models.StatusNew,
	}

	var synced *models.Request
	err := runInTx(ctx, s.db, "create_request", s.policy.MaxRetries, func(tx *gorm.DB) error {
		// A retried attempt must not reuse the id assigned by a rolled-back insert.
		req.ID = 0
		if err := s.requests.WithTx(tx).Create(ctx, req); err != nil {
			return fmt.Errorf("insert request: %w", err)
		}
		var err error
		synced, err = s.sync.Sync(ctx, tx, req.ID)
		return err
	})
	if err != nil {
		span.SetError(err)
		return nil, err
	}

	span.AddAttributes(attribute.Int("it_request.id", int(synced.ID)))
	middleware.Logger.InfoContext(ctx, "IT request created",
		slog.Uint64("it_request_id", uint64(synced.ID)),
		slog.String("username", synced.Username),
	)
	s.publish(ctx, notifications.Event{
		Type:      notifications.EventRequestCreated,
		RequestID: synced.ID,
		Status:    synced.Status,
	})
	return synced, nil
}

// UpdateStatusAndSync moves a request to a new status and re-mirrors it in the same transaction.
func (s *RequestService) UpdateStatusAndSync(ctx context.Context, in UpdateStatusInput) (*models.Request, error) {
	next, ok := models.ParseStatus(in.Status)
	if !ok {
		return nil, models.NewInvalidStatusError(in.Status)
	}

	var expected *models.Status
	if s.policy.CompareAndSwap {
		if in.ExpectedStatus == nil || strings.TrimSpace(*in.ExpectedStatus) == "" {
			return nil, models.NewValidationError("expectedStatus is required")
		}
		st, ok := models.ParseStatus(*in.ExpectedStatus)
		if !ok {
			return nil, models.NewInvalidStatusError(*in.ExpectedStatus)
		}
		expected = &st
	}

	span, ctx := observability.NewSpan(ctx, "RequestService.UpdateStatusAndSync")
	defer span.End()
	span.AddAttributes(
		attribute.Int("it_request.id", int(in.ID)),
		attribute.String("it_request.status", string(next)),
	)

	var previous models.Status
	var synced *models.Request
	err := runInTx(ctx, s.db, "update_status", s.policy.MaxRetries, func(tx *gorm.DB) error {
		requests := s.requests.WithTx(tx)

		current, err := requests.GetByIDForUpdate(ctx, in.ID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return models.NewNotFoundError("Request", in.ID)
			}
			return fmt.Errorf("lock request %d: %w", in.ID, err)
		}
		previous = current.Status

		if expected != nil && current.Status != *expected {
			return models.NewConflictError(fmt.Sprintf(
				"Request %d is %s, expected %s", in.ID, current.Status, *expected))
		}
		if s.policy.EnforceTransitions {
			if !current.Status.Valid() {
				return models.NewCorruptionError(current.ID, current.Status)
			}
			if !current.Status.CanTransitionTo(next) {
				return models.NewInvalidTransitionError(current.Status, next)
			}
		}

		n, err := requests.UpdateStatus(ctx, in.ID, next, expected)
		if err != nil {
			return fmt.Errorf("update status of request %d: %w", in.ID, err)
		}
		if n == 0 {
			if expected != nil {
				return models.NewConflictError(fmt.Sprintf("Request %d changed concurrently", in.ID))
			}
			return models.NewNotFoundError("Request", in.ID)
		}

		synced, err = s.sync.Sync(ctx, tx, in.ID)
		return err
	})
	if err != nil {
		span.SetError(err)
		return nil, err
	}

	observability.StatusTransitionsTotal.WithLabelValues(string(previous), string(synced.Status)).Inc()
	middleware.Logger.InfoContext(ctx, "IT request status updated",
		slog.Uint64("it_request_id", uint64(synced.ID)),
		slog.String("from", string(previous)),
		slog.String("to", string(synced.Status)),
	)
	s.publish(ctx, notifications.Event{
		Type:           notifications.EventRequestStatusChanged,
		RequestID:      synced.ID,
		Status:         synced.Status,
		PreviousStatus: previous,
	})
	return synced, nil
}

// List returns every request, newest first.
func (s *RequestService) List(ctx context.Context) ([]*models.Request, error) {
	return s.requests.List(ctx)
}

// ListByStatus returns the requests currently in status, newest first.
func (s *RequestService) ListByStatus(ctx context.Context, status string) ([]*models.Request, error) {
	st, ok := models.ParseStatus(status)
	if !ok {
		return nil, models.NewInvalidStatusError(status)
	}
	return s.requests.ListByStatus(ctx, st)
}

func (s *RequestService) publish(ctx context.Context, ev notifications.Event) {
	if s.events == nil {
		return
	}
	if deviceID, ok := ctx.Value(middleware.DeviceIDKey).(string); ok {
		ev.DeviceID = deviceID
	}
	if err := s.events.PublishRequestEvent(ctx, ev); err != nil {
		middleware.Logger.WarnContext(ctx, "Failed to publish request event",
			slog.String("type", ev.Type),
			slog.Uint64("it_request_id", uint64(ev.RequestID)),
			slog.String("error", err.Error()),
		)
	}
}

func normalizeReason(reason *string) *string {
	if reason == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*reason)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
