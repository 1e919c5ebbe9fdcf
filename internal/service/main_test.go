package service

import (
	"context"
	"sync"
	"testing"

	"itdesk/internal/models"
	"itdesk/internal/notifications"
	"itdesk/internal/repository"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

// recordingPublisher captures published events.
type recordingPublisher struct {
	mu     sync.Mutex
	events []notifications.Event
	err    error
}

func (p *recordingPublisher) PublishRequestEvent(_ context.Context, ev notifications.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return p.err
}

func (p *recordingPublisher) Events() []notifications.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]notifications.Event(nil), p.events...)
}

func newRequestService(db *gorm.DB, policy Policy, events EventPublisher) *RequestService {
	return NewRequestService(db, repository.NewRequestRepository(db), repository.NewMirrorRepository(db), events, policy)
}

func mustCreate(t *testing.T, svc *RequestService, username, text string) *models.Request {
	t.Helper()
	req, err := svc.CreateAndSync(context.Background(), CreateRequestInput{Username: username, RequestText: text})
	require.NoError(t, err)
	return req
}

func mustMove(t *testing.T, svc *RequestService, id uint, status models.Status) {
	t.Helper()
	_, err := svc.UpdateStatusAndSync(context.Background(), UpdateStatusInput{ID: id, Status: string(status)})
	require.NoError(t, err)
}

func locate(t *testing.T, db *gorm.DB, id uint) []models.Status {
	t.Helper()
	found, err := repository.NewMirrorRepository(db).Locate(context.Background(), id)
	require.NoError(t, err)
	return found
}

func strPtr(s string) *string { return &s }
