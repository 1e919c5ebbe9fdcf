// Package seed generates demo IT requests for development and testing.
// Requests are written through the request service so every row is mirrored.
package seed

import (
	"context"
	"fmt"
	"time"

	"itdesk/internal/middleware"
	"itdesk/internal/models"
	"itdesk/internal/service"

	"github.com/brianvoe/gofakeit/v6"
)

// Options configuration for the seeder
type Options struct {
	Count int
	// Seed makes the generated data reproducible. Zero uses the current time.
	Seed int64
	// Lifecycle moves a share of the requests through the status lifecycle after creation.
	Lifecycle bool
}

var (
	hardware = []string{
		"Monitor", "Docking station", "Keyboard", "Mouse", "Headset", "Webcam",
		"Laptop", "Laptop charger", "USB-C hub", "Desk phone", "Label printer",
	}

	software = []string{
		"VPN access", "Adobe Acrobat license", "Visio license", "IDE license",
		"Shared drive access", "CRM account", "Password reset", "MFA token",
	}

	reasons = []string{
		"New hire onboarding", "Replacement for broken equipment", "Project requirement",
		"Relocated desk", "Contractor starting next week",
	}

	// lifecycles lists the status paths a seeded request may follow after creation.
	lifecycles = [][]models.Status{
		nil,
		{models.StatusInProgress},
		{models.StatusInProgress, models.StatusCompleted},
		{models.StatusInProgress, models.StatusRejected},
		{models.StatusRejected},
	}
)

// Seeder creates demo requests through a RequestService.
type Seeder struct {
	requests *service.RequestService
	faker    *gofakeit.Faker
}

// NewSeeder returns a seeder writing through svc.
func NewSeeder(svc *service.RequestService, seed int64) *Seeder {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &Seeder{requests: svc, faker: gofakeit.New(seed)}
}

// BuildInput generates one request payload without persisting it.
func (s *Seeder) BuildInput() service.CreateRequestInput {
	in := service.CreateRequestInput{
		Username: s.faker.Username(),
	}
	if s.faker.Bool() {
		in.RequestText = fmt.Sprintf("%s for %s", s.faker.RandomString(hardware), s.workstation())
	} else {
		in.RequestText = s.faker.RandomString(software)
	}
	if s.faker.Number(0, 2) > 0 {
		uid := uint(s.faker.Number(1, 500))
		in.UserID = &uid
	}
	if s.faker.Bool() {
		reason := s.faker.RandomString(reasons)
		in.Reason = &reason
	}
	return in
}

func (s *Seeder) workstation() string {
	switch s.faker.Number(0, 2) {
	case 0:
		return fmt.Sprintf("Cubicle %d", s.faker.Number(1, 60))
	case 1:
		return fmt.Sprintf("Room %d%02d", s.faker.Number(1, 4), s.faker.Number(1, 30))
	default:
		return s.faker.FirstName() + "'s desk"
	}
}

// Run creates opts.Count requests and returns them in their final state.
func (s *Seeder) Run(ctx context.Context, opts Options) ([]*models.Request, error) {
	created := make([]*models.Request, 0, opts.Count)
	for i := 0; i < opts.Count; i++ {
		req, err := s.requests.CreateAndSync(ctx, s.BuildInput())
		if err != nil {
			return created, fmt.Errorf("seed request %d: %w", i+1, err)
		}

		if opts.Lifecycle {
			id := req.ID
			for _, next := range lifecycles[s.faker.Number(0, len(lifecycles)-1)] {
				req, err = s.requests.UpdateStatusAndSync(ctx, service.UpdateStatusInput{
					ID:     id,
					Status: string(next),
				})
				if err != nil {
					return created, fmt.Errorf("advance request %d to %s: %w", id, next, err)
				}
			}
		}
		created = append(created, req)
	}

	middleware.Logger.InfoContext(ctx, "Seeded IT requests", "count", len(created))
	return created, nil
}

// Requests is a convenience wrapper that seeds with a fresh Seeder.
func Requests(ctx context.Context, svc *service.RequestService, opts Options) ([]*models.Request, error) {
	return NewSeeder(svc, opts.Seed).Run(ctx, opts)
}
