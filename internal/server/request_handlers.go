package server

import (
	"itdesk/internal/models"
	"itdesk/internal/service"

	"github.com/gofiber/fiber/v2"
)

// CreateITRequestBody is the JSON body of POST /api/it-requests.
type CreateITRequestBody struct {
	UserID      *uint   `json:"userId"`
	Username    string  `json:"username"`
	RequestText string  `json:"requestText"`
	Reason      *string `json:"reason"`
}

// UpdateStatusBody is the JSON body of PUT /api/it-requests/:id.
type UpdateStatusBody struct {
	Status         string  `json:"status"`
	ExpectedStatus *string `json:"expectedStatus"`
}

// CreateITRequest handles POST /api/it-requests
func (s *Server) CreateITRequest(c *fiber.Ctx) error {
	var body CreateITRequestBody
	if err := c.BodyParser(&body); err != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Invalid request body"))
	}

	req, err := s.requestService.CreateAndSync(c.UserContext(), service.CreateRequestInput{
		UserID:      body.UserID,
		Username:    body.Username,
		RequestText: body.RequestText,
		Reason:      body.Reason,
	})
	if err != nil {
		return respondError(c, err)
	}

	return c.JSON(fiber.Map{
		"success":   true,
		"requestId": req.ID,
	})
}

// GetITRequests handles GET /api/it-requests
func (s *Server) GetITRequests(c *fiber.Ctx) error {
	reqs, err := s.requestService.List(c.UserContext())
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{
		"success":  true,
		"requests": reqs,
	})
}

// GetITRequestsByStatus handles GET /api/it-requests/status/:status
func (s *Server) GetITRequestsByStatus(c *fiber.Ctx) error {
	reqs, err := s.requestService.ListByStatus(c.UserContext(), c.Params("status"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{
		"success":  true,
		"requests": reqs,
	})
}

// UpdateITRequestStatus handles PUT /api/it-requests/:id
func (s *Server) UpdateITRequestStatus(c *fiber.Ctx) error {
	id, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}

	var body UpdateStatusBody
	if err := c.BodyParser(&body); err != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Invalid request body"))
	}

	if _, err := s.requestService.UpdateStatusAndSync(c.UserContext(), service.UpdateStatusInput{
		ID:             id,
		Status:         body.Status,
		ExpectedStatus: body.ExpectedStatus,
	}); err != nil {
		return respondError(c, err)
	}

	return c.JSON(fiber.Map{"success": true})
}

// RebuildStatusTables handles POST /api/rebuild-status-tables
func (s *Server) RebuildStatusTables(c *fiber.Ctx) error {
	counts, err := s.rebuildService.RebuildAll(c.UserContext())
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{
		"success": true,
		"message": "Rebuilt status tables from requests",
		"counts":  counts,
	})
}

// GetStatusTableCounts handles GET /api/status-tables/counts
func (s *Server) GetStatusTableCounts(c *fiber.Ctx) error {
	counts, err := s.rebuildService.Counts(c.UserContext())
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{
		"success": true,
		"counts":  counts,
		"drifted": counts.Drifted(),
	})
}

// GetStatuses handles GET /api/statuses
func (s *Server) GetStatuses(c *fiber.Ctx) error {
	statuses, err := s.statusRepo.List(c.UserContext())
	if err != nil {
		return respondError(c, models.NewInternalError(err))
	}
	return c.JSON(fiber.Map{
		"success":  true,
		"statuses": statuses,
	})
}
