package handlers

import (
	"fmt"
	"net/http"
	"time"

	"feedback-backend/internal/common"
	"feedback-backend/internal/config"
	"feedback-backend/internal/models"
	"feedback-backend/internal/notifications"

	"github.com/labstack/echo/v4"
	"gorm.io/gorm"
)

type FeedbackHandler struct {
	common.ServerState
}

func NewFeedbackHandler(db *gorm.DB, cfg *config.Config) *FeedbackHandler {
	return &FeedbackHandler{
		ServerState: common.ServerState{
			DB:     db,
			Config: cfg,
		},
	}
}

// FeedbackSubmitRequest is shared by the create and draft endpoints.
// feedbackId optionally names an existing record to overwrite, which
// is how a requested placeholder becomes a real submission.
type FeedbackSubmitRequest struct {
	CreatedByEmail string   `json:"created_by_email" validate:"required,email"`
	EmployeeEmail  string   `json:"employee_email" validate:"required,email"`
	Strengths      string   `json:"strengths"`
	AreasToImprove string   `json:"areas_to_improve"`
	Sentiment      string   `json:"sentiment" validate:"required,oneof=positive neutral negative"`
	Tags           []string `json:"tags"`
	Status         string   `json:"status" validate:"required,oneof=requested draft submitted acknowledged"`
	IsAnon         bool     `json:"is_anon"`
	FeedbackID     string   `json:"feedbackId"`
}

// resolveParties loads both parties and enforces the authorization
// invariants shared by create and draft: both exist, anonymity is an
// employee-only option, employees never target themselves, and both
// sit on the same team.
func (h *FeedbackHandler) resolveParties(req *FeedbackSubmitRequest) (creator, employee *models.User, httpErr error) {
	creator, err := models.GetUserByEmail(h.DB, req.CreatedByEmail)
	if err != nil {
		return nil, nil, echo.NewHTTPError(http.StatusInternalServerError, "Failed to look up user")
	}
	if creator == nil {
		return nil, nil, echo.NewHTTPError(http.StatusNotFound, "Creator not found")
	}

	employee, err = models.GetUserByEmail(h.DB, req.EmployeeEmail)
	if err != nil {
		return nil, nil, echo.NewHTTPError(http.StatusInternalServerError, "Failed to look up user")
	}
	if employee == nil {
		return nil, nil, echo.NewHTTPError(http.StatusNotFound, "Employee not found")
	}

	if req.IsAnon && creator.Role != models.RoleEmployee {
		return nil, nil, echo.NewHTTPError(http.StatusBadRequest, "Only employees can send anonymous feedback")
	}

	if creator.Role == models.RoleEmployee && creator.Email == employee.Email {
		return nil, nil, echo.NewHTTPError(http.StatusBadRequest, "Cannot send feedback to yourself")
	}

	sameTeam, err := models.SameTeam(h.DB, creator.Email, employee.Email)
	if err != nil {
		return nil, nil, echo.NewHTTPError(http.StatusInternalServerError, "Failed to resolve team")
	}
	if !sameTeam {
		return nil, nil, echo.NewHTTPError(http.StatusBadRequest, "Users are not on the same team")
	}

	return creator, employee, nil
}

// upsertSubmission writes the feedback record for create and draft.
// When feedbackId resolves to an existing record its content,
// sentiment, tags, status and anonymity are overwritten and both
// created_at and updated_at refreshed; draft additionally falls back
// to the single retained draft per (creator, subject) pair. An
// acknowledged record is never overwritten, the id must belong to the
// same (creator, subject) pair, and a submitted record can't be
// demoted back to draft.
func upsertSubmission(tx *gorm.DB, req *FeedbackSubmitRequest, creator *models.User, status models.FeedbackStatus) (string, error) {
	now := time.Now().UTC()
	sentiment := models.Sentiment(req.Sentiment)

	var fb *models.Feedback
	if req.FeedbackID != "" {
		existing, err := models.GetFeedbackByID(tx, req.FeedbackID)
		if err != nil {
			return "", err
		}
		fb = existing
	}

	if fb == nil && status == models.StatusDraft {
		existing, err := models.FindByPairAndStatus(tx, req.CreatedByEmail, req.EmployeeEmail, models.StatusDraft)
		if err != nil {
			return "", err
		}
		fb = existing
	}

	if fb != nil {
		if fb.Status == models.StatusAcknowledged {
			return "", echo.NewHTTPError(http.StatusBadRequest, "Feedback is acknowledged and can no longer be edited")
		}
		if fb.CreatedByEmail != req.CreatedByEmail || fb.EmployeeEmail != req.EmployeeEmail {
			return "", echo.NewHTTPError(http.StatusBadRequest, "Feedback does not belong to this creator and subject")
		}
		if status == models.StatusDraft && fb.Status == models.StatusSubmitted {
			return "", echo.NewHTTPError(http.StatusBadRequest, "Submitted feedback can't go back to draft")
		}

		fb.Strengths = req.Strengths
		fb.AreasToImprove = req.AreasToImprove
		fb.Sentiment = &sentiment
		fb.Tags = req.Tags
		fb.Status = status
		fb.IsAnon = req.IsAnon
		fb.CreatedAt = &now
		fb.UpdatedAt = &now

		if err := tx.Save(fb).Error; err != nil {
			return "", err
		}
		return fb.ID, nil
	}

	fb = &models.Feedback{
		CreatedByEmail: creator.Email,
		CreatedByRole:  creator.Role,
		EmployeeEmail:  req.EmployeeEmail,
		Strengths:      req.Strengths,
		AreasToImprove: req.AreasToImprove,
		Sentiment:      &sentiment,
		Tags:           req.Tags,
		IsAnon:         req.IsAnon,
		Status:         status,
		CreatedAt:      &now,
		UpdatedAt:      &now,
	}

	if err := tx.Create(fb).Error; err != nil {
		return "", err
	}
	return fb.ID, nil
}

// CreateFeedback submits (or fulfills a request with) a feedback item.
func (h *FeedbackHandler) CreateFeedback(c echo.Context) error {
	req := new(FeedbackSubmitRequest)
	if err := c.Bind(req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := c.Validate(req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	status, err := models.ParseStatus(req.Status)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	creator, employee, httpErr := h.resolveParties(req)
	if httpErr != nil {
		return httpErr
	}

	var id string
	if err := h.DB.Transaction(func(tx *gorm.DB) error {
		var txErr error
		id, txErr = upsertSubmission(tx, req, creator, status)
		return txErr
	}); err != nil {
		if httpErr, ok := err.(*echo.HTTPError); ok {
			return httpErr
		}
		c.Logger().Errorf("Failed to save feedback: %v", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to save feedback")
	}

	if status == models.StatusSubmitted && h.EmailClient != nil {
		authorName := creator.Name
		if req.IsAnon {
			authorName = "A teammate"
		}
		h.EmailClient.SendFeedbackSubmittedEmail(authorName, employee.Email)
	}

	return c.JSON(http.StatusOK, map[string]string{
		"message": "feedback submitted successfully",
		"id":      id,
	})
}

// SaveDraft upserts the single draft kept per (creator, subject)
// pair. The status field of the request body is ignored.
func (h *FeedbackHandler) SaveDraft(c echo.Context) error {
	req := new(FeedbackSubmitRequest)
	if err := c.Bind(req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := c.Validate(req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	creator, _, httpErr := h.resolveParties(req)
	if httpErr != nil {
		return httpErr
	}

	var id string
	if err := h.DB.Transaction(func(tx *gorm.DB) error {
		var txErr error
		id, txErr = upsertSubmission(tx, req, creator, models.StatusDraft)
		return txErr
	}); err != nil {
		if httpErr, ok := err.(*echo.HTTPError); ok {
			return httpErr
		}
		c.Logger().Errorf("Failed to save draft: %v", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to save draft")
	}

	return c.JSON(http.StatusOK, map[string]string{
		"message": "draft saved successfully",
		"id":      id,
	})
}

type RequestFeedbackRequest struct {
	RequestorEmail string   `json:"requestor_email" validate:"required,email"`
	GiverEmail     string   `json:"giver_email" validate:"required,email"`
	Tags           []string `json:"tags"`
}

// RequestFeedback records an unfulfilled ask: a content-empty item
// authored by the giver, about the requestor, in requested status. At
// most one outstanding request per (giver, requestor) pair; a second
// ask while the first is open is a conflict, not a merge.
func (h *FeedbackHandler) RequestFeedback(c echo.Context) error {
	req := new(RequestFeedbackRequest)
	if err := c.Bind(req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := c.Validate(req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	requestor, err := models.GetUserByEmail(h.DB, req.RequestorEmail)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to look up user")
	}
	if requestor == nil {
		return echo.NewHTTPError(http.StatusNotFound, "Requestor not found")
	}

	giver, err := models.GetUserByEmail(h.DB, req.GiverEmail)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to look up user")
	}
	if giver == nil {
		return echo.NewHTTPError(http.StatusNotFound, "Giver not found")
	}

	if requestor.Role == models.RoleManager {
		return echo.NewHTTPError(http.StatusBadRequest, "Managers cannot request feedback")
	}

	if giver.Email == requestor.Email {
		return echo.NewHTTPError(http.StatusBadRequest, "Cannot request feedback from yourself")
	}

	sameTeam, err := models.SameTeam(h.DB, requestor.Email, giver.Email)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to resolve team")
	}
	if !sameTeam {
		return echo.NewHTTPError(http.StatusBadRequest, "Users are not on the same team")
	}

	now := time.Now().UTC()
	fb := models.Feedback{
		CreatedByEmail: giver.Email,
		CreatedByRole:  giver.Role,
		EmployeeEmail:  requestor.Email,
		Tags:           req.Tags,
		Status:         models.StatusRequested,
		RequestedAt:    &now,
	}

	if err := h.DB.Transaction(func(tx *gorm.DB) error {
		existing, txErr := models.FindByPairAndStatus(tx, giver.Email, requestor.Email, models.StatusRequested)
		if txErr != nil {
			return txErr
		}
		if existing != nil {
			return echo.NewHTTPError(http.StatusConflict, "A feedback request is already outstanding")
		}

		return tx.Create(&fb).Error
	}); err != nil {
		if httpErr, ok := err.(*echo.HTTPError); ok {
			return httpErr
		}
		c.Logger().Errorf("Failed to create feedback request: %v", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to create feedback request")
	}

	if h.EmailClient != nil {
		h.EmailClient.SendFeedbackRequestEmail(requestor.Name, giver.Email)
	}

	_ = notifications.SendTelegramNotification(fmt.Sprintf("New feedback request: %s", fb.ID), h.Config)

	return c.JSON(http.StatusOK, map[string]string{
		"message": "feedback requested successfully",
		"id":      fb.ID,
	})
}

// FeedbackUpdateRequest carries partial-patch semantics: only fields
// present in the body are applied, absent fields stay untouched.
type FeedbackUpdateRequest struct {
	Strengths      *string   `json:"strengths"`
	AreasToImprove *string   `json:"areas_to_improve"`
	Sentiment      *string   `json:"sentiment"`
	Tags           *[]string `json:"tags"`
	IsAnon         *bool     `json:"is_anon"`
	Status         *string   `json:"status"`
}

// UpdateFeedback applies a partial patch to a non-acknowledged item.
// The only status targets it accepts are draft and submitted, so the
// machine can never move backwards out of acknowledged.
func (h *FeedbackHandler) UpdateFeedback(c echo.Context) error {
	feedbackID := c.Param("id")

	req := new(FeedbackUpdateRequest)
	if err := c.Bind(req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	fb, err := models.GetFeedbackByID(h.DB, feedbackID)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to look up feedback")
	}
	if fb == nil {
		return echo.NewHTTPError(http.StatusNotFound, "Feedback not found")
	}

	if fb.Status == models.StatusAcknowledged {
		return echo.NewHTTPError(http.StatusBadRequest, "Feedback is acknowledged and can no longer be edited")
	}

	if req.Status != nil {
		status, err := models.ParseStatus(*req.Status)
		if err != nil || (status != models.StatusDraft && status != models.StatusSubmitted) {
			return echo.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("Invalid target status: %s", *req.Status))
		}
		fb.Status = status
	}

	if req.Sentiment != nil {
		sentiment, err := models.ParseSentiment(*req.Sentiment)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		fb.Sentiment = &sentiment
	}

	if req.IsAnon != nil {
		if *req.IsAnon && fb.CreatedByRole != models.RoleEmployee {
			return echo.NewHTTPError(http.StatusBadRequest, "Only employees can send anonymous feedback")
		}
		fb.IsAnon = *req.IsAnon
	}

	if req.Strengths != nil {
		fb.Strengths = *req.Strengths
	}
	if req.AreasToImprove != nil {
		fb.AreasToImprove = *req.AreasToImprove
	}
	if req.Tags != nil {
		fb.Tags = *req.Tags
	}

	now := time.Now().UTC()
	fb.UpdatedAt = &now

	if err := h.DB.Save(fb).Error; err != nil {
		c.Logger().Errorf("Failed to update feedback: %v", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to update feedback")
	}

	return c.JSON(http.StatusOK, map[string]string{
		"message": "feedback updated successfully",
		"id":      fb.ID,
	})
}

type AcknowledgeRequest struct {
	EmployeeEmail string `json:"employee_email" validate:"required,email"`
}

// AcknowledgeFeedback moves an item into its terminal state. Only the
// subject may acknowledge, and re-acknowledging is a no-op success.
func (h *FeedbackHandler) AcknowledgeFeedback(c echo.Context) error {
	feedbackID := c.Param("id")

	req := new(AcknowledgeRequest)
	if err := c.Bind(req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := c.Validate(req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	employee, err := models.GetUserByEmail(h.DB, req.EmployeeEmail)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to look up user")
	}
	if employee == nil {
		return echo.NewHTTPError(http.StatusNotFound, "Employee not found")
	}

	fb, err := models.GetFeedbackByID(h.DB, feedbackID)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to look up feedback")
	}
	if fb == nil {
		return echo.NewHTTPError(http.StatusNotFound, "Feedback not found")
	}

	if employee.Email != fb.EmployeeEmail {
		return echo.NewHTTPError(http.StatusForbidden, "Unauthorised")
	}

	if fb.Status == models.StatusAcknowledged {
		return c.JSON(http.StatusOK, map[string]string{"message": "already acknowledged"})
	}

	now := time.Now().UTC()
	fb.Status = models.StatusAcknowledged
	fb.AcknowledgedAt = &now

	if err := h.DB.Save(fb).Error; err != nil {
		c.Logger().Errorf("Failed to acknowledge feedback: %v", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to acknowledge feedback")
	}

	return c.JSON(http.StatusOK, map[string]string{"message": "feedback acknowledged successfully"})
}
