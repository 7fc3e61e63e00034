package handlers

import (
	"net/http"
	"sort"
	"time"

	"feedback-backend/internal/common"
	"feedback-backend/internal/config"
	"feedback-backend/internal/models"

	"github.com/labstack/echo/v4"
	"gorm.io/gorm"
)

type DashboardHandler struct {
	common.ServerState
}

func NewDashboardHandler(db *gorm.DB, cfg *config.Config) *DashboardHandler {
	return &DashboardHandler{
		ServerState: common.ServerState{
			DB:     db,
			Config: cfg,
		},
	}
}

func (h *DashboardHandler) lookupUser(c echo.Context, param string) (*models.User, error) {
	email := c.QueryParam(param)
	if email == "" {
		return nil, echo.NewHTTPError(http.StatusBadRequest, "Missing "+param+" parameter")
	}

	u, err := models.GetUserByEmail(h.DB, email)
	if err != nil {
		return nil, echo.NewHTTPError(http.StatusInternalServerError, "Failed to look up user")
	}
	if u == nil {
		return nil, echo.NewHTTPError(http.StatusNotFound, "User not found")
	}
	return u, nil
}

// FeedbackCount returns a single role-dependent headline number:
// items authored for managers, items received for employees.
func (h *DashboardHandler) FeedbackCount(c echo.Context) error {
	u, err := h.lookupUser(c, "email")
	if err != nil {
		return err
	}

	var label, column string
	switch u.Role {
	case models.RoleManager:
		label, column = "Feedbacks Given", "created_by_email"
	case models.RoleEmployee:
		label, column = "Feedbacks Received", "employee_email"
	default:
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid role")
	}

	var count int64
	if err := h.DB.Model(&models.Feedback{}).Where(column+" = ?", u.Email).Count(&count).Error; err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to count feedback")
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"label": label,
		"count": count,
	})
}

// SentimentTrendsResponse buckets authored feedback per calendar
// month. Months with no feedback are absent rather than zero-filled.
type SentimentTrendsResponse struct {
	Labels   []string `json:"labels"`
	Positive []int    `json:"positive"`
	Neutral  []int    `json:"neutral"`
	Negative []int    `json:"negative"`
}

type sentimentBucket struct {
	positive int
	neutral  int
	negative int
}

// SentimentTrends aggregates the last six months of the manager's
// authored feedback. The window floor is the first day of the current
// month minus 150 days, so the oldest bucket can be a partial month.
func (h *DashboardHandler) SentimentTrends(c echo.Context) error {
	u, err := h.lookupUser(c, "email")
	if err != nil {
		return err
	}
	if u.Role != models.RoleManager {
		return echo.NewHTTPError(http.StatusForbidden, "Only managers can view sentiment trends")
	}

	now := time.Now().UTC()
	startDate := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, -150)

	rows, err := models.FeedbackAuthoredBy(h.DB, u.Email)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to list feedback")
	}

	buckets := make(map[string]*sentimentBucket)
	for i := range rows {
		if rows[i].CreatedAt == nil || rows[i].CreatedAt.Before(startDate) {
			continue
		}

		label := rows[i].CreatedAt.Format("2006-01")
		bucket := buckets[label]
		if bucket == nil {
			bucket = &sentimentBucket{}
			buckets[label] = bucket
		}

		switch rows[i].SentimentOrNeutral() {
		case models.SentimentPositive:
			bucket.positive++
		case models.SentimentNegative:
			bucket.negative++
		default:
			bucket.neutral++
		}
	}

	labels := make([]string, 0, len(buckets))
	for label := range buckets {
		labels = append(labels, label)
	}
	sort.Strings(labels)

	resp := SentimentTrendsResponse{
		Labels:   labels,
		Positive: make([]int, 0, len(labels)),
		Neutral:  make([]int, 0, len(labels)),
		Negative: make([]int, 0, len(labels)),
	}
	for _, label := range labels {
		resp.Positive = append(resp.Positive, buckets[label].positive)
		resp.Neutral = append(resp.Neutral, buckets[label].neutral)
		resp.Negative = append(resp.Negative, buckets[label].negative)
	}

	return c.JSON(http.StatusOK, resp)
}

type TeamMember struct {
	Name     string      `json:"name"`
	Email    string      `json:"email"`
	Role     models.Role `json:"role"`
	IsActive bool        `json:"is_active"`
}

// TeamMembers lists the caller's teammates, caller excluded. Presence
// comes from the per-user pub/sub channel when Redis is configured and
// reads false otherwise.
func (h *DashboardHandler) TeamMembers(c echo.Context) error {
	u, err := h.lookupUser(c, "user_email")
	if err != nil {
		return err
	}

	teammates, err := models.Teammates(h.DB, u.Email)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to resolve team")
	}
	if teammates == nil {
		return echo.NewHTTPError(http.StatusNotFound, "User is not part of any team")
	}

	members := make([]TeamMember, 0, len(teammates))
	for i := range teammates {
		member := TeamMember{
			Name:  teammates[i].Name,
			Email: teammates[i].Email,
			Role:  teammates[i].Role,
		}

		if h.Redis != nil {
			channels, err := h.Redis.PubSubChannels(c.Request().Context(),
				common.GetUserChannel(teammates[i].ID)).Result()
			if err == nil && len(channels) > 0 {
				member.IsActive = true
			}
		}

		members = append(members, member)
	}

	return c.JSON(http.StatusOK, members)
}

type TimelineEntry struct {
	ID        string            `json:"id"`
	Creator   string            `json:"creator"`
	UpdatedAt *time.Time        `json:"updated_at"`
	Sentiment *models.Sentiment `json:"sentiment"`
	Preview   string            `json:"preview"`
}

// FeedbackTimeline returns the employee's received history, newest
// edit first. Only submitted and acknowledged items qualify.
func (h *DashboardHandler) FeedbackTimeline(c echo.Context) error {
	u, err := h.lookupUser(c, "email")
	if err != nil {
		return err
	}
	if u.Role == models.RoleManager {
		return echo.NewHTTPError(http.StatusBadRequest, "Managers can't access feedback timeline")
	}

	var rows []models.Feedback
	if err := h.DB.Where("employee_email = ? AND status IN ?",
		u.Email, []models.FeedbackStatus{models.StatusSubmitted, models.StatusAcknowledged}).
		Order("updated_at DESC").Find(&rows).Error; err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to list feedback")
	}

	emails := make([]string, 0, len(rows))
	for i := range rows {
		emails = append(emails, rows[i].CreatedByEmail)
	}
	users, err := models.GetUsersByEmails(h.DB, emails)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to resolve users")
	}

	entries := make([]TimelineEntry, 0, len(rows))
	for i := range rows {
		creator := displayName(users, rows[i].CreatedByEmail, "Unknown")
		if rows[i].IsAnon {
			creator = "Anonymous"
		}

		entries = append(entries, TimelineEntry{
			ID:        rows[i].ID,
			Creator:   creator,
			UpdatedAt: rows[i].UpdatedAt,
			Sentiment: rows[i].Sentiment,
			Preview:   previewText(rows[i].Strengths),
		})
	}

	return c.JSON(http.StatusOK, entries)
}

type AnalyticsRow struct {
	ID           string                `json:"id"`
	EmployeeName string                `json:"employee_name"`
	Sentiment    *models.Sentiment     `json:"sentiment"`
	Status       models.FeedbackStatus `json:"status"`
	Tags         []string              `json:"tags"`
	CreatedAt    *time.Time            `json:"created_at"`
}

// AllAnalytics returns one row per item the manager authored, with
// subjects resolved through the team roster.
func (h *DashboardHandler) AllAnalytics(c echo.Context) error {
	u, err := h.lookupUser(c, "user_email")
	if err != nil {
		return err
	}
	if u.Role != models.RoleManager {
		return echo.NewHTTPError(http.StatusForbidden, "User is not a manager")
	}

	rows, err := models.FeedbackAuthoredBy(h.DB, u.Email)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to list feedback")
	}

	teammates, err := models.Teammates(h.DB, u.Email)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to resolve team")
	}

	names := make(map[string]models.User, len(teammates))
	for i := range teammates {
		names[teammates[i].Email] = teammates[i]
	}

	analytics := make([]AnalyticsRow, 0, len(rows))
	for i := range rows {
		analytics = append(analytics, AnalyticsRow{
			ID:           rows[i].ID,
			EmployeeName: displayName(names, rows[i].EmployeeEmail, "Unknown"),
			Sentiment:    rows[i].Sentiment,
			Status:       rows[i].Status,
			Tags:         rows[i].Tags,
			CreatedAt:    rows[i].CreatedAt,
		})
	}

	return c.JSON(http.StatusOK, analytics)
}
