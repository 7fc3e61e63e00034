package handlers

import (
	"fmt"
	"net/http"

	"feedback-backend/internal/models"
	"feedback-backend/internal/notifications"

	"github.com/labstack/echo/v4"
	"gorm.io/gorm"
)

type TeamCreateRequest struct {
	ManagerEmail string   `json:"manager_email" validate:"required,email"`
	MemberEmails []string `json:"member_emails" validate:"required,dive,email"`
}

// CreateTeam is the single team mutation in the system: an admin
// creates a team once, naming one manager and a set of employee
// members. Each party must be teamless beforehand, which keeps the
// one-team-per-user invariant true by construction.
func (h *UserHandler) CreateTeam(c echo.Context) error {
	adminEmail := c.QueryParam("admin_email")
	if adminEmail == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "Missing admin_email parameter")
	}

	admin, err := models.GetUserByEmail(h.DB, adminEmail)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to look up user")
	}
	if admin == nil || admin.Role != models.RoleAdmin {
		return echo.NewHTTPError(http.StatusForbidden, "Only admins can create teams")
	}

	req := new(TeamCreateRequest)
	if err := c.Bind(req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := c.Validate(req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	manager, err := models.GetUserByEmail(h.DB, req.ManagerEmail)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to look up user")
	}
	if manager == nil || manager.Role != models.RoleManager {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid manager email")
	}

	for _, email := range req.MemberEmails {
		member, err := models.GetUserByEmail(h.DB, email)
		if err != nil {
			return echo.NewHTTPError(http.StatusInternalServerError, "Failed to look up user")
		}
		if member == nil || member.Role != models.RoleEmployee {
			return echo.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("Invalid member: %s", email))
		}
	}

	// No merge or split operations exist, so creation is the only
	// place membership exclusivity can be enforced.
	for _, email := range append([]string{req.ManagerEmail}, req.MemberEmails...) {
		existing, err := models.TeamForEmail(h.DB, email)
		if err != nil {
			return echo.NewHTTPError(http.StatusInternalServerError, "Failed to resolve team")
		}
		if existing != nil {
			return echo.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("User already belongs to a team: %s", email))
		}
	}

	team := models.Team{
		ManagerEmail: req.ManagerEmail,
		MemberEmails: req.MemberEmails,
	}

	if err := h.DB.Transaction(func(tx *gorm.DB) error {
		return tx.Create(&team).Error
	}); err != nil {
		c.Logger().Errorf("Failed to create team: %v", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to create team")
	}

	_ = notifications.SendTelegramNotification(
		fmt.Sprintf("Team %d created by %s with %d member(s)", team.ID, admin.ID, len(team.MemberEmails)), h.Config)

	return c.JSON(http.StatusOK, map[string]interface{}{
		"message": "Team created",
		"id":      team.ID,
	})
}
