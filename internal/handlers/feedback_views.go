package handlers

import (
	"net/http"
	"time"

	"feedback-backend/internal/models"

	"github.com/labstack/echo/v4"
)

const previewRunes = 60

// previewText truncates body text for list rows. Truncation counts
// runes, not bytes, so multi-byte names never get split mid-character.
func previewText(s string) string {
	runes := []rune(s)
	if len(runes) <= previewRunes {
		return s
	}
	return string(runes[:previewRunes]) + "..."
}

// displayName resolves an email through the pre-fetched user map,
// falling back to a marker when the account no longer exists.
func displayName(users map[string]models.User, email, fallback string) string {
	if u, ok := users[email]; ok {
		return u.Name
	}
	return fallback
}

// FeedbackListItem is the role-scoped list row. Author identity is
// already masked when the row reaches the wire.
type FeedbackListItem struct {
	ID             string                `json:"id"`
	CreatedBy      string                `json:"created_by"`
	CreatedByEmail string                `json:"created_by_email"`
	EmployeeName   string                `json:"employee_name"`
	EmployeeEmail  string                `json:"employee_email"`
	Sentiment      *models.Sentiment     `json:"sentiment"`
	Tags           []string              `json:"tags"`
	IsAnon         bool                  `json:"is_anon"`
	Status         models.FeedbackStatus `json:"status"`
	Preview        string                `json:"preview"`
	RequestedAt    *time.Time            `json:"requested_at"`
	CreatedAt      *time.Time            `json:"created_at"`
	UpdatedAt      *time.Time            `json:"updated_at"`
	AcknowledgedAt *time.Time            `json:"acknowledged_at"`
}

func listItemFor(fb *models.Feedback, viewerEmail string, users map[string]models.User) FeedbackListItem {
	item := FeedbackListItem{
		ID:             fb.ID,
		CreatedBy:      displayName(users, fb.CreatedByEmail, "Invalid"),
		CreatedByEmail: fb.CreatedByEmail,
		EmployeeName:   displayName(users, fb.EmployeeEmail, "Invalid"),
		EmployeeEmail:  fb.EmployeeEmail,
		Sentiment:      fb.Sentiment,
		Tags:           fb.Tags,
		IsAnon:         fb.IsAnon,
		Status:         fb.Status,
		RequestedAt:    fb.RequestedAt,
		CreatedAt:      fb.CreatedAt,
		UpdatedAt:      fb.UpdatedAt,
		AcknowledgedAt: fb.AcknowledgedAt,
	}

	if fb.IsAnon && viewerEmail != fb.CreatedByEmail {
		item.CreatedBy = "Anonymous"
		item.CreatedByEmail = "Anonymous"
	}

	if fb.Status != models.StatusRequested {
		item.Preview = previewText(fb.Strengths)
	}

	return item
}

// ListFeedback returns the viewer's role-scoped slice of the feedback
// collection. Managers see what they authored; employees see
// everything about or by them minus other people's unfinished drafts
// about them; admins have no feedback surface.
func (h *FeedbackHandler) ListFeedback(c echo.Context) error {
	email := c.QueryParam("email")
	if email == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "Missing email parameter")
	}

	viewer, err := models.GetUserByEmail(h.DB, email)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to look up user")
	}
	if viewer == nil {
		return echo.NewHTTPError(http.StatusNotFound, "User not found")
	}

	var rows []models.Feedback
	switch viewer.Role {
	case models.RoleManager:
		rows, err = models.FeedbackAuthoredBy(h.DB, viewer.Email)
	case models.RoleEmployee:
		rows, err = models.FeedbackAboutOrBy(h.DB, viewer.Email)
	default:
		return echo.NewHTTPError(http.StatusForbidden, "Admins have no feedback inbox")
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to list feedback")
	}

	// Drafts someone else is still writing about the viewer stay
	// invisible until submission.
	if viewer.Role == models.RoleEmployee {
		filtered := rows[:0]
		for i := range rows {
			if rows[i].Status == models.StatusDraft && rows[i].CreatedByEmail != viewer.Email {
				continue
			}
			filtered = append(filtered, rows[i])
		}
		rows = filtered
	}

	emails := make([]string, 0, len(rows)*2)
	for i := range rows {
		emails = append(emails, rows[i].CreatedByEmail, rows[i].EmployeeEmail)
	}
	users, err := models.GetUsersByEmails(h.DB, emails)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to resolve users")
	}

	items := make([]FeedbackListItem, 0, len(rows))
	for i := range rows {
		items = append(items, listItemFor(&rows[i], viewer.Email, users))
	}

	return c.JSON(http.StatusOK, items)
}

// GetFeedback returns the full record to one of its two parties. The
// author's email is replaced with the anonymity marker when the
// subject of an anonymous item is the one asking.
func (h *FeedbackHandler) GetFeedback(c echo.Context) error {
	feedbackID := c.Param("id")

	requestorEmail := c.QueryParam("requestor_email")
	if requestorEmail == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "Missing requestor_email parameter")
	}

	requestor, err := models.GetUserByEmail(h.DB, requestorEmail)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to look up user")
	}
	if requestor == nil {
		return echo.NewHTTPError(http.StatusNotFound, "User not found")
	}

	fb, err := models.GetFeedbackByID(h.DB, feedbackID)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to look up feedback")
	}
	if fb == nil {
		return echo.NewHTTPError(http.StatusNotFound, "Feedback not found")
	}

	isCreator := requestor.Email == fb.CreatedByEmail
	isSubject := requestor.Email == fb.EmployeeEmail
	if !isCreator && !isSubject {
		return echo.NewHTTPError(http.StatusForbidden, "Access denied")
	}

	if fb.IsAnon && isSubject && !isCreator {
		fb.CreatedByEmail = "Anonymous"
	}

	return c.JSON(http.StatusOK, fb)
}
