package handlers_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/labstack/echo/v4"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"feedback-backend/internal/common"
	"feedback-backend/internal/config"
	"feedback-backend/internal/handlers"
	"feedback-backend/internal/models"
)

func createFeedbackRow(t *testing.T, db *gorm.DB, creator, employee *models.User, status models.FeedbackStatus, sentiment models.Sentiment, createdAt, updatedAt *time.Time, isAnon bool) *models.Feedback {
	fb := &models.Feedback{
		CreatedByEmail: creator.Email,
		CreatedByRole:  creator.Role,
		EmployeeEmail:  employee.Email,
		Strengths:      "Solid work throughout the quarter",
		Sentiment:      &sentiment,
		IsAnon:         isAnon,
		Status:         status,
		CreatedAt:      createdAt,
		UpdatedAt:      updatedAt,
	}
	require.NoError(t, db.Create(fb).Error)
	return fb
}

func timePtr(t time.Time) *time.Time { return &t }

func TestFeedbackCount(t *testing.T) {
	srv, cleanup := setupTestServer(t)
	defer cleanup()

	manager, alice, _ := seedTeam(t, srv.DB)

	now := time.Now().UTC()
	createFeedbackRow(t, srv.DB, manager, alice, models.StatusSubmitted, models.SentimentPositive, timePtr(now), timePtr(now), false)
	createFeedbackRow(t, srv.DB, manager, alice, models.StatusDraft, models.SentimentNeutral, timePtr(now), timePtr(now), false)

	rec := doRequest(t, srv.Echo, http.MethodGet, "/dashboard/feedback-count?email="+manager.Email, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var response map[string]interface{}
	decodeJSON(t, rec, &response)
	assert.Equal(t, "Feedbacks Given", response["label"])
	assert.EqualValues(t, 2, response["count"])

	rec = doRequest(t, srv.Echo, http.MethodGet, "/dashboard/feedback-count?email="+alice.Email, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	decodeJSON(t, rec, &response)
	assert.Equal(t, "Feedbacks Received", response["label"])
	assert.EqualValues(t, 2, response["count"])
}

func TestFeedbackCount_AdminInvalidRole(t *testing.T) {
	srv, cleanup := setupTestServer(t)
	defer cleanup()

	admin := createTestUser(t, srv.DB, "Ada Admin", "ada@corp.test", models.RoleAdmin)

	rec := doRequest(t, srv.Echo, http.MethodGet, "/dashboard/feedback-count?email="+admin.Email, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSentimentTrends(t *testing.T) {
	srv, cleanup := setupTestServer(t)
	defer cleanup()

	manager, alice, _ := seedTeam(t, srv.DB)

	now := time.Now().UTC()
	twoMonthsAgo := now.AddDate(0, -2, 0)
	eightMonthsAgo := now.AddDate(0, -8, 0)

	createFeedbackRow(t, srv.DB, manager, alice, models.StatusSubmitted, models.SentimentPositive, timePtr(now), timePtr(now), false)
	createFeedbackRow(t, srv.DB, manager, alice, models.StatusSubmitted, models.SentimentNegative, timePtr(twoMonthsAgo), timePtr(twoMonthsAgo), false)
	// Outside the six month window, must not appear.
	createFeedbackRow(t, srv.DB, manager, alice, models.StatusSubmitted, models.SentimentPositive, timePtr(eightMonthsAgo), timePtr(eightMonthsAgo), false)
	// A requested row has no created_at and is skipped.
	fbReq := &models.Feedback{
		CreatedByEmail: manager.Email,
		CreatedByRole:  manager.Role,
		EmployeeEmail:  alice.Email,
		Status:         models.StatusRequested,
		RequestedAt:    timePtr(now),
	}
	require.NoError(t, srv.DB.Create(fbReq).Error)

	rec := doRequest(t, srv.Echo, http.MethodGet, "/dashboard/sentiment-trends?email="+manager.Email, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var response struct {
		Labels   []string `json:"labels"`
		Positive []int    `json:"positive"`
		Neutral  []int    `json:"neutral"`
		Negative []int    `json:"negative"`
	}
	decodeJSON(t, rec, &response)

	require.Len(t, response.Labels, 2)
	assert.Equal(t, twoMonthsAgo.Format("2006-01"), response.Labels[0])
	assert.Equal(t, now.Format("2006-01"), response.Labels[1])
	assert.Equal(t, []int{0, 1}, response.Positive)
	assert.Equal(t, []int{0, 0}, response.Neutral)
	assert.Equal(t, []int{1, 0}, response.Negative)
}

func TestSentimentTrends_SixMonthDistribution(t *testing.T) {
	srv, cleanup := setupTestServer(t)
	defer cleanup()

	manager, alice, _ := seedTeam(t, srv.DB)

	now := time.Now().UTC()
	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	floor := monthStart.AddDate(0, 0, -150)

	// One record per month over the whole window. The oldest sits just
	// past the window floor, inside the partial oldest bucket.
	created := []time.Time{
		floor.Add(time.Hour),
		monthStart.AddDate(0, -4, 14),
		monthStart.AddDate(0, -3, 14),
		monthStart.AddDate(0, -2, 14),
		monthStart.AddDate(0, -1, 14),
		monthStart.AddDate(0, 0, 14),
	}
	sentiments := []models.Sentiment{
		models.SentimentPositive,
		models.SentimentNeutral,
		models.SentimentNegative,
		models.SentimentPositive,
		models.SentimentNeutral,
		models.SentimentNegative,
	}

	for i := range created {
		createFeedbackRow(t, srv.DB, manager, alice, models.StatusSubmitted, sentiments[i], timePtr(created[i]), timePtr(created[i]), false)
	}

	rec := doRequest(t, srv.Echo, http.MethodGet, "/dashboard/sentiment-trends?email="+manager.Email, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var response struct {
		Labels   []string `json:"labels"`
		Positive []int    `json:"positive"`
		Neutral  []int    `json:"neutral"`
		Negative []int    `json:"negative"`
	}
	decodeJSON(t, rec, &response)

	expected := make([]string, len(created))
	for i := range created {
		expected[i] = created[i].Format("2006-01")
	}
	assert.Equal(t, expected, response.Labels)
	assert.Equal(t, []int{1, 0, 0, 1, 0, 0}, response.Positive)
	assert.Equal(t, []int{0, 1, 0, 0, 1, 0}, response.Neutral)
	assert.Equal(t, []int{0, 0, 1, 0, 0, 1}, response.Negative)
}

func TestSentimentTrends_EmployeeForbidden(t *testing.T) {
	srv, cleanup := setupTestServer(t)
	defer cleanup()

	_, alice, _ := seedTeam(t, srv.DB)

	rec := doRequest(t, srv.Echo, http.MethodGet, "/dashboard/sentiment-trends?email="+alice.Email, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestFeedbackTimeline(t *testing.T) {
	srv, cleanup := setupTestServer(t)
	defer cleanup()

	manager, alice, bob := seedTeam(t, srv.DB)

	older := time.Now().UTC().Add(-2 * time.Hour)
	newer := time.Now().UTC()

	createFeedbackRow(t, srv.DB, manager, alice, models.StatusSubmitted, models.SentimentPositive, timePtr(older), timePtr(older), false)
	anon := createFeedbackRow(t, srv.DB, bob, alice, models.StatusAcknowledged, models.SentimentNeutral, timePtr(newer), timePtr(newer), true)
	// Drafts never show up in the timeline.
	createFeedbackRow(t, srv.DB, bob, alice, models.StatusDraft, models.SentimentNeutral, timePtr(newer), timePtr(newer), false)

	rec := doRequest(t, srv.Echo, http.MethodGet, "/dashboard/feedback-timeline?email="+alice.Email, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var entries []map[string]interface{}
	decodeJSON(t, rec, &entries)
	require.Len(t, entries, 2)
	assert.Equal(t, anon.ID, entries[0]["id"])
	assert.Equal(t, "Anonymous", entries[0]["creator"])
	assert.Equal(t, "Mia Manager", entries[1]["creator"])
}

func TestFeedbackTimeline_ManagerDenied(t *testing.T) {
	srv, cleanup := setupTestServer(t)
	defer cleanup()

	manager, _, _ := seedTeam(t, srv.DB)

	rec := doRequest(t, srv.Echo, http.MethodGet, "/dashboard/feedback-timeline?email="+manager.Email, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "Managers can't access feedback timeline")
}

func TestTeamMembers(t *testing.T) {
	srv, cleanup := setupTestServer(t)
	defer cleanup()

	_, alice, _ := seedTeam(t, srv.DB)

	rec := doRequest(t, srv.Echo, http.MethodGet, "/dashboard/team-members?user_email="+alice.Email, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var members []map[string]interface{}
	decodeJSON(t, rec, &members)
	require.Len(t, members, 2)
	for _, m := range members {
		assert.NotEqual(t, alice.Email, m["email"])
		assert.Equal(t, false, m["is_active"])
	}
}

func TestTeamMembers_NoTeam(t *testing.T) {
	srv, cleanup := setupTestServer(t)
	defer cleanup()

	loner := createTestUser(t, srv.DB, "Lee Loner", "lee@corp.test", models.RoleEmployee)

	rec := doRequest(t, srv.Echo, http.MethodGet, "/dashboard/team-members?user_email="+loner.Email, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "not part of any team")
}

func TestTeamMembers_Presence(t *testing.T) {
	db := openTestDB(t)
	_, alice, bob := seedTeam(t, db)

	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	defer client.Close()

	// A live subscription on Bob's channel marks him active.
	ctx := context.Background()
	sub := client.Subscribe(ctx, common.GetUserChannel(bob.ID))
	defer sub.Close()
	_, err := sub.Receive(ctx)
	require.NoError(t, err)

	cfg := &config.Config{}
	h := handlers.NewDashboardHandler(db, cfg)
	h.Redis = client

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/dashboard/team-members?user_email="+alice.Email, nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	require.NoError(t, h.TeamMembers(c))
	require.Equal(t, http.StatusOK, rec.Code)

	var members []map[string]interface{}
	decodeJSON(t, rec, &members)
	require.Len(t, members, 2)

	active := map[string]bool{}
	for _, m := range members {
		active[m["email"].(string)] = m["is_active"].(bool)
	}
	assert.True(t, active[bob.Email])
	assert.False(t, active["mia@corp.test"])
}

func TestAllAnalytics(t *testing.T) {
	srv, cleanup := setupTestServer(t)
	defer cleanup()

	manager, alice, _ := seedTeam(t, srv.DB)

	now := time.Now().UTC()
	createFeedbackRow(t, srv.DB, manager, alice, models.StatusSubmitted, models.SentimentPositive, timePtr(now), timePtr(now), false)

	// A row about an account that no longer resolves falls back to
	// the unknown marker instead of failing the whole view.
	ghost := &models.Feedback{
		CreatedByEmail: manager.Email,
		CreatedByRole:  manager.Role,
		EmployeeEmail:  "ghost@corp.test",
		Status:         models.StatusSubmitted,
		CreatedAt:      timePtr(now),
		UpdatedAt:      timePtr(now),
	}
	require.NoError(t, srv.DB.Create(ghost).Error)

	rec := doRequest(t, srv.Echo, http.MethodGet, "/dashboard/all-analytics?user_email="+manager.Email, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var rows []map[string]interface{}
	decodeJSON(t, rec, &rows)
	require.Len(t, rows, 2)

	names := map[string]bool{}
	for _, row := range rows {
		names[row["employee_name"].(string)] = true
	}
	assert.True(t, names["Alice Adams"])
	assert.True(t, names["Unknown"])
}

func TestAllAnalytics_EmployeeForbidden(t *testing.T) {
	srv, cleanup := setupTestServer(t)
	defer cleanup()

	_, alice, _ := seedTeam(t, srv.DB)

	rec := doRequest(t, srv.Echo, http.MethodGet, "/dashboard/all-analytics?user_email="+alice.Email, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Contains(t, rec.Body.String(), "User is not a manager")
}
