package handlers_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/gommon/log"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"feedback-backend/internal/config"
	"feedback-backend/internal/models"
	"feedback-backend/internal/server"
)

// setupTestServer creates a test server with SQLite in-memory and no
// Redis. Each test gets its own named in-memory database so state
// never leaks between tests in the same process.
func setupTestServer(t *testing.T) (*server.Server, func()) {
	cfg := &config.Config{}
	cfg.Server.Port = "8080"
	cfg.Server.Host = "localhost"
	cfg.Database.DSN = fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	cfg.Database.RedisURI = ""
	cfg.Resend.DefaultSender = "test@example.com"

	srv := server.New(cfg)
	srv.Echo.Logger.SetLevel(log.ERROR)

	err := srv.Initialize()
	require.NoError(t, err)

	cleanup := func() {
		if srv.DB != nil {
			sqlDB, _ := srv.DB.DB()
			if sqlDB != nil {
				sqlDB.Close()
			}
		}
	}

	return srv, cleanup
}

// openTestDB opens a bare SQLite in-memory database for tests that
// call handlers directly instead of going through the router.
func openTestDB(t *testing.T) *gorm.DB {
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{TranslateError: true, Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)

	err = db.AutoMigrate(&models.User{}, &models.Team{}, &models.Feedback{})
	require.NoError(t, err)

	return db
}

func createTestUser(t *testing.T, db *gorm.DB, name, email string, role models.Role) *models.User {
	user := &models.User{
		Name:     name,
		Email:    email,
		Password: "password123",
		Role:     role,
	}

	err := db.Create(user).Error
	require.NoError(t, err)

	return user
}

func createTestTeam(t *testing.T, db *gorm.DB, managerEmail string, memberEmails ...string) *models.Team {
	team := &models.Team{
		ManagerEmail: managerEmail,
		MemberEmails: memberEmails,
	}
	err := db.Create(team).Error
	require.NoError(t, err)
	return team
}

// seedTeam creates the standard fixture: one manager and two
// employees, all on the same team.
func seedTeam(t *testing.T, db *gorm.DB) (manager, alice, bob *models.User) {
	manager = createTestUser(t, db, "Mia Manager", "mia@corp.test", models.RoleManager)
	alice = createTestUser(t, db, "Alice Adams", "alice@corp.test", models.RoleEmployee)
	bob = createTestUser(t, db, "Bob Brown", "bob@corp.test", models.RoleEmployee)
	createTestTeam(t, db, manager.Email, alice.Email, bob.Email)
	return manager, alice, bob
}

func doRequest(t *testing.T, e *echo.Echo, method, path string, body interface{}) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()

	e.ServeHTTP(rec, req)
	return rec
}

func decodeJSON(t *testing.T, rec *httptest.ResponseRecorder, out interface{}) {
	err := json.Unmarshal(rec.Body.Bytes(), out)
	require.NoError(t, err)
}
