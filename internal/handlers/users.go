package handlers

import (
	"errors"
	"fmt"
	"net/http"

	"feedback-backend/internal/common"
	"feedback-backend/internal/config"
	"feedback-backend/internal/models"
	"feedback-backend/internal/notifications"

	"github.com/labstack/echo/v4"
	"github.com/lindell/go-burner-email-providers/burner"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"gorm.io/gorm"
)

type UserHandler struct {
	common.ServerState
}

func NewUserHandler(db *gorm.DB, cfg *config.Config) *UserHandler {
	return &UserHandler{
		ServerState: common.ServerState{
			DB:     db,
			Config: cfg,
		},
	}
}

type RegisterRequest struct {
	Name     string `json:"name" validate:"required"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8"`
	Role     string `json:"role" validate:"required,oneof=admin manager employee"`
}

// Register creates a user with an immutable role. Returns the public
// projection; credentials never leave the model.
func (h *UserHandler) Register(c echo.Context) error {
	c.Logger().Info("Received registration request")

	req := new(RegisterRequest)
	if err := c.Bind(req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := c.Validate(req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	user, err := h.registerUser(req)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusCreated, user.Public())
}

// BulkRegister registers a list of users sequentially, failing the
// whole call on the first invalid entry.
func (h *UserHandler) BulkRegister(c echo.Context) error {
	var reqs []RegisterRequest
	if err := c.Bind(&reqs); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	collated := make([]models.PublicUser, 0, len(reqs))
	for i := range reqs {
		if err := c.Validate(&reqs[i]); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		user, err := h.registerUser(&reqs[i])
		if err != nil {
			return err
		}
		collated = append(collated, user.Public())
	}

	return c.JSON(http.StatusCreated, collated)
}

func (h *UserHandler) registerUser(req *RegisterRequest) (*models.User, error) {
	if burner.IsBurnerEmail(req.Email) {
		return nil, echo.NewHTTPError(http.StatusBadRequest, "Temporary email addresses are not allowed")
	}

	role, err := models.ParseRole(req.Role)
	if err != nil {
		return nil, echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	existing, err := models.GetUserByEmail(h.DB, req.Email)
	if err != nil {
		return nil, echo.NewHTTPError(http.StatusInternalServerError, "Failed to look up user")
	}
	if existing != nil {
		return nil, echo.NewHTTPError(http.StatusBadRequest, "User already exists")
	}

	u := &models.User{
		Name:     cases.Title(language.English).String(req.Name),
		Email:    req.Email,
		Password: req.Password,
		Role:     role,
	}

	result := h.DB.Create(u)
	if errors.Is(result.Error, gorm.ErrDuplicatedKey) {
		return nil, echo.NewHTTPError(http.StatusBadRequest, "User already exists")
	}
	if result.Error != nil {
		return nil, echo.NewHTTPError(http.StatusInternalServerError, "Failed to create user")
	}

	if h.EmailClient != nil {
		h.EmailClient.SendWelcomeEmail(u)
	}

	_ = notifications.SendTelegramNotification(fmt.Sprintf("New sign-up: %s", u.ID), h.Config)

	return u, nil
}

type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// Login verifies credentials and returns the public user. No session
// or token is issued; callers identify themselves by email afterwards.
func (h *UserHandler) Login(c echo.Context) error {
	c.Logger().Info("Received login request")

	req := new(LoginRequest)
	if err := c.Bind(req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := c.Validate(req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	u, err := models.GetUserByEmail(h.DB, req.Email)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to look up user")
	}
	if u == nil {
		return echo.NewHTTPError(http.StatusBadRequest, "User does not exist, please register first")
	}

	if !u.CheckPassword(req.Password) {
		return echo.NewHTTPError(http.StatusUnauthorized, "Invalid credentials")
	}

	_ = notifications.SendTelegramNotification(fmt.Sprintf("New sign-in: %s", u.ID), h.Config)

	return c.JSON(http.StatusOK, u.Public())
}

// ListUsers returns the public projection of every registered user.
func (h *UserHandler) ListUsers(c echo.Context) error {
	var users []models.User
	if err := h.DB.Find(&users).Error; err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to list users")
	}

	public := make([]models.PublicUser, 0, len(users))
	for i := range users {
		public = append(public, users[i].Public())
	}

	return c.JSON(http.StatusOK, public)
}
