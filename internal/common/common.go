package common

import (
	"feedback-backend/internal/config"
	"feedback-backend/internal/email"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// ServerState holds everything handlers need to serve a request.
// Redis and EmailClient may be nil when the feature is unconfigured.
type ServerState struct {
	Echo        *echo.Echo
	Config      *config.Config
	DB          *gorm.DB
	Redis       *redis.Client
	EmailClient email.EmailClient
}

// GetUserChannel returns the pub/sub channel name a connected client
// subscribes to; its existence doubles as a presence signal.
func GetUserChannel(userID string) string {
	return "channel-user-" + userID
}
