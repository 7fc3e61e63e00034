package server

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"

	"feedback-backend/internal/common"
	"feedback-backend/internal/config"
	"feedback-backend/internal/email"
	"feedback-backend/internal/handlers"
	"feedback-backend/internal/models"

	"github.com/go-playground/validator"
	"github.com/labstack/echo-contrib/echoprometheus"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/labstack/gommon/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	resend "github.com/resend/resend-go/v2"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// CustomValidator Source: https://echo.labstack.com/docs/request#validate-data
type CustomValidator struct {
	validator *validator.Validate
}

func (cv *CustomValidator) Validate(i interface{}) error {
	if err := cv.validator.Struct(i); err != nil {
		// Optionally, you could return the error to give each route more control over the status code
		return err
	}
	return nil
}

type SentryLogger struct {
	echo.Logger
}

func (l *SentryLogger) Error(i ...interface{}) {
	// Capture in Sentry
	if err, ok := i[0].(error); ok {
		handlers.CaptureError(err)
	} else {
		handlers.CaptureError(fmt.Errorf("%v", i...))
	}
	// Call original logger
	l.Logger.Error(i...)
}

type Server struct {
	common.ServerState
}

func New(cfg *config.Config) *Server {
	e := echo.New()
	e.Validator = &CustomValidator{validator: validator.New()}
	e.Logger = &SentryLogger{Logger: e.Logger}
	e.Logger.SetLevel(log.DEBUG)

	return &Server{
		common.ServerState{
			Echo:   e,
			Config: cfg,
		},
	}
}

func (s *Server) Initialize() error {
	s.setupDatabase()

	s.setupRedis()

	s.setupEmailClient()

	s.setupRoutes()

	s.runMigrations()

	s.setupMetrics()

	// Keep last to avoid Recover middleware and panic if something goes wrong on init
	s.setupMiddleware()

	return nil
}

func (s *Server) setupDatabase() {
	dsn := s.Config.Database.DSN
	if dsn == "" {
		s.Echo.Logger.Fatal("DATABASE_DSN environment variable is required")
	}

	var db *gorm.DB
	var err error

	// Detect database driver from DSN
	// SQLite DSNs typically start with "file:"
	if strings.HasPrefix(dsn, "file:") {
		db, err = gorm.Open(sqlite.Open(dsn), &gorm.Config{TranslateError: true, Logger: logger.Default.LogMode(logger.Silent)})
	} else {
		db, err = gorm.Open(postgres.Open(dsn), &gorm.Config{TranslateError: true, Logger: logger.Default.LogMode(logger.Silent)})
	}

	if err != nil {
		s.Echo.Logger.Fatal(err)
	}
	s.DB = db
}

func (s *Server) setupRedis() {
	url := s.Config.Database.RedisURI

	// Make Redis optional - if URI is empty, skip Redis setup
	if url == "" {
		s.Echo.Logger.Warn("REDIS_URI not configured, presence features will be disabled")
		s.Redis = nil
		return
	}

	opts, err := redis.ParseURL(url)
	if err != nil {
		s.Echo.Logger.Warnf("Failed to parse Redis URL: %v, presence features will be disabled", err)
		s.Redis = nil
		return
	}

	s.Redis = redis.NewClient(opts)

	// Validate proper connection, but don't panic on failure
	ctx := context.Background()
	result := s.Redis.Ping(ctx)
	if result.Err() != nil {
		s.Echo.Logger.Warnf("Redis connection failed: %v, presence features will be disabled", result.Err())
		s.Redis = nil
		return
	}
}

func (s *Server) setupEmailClient() {
	apiKey := s.Config.Resend.APIKey
	if apiKey == "" {
		s.Echo.Logger.Warn("RESEND_API_KEY not configured, email notifications will be disabled")
		return
	}

	resendClient := resend.NewClient(apiKey)
	s.EmailClient = email.NewResendEmailClient(resendClient,
		s.Config.Resend.DefaultSender,
		s.Echo.Logger)
}

func (s *Server) runMigrations() {
	err := s.DB.AutoMigrate(
		&models.User{},
		&models.Team{},
		&models.Feedback{},
	)
	if err != nil {
		s.Echo.Logger.Fatal(err)
	}
}

func (s *Server) setupMiddleware() {
	s.Echo.Use(middleware.CORS())
	s.Echo.Use(middleware.Recover())
	// Try to add prometheus middleware, but don't panic if already registered (e.g., in tests)
	// This allows multiple test runs without panicking
	defer func() {
		if r := recover(); r != nil {
			if err, ok := r.(error); ok && err.Error() == "duplicate metrics collector registration attempted" {
				s.Echo.Logger.Warn("Prometheus middleware already registered, skipping")
			} else {
				panic(r)
			}
		}
	}()
	s.Echo.Use(echoprometheus.NewMiddleware("feedback_backend"))
}

func (s *Server) setupMetrics() {
	// Only register Redis metrics if Redis is available
	if s.Redis == nil {
		return
	}

	prometheus.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Subsystem: "redis",
			Name:      "connected_clients",
			Help:      "The number of clients currently connected to Redis",
		},
		func() float64 {
			ctx := context.Background()
			connectedClientsRaw := s.Redis.InfoMap(ctx).Item("Clients", "connected_clients")

			connectedClients, err := strconv.ParseFloat(connectedClientsRaw, 64)
			if err != nil {
				return math.NaN()
			}

			return connectedClients
		},
	))
}

func (s *Server) setupRoutes() {
	handlers.SetupSentry(s.Echo, s.Config)

	users := handlers.NewUserHandler(s.DB, s.Config)
	feedback := handlers.NewFeedbackHandler(s.DB, s.Config)
	dashboard := handlers.NewDashboardHandler(s.DB, s.Config)

	// Set the shared clients directly
	users.EmailClient = s.EmailClient
	feedback.EmailClient = s.EmailClient
	dashboard.Redis = s.Redis

	s.Echo.GET("/health", func(c echo.Context) error {
		return c.String(200, "OK")
	})
	s.Echo.GET("/metrics", echoprometheus.NewHandler())

	userGroup := s.Echo.Group("/user")
	userGroup.POST("/register", users.Register)
	userGroup.POST("/bulk-register", users.BulkRegister)
	userGroup.POST("/login", users.Login)
	userGroup.GET("/all", users.ListUsers)

	teamGroup := s.Echo.Group("/team")
	teamGroup.POST("/create", users.CreateTeam)

	feedbackGroup := s.Echo.Group("/feedback")
	feedbackGroup.POST("/create", feedback.CreateFeedback)
	feedbackGroup.POST("/request", feedback.RequestFeedback)
	feedbackGroup.POST("/draft", feedback.SaveDraft)
	feedbackGroup.GET("/get-all", feedback.ListFeedback)
	feedbackGroup.PUT("/:id/update", feedback.UpdateFeedback)
	feedbackGroup.POST("/:id/acknowledge", feedback.AcknowledgeFeedback)
	feedbackGroup.GET("/:id", feedback.GetFeedback)

	dashboardGroup := s.Echo.Group("/dashboard")
	dashboardGroup.GET("/feedback-count", dashboard.FeedbackCount)
	dashboardGroup.GET("/sentiment-trends", dashboard.SentimentTrends)
	dashboardGroup.GET("/team-members", dashboard.TeamMembers)
	dashboardGroup.GET("/feedback-timeline", dashboard.FeedbackTimeline)
	dashboardGroup.GET("/all-analytics", dashboard.AllAnalytics)
}

func (s *Server) Start() error {
	serverURL := s.Config.Server.Host + ":" + s.Config.Server.Port
	return s.Echo.Start(serverURL)
}
