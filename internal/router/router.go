package router

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/anonto42/reviewinn/backend/internal/auth"
	"github.com/anonto42/reviewinn/backend/internal/category"
	"github.com/anonto42/reviewinn/backend/internal/engagement"
	"github.com/anonto42/reviewinn/backend/internal/entities"
	"github.com/anonto42/reviewinn/backend/internal/handlers"
	"github.com/anonto42/reviewinn/backend/internal/mailer"
	"github.com/anonto42/reviewinn/backend/internal/messaging"
	"github.com/anonto42/reviewinn/backend/internal/middleware"
	"github.com/anonto42/reviewinn/backend/internal/notification"
	"github.com/anonto42/reviewinn/backend/internal/ratelimit"
	"github.com/anonto42/reviewinn/backend/internal/realtime"
	"github.com/anonto42/reviewinn/backend/internal/repositories"
	"github.com/anonto42/reviewinn/backend/internal/reviews"
	"github.com/anonto42/reviewinn/backend/internal/social"
	"github.com/anonto42/reviewinn/backend/internal/verification"
	"github.com/anonto42/reviewinn/backend/internal/viewtracking"
	"github.com/anonto42/reviewinn/backend/pkg/config"
	"github.com/anonto42/reviewinn/backend/pkg/logging"
	"github.com/anonto42/reviewinn/backend/validators"
)

// App holds the HTTP server and the long-running services the process
// supervisor must run next to it.
type App struct {
	Echo          *echo.Echo
	Hub           *realtime.Hub
	Bus           *notification.Bus
	Notifications *notification.Service
	Counters      *engagement.Service
	Limiter       *ratelimit.Limiter
	Codes         *verification.Service
}

// New wires repositories, services and routes. identity may be nil when
// federated login is not configured.
func New(ctx context.Context, cfg *config.Config, db *config.DB, identity auth.IdentityVerifier) (*App, error) {
	log := logging.With("router")
	pg := db.Postgres

	// --- Initialize Repositories ---
	tx := repositories.NewTxManager(pg)
	userRepo := repositories.NewPostgresUserRepository(pg)
	categoryRepo := repositories.NewPostgresCategoryRepository(pg)
	entityRepo := repositories.NewPostgresEntityRepository(pg)
	reviewRepo := repositories.NewPostgresReviewRepository(pg)
	commentRepo := repositories.NewPostgresCommentRepository(pg)
	reactionRepo := repositories.NewPostgresReactionRepository(pg)
	viewRepo := repositories.NewPostgresViewRepository(pg)
	followRepo := repositories.NewPostgresFollowRepository(pg)
	circleRepo := repositories.NewPostgresCircleRepository(pg)
	conversationRepo := repositories.NewPostgresConversationRepository(pg)
	notificationRepo := repositories.NewPostgresNotificationRepository(pg)
	engagementRepo := repositories.NewPostgresEngagementRepository(pg)
	statsRepo := repositories.NewPostgresStatsRepository(pg)

	var analytics repositories.AnalyticsRepository
	if db.Mongo != nil {
		mongoAnalytics := repositories.NewMongoAnalyticsRepository(db.Mongo.Database(cfg.Database.MongoDatabase))
		if err := mongoAnalytics.EnsureIndexes(ctx); err != nil {
			log.Warn().Err(err).Msg("failed to create analytics indexes")
		}
		analytics = mongoAnalytics
	}

	// --- Services ---
	var mail mailer.Mailer = mailer.NewLogMailer()
	if cfg.SMTP.Enabled() {
		mail = mailer.NewSMTPMailer(mailer.SMTPConfig{
			Host:     cfg.SMTP.Host,
			Port:     cfg.SMTP.Port,
			User:     cfg.SMTP.User,
			Password: cfg.SMTP.Password,
			From:     cfg.SMTP.From,
		})
	}

	limiter := ratelimit.New()
	tokens := auth.NewTokenManager(auth.TokenConfig{
		Secret:     cfg.JWT.Secret,
		Issuer:     cfg.JWT.Issuer,
		Audience:   cfg.JWT.Audience,
		AccessTTL:  cfg.JWT.AccessTokenTTL,
		RefreshTTL: cfg.JWT.RefreshTokenTTL,
		ResetTTL:   cfg.JWT.ResetTokenTTL,
	}, nil)
	authSvc := auth.NewService(userRepo, tokens, limiter, mail, identity, auth.Config{
		BcryptCost: cfg.JWT.BcryptCost,
		ResetURL:   strings.TrimRight(cfg.Server.FrontendURL, "/") + "/reset-password",
	})
	codeSvc := verification.NewService(verification.NewCodeStore(), limiter, mail, authSvc)

	notifSvc := notification.NewService(notificationRepo, userRepo)
	bus, err := notification.NewBus(notifSvc, notification.DefaultBusConfig())
	if err != nil {
		return nil, err
	}

	var suggester category.Suggester
	if cfg.AI.Enabled() {
		suggester = category.NewAIClient(category.AIConfig{
			APIKey:  cfg.AI.APIKey,
			BaseURL: cfg.AI.BaseURL,
			Model:   cfg.AI.Model,
			Timeout: cfg.AI.Timeout,
		})
	}
	categorySvc := category.NewService(categoryRepo, tx, category.NewReadCache(5*time.Minute), suggester)

	counters := engagement.NewService(reviewRepo, commentRepo, entityRepo, userRepo, engagementRepo, tx)
	reviewSvc := reviews.NewService(tx, reviewRepo, commentRepo, reactionRepo, entityRepo, userRepo, counters, bus)
	entitySvc := entities.NewService(tx, entityRepo, categorySvc, bus)
	socialSvc := social.NewService(tx, followRepo, circleRepo, userRepo, bus)
	viewSvc := viewtracking.NewService(tx, viewRepo, reviewRepo, entityRepo, counters, analytics, viewtracking.DefaultPolicy())
	messenger := messaging.NewService(tx, conversationRepo, userRepo)

	hub := realtime.NewHub(messenger, func(token string) (uint, error) {
		claims, err := authSvc.VerifyToken(token, auth.TokenAccess, "")
		if err != nil {
			return 0, err
		}
		return claims.UserID()
	}, cfg.Server.CORSOrigins)
	notifSvc.SetPusher(hub)

	// --- Echo ---
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = validators.NewValidator()
	e.HTTPErrorHandler = handlers.ErrorHandler

	config.SetupMiddleware(e, cfg.Server)
	e.Use(middleware.RequestContext())
	e.Use(middleware.SecurityHeaders())
	e.Use(middleware.RequestLogger())

	requireAuth := middleware.JWTAuth(authSvc)
	optionalAuth := middleware.OptionalJWTAuth(authSvc)
	requireAdmin := middleware.RequireAdmin()

	// Health check and metrics - always accessible
	e.GET("/", func(c echo.Context) error {
		return handlers.OK(c, echo.Map{"service": "reviewinn-api", "status": "running"})
	})
	e.GET("/health", handlers.NewHealthHandler(db.HealthChecks()).Health)
	if cfg.MetricsEnabled {
		e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
	}

	handlers.NewWSHandler(hub).RegisterWSRoutes(e)

	api := e.Group("/api/v1")
	public := api.Group("", optionalAuth)
	protected := api.Group("", requireAuth)
	admin := api.Group("", requireAuth, requireAdmin)

	// --- Authentication ---
	handlers.NewAuthHandler(authSvc, codeSvc, requireAuth).RegisterAuthRoutes(api.Group("/auth"))

	handlers.NewUserHandler(userRepo, socialSvc, reviewSvc).RegisterUserRoutes(public, protected)
	handlers.NewEntityHandler(entitySvc, reviewSvc, viewSvc).RegisterEntityRoutes(public, protected, admin)
	handlers.NewReviewHandler(reviewSvc).RegisterReviewRoutes(public, protected)
	handlers.NewCategoryHandler(categorySvc).RegisterCategoryRoutes(
		api.Group("/unified-categories", optionalAuth),
		api.Group("/unified-categories", requireAuth),
		api.Group("/unified-categories", requireAuth, requireAdmin),
	)

	homepage := handlers.NewHomepageHandler(reviewSvc, entitySvc, categorySvc, statsRepo)
	homepage.RegisterHomepageRoutes(api.Group("/homepage"))
	homepage.RegisterHomepageRoutes(e.Group("/api/homepage"))

	handlers.NewViewTrackingHandler(viewSvc).RegisterViewRoutes(
		api.Group("/view-tracking", optionalAuth),
		api.Group("/view-tracking", requireAuth),
	)
	handlers.NewNotificationHandler(notifSvc).RegisterNotificationRoutes(
		api.Group("/enterprise-notifications", requireAuth),
		api.Group("/enterprise-notifications", requireAuth, requireAdmin),
	)
	handlers.NewMessengerHandler(messenger, hub).RegisterMessengerRoutes(api.Group("/messenger", requireAuth))
	handlers.NewCircleHandler(socialSvc).RegisterCircleRoutes(api.Group("/circles", requireAuth))
	handlers.NewAdminHandler(counters).RegisterAdminRoutes(api.Group("/admin", requireAuth, requireAdmin))

	// Groups with middleware register catch-all routes that would run their
	// auth chain for unknown paths; unknown paths are plain 404s.
	notFound := func(c echo.Context) error {
		return echo.NewHTTPError(http.StatusNotFound, "route not found")
	}
	e.RouteNotFound("/*", notFound)
	for _, prefix := range []string{
		"/api/v1",
		"/api/v1/unified-categories",
		"/api/v1/view-tracking",
		"/api/v1/enterprise-notifications",
		"/api/v1/messenger",
		"/api/v1/circles",
		"/api/v1/admin",
	} {
		e.RouteNotFound(prefix, notFound)
		e.RouteNotFound(prefix+"/*", notFound)
	}

	log.Info().Int("routes", len(e.Routes())).Msg("routes configured")
	return &App{
		Echo:          e,
		Hub:           hub,
		Bus:           bus,
		Notifications: notifSvc,
		Counters:      counters,
		Limiter:       limiter,
		Codes:         codeSvc,
	}, nil
}
