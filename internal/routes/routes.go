package routes

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/FeliciaLa/ExpertA-sub000/internal/chat"
	"github.com/FeliciaLa/ExpertA-sub000/internal/config"
	"github.com/FeliciaLa/ExpertA-sub000/internal/identity"
	"github.com/FeliciaLa/ExpertA-sub000/internal/middleware"
	"github.com/FeliciaLa/ExpertA-sub000/internal/notification"
	"github.com/FeliciaLa/ExpertA-sub000/internal/payment"
	"github.com/FeliciaLa/ExpertA-sub000/internal/quota"
	"github.com/FeliciaLa/ExpertA-sub000/internal/session"
	"github.com/FeliciaLa/ExpertA-sub000/internal/token"
	"github.com/FeliciaLa/ExpertA-sub000/internal/upstream"
)

// Deps aggregates shared dependencies required to wire routes.
type Deps struct {
	Cfg    config.Config
	DB     *pgxpool.Pool
	Cache  *redis.Client
	Logger *slog.Logger
}

// Setup configures middlewares and all application routes.
func Setup(app *fiber.App, d Deps) error {
	// Enforce Redis presence outside of dev; in-process session state does
	// not survive restarts and must not back a deployed gateway.
	if !d.Cfg.IsDev() && d.Cache == nil {
		return fmt.Errorf("redis is required when APP_ENV=%s", d.Cfg.AppEnv)
	}

	// Middlewares
	app.Use(recover.New())
	app.Use(middleware.RequestID())
	app.Use(logger.New(logger.Config{
		Format:     "[${time}] ${status} -  ${latency} ${method} ${path}\n",
		TimeFormat: "15:04:05",
		TimeZone:   "Local",
	}))
	app.Use(middleware.Audit(d.Logger))

	// Health
	RegisterHealthRoutes(app, d)

	// Upstream collaborators share one transport type; credentials travel
	// per request, never on the client.
	identityAPI := identity.NewClient(upstream.New(d.Cfg.IdentityURL, d.Cfg.UpstreamTimeout))
	chatAPI := chat.NewClient(upstream.New(d.Cfg.ChatURL, d.Cfg.UpstreamTimeout))
	paymentAPI := payment.NewClient(upstream.New(d.Cfg.PaymentURL, d.Cfg.UpstreamTimeout))

	var sessions token.Store
	if d.Cache != nil {
		sessions = token.NewRedisStore(d.Cache, d.Cfg.SessionTTL)
	} else {
		sessions = token.NewMemoryStore(d.Cfg.SessionTTL)
	}

	var receipts payment.Repository
	if d.DB != nil {
		receipts = payment.NewPostgresRepository(d.DB)
	} else {
		receipts = payment.NewMemoryRepository()
	}

	notifier := notification.NewLoggerNotifier(d.Logger)
	paymentSvc := payment.NewService(paymentAPI, receipts, notifier, d.Logger)

	mgr := session.NewManager(session.ManagerConfig{
		Store:     sessions,
		Identity:  identityAPI,
		Meter:     quota.NewMeter(),
		Chat:      chatAPI,
		Payments:  paymentSvc,
		Logger:    d.Logger,
		FreeTurns: d.Cfg.FreeTurns,
		PaidTurns: d.Cfg.PaidTurns,
	})
	handler := session.NewHandler(mgr)

	// API routes
	api := app.Group("/api/v1")
	api.Get("/ping", func(c *fiber.Ctx) error {
		reqID, _ := c.Locals("X-Request-ID").(string)
		return c.Status(http.StatusOK).JSON(fiber.Map{
			"status":     "ok",
			"request_id": reqID,
			"timestamp":  time.Now().UTC().Format(time.RFC3339Nano),
		})
	})

	signInLimiter := middleware.SignInRateLimit(d.Cache, d.Cfg.SignInPerMinute)
	RegisterSessionRoutes(api, handler, signInLimiter)
	RegisterChatRoutes(api, handler)

	var confirmGuard fiber.Handler
	if d.Cache != nil {
		confirmGuard = middleware.Idempotency(d.Cache, d.Cfg.IdempotencyTTL, d.Logger)
	}
	RegisterPaymentRoutes(api, handler, confirmGuard)

	return nil
}
