package main

import (
	"errors"
	"strings"
	"time"

	"comercio-backend/internal/admin"
	"comercio-backend/internal/audit"
	"comercio-backend/internal/auth"
	"comercio-backend/internal/cashbox"
	"comercio-backend/internal/config"
	"comercio-backend/internal/currency"
	"comercio-backend/internal/database"
	"comercio-backend/internal/models"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

func main() {
	cfg := config.Load()
	config.SetLogLevel(cfg.LogLevel)
	log := config.Logger()

	database.Init(cfg)

	cashboxSvc := cashbox.NewService(database.DB, cfg.ReconcileEpsilon)
	currencySvc := currency.NewService(database.DB)

	app := fiber.New(fiber.Config{
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			// Errores del dominio de caja: código según el taxón, con el
			// campo ofensivo para que el cliente pueda actuar
			var domainErr *cashbox.Error
			if errors.As(err, &domainErr) {
				body := fiber.Map{
					"error": domainErr.Message,
					"kind":  domainErr.Kind,
				}
				if domainErr.Field != "" {
					body["field"] = domainErr.Field
				}
				return c.Status(cashbox.HTTPStatus(domainErr)).JSON(body)
			}

			if e, ok := err.(*fiber.Error); ok {
				return c.Status(e.Code).JSON(fiber.Map{
					"error": e.Message,
				})
			}

			// Falla de infraestructura: nunca se disfraza de error de dominio
			log.WithField("request_id", c.Locals("request_id")).Errorf("Error inesperado: %v", err)
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "Error inesperado del servidor",
			})
		},
	})

	// CORS: orígenes separados por coma
	corsOrigins := strings.Split(cfg.CORSOrigins, ",")
	for i := range corsOrigins {
		corsOrigins[i] = strings.TrimSpace(corsOrigins[i])
	}
	app.Use(cors.New(cors.Config{
		AllowOrigins: strings.Join(corsOrigins, ","),
		AllowHeaders: "Origin, Content-Type, Accept, Authorization",
		AllowMethods: "GET,POST,PUT,DELETE,OPTIONS",
	}))

	// Request id + log de acceso
	app.Use(func(c *fiber.Ctx) error {
		reqID := uuid.NewString()
		c.Locals("request_id", reqID)
		c.Set("X-Request-Id", reqID)

		start := time.Now()
		err := c.Next()
		log.WithFields(logrus.Fields{
			"request_id": reqID,
			"method":     c.Method(),
			"path":       c.Path(),
			"status":     c.Response().StatusCode(),
			"latency_ms": time.Since(start).Milliseconds(),
		}).Info("request")
		return err
	})

	app.Get("/healthz", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	api := app.Group("/api")

	// Auth pública
	api.Post("/auth/register-admin", auth.RegisterAdminHandler(cfg))
	api.Post("/auth/login", auth.LoginHandler(cfg))

	// Protegido
	protected := api.Group("")
	protected.Use(auth.JWTMiddleware(cfg))

	protected.Get("/auth/me", auth.MeHandler())

	// Administración del tenant
	adminRoutes := protected.Group("/admin")
	adminRoutes.Use(auth.RequireRole(models.RoleAdmin))

	adminRoutes.Post("/branches", admin.CreateBranchHandler())
	adminRoutes.Get("/branches", admin.ListBranchesHandler())
	adminRoutes.Get("/branches/:id", admin.GetBranchHandler())
	adminRoutes.Put("/branches/:id", admin.UpdateBranchHandler())
	adminRoutes.Delete("/branches/:id", admin.DeleteBranchHandler())
	adminRoutes.Post("/branches/:id/operators", admin.CreateBranchOperatorHandler())
	adminRoutes.Get("/branches/:id/operators", admin.ListBranchOperatorsHandler())
	adminRoutes.Post("/price-lists", currency.CreatePriceListHandler())

	// Caja registradora: sesiones y movimientos
	protected.Post("/cash-sessions", cashbox.OpenSessionHandler(cashboxSvc))
	protected.Get("/cash-sessions", cashbox.ListSessionsHandler(cashboxSvc))
	protected.Get("/cash-sessions/:id", cashbox.GetSessionHandler(cashboxSvc))
	protected.Get("/cash-sessions/:id/summary", cashbox.SessionSummaryHandler(cashboxSvc))
	protected.Post("/cash-sessions/:id/movements", cashbox.RecordMovementHandler(cashboxSvc))
	protected.Post("/cash-sessions/:id/close", cashbox.CloseSessionHandler(cashboxSvc))

	// Listas de precios y conversión de monedas
	protected.Get("/price-lists", currency.ListPriceListsHandler())
	protected.Post("/price-lists/:id/convert", currency.ConvertHandler(currencySvc))

	// Rastro de auditoría
	protected.Get("/audit-logs", audit.ListAuditLogsHandler())

	log.Infof("Servidor escuchando en el puerto %s", cfg.HTTPPort)
	if err := app.Listen(":" + cfg.HTTPPort); err != nil {
		log.Fatal(err)
	}
}
