package routes

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/notewell/notewell/internal/config"
	"github.com/notewell/notewell/internal/handlers"
	"github.com/notewell/notewell/internal/middleware"
)

func Setup(
	app *fiber.App,
	cfg *config.Config,
	authHandler *handlers.AuthHandler,
	noteHandler *handlers.NoteHandler,
	shareHandler *handlers.ShareHandler,
	billingHandler *handlers.BillingHandler,
	webhookHandler *handlers.WebhookHandler,
	setupHandler *handlers.SetupHandler,
	healthHandler *handlers.HealthHandler,
) {
	// General rate limiter: 60 req/min per IP
	app.Use(limiter.New(limiter.Config{
		Max:               60,
		Expiration:        1 * time.Minute,
		LimiterMiddleware: limiter.SlidingWindow{},
		KeyGenerator:      func(c *fiber.Ctx) string { return c.IP() },
	}))

	app.Get("/health", healthHandler.Check)

	// Auth — public, with a stricter rate limit: 10 req/min per IP
	auth := app.Group("/auth")
	auth.Use(limiter.New(limiter.Config{
		Max:               10,
		Expiration:        1 * time.Minute,
		LimiterMiddleware: limiter.SlidingWindow{},
		KeyGenerator:      func(c *fiber.Ctx) string { return c.IP() },
	}))
	auth.Post("/register", authHandler.Register)
	auth.Post("/login", authHandler.Login)
	auth.Post("/refresh", authHandler.Refresh)

	app.Post("/auth/logout", middleware.JWTProtected(cfg), authHandler.Logout)
	app.Delete("/auth/account", middleware.JWTProtected(cfg), authHandler.DeleteAccount)

	// Notes CRUD (JWT required)
	notes := app.Group("/notes", middleware.JWTProtected(cfg))
	notes.Get("/", noteHandler.List)
	notes.Post("/", noteHandler.Create)
	notes.Put("/:id", noteHandler.Update)
	notes.Delete("/:id", noteHandler.Delete)

	// Sharing: toggling requires a session; reading by token is public since
	// the token itself is the capability.
	app.Post("/share", middleware.JWTProtected(cfg), shareHandler.Enable)
	app.Delete("/share", middleware.JWTProtected(cfg), shareHandler.Disable)
	app.Get("/shared/:shareId", shareHandler.GetShared)

	// Billing (JWT required)
	stripeGroup := app.Group("/stripe", middleware.JWTProtected(cfg))
	stripeGroup.Post("/checkout", billingHandler.Checkout)
	stripeGroup.Post("/create-checkout", billingHandler.CreateCheckout)
	stripeGroup.Post("/portal", billingHandler.Portal)
	stripeGroup.Post("/cancel-subscription", billingHandler.CancelSubscription)
	app.Get("/subscription", middleware.JWTProtected(cfg), billingHandler.GetSubscription)

	// Webhooks — signature-verified, no JWT
	app.Post("/webhooks/stripe", webhookHandler.HandleStripe)

	// Setup (JWT required)
	app.Get("/setup/fix-schema", middleware.JWTProtected(cfg), setupHandler.FixSchema)
}
