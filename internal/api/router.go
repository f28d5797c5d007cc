package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/jmoiron/sqlx"
	"golang.org/x/time/rate"

	"github.com/erazemk/sweetshop/internal/auth"
	"github.com/erazemk/sweetshop/internal/imaging"
	"github.com/erazemk/sweetshop/internal/inventory"
)

// Options configures the API router. Zero values get usable defaults.
type Options struct {
	JWTSecret   string
	TokenTTL    time.Duration
	Revoker     auth.Revoker // nil: revocations kept in the database
	CORSOrigins []string
	RateLimit   rate.Limit // sign-up/sign-in requests per second per IP
	RateBurst   int
	Images      imaging.Options
	// Done stops background work such as limiter cleanup.
	Done <-chan struct{}
}

// NewRouter creates the API router with all endpoints registered.
func NewRouter(db *sqlx.DB, opts Options) http.Handler {
	if opts.Revoker == nil {
		opts.Revoker = auth.NewSQLRevoker(db)
	}
	if len(opts.CORSOrigins) == 0 {
		opts.CORSOrigins = []string{"*"}
	}
	if opts.RateLimit <= 0 {
		opts.RateLimit = 1
	}
	if opts.RateBurst <= 0 {
		opts.RateBurst = 10
	}

	engine := inventory.NewEngine(db)

	authHandler := &AuthHandler{DB: db, JWTSecret: opts.JWTSecret, TokenTTL: opts.TokenTTL, Revoker: opts.Revoker}
	sweetsHandler := &SweetsHandler{Engine: engine, Images: opts.Images}
	purchasesHandler := &PurchasesHandler{Engine: engine}
	rolesHandler := &RolesHandler{Gate: engine.Gate()}
	healthHandler := &HealthHandler{DB: db}

	authMW := AuthMiddleware(opts.JWTSecret, opts.Revoker)

	limiter := newIPLimiter(opts.RateLimit, opts.RateBurst)
	if opts.Done != nil {
		go limiter.run(opts.Done)
	}

	r := chi.NewRouter()
	r.Use(Recovery)
	r.Use(RequestID)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: opts.CORSOrigins,
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders: []string{"X-Request-ID"},
		MaxAge:         300,
	}))

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", healthHandler.Health)

		r.Route("/auth", func(r chi.Router) {
			r.With(limiter.middleware).Post("/signup", authHandler.Signup)
			r.With(limiter.middleware).Post("/signin", authHandler.Signin)
			r.With(authMW).Post("/logout", authHandler.Logout)
		})

		// Public catalog reads.
		r.Get("/sweets", sweetsHandler.List)
		r.Get("/sweets/{id}", sweetsHandler.Get)
		r.Get("/sweets/{id}/image", sweetsHandler.GetImage)

		r.Group(func(r chi.Router) {
			r.Use(authMW)

			r.Post("/sweets", sweetsHandler.Create)
			r.Put("/sweets/{id}", sweetsHandler.Update)
			r.Put("/sweets/{id}/image", sweetsHandler.UploadImage)
			r.Delete("/sweets/{id}", sweetsHandler.Delete)
			r.Post("/sweets/{id}/purchase", purchasesHandler.Purchase)
			r.Post("/sweets/{id}/restock", sweetsHandler.Restock)
			r.Get("/sweets/{id}/purchases", purchasesHandler.ListForSweet)
			r.Get("/purchases", purchasesHandler.ListMine)

			r.Get("/user/role", rolesHandler.Get)
			r.Post("/admin/promote", rolesHandler.Promote)
		})
	})

	return r
}
