package routes

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/sportedge/sportedge-backend/api/controllers"
	analyticscontrollers "github.com/sportedge/sportedge-backend/api/controllers/analytics"
	authcontrollers "github.com/sportedge/sportedge-backend/api/controllers/auth"
	cartcontrollers "github.com/sportedge/sportedge-backend/api/controllers/cart"
	catalogcontrollers "github.com/sportedge/sportedge-backend/api/controllers/catalog"
	ordercontrollers "github.com/sportedge/sportedge-backend/api/controllers/orders"
	productcontrollers "github.com/sportedge/sportedge-backend/api/controllers/products"
	usercontrollers "github.com/sportedge/sportedge-backend/api/controllers/users"
	"github.com/sportedge/sportedge-backend/api/middleware"
	"github.com/sportedge/sportedge-backend/internal/analytics/query"
	"github.com/sportedge/sportedge-backend/internal/auth"
	"github.com/sportedge/sportedge-backend/internal/cart"
	"github.com/sportedge/sportedge-backend/internal/catalog"
	"github.com/sportedge/sportedge-backend/internal/orders"
	"github.com/sportedge/sportedge-backend/internal/products"
	"github.com/sportedge/sportedge-backend/internal/users"
	"github.com/sportedge/sportedge-backend/pkg/auth/session"
	"github.com/sportedge/sportedge-backend/pkg/config"
	"github.com/sportedge/sportedge-backend/pkg/logger"
	"github.com/sportedge/sportedge-backend/pkg/metrics"
	pkgredis "github.com/sportedge/sportedge-backend/pkg/redis"
)

type redisStore interface {
	pkgredis.IdempotencyStore
	FixedWindowAllow(ctx context.Context, scope string, limit int64, window time.Duration) (bool, int64, error)
	Ping(ctx context.Context) error
}

// Dependencies is everything the HTTP surface needs. Nil services answer
// with INTERNAL_ERROR; a nil SalesReports answers DEPENDENCY_ERROR.
type Dependencies struct {
	Config   *config.Config
	Logger   *logger.Logger
	DB       controllers.Pinger
	Redis    redisStore
	Sessions session.AccessSessionChecker
	Gatherer prometheus.Gatherer
	HTTP     *metrics.HTTPMetrics

	Auth         auth.Service
	Users        users.Service
	Catalog      catalog.Service
	Products     products.Service
	Cart         cart.Service
	Orders       orders.Service
	SalesReports query.SalesService
}

func NewRouter(deps Dependencies) http.Handler {
	cfg := deps.Config
	logg := deps.Logger

	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.Metrics(deps.HTTP),
		middleware.CORS(cfg.App.CORSOrigins),
	)

	loginPolicy := middleware.LoginRateLimitPolicy(cfg.AuthRateLimit)
	registerPolicy := middleware.RegisterRateLimitPolicy(cfg.AuthRateLimit)

	readiness := map[string]controllers.Pinger{"db": deps.DB}
	if deps.Redis != nil {
		readiness["redis"] = deps.Redis
	}

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, readiness, logg))
	})
	if deps.Gatherer != nil {
		r.Method(http.MethodGet, "/metrics", metrics.Handler(deps.Gatherer))
	}

	catalogHandlers := catalogcontrollers.NewHandlers(deps.Catalog, logg)

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/auth", func(r chi.Router) {
			r.With(middleware.AuthRateLimit(registerPolicy, deps.Redis, logg)).Post("/register", authcontrollers.Register(deps.Auth, logg))
			r.With(middleware.AuthRateLimit(loginPolicy, deps.Redis, logg)).Post("/login", authcontrollers.Login(deps.Auth, logg))
			r.Post("/refresh", authcontrollers.Refresh(deps.Auth, logg))
			r.Post("/forgot-password", authcontrollers.ForgotPassword(deps.Auth, logg))
			r.Post("/reset-password", authcontrollers.ResetPassword(deps.Auth, logg))
			r.With(middleware.Auth(cfg.JWT, deps.Sessions, logg)).Post("/logout", authcontrollers.Logout(deps.Auth, logg))
		})

		// public catalog reads
		r.Get("/brands", catalogHandlers.ListBrands())
		r.Get("/brands/{brandId}", catalogHandlers.GetBrand())
		r.Get("/categories", catalogHandlers.ListCategories())
		r.Get("/categories/{categoryId}", catalogHandlers.GetCategory())
		r.Get("/genders", catalogHandlers.ListGenders())
		r.Get("/genders/{genderId}", catalogHandlers.GetGender())
		r.Get("/size-options", catalogHandlers.ListSizeOptions())
		r.Get("/size-options/{sizeOptionId}", catalogHandlers.GetSizeOption())
		r.Get("/products", productcontrollers.Search(deps.Products, logg))
		r.Get("/products/{productId}", productcontrollers.Get(deps.Products, logg))
		r.Get("/products/{productId}/variations", productcontrollers.ListVariations(deps.Products, logg))
		r.Get("/products/{productId}/images", productcontrollers.ListImages(deps.Products, logg))

		r.Group(func(r chi.Router) {
			r.Use(middleware.Auth(cfg.JWT, deps.Sessions, logg))
			r.Use(middleware.Idempotency(deps.Redis, cfg.Eventing.OrderIdempotencyTTL, logg))

			r.Route("/users/me", func(r chi.Router) {
				r.Get("/", usercontrollers.Me(deps.Users, logg))
				r.Put("/", usercontrollers.UpdateProfile(deps.Users, logg))
				r.Post("/password", usercontrollers.ChangePassword(deps.Users, logg))
			})

			r.Route("/cart", func(r chi.Router) {
				r.Get("/", cartcontrollers.Get(deps.Cart, logg))
				r.Delete("/", cartcontrollers.Clear(deps.Cart, logg))
				r.Post("/items", cartcontrollers.AddItem(deps.Cart, logg))
				r.Patch("/items/{variationId}", cartcontrollers.UpdateItem(deps.Cart, logg))
				r.Delete("/items/{variationId}", cartcontrollers.RemoveItem(deps.Cart, logg))
			})

			r.Route("/orders", func(r chi.Router) {
				r.Post("/", ordercontrollers.Place(deps.Orders, logg))
				r.Get("/", ordercontrollers.ListMine(deps.Orders, logg))
				r.Get("/{orderId}", ordercontrollers.Detail(deps.Orders, logg))
			})

			r.Group(func(r chi.Router) {
				r.Use(middleware.RequireAdmin(logg))
				mountCatalogWrites(r, catalogHandlers)
				mountProductWrites(r, deps.Products, logg)

				r.Route("/admin", func(r chi.Router) {
					r.Get("/orders", ordercontrollers.ListAll(deps.Orders, logg))
					r.Get("/users", usercontrollers.List(deps.Users, logg))
					r.Put("/users/{userId}/role", usercontrollers.SetRole(deps.Users, logg))
					r.Get("/analytics/sales", analyticscontrollers.SalesReport(deps.SalesReports, logg))
				})
			})
		})
	})

	return r
}

func mountCatalogWrites(r chi.Router, h *catalogcontrollers.Handlers) {
	r.Post("/brands", h.CreateBrand())
	r.Put("/brands/{brandId}", h.UpdateBrand())
	r.Delete("/brands/{brandId}", h.DeleteBrand())
	r.Post("/categories", h.CreateCategory())
	r.Put("/categories/{categoryId}", h.UpdateCategory())
	r.Delete("/categories/{categoryId}", h.DeleteCategory())
	r.Post("/genders", h.CreateGender())
	r.Put("/genders/{genderId}", h.UpdateGender())
	r.Delete("/genders/{genderId}", h.DeleteGender())
	r.Post("/size-options", h.CreateSizeOption())
	r.Put("/size-options/{sizeOptionId}", h.UpdateSizeOption())
	r.Delete("/size-options/{sizeOptionId}", h.DeleteSizeOption())
}

func mountProductWrites(r chi.Router, svc products.Service, logg *logger.Logger) {
	r.Post("/products", productcontrollers.Create(svc, logg))
	r.Put("/products/{productId}", productcontrollers.Update(svc, logg))
	r.Delete("/products/{productId}", productcontrollers.Delete(svc, logg))
	r.Put("/products/{productId}/variations/{variationId}/stock", productcontrollers.SetStock(svc, logg))
	r.Post("/products/{productId}/images", productcontrollers.AddImage(svc, logg))
	r.Delete("/products/{productId}/images/{imageId}", productcontrollers.DeleteImage(svc, logg))
}
