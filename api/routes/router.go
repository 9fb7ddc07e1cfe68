package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/torquehub/torquehub-backend/api/controllers"
	jobcontrollers "github.com/torquehub/torquehub-backend/api/controllers/jobs"
	ordercontrollers "github.com/torquehub/torquehub-backend/api/controllers/orders"
	productcontrollers "github.com/torquehub/torquehub-backend/api/controllers/products"
	walletcontrollers "github.com/torquehub/torquehub-backend/api/controllers/wallet"
	webhookcontrollers "github.com/torquehub/torquehub-backend/api/controllers/webhooks"
	"github.com/torquehub/torquehub-backend/api/middleware"
	"github.com/torquehub/torquehub-backend/internal/actors"
	"github.com/torquehub/torquehub-backend/internal/dispatch"
	"github.com/torquehub/torquehub-backend/internal/jobs"
	"github.com/torquehub/torquehub-backend/internal/ledger"
	"github.com/torquehub/torquehub-backend/internal/notifications"
	"github.com/torquehub/torquehub-backend/internal/orders"
	"github.com/torquehub/torquehub-backend/internal/payments"
	"github.com/torquehub/torquehub-backend/internal/products"
	"github.com/torquehub/torquehub-backend/pkg/config"
	"github.com/torquehub/torquehub-backend/pkg/db"
	"github.com/torquehub/torquehub-backend/pkg/enums"
	"github.com/torquehub/torquehub-backend/pkg/logger"
	"github.com/torquehub/torquehub-backend/pkg/redis"
)

// Deps carries everything the HTTP surface needs.
type Deps struct {
	Config        *config.Config
	Logger        *logger.Logger
	DB            db.Pinger
	Redis         *redis.Client
	MetricsReg    *prometheus.Registry
	Actors        actors.Service
	Jobs          jobs.Service
	Orders        orders.Service
	Wallet        ledger.Service
	Payments      payments.Service
	Products      products.Service
	Dispatch      dispatch.Service
	Notifications notifications.Service
}

func NewRouter(deps Deps) http.Handler {
	cfg := deps.Config
	logg := deps.Logger

	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, deps.DB, deps.Redis))
	})

	if deps.MetricsReg != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(deps.MetricsReg, promhttp.HandlerOpts{}))
	}

	// Gateway deliveries authenticate via HMAC signature, not bearer tokens.
	r.Route("/api/v1/webhooks", func(r chi.Router) {
		r.Post("/gateway", webhookcontrollers.Gateway(deps.Payments, logg))
	})

	loginPolicy := middleware.NewAuthRateLimitPolicy(
		"login",
		cfg.AuthRateLimit.LoginWindow,
		cfg.AuthRateLimit.LoginIPLimit,
		cfg.AuthRateLimit.LoginEmailLimit,
	)
	r.Route("/api/v1/auth", func(r chi.Router) {
		r.With(middleware.AuthRateLimit(loginPolicy, deps.Redis, logg)).Post("/login", controllers.AuthLogin(deps.Actors, logg))
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))
		r.Use(middleware.Idempotency(deps.Redis, logg))

		customer := middleware.RequireRole(logg, enums.ActorRoleCustomer)
		technician := middleware.RequireRole(logg, enums.ActorRoleTechnician)
		supplier := middleware.RequireRole(logg, enums.ActorRoleSupplier)
		buyer := middleware.RequireRole(logg, enums.ActorRoleCustomer, enums.ActorRoleTechnician)
		admin := middleware.RequireRole(logg, enums.ActorRoleAdmin)

		r.Route("/jobs", func(r chi.Router) {
			r.With(customer).Post("/", jobcontrollers.Create(deps.Jobs, logg))
			r.Get("/", jobcontrollers.List(deps.Jobs, logg))
			r.With(technician).Get("/feed", jobcontrollers.Feed(deps.Dispatch, logg))
			r.Get("/{jobId}", jobcontrollers.Detail(deps.Jobs, logg))
			r.With(technician).Post("/{jobId}/accept", jobcontrollers.Accept(deps.Jobs, logg))
			r.With(technician).Post("/{jobId}/diagnosis", jobcontrollers.BeginDiagnosis(deps.Jobs, logg))
			r.With(technician).Post("/{jobId}/quote", jobcontrollers.SubmitQuote(deps.Jobs, logg))
			r.With(customer).Post("/{jobId}/quote/decision", jobcontrollers.RespondQuote(deps.Jobs, logg))
			r.With(technician).Post("/{jobId}/bill", jobcontrollers.SubmitBill(deps.Jobs, logg))
			r.With(customer).Post("/{jobId}/bill/decision", jobcontrollers.RespondBill(deps.Jobs, logg))
			r.With(technician).Post("/{jobId}/delivery", jobcontrollers.DeliverVehicle(deps.Jobs, logg))
			r.With(technician).Post("/{jobId}/cash-confirm", jobcontrollers.ConfirmCashPayment(deps.Jobs, logg))
			r.Post("/{jobId}/cancel", jobcontrollers.Cancel(deps.Jobs, logg))
			r.With(customer).Post("/{jobId}/rating", jobcontrollers.Rate(deps.Jobs, logg))
		})

		r.Route("/orders", func(r chi.Router) {
			r.With(buyer).Post("/", ordercontrollers.Create(deps.Orders, logg))
			r.Get("/", ordercontrollers.List(deps.Orders, logg))
			r.With(supplier).Get("/inquiries", ordercontrollers.ListInquiries(deps.Orders, logg))
			r.Get("/{orderId}", ordercontrollers.Detail(deps.Orders, logg))
			r.With(supplier).Post("/{orderId}/quotation", ordercontrollers.SubmitQuotation(deps.Orders, logg))
			r.With(buyer).Post("/{orderId}/decision", ordercontrollers.RespondQuotation(deps.Orders, logg))
			r.With(supplier).Post("/{orderId}/fulfillment", ordercontrollers.UpdateFulfillment(deps.Orders, logg))
			r.With(buyer).Post("/{orderId}/pay", ordercontrollers.Pay(deps.Orders, logg))
			r.With(supplier).Post("/{orderId}/cash-confirm", ordercontrollers.ConfirmCashPayment(deps.Orders, logg))
			r.Post("/{orderId}/cancel", ordercontrollers.Cancel(deps.Orders, logg))
		})

		r.Route("/products", func(r chi.Router) {
			r.Use(supplier)
			r.Post("/", productcontrollers.Create(deps.Products, logg))
			r.Get("/", productcontrollers.ListMine(deps.Products, logg))
			r.Patch("/{productId}", productcontrollers.Update(deps.Products, logg))
			r.Delete("/{productId}", productcontrollers.Deactivate(deps.Products, logg))
		})

		r.Route("/wallet", func(r chi.Router) {
			r.Get("/balance", walletcontrollers.Balance(deps.Wallet, logg))
			r.Get("/transactions", walletcontrollers.History(deps.Wallet, logg))
			r.Post("/topup", walletcontrollers.Topup(deps.Payments, logg))
			r.Post("/withdraw", walletcontrollers.Withdraw(deps.Payments, logg))
			r.With(admin).Post("/withdrawals/{transactionId}/complete", walletcontrollers.CompleteWithdrawal(deps.Payments, logg))
		})

		r.Route("/payments", func(r chi.Router) {
			r.Post("/intent", walletcontrollers.CreateIntent(deps.Payments, logg))
			r.Post("/confirm", walletcontrollers.ConfirmPayment(deps.Payments, logg))
		})

		r.Route("/notifications", func(r chi.Router) {
			r.Get("/", controllers.ListNotifications(deps.Notifications, logg))
			r.Post("/{notificationId}/read", controllers.MarkNotificationRead(deps.Notifications, logg))
			r.Post("/read-all", controllers.MarkAllNotificationsRead(deps.Notifications, logg))
		})
	})

	return r
}
