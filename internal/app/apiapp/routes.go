package apiapp

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/restodesk/backend/internal/config"
	"github.com/restodesk/backend/internal/infra/metrics"
	authsvc "github.com/restodesk/backend/internal/services/auth"
	authzsvc "github.com/restodesk/backend/internal/services/authz"
	paysvc "github.com/restodesk/backend/internal/services/paymentrequests"
	refundsvc "github.com/restodesk/backend/internal/services/refunds"
	subssvc "github.com/restodesk/backend/internal/services/subscriptions"
	tiersvc "github.com/restodesk/backend/internal/services/tierlimits"
	transfersvc "github.com/restodesk/backend/internal/services/transfers"
	"github.com/restodesk/backend/internal/services/uploads"
	"github.com/restodesk/backend/internal/transport/http/handlers"
)

type Dependencies struct {
	JWTManager          *authsvc.JWTManager
	AuthzService        *authzsvc.Service
	SubscriptionService *subssvc.Service
	TierLimitService    *tiersvc.Service
	PaymentService      *paysvc.Service
	RefundService       *refundsvc.Service
	TransferService     *transfersvc.Service
	ProofStorage        *uploads.S3Storage
	Metrics             *metrics.Metrics
	Logger              *zap.Logger
	Config              config.Config
}

func RegisterRoutes(r chi.Router, deps Dependencies) {
	healthHandler := handlers.NewHealthHandler()
	subscriptionHandler := handlers.NewSubscriptionHandler(deps.SubscriptionService, deps.AuthzService)
	tierHandler := handlers.NewTierHandler(deps.TierLimitService, deps.AuthzService)
	paymentHandler := handlers.NewPaymentRequestHandler(deps.PaymentService, deps.ProofStorage)
	adminPaymentHandler := handlers.NewAdminPaymentHandler(deps.PaymentService, deps.ProofStorage)
	transferHandler := handlers.NewTransferHandler(deps.TransferService)
	refundHandler := handlers.NewRefundHandler(deps.RefundService)

	authMW := AuthMiddleware(deps.JWTManager, deps.Logger)

	r.Get("/healthz", healthHandler.Get)
	if deps.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", deps.Metrics.Handler())
	}

	r.Get("/tiers", tierHandler.List)

	r.With(authMW).Get("/subscriptions/store/{storeID}", subscriptionHandler.Get)

	r.With(authMW).Post("/payment-requests", paymentHandler.Create)
	r.With(authMW).Post("/payment-requests/{requestID}/upload-proof", paymentHandler.UploadProof)
	r.With(authMW).Get("/payment-requests/{requestID}", paymentHandler.Get)
	r.With(authMW).Get("/payment-requests/store/{storeID}", paymentHandler.ListByStore)

	r.With(authMW).Post("/ownership-transfers", transferHandler.Initiate)
	r.With(authMW).Get("/ownership-transfers/{transferID}", transferHandler.Get)
	r.With(authMW).Post("/ownership-transfers/{transferID}/verify-otp", transferHandler.Verify)
	r.With(authMW).Delete("/ownership-transfers/{transferID}", transferHandler.Cancel)

	r.With(authMW).Post("/refund-requests", refundHandler.Create)
	r.With(authMW).Get("/refund-requests/store/{storeID}", refundHandler.ListByStore)

	r.With(authMW).Get("/stores/{storeID}/tiers", tierHandler.Usage)
	r.With(authMW).Get("/stores/{storeID}/tiers/usage", tierHandler.Usage)
	r.With(authMW).Get("/stores/{storeID}/tiers/check", tierHandler.CheckLimit)

	r.Route("/admin", func(r chi.Router) {
		r.Use(authMW)
		r.Get("/payment-requests", adminPaymentHandler.Queue)
		r.Get("/payment-requests/metrics/dashboard", adminPaymentHandler.Metrics)
		r.Post("/payment-requests/{requestID}/verify", adminPaymentHandler.Verify)
		r.Post("/payment-requests/{requestID}/reject", adminPaymentHandler.Reject)

		r.Post("/subscriptions/{storeID}/suspend", subscriptionHandler.Suspend)
		r.Post("/subscriptions/{storeID}/reinstate", subscriptionHandler.Reinstate)
		r.Post("/subscriptions/{storeID}/downgrade", subscriptionHandler.Downgrade)

		r.Post("/refund-requests/{refundID}/approve", refundHandler.Approve)
		r.Post("/refund-requests/{refundID}/reject", refundHandler.Reject)
		r.Post("/refund-requests/{refundID}/process", refundHandler.Process)
	})
}
