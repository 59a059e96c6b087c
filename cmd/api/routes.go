package main

import (
	"net/http"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/josh-kwaku/campus-wallet/internal/config"
	"github.com/josh-kwaku/campus-wallet/internal/domain"
	"github.com/josh-kwaku/campus-wallet/internal/handler"
	"github.com/josh-kwaku/campus-wallet/internal/lock"
	"github.com/josh-kwaku/campus-wallet/internal/middleware"
	"github.com/josh-kwaku/campus-wallet/internal/repository"
)

type routerDeps struct {
	cfg          *config.Config
	health       *handler.HealthHandler
	auth         *handler.AuthHandler
	users        *handler.UserHandler
	accounts     *handler.AccountHandler
	transfers    *handler.TransferHandler
	paymentCodes *handler.PaymentCodeHandler
	funding      *handler.FundingHandler
	transactions *handler.TransactionHandler
	webhooks     *handler.WebhookHandler
	idempotency  *repository.IdempotencyRepository
	inFlight     *lock.Locker
	metrics      http.Handler
}

func newRouter(d routerDeps) http.Handler {
	authenticated := middleware.Auth(d.cfg.JWTSecret)
	vendorOnly := middleware.RequireKind(domain.AccountKindVendor)
	idempotent := middleware.Idempotency(d.idempotency, d.inFlight)

	protected := func(h http.HandlerFunc) http.Handler {
		return authenticated(h)
	}
	// Money-moving endpoints also require an Idempotency-Key.
	mutating := func(h http.HandlerFunc) http.Handler {
		return authenticated(idempotent(h))
	}

	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", d.health.Liveness)
	mux.HandleFunc("GET /health/ready", d.health.Readiness)
	mux.Handle("GET /metrics", d.metrics)

	mux.HandleFunc("POST /api/v1/auth/login", d.auth.Login)
	mux.HandleFunc("POST /api/v1/users", d.users.Register)
	mux.Handle("GET /api/v1/users/{id}/account", protected(d.accounts.Get))
	mux.Handle("PUT /api/v1/users/{id}/account/pin", protected(d.accounts.SetPIN))

	mux.Handle("POST /api/v1/transfers", mutating(d.transfers.Initiate))
	mux.Handle("POST /api/v1/transfers/{reference}/authorize", mutating(d.transfers.Authorize))

	mux.Handle("POST /api/v1/payment-codes", mutating(d.paymentCodes.Generate))
	mux.Handle("GET /api/v1/payment-codes/{reference}", protected(d.paymentCodes.Image))
	mux.Handle("POST /api/v1/payment-codes/{reference}/redeem", authenticated(vendorOnly(http.HandlerFunc(d.paymentCodes.Redeem))))

	mux.Handle("POST /api/v1/topups/{kind}", mutating(d.funding.Topup))
	mux.Handle("POST /api/v1/withdrawals", mutating(d.funding.Withdraw))

	mux.Handle("GET /api/v1/transactions", protected(d.transactions.List))
	mux.Handle("GET /api/v1/transactions/{reference}", protected(d.transactions.Get))
	mux.Handle("POST /api/v1/transactions/{reference}/verify", protected(d.transactions.Verify))

	mux.HandleFunc("POST /api/v1/webhooks/gateway", d.webhooks.ReceiveGatewayWebhook)

	var h http.Handler = mux
	h = middleware.Recovery(h)
	h = middleware.Logging(h)
	h = middleware.Tracing(h)
	return otelhttp.NewHandler(h, "campus-wallet")
}
