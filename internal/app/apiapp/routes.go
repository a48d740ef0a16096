package apiapp

import (
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/contentgate/backend/internal/config"
	catalogsvc "github.com/contentgate/backend/internal/services/catalog"
	ledgersvc "github.com/contentgate/backend/internal/services/ledger"
	referralsvc "github.com/contentgate/backend/internal/services/referral"
	"github.com/contentgate/backend/internal/transport/http/handlers"
)

type Dependencies struct {
	CatalogService *catalogsvc.Service
	LedgerService  *ledgersvc.Service
	ReferralEngine *referralsvc.Engine
	Deliverer      handlers.Deliverer
	Logger         *zap.Logger
	Config         config.Config
}

func RegisterRoutes(r chi.Router, deps Dependencies) {
	healthHandler := handlers.NewHealthHandler()
	catalogHandler := handlers.NewCatalogHandler(deps.CatalogService)
	requestsHandler := handlers.NewRequestsHandler(deps.LedgerService)
	requestsHandler.AttachDeliverer(deps.Deliverer)
	referralHandler := handlers.NewReferralHandler(deps.ReferralEngine)

	adminMW := AdminAuthMiddleware(deps.Config.Admin, deps.Logger)

	r.Get("/healthz", healthHandler.Get)
	r.Route("/admin", func(r chi.Router) {
		r.Use(adminMW)
		r.Post("/catalog", catalogHandler.Upsert)
		r.Get("/catalog", catalogHandler.List)
		r.Get("/catalog/{id}", catalogHandler.Get)
		r.Post("/catalog/import", catalogHandler.Import)
		r.Get("/requests/pending", requestsHandler.Pending)
		r.Get("/requests/stats", requestsHandler.Stats)
		r.Get("/requests/{id}", requestsHandler.Get)
		r.Post("/requests/{id}/deliver", requestsHandler.Deliver)
		r.Post("/requests/{id}/refund", requestsHandler.Refund)
		r.Get("/referrals/{id}/stats", referralHandler.Stats)
	})
}
