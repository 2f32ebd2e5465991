// Package httptransport is the TPP-facing HTTP surface. Handlers delegate to
// the domain services; the only logic that lives here is id protection at
// the boundary and DTO mapping.
package httptransport

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"xs2acms/internal/crypto"
	"xs2acms/internal/platform/metrics"
)

// Handler bundles the domain services behind the router.
type Handler struct {
	consents       ConsentService
	payments       PaymentService
	authorisations AuthorisationService
	stopList       StopListService
	ids            *crypto.IdentifierService
	metrics        *metrics.Metrics
	logger         *slog.Logger
}

func NewHandler(
	consents ConsentService,
	payments PaymentService,
	authorisations AuthorisationService,
	stopList StopListService,
	ids *crypto.IdentifierService,
	m *metrics.Metrics,
	logger *slog.Logger,
) *Handler {
	return &Handler{
		consents:       consents,
		payments:       payments,
		authorisations: authorisations,
		stopList:       stopList,
		ids:            ids,
		metrics:        m,
		logger:         logger,
	}
}

// NewRouter wires the full endpoint surface. The TPP stop list guards every
// /api/v1 route; admin and operational endpoints bypass it.
func NewRouter(h *Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/health", h.handleHealth)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(h.stopListGuard)

		r.Route("/consents", func(r chi.Router) {
			r.Post("/", h.handleCreateConsent)
			r.Route("/{consentID}", func(r chi.Router) {
				r.Get("/", h.handleGetConsent)
				r.Delete("/", h.handleTerminateConsent)
				r.Post("/revoke", h.handleRevokeConsent)
				r.Post("/usage", h.handleRecordConsentUsage)
				r.Post("/authorisations", h.handleCreateConsentAuthorisation)
				r.Get("/authorisations", h.handleListConsentAuthorisations)
			})
		})

		r.Route("/payments", func(r chi.Router) {
			r.Post("/", h.handleCreatePayment)
			r.Route("/{paymentID}", func(r chi.Router) {
				r.Get("/", h.handleGetPayment)
				r.Post("/authorisations", h.handleCreatePaymentAuthorisation)
				r.Post("/cancellation-authorisations", h.handleCreateCancellationAuthorisation)
			})
		})

		r.Route("/authorisations/{authorisationID}", func(r chi.Router) {
			r.Put("/", h.handleUpdateAuthorisation)
			r.Get("/status", h.handleGetScaStatus)
			r.Put("/status", h.handleUpdateScaStatus)
		})
	})

	r.Route("/admin/tpp/{tppNumber}", func(r chi.Router) {
		r.Put("/block", h.handleBlockTpp)
		r.Put("/unblock", h.handleUnblockTpp)
		r.Get("/status", h.handleTppStatus)
	})

	return r
}

func (h *Handler) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// stopListGuard rejects requests from blocked TPPs. The TPP identifies
// itself with its authorisation number header; requests without one pass
// through, gateway-level certificate checks happen upstream.
func (h *Handler) stopListGuard(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tppNumber := r.Header.Get("TPP-Authorisation-Number")
		if tppNumber == "" {
			next.ServeHTTP(w, r)
			return
		}
		blocked, err := h.stopList.IsBlocked(r.Context(), tppNumber, instanceID(r))
		if err != nil {
			writeError(w, err)
			return
		}
		if blocked {
			writeJSON(w, http.StatusForbidden, errorBody{
				Error:   "CERTIFICATE_BLOCKED",
				Message: "TPP access is blocked",
			})
			return
		}
		next.ServeHTTP(w, r)
	})
}

// instanceID scopes multi-tenant deployments; absent header means the
// default instance.
func instanceID(r *http.Request) string {
	return r.Header.Get("Instance-ID")
}

// resolveID opens a protected external identifier. Every failure mode maps
// to not-found so callers cannot distinguish a foreign id from a missing
// resource.
func (h *Handler) resolveID(protected string) (string, bool) {
	decrypted, ok := h.ids.DecryptID(protected)
	if !ok {
		if h.metrics != nil {
			h.metrics.CryptoDecryptFailures.Inc()
		}
		return "", false
	}
	return decrypted.InternalID, true
}
