// Package httptransport is the thin HTTP layer over the core services. It
// decodes requests, resolves the authenticated actor, delegates, and maps
// domain error codes to statuses; no policy lives here.
package httptransport

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"medihub/internal/access"
	"medihub/internal/audit"
	"medihub/internal/consent"
	"medihub/internal/deletion"
	"medihub/internal/directory"
	"medihub/internal/platform/middleware"
	"medihub/internal/record"
	"medihub/internal/token"
)

// Handler bundles the services the HTTP surface exposes.
type Handler struct {
	logger         *slog.Logger
	directory      *directory.Service
	engine         *consent.Engine
	gate           *access.Gate
	records        *record.Service
	workflow       *deletion.Workflow
	ledger         *audit.Ledger
	tokens         *token.Service
	accessTokenTTL time.Duration
}

func NewHandler(
	logger *slog.Logger,
	dir *directory.Service,
	engine *consent.Engine,
	gate *access.Gate,
	records *record.Service,
	workflow *deletion.Workflow,
	ledger *audit.Ledger,
	tokens *token.Service,
	accessTokenTTL time.Duration,
) *Handler {
	if accessTokenTTL <= 0 {
		accessTokenTTL = 24 * time.Hour
	}
	return &Handler{
		logger:         logger,
		directory:      dir,
		engine:         engine,
		gate:           gate,
		records:        records,
		workflow:       workflow,
		ledger:         ledger,
		tokens:         tokens,
		accessTokenTTL: accessTokenTTL,
	}
}

// NewRouter wires every endpoint. The deletion receipt route stays outside
// RequireAuth: its caller's account no longer exists, the signed receipt
// token is the only credential.
func NewRouter(h *Handler, sessions middleware.SessionChecker) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recovery(h.logger))
	r.Use(middleware.RequestID)
	r.Use(middleware.RequestTime)
	r.Use(middleware.Logger(h.logger))
	r.Use(middleware.Timeout(30 * time.Second))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Group(func(r chi.Router) {
		r.Use(middleware.ContentTypeJSON)

		r.Post("/auth/register/patient", h.handleRegisterPatient)
		r.Post("/auth/register/doctor", h.handleRegisterDoctor)
		r.Get("/patients/{patientID}/deletion/receipt", h.handleGetReceipt)

		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireAuth(h.tokens, sessions, h.logger))

			r.Get("/me", h.handleMe)

			r.Post("/consents", h.handleGrantConsent)
			r.Delete("/consents/{consentID}", h.handleRevokeConsent)
			r.Get("/patients/{patientID}/consents", h.handleListConsents)

			r.Post("/links", h.handleRequestLink)
			r.Post("/links/{linkID}/respond", h.handleRespondLink)
			r.Get("/links", h.handleListLinks)

			r.Post("/patients/{patientID}/records", h.handleCreateRecord)
			r.Get("/patients/{patientID}/records", h.handleListRecords)
			r.Get("/records/{recordID}", h.handleGetRecord)
			r.Put("/records/{recordID}", h.handleUpdateRecord)
			r.Delete("/records/{recordID}", h.handleSoftDeleteRecord)

			r.Post("/records/{recordID}/assignments", h.handleAssignRecord)
			r.Delete("/assignments/{assignmentID}", h.handleRevokeAssignment)

			r.Post("/patients/{patientID}/documents", h.handleAttachDocument)
			r.Get("/patients/{patientID}/documents", h.handleListDocuments)
			r.Get("/documents/{documentID}", h.handleGetDocument)

			r.Post("/patients/{patientID}/deletion", h.handleStartDeletion)

			r.Get("/admin/audit", h.handleListAudit)
			r.Get("/admin/audit/verify", h.handleVerifyAudit)
			r.Get("/admin/audit/patients/{patientID}", h.handleListAuditByPatient)
			r.Get("/admin/deletion-jobs/{jobID}", h.handleJobStatus)
		})
	})

	return r
}
