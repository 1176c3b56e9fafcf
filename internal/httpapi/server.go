// Package httpapi wires the HTTP surface of the bookkeeping service.
// It keeps handlers thin, delegating business rules to the service layer.
package httpapi

import (
	"context"
	"log/slog"
	"net/http"

	chi "github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/tinoosan/bookkeeper/internal/posting"
	"github.com/tinoosan/bookkeeper/internal/service/account"
	"github.com/tinoosan/bookkeeper/internal/service/asset"
	"github.com/tinoosan/bookkeeper/internal/service/budget"
	"github.com/tinoosan/bookkeeper/internal/service/journal"
	"github.com/tinoosan/bookkeeper/internal/service/partner"
	"github.com/tinoosan/bookkeeper/internal/service/tax"
	"github.com/tinoosan/bookkeeper/internal/service/taxreport"
)

// Store is everything the API needs from a storage backend. The memory, sqlite
// and postgres stores all satisfy it.
type Store interface {
	journal.Repo
	journal.Writer
	account.Repo
	account.Writer
	partner.Repo
	partner.Writer
	tax.Repo
	tax.Writer
	asset.Repo
	asset.Writer
	taxreport.Repo
	taxreport.Writer
	budget.Repo
	budget.Writer
	Ready(ctx context.Context) error
}

type Options struct {
	Engine *posting.Engine
	Logger *slog.Logger
	// CORSAllowedOrigins defaults to any origin.
	CORSAllowedOrigins []string
	Depreciation       asset.Options
}

// Server wires handlers and middleware using Chi.
type Server struct {
	store      Store
	engine     *posting.Engine
	journal    journal.Service
	accounts   account.Service
	partners   partner.Service
	assets     asset.Service
	taxes      tax.Service
	taxReports taxreport.Service
	budgets    budget.Service
	replays    *replayCache
	log        *slog.Logger
	rt         *chi.Mux
}

// New constructs the HTTP server with routes and middleware.
// The logger is used by request logging and panic recovery.
func New(store Store, opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	origins := opts.CORSAllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(requestLogger(logger))
	r.Use(recoverer(logger))
	r.Use(metricsMiddleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "Idempotency-Key", "X-Request-Id"},
		ExposedHeaders: []string{"Idempotent-Replay"},
		MaxAge:         300,
	}))

	s := &Server{
		store:      store,
		engine:     opts.Engine,
		journal:    journal.New(store, store, opts.Engine),
		accounts:   account.New(store, store),
		partners:   partner.New(store, store),
		assets:     asset.New(store, store, opts.Engine, opts.Depreciation),
		taxes:      tax.New(store, store, opts.Engine),
		taxReports: taxreport.New(store, store, opts.Engine),
		budgets:    budget.New(store, store, opts.Engine),
		replays:    newReplayCache(),
		log:        logger,
		rt:         r,
	}
	s.routes()
	return s
}

// Handler exposes the configured http.Handler.
func (s *Server) Handler() http.Handler { return s.rt }

// routes declares the public HTTP API endpoints and attaches any per-route middleware.
func (s *Server) routes() {
	s.rt.Route("/accounts", func(r chi.Router) {
		r.Get("/", s.listAccounts)
		r.With(requireJSON).Post("/", s.postAccount)
		r.With(requireJSON).Post("/batch", s.postChart)
		r.Get("/{id}", s.getAccount)
		r.With(requireJSON).Put("/{id}", s.updateAccount)
		r.Delete("/{id}", s.deactivateAccount)
		r.With(s.validateAsOf).Get("/{id}/balance", s.getAccountBalance)
		r.Get("/{id}/ledger", s.getAccountLedger)
	})
	s.rt.Route("/journal-entries", func(r chi.Router) {
		r.With(s.validateListEntries).Get("/", s.listEntries)
		r.With(requireJSON, s.validateEntryBody).Post("/", s.postEntry)
		r.Get("/{id}", s.getEntry)
		r.With(requireJSON, s.validateEntryBody).Put("/{id}", s.updateEntry)
		r.Delete("/{id}", s.deleteEntry)
		r.Post("/{id}/post", s.postDraft)
		r.Post("/{id}/reverse", s.reverseEntry)
	})
	s.rt.With(requireJSON, s.idempotent).Post("/auto-journal-entries", s.postAutoEntries)
	s.rt.With(s.validateAsOf).Get("/trial-balance", s.trialBalance)

	s.rt.Route("/partners", func(r chi.Router) {
		r.Get("/", s.listPartners)
		r.With(requireJSON).Post("/", s.postPartner)
		r.Get("/{id}", s.getPartner)
		r.With(requireJSON).Put("/{id}", s.updatePartner)
		r.Delete("/{id}", s.deactivatePartner)
	})
	s.rt.Route("/assets", func(r chi.Router) {
		r.Get("/", s.listAssets)
		r.With(requireJSON).Post("/", s.postAsset)
		r.With(requireJSON, s.idempotent).Post("/depreciate", s.depreciateAssets)
		r.Get("/{id}", s.getAsset)
		r.With(requireJSON).Put("/{id}", s.updateAsset)
		r.Delete("/{id}", s.deactivateAsset)
		r.Get("/{id}/schedule", s.assetSchedule)
	})
	s.rt.Route("/taxes", func(r chi.Router) {
		r.Get("/", s.listTaxes)
		r.With(requireJSON).Post("/", s.postTax)
		r.With(requireJSON).Post("/calculate", s.calculateTax)
		r.Get("/{id}", s.getTax)
		r.With(requireJSON).Put("/{id}", s.updateTax)
		r.Delete("/{id}", s.deactivateTax)
	})
	s.rt.Route("/tax-reports", func(r chi.Router) {
		r.Get("/", s.listTaxReports)
		r.With(requireJSON).Post("/", s.postTaxReport)
		r.Get("/{id}", s.getTaxReport)
		r.With(requireJSON).Put("/{id}", s.updateTaxReport)
		r.Delete("/{id}", s.deleteTaxReport)
		r.Post("/{id}/generate", s.generateTaxReport)
		r.Post("/{id}/confirm", s.confirmTaxReport)
		r.Post("/{id}/submit", s.submitTaxReport)
	})
	s.rt.Route("/budgets", func(r chi.Router) {
		r.Get("/", s.listBudgets)
		r.With(requireJSON).Post("/", s.postBudget)
		r.Get("/{id}", s.getBudget)
		r.With(requireJSON).Put("/{id}", s.updateBudget)
		r.Delete("/{id}", s.deleteBudget)
		r.Post("/{id}/confirm", s.confirmBudget)
		r.Post("/{id}/close", s.closeBudget)
	})

	s.rt.Get("/dictionary/chart", s.defaultChart)
	// Health (unversioned)
	s.rt.Get("/healthz", s.healthz)
	s.rt.Get("/readyz", s.readyz)
	s.rt.Handle("/metrics", metricsHandler())
	s.rt.NotFound(func(w http.ResponseWriter, r *http.Request) { notFound(w) })
}
