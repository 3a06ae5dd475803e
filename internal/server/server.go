// Package server exposes performance reads, ad mutations, report runs and
// the Telegram webhook over HTTP.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/adsrocket/adsrocket/internal/dailyreport"
	"github.com/adsrocket/adsrocket/internal/graph"
	"github.com/adsrocket/adsrocket/internal/logging"
	"github.com/adsrocket/adsrocket/internal/marketing"
	"github.com/adsrocket/adsrocket/internal/performance"
	"github.com/adsrocket/adsrocket/internal/store"
	"github.com/adsrocket/adsrocket/internal/telegram"
	"github.com/adsrocket/adsrocket/internal/telemetry"
	"github.com/adsrocket/adsrocket/internal/window"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

const (
	RequestTimeout      = 60 * time.Second
	WebhookSecretHeader = "X-Telegram-Bot-Api-Secret-Token"
	RequestIDHeader     = "X-Request-Id"
)

type PerformanceReader interface {
	FetchTopPerformers(ctx context.Context, accountID string, creds graph.Credentials, spec window.Spec, limit int) ([]performance.RankedAd, error)
	Campaigns(ctx context.Context, accountID string, creds graph.Credentials, spec window.Spec) ([]performance.Entity, error)
	AdSets(ctx context.Context, campaignID string, creds graph.Credentials, spec window.Spec) ([]performance.Entity, error)
	Ads(ctx context.Context, adSetID string, creds graph.Credentials, spec window.Spec) ([]performance.Entity, error)
}

type Mutator interface {
	SetStatus(ctx context.Context, creds graph.Credentials, input marketing.StatusInput) (*marketing.MutationResult, error)
	UpdateBudget(ctx context.Context, creds graph.Credentials, input marketing.BudgetInput) (*marketing.MutationResult, error)
}

type ReportRunner interface {
	Run(ctx context.Context) (*dailyreport.Result, error)
	HandleCallback(ctx context.Context, query telegram.CallbackQuery) error
}

type RunLister interface {
	Runs(ctx context.Context, accountID string, limit int) ([]store.Run, error)
}

var (
	_ PerformanceReader = (*performance.Fetcher)(nil)
	_ Mutator           = (*marketing.Service)(nil)
	_ ReportRunner      = (*dailyreport.Job)(nil)
	_ RunLister         = (*store.Postgres)(nil)
)

// Options wires the server. Reports and History are optional; their routes
// answer 404 when unset. The Telegram webhook is only routed when
// WebhookSecret is set.
type Options struct {
	Performance   PerformanceReader
	Marketing     Mutator
	Reports       ReportRunner
	History       RunLister
	Creds         graph.Credentials
	DefaultWindow window.Spec
	WebhookSecret string
	Logger        logrus.FieldLogger
	Metrics       *telemetry.Metrics
	Gatherer      prometheus.Gatherer
}

type Handler struct {
	opts Options
}

func NewHandler(opts Options) *Handler {
	if opts.Logger == nil {
		opts.Logger = logging.Discard()
	}
	if opts.DefaultWindow == (window.Spec{}) {
		opts.DefaultWindow = window.Preset(window.PresetYesterday)
	}
	if opts.Gatherer == nil {
		opts.Gatherer = prometheus.DefaultGatherer
	}
	return &Handler{opts: opts}
}

func NewRouter(h *Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(h.loggingMiddleware)
	r.Use(h.recoverMiddleware)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", promhttp.HandlerFor(h.opts.Gatherer, promhttp.HandlerOpts{}))

	r.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(RequestTimeout))

		r.Route("/api", func(r chi.Router) {
			r.Get("/accounts/{accountID}/top-ads", h.topAds)
			r.Get("/accounts/{accountID}/campaigns", h.campaigns)
			r.Get("/accounts/{accountID}/reports", h.reportHistory)
			r.Get("/campaigns/{campaignID}/adsets", h.adSets)
			r.Get("/adsets/{adSetID}/ads", h.ads)
			r.Post("/entities/{entityID}/status", h.setStatus)
			r.Post("/entities/{entityID}/budget", h.updateBudget)
			r.Post("/reports/run", h.runReport)
		})
		// Without a secret anyone could forge callbacks, so the route only
		// exists once one is configured.
		if h.opts.WebhookSecret != "" {
			r.Post("/telegram/webhook", h.telegramWebhook)
		}
	})
	return r
}
