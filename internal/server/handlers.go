package server

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/adsrocket/adsrocket/internal/marketing"
	"github.com/adsrocket/adsrocket/internal/telegram"
	"github.com/adsrocket/adsrocket/internal/window"
	"github.com/go-chi/chi/v5"
)

const maxBodyBytes = 1 << 20

func (h *Handler) topAds(w http.ResponseWriter, r *http.Request) {
	const command = "top-ads"
	spec, err := h.windowParam(r)
	if err != nil {
		writeError(w, r, command, err)
		return
	}
	limit, err := intParam(r, "limit")
	if err != nil {
		writeError(w, r, command, err)
		return
	}
	ranked, err := h.opts.Performance.FetchTopPerformers(r.Context(), chi.URLParam(r, "accountID"), h.opts.Creds, spec, limit)
	if err != nil {
		writeError(w, r, command, err)
		return
	}
	writeSuccess(w, r, command, ranked)
}

func (h *Handler) campaigns(w http.ResponseWriter, r *http.Request) {
	const command = "campaigns"
	spec, err := h.windowParam(r)
	if err != nil {
		writeError(w, r, command, err)
		return
	}
	entities, err := h.opts.Performance.Campaigns(r.Context(), chi.URLParam(r, "accountID"), h.opts.Creds, spec)
	if err != nil {
		writeError(w, r, command, err)
		return
	}
	writeSuccess(w, r, command, entities)
}

func (h *Handler) adSets(w http.ResponseWriter, r *http.Request) {
	const command = "adsets"
	spec, err := h.windowParam(r)
	if err != nil {
		writeError(w, r, command, err)
		return
	}
	entities, err := h.opts.Performance.AdSets(r.Context(), chi.URLParam(r, "campaignID"), h.opts.Creds, spec)
	if err != nil {
		writeError(w, r, command, err)
		return
	}
	writeSuccess(w, r, command, entities)
}

func (h *Handler) ads(w http.ResponseWriter, r *http.Request) {
	const command = "ads"
	spec, err := h.windowParam(r)
	if err != nil {
		writeError(w, r, command, err)
		return
	}
	entities, err := h.opts.Performance.Ads(r.Context(), chi.URLParam(r, "adSetID"), h.opts.Creds, spec)
	if err != nil {
		writeError(w, r, command, err)
		return
	}
	writeSuccess(w, r, command, entities)
}

type statusRequest struct {
	Status string `json:"status"`
	Level  string `json:"level"`
}

func (h *Handler) setStatus(w http.ResponseWriter, r *http.Request) {
	const command = "entity-status"
	var req statusRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, r, command, err)
		return
	}
	status := strings.ToUpper(strings.TrimSpace(req.Status))
	if status != marketing.StatusActive && status != marketing.StatusPaused {
		writeError(w, r, command, fmt.Errorf("%w: status must be ACTIVE or PAUSED", errBadRequest))
		return
	}
	switch strings.ToLower(strings.TrimSpace(req.Level)) {
	case "", marketing.LevelCampaign, marketing.LevelAdSet, marketing.LevelAd:
	default:
		writeError(w, r, command, fmt.Errorf("%w: level must be campaign, adset or ad", errBadRequest))
		return
	}
	result, err := h.opts.Marketing.SetStatus(r.Context(), h.opts.Creds, marketing.StatusInput{
		Level:    req.Level,
		EntityID: chi.URLParam(r, "entityID"),
		Status:   status,
	})
	if err != nil {
		writeError(w, r, command, err)
		return
	}
	writeSuccess(w, r, command, result)
}

type budgetRequest struct {
	DailyBudget    int64 `json:"daily_budget"`
	LifetimeBudget int64 `json:"lifetime_budget"`
}

func (h *Handler) updateBudget(w http.ResponseWriter, r *http.Request) {
	const command = "entity-budget"
	var req budgetRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, r, command, err)
		return
	}
	if req.DailyBudget < 0 || req.LifetimeBudget < 0 || (req.DailyBudget > 0) == (req.LifetimeBudget > 0) {
		writeError(w, r, command, fmt.Errorf("%w: set exactly one positive daily_budget or lifetime_budget", errBadRequest))
		return
	}
	result, err := h.opts.Marketing.UpdateBudget(r.Context(), h.opts.Creds, marketing.BudgetInput{
		EntityID:       chi.URLParam(r, "entityID"),
		DailyBudget:    req.DailyBudget,
		LifetimeBudget: req.LifetimeBudget,
	})
	if err != nil {
		writeError(w, r, command, err)
		return
	}
	writeSuccess(w, r, command, result)
}

func (h *Handler) runReport(w http.ResponseWriter, r *http.Request) {
	const command = "report-run"
	if h.opts.Reports == nil {
		writeMessage(w, r, http.StatusNotFound, "daily report is not configured")
		return
	}
	result, err := h.opts.Reports.Run(r.Context())
	if err != nil {
		writeError(w, r, command, err)
		return
	}
	writeSuccess(w, r, command, result)
}

func (h *Handler) reportHistory(w http.ResponseWriter, r *http.Request) {
	const command = "report-history"
	if h.opts.History == nil {
		writeMessage(w, r, http.StatusNotFound, "report history is not configured")
		return
	}
	limit, err := intParam(r, "limit")
	if err != nil {
		writeError(w, r, command, err)
		return
	}
	runs, err := h.opts.History.Runs(r.Context(), chi.URLParam(r, "accountID"), limit)
	if err != nil {
		writeError(w, r, command, err)
		return
	}
	writeSuccess(w, r, command, runs)
}

// telegramWebhook acknowledges every well-formed update so Telegram does not
// redeliver it; handling failures are logged.
func (h *Handler) telegramWebhook(w http.ResponseWriter, r *http.Request) {
	if !validWebhookSecret(r.Header.Get(WebhookSecretHeader), h.opts.WebhookSecret) {
		writeMessage(w, r, http.StatusNotFound, "not found")
		return
	}
	if h.opts.Reports == nil {
		writeMessage(w, r, http.StatusNotFound, "daily report is not configured")
		return
	}
	var update telegram.Update
	if err := decodeBody(r, &update); err != nil {
		writeError(w, r, "telegram-webhook", err)
		return
	}
	if update.CallbackQuery != nil {
		if err := h.opts.Reports.HandleCallback(r.Context(), *update.CallbackQuery); err != nil {
			h.opts.Logger.WithError(err).WithField("update_id", update.UpdateID).Warn("telegram callback failed")
		}
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func validWebhookSecret(got string, want string) bool {
	if want == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(got), []byte(want)) == 1
}

func (h *Handler) windowParam(r *http.Request) (window.Spec, error) {
	raw := strings.TrimSpace(r.URL.Query().Get("window"))
	if raw == "" {
		return h.opts.DefaultWindow, nil
	}
	return window.Parse(raw)
}

func intParam(r *http.Request, name string) (int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return 0, nil
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value < 0 {
		return 0, fmt.Errorf("%w: %s must be a non-negative integer", errBadRequest, name)
	}
	return value, nil
}

func decodeBody(r *http.Request, out any) error {
	decoder := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := decoder.Decode(out); err != nil {
		if errors.Is(err, io.EOF) {
			return fmt.Errorf("%w: request body is required", errBadRequest)
		}
		return fmt.Errorf("%w: invalid json body", errBadRequest)
	}
	return nil
}
