package marketing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/adsrocket/adsrocket/internal/cache"
	"github.com/adsrocket/adsrocket/internal/graph"
	"github.com/adsrocket/adsrocket/internal/logging"
	"github.com/sirupsen/logrus"
)

const (
	StatusActive = "ACTIVE"
	StatusPaused = "PAUSED"
)

type MutationResult struct {
	Operation   string         `json:"operation"`
	EntityID    string         `json:"entity_id"`
	Level       string         `json:"level,omitempty"`
	RequestPath string         `json:"request_path"`
	Response    map[string]any `json:"response"`
}

type CampaignCreateInput struct {
	AccountID           string
	Name                string
	Objective           string
	Status              string
	DailyBudget         int64
	LifetimeBudget      int64
	SpecialAdCategories []string
	// Params are sent verbatim after the typed fields and may override them.
	Params map[string]string
}

// Service performs writes against the ad account. Every successful write
// invalidates the whole read cache so later reads cannot see pre-write data.
type Service struct {
	Client *graph.Client
	Cache  cache.Layer
	Logger logrus.FieldLogger
}

func NewService(client *graph.Client, layer cache.Layer) *Service {
	if client == nil {
		client = graph.NewClient(nil, "")
	}
	return &Service{
		Client: client,
		Cache:  layer,
		Logger: logging.Discard(),
	}
}

func (s *Service) CreateCampaign(ctx context.Context, creds graph.Credentials, input CampaignCreateInput) (*MutationResult, error) {
	accountID, err := normalizeAdAccountID(input.AccountID)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(input.Name) == "" {
		return nil, errors.New("campaign name is required")
	}
	if strings.TrimSpace(input.Objective) == "" {
		return nil, errors.New("campaign objective is required")
	}
	status := StatusPaused
	if strings.TrimSpace(input.Status) != "" {
		status, err = normalizeStatus(input.Status)
		if err != nil {
			return nil, err
		}
	}
	if input.DailyBudget < 0 || input.LifetimeBudget < 0 {
		return nil, errors.New("campaign budget must be positive")
	}
	if input.DailyBudget > 0 && input.LifetimeBudget > 0 {
		return nil, errors.New("campaign accepts either a daily or a lifetime budget, not both")
	}

	categories := input.SpecialAdCategories
	if categories == nil {
		categories = []string{}
	}
	encodedCategories, err := json.Marshal(categories)
	if err != nil {
		return nil, fmt.Errorf("encode special_ad_categories: %w", err)
	}

	form := map[string]string{
		"name":                  strings.TrimSpace(input.Name),
		"objective":             strings.ToUpper(strings.TrimSpace(input.Objective)),
		"status":                status,
		"special_ad_categories": string(encodedCategories),
	}
	if input.DailyBudget > 0 {
		form["daily_budget"] = strconv.FormatInt(input.DailyBudget, 10)
	}
	if input.LifetimeBudget > 0 {
		form["lifetime_budget"] = strconv.FormatInt(input.LifetimeBudget, 10)
	}
	extra, err := normalizeOptionalParams(input.Params)
	if err != nil {
		return nil, err
	}
	for key, value := range extra {
		form[key] = value
	}

	path := fmt.Sprintf("act_%s/campaigns", accountID)
	result, err := s.mutate(ctx, creds, "create", path, form)
	if err != nil {
		return nil, err
	}
	campaignID, _ := result.Response["id"].(string)
	if strings.TrimSpace(campaignID) == "" {
		return nil, errors.New("campaign create response did not include id")
	}
	result.EntityID = campaignID
	result.Level = LevelCampaign
	return result, nil
}

// mutate sends one POST and invalidates the cache on success.
func (s *Service) mutate(ctx context.Context, creds graph.Credentials, operation string, path string, form map[string]string) (*MutationResult, error) {
	if s == nil || s.Client == nil {
		return nil, errors.New("marketing service client is required")
	}
	if err := creds.Validate(); err != nil {
		return nil, err
	}

	response, err := s.Client.Do(ctx, creds.Post(path, form))
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", operation, path, err)
	}
	if s.Cache != nil {
		s.Cache.InvalidateAll(ctx)
	}
	s.logger().WithFields(logrus.Fields{
		"operation": operation,
		"path":      path,
	}).Info("ad account mutation applied")

	return &MutationResult{
		Operation:   operation,
		EntityID:    path,
		RequestPath: path,
		Response:    response.Body,
	}, nil
}

func (s *Service) logger() logrus.FieldLogger {
	if s.Logger == nil {
		return logging.Discard()
	}
	return s.Logger
}

func normalizeAdAccountID(value string) (string, error) {
	normalized := strings.TrimSpace(value)
	if strings.HasPrefix(strings.ToLower(normalized), "act_") {
		normalized = normalized[4:]
	}
	if normalized == "" {
		return "", errors.New("account id is required")
	}
	if strings.Contains(normalized, "/") {
		return "", fmt.Errorf("invalid account id %q: expected single graph id token", value)
	}
	return normalized, nil
}

func normalizeGraphID(label string, value string) (string, error) {
	normalized := strings.TrimSpace(value)
	if normalized == "" {
		return "", fmt.Errorf("%s is required", label)
	}
	if strings.ContainsAny(normalized, "/?&") {
		return "", fmt.Errorf("invalid %s %q: expected single graph id token", label, value)
	}
	return normalized, nil
}

func normalizeStatus(value string) (string, error) {
	normalized := strings.ToUpper(strings.TrimSpace(value))
	switch normalized {
	case StatusActive, StatusPaused:
		return normalized, nil
	case "":
		return "", errors.New("status is required")
	default:
		return "", fmt.Errorf("unsupported status %q: expected ACTIVE|PAUSED", value)
	}
}

func normalizeOptionalParams(params map[string]string) (map[string]string, error) {
	normalized := map[string]string{}
	for key, value := range params {
		trimmedKey := strings.TrimSpace(key)
		if trimmedKey == "" {
			return nil, errors.New("mutation param key cannot be empty")
		}
		normalized[trimmedKey] = strings.TrimSpace(value)
	}
	return normalized, nil
}
