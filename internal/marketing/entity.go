package marketing

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/adsrocket/adsrocket/internal/graph"
)

const (
	LevelCampaign = "campaign"
	LevelAdSet    = "adset"
	LevelAd       = "ad"
)

type StatusInput struct {
	// Level is informational; Graph addresses every entity by id alone.
	Level    string
	EntityID string
	Status   string
}

// BudgetInput carries budgets in the account currency's minor units.
// Exactly one of DailyBudget and LifetimeBudget must be set.
type BudgetInput struct {
	EntityID       string
	DailyBudget    int64
	LifetimeBudget int64
}

func (s *Service) SetStatus(ctx context.Context, creds graph.Credentials, input StatusInput) (*MutationResult, error) {
	entityID, err := normalizeGraphID("entity id", input.EntityID)
	if err != nil {
		return nil, err
	}
	level, err := normalizeLevel(input.Level)
	if err != nil {
		return nil, err
	}
	status, err := normalizeStatus(input.Status)
	if err != nil {
		return nil, err
	}

	result, err := s.mutate(ctx, creds, strings.ToLower(status), entityID, map[string]string{
		"status": status,
	})
	if err != nil {
		return nil, err
	}
	result.EntityID = entityID
	result.Level = level
	return result, nil
}

func (s *Service) UpdateBudget(ctx context.Context, creds graph.Credentials, input BudgetInput) (*MutationResult, error) {
	entityID, err := normalizeGraphID("entity id", input.EntityID)
	if err != nil {
		return nil, err
	}
	if input.DailyBudget < 0 || input.LifetimeBudget < 0 {
		return nil, errors.New("budget must be a positive amount in minor units")
	}

	form := map[string]string{}
	switch {
	case input.DailyBudget > 0 && input.LifetimeBudget > 0:
		return nil, errors.New("set either a daily or a lifetime budget, not both")
	case input.DailyBudget > 0:
		form["daily_budget"] = strconv.FormatInt(input.DailyBudget, 10)
	case input.LifetimeBudget > 0:
		form["lifetime_budget"] = strconv.FormatInt(input.LifetimeBudget, 10)
	default:
		return nil, errors.New("budget must be a positive amount in minor units")
	}

	result, err := s.mutate(ctx, creds, "update_budget", entityID, form)
	if err != nil {
		return nil, err
	}
	result.EntityID = entityID
	return result, nil
}

func normalizeLevel(value string) (string, error) {
	normalized := strings.ToLower(strings.TrimSpace(value))
	switch normalized {
	case "", LevelCampaign, LevelAdSet, LevelAd:
		return normalized, nil
	default:
		return "", fmt.Errorf("unsupported level %q: expected campaign|adset|ad", value)
	}
}
