package insights

import (
	"context"
	"errors"
	"fmt"

	"github.com/adsrocket/adsrocket/internal/config"
	"github.com/adsrocket/adsrocket/internal/graph"
	"github.com/adsrocket/adsrocket/internal/window"
)

type Service struct {
	Client *graph.Client
}

func New(client *graph.Client) *Service {
	if client == nil {
		client = graph.NewClient(nil, "")
	}
	return &Service{Client: client}
}

// Summary is the account-level aggregate for one window.
type Summary struct {
	AccountID string  `json:"account_id"`
	Since     string  `json:"since"`
	Until     string  `json:"until"`
	Metrics   Metrics `json:"metrics"`
}

// AccountSummary reads the account-level insights row for r. An account with
// no delivery in the window has no row and yields zero metrics.
func (s *Service) AccountSummary(ctx context.Context, accountID string, creds graph.Credentials, r window.Range) (*Summary, error) {
	accountID = config.NormalizeAccountID(accountID)
	if accountID == "" {
		return nil, errors.New("account id is required")
	}
	if err := creds.Validate(); err != nil {
		return nil, err
	}
	summary := &Summary{
		AccountID: accountID,
		Since:     r.SinceDate(),
		Until:     r.UntilDate(),
	}
	_, err := s.Client.FetchWithPagination(ctx, creds.Get(fmt.Sprintf("act_%s/insights", accountID), map[string]string{
		"level":      "account",
		"fields":     FieldList(),
		"time_range": r.TimeRangeParam(),
	}), graph.PaginationOptions{
		Limit: 1,
	}, func(item map[string]any) error {
		summary.Metrics = MapRow(DecodeRow(item))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("fetch account summary for act_%s (%s): %w", accountID, r.String(), err)
	}
	return summary, nil
}
