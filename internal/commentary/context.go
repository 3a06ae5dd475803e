// Package commentary turns ranked performance into a short text context and
// asks a language model for a written take on it.
package commentary

import (
	"fmt"
	"strings"

	"github.com/adsrocket/adsrocket/internal/insights"
	"github.com/adsrocket/adsrocket/internal/performance"
	"github.com/adsrocket/adsrocket/internal/window"
)

type Input struct {
	AccountID string
	Window    window.Range
	Account   insights.Metrics
	Top       []performance.RankedAd
}

// BuildContext renders one header line for the account and one line per
// ranked ad. The output is plain text meant for a model prompt.
func BuildContext(input Input) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Ad account act_%s, window %s (%d days).\n", input.AccountID, input.Window.String(), input.Window.Days())
	fmt.Fprintf(&b, "Account totals: %s.\n", metricsLine(input.Account))
	if len(input.Top) == 0 {
		b.WriteString("No ads had spend in this window.\n")
		return b.String()
	}
	b.WriteString("Top ads ranked by purchases, then ROAS:\n")
	for i, ad := range input.Top {
		fmt.Fprintf(&b, "%d. %s (id %s, creative %s): %s.\n", i+1, oneLine(ad.Name), ad.ID, ad.Creative.Kind, metricsLine(ad.Metrics))
	}
	return b.String()
}

func metricsLine(m insights.Metrics) string {
	return fmt.Sprintf(
		"spend %.2f, purchases %d, revenue %.2f, ROAS %.2f, CPA %.2f, CTR %.2f%%, results %d",
		m.Spend,
		m.Purchases,
		m.Revenue,
		m.ROAS,
		m.CostPerPurchase,
		m.CTR,
		m.Results,
	)
}

func oneLine(value string) string {
	return strings.Join(strings.Fields(value), " ")
}
