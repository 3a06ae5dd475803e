package insights

import (
	"math"
	"strings"
)

const (
	ActionPurchase               = "purchase"
	ActionLandingPageView        = "landing_page_view"
	ActionLead                   = "lead"
	ActionLinkClick              = "link_click"
	ActionMessagingStarted       = "messaging_conversation_started_7d"
	ActionOnsiteMessagingStarted = "onsite_conversion.messaging_conversation_started_7d"
	ActionOmniPurchase           = "omni_purchase"
	ActionOffsitePixelPurchase   = "offsite_conversion.fb_pixel_purchase"
)

// PurchaseActionTypes is checked in order; the first type present wins and
// later types are ignored, not summed.
var PurchaseActionTypes = []string{
	ActionPurchase,
	ActionOmniPurchase,
	ActionOffsitePixelPurchase,
}

var resultActionTypes = []string{
	ActionLead,
	ActionOnsiteMessagingStarted,
	ActionMessagingStarted,
}

// MetricFields are the insights fields Map consumes.
var MetricFields = []string{
	"spend",
	"impressions",
	"clicks",
	"ctr",
	"inline_link_click_ctr",
	"inline_link_clicks",
	"actions",
	"action_values",
	"cost_per_action_type",
}

func FieldList() string {
	return strings.Join(MetricFields, ",")
}

// Metrics is the normalized view of one insights row. Every ratio is 0 when
// its denominator is 0.
type Metrics struct {
	Spend                  float64 `json:"spend"`
	Revenue                float64 `json:"revenue"`
	ROAS                   float64 `json:"roas"`
	Impressions            int64   `json:"impressions"`
	Clicks                 int64   `json:"clicks"`
	CTR                    float64 `json:"ctr"`
	InlineLinkClickCTR     float64 `json:"inline_link_click_ctr"`
	Purchases              int64   `json:"purchases"`
	CostPerPurchase        float64 `json:"cost_per_purchase"`
	LandingPageViews       int64   `json:"landing_page_views"`
	CostPerLandingPageView float64 `json:"cost_per_landing_page_view"`
	Results                int64   `json:"results"`
	CostPerResult          float64 `json:"cost_per_result"`
}

// Map normalizes a record. A record without insights maps to zero metrics.
func Map(record Record) Metrics {
	if record.Insights == nil {
		return Metrics{}
	}
	return MapRow(*record.Insights)
}

func MapRow(row Row) Metrics {
	metrics := Metrics{
		Spend:              row.Spend,
		Impressions:        row.Impressions,
		Clicks:             row.Clicks,
		CTR:                row.CTR,
		InlineLinkClickCTR: row.InlineLinkClickCTR,
	}

	metrics.Revenue, _ = lookup(row.ActionValues, ActionPurchase)
	metrics.ROAS = ratio(metrics.Revenue, metrics.Spend)

	purchases, purchaseType, _ := firstPresent(row.Actions, PurchaseActionTypes)
	metrics.Purchases = count(purchases)
	if metrics.Purchases > 0 {
		// The cost must describe the same action type the count came from.
		if cost, ok := lookup(row.CostPerActionType, purchaseType); ok && cost > 0 {
			metrics.CostPerPurchase = cost
		} else {
			metrics.CostPerPurchase = ratio(metrics.Spend, float64(metrics.Purchases))
		}
	}

	landingPageViews, _ := lookup(row.Actions, ActionLandingPageView)
	metrics.LandingPageViews = count(landingPageViews)
	if metrics.LandingPageViews > 0 {
		if cost, ok := lookup(row.CostPerActionType, ActionLandingPageView); ok && cost > 0 {
			metrics.CostPerLandingPageView = cost
		} else {
			metrics.CostPerLandingPageView = ratio(metrics.Spend, float64(metrics.LandingPageViews))
		}
	}

	metrics.Results = resolveResults(row)
	metrics.CostPerResult = ratio(metrics.Spend, float64(metrics.Results))
	return metrics
}

// resolveResults sums leads and messaging starts, falling back to link
// clicks for traffic objectives that report neither.
func resolveResults(row Row) int64 {
	var total float64
	for _, actionType := range resultActionTypes {
		value, _ := lookup(row.Actions, actionType)
		total += value
	}
	if results := count(total); results > 0 {
		return results
	}
	if linkClicks, ok := lookup(row.Actions, ActionLinkClick); ok && linkClicks > 0 {
		return count(linkClicks)
	}
	return row.InlineLinkClicks
}

func lookup(values []ActionValue, actionType string) (float64, bool) {
	for _, value := range values {
		if value.ActionType == actionType {
			return value.Value, true
		}
	}
	return 0, false
}

func firstPresent(values []ActionValue, priority []string) (float64, string, bool) {
	for _, actionType := range priority {
		if value, ok := lookup(values, actionType); ok {
			return value, actionType, true
		}
	}
	return 0, "", false
}

// count rounds a reported quantity to a non-negative int64, saturating at
// math.MaxInt64.
func count(value float64) int64 {
	if math.IsNaN(value) || value <= 0 {
		return 0
	}
	rounded := math.Round(value)
	if rounded >= math.MaxInt64 {
		return math.MaxInt64
	}
	return int64(rounded)
}

func ratio(numerator float64, denominator float64) float64 {
	if denominator <= 0 {
		return 0
	}
	out := numerator / denominator
	if math.IsNaN(out) || math.IsInf(out, 0) {
		return 0
	}
	return out
}
