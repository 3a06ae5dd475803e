package insights

import (
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func recordWithRow(row Row) Record {
	return Record{ID: "ad_1", Name: "Ad 1", Insights: &row}
}

func TestMapMissingInsightsIsZero(t *testing.T) {
	t.Parallel()

	got := Map(DecodeRecord(map[string]any{
		"id":   "120001",
		"name": "No delivery",
	}))
	if diff := cmp.Diff(Metrics{}, got); diff != "" {
		t.Fatalf("unexpected metrics (-want +got):\n%s", diff)
	}
}

func TestMapCostPerPurchase(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name      string
		spend     float64
		purchases float64
		want      float64
	}{
		{name: "even split", spend: 100, purchases: 4, want: 25},
		{name: "fractional", spend: 10, purchases: 3, want: 10.0 / 3.0},
		{name: "no purchases", spend: 80, purchases: 0, want: 0},
		{name: "no spend", spend: 0, purchases: 2, want: 0},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got := MapRow(Row{
				Spend:   tc.spend,
				Actions: []ActionValue{{ActionType: ActionPurchase, Value: tc.purchases}},
			})
			if got.CostPerPurchase != tc.want {
				t.Fatalf("cost per purchase: got=%v want=%v", got.CostPerPurchase, tc.want)
			}
		})
	}
}

func TestMapCostPerPurchasePrefersReportedCost(t *testing.T) {
	t.Parallel()

	got := MapRow(Row{
		Spend:             100,
		Actions:           []ActionValue{{ActionType: ActionOmniPurchase, Value: 4}},
		CostPerActionType: []ActionValue{{ActionType: ActionOmniPurchase, Value: 24.5}},
	})
	if got.CostPerPurchase != 24.5 {
		t.Fatalf("expected reported cost per purchase, got %v", got.CostPerPurchase)
	}
}

func TestMapCostPerPurchaseMatchesCountedActionType(t *testing.T) {
	t.Parallel()

	got := MapRow(Row{
		Spend: 70,
		Actions: []ActionValue{
			{ActionType: ActionOmniPurchase, Value: 3},
			{ActionType: ActionPurchase, Value: 7},
		},
		CostPerActionType: []ActionValue{{ActionType: ActionOmniPurchase, Value: 23.33}},
	})
	if got.Purchases != 7 {
		t.Fatalf("expected purchases=7, got %d", got.Purchases)
	}
	if got.CostPerPurchase != 10 {
		t.Fatalf("expected cost per purchase derived from spend, got %v", got.CostPerPurchase)
	}

	got = MapRow(Row{
		Spend: 70,
		Actions: []ActionValue{
			{ActionType: ActionOmniPurchase, Value: 3},
			{ActionType: ActionPurchase, Value: 7},
		},
		CostPerActionType: []ActionValue{
			{ActionType: ActionOmniPurchase, Value: 23.33},
			{ActionType: ActionPurchase, Value: 9.5},
		},
	})
	if got.CostPerPurchase != 9.5 {
		t.Fatalf("expected purchase cost entry, got %v", got.CostPerPurchase)
	}
}

func TestMapCountsSaturateInsteadOfOverflowing(t *testing.T) {
	t.Parallel()

	got := MapRow(Row{
		Spend: 10,
		Actions: []ActionValue{
			{ActionType: ActionPurchase, Value: 1e30},
			{ActionType: ActionLandingPageView, Value: math.MaxFloat64},
		},
	})
	if got.Purchases != math.MaxInt64 {
		t.Fatalf("expected purchases to saturate, got %d", got.Purchases)
	}
	if got.LandingPageViews != math.MaxInt64 {
		t.Fatalf("expected landing page views to saturate, got %d", got.LandingPageViews)
	}
}

func TestMapROASZeroWithoutSpend(t *testing.T) {
	t.Parallel()

	got := MapRow(Row{
		Spend:        0,
		ActionValues: []ActionValue{{ActionType: ActionPurchase, Value: 500}},
	})
	if got.ROAS != 0 {
		t.Fatalf("expected roas 0, got %v", got.ROAS)
	}
	if got.Revenue != 500 {
		t.Fatalf("expected revenue to be kept, got %v", got.Revenue)
	}

	got = MapRow(Row{
		Spend:        50,
		ActionValues: []ActionValue{{ActionType: ActionPurchase, Value: 200}},
	})
	if got.ROAS != 4 {
		t.Fatalf("expected roas 4, got %v", got.ROAS)
	}
}

func TestMapPurchasePriorityFirstMatchWins(t *testing.T) {
	t.Parallel()

	got := MapRow(Row{
		Spend: 10,
		Actions: []ActionValue{
			{ActionType: ActionOmniPurchase, Value: 3},
			{ActionType: ActionPurchase, Value: 7},
		},
	})
	if got.Purchases != 7 {
		t.Fatalf("expected purchases=7, got %d", got.Purchases)
	}

	got = MapRow(Row{
		Spend: 10,
		Actions: []ActionValue{
			{ActionType: ActionOffsitePixelPurchase, Value: 9},
			{ActionType: ActionOmniPurchase, Value: 3},
		},
	})
	if got.Purchases != 3 {
		t.Fatalf("expected omni_purchase to win over pixel purchase, got %d", got.Purchases)
	}
}

func TestMapResultsFallsBackToLinkClicks(t *testing.T) {
	t.Parallel()

	got := MapRow(Row{
		Spend: 21,
		Actions: []ActionValue{
			{ActionType: ActionLead, Value: 0},
			{ActionType: ActionLinkClick, Value: 42},
		},
	})
	if got.Results != 42 {
		t.Fatalf("expected results=42, got %d", got.Results)
	}
	if got.CostPerResult != 0.5 {
		t.Fatalf("expected cost per result 0.5, got %v", got.CostPerResult)
	}
}

func TestMapResultsSumsLeadsAndMessaging(t *testing.T) {
	t.Parallel()

	got := MapRow(Row{
		Spend: 30,
		Actions: []ActionValue{
			{ActionType: ActionLead, Value: 2},
			{ActionType: ActionOnsiteMessagingStarted, Value: 3},
			{ActionType: ActionMessagingStarted, Value: 1},
			{ActionType: ActionLinkClick, Value: 400},
		},
	})
	if got.Results != 6 {
		t.Fatalf("expected results=6, got %d", got.Results)
	}
	if got.CostPerResult != 5 {
		t.Fatalf("expected cost per result 5, got %v", got.CostPerResult)
	}
}

func TestMapResultsUsesInlineLinkClicksLast(t *testing.T) {
	t.Parallel()

	got := MapRow(Row{Spend: 9, InlineLinkClicks: 3})
	if got.Results != 3 {
		t.Fatalf("expected results=3, got %d", got.Results)
	}
}

func TestMapLandingPageViews(t *testing.T) {
	t.Parallel()

	got := MapRow(Row{
		Spend:   60,
		Actions: []ActionValue{{ActionType: ActionLandingPageView, Value: 30}},
	})
	if got.LandingPageViews != 30 || got.CostPerLandingPageView != 2 {
		t.Fatalf("unexpected landing page metrics: %#v", got)
	}

	got = MapRow(Row{Spend: 60})
	if got.CostPerLandingPageView != 0 {
		t.Fatalf("expected zero cost per landing page view, got %v", got.CostPerLandingPageView)
	}
}

func TestMapFullRecord(t *testing.T) {
	t.Parallel()

	record := DecodeRecord(map[string]any{
		"id":   "120002",
		"name": "Winter sale",
		"insights": map[string]any{
			"data": []any{
				map[string]any{
					"spend":                 "150.50",
					"impressions":           "12000",
					"clicks":                "340",
					"ctr":                   "2.833333",
					"inline_link_click_ctr": "1.5",
					"inline_link_clicks":    "180",
					"actions": []any{
						map[string]any{"action_type": "link_click", "value": "180"},
						map[string]any{"action_type": "landing_page_view", "value": "120"},
						map[string]any{"action_type": "purchase", "value": "5"},
					},
					"action_values": []any{
						map[string]any{"action_type": "purchase", "value": "602"},
					},
				},
			},
		},
	})

	want := Metrics{
		Spend:                  150.5,
		Revenue:                602,
		ROAS:                   4,
		Impressions:            12000,
		Clicks:                 340,
		CTR:                    2.833333,
		InlineLinkClickCTR:     1.5,
		Purchases:              5,
		CostPerPurchase:        30.1,
		LandingPageViews:       120,
		CostPerLandingPageView: 150.5 / 120,
		Results:                180,
		CostPerResult:          150.5 / 180,
	}
	if diff := cmp.Diff(want, Map(record)); diff != "" {
		t.Fatalf("unexpected metrics (-want +got):\n%s", diff)
	}
}

func TestRatioNeverProducesNonFiniteValues(t *testing.T) {
	t.Parallel()

	for _, tc := range []struct{ num, den float64 }{
		{1, 0},
		{0, 0},
		{math.MaxFloat64, 1e-308},
		{5, -1},
	} {
		got := ratio(tc.num, tc.den)
		if math.IsNaN(got) || math.IsInf(got, 0) {
			t.Fatalf("ratio(%v, %v) = %v", tc.num, tc.den, got)
		}
	}
}
