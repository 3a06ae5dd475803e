package insights

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// Record is one Graph ad, ad set or campaign object with its optional
// insights row. It is produced only by DecodeRecord.
type Record struct {
	ID              string
	Name            string
	Status          string
	EffectiveStatus string
	Objective       string
	DailyBudget     int64
	LifetimeBudget  int64
	Creative        *Creative
	Insights        *Row
}

type Creative struct {
	ID               string
	VideoID          string
	ImageURL         string
	ThumbnailURL     string
	InstagramMediaID string
}

// Row is a single insights row. Numeric fields are already coerced.
type Row struct {
	DateStart          string
	DateStop           string
	Spend              float64
	Impressions        int64
	Clicks             int64
	CTR                float64
	InlineLinkClickCTR float64
	InlineLinkClicks   int64
	Actions            []ActionValue
	ActionValues       []ActionValue
	CostPerActionType  []ActionValue
}

type ActionValue struct {
	ActionType string
	Value      float64
}

// DecodeRecord reads a raw Graph object. Absent or malformed fields become
// zero values; it never fails.
func DecodeRecord(raw map[string]any) Record {
	record := Record{
		ID:              stringField(raw, "id"),
		Name:            stringField(raw, "name"),
		Status:          stringField(raw, "status"),
		EffectiveStatus: stringField(raw, "effective_status"),
		Objective:       stringField(raw, "objective"),
		DailyBudget:     intField(raw, "daily_budget"),
		LifetimeBudget:  intField(raw, "lifetime_budget"),
	}
	if creative, ok := raw["creative"].(map[string]any); ok {
		record.Creative = &Creative{
			ID:               stringField(creative, "id"),
			VideoID:          stringField(creative, "video_id"),
			ImageURL:         stringField(creative, "image_url"),
			ThumbnailURL:     stringField(creative, "thumbnail_url"),
			InstagramMediaID: stringField(creative, "effective_instagram_media_id"),
		}
	}
	if edge, ok := raw["insights"].(map[string]any); ok {
		if rows, ok := edge["data"].([]any); ok && len(rows) > 0 {
			if first, ok := rows[0].(map[string]any); ok {
				row := DecodeRow(first)
				record.Insights = &row
			}
		}
	}
	return record
}

// DecodeRow reads one insights row, as returned inline under an object's
// insights edge or directly by an /insights endpoint.
func DecodeRow(raw map[string]any) Row {
	return Row{
		DateStart:          stringField(raw, "date_start"),
		DateStop:           stringField(raw, "date_stop"),
		Spend:              floatField(raw, "spend"),
		Impressions:        intField(raw, "impressions"),
		Clicks:             intField(raw, "clicks"),
		CTR:                floatField(raw, "ctr"),
		InlineLinkClickCTR: floatField(raw, "inline_link_click_ctr"),
		InlineLinkClicks:   intField(raw, "inline_link_clicks"),
		Actions:            actionList(raw["actions"]),
		ActionValues:       actionList(raw["action_values"]),
		CostPerActionType:  actionList(raw["cost_per_action_type"]),
	}
}

func actionList(value any) []ActionValue {
	items, ok := value.([]any)
	if !ok {
		return nil
	}
	out := make([]ActionValue, 0, len(items))
	for _, item := range items {
		entry, ok := item.(map[string]any)
		if !ok {
			continue
		}
		actionType := strings.TrimSpace(stringField(entry, "action_type"))
		if actionType == "" {
			continue
		}
		out = append(out, ActionValue{
			ActionType: actionType,
			Value:      coerceFloat(entry["value"]),
		})
	}
	return out
}

func stringField(raw map[string]any, key string) string {
	switch typed := raw[key].(type) {
	case string:
		return typed
	case float64:
		return strconv.FormatFloat(typed, 'f', -1, 64)
	case json.Number:
		return typed.String()
	default:
		return ""
	}
}

func floatField(raw map[string]any, key string) float64 {
	return coerceFloat(raw[key])
}

func intField(raw map[string]any, key string) int64 {
	return count(coerceFloat(raw[key]))
}

// coerceFloat accepts the string-encoded numbers Graph returns as well as
// plain JSON numbers. Anything else, negatives and non-finite values
// included, is 0.
func coerceFloat(value any) float64 {
	var parsed float64
	switch typed := value.(type) {
	case float64:
		parsed = typed
	case int:
		parsed = float64(typed)
	case int64:
		parsed = float64(typed)
	case json.Number:
		f, err := typed.Float64()
		if err != nil {
			return 0
		}
		parsed = f
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(typed), 64)
		if err != nil {
			return 0
		}
		parsed = f
	default:
		return 0
	}
	if math.IsNaN(parsed) || math.IsInf(parsed, 0) || parsed < 0 {
		return 0
	}
	return parsed
}
