package performance

import "github.com/adsrocket/adsrocket/internal/insights"

const (
	CreativeVideo     = "video"
	CreativeImage     = "image"
	CreativeInstagram = "instagram"
	CreativeNone      = "none"
)

// RankedAd is one entry of a top-performers list.
type RankedAd struct {
	ID       string           `json:"id"`
	Name     string           `json:"name"`
	Metrics  insights.Metrics `json:"metrics"`
	Creative Creative         `json:"creative"`
}

type Creative struct {
	Kind             string `json:"kind"`
	ID               string `json:"id,omitempty"`
	VideoID          string `json:"video_id,omitempty"`
	ImageURL         string `json:"image_url,omitempty"`
	ThumbnailURL     string `json:"thumbnail_url,omitempty"`
	InstagramMediaID string `json:"instagram_media_id,omitempty"`
}

// Entity is one campaign, ad set or ad row of the dashboard tree.
type Entity struct {
	ID              string           `json:"id"`
	Name            string           `json:"name"`
	Status          string           `json:"status,omitempty"`
	EffectiveStatus string           `json:"effective_status,omitempty"`
	Objective       string           `json:"objective,omitempty"`
	DailyBudget     int64            `json:"daily_budget,omitempty"`
	LifetimeBudget  int64            `json:"lifetime_budget,omitempty"`
	Metrics         insights.Metrics `json:"metrics"`
}

// CreativeFrom picks the creative kind by precedence: video, image,
// Instagram media, none.
func CreativeFrom(raw *insights.Creative) Creative {
	if raw == nil {
		return Creative{Kind: CreativeNone}
	}
	creative := Creative{
		ID:               raw.ID,
		VideoID:          raw.VideoID,
		ImageURL:         raw.ImageURL,
		ThumbnailURL:     raw.ThumbnailURL,
		InstagramMediaID: raw.InstagramMediaID,
	}
	switch {
	case raw.VideoID != "":
		creative.Kind = CreativeVideo
	case raw.ImageURL != "" || raw.ThumbnailURL != "":
		creative.Kind = CreativeImage
	case raw.InstagramMediaID != "":
		creative.Kind = CreativeInstagram
	default:
		creative.Kind = CreativeNone
	}
	return creative
}

func entityFrom(record insights.Record) Entity {
	return Entity{
		ID:              record.ID,
		Name:            record.Name,
		Status:          record.Status,
		EffectiveStatus: record.EffectiveStatus,
		Objective:       record.Objective,
		DailyBudget:     record.DailyBudget,
		LifetimeBudget:  record.LifetimeBudget,
		Metrics:         insights.Map(record),
	}
}
