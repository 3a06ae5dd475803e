package marketing

import (
	"context"
	"fmt"

	"github.com/adsrocket/adsrocket/internal/graph"
	"github.com/adsrocket/adsrocket/internal/insights"
	"github.com/adsrocket/adsrocket/internal/performance"
)

// AdCreative reads the current creative of one ad straight from Graph. It is
// the fallback when no report history is available.
func (s *Service) AdCreative(ctx context.Context, creds graph.Credentials, adID string) (*performance.Creative, error) {
	adID, err := normalizeGraphID("ad id", adID)
	if err != nil {
		return nil, err
	}
	if err := creds.Validate(); err != nil {
		return nil, err
	}

	response, err := s.Client.Do(ctx, creds.Get(adID, map[string]string{
		"fields": "id,name,creative{id,video_id,image_url,thumbnail_url,effective_instagram_media_id}",
	}))
	if err != nil {
		return nil, fmt.Errorf("read creative of ad %s: %w", adID, err)
	}
	creative := performance.CreativeFrom(insights.DecodeRecord(response.Body).Creative)
	return &creative, nil
}
