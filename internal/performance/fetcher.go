// Package performance ranks ads by delivered conversions and serves the
// campaign, ad set and ad tree behind the dashboard.
package performance

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/adsrocket/adsrocket/internal/cache"
	"github.com/adsrocket/adsrocket/internal/config"
	"github.com/adsrocket/adsrocket/internal/graph"
	"github.com/adsrocket/adsrocket/internal/insights"
	"github.com/adsrocket/adsrocket/internal/logging"
	"github.com/adsrocket/adsrocket/internal/window"
	"github.com/sirupsen/logrus"
)

const (
	DefaultLimit = 3
	pageSize     = 100

	resourceTopAds    = "top_ads"
	resourceCampaigns = "campaigns"
	resourceAdSets    = "adsets"
	resourceAds       = "ads"
)

const creativeFields = "creative{id,video_id,image_url,thumbnail_url,effective_instagram_media_id}"

var (
	adStatuses       = []string{"ACTIVE", "PAUSED", "CAMPAIGN_PAUSED", "ADSET_PAUSED"}
	adSetStatuses    = []string{"ACTIVE", "PAUSED", "CAMPAIGN_PAUSED"}
	campaignStatuses = []string{"ACTIVE", "PAUSED"}
)

type Fetcher struct {
	Client *graph.Client
	Cache  cache.Layer
	Now    func() time.Time
	Logger logrus.FieldLogger
}

func NewFetcher(client *graph.Client, layer cache.Layer) *Fetcher {
	if client == nil {
		client = graph.NewClient(nil, "")
	}
	if layer == nil {
		layer = cache.NewMemory(nil)
	}
	return &Fetcher{
		Client: client,
		Cache:  layer,
		Now:    time.Now,
		Logger: logging.Discard(),
	}
}

// FetchTopPerformers returns at most limit ads with spend in the window,
// ordered by purchases then ROAS, both descending. Ties keep the order the
// platform returned. A limit of zero or less means DefaultLimit.
func (f *Fetcher) FetchTopPerformers(ctx context.Context, accountID string, creds graph.Credentials, spec window.Spec, limit int) ([]RankedAd, error) {
	accountID = config.NormalizeAccountID(accountID)
	if accountID == "" {
		return nil, errors.New("account id is required")
	}
	if limit <= 0 {
		limit = DefaultLimit
	}
	r, err := f.resolve(spec)
	if err != nil {
		return nil, err
	}

	key := cache.Key(resourceTopAds, accountID, r.SinceDate(), r.UntilDate(), strconv.Itoa(limit))
	var ranked []RankedAd
	if f.lookup(ctx, key, &ranked) {
		return ranked, nil
	}
	if err := creds.Validate(); err != nil {
		return nil, err
	}

	records, err := f.fetchRecords(ctx, creds, fmt.Sprintf("act_%s/ads", accountID), r, []string{
		"id",
		"name",
		"effective_status",
		creativeFields,
	}, adStatuses)
	if err != nil {
		return nil, fmt.Errorf("fetch top ads for act_%s (%s): %w", accountID, r.String(), err)
	}

	ranked = Rank(records, limit)
	f.store(ctx, key, ranked)
	return ranked, nil
}

// Rank maps records, drops those without spend, sorts and truncates.
func Rank(records []insights.Record, limit int) []RankedAd {
	ranked := make([]RankedAd, 0, len(records))
	for _, record := range records {
		metrics := insights.Map(record)
		if metrics.Spend <= 0 {
			continue
		}
		ranked = append(ranked, RankedAd{
			ID:       record.ID,
			Name:     record.Name,
			Metrics:  metrics,
			Creative: CreativeFrom(record.Creative),
		})
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		left, right := ranked[i].Metrics, ranked[j].Metrics
		if left.Purchases != right.Purchases {
			return left.Purchases > right.Purchases
		}
		return left.ROAS > right.ROAS
	})

	if limit > 0 && len(ranked) > limit {
		ranked = ranked[:limit]
	}
	return ranked
}

// Campaigns lists the account's campaigns with metrics for the window, in
// platform order.
func (f *Fetcher) Campaigns(ctx context.Context, accountID string, creds graph.Credentials, spec window.Spec) ([]Entity, error) {
	accountID = config.NormalizeAccountID(accountID)
	if accountID == "" {
		return nil, errors.New("account id is required")
	}
	return f.entities(ctx, resourceCampaigns, accountID, fmt.Sprintf("act_%s/campaigns", accountID), creds, spec, []string{
		"id",
		"name",
		"status",
		"effective_status",
		"objective",
		"daily_budget",
		"lifetime_budget",
	}, campaignStatuses)
}

func (f *Fetcher) AdSets(ctx context.Context, campaignID string, creds graph.Credentials, spec window.Spec) ([]Entity, error) {
	campaignID = strings.TrimSpace(campaignID)
	if campaignID == "" {
		return nil, errors.New("campaign id is required")
	}
	return f.entities(ctx, resourceAdSets, campaignID, campaignID+"/adsets", creds, spec, []string{
		"id",
		"name",
		"status",
		"effective_status",
		"daily_budget",
		"lifetime_budget",
	}, adSetStatuses)
}

func (f *Fetcher) Ads(ctx context.Context, adSetID string, creds graph.Credentials, spec window.Spec) ([]Entity, error) {
	adSetID = strings.TrimSpace(adSetID)
	if adSetID == "" {
		return nil, errors.New("ad set id is required")
	}
	return f.entities(ctx, resourceAds, adSetID, adSetID+"/ads", creds, spec, []string{
		"id",
		"name",
		"status",
		"effective_status",
	}, adStatuses)
}

func (f *Fetcher) entities(ctx context.Context, resource string, parentID string, path string, creds graph.Credentials, spec window.Spec, fields []string, statuses []string) ([]Entity, error) {
	r, err := f.resolve(spec)
	if err != nil {
		return nil, err
	}

	key := cache.Key(resource, parentID, r.SinceDate(), r.UntilDate())
	var entities []Entity
	if f.lookup(ctx, key, &entities) {
		return entities, nil
	}
	if err := creds.Validate(); err != nil {
		return nil, err
	}

	records, err := f.fetchRecords(ctx, creds, path, r, fields, statuses)
	if err != nil {
		return nil, fmt.Errorf("fetch %s for %s (%s): %w", resource, parentID, r.String(), err)
	}
	entities = make([]Entity, 0, len(records))
	for _, record := range records {
		entities = append(entities, entityFrom(record))
	}
	f.store(ctx, key, entities)
	return entities, nil
}

// fetchRecords issues one paginated GET with the insights edge expanded
// inline, so each object arrives with its metrics in the same response.
func (f *Fetcher) fetchRecords(ctx context.Context, creds graph.Credentials, path string, r window.Range, fields []string, statuses []string) ([]insights.Record, error) {
	statusFilter, err := json.Marshal(statuses)
	if err != nil {
		return nil, fmt.Errorf("encode status filter: %w", err)
	}
	selected := append(append([]string{}, fields...), insightsEdge(r))

	records := make([]insights.Record, 0)
	_, err = f.Client.FetchWithPagination(ctx, creds.Get(path, map[string]string{
		"fields":           strings.Join(selected, ","),
		"effective_status": string(statusFilter),
	}), graph.PaginationOptions{
		FollowNext: true,
		PageSize:   pageSize,
	}, func(item map[string]any) error {
		records = append(records, insights.DecodeRecord(item))
		return nil
	})
	if err != nil {
		return nil, err
	}
	return records, nil
}

func insightsEdge(r window.Range) string {
	return fmt.Sprintf("insights.time_range(%s){%s}", r.TimeRangeParam(), insights.FieldList())
}

func (f *Fetcher) resolve(spec window.Spec) (window.Range, error) {
	now := time.Now
	if f.Now != nil {
		now = f.Now
	}
	return spec.Resolve(now())
}

// lookup decodes a cached payload into out. A payload that fails to decode
// is treated as a miss.
func (f *Fetcher) lookup(ctx context.Context, key string, out any) bool {
	data, ok := f.Cache.Get(ctx, key)
	if !ok {
		f.logger().WithField("cache_key", key).Debug("performance cache miss")
		return false
	}
	if err := json.Unmarshal(data, out); err != nil {
		f.logger().WithError(err).WithField("cache_key", key).Warn("discarding undecodable cache entry")
		return false
	}
	f.logger().WithField("cache_key", key).Debug("performance cache hit")
	return true
}

func (f *Fetcher) store(ctx context.Context, key string, value any) {
	data, err := json.Marshal(value)
	if err != nil {
		f.logger().WithError(err).WithField("cache_key", key).Warn("encode cache entry")
		return
	}
	f.Cache.Set(ctx, key, data)
}

func (f *Fetcher) logger() logrus.FieldLogger {
	if f.Logger == nil {
		return logging.Discard()
	}
	return f.Logger
}
