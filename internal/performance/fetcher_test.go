package performance

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/adsrocket/adsrocket/internal/cache"
	"github.com/adsrocket/adsrocket/internal/graph"
	"github.com/adsrocket/adsrocket/internal/insights"
	"github.com/adsrocket/adsrocket/internal/window"
	"github.com/google/go-cmp/cmp"
)

var testCreds = graph.Credentials{Version: "v25.0", AccessToken: "token-1"}

func fixedNow() time.Time {
	return time.Date(2026, 10, 16, 12, 0, 0, 0, time.UTC)
}

func adRecord(id string, spend string, purchases string, revenue string) map[string]any {
	return map[string]any{
		"id":               id,
		"name":             "Ad " + id,
		"effective_status": "ACTIVE",
		"creative":         map[string]any{"id": "cr_" + id, "image_url": "https://cdn.example.com/" + id + ".jpg"},
		"insights": map[string]any{
			"data": []map[string]any{{
				"spend":         spend,
				"actions":       []map[string]any{{"action_type": "purchase", "value": purchases}},
				"action_values": []map[string]any{{"action_type": "purchase", "value": revenue}},
			}},
		},
	}
}

type adsServer struct {
	*httptest.Server
	calls     int32
	lastQuery atomic.Value
}

func newAdsServer(t *testing.T, handler func(w http.ResponseWriter, r *http.Request)) *adsServer {
	t.Helper()
	s := &adsServer{}
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&s.calls, 1)
		s.lastQuery.Store(r.URL.Query())
		handler(w, r)
	}))
	t.Cleanup(s.Close)
	return s
}

func (s *adsServer) Calls() int {
	return int(atomic.LoadInt32(&s.calls))
}

func newTestFetcher(server *httptest.Server) *Fetcher {
	fetcher := NewFetcher(graph.NewClient(server.Client(), server.URL), cache.NewMemory(fixedNow))
	fetcher.Now = fixedNow
	return fetcher
}

func writeData(w http.ResponseWriter, items ...map[string]any) {
	_ = json.NewEncoder(w).Encode(map[string]any{"data": items})
}

func TestFetchTopPerformersRanksByPurchasesThenROAS(t *testing.T) {
	t.Parallel()

	server := newAdsServer(t, func(w http.ResponseWriter, r *http.Request) {
		writeData(w,
			adRecord("A", "100", "5", "100"),
			adRecord("B", "100", "5", "300"),
			adRecord("C", "100", "10", "50"),
		)
	})

	ranked, err := newTestFetcher(server.Server).FetchTopPerformers(context.Background(), "act_42", testCreds, window.Preset(window.PresetLast7D), 3)
	if err != nil {
		t.Fatalf("fetch top performers: %v", err)
	}

	got := make([]string, 0, len(ranked))
	for _, ad := range ranked {
		got = append(got, ad.ID)
	}
	if diff := cmp.Diff([]string{"C", "B", "A"}, got); diff != "" {
		t.Fatalf("unexpected order (-want +got):\n%s", diff)
	}
	if ranked[0].Creative.Kind != CreativeImage || ranked[0].Creative.ID != "cr_C" {
		t.Fatalf("unexpected creative %#v", ranked[0].Creative)
	}
}

func TestFetchTopPerformersExcludesZeroSpend(t *testing.T) {
	t.Parallel()

	server := newAdsServer(t, func(w http.ResponseWriter, r *http.Request) {
		writeData(w,
			adRecord("anomaly", "0", "10", "999"),
			adRecord("real", "20", "1", "40"),
			map[string]any{"id": "no-insights", "name": "Idle"},
		)
	})

	ranked, err := newTestFetcher(server.Server).FetchTopPerformers(context.Background(), "42", testCreds, window.Preset(window.PresetToday), 3)
	if err != nil {
		t.Fatalf("fetch top performers: %v", err)
	}
	if len(ranked) != 1 || ranked[0].ID != "real" {
		t.Fatalf("expected only the ad with spend, got %#v", ranked)
	}
}

func TestFetchTopPerformersCachesWithinTTL(t *testing.T) {
	t.Parallel()

	server := newAdsServer(t, func(w http.ResponseWriter, r *http.Request) {
		writeData(w,
			adRecord("1", "10.10", "1", "33.3"),
			adRecord("2", "55.5", "3", "120.75"),
		)
	})
	fetcher := newTestFetcher(server.Server)
	ctx := context.Background()
	spec := window.Preset(window.PresetLast3D)

	first, err := fetcher.FetchTopPerformers(ctx, "42", testCreds, spec, 3)
	if err != nil {
		t.Fatalf("first fetch: %v", err)
	}
	second, err := fetcher.FetchTopPerformers(ctx, "42", testCreds, spec, 3)
	if err != nil {
		t.Fatalf("second fetch: %v", err)
	}
	if server.Calls() != 1 {
		t.Fatalf("expected exactly one remote call, got %d", server.Calls())
	}

	firstJSON, _ := json.Marshal(first)
	secondJSON, _ := json.Marshal(second)
	if string(firstJSON) != string(secondJSON) {
		t.Fatalf("cached output differs:\n%s\n%s", firstJSON, secondJSON)
	}
	if diff := cmp.Diff(first, second); diff != "" {
		t.Fatalf("cached output differs (-first +second):\n%s", diff)
	}
}

func TestFetchTopPerformersRefetchesAfterInvalidation(t *testing.T) {
	t.Parallel()

	server := newAdsServer(t, func(w http.ResponseWriter, r *http.Request) {
		writeData(w, adRecord("1", "10", "1", "20"))
	})
	fetcher := newTestFetcher(server.Server)
	ctx := context.Background()
	spec := window.Preset(window.PresetYesterday)

	if _, err := fetcher.FetchTopPerformers(ctx, "42", testCreds, spec, 3); err != nil {
		t.Fatalf("first fetch: %v", err)
	}
	fetcher.Cache.InvalidateAll(ctx)
	if _, err := fetcher.FetchTopPerformers(ctx, "42", testCreds, spec, 3); err != nil {
		t.Fatalf("second fetch: %v", err)
	}
	if server.Calls() != 2 {
		t.Fatalf("expected a fresh remote call after invalidation, got %d calls", server.Calls())
	}
}

func TestFetchTopPerformersKeysByLimitAndWindow(t *testing.T) {
	t.Parallel()

	server := newAdsServer(t, func(w http.ResponseWriter, r *http.Request) {
		writeData(w, adRecord("1", "10", "1", "20"))
	})
	fetcher := newTestFetcher(server.Server)
	ctx := context.Background()

	_, _ = fetcher.FetchTopPerformers(ctx, "42", testCreds, window.Preset(window.PresetToday), 3)
	_, _ = fetcher.FetchTopPerformers(ctx, "42", testCreds, window.Preset(window.PresetToday), 5)
	_, _ = fetcher.FetchTopPerformers(ctx, "42", testCreds, window.Preset(window.PresetLast7D), 3)
	_, _ = fetcher.FetchTopPerformers(ctx, "43", testCreds, window.Preset(window.PresetToday), 3)
	_, _ = fetcher.FetchTopPerformers(ctx, "act_42", testCreds, window.Preset(window.PresetToday), 0)

	if server.Calls() != 4 {
		t.Fatalf("expected 4 distinct remote calls, got %d", server.Calls())
	}
}

func TestFetchTopPerformersDefaultsAndTruncates(t *testing.T) {
	t.Parallel()

	server := newAdsServer(t, func(w http.ResponseWriter, r *http.Request) {
		writeData(w,
			adRecord("1", "10", "1", "10"),
			adRecord("2", "10", "2", "10"),
			adRecord("3", "10", "3", "10"),
			adRecord("4", "10", "4", "10"),
			adRecord("5", "10", "5", "10"),
		)
	})

	ranked, err := newTestFetcher(server.Server).FetchTopPerformers(context.Background(), "42", testCreds, window.Preset(window.PresetToday), 0)
	if err != nil {
		t.Fatalf("fetch top performers: %v", err)
	}
	if len(ranked) != DefaultLimit || ranked[0].ID != "5" {
		t.Fatalf("unexpected ranking %#v", ranked)
	}
}

func TestFetchTopPerformersBuildsSingleExpandedQuery(t *testing.T) {
	t.Parallel()

	var path string
	server := newAdsServer(t, func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		writeData(w)
	})

	_, err := newTestFetcher(server.Server).FetchTopPerformers(context.Background(), "42", testCreds, window.Preset(window.PresetLast7D), 3)
	if err != nil {
		t.Fatalf("fetch top performers: %v", err)
	}
	if path != "/v25.0/act_42/ads" {
		t.Fatalf("unexpected path %s", path)
	}

	query := server.lastQuery.Load().(url.Values)
	fields := query["fields"][0]
	for _, fragment := range []string{
		`creative{id,video_id,image_url,thumbnail_url,effective_instagram_media_id}`,
		`insights.time_range({"since":"2026-10-10","until":"2026-10-16"}){spend,`,
		`cost_per_action_type}`,
	} {
		if !strings.Contains(fields, fragment) {
			t.Fatalf("fields %q missing %q", fields, fragment)
		}
	}
	if got := query["effective_status"][0]; got != `["ACTIVE","PAUSED","CAMPAIGN_PAUSED","ADSET_PAUSED"]` {
		t.Fatalf("unexpected status filter %q", got)
	}
	if got := query["limit"][0]; got != "100" {
		t.Fatalf("unexpected page size %q", got)
	}
}

func TestFetchTopPerformersFollowsPaging(t *testing.T) {
	t.Parallel()

	var server *adsServer
	server = newAdsServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("after") == "" {
			_ = json.NewEncoder(w).Encode(map[string]any{
				"data":   []map[string]any{adRecord("1", "10", "1", "10")},
				"paging": map[string]any{"next": server.URL + "/v25.0/act_42/ads?after=page2"},
			})
			return
		}
		writeData(w, adRecord("2", "10", "9", "10"))
	})

	ranked, err := newTestFetcher(server.Server).FetchTopPerformers(context.Background(), "42", testCreds, window.Preset(window.PresetToday), 3)
	if err != nil {
		t.Fatalf("fetch top performers: %v", err)
	}
	if len(ranked) != 2 || ranked[0].ID != "2" {
		t.Fatalf("expected both pages ranked together, got %#v", ranked)
	}
}

func TestFetchTopPerformersEmptyIsNotAnError(t *testing.T) {
	t.Parallel()

	server := newAdsServer(t, func(w http.ResponseWriter, r *http.Request) {
		writeData(w, adRecord("1", "0", "0", "0"))
	})
	fetcher := newTestFetcher(server.Server)

	ranked, err := fetcher.FetchTopPerformers(context.Background(), "42", testCreds, window.Preset(window.PresetToday), 3)
	if err != nil {
		t.Fatalf("fetch top performers: %v", err)
	}
	if ranked == nil || len(ranked) != 0 {
		t.Fatalf("expected empty non-nil slice, got %#v", ranked)
	}

	cached, err := fetcher.FetchTopPerformers(context.Background(), "42", testCreds, window.Preset(window.PresetToday), 3)
	if err != nil || cached == nil || len(cached) != 0 {
		t.Fatalf("expected cached empty result, got %#v err=%v", cached, err)
	}
}

func TestFetchTopPerformersPropagatesClassifiedErrors(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name     string
		body     string
		sentinel error
	}{
		{name: "rate limit", body: `{"error":{"message":"Too many calls","type":"OAuthException","code":80004}}`, sentinel: graph.ErrRateLimited},
		{name: "expired token", body: `{"error":{"message":"Session has expired","type":"OAuthException","code":190,"error_subcode":463}}`, sentinel: graph.ErrAuth},
		{name: "permission", body: `{"error":{"message":"Missing ads_read","type":"OAuthException","code":200}}`, sentinel: graph.ErrAuth},
		{name: "validation", body: `{"error":{"message":"Invalid time_range","type":"OAuthException","code":100}}`, sentinel: graph.ErrValidation},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			server := newAdsServer(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusBadRequest)
				_, _ = w.Write([]byte(tc.body))
			})
			fetcher := newTestFetcher(server.Server)

			ranked, err := fetcher.FetchTopPerformers(context.Background(), "42", testCreds, window.Preset(window.PresetToday), 3)
			if !errors.Is(err, tc.sentinel) {
				t.Fatalf("expected %v, got %v", tc.sentinel, err)
			}
			if ranked != nil {
				t.Fatalf("expected no result on error, got %#v", ranked)
			}
			if !strings.Contains(err.Error(), "act_42") || !strings.Contains(err.Error(), "2026-10-16") {
				t.Fatalf("expected account and window context, got %q", err.Error())
			}
			if server.Calls() != 1 {
				t.Fatalf("expected no retry, got %d calls", server.Calls())
			}

			if _, ok := fetcher.Cache.Get(context.Background(), cache.Key(resourceTopAds, "42", "2026-10-16", "2026-10-16", "3")); ok {
				t.Fatal("failed fetch must not populate the cache")
			}
		})
	}
}

func TestFetchTopPerformersRejectsInvalidInput(t *testing.T) {
	t.Parallel()

	fetcher := NewFetcher(nil, nil)
	fetcher.Now = fixedNow
	ctx := context.Background()

	if _, err := fetcher.FetchTopPerformers(ctx, "", testCreds, window.Preset(window.PresetToday), 3); err == nil {
		t.Fatal("expected account id error")
	}
	if _, err := fetcher.FetchTopPerformers(ctx, "42", testCreds, window.Preset("last_90d"), 3); !errors.Is(err, window.ErrInvalid) {
		t.Fatalf("expected invalid window error, got %v", err)
	}
	if _, err := fetcher.FetchTopPerformers(ctx, "42", graph.Credentials{}, window.Preset(window.PresetToday), 3); err == nil {
		t.Fatal("expected missing token error")
	}
}

func TestFetchTopPerformersIgnoresUndecodableCacheEntry(t *testing.T) {
	t.Parallel()

	server := newAdsServer(t, func(w http.ResponseWriter, r *http.Request) {
		writeData(w, adRecord("1", "10", "1", "10"))
	})
	fetcher := newTestFetcher(server.Server)
	ctx := context.Background()
	fetcher.Cache.Set(ctx, cache.Key(resourceTopAds, "42", "2026-10-16", "2026-10-16", "3"), []byte("{broken"))

	ranked, err := fetcher.FetchTopPerformers(ctx, "42", testCreds, window.Preset(window.PresetToday), 3)
	if err != nil {
		t.Fatalf("fetch top performers: %v", err)
	}
	if len(ranked) != 1 || server.Calls() != 1 {
		t.Fatalf("expected a refetch, got %d calls and %#v", server.Calls(), ranked)
	}
}

func TestCreativeFromPrecedence(t *testing.T) {
	t.Parallel()

	for _, tc := range []struct {
		name string
		raw  map[string]any
		want string
	}{
		{name: "video wins", raw: map[string]any{"video_id": "v", "image_url": "i", "effective_instagram_media_id": "ig"}, want: CreativeVideo},
		{name: "image", raw: map[string]any{"image_url": "i", "effective_instagram_media_id": "ig"}, want: CreativeImage},
		{name: "thumbnail only", raw: map[string]any{"thumbnail_url": "t"}, want: CreativeImage},
		{name: "instagram", raw: map[string]any{"effective_instagram_media_id": "ig"}, want: CreativeInstagram},
		{name: "empty", raw: map[string]any{"id": "cr"}, want: CreativeNone},
	} {
		record := insights.DecodeRecord(map[string]any{"id": "1", "creative": tc.raw})
		if got := CreativeFrom(record.Creative).Kind; got != tc.want {
			t.Fatalf("%s: got %s want %s", tc.name, got, tc.want)
		}
	}

	if CreativeFrom(nil).Kind != CreativeNone {
		t.Fatal("expected none for missing creative")
	}
}
