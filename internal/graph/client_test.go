package graph

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"golang.org/x/time/rate"
)

func newTestClient(server *httptest.Server) *Client {
	client := NewClient(server.Client(), server.URL)
	client.InitialBackoff = 1 * time.Millisecond
	client.MaxBackoff = 1 * time.Millisecond
	client.Sleep = func(time.Duration) {}
	return client
}

func TestClassify(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name    string
		status  int
		code    int
		subcode int
		want    ErrorKind
	}{
		{name: "http 429", status: 429, want: KindRateLimited},
		{name: "app limit", status: 400, code: 4, want: KindRateLimited},
		{name: "user limit", status: 400, code: 17, want: KindRateLimited},
		{name: "page limit", status: 400, code: 32, want: KindRateLimited},
		{name: "throttled", status: 400, code: 613, want: KindRateLimited},
		{name: "ads insights bucket", status: 400, code: 80000, want: KindRateLimited},
		{name: "ads management bucket", status: 400, code: 80004, want: KindRateLimited},
		{name: "expired token", status: 400, code: 190, subcode: 463, want: KindAuth},
		{name: "session", status: 400, code: 102, want: KindAuth},
		{name: "expired subcode", status: 400, code: 1, subcode: 467, want: KindAuth},
		{name: "permission", status: 400, code: 10, want: KindPermission},
		{name: "ads permission", status: 403, code: 200, want: KindPermission},
		{name: "invalid parameter", status: 400, code: 100, want: KindValidation},
		{name: "other 4xx", status: 404, code: 803, want: KindValidation},
		{name: "server", status: 500, code: 2, want: KindUnknown},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := Classify(tc.status, tc.code, tc.subcode); got != tc.want {
				t.Fatalf("Classify(%d, %d, %d)=%s want=%s", tc.status, tc.code, tc.subcode, got, tc.want)
			}
		})
	}
}

func TestClientDoesNotRetryRateLimit(t *testing.T) {
	t.Parallel()

	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"message":"Rate limit","type":"OAuthException","code":613,"error_subcode":0,"fbtrace_id":"abc"}}`))
	}))
	defer server.Close()

	client := newTestClient(server)
	_, err := client.Do(context.Background(), Request{
		Method:  http.MethodGet,
		Path:    "/act_123/ads",
		Version: "v25.0",
	})
	if !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited, got %v", err)
	}
	if errors.Is(err, ErrAuth) {
		t.Fatalf("rate limit must not match ErrAuth: %v", err)
	}
	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Fatalf("expected exactly 1 attempt, got %d", got)
	}

	var apiErr *APIError
	if !errors.As(err, &apiErr) || !apiErr.Temporary() {
		t.Fatalf("expected temporary api error, got %#v", err)
	}
}

func TestClientRetriesTransientServerErrors(t *testing.T) {
	t.Parallel()

	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"error":{"message":"Service temporarily unavailable","type":"OAuthException","code":2}}`))
			return
		}
		_, _ = w.Write([]byte(`{"data":[{"id":"1"}]}`))
	}))
	defer server.Close()

	client := newTestClient(server)
	resp, err := client.Do(context.Background(), Request{Path: "/act_123/ads"})
	if err != nil {
		t.Fatalf("client do: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("unexpected status: %d", resp.StatusCode)
	}
	if got := atomic.LoadInt32(&calls); got != 2 {
		t.Fatalf("expected 2 attempts, got %d", got)
	}
}

func TestClientSendsMutationsOnce(t *testing.T) {
	t.Parallel()

	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = w.Write([]byte(`{"error":{"message":"An unknown error occurred","type":"OAuthException","code":1}}`))
			return
		}
		_, _ = w.Write([]byte(`{"id":"12002"}`))
	}))
	defer server.Close()

	client := newTestClient(server)
	_, err := client.Do(context.Background(), Request{
		Method: http.MethodPost,
		Path:   "/act_123/campaigns",
		Form:   map[string]string{"name": "Spring"},
	})
	var apiErr *APIError
	if !errors.As(err, &apiErr) || !apiErr.Transient {
		t.Fatalf("expected transient api error, got %v", err)
	}
	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Fatalf("expected exactly 1 attempt, got %d", got)
	}
}

func TestClientSendsMutationsOnceOnServerFailureWithoutBody(t *testing.T) {
	t.Parallel()

	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	client := newTestClient(server)
	_, err := client.Do(context.Background(), Request{Method: http.MethodPost, Path: "/120001"})
	var transient *TransientError
	if !errors.As(err, &transient) {
		t.Fatalf("expected transient error, got %v", err)
	}
	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Fatalf("expected exactly 1 attempt, got %d", got)
	}
}

func TestClientGivesUpAfterMaxRetries(t *testing.T) {
	t.Parallel()

	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	client := newTestClient(server)
	client.MaxRetries = 2
	_, err := client.Do(context.Background(), Request{Path: "/act_123/ads"})
	var transient *TransientError
	if !errors.As(err, &transient) {
		t.Fatalf("expected transient error, got %v", err)
	}
	if got := atomic.LoadInt32(&calls); got != 3 {
		t.Fatalf("expected 3 attempts, got %d", got)
	}
}

func TestClientClassifiesExpiredToken(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"message":"Error validating access token","type":"OAuthException","code":190,"error_subcode":463,"fbtrace_id":"trace-1"}}`))
	}))
	defer server.Close()

	_, err := newTestClient(server).Do(context.Background(), Request{Path: "/me"})
	if !errors.Is(err, ErrAuth) {
		t.Fatalf("expected ErrAuth, got %v", err)
	}

	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %T", err)
	}
	if apiErr.Kind != KindAuth || apiErr.ErrorSubcode != 463 || apiErr.FBTraceID != "trace-1" {
		t.Fatalf("unexpected error mapping: %#v", apiErr)
	}
	if apiErr.Temporary() {
		t.Fatal("expired credentials must not be temporary")
	}
}

func TestClientClassifiesValidationError(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"message":"Invalid parameter","type":"OAuthException","code":100,"fbtrace_id":"trace-2"}}`))
	}))
	defer server.Close()

	_, err := newTestClient(server).Do(context.Background(), Request{Path: "/act_1/ads"})
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
	if !strings.Contains(err.Error(), "Invalid parameter") {
		t.Fatalf("expected platform message in error, got %q", err.Error())
	}
}

func TestClientSignsRequestsWithAppSecretProof(t *testing.T) {
	t.Parallel()

	var seen url.Values
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Errorf("parse form: %v", err)
		}
		seen = r.PostForm
		_, _ = w.Write([]byte(`{"success":true}`))
	}))
	defer server.Close()

	creds := Credentials{Version: "v25.0", AccessToken: "token-1", AppSecret: "secret-1"}
	_, err := newTestClient(server).Do(context.Background(), creds.Post("120001", map[string]string{"status": "PAUSED"}))
	if err != nil {
		t.Fatalf("client do: %v", err)
	}
	if seen.Get("status") != "PAUSED" {
		t.Fatalf("unexpected status form value %q", seen.Get("status"))
	}
	if seen.Get("access_token") != "token-1" {
		t.Fatalf("unexpected access token %q", seen.Get("access_token"))
	}
	if seen.Get("appsecret_proof") == "" {
		t.Fatal("expected appsecret_proof")
	}
}

func TestClientHonoursCancelledContextBeforeSending(t *testing.T) {
	t.Parallel()

	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
	}))
	defer server.Close()

	client := newTestClient(server)
	client.Limiter = rate.NewLimiter(rate.Limit(1), 1)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := client.Do(ctx, Request{Path: "/act_1/ads"}); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if got := atomic.LoadInt32(&calls); got != 0 {
		t.Fatalf("expected no request after cancellation, got %d", got)
	}
}

func TestParseRateLimitHeaders(t *testing.T) {
	t.Parallel()

	headers := http.Header{}
	headers.Set("X-Ad-Account-Usage", `{"acc_id_util_pct":9.5}`)
	headers.Set("X-App-Usage", `not-json`)

	usage := parseRateLimit(headers)
	if usage.AdAccountUsage["acc_id_util_pct"] != 9.5 {
		t.Fatalf("unexpected ad account usage %#v", usage.AdAccountUsage)
	}
	if usage.AppUsage["raw"] != "not-json" {
		t.Fatalf("expected raw fallback, got %#v", usage.AppUsage)
	}
	if usage.Empty() {
		t.Fatal("expected non-empty usage")
	}
}
