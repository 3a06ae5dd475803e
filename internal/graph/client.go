package graph

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/adsrocket/adsrocket/internal/auth"
	"github.com/adsrocket/adsrocket/internal/config"
	"github.com/adsrocket/adsrocket/internal/telemetry"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

type HTTPClient interface {
	Do(*http.Request) (*http.Response, error)
}

type Client struct {
	BaseURL        string
	HTTP           HTTPClient
	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	Sleep          func(time.Duration)
	UserAgent      string
	// Limiter paces outbound calls; nil disables pacing.
	Limiter *rate.Limiter
	Metrics *telemetry.Metrics
	Logger  logrus.FieldLogger
}

type Request struct {
	Method      string
	Path        string
	Version     string
	Query       map[string]string
	Form        map[string]string
	AccessToken string
	AppSecret   string
}

// Credentials identify the advertiser-user on every Graph call.
type Credentials struct {
	Version     string
	AccessToken string
	AppSecret   string
}

func (c Credentials) Get(path string, query map[string]string) Request {
	return Request{
		Method:      http.MethodGet,
		Path:        path,
		Version:     strings.TrimSpace(c.Version),
		Query:       query,
		AccessToken: c.AccessToken,
		AppSecret:   c.AppSecret,
	}
}

func (c Credentials) Post(path string, form map[string]string) Request {
	return Request{
		Method:      http.MethodPost,
		Path:        path,
		Version:     strings.TrimSpace(c.Version),
		Form:        form,
		AccessToken: c.AccessToken,
		AppSecret:   c.AppSecret,
	}
}

func (c Credentials) Validate() error {
	if strings.TrimSpace(c.AccessToken) == "" {
		return errors.New("graph access token is required")
	}
	return nil
}

type Response struct {
	StatusCode int
	Body       map[string]any
	Raw        []byte
	Headers    http.Header
	RateLimit  RateLimit
}

type RateLimit struct {
	AppUsage             map[string]any `json:"app_usage,omitempty"`
	AdAccountUsage       map[string]any `json:"ad_account_usage,omitempty"`
	BusinessUseCaseUsage map[string]any `json:"business_use_case_usage,omitempty"`
}

func (r RateLimit) Empty() bool {
	return len(r.AppUsage) == 0 && len(r.AdAccountUsage) == 0 && len(r.BusinessUseCaseUsage) == 0
}

func NewClient(httpClient HTTPClient, baseURL string) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	if baseURL == "" {
		baseURL = auth.DefaultGraphBaseURL
	}

	return &Client{
		BaseURL:        strings.TrimSuffix(baseURL, "/"),
		HTTP:           httpClient,
		MaxRetries:     3,
		InitialBackoff: 300 * time.Millisecond,
		MaxBackoff:     5 * time.Second,
		Sleep:          time.Sleep,
		UserAgent:      "adsrocket/1.0",
	}
}

// Do executes one Graph call. Transient failures (network errors, 5xx) on
// GET and DELETE are retried with exponential backoff. Mutations are sent
// once, since Graph may have applied a write that failed on the way back.
// Classified API errors, rate limits included, are returned on the first
// occurrence.
func (c *Client) Do(ctx context.Context, req Request) (*Response, error) {
	method := strings.ToUpper(strings.TrimSpace(req.Method))
	if method == "" {
		method = http.MethodGet
	}
	if req.Path == "" {
		return nil, errors.New("graph request path is required")
	}
	version := req.Version
	if version == "" {
		version = config.DefaultGraphVersion
	}
	attempt := 0
	backoff := c.InitialBackoff

	for {
		attempt++
		if err := c.wait(ctx); err != nil {
			return nil, err
		}
		started := time.Now()
		response, err := c.doOnce(ctx, method, version, req)
		c.Metrics.RecordGraphRequest(method, outcomeLabel(err), time.Since(started))
		if err == nil {
			c.logUsage(req.Path, response.RateLimit)
			return response, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		if !retryable(method) || attempt > c.MaxRetries {
			return nil, err
		}

		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.Transient {
			c.Sleep(backoff)
			backoff = nextBackoff(backoff, c.MaxBackoff)
			continue
		}

		var transient *TransientError
		if errors.As(err, &transient) {
			c.Sleep(backoff)
			backoff = nextBackoff(backoff, c.MaxBackoff)
			continue
		}

		return nil, err
	}
}

func retryable(method string) bool {
	return method == http.MethodGet || method == http.MethodDelete
}

func (c *Client) wait(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if c.Limiter == nil {
		return nil
	}
	if err := c.Limiter.Wait(ctx); err != nil {
		return fmt.Errorf("wait for graph rate limiter: %w", err)
	}
	return nil
}

func (c *Client) doOnce(ctx context.Context, method string, version string, req Request) (*Response, error) {
	endpoint, err := url.Parse(c.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse graph base url: %w", err)
	}
	endpoint.Path = path.Join(endpoint.Path, version, strings.TrimPrefix(req.Path, "/"))

	query := url.Values{}
	for key, value := range req.Query {
		query.Set(key, value)
	}

	bodyReader := io.Reader(nil)
	if method == http.MethodGet || method == http.MethodDelete {
		if err := signValues(query, req); err != nil {
			return nil, err
		}
	} else {
		form := url.Values{}
		for key, value := range req.Form {
			form.Set(key, value)
		}
		if err := signValues(form, req); err != nil {
			return nil, err
		}
		bodyReader = bytes.NewBufferString(form.Encode())
	}
	endpoint.RawQuery = query.Encode()

	httpReq, err := http.NewRequestWithContext(ctx, method, endpoint.String(), bodyReader)
	if err != nil {
		return nil, fmt.Errorf("build graph request: %w", err)
	}
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("User-Agent", c.UserAgent)
	if method != http.MethodGet && method != http.MethodDelete {
		httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}

	httpRes, err := c.HTTP.Do(httpReq)
	if err != nil {
		return nil, &TransientError{Message: fmt.Sprintf("send request: %v", err)}
	}
	defer httpRes.Body.Close()

	body, err := io.ReadAll(httpRes.Body)
	if err != nil {
		return nil, &TransientError{Message: fmt.Sprintf("read response: %v", err)}
	}

	parsed := map[string]any{}
	if len(body) > 0 {
		if err := json.Unmarshal(body, &parsed); err != nil {
			if httpRes.StatusCode >= 500 {
				return nil, &TransientError{
					Message:    fmt.Sprintf("transient status code %d with non-JSON body", httpRes.StatusCode),
					StatusCode: httpRes.StatusCode,
				}
			}
			return nil, fmt.Errorf("decode response JSON: %w", err)
		}
	}

	if apiErr := parseAPIError(httpRes.StatusCode, parsed); apiErr != nil {
		return nil, apiErr
	}
	if httpRes.StatusCode >= 500 {
		return nil, &TransientError{
			Message:    fmt.Sprintf("transient status code %d", httpRes.StatusCode),
			StatusCode: httpRes.StatusCode,
		}
	}
	if httpRes.StatusCode < 200 || httpRes.StatusCode >= 300 {
		return nil, fmt.Errorf("request failed with status %d", httpRes.StatusCode)
	}

	return &Response{
		StatusCode: httpRes.StatusCode,
		Body:       parsed,
		Raw:        body,
		Headers:    httpRes.Header.Clone(),
		RateLimit:  parseRateLimit(httpRes.Header),
	}, nil
}

func signValues(values url.Values, req Request) error {
	if req.AccessToken == "" {
		return nil
	}
	values.Set("access_token", req.AccessToken)
	if req.AppSecret == "" {
		return nil
	}
	proof, err := auth.AppSecretProof(req.AccessToken, req.AppSecret)
	if err != nil {
		return err
	}
	values.Set("appsecret_proof", proof)
	return nil
}

func (c *Client) logUsage(requestPath string, usage RateLimit) {
	if c.Logger == nil || usage.Empty() {
		return
	}
	c.Logger.WithFields(logrus.Fields{
		"path":                    requestPath,
		"app_usage":               usage.AppUsage,
		"ad_account_usage":        usage.AdAccountUsage,
		"business_use_case_usage": usage.BusinessUseCaseUsage,
	}).Debug("graph rate limit usage")
}

func parseRateLimit(headers http.Header) RateLimit {
	return RateLimit{
		AppUsage:             parseUsageHeader(headers.Get("X-App-Usage")),
		AdAccountUsage:       parseUsageHeader(headers.Get("X-Ad-Account-Usage")),
		BusinessUseCaseUsage: parseUsageHeader(headers.Get("X-Business-Use-Case-Usage")),
	}
}

func parseUsageHeader(value string) map[string]any {
	if strings.TrimSpace(value) == "" {
		return nil
	}
	parsed := map[string]any{}
	if err := json.Unmarshal([]byte(value), &parsed); err != nil {
		return map[string]any{
			"raw": value,
		}
	}
	return parsed
}

func parseAPIError(statusCode int, payload map[string]any) *APIError {
	rawErr, ok := payload["error"]
	if !ok {
		if statusCode == http.StatusTooManyRequests {
			return &APIError{
				Kind:       KindRateLimited,
				Type:       "rate_limit",
				Code:       http.StatusTooManyRequests,
				Message:    "rate limited",
				StatusCode: statusCode,
			}
		}
		return nil
	}
	errMap, ok := rawErr.(map[string]any)
	if !ok {
		kind := Classify(statusCode, 0, 0)
		return &APIError{
			Kind:       kind,
			Type:       "unknown",
			Message:    "unparseable error payload",
			StatusCode: statusCode,
			Transient:  isTransient(statusCode, 0, kind),
		}
	}

	errCode := intFromAny(errMap["code"])
	subcode := intFromAny(errMap["error_subcode"])
	message, _ := errMap["message"].(string)
	errType, _ := errMap["type"].(string)
	trace, _ := errMap["fbtrace_id"].(string)
	kind := Classify(statusCode, errCode, subcode)

	return &APIError{
		Kind:         kind,
		Type:         errType,
		Code:         errCode,
		ErrorSubcode: subcode,
		Message:      message,
		FBTraceID:    trace,
		StatusCode:   statusCode,
		Transient:    isTransient(statusCode, errCode, kind),
	}
}

func outcomeLabel(err error) string {
	if err == nil {
		return "ok"
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return string(apiErr.Kind)
	}
	var transient *TransientError
	if errors.As(err, &transient) {
		return "transient"
	}
	return "error"
}

func intFromAny(value any) int {
	switch typed := value.(type) {
	case float64:
		return int(typed)
	case int:
		return typed
	case string:
		parsed, err := strconv.Atoi(typed)
		if err != nil {
			return 0
		}
		return parsed
	default:
		return 0
	}
}

func nextBackoff(current, max time.Duration) time.Duration {
	next := current * 2
	if next > max {
		return max
	}
	return next
}
