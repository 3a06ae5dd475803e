// Package telegram is a small Bot API client for sending reports and
// answering inline button presses.
package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/adsrocket/adsrocket/internal/breaker"
	"github.com/adsrocket/adsrocket/internal/logging"
	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"
)

const (
	DefaultBaseURL  = "https://api.telegram.org"
	MaxMessageRunes = 4096
	ParseModeHTML   = "HTML"

	defaultMaxAttempts   = 3
	defaultMaxRetryAfter = 30 * time.Second
)

type HTTPClient interface {
	Do(*http.Request) (*http.Response, error)
}

// APIError is a Bot API failure. RetryAfter is set on flood control
// responses.
type APIError struct {
	Method      string
	StatusCode  int
	Code        int
	Description string
	RetryAfter  time.Duration
}

func (e *APIError) Error() string {
	msg := fmt.Sprintf("telegram %s failed: status=%d code=%d", e.Method, e.StatusCode, e.Code)
	if e.Description != "" {
		msg += " description=" + e.Description
	}
	if e.RetryAfter > 0 {
		msg += " retry_after=" + e.RetryAfter.String()
	}
	return msg
}

// Temporary reports whether the call may succeed later.
func (e *APIError) Temporary() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

type Client struct {
	BaseURL string
	HTTP    HTTPClient
	// MaxAttempts bounds sends of one message while flood control asks
	// the client to wait.
	MaxAttempts   int
	MaxRetryAfter time.Duration
	Sleep         func(time.Duration)
	Logger        logrus.FieldLogger

	token    string
	scrubber *strings.Replacer
	breaker  *gobreaker.CircuitBreaker
}

func NewClient(httpClient HTTPClient, token string) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{
		BaseURL:       DefaultBaseURL,
		HTTP:          httpClient,
		MaxAttempts:   defaultMaxAttempts,
		MaxRetryAfter: defaultMaxRetryAfter,
		Sleep:         time.Sleep,
		Logger:        logging.Discard(),
		token:         token,
		scrubber:      strings.NewReplacer(token, "[EXPUNGED]"),
		breaker:       breaker.New("telegram", isSuccessful),
	}
}

// SendMessage sends HTML text to chatID, split into several messages when
// it exceeds MaxMessageRunes. The keyboard rides on the last part.
func (c *Client) SendMessage(ctx context.Context, chatID string, text string, keyboard *InlineKeyboardMarkup) error {
	if strings.TrimSpace(chatID) == "" {
		return errors.New("telegram chat id is required")
	}
	if strings.TrimSpace(text) == "" {
		return errors.New("telegram message text is required")
	}

	parts := SplitText(text, MaxMessageRunes)
	for i, part := range parts {
		req := sendMessageRequest{
			ChatID:             chatID,
			Text:               part,
			ParseMode:          ParseModeHTML,
			LinkPreviewOptions: linkPreviewOptions{IsDisabled: true},
		}
		if i == len(parts)-1 {
			req.ReplyMarkup = keyboard
		}
		if err := c.call(ctx, "sendMessage", req); err != nil {
			return err
		}
	}
	return nil
}

func (c *Client) AnswerCallbackQuery(ctx context.Context, callbackQueryID string, text string) error {
	if strings.TrimSpace(callbackQueryID) == "" {
		return errors.New("callback query id is required")
	}
	return c.call(ctx, "answerCallbackQuery", answerCallbackQueryRequest{
		CallbackQueryID: callbackQueryID,
		Text:            text,
	})
}

func (c *Client) call(ctx context.Context, method string, payload any) error {
	if strings.TrimSpace(c.token) == "" {
		return errors.New("telegram bot token is required")
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode %s request: %w", method, err)
	}

	_, err = c.breaker.Execute(func() (interface{}, error) {
		return nil, c.callWithRetry(ctx, method, body)
	})
	return err
}

func (c *Client) callWithRetry(ctx context.Context, method string, body []byte) error {
	attempts := c.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}
	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		err = c.doOnce(ctx, method, body)
		var apiErr *APIError
		if !errors.As(err, &apiErr) || apiErr.RetryAfter <= 0 || attempt == attempts {
			return err
		}
		wait := apiErr.RetryAfter
		if c.MaxRetryAfter > 0 && wait > c.MaxRetryAfter {
			return err
		}
		c.logger().WithFields(logrus.Fields{
			"method":      method,
			"attempt":     attempt,
			"retry_after": wait.String(),
		}).Warn("telegram flood control, waiting")
		c.Sleep(wait)
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
	}
	return err
}

func (c *Client) doOnce(ctx context.Context, method string, body []byte) error {
	endpoint := strings.TrimSuffix(c.BaseURL, "/") + "/bot" + c.token + "/" + method
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return c.scrub(fmt.Errorf("build %s request: %w", method, err))
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := c.HTTP.Do(req)
	if err != nil {
		return c.scrub(fmt.Errorf("send %s request: %w", method, err))
	}
	defer res.Body.Close()

	raw, err := io.ReadAll(res.Body)
	if err != nil {
		return fmt.Errorf("read %s response: %w", method, err)
	}
	var parsed apiResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return &APIError{Method: method, StatusCode: res.StatusCode, Description: "non-JSON response"}
	}
	if parsed.OK && res.StatusCode < 300 {
		return nil
	}

	apiErr := &APIError{
		Method:      method,
		StatusCode:  res.StatusCode,
		Code:        parsed.ErrorCode,
		Description: parsed.Description,
	}
	if parsed.Parameters != nil && parsed.Parameters.RetryAfter > 0 {
		apiErr.RetryAfter = time.Duration(parsed.Parameters.RetryAfter) * time.Second
	}
	return apiErr
}

// scrub removes the bot token from transport errors, which embed the URL.
func (c *Client) scrub(err error) error {
	if c.token == "" {
		return err
	}
	return errors.New(c.scrubber.Replace(err.Error()))
}

func (c *Client) logger() logrus.FieldLogger {
	if c.Logger == nil {
		return logging.Discard()
	}
	return c.Logger
}

// isSuccessful keeps request errors on our side, such as a malformed
// message, from opening the breaker.
func isSuccessful(err error) bool {
	if err == nil {
		return true
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return !apiErr.Temporary()
	}
	return false
}

// SplitText cuts text into parts of at most limit runes, breaking at the
// last newline inside the limit when there is one.
func SplitText(text string, limit int) []string {
	if limit <= 0 || utf8.RuneCountInString(text) <= limit {
		return []string{text}
	}
	var parts []string
	runes := []rune(text)
	for len(runes) > limit {
		cut := limit
		for i := limit; i > 0; i-- {
			if runes[i-1] == '\n' {
				cut = i
				break
			}
		}
		if part := strings.TrimRight(string(runes[:cut]), "\n"); part != "" {
			parts = append(parts, part)
		}
		runes = runes[cut:]
	}
	if len(runes) > 0 {
		parts = append(parts, string(runes))
	}
	return parts
}
