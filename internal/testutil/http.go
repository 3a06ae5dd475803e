package testutil

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
)

// NewJSONServer creates an httptest server from a callback to keep integration tests concise.
func NewJSONServer(handler func(http.ResponseWriter, *http.Request)) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(handler))
}

// WriteJSON encodes payload with the given status code.
func WriteJSON(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(payload)
}

type StubResponse struct {
	StatusCode int
	Body       string
	Header     http.Header
	Err        error
}

type RecordedRequest struct {
	Method string
	URL    string
	Header http.Header
	Body   string
}

// StubHTTPClient replays queued responses in order, repeating the last one
// once the queue is exhausted, and records every request it receives.
type StubHTTPClient struct {
	mu        sync.Mutex
	responses []StubResponse
	requests  []RecordedRequest
}

func NewStubHTTPClient(responses ...StubResponse) *StubHTTPClient {
	return &StubHTTPClient{responses: responses}
}

func (c *StubHTTPClient) Do(req *http.Request) (*http.Response, error) {
	recorded := RecordedRequest{
		Method: req.Method,
		URL:    req.URL.String(),
		Header: req.Header.Clone(),
	}
	if req.Body != nil {
		body, err := io.ReadAll(req.Body)
		if err != nil {
			return nil, err
		}
		recorded.Body = string(body)
	}

	c.mu.Lock()
	index := len(c.requests)
	c.requests = append(c.requests, recorded)
	var response StubResponse
	switch {
	case len(c.responses) == 0:
		response = StubResponse{StatusCode: http.StatusOK, Body: `{}`}
	case index < len(c.responses):
		response = c.responses[index]
	default:
		response = c.responses[len(c.responses)-1]
	}
	c.mu.Unlock()

	if response.Err != nil {
		return nil, response.Err
	}
	header := response.Header
	if header == nil {
		header = http.Header{}
	}
	statusCode := response.StatusCode
	if statusCode == 0 {
		statusCode = http.StatusOK
	}
	return &http.Response{
		StatusCode: statusCode,
		Header:     header,
		Body:       io.NopCloser(strings.NewReader(response.Body)),
		Request:    req,
	}, nil
}

func (c *StubHTTPClient) Calls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.requests)
}

func (c *StubHTTPClient) Requests() []RecordedRequest {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]RecordedRequest(nil), c.requests...)
}

// Last returns the most recent request, or a zero value when none was sent.
func (c *StubHTTPClient) Last() RecordedRequest {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.requests) == 0 {
		return RecordedRequest{}
	}
	return c.requests[len(c.requests)-1]
}
