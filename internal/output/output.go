// Package output renders command results as a versioned envelope. The CLI
// and the HTTP API share the same envelope.
package output

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/adsrocket/adsrocket/internal/graph"
	"github.com/google/uuid"
)

const ContractVersion = "1.0"

const (
	FormatJSON  = "json"
	FormatJSONL = "jsonl"
	FormatTable = "table"
	FormatCSV   = "csv"
)

type Envelope struct {
	ContractVersion string     `json:"contract_version"`
	Command         string     `json:"command"`
	Timestamp       string     `json:"timestamp"`
	RequestID       string     `json:"request_id"`
	Success         bool       `json:"success"`
	Data            any        `json:"data,omitempty"`
	Error           *ErrorInfo `json:"error,omitempty"`
}

type ErrorInfo struct {
	Kind         string `json:"kind"`
	Type         string `json:"type,omitempty"`
	Code         int    `json:"code,omitempty"`
	ErrorSubcode int    `json:"error_subcode,omitempty"`
	StatusCode   int    `json:"status_code,omitempty"`
	Message      string `json:"message"`
	FBTraceID    string `json:"fbtrace_id,omitempty"`
	Retryable    bool   `json:"retryable"`
}

func Success(command string, data any) Envelope {
	return newEnvelope(command, true, data, nil)
}

func Failure(command string, err error) Envelope {
	return newEnvelope(command, false, nil, ErrorFrom(err))
}

// WithRequestID replaces the generated request id, for callers that
// already carry one.
func (e Envelope) WithRequestID(requestID string) Envelope {
	if strings.TrimSpace(requestID) != "" {
		e.RequestID = requestID
	}
	return e
}

func newEnvelope(command string, success bool, data any, errorInfo *ErrorInfo) Envelope {
	return Envelope{
		ContractVersion: ContractVersion,
		Command:         command,
		Timestamp:       time.Now().UTC().Format(time.RFC3339),
		RequestID:       uuid.NewString(),
		Success:         success,
		Data:            data,
		Error:           errorInfo,
	}
}

// ErrorFrom describes err. Graph API errors keep their classification and
// platform fields; anything else is reported with kind "error".
func ErrorFrom(err error) *ErrorInfo {
	if err == nil {
		return nil
	}
	var apiErr *graph.APIError
	if errors.As(err, &apiErr) {
		return &ErrorInfo{
			Kind:         string(apiErr.Kind),
			Type:         apiErr.Type,
			Code:         apiErr.Code,
			ErrorSubcode: apiErr.ErrorSubcode,
			StatusCode:   apiErr.StatusCode,
			Message:      apiErr.Message,
			FBTraceID:    apiErr.FBTraceID,
			Retryable:    apiErr.Temporary(),
		}
	}
	var transient *graph.TransientError
	if errors.As(err, &transient) {
		return &ErrorInfo{
			Kind:       string(graph.KindUnknown),
			StatusCode: transient.StatusCode,
			Message:    err.Error(),
			Retryable:  true,
		}
	}
	return &ErrorInfo{Kind: "error", Message: err.Error()}
}

func Write(w io.Writer, format string, envelope Envelope) error {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case FormatJSON:
		return writeJSON(w, envelope)
	case FormatJSONL:
		return writeJSONL(w, envelope)
	case FormatTable:
		return writeTable(w, envelope)
	case FormatCSV:
		return writeCSV(w, envelope)
	default:
		return fmt.Errorf("unsupported output format %q", format)
	}
}

func writeJSON(w io.Writer, envelope Envelope) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(envelope)
}

// writeJSONL writes one envelope per element when Data is a list.
func writeJSONL(w io.Writer, envelope Envelope) error {
	items, ok, err := listItems(envelope.Data)
	if err != nil {
		return err
	}
	if !ok {
		items = []any{envelope.Data}
	}
	for _, item := range items {
		line := envelope
		line.Data = item
		encoded, err := json.Marshal(line)
		if err != nil {
			return err
		}
		if _, err := fmt.Fprintln(w, string(encoded)); err != nil {
			return err
		}
	}
	return nil
}

func writeTable(w io.Writer, envelope Envelope) error {
	rows, headers, err := tableRows(envelope)
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 2, 2, ' ', 0)
	if _, err := fmt.Fprintln(tw, strings.Join(headers, "\t")); err != nil {
		return err
	}
	for _, row := range rows {
		values := make([]string, 0, len(headers))
		for _, header := range headers {
			values = append(values, cell(row[header]))
		}
		if _, err := fmt.Fprintln(tw, strings.Join(values, "\t")); err != nil {
			return err
		}
	}
	return tw.Flush()
}

func writeCSV(w io.Writer, envelope Envelope) error {
	rows, headers, err := tableRows(envelope)
	if err != nil {
		return err
	}
	cw := csv.NewWriter(w)
	if err := cw.Write(headers); err != nil {
		return err
	}
	for _, row := range rows {
		record := make([]string, 0, len(headers))
		for _, header := range headers {
			record = append(record, cell(row[header]))
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// tableRows flattens Data into rows keyed by dotted field paths, so a
// ranked ad yields columns like "metrics.spend". A failed envelope renders
// its error as the single row.
func tableRows(envelope Envelope) ([]map[string]any, []string, error) {
	data := envelope.Data
	if !envelope.Success && envelope.Error != nil {
		data = envelope.Error
	}
	generic, err := toGeneric(data)
	if err != nil {
		return nil, nil, err
	}

	var rows []map[string]any
	switch typed := generic.(type) {
	case []any:
		rows = make([]map[string]any, 0, len(typed))
		for _, item := range typed {
			object, ok := item.(map[string]any)
			if !ok {
				return nil, nil, errors.New("table/csv output requires a list of objects")
			}
			rows = append(rows, flatten(object))
		}
	case map[string]any:
		rows = []map[string]any{flatten(typed)}
	default:
		return nil, nil, errors.New("table/csv output requires object or list data")
	}
	return rows, orderedHeaders(rows), nil
}

func listItems(data any) ([]any, bool, error) {
	generic, err := toGeneric(data)
	if err != nil {
		return nil, false, err
	}
	items, ok := generic.([]any)
	return items, ok, nil
}

func toGeneric(data any) (any, error) {
	encoded, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("encode output data: %w", err)
	}
	var generic any
	decoder := json.NewDecoder(strings.NewReader(string(encoded)))
	decoder.UseNumber()
	if err := decoder.Decode(&generic); err != nil {
		return nil, fmt.Errorf("decode output data: %w", err)
	}
	return generic, nil
}

func flatten(object map[string]any) map[string]any {
	out := map[string]any{}
	var walk func(prefix string, value any)
	walk = func(prefix string, value any) {
		nested, ok := value.(map[string]any)
		if !ok || len(nested) == 0 {
			out[prefix] = value
			return
		}
		for key, child := range nested {
			walk(prefix+"."+key, child)
		}
	}
	for key, value := range object {
		walk(key, value)
	}
	return out
}

func cell(value any) string {
	switch typed := value.(type) {
	case nil:
		return ""
	case string:
		return typed
	case json.Number:
		return typed.String()
	case []any:
		encoded, _ := json.Marshal(typed)
		return string(encoded)
	default:
		return fmt.Sprint(typed)
	}
}

func orderedHeaders(rows []map[string]any) []string {
	set := map[string]struct{}{}
	for _, row := range rows {
		for key := range row {
			set[key] = struct{}{}
		}
	}
	headers := make([]string, 0, len(set))
	for key := range set {
		headers = append(headers, key)
	}
	sort.Strings(headers)
	return headers
}
