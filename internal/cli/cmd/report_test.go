package cmd

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"testing"

	"github.com/adsrocket/adsrocket/internal/testutil"
)

const accountSummaryResponse = `{"data":[{"spend":"60","impressions":"5000","clicks":"120","actions":[{"action_type":"purchase","value":"9"}],"action_values":[{"action_type":"purchase","value":"330"}]}]}`

func TestReportRunSendsTelegramReport(t *testing.T) {
	graphStub := testutil.NewStubHTTPClient(
		testutil.StubResponse{StatusCode: http.StatusOK, Body: accountSummaryResponse},
		testutil.StubResponse{StatusCode: http.StatusOK, Body: adsResponse},
	)
	telegramStub := testutil.NewStubHTTPClient(testutil.StubResponse{StatusCode: http.StatusOK, Body: `{"ok":true,"result":{"message_id":1}}`})
	configPath := useCommandDependencies(t, testProfile(), graphStub, telegramStub)

	stdout, stderr, err := executeCommand(t, NewReportCommand(testRuntime("prod", configPath)),
		"run", "--window", "2026-10-15..2026-10-15")
	if err != nil {
		t.Fatalf("execute report run: %v (stderr %q)", err, stderr.String())
	}

	if graphStub.Calls() != 2 {
		t.Fatalf("expected summary and ads calls, got %d", graphStub.Calls())
	}
	if telegramStub.Calls() != 1 {
		t.Fatalf("expected one telegram call, got %d", telegramStub.Calls())
	}
	sent := telegramStub.Last()
	if !strings.HasSuffix(sent.URL, "/botbot-token/sendMessage") {
		t.Fatalf("unexpected telegram url %q", sent.URL)
	}
	var payload map[string]any
	if err := json.Unmarshal([]byte(sent.Body), &payload); err != nil {
		t.Fatalf("decode telegram payload: %v", err)
	}
	if payload["chat_id"] != "-100555" {
		t.Fatalf("unexpected chat id %v", payload["chat_id"])
	}
	text, _ := payload["text"].(string)
	if !strings.Contains(text, "act_123") || !strings.Contains(text, "High") {
		t.Fatalf("unexpected report text %q", text)
	}
	if _, ok := payload["reply_markup"]; !ok {
		t.Fatalf("expected inline keyboard in %v", payload)
	}

	envelope := decodeEnvelope(t, stdout.Bytes())
	assertEnvelopeBasics(t, envelope, "adsrocket report run")
	data := envelope["data"].(map[string]any)
	if data["outcome"] != "sent" {
		t.Fatalf("unexpected outcome %v", data["outcome"])
	}
	if top := data["top"].([]any); len(top) != 3 {
		t.Fatalf("expected the default three ads, got %d", len(top))
	}
}

func TestReportRunRequiresTelegramToken(t *testing.T) {
	profile := testProfile()
	profile.TelegramToken = ""
	graphStub := testutil.NewStubHTTPClient()
	configPath := useCommandDependencies(t, profile, graphStub, testutil.NewStubHTTPClient())

	_, stderr, err := executeCommand(t, NewReportCommand(testRuntime("prod", configPath)), "run")
	if err == nil || !strings.Contains(err.Error(), "no telegram token") {
		t.Fatalf("expected telegram token error, got %v", err)
	}
	var cfgErr interface{ ConfigError() bool }
	if !errors.As(err, &cfgErr) {
		t.Fatalf("expected config error, got %T", err)
	}
	if graphStub.Calls() != 0 {
		t.Fatalf("expected no graph calls, got %d", graphStub.Calls())
	}
	if envelope := decodeEnvelope(t, stderr.Bytes()); envelope["success"] != false {
		t.Fatalf("expected failure envelope, got %+v", envelope)
	}
}
