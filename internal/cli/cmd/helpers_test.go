package cmd

import (
	"bytes"
	"encoding/json"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/adsrocket/adsrocket/internal/auth"
	"github.com/adsrocket/adsrocket/internal/config"
	"github.com/adsrocket/adsrocket/internal/graph"
	"github.com/adsrocket/adsrocket/internal/telegram"
	"github.com/adsrocket/adsrocket/internal/testutil"
	"github.com/spf13/cobra"
)

func testRuntime(profile string, configPath string) Runtime {
	output := "json"
	debug := false
	return Runtime{
		Profile: &profile,
		Output:  &output,
		Debug:   &debug,
		Config:  &configPath,
	}
}

func testProfile() auth.ProfileCredentials {
	return auth.ProfileCredentials{
		Name: "prod",
		Profile: config.Profile{
			GraphVersion: config.DefaultGraphVersion,
			AccountID:    "123",
			TokenRef:     "keychain://adsrocket/prod/token",
			Telegram: config.TelegramConfig{
				ChatID:   "-100555",
				TokenRef: "keychain://adsrocket/prod/telegram_token",
			},
		},
		Token:         "test-token",
		TelegramToken: "bot-token",
	}
}

// useCommandDependencies writes a config holding profile and points every
// outbound client at stubs. Callers must not run in parallel.
func useCommandDependencies(t *testing.T, profile auth.ProfileCredentials, graphStub *testutil.StubHTTPClient, telegramStub *testutil.StubHTTPClient) string {
	t.Helper()

	configPath := filepath.Join(t.TempDir(), "config.yaml")
	cfg := config.New()
	cfg.Profiles[profile.Name] = profile.Profile
	cfg.DefaultProfile = profile.Name
	if err := config.Save(configPath, cfg); err != nil {
		t.Fatalf("save config: %v", err)
	}

	originalLoad := loadCredentials
	originalGraph := newGraphClient
	originalTelegram := newTelegramClient
	t.Cleanup(func() {
		loadCredentials = originalLoad
		newGraphClient = originalGraph
		newTelegramClient = originalTelegram
	})

	loadCredentials = func(path string, name string) (*auth.ProfileCredentials, error) {
		if path != configPath {
			t.Fatalf("unexpected config path %q", path)
		}
		if name != "" && name != profile.Name {
			return nil, &configError{err: fmt.Errorf("profile %q does not exist", name)}
		}
		resolved := profile
		return &resolved, nil
	}
	newGraphClient = func() *graph.Client {
		client := graph.NewClient(graphStub, "https://graph.example.com")
		client.MaxRetries = 0
		return client
	}
	newTelegramClient = func(token string) *telegram.Client {
		client := telegram.NewClient(telegramStub, token)
		client.BaseURL = "https://telegram.example.com"
		return client
	}
	return configPath
}

func executeCommand(t *testing.T, cmd *cobra.Command, args ...string) (*bytes.Buffer, *bytes.Buffer, error) {
	t.Helper()

	stdout := &bytes.Buffer{}
	stderr := &bytes.Buffer{}
	cmd.SilenceErrors = true
	cmd.SilenceUsage = true
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)
	cmd.SetArgs(args)
	return stdout, stderr, cmd.Execute()
}

func decodeEnvelope(t *testing.T, raw []byte) map[string]any {
	t.Helper()

	decoded := map[string]any{}
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("decode envelope %q: %v", raw, err)
	}
	return decoded
}

func assertEnvelopeBasics(t *testing.T, envelope map[string]any, command string) {
	t.Helper()

	if got, _ := envelope["command"].(string); got != command {
		t.Fatalf("unexpected envelope command %q", got)
	}
	success, ok := envelope["success"].(bool)
	if !ok {
		t.Fatalf("expected success bool, got %T", envelope["success"])
	}
	if !success {
		t.Fatalf("expected successful envelope, got %+v", envelope)
	}
}

type inMemorySecretStore struct {
	values map[string]string
}

func (m *inMemorySecretStore) Set(ref string, value string) error {
	m.values[ref] = value
	return nil
}

func (m *inMemorySecretStore) Get(ref string) (string, error) {
	value, ok := m.values[ref]
	if !ok {
		return "", fmt.Errorf("secret %q not found", ref)
	}
	return value, nil
}

func (m *inMemorySecretStore) Delete(ref string) error {
	delete(m.values, ref)
	return nil
}
