package auth

import (
	"errors"
	"fmt"
	"strings"

	"github.com/adsrocket/adsrocket/internal/config"
)

const DefaultGraphBaseURL = "https://graph.facebook.com"

// Service manages profile credentials: secrets live in the SecretStore and
// only their refs are written to the config file.
type Service struct {
	configPath string
	secrets    SecretStore
}

type SetProfileInput struct {
	Profile        string
	AccountID      string
	GraphVersion   string
	Token          string
	AppSecret      string
	TelegramChatID string
	TelegramToken  string
	WebhookSecret  string
	AIModel        string
	AIAPIKey       string
}

// ProfileCredentials is a resolved profile with its secrets loaded.
type ProfileCredentials struct {
	Name          string
	Profile       config.Profile
	Token         string
	AppSecret     string
	TelegramToken string
	AIAPIKey      string
}

func NewService(configPath string, secrets SecretStore) *Service {
	return &Service{
		configPath: configPath,
		secrets:    secrets,
	}
}

// SetProfile stores the supplied secrets and upserts the profile. Secrets
// left empty keep whatever ref the profile already had.
func (s *Service) SetProfile(input SetProfileInput) (config.Profile, error) {
	name := strings.TrimSpace(input.Profile)
	if name == "" {
		return config.Profile{}, errors.New("profile is required")
	}

	cfg, err := config.LoadOrCreate(s.configPath)
	if err != nil {
		return config.Profile{}, err
	}
	profile := cfg.Profiles[name]

	if strings.TrimSpace(input.Token) == "" && profile.TokenRef == "" {
		return config.Profile{}, errors.New("token is required")
	}
	if input.AccountID != "" {
		profile.AccountID = input.AccountID
	}
	if input.GraphVersion != "" {
		profile.GraphVersion = input.GraphVersion
	}
	if input.TelegramChatID != "" {
		profile.Telegram.ChatID = input.TelegramChatID
	}
	if input.WebhookSecret != "" {
		profile.Telegram.WebhookSecret = input.WebhookSecret
	}
	if input.AIModel != "" {
		profile.AI.Model = input.AIModel
	}

	for _, secret := range []struct {
		kind  string
		value string
		ref   *string
	}{
		{kind: SecretToken, value: input.Token, ref: &profile.TokenRef},
		{kind: SecretAppSecret, value: input.AppSecret, ref: &profile.AppSecretRef},
		{kind: SecretTelegramToken, value: input.TelegramToken, ref: &profile.Telegram.TokenRef},
		{kind: SecretAIAPIKey, value: input.AIAPIKey, ref: &profile.AI.APIKeyRef},
	} {
		if strings.TrimSpace(secret.value) == "" {
			continue
		}
		ref, err := SecretRef(name, secret.kind)
		if err != nil {
			return config.Profile{}, err
		}
		if err := s.secrets.Set(ref, strings.TrimSpace(secret.value)); err != nil {
			return config.Profile{}, err
		}
		*secret.ref = ref
	}

	if err := cfg.UpsertProfile(name, profile); err != nil {
		return config.Profile{}, err
	}
	if err := config.Save(s.configPath, cfg); err != nil {
		return config.Profile{}, err
	}
	return cfg.Profiles[name], nil
}

// Resolve loads the named profile (or the default one) and reads every secret
// it references. A missing optional secret is an error only when its ref is
// configured.
func (s *Service) Resolve(profile string) (*ProfileCredentials, error) {
	cfg, err := config.Load(s.configPath)
	if err != nil {
		return nil, err
	}
	name, selected, err := cfg.ResolveProfile(profile)
	if err != nil {
		return nil, err
	}

	token, err := s.secrets.Get(selected.TokenRef)
	if err != nil {
		return nil, err
	}
	out := &ProfileCredentials{
		Name:    name,
		Profile: selected,
		Token:   token,
	}

	optional := []struct {
		label string
		ref   string
		dst   *string
	}{
		{label: "app secret", ref: selected.AppSecretRef, dst: &out.AppSecret},
		{label: "telegram token", ref: selected.Telegram.TokenRef, dst: &out.TelegramToken},
		{label: "ai api key", ref: selected.AI.APIKeyRef, dst: &out.AIAPIKey},
	}
	for _, secret := range optional {
		if secret.ref == "" {
			continue
		}
		value, err := s.secrets.Get(secret.ref)
		if err != nil {
			return nil, fmt.Errorf("load %s for profile %q: %w", secret.label, name, err)
		}
		*secret.dst = value
	}
	return out, nil
}
