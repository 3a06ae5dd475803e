package cmd

import (
	"bufio"
	"sort"
	"strings"

	"github.com/adsrocket/adsrocket/internal/auth"
	"github.com/adsrocket/adsrocket/internal/config"
	"github.com/spf13/cobra"
)

type profileSetter interface {
	SetProfile(auth.SetProfileInput) (config.Profile, error)
}

var newAuthService = func(configPath string) profileSetter {
	return auth.NewService(configPath, newSecretStore())
}

func NewAuthCommand(runtime Runtime) *cobra.Command {
	return newGroupCommand(
		"auth",
		"Store credentials and manage profiles",
		newAuthSetCommand(runtime),
		newAuthListCommand(runtime),
	)
}

func newAuthSetCommand(runtime Runtime) *cobra.Command {
	var (
		input      auth.SetProfileInput
		tokenStdin bool
	)
	cmd := &cobra.Command{
		Use:   "set",
		Short: "Store secrets in the keychain and upsert a profile",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			input.Profile = runtime.ProfileName()
			if strings.TrimSpace(input.Profile) == "" {
				return writeCommandError(cmd, runtime, "adsrocket auth set", newInputError("profile is required (--profile)"))
			}
			if tokenStdin {
				if input.Token != "" {
					return writeCommandError(cmd, runtime, "adsrocket auth set", newInputError("use either --token or --token-stdin"))
				}
				scanner := bufio.NewScanner(cmd.InOrStdin())
				if scanner.Scan() {
					input.Token = strings.TrimSpace(scanner.Text())
				}
				if err := scanner.Err(); err != nil {
					return writeCommandError(cmd, runtime, "adsrocket auth set", err)
				}
			}

			configPath, err := runtime.ConfigPath()
			if err != nil {
				return writeCommandError(cmd, runtime, "adsrocket auth set", &configError{err: err})
			}
			profile, err := newAuthService(configPath).SetProfile(input)
			if err != nil {
				return writeCommandError(cmd, runtime, "adsrocket auth set", err)
			}
			return writeSuccess(cmd, runtime, "adsrocket auth set", map[string]any{
				"status":  "ok",
				"profile": input.Profile,
				"config":  profileSummary(profile),
			})
		},
	}
	cmd.Flags().StringVar(&input.AccountID, "account-id", "", "Ad account id (with or without act_)")
	cmd.Flags().StringVar(&input.GraphVersion, "graph-version", "", "Graph API version, default "+config.DefaultGraphVersion)
	cmd.Flags().StringVar(&input.Token, "token", "", "Marketing API access token")
	cmd.Flags().BoolVar(&tokenStdin, "token-stdin", false, "Read the access token from the first line of stdin")
	cmd.Flags().StringVar(&input.AppSecret, "app-secret", "", "App secret used for appsecret_proof")
	cmd.Flags().StringVar(&input.TelegramChatID, "telegram-chat-id", "", "Chat that receives reports")
	cmd.Flags().StringVar(&input.TelegramToken, "telegram-token", "", "Telegram bot token")
	cmd.Flags().StringVar(&input.WebhookSecret, "webhook-secret", "", "Secret Telegram sends with webhook updates")
	cmd.Flags().StringVar(&input.AIModel, "ai-model", "", "Gemini model for commentary")
	cmd.Flags().StringVar(&input.AIAPIKey, "ai-api-key", "", "Gemini API key")
	return cmd
}

func newAuthListCommand(runtime Runtime) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List configured profiles",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			configPath, err := runtime.ConfigPath()
			if err != nil {
				return writeCommandError(cmd, runtime, "adsrocket auth list", &configError{err: err})
			}
			cfg, err := loadConfig(configPath)
			if err != nil {
				return writeCommandError(cmd, runtime, "adsrocket auth list", &configError{err: err})
			}

			names := make([]string, 0, len(cfg.Profiles))
			for name := range cfg.Profiles {
				names = append(names, name)
			}
			sort.Strings(names)
			profiles := make([]map[string]any, 0, len(names))
			for _, name := range names {
				summary := profileSummary(cfg.Profiles[name])
				summary["name"] = name
				summary["default"] = name == cfg.DefaultProfile
				profiles = append(profiles, summary)
			}
			return writeSuccess(cmd, runtime, "adsrocket auth list", profiles)
		},
	}
}

// profileSummary reports which secrets are configured without their refs.
func profileSummary(profile config.Profile) map[string]any {
	return map[string]any{
		"account_id":       profile.AccountID,
		"graph_version":    profile.GraphVersion,
		"app_secret":       profile.AppSecretRef != "",
		"telegram_chat_id": profile.Telegram.ChatID,
		"telegram_token":   profile.Telegram.TokenRef != "",
		"telegram_webhook": profile.Telegram.WebhookSecret != "",
		"ai_model":         profile.AI.Model,
		"ai_api_key":       profile.AI.APIKeyRef != "",
	}
}
