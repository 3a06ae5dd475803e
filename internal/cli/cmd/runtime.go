package cmd

import (
	"strings"

	"github.com/adsrocket/adsrocket/internal/config"
)

type Runtime struct {
	Profile *string
	Output  *string
	Debug   *bool
	Config  *string
}

func (r Runtime) ProfileName() string {
	if r.Profile == nil {
		return ""
	}
	return *r.Profile
}

func (r Runtime) DebugEnabled() bool {
	return r.Debug != nil && *r.Debug
}

// ConfigPath prefers --config, then ADSROCKET_CONFIG, then the home default.
func (r Runtime) ConfigPath() (string, error) {
	if r.Config != nil && strings.TrimSpace(*r.Config) != "" {
		return strings.TrimSpace(*r.Config), nil
	}
	return config.DefaultPath()
}
