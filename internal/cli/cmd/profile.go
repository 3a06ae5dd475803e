package cmd

import (
	"github.com/adsrocket/adsrocket/internal/auth"
	"github.com/adsrocket/adsrocket/internal/graph"
)

var newSecretStore = func() auth.SecretStore {
	return auth.NewKeychainStore()
}

func loadProfileCredentials(configPath string, profile string) (*auth.ProfileCredentials, error) {
	creds, err := auth.NewService(configPath, newSecretStore()).Resolve(profile)
	if err != nil {
		return nil, &configError{err: err}
	}
	return creds, nil
}

func graphCredentials(profile *auth.ProfileCredentials) graph.Credentials {
	if profile == nil {
		return graph.Credentials{}
	}
	return graph.Credentials{
		Version:     profile.Profile.GraphVersion,
		AccessToken: profile.Token,
		AppSecret:   profile.AppSecret,
	}
}
