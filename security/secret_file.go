package security

import (
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
)

const (
	EnvClientID     = "PROVIDER_API_KEY"
	EnvClientSecret = "PROVIDER_SECRET"
	EnvAppKey       = "APP_KEY"
)

// Secrets are the application credentials kept outside the config file.
type Secrets struct {
	ClientID     string
	ClientSecret string
	AppKey       string
}

// LoadSecretFile reads a dotenv formatted secrets file. Values missing from
// the file fall back to the process environment.
func LoadSecretFile(path string) (Secrets, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return Secrets{}, fmt.Errorf("security: secrets file path is required")
	}
	values, err := godotenv.Read(path)
	if err != nil {
		return Secrets{}, fmt.Errorf("security: read secrets file %s: %w", path, err)
	}
	lookup := func(key string) string {
		if value := strings.TrimSpace(values[key]); value != "" {
			return value
		}
		return strings.TrimSpace(os.Getenv(key))
	}
	return Secrets{
		ClientID:     lookup(EnvClientID),
		ClientSecret: lookup(EnvClientSecret),
		AppKey:       lookup(EnvAppKey),
	}, nil
}

// SecretsFromEnv reads the same keys from the process environment only.
func SecretsFromEnv() Secrets {
	return Secrets{
		ClientID:     strings.TrimSpace(os.Getenv(EnvClientID)),
		ClientSecret: strings.TrimSpace(os.Getenv(EnvClientSecret)),
		AppKey:       strings.TrimSpace(os.Getenv(EnvAppKey)),
	}
}

// SecretProvider returns an app-key sealer, or nil when no APP_KEY is set.
func (s Secrets) SecretProvider(opts ...Option) (*AppKeySecretProvider, error) {
	if strings.TrimSpace(s.AppKey) == "" {
		return nil, nil
	}
	return NewAppKeySecretProviderFromString(s.AppKey, opts...)
}
