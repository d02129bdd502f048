package classify

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
)

// Provider names accepted by NewService.
const (
	ProviderOpenAI   = "openai"
	ProviderZeroShot = "zeroshot"
)

// ServiceConfig selects and configures a Service client.
type ServiceConfig struct {
	Provider   string
	Model      string
	BaseURL    string
	RatePerSec float64
	// APIKeyEnv names the environment variable holding the key. Defaults to
	// OPENAI_API_KEY or HF_API_TOKEN depending on Provider.
	APIKeyEnv string
	// TokensFile is a JSON object of provider name to key, consulted when
	// the environment variable is empty.
	TokensFile string
}

// ErrNoAPIKey is returned when no key is found for the provider.
var ErrNoAPIKey = errors.New("classify: no API key")

// NewService builds the client named by cfg.Provider.
func NewService(cfg ServiceConfig) (Service, error) {
	provider := strings.ToLower(cfg.Provider)
	if provider == "" {
		provider = ProviderOpenAI
	}
	key, err := LoadAPIKey(provider, cfg.APIKeyEnv, cfg.TokensFile)
	if err != nil {
		return nil, err
	}
	cc := ClientConfig{APIKey: key, Model: cfg.Model, BaseURL: cfg.BaseURL, RatePerSec: cfg.RatePerSec}

	switch provider {
	case ProviderOpenAI:
		if cc.Model == "" {
			cc.Model = os.Getenv("OPENAI_MODEL")
		}
		return NewOpenAIClient(cc)
	case ProviderZeroShot:
		return NewZeroShotClient(cc)
	default:
		return nil, fmt.Errorf("classify: unknown provider %q", cfg.Provider)
	}
}

// LoadAPIKey resolves the key for provider from envName (or the provider's
// default variable), then from tokensFile.
func LoadAPIKey(provider, envName, tokensFile string) (string, error) {
	if envName == "" {
		envName = defaultKeyEnv(provider)
	}
	if v := strings.TrimSpace(os.Getenv(envName)); v != "" {
		return v, nil
	}
	if tokensFile != "" {
		data, err := os.ReadFile(tokensFile)
		if err != nil {
			return "", fmt.Errorf("classify: read tokens file: %w", err)
		}
		var tokens map[string]string
		if err := json.Unmarshal(data, &tokens); err != nil {
			return "", fmt.Errorf("classify: parse tokens file: %w", err)
		}
		for _, k := range []string{provider, envName} {
			if v := strings.TrimSpace(tokens[k]); v != "" {
				return v, nil
			}
		}
	}
	return "", fmt.Errorf("%w: set %s", ErrNoAPIKey, envName)
}

func defaultKeyEnv(provider string) string {
	if provider == ProviderZeroShot {
		return "HF_API_TOKEN"
	}
	return "OPENAI_API_KEY"
}
