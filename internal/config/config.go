// Package config loads the CLI's run configuration from a YAML file plus
// environment overrides, per spec.md §6 and SPEC_FULL.md §6.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Provider selects which content-generator family a run uses.
type Provider string

const (
	ProviderAnthropic Provider = "anthropic"
	ProviderOpenAI    Provider = "openai"
)

// Config is the run configuration spec.md §6 documents, plus the
// (added) provider selection fields SPEC_FULL.md §6 introduces.
type Config struct {
	AutoConfirm        bool     `yaml:"auto_confirm"`
	MaxAgentIterations int      `yaml:"max_agent_iterations"`
	ToolAllowList      []string `yaml:"tool_allow_list"`
	ToolDenyList       []string `yaml:"tool_deny_list"`

	Provider         Provider `yaml:"provider"`
	CredentialEnvVar string   `yaml:"credential_env_var"`
}

// defaults mirrors the documented defaults from spec.md §6: confirmation is
// required by default and the loop is capped at 25 iterations.
func defaults() Config {
	return Config{
		AutoConfirm:        false,
		MaxAgentIterations: 25,
		Provider:           ProviderAnthropic,
		CredentialEnvVar:   "ANTHROPIC_API_KEY",
	}
}

// Load reads path as YAML into a Config seeded with defaults, then applies
// environment overrides recognized by spec.md §6: AGENTCORE_AUTO_CONFIRM,
// AGENTCORE_MAX_ITERATIONS, AGENTCORE_PROVIDER.
func Load(path string) (Config, error) {
	cfg := defaults()
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return Config{}, fmt.Errorf("parse config %q: %w", path, err)
			}
		case !os.IsNotExist(err):
			return Config{}, fmt.Errorf("read config %q: %w", path, err)
		}
	}
	applyEnvOverrides(&cfg)
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if v, ok := os.LookupEnv("AGENTCORE_AUTO_CONFIRM"); ok {
		cfg.AutoConfirm = v == "1" || v == "true"
	}
	if v, ok := os.LookupEnv("AGENTCORE_MAX_ITERATIONS"); ok {
		var n int
		if _, err := fmt.Sscanf(v, "%d", &n); err == nil && n > 0 {
			cfg.MaxAgentIterations = n
		}
	}
	if v, ok := os.LookupEnv("AGENTCORE_PROVIDER"); ok {
		cfg.Provider = Provider(v)
	}
}

// Validate checks that Config is internally consistent and names a
// credential environment variable. It does not check that the variable is
// set; Credential does that.
func (c Config) Validate() error {
	if c.MaxAgentIterations <= 0 {
		return fmt.Errorf("max_agent_iterations must be positive, got %d", c.MaxAgentIterations)
	}
	switch c.Provider {
	case ProviderAnthropic, ProviderOpenAI:
	default:
		return fmt.Errorf("unknown provider %q", c.Provider)
	}
	if c.CredentialEnvVar == "" {
		return fmt.Errorf("credential_env_var must be set")
	}
	for _, name := range c.ToolAllowList {
		for _, denied := range c.ToolDenyList {
			if name == denied {
				return fmt.Errorf("tool %q appears in both tool_allow_list and tool_deny_list", name)
			}
		}
	}
	return nil
}

// Credential resolves the API credential named by CredentialEnvVar from the
// process environment.
func (c Config) Credential() (string, error) {
	v := os.Getenv(c.CredentialEnvVar)
	if v == "" {
		return "", fmt.Errorf("environment variable %q is not set", c.CredentialEnvVar)
	}
	return v, nil
}
