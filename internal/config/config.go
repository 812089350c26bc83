// Package config loads the application's on-disk configuration: the
// per-profile config.toml, provider credentials (config value falling back
// to environment variables), and the approval/sandbox/budget knobs the
// turn engine and gate need. Grounded on the teacher's internal/config,
// trimmed to the profile/provider/approval/budget surface SPEC_FULL names
// and ported from the teacher's YAML to the spec's "config.toml" per §6,
// still loaded through spf13/viper as the teacher does.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"

	"github.com/turnforge/agentcore/internal/approval"
	"github.com/turnforge/agentcore/internal/provider"
)

// ProviderConfig is one named provider entry under [providers.<name>].
type ProviderConfig struct {
	Type    string `mapstructure:"type"`
	APIKey  string `mapstructure:"api_key"`
	Model   string `mapstructure:"model"`
	BaseURL string `mapstructure:"base_url"`

	BedrockRegion          string `mapstructure:"bedrock_region"`
	BedrockAccessKeyID     string `mapstructure:"bedrock_access_key_id"`
	BedrockSecretAccessKey string `mapstructure:"bedrock_secret_access_key"`
}

// BudgetConfig configures the Context Budget & Compaction component (C5).
type BudgetConfig struct {
	OutputReserved   int     `mapstructure:"output_reserved"`
	CompactThreshold float64 `mapstructure:"compact_threshold"`
}

// FallbackConfig configures the turn engine's model fallback chain (§4.8).
type FallbackConfig struct {
	Enabled        bool     `mapstructure:"enabled"`
	FallbackModels []string `mapstructure:"fallback_models"`
	MaxRetries     int      `mapstructure:"max_retries"`
}

// ToolsConfig configures the local tool system.
type ToolsConfig struct {
	ShellAllow         []string `mapstructure:"shell_allow"`
	MaxToolOutputChars int      `mapstructure:"max_tool_output_chars"`
	ParallelToolCalls  bool     `mapstructure:"parallel_tool_calls"`
}

// SandboxConfig is the TOML-facing form of approval.SandboxPolicy.
type SandboxConfig struct {
	Kind          string   `mapstructure:"kind"` // "read_only", "workspace_write", "danger_full_access"
	DenyReadPaths []string `mapstructure:"deny_read_paths"`
}

// Profile is one named configuration profile, selected with --profile.
type Profile struct {
	DefaultProvider string                    `mapstructure:"default_provider"`
	Providers       map[string]ProviderConfig `mapstructure:"providers"`
	Budget          BudgetConfig              `mapstructure:"budget"`
	Fallback        FallbackConfig            `mapstructure:"fallback"`
	Tools           ToolsConfig               `mapstructure:"tools"`
	Approval        string                    `mapstructure:"approval"` // "never", "on_request", "unless_trusted", "always"
	Sandbox         SandboxConfig             `mapstructure:"sandbox"`
}

// Config is the top-level config.toml shape: a default profile plus any
// named overrides under [profiles.<name>].
type Config struct {
	Profile
	Profiles map[string]Profile `mapstructure:"profiles"`
}

// Load reads config.toml from HomeDir and merges the named profile (if any)
// over the top-level defaults. An empty profile name, or one that doesn't
// exist, just uses the top-level defaults.
func Load(profile string) (*Config, error) {
	home, err := HomeDir()
	if err != nil {
		return nil, fmt.Errorf("config: resolve home directory: %w", err)
	}

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("toml")
	v.AddConfigPath(home)

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("config: read config.toml: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}
	if cfg.Providers == nil {
		cfg.Providers = make(map[string]ProviderConfig)
	}

	if profile != "" {
		if override, ok := cfg.Profiles[profile]; ok {
			cfg.Profile = mergeProfile(cfg.Profile, override)
		}
	}

	resolveCredentials(&cfg.Profile)
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("default_provider", "anthropic")
	v.SetDefault("budget.output_reserved", 4096)
	v.SetDefault("budget.compact_threshold", 0.8)
	v.SetDefault("fallback.max_retries", 3)
	v.SetDefault("tools.max_tool_output_chars", 20000)
	v.SetDefault("tools.parallel_tool_calls", true)
	v.SetDefault("approval", "on_request")
	v.SetDefault("sandbox.kind", "workspace_write")
}

// mergeProfile overlays a named profile's non-zero default_provider,
// providers, budget, approval and sandbox settings over the top-level
// default profile; providers merge key-by-key rather than wholesale so a
// profile can override just one provider's model. A profile's fallback and
// tools sections are not merged: the top-level values always apply.
func mergeProfile(base, override Profile) Profile {
	out := base
	if override.DefaultProvider != "" {
		out.DefaultProvider = override.DefaultProvider
	}
	if len(override.Providers) > 0 {
		merged := make(map[string]ProviderConfig, len(base.Providers)+len(override.Providers))
		for k, v := range base.Providers {
			merged[k] = v
		}
		for k, v := range override.Providers {
			merged[k] = v
		}
		out.Providers = merged
	}
	if override.Budget != (BudgetConfig{}) {
		out.Budget = override.Budget
	}
	if override.Approval != "" {
		out.Approval = override.Approval
	}
	if override.Sandbox.Kind != "" {
		out.Sandbox = override.Sandbox
	}
	return out
}

// resolveCredentials fills each configured provider's APIKey from its
// environment variable when config.toml leaves it blank.
func resolveCredentials(p *Profile) {
	envFor := map[string]string{
		"anthropic": "ANTHROPIC_API_KEY",
		"openai":    "OPENAI_API_KEY",
		"gemini":    "GEMINI_API_KEY",
	}
	for name, cfg := range p.Providers {
		if cfg.APIKey == "" {
			if env, ok := envFor[name]; ok {
				cfg.APIKey = os.Getenv(env)
			}
		}
		p.Providers[name] = cfg
	}
}

// ProviderConfigFor builds the provider package's resolved Config for name,
// falling back to bare environment variables when the provider has no
// entry in config.toml at all (so `ANTHROPIC_API_KEY=... agentcore chat`
// works with zero configuration).
func (c *Config) ProviderConfigFor(name, modelOverride string) provider.Config {
	pc := c.Providers[name]
	model := pc.Model
	if modelOverride != "" {
		model = modelOverride
	}

	out := provider.Config{Name: name, Model: model}
	switch name {
	case "anthropic":
		out.AnthropicAPIKey = firstNonEmpty(pc.APIKey, os.Getenv("ANTHROPIC_API_KEY"))
	case "openai":
		out.OpenAIAPIKey = firstNonEmpty(pc.APIKey, os.Getenv("OPENAI_API_KEY"))
	case "gemini":
		out.GeminiAPIKey = firstNonEmpty(pc.APIKey, os.Getenv("GEMINI_API_KEY"))
	case "bedrock":
		out.BedrockRegion = pc.BedrockRegion
		out.BedrockAccessKeyID = pc.BedrockAccessKeyID
		out.BedrockSecretAccessKey = pc.BedrockSecretAccessKey
	}
	return out
}

// ApprovalPolicy parses the profile's approval string into the approval
// package's enum, defaulting to OnRequest for an unrecognized value.
func (c *Config) ApprovalPolicy() approval.ApprovalPolicy {
	switch strings.ToLower(c.Approval) {
	case "never":
		return approval.Never
	case "unless_trusted":
		return approval.UnlessTrusted
	case "always":
		return approval.Always
	default:
		return approval.OnRequest
	}
}

// SandboxPolicy converts the profile's TOML sandbox section into
// approval.SandboxPolicy.
func (c *Config) SandboxPolicy() approval.SandboxPolicy {
	kind := approval.SandboxWorkspaceWrite
	switch strings.ToLower(c.Sandbox.Kind) {
	case "read_only":
		kind = approval.SandboxReadOnly
	case "danger_full_access":
		kind = approval.SandboxDangerFullAccess
	}
	return approval.SandboxPolicy{Kind: kind, DenyReadPaths: c.Sandbox.DenyReadPaths}
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

// HomeDir returns "~/.agentcore" (or $AGENTCORE_HOME if set), the root
// spec §6 describes as containing config.toml, .env, sessions/, skills/,
// plugins/, and rules/.
func HomeDir() (string, error) {
	if h := os.Getenv("AGENTCORE_HOME"); h != "" {
		return h, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".agentcore"), nil
}

// ConfigPath returns the path to config.toml under HomeDir.
func ConfigPath() (string, error) {
	home, err := HomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, "config.toml"), nil
}

// Exists reports whether config.toml has been created yet.
func Exists() bool {
	path, err := ConfigPath()
	if err != nil {
		return false
	}
	_, err = os.Stat(path)
	return err == nil
}
