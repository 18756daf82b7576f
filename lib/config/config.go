// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"regexp"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// EnvironmentPrefix prefixes every override variable.
const EnvironmentPrefix = "GATEKEEPER"

// PathVariable names the config file when --config is absent.
const PathVariable = "GATEKEEPER_CONFIG"

// Environment is the deployment type.
type Environment string

const (
	Development Environment = "development"
	Production  Environment = "production"
)

// Config is the complete gatekeeper configuration.
type Config struct {
	Environment Environment `yaml:"environment" envconfig:"GATEKEEPER_ENVIRONMENT"`

	Discord      DiscordConfig      `yaml:"discord"`
	Roblox       RobloxConfig       `yaml:"roblox"`
	Verification VerificationConfig `yaml:"verification"`
	Revocation   RevocationConfig   `yaml:"revocation"`
	Gemini       GeminiConfig       `yaml:"gemini"`
	Storage      StorageConfig      `yaml:"storage"`
	Credentials  CredentialsConfig  `yaml:"credentials"`
	Dashboard    DashboardConfig    `yaml:"dashboard"`
	Control      ControlConfig      `yaml:"control"`
	Logging      LoggingConfig      `yaml:"logging"`
}

// DiscordConfig identifies the guild and the channels and roles the bot
// manages. All ids are Discord snowflakes.
type DiscordConfig struct {
	GuildID               string   `yaml:"guild_id" envconfig:"GATEKEEPER_DISCORD_GUILD_ID"`
	VerificationChannelID string   `yaml:"verification_channel_id" envconfig:"GATEKEEPER_DISCORD_VERIFICATION_CHANNEL_ID"`
	RestrictedChannelIDs  []string `yaml:"restricted_channel_ids" envconfig:"GATEKEEPER_DISCORD_RESTRICTED_CHANNEL_IDS"`
	AIChannelIDs          []string `yaml:"ai_channel_ids" envconfig:"GATEKEEPER_DISCORD_AI_CHANNEL_IDS"`
	MemberRoleID          string   `yaml:"member_role_id" envconfig:"GATEKEEPER_DISCORD_MEMBER_ROLE_ID"`
	UnverifiedRoleID      string   `yaml:"unverified_role_id" envconfig:"GATEKEEPER_DISCORD_UNVERIFIED_ROLE_ID"`
}

// RobloxConfig configures the identity provider client.
type RobloxConfig struct {
	UsersBaseURL  string `yaml:"users_base_url" envconfig:"GATEKEEPER_ROBLOX_USERS_BASE_URL"`
	GroupsBaseURL string `yaml:"groups_base_url" envconfig:"GATEKEEPER_ROBLOX_GROUPS_BASE_URL"`

	// GroupID is the group whose membership grants the member role.
	GroupID int64 `yaml:"group_id" envconfig:"GATEKEEPER_ROBLOX_GROUP_ID"`

	RequestsPerSecond float64       `yaml:"requests_per_second" envconfig:"GATEKEEPER_ROBLOX_REQUESTS_PER_SECOND"`
	Timeout           time.Duration `yaml:"timeout" envconfig:"GATEKEEPER_ROBLOX_TIMEOUT"`
}

// VerificationConfig tunes the linking flow.
type VerificationConfig struct {
	RequireGroupMembership bool          `yaml:"require_group_membership" envconfig:"GATEKEEPER_VERIFICATION_REQUIRE_GROUP_MEMBERSHIP"`
	SessionTTL             time.Duration `yaml:"session_ttl" envconfig:"GATEKEEPER_VERIFICATION_SESSION_TTL"`

	// AdminIdentifier is matched case-insensitively against the claimed
	// identity. The secret it pairs with lives in the credential bundle.
	AdminIdentifier string `yaml:"admin_identifier" envconfig:"GATEKEEPER_VERIFICATION_ADMIN_IDENTIFIER"`
}

// RevocationConfig controls the membership sweep.
type RevocationConfig struct {
	Enabled  bool          `yaml:"enabled" envconfig:"GATEKEEPER_REVOCATION_ENABLED"`
	Interval time.Duration `yaml:"interval" envconfig:"GATEKEEPER_REVOCATION_INTERVAL"`
}

// GeminiConfig configures AI chat. AI chat is off when the credential
// bundle has no gemini_api_key.
type GeminiConfig struct {
	BaseURL           string        `yaml:"base_url" envconfig:"GATEKEEPER_GEMINI_BASE_URL"`
	Model             string        `yaml:"model" envconfig:"GATEKEEPER_GEMINI_MODEL"`
	SystemInstruction string        `yaml:"system_instruction" envconfig:"GATEKEEPER_GEMINI_SYSTEM_INSTRUCTION"`
	Timeout           time.Duration `yaml:"timeout" envconfig:"GATEKEEPER_GEMINI_TIMEOUT"`
	MaxOutputTokens   int           `yaml:"max_output_tokens" envconfig:"GATEKEEPER_GEMINI_MAX_OUTPUT_TOKENS"`
}

type StorageConfig struct {
	Path     string `yaml:"path" envconfig:"GATEKEEPER_STORAGE_PATH"`
	PoolSize int    `yaml:"pool_size" envconfig:"GATEKEEPER_STORAGE_POOL_SIZE"`
}

// CredentialsConfig locates the credential bundle. IdentityPath is the
// age identity that decrypts it; empty means the bundle is plaintext.
type CredentialsConfig struct {
	Path         string `yaml:"path" envconfig:"GATEKEEPER_CREDENTIALS_PATH"`
	IdentityPath string `yaml:"identity_path" envconfig:"GATEKEEPER_CREDENTIALS_IDENTITY_PATH"`
}

// DashboardConfig: an empty ListenAddress disables the HTTP surface.
type DashboardConfig struct {
	ListenAddress string `yaml:"listen_address" envconfig:"GATEKEEPER_DASHBOARD_LISTEN_ADDRESS"`
}

// ControlConfig: an empty SocketPath disables the control socket.
type ControlConfig struct {
	SocketPath string `yaml:"socket_path" envconfig:"GATEKEEPER_CONTROL_SOCKET_PATH"`
}

type LoggingConfig struct {
	Level string `yaml:"level" envconfig:"GATEKEEPER_LOGGING_LEVEL"`
}

// Default returns the configuration every file is decoded over.
func Default() *Config {
	return &Config{
		Environment: Development,
		Roblox: RobloxConfig{
			UsersBaseURL:      "https://users.roblox.com",
			GroupsBaseURL:     "https://groups.roblox.com",
			RequestsPerSecond: 2,
			Timeout:           10 * time.Second,
		},
		Verification: VerificationConfig{
			RequireGroupMembership: true,
			SessionTTL:             15 * time.Minute,
		},
		Revocation: RevocationConfig{
			Enabled:  true,
			Interval: 12 * time.Hour,
		},
		Gemini: GeminiConfig{
			BaseURL:           "https://generativelanguage.googleapis.com",
			Model:             "gemini-2.0-flash",
			SystemInstruction: "You are a friendly assistant for a Roblox community Discord server. Keep answers short and on topic.",
			Timeout:           30 * time.Second,
			MaxOutputTokens:   1024,
		},
		Storage: StorageConfig{
			Path:     "${HOME}/.local/share/gatekeeper/gatekeeper.db",
			PoolSize: 4,
		},
		Logging: LoggingConfig{Level: "info"},
	}
}

// ResolvePath returns flagValue if set, else $GATEKEEPER_CONFIG.
func ResolvePath(flagValue string) (string, error) {
	if flagValue != "" {
		return flagValue, nil
	}
	if path := os.Getenv(PathVariable); path != "" {
		return path, nil
	}
	return "", fmt.Errorf("no configuration: pass --config or set %s", PathVariable)
}

// LoadFile decodes path over Default, applies GATEKEEPER_* overrides,
// and expands path variables. It does not validate.
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parsing %s: %w", path, err)
	}
	// Leaf tags carry the full variable name; envconfig falls back to
	// the bare tag when the nested key is unset.
	if err := envconfig.Process(EnvironmentPrefix, cfg); err != nil {
		return nil, fmt.Errorf("config: environment overrides: %w", err)
	}

	cfg.expandVariables()
	return cfg, nil
}

func (c *Config) expandVariables() {
	c.Storage.Path = expandVars(c.Storage.Path)
	c.Credentials.Path = expandVars(c.Credentials.Path)
	c.Credentials.IdentityPath = expandVars(c.Credentials.IdentityPath)
	c.Control.SocketPath = expandVars(c.Control.SocketPath)
}

var varPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

// expandVars replaces ${VAR} and ${VAR:-default} from the environment.
func expandVars(value string) string {
	return varPattern.ReplaceAllStringFunc(value, func(match string) string {
		parts := varPattern.FindStringSubmatch(match)
		if environmentValue := os.Getenv(parts[1]); environmentValue != "" {
			return environmentValue
		}
		return parts[2]
	})
}

// LogLevel parses Logging.Level.
func (c *Config) LogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.Logging.Level)); err != nil {
		return 0, fmt.Errorf("logging.level: %w", err)
	}
	return level, nil
}

// Validate reports every configuration problem, joined.
func (c *Config) Validate() error {
	var errs []error
	required := func(value, name string) {
		if value == "" {
			errs = append(errs, fmt.Errorf("%s is required", name))
		}
	}
	positive := func(value time.Duration, name string) {
		if value <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive, got %s", name, value))
		}
	}

	if c.Environment != Development && c.Environment != Production {
		errs = append(errs, fmt.Errorf("invalid environment: %q", c.Environment))
	}

	required(c.Discord.GuildID, "discord.guild_id")
	required(c.Discord.VerificationChannelID, "discord.verification_channel_id")
	required(c.Discord.MemberRoleID, "discord.member_role_id")
	required(c.Discord.UnverifiedRoleID, "discord.unverified_role_id")

	required(c.Roblox.UsersBaseURL, "roblox.users_base_url")
	required(c.Roblox.GroupsBaseURL, "roblox.groups_base_url")
	if c.Roblox.RequestsPerSecond <= 0 {
		errs = append(errs, fmt.Errorf("roblox.requests_per_second must be positive"))
	}
	positive(c.Roblox.Timeout, "roblox.timeout")
	if (c.Verification.RequireGroupMembership || c.Revocation.Enabled) && c.Roblox.GroupID <= 0 {
		errs = append(errs, fmt.Errorf("roblox.group_id is required when group membership is checked"))
	}

	positive(c.Verification.SessionTTL, "verification.session_ttl")
	if c.Revocation.Enabled {
		positive(c.Revocation.Interval, "revocation.interval")
	}

	required(c.Gemini.BaseURL, "gemini.base_url")
	required(c.Gemini.Model, "gemini.model")
	positive(c.Gemini.Timeout, "gemini.timeout")

	required(c.Storage.Path, "storage.path")
	required(c.Credentials.Path, "credentials.path")
	if c.Environment == Production && c.Credentials.IdentityPath == "" {
		errs = append(errs, fmt.Errorf("credentials.identity_path is required in production (the bundle must be age-encrypted)"))
	}

	if _, err := c.LogLevel(); err != nil {
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}
