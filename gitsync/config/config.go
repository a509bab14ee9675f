// Package config loads the codepublish settings from an
// optional YAML file and CODEPUBLISH_* environment variables.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/byte4ever/codepublish/gitsync/git"
	"github.com/byte4ever/codepublish/gitsync/git/bitbucket"
	"github.com/byte4ever/codepublish/gitsync/git/factory"
	"github.com/byte4ever/codepublish/gitsync/git/github"
	"github.com/byte4ever/codepublish/gitsync/git/gitlab"
	"github.com/byte4ever/codepublish/gitsync/ignore"
)

// EnvPrefix prefixes every environment override, e.g.
// CODEPUBLISH_GITLAB_CLIENT_ID for gitlab.client_id.
const EnvPrefix = "CODEPUBLISH"

// Config is the process configuration.
type Config struct {
	ScratchDir  string `mapstructure:"scratch_dir"`
	IgnoreFile  string `mapstructure:"ignore_file"`
	LogLevel    string `mapstructure:"log_level"`
	DatabaseURL string `mapstructure:"database_url"`
	ListenAddr  string `mapstructure:"listen_addr"`

	Restorer  Identity  `mapstructure:"restorer"`
	OAuth     OAuth     `mapstructure:"oauth"`
	GitHub    GitHub    `mapstructure:"github"`
	GitLab    GitLab    `mapstructure:"gitlab"`
	Bitbucket Bitbucket `mapstructure:"bitbucket"`
}

// Identity is a commit author.
type Identity struct {
	Name  string `mapstructure:"name"`
	Email string `mapstructure:"email"`
}

// OAuth holds the installation flow settings.
type OAuth struct {
	// StateKey signs the state carried through the provider
	// redirect.
	StateKey string        `mapstructure:"state_key"`
	StateTTL time.Duration `mapstructure:"state_ttl"`
}

// GitHub holds the GitHub App settings.
type GitHub struct {
	AppID           int64  `mapstructure:"app_id"`
	PrivateKey      string `mapstructure:"private_key"`
	ClientID        string `mapstructure:"client_id"`
	ClientSecret    string `mapstructure:"client_secret"`
	InstallationURL string `mapstructure:"installation_url"`
	EnterpriseHost  string `mapstructure:"enterprise_host"`
}

// GitLab holds the GitLab OAuth application settings.
type GitLab struct {
	Host         string `mapstructure:"host"`
	ClientID     string `mapstructure:"client_id"`
	ClientSecret string `mapstructure:"client_secret"`
	RedirectURL  string `mapstructure:"redirect_url"`
}

// Bitbucket holds the Bitbucket OAuth consumer settings.
type Bitbucket struct {
	ClientID     string `mapstructure:"client_id"`
	ClientSecret string `mapstructure:"client_secret"`
	BotName      string `mapstructure:"bot_name"`
	BotEmail     string `mapstructure:"bot_email"`
}

var defaults = map[string]any{
	"scratch_dir":    "",
	"ignore_file":    ignore.DefaultFileName,
	"log_level":      "info",
	"database_url":   "",
	"listen_addr":    ":8080",
	"restorer.name":  "codepublish diff",
	"restorer.email": "diff@codepublish.dev",
	"oauth.state_key": "",
	"oauth.state_ttl": "10m",

	"github.app_id":           0,
	"github.private_key":      "",
	"github.client_id":        "",
	"github.client_secret":    "",
	"github.installation_url": "",
	"github.enterprise_host":  "",

	"gitlab.host":          "https://gitlab.com",
	"gitlab.client_id":     "",
	"gitlab.client_secret": "",
	"gitlab.redirect_url":  "",

	"bitbucket.client_id":     "",
	"bitbucket.client_secret": "",
	"bitbucket.bot_name":      "",
	"bitbucket.bot_email":     "",
}

// Load reads the YAML file at path, when path is not empty,
// and applies environment overrides. Every key has a default
// so that environment variables alone are enough.
func Load(path string) (*Config, error) {
	const errCtx = "loading config"

	v := viper.New()

	// Registered defaults make AutomaticEnv see nested keys
	// during Unmarshal.
	for k, d := range defaults {
		v.SetDefault(k, d)
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")

		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("%s: %s: %w", errCtx, path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("%s: %w", errCtx, err)
	}

	if _, err := ParseLevel(cfg.LogLevel); err != nil {
		return nil, fmt.Errorf("%s: %w", errCtx, err)
	}

	return &cfg, nil
}

// ProviderSettings maps the provider sections onto the
// factory settings.
func (c *Config) ProviderSettings() factory.Settings {
	return factory.Settings{
		GitHub: github.Config{
			AppID:           c.GitHub.AppID,
			PrivateKey:      c.GitHub.PrivateKey,
			ClientID:        c.GitHub.ClientID,
			ClientSecret:    c.GitHub.ClientSecret,
			InstallationURL: c.GitHub.InstallationURL,
			EnterpriseHost:  c.GitHub.EnterpriseHost,
		},
		GitLab: gitlab.Config{
			Host:         c.GitLab.Host,
			ClientID:     c.GitLab.ClientID,
			ClientSecret: c.GitLab.ClientSecret,
			RedirectURL:  c.GitLab.RedirectURL,
		},
		Bitbucket: bitbucket.Config{
			ClientID:     c.Bitbucket.ClientID,
			ClientSecret: c.Bitbucket.ClientSecret,
			BotName:      c.Bitbucket.BotName,
			BotEmail:     c.Bitbucket.BotEmail,
		},
	}
}

// RestorationIdentity is the author of diff restoration
// commits.
func (c *Config) RestorationIdentity() git.Identity {
	return git.Identity{Name: c.Restorer.Name, Email: c.Restorer.Email}
}

// RequireDatabase fails when no database URL is configured.
func (c *Config) RequireDatabase() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf(
			"database_url must be set: %w", git.ErrConfiguration,
		)
	}

	return nil
}

// RequireStateKey fails when no OAuth state key is
// configured.
func (c *Config) RequireStateKey() error {
	if c.OAuth.StateKey == "" {
		return fmt.Errorf(
			"oauth.state_key must be set: %w", git.ErrConfiguration,
		)
	}

	return nil
}

var errUnknownLevel = errors.New("unknown log level")

// ParseLevel maps debug, info, warn and error onto slog
// levels. An empty name means info.
func ParseLevel(name string) (slog.Level, error) {
	switch strings.ToLower(name) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf(
			"%w %q: %w", errUnknownLevel, name, git.ErrConfiguration,
		)
	}
}
