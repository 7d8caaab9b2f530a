package internal

import (
	"fmt"
	"log/slog"
	"math"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/lectorlips/internal/sequencer"
	"github.com/starford/lectorlips/internal/viseme"
)

// Auth modes.
const (
	AuthModeDisabled = "disabled"
	AuthModeToken    = "token"
)

// Config represents the application configuration.
type Config struct {
	App       ApplicationConfig `yaml:"app"`
	Sequencer SequencerConfig   `yaml:"sequencer"`
	Output    DirConfig         `yaml:"output"`
	Inbox     DirConfig         `yaml:"inbox"`
	SQLite    SQLiteConfig      `yaml:"sqlite"`
	Auth      AuthConfig        `yaml:"auth"`
	API       APIConfig         `yaml:"api"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := c.App.Validate(); err != nil {
		return fmt.Errorf("app: %w", err)
	}
	if err := c.Sequencer.Validate(); err != nil {
		return fmt.Errorf("sequencer: %w", err)
	}
	if err := c.Output.Validate(); err != nil {
		return fmt.Errorf("output: %w", err)
	}
	if err := c.Inbox.Validate(); err != nil {
		return fmt.Errorf("inbox: %w", err)
	}
	if err := c.SQLite.Validate(); err != nil {
		return fmt.Errorf("sqlite: %w", err)
	}
	if err := c.API.Validate(); err != nil {
		return fmt.Errorf("api: %w", err)
	}
	return c.Auth.Validate()
}

// ApplicationConfig holds application-level configuration.
type ApplicationConfig struct {
	LogLevel slog.Level `yaml:"log_level"`
	HTTP     HTTPConfig `yaml:"http"`
}

// Validate validates the application configuration.
func (c *ApplicationConfig) Validate() error {
	return c.HTTP.Validate()
}

// HTTPConfig holds HTTP server configuration.
type HTTPConfig struct {
	Port int `yaml:"port"`
}

// Address returns HTTP server address.
func (c *HTTPConfig) Address() string {
	return fmt.Sprintf(":%d", c.Port)
}

// Validate validates the HTTP configuration.
func (c *HTTPConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Port, validation.Required, validation.Min(1), validation.Max(65535)),
	)
}

// SequencerConfig holds compile defaults.
type SequencerConfig struct {
	MappingFile     string  `yaml:"mapping_file"`
	EndTickDuration float64 `yaml:"end_tick_duration"`
	// TextureBase is used for inbox compiles, where no per-file value exists.
	TextureBase string `yaml:"texture_base"`
}

// Validate validates the sequencer configuration.
func (c *SequencerConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.MappingFile, validation.Required, validation.By(func(any) error {
			return viseme.ValidateFileName(c.MappingFile)
		})),
		validation.Field(&c.EndTickDuration, validation.Min(0.0), validation.By(func(any) error {
			if math.IsNaN(c.EndTickDuration) || math.IsInf(c.EndTickDuration, 0) {
				return fmt.Errorf("must be a finite number")
			}
			return nil
		})),
		validation.Field(&c.TextureBase, validation.By(func(any) error {
			if c.TextureBase != "" && !strings.Contains(c.TextureBase, ":") {
				return fmt.Errorf("must contain ':', for example 'blockbuster:textures/mouths/'")
			}
			return nil
		})),
	)
}

// DirConfig holds a directory path.
type DirConfig struct {
	Path string `yaml:"path"`
}

// Validate validates the directory configuration.
func (c *DirConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.Required),
	)
}

// SQLiteConfig holds SQLite database configuration.
type SQLiteConfig struct {
	Path string `yaml:"path"`
}

// Validate validates the SQLite configuration.
func (c *SQLiteConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.Required),
	)
}

// APIConfig holds request limits for the HTTP API.
type APIConfig struct {
	RateLimit float64 `yaml:"rate_limit"`
	Burst     int     `yaml:"burst"`
}

// Validate validates the API configuration.
func (c *APIConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.RateLimit, validation.Required, validation.Min(0.0)),
		validation.Field(&c.Burst, validation.Required, validation.Min(1)),
	)
}

// AuthConfig holds authentication configuration.
//
// Mode controls how authentication is enforced:
//   - "disabled" (default): no authentication required, suitable for local use.
//   - "token": Bearer token authentication; Token must be non-empty.
type AuthConfig struct {
	Mode  string `yaml:"mode"`
	Token string `yaml:"token"`
}

// Validate validates the auth configuration.
func (c *AuthConfig) Validate() error {
	if c.Mode == "" {
		c.Mode = AuthModeDisabled
	}
	if err := validation.ValidateStruct(c,
		validation.Field(&c.Mode, validation.Required, validation.In(AuthModeDisabled, AuthModeToken)),
	); err != nil {
		return err
	}
	if c.Mode == AuthModeToken && c.Token == "" {
		return fmt.Errorf("auth: mode is %q but token is empty", AuthModeToken)
	}
	return nil
}

// AuthEnabled returns true when authentication is active.
func (c *AuthConfig) AuthEnabled() bool {
	return c.Mode == AuthModeToken
}

// NewDefaultConfig returns a new Config with sensible default values.
func NewDefaultConfig() *Config {
	return &Config{
		App: ApplicationConfig{
			LogLevel: slog.LevelInfo,
			HTTP: HTTPConfig{
				Port: 8080,
			},
		},
		Sequencer: SequencerConfig{
			MappingFile:     viseme.DefaultFileName,
			EndTickDuration: sequencer.DefaultEndTickDuration,
		},
		Output: DirConfig{
			Path: ".",
		},
		Inbox: DirConfig{
			Path: "./inbox",
		},
		SQLite: SQLiteConfig{
			Path: "./lectorlips.db",
		},
		Auth: AuthConfig{
			Mode: AuthModeDisabled,
		},
		API: APIConfig{
			RateLimit: 5,
			Burst:     10,
		},
	}
}
