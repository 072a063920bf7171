// Package config loads tumblrapi settings from YAML and the environment.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Auth schemes.
const (
	SchemeOAuth1 = "oauth1"
	SchemeOAuth2 = "oauth2"
)

// Environment variables that override the file.
const (
	EnvClientKey    = "TUMBLRAPI_CLIENT_KEY"
	EnvClientSecret = "TUMBLRAPI_CLIENT_SECRET"
	EnvCacheDir     = "TUMBLRAPI_CACHE_DIR"
	EnvLogLevel     = "TUMBLRAPI_LOG_LEVEL"
	EnvAuthScheme   = "TUMBLRAPI_AUTH_SCHEME"
	EnvHome         = "TUMBLRAPI_HOME"
)

const (
	defaultTTLDays     = 7
	defaultUserAgent   = "tumblrapi/1.0 (+https://github.com/guarzo/tumblrapi)"
	defaultLogLevel    = "info"
	defaultParallelism = 4
)

var (
	// ErrMissingClientCredentials means neither the file nor the environment
	// provided a client key and secret.
	ErrMissingClientCredentials = errors.New("client_key and client_secret must be set")
	// ErrInvalidConfig wraps every other validation failure.
	ErrInvalidConfig = errors.New("invalid configuration")
)

// Config is the full application configuration.
type Config struct {
	Auth        AuthConfig  `yaml:"auth"`
	Cache       CacheConfig `yaml:"cache"`
	API         APIConfig   `yaml:"api"`
	LogLevel    string      `yaml:"log_level"`
	Parallelism int         `yaml:"parallelism"`
}

// AuthConfig holds client credentials and OAuth endpoints. Empty endpoints
// fall back to Tumblr's.
type AuthConfig struct {
	Scheme       string `yaml:"scheme"`
	ClientKey    string `yaml:"client_key"`
	ClientSecret string `yaml:"client_secret"`

	RequestTokenURL string `yaml:"request_token_url"`
	AuthorizeURL    string `yaml:"authorize_url"`
	AccessTokenURL  string `yaml:"access_token_url"`
	TokenURL        string `yaml:"token_url"`
	RedirectURL     string `yaml:"redirect_url"`

	// VerifierOnly asks for the OAuth1 verifier instead of the redirect URL.
	VerifierOnly bool `yaml:"verifier_only"`
	// OpenBrowser launches the authorize URL in the default browser.
	OpenBrowser bool `yaml:"open_browser"`
	// Service is the credentials cache identifier.
	Service string `yaml:"service"`
}

// CacheConfig locates the two cache files.
type CacheConfig struct {
	Dir                string `yaml:"dir"`
	DataFile           string `yaml:"data_file"`
	CredentialsFile    string `yaml:"credentials_file"`
	DataTTLDays        int    `yaml:"data_ttl_days"`
	CredentialsTTLDays int    `yaml:"credentials_ttl_days"`
}

// APIConfig configures outgoing requests.
type APIConfig struct {
	BaseURL   string `yaml:"base_url"`
	UserAgent string `yaml:"user_agent"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Auth: AuthConfig{
			Scheme:      SchemeOAuth1,
			OpenBrowser: true,
			Service:     "TUMBLR",
		},
		Cache: CacheConfig{
			Dir:                DefaultDir(),
			DataFile:           "cache_contents.json",
			CredentialsFile:    "creds.json",
			DataTTLDays:        defaultTTLDays,
			CredentialsTTLDays: defaultTTLDays,
		},
		API: APIConfig{
			BaseURL:   "https://api.tumblr.com/v2",
			UserAgent: defaultUserAgent,
		},
		LogLevel:    defaultLogLevel,
		Parallelism: defaultParallelism,
	}
}

// DefaultDir is $TUMBLRAPI_HOME or ~/.tumblrapi.
func DefaultDir() string {
	if home := os.Getenv(EnvHome); home != "" {
		return home
	}
	userHome, err := os.UserHomeDir()
	if err != nil {
		return ".tumblrapi"
	}
	return filepath.Join(userHome, ".tumblrapi")
}

// DefaultPath is the config file inside DefaultDir.
func DefaultPath() string {
	return filepath.Join(DefaultDir(), "config.yaml")
}

// Load reads path over the defaults and applies environment overrides. A
// missing file is not an error.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	default:
		if err = yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	}

	cfg.ApplyEnv()
	return cfg, nil
}

// ApplyEnv overrides fields from TUMBLRAPI_* variables.
func (c *Config) ApplyEnv() {
	if v := os.Getenv(EnvClientKey); v != "" {
		c.Auth.ClientKey = v
	}
	if v := os.Getenv(EnvClientSecret); v != "" {
		c.Auth.ClientSecret = v
	}
	if v := os.Getenv(EnvCacheDir); v != "" {
		c.Cache.Dir = v
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		c.LogLevel = v
	}
	if v := os.Getenv(EnvAuthScheme); v != "" {
		c.Auth.Scheme = strings.ToLower(v)
	}
}

// Validate checks values that would otherwise fail late. Client credentials
// are checked separately by RequireClientCredentials because cache commands
// work without them.
func (c *Config) Validate() error {
	switch c.Auth.Scheme {
	case SchemeOAuth1, SchemeOAuth2:
	default:
		return fmt.Errorf("%w: unknown auth scheme %q", ErrInvalidConfig, c.Auth.Scheme)
	}
	if c.Cache.DataTTLDays < 0 || c.Cache.CredentialsTTLDays < 0 {
		return fmt.Errorf("%w: ttl days must not be negative", ErrInvalidConfig)
	}
	if c.Cache.DataFile == "" || c.Cache.CredentialsFile == "" {
		return fmt.Errorf("%w: cache file names must be set", ErrInvalidConfig)
	}
	if c.Parallelism < 0 {
		return fmt.Errorf("%w: parallelism must not be negative", ErrInvalidConfig)
	}
	return nil
}

// RequireClientCredentials fails unless a client key and secret are set.
func (c *Config) RequireClientCredentials() error {
	if c.Auth.ClientKey == "" || c.Auth.ClientSecret == "" {
		return ErrMissingClientCredentials
	}
	return nil
}
