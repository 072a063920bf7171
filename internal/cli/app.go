package cli

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/bool64/stats"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/guarzo/tumblrapi/common"
	"github.com/guarzo/tumblrapi/internal/config"
	"github.com/guarzo/tumblrapi/modules/auth"
	"github.com/guarzo/tumblrapi/modules/cache"
	"github.com/guarzo/tumblrapi/modules/tumblr"
)

type rootFlags struct {
	configPath string
	debug      bool
	cacheDir   string
	scheme     string
}

// app holds what one invocation builds: configuration, logger and the
// components derived from them. Components are created on first use.
type app struct {
	opts  Options
	flags rootFlags

	cfg *config.Config
	log zerolog.Logger

	caches   *cache.Caches
	provider *auth.Provider
}

func (a *app) setup(cmd *cobra.Command) error {
	path := a.flags.configPath
	if path == "" {
		path = config.DefaultPath()
	}

	cfg, err := config.Load(path)
	if err != nil {
		return err
	}
	if a.flags.cacheDir != "" {
		cfg.Cache.Dir = a.flags.cacheDir
	}
	if a.flags.scheme != "" {
		cfg.Auth.Scheme = strings.ToLower(a.flags.scheme)
	}
	if a.flags.debug {
		cfg.LogLevel = zerolog.LevelDebugValue
	}
	if err = cfg.Validate(); err != nil {
		return err
	}

	a.cfg = cfg
	a.log = config.NewLogger(cfg.LogLevel, cmd.ErrOrStderr())
	a.log.Debug().Str("config", path).Str("cache_dir", cfg.Cache.Dir).Msg("configuration loaded")
	return nil
}

func (a *app) openCaches() (*cache.Caches, error) {
	if a.caches != nil {
		return a.caches, nil
	}

	logger := a.log.With().Str("component", "cache").Logger()
	caches, err := cache.OpenCaches(cache.CachesConfig{
		Storage:             cache.NewFileStorage(a.cfg.Cache.Dir),
		DataLocation:        a.cfg.Cache.DataFile,
		CredentialsLocation: a.cfg.Cache.CredentialsFile,
		Clock:               a.opts.Clock,
		Logger:              &logger,
		Stats:               &statsLogger{log: logger},
	})
	if err != nil {
		return nil, err
	}
	a.caches = caches
	return caches, nil
}

func (a *app) authenticator(cmd *cobra.Command) common.Authenticator {
	prompt := a.opts.Prompter
	if prompt == nil {
		prompt = auth.NewTerminalPrompter(cmd.InOrStdin(), cmd.ErrOrStderr(), a.cfg.Auth.OpenBrowser, a.log)
	}

	logger := a.log.With().Str("component", "auth").Logger()
	ac := a.cfg.Auth
	if ac.Scheme == config.SchemeOAuth2 {
		return auth.NewOAuth2Authenticator(auth.OAuth2Config{
			ClientKey:    ac.ClientKey,
			ClientSecret: ac.ClientSecret,
			AuthURL:      ac.AuthorizeURL,
			TokenURL:     ac.TokenURL,
			RedirectURL:  ac.RedirectURL,
		}, prompt, logger)
	}
	return auth.NewOAuth1Authenticator(auth.OAuth1Config{
		ClientKey:       ac.ClientKey,
		ClientSecret:    ac.ClientSecret,
		RequestTokenURL: ac.RequestTokenURL,
		AuthorizeURL:    ac.AuthorizeURL,
		AccessTokenURL:  ac.AccessTokenURL,
		CallbackURL:     ac.RedirectURL,
		VerifierOnly:    ac.VerifierOnly,
	}, prompt, logger)
}

func (a *app) credentials(cmd *cobra.Command) (*auth.Provider, error) {
	if a.provider != nil {
		return a.provider, nil
	}
	if err := a.cfg.RequireClientCredentials(); err != nil {
		return nil, fmt.Errorf("%w (set them in %s or via %s/%s)",
			err, filepath.Base(config.DefaultPath()), config.EnvClientKey, config.EnvClientSecret)
	}

	caches, err := a.openCaches()
	if err != nil {
		return nil, err
	}
	a.provider = auth.NewProvider(caches.Credentials, a.authenticator(cmd), a.cfg.Cache.CredentialsTTLDays, a.log)
	return a.provider, nil
}

func (a *app) client(cmd *cobra.Command) (tumblr.Client, error) {
	provider, err := a.credentials(cmd)
	if err != nil {
		return nil, err
	}
	caches, err := a.openCaches()
	if err != nil {
		return nil, err
	}
	return tumblr.NewClient(tumblr.ClientConfig{
		Data:          caches.Data,
		Credentials:   provider,
		UserAgent:     a.cfg.API.UserAgent,
		TTLDays:       a.cfg.Cache.DataTTLDays,
		Logger:        a.log.With().Str("component", "tumblr").Logger(),
		NewHTTPClient: a.opts.HTTPClientFactory,
	}), nil
}

func (a *app) service(cmd *cobra.Command) (tumblr.Service, error) {
	client, err := a.client(cmd)
	if err != nil {
		return nil, err
	}
	return tumblr.NewService(client, tumblr.ServiceConfig{
		APIKey:      a.cfg.Auth.ClientKey,
		Service:     a.cfg.Auth.Service,
		URLs:        tumblr.URLBuilder{BaseURL: a.cfg.API.BaseURL},
		Parallelism: a.cfg.Parallelism,
		Logger:      a.log,
	}), nil
}

// statsLogger reports cache metrics as trace lines.
type statsLogger struct {
	log zerolog.Logger
}

var _ stats.Tracker = (*statsLogger)(nil)

func (s *statsLogger) Add(_ context.Context, name string, increment float64, labelsAndValues ...string) {
	s.log.Trace().Str("metric", name).Float64("add", increment).Strs("labels", labelsAndValues).Send()
}

func (s *statsLogger) Set(_ context.Context, name string, absolute float64, labelsAndValues ...string) {
	s.log.Trace().Str("metric", name).Float64("set", absolute).Strs("labels", labelsAndValues).Send()
}
