package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/guarzo/tumblrapi/common"
	"github.com/guarzo/tumblrapi/common/model"
	"github.com/guarzo/tumblrapi/modules/cache"
)

// DefaultCredentialsTTLDays is how long a login is reused.
const DefaultCredentialsTTLDays = 7

var (
	// ErrMissingClientCredentials means no client key/secret is configured.
	ErrMissingClientCredentials = errors.New("client key and client secret are required")
	// ErrNotRefreshable means the credentials carry no refresh token.
	ErrNotRefreshable = errors.New("credentials cannot be refreshed")
)

// Provider hands out credentials per service, reading them from the
// credentials cache and running a login only when the cache has none.
type Provider struct {
	cache   common.CacheRepository
	auth    common.Authenticator
	ttlDays int
	log     zerolog.Logger

	logins singleflight.Group
}

// NewProvider wires the credentials cache to an authenticator.
func NewProvider(credentials common.CacheRepository, auth common.Authenticator, ttlDays int, logger zerolog.Logger) *Provider {
	return &Provider{
		cache:   credentials,
		auth:    auth,
		ttlDays: ttlDays,
		log:     logger,
	}
}

// Authenticator returns the authenticator used for logins and signing.
func (p *Provider) Authenticator() common.Authenticator {
	return p.auth
}

// Credentials returns cached credentials for service or logs in. Concurrent
// callers for the same service share a single login.
func (p *Provider) Credentials(ctx context.Context, service string) (model.Credentials, error) {
	if creds, ok := p.cached(ctx, service); ok {
		p.log.Debug().Str("service", service).Msg("loading creds from cache")
		return creds, nil
	}

	v, err, _ := p.logins.Do(cache.Normalize(service), func() (interface{}, error) {
		// another caller may have finished a login while we waited
		if creds, ok := p.cached(ctx, service); ok {
			return creds, nil
		}
		return p.login(ctx, service)
	})
	if err != nil {
		return model.Credentials{}, err
	}
	return v.(model.Credentials), nil
}

// Login always runs a fresh login for service and caches the result.
func (p *Provider) Login(ctx context.Context, service string) (model.Credentials, error) {
	v, err, _ := p.logins.Do(cache.Normalize(service), func() (interface{}, error) {
		return p.login(ctx, service)
	})
	if err != nil {
		return model.Credentials{}, err
	}
	return v.(model.Credentials), nil
}

// Update stores refreshed credentials, restarting their lifetime.
func (p *Provider) Update(ctx context.Context, service string, creds model.Credentials) error {
	raw, err := json.Marshal(creds)
	if err != nil {
		return fmt.Errorf("failed to encode credentials: %w", err)
	}
	return p.cache.Set(ctx, service, raw, p.ttlDays)
}

// Invalidate forgets the cached credentials for service.
func (p *Provider) Invalidate(ctx context.Context, service string) error {
	_, err := p.cache.Delete(ctx, service)
	return err
}

func (p *Provider) cached(ctx context.Context, service string) (model.Credentials, bool) {
	raw, ok := p.cache.Get(ctx, service)
	if !ok {
		return model.Credentials{}, false
	}
	var creds model.Credentials
	if err := json.Unmarshal(raw, &creds); err != nil {
		p.log.Warn().Err(err).Str("service", service).Msg("ignoring unreadable cached credentials")
		return model.Credentials{}, false
	}
	return creds, true
}

func (p *Provider) login(ctx context.Context, service string) (model.Credentials, error) {
	p.log.Info().Str("service", service).Msg("fetching fresh credentials, prepare to log in via browser")

	creds, err := p.auth.Login(ctx)
	if err != nil {
		return model.Credentials{}, fmt.Errorf("login to %s failed: %w", service, err)
	}
	if err = p.Update(ctx, service, creds); err != nil {
		return model.Credentials{}, err
	}
	return creds, nil
}
