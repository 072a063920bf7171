package tumblr

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/bool64/ctxd"
	"github.com/rs/zerolog"

	"github.com/guarzo/tumblrapi/common"
	"github.com/guarzo/tumblrapi/common/model"
	"github.com/guarzo/tumblrapi/modules/cache"
)

// DefaultTTLDays is how long a fetched response is served from the data cache.
const DefaultTTLDays = 7

// ErrInvalidJSON is returned when a response body is not valid JSON.
var ErrInvalidJSON = errors.New("response is not valid JSON")

var _ common.CacheRepository = (*cache.Namespace)(nil)

// Client fetches authenticated URLs through the data cache.
type Client interface {
	// GetJSON decodes the response for url into out.
	GetJSON(ctx context.Context, url, service string, out interface{}) error
	// GetRaw returns the response body for url.
	GetRaw(ctx context.Context, url, service string) (json.RawMessage, error)
}

// CredentialSource is the credentials side of a fetch: *auth.Provider.
type CredentialSource interface {
	Credentials(ctx context.Context, service string) (model.Credentials, error)
	Update(ctx context.Context, service string, creds model.Credentials) error
	Invalidate(ctx context.Context, service string) error
	Authenticator() common.Authenticator
}

// HTTPClientFactory wraps a signed client with User-Agent and retry handling.
type HTTPClientFactory func(userAgent string, signed *http.Client, logger zerolog.Logger) common.HttpClient

// ClientConfig configures NewClient.
type ClientConfig struct {
	Data        common.CacheRepository
	Credentials CredentialSource
	UserAgent   string

	// TTLDays is the lifetime of cached responses. Zero keeps a response for
	// the rest of the day; a negative value selects DefaultTTLDays.
	TTLDays int

	Logger zerolog.Logger

	// NewHTTPClient defaults to common.NewHttpClient.
	NewHTTPClient HTTPClientFactory
}

type client struct {
	data      common.CacheRepository
	creds     CredentialSource
	userAgent string
	ttlDays   int
	log       zerolog.Logger
	newHTTP   HTTPClientFactory
}

// NewClient creates a Client.
func NewClient(cfg ClientConfig) Client {
	c := &client{
		data:      cfg.Data,
		creds:     cfg.Credentials,
		userAgent: cfg.UserAgent,
		ttlDays:   cfg.TTLDays,
		log:       cfg.Logger,
		newHTTP:   cfg.NewHTTPClient,
	}
	if c.ttlDays < 0 {
		c.ttlDays = DefaultTTLDays
	}
	if c.newHTTP == nil {
		c.newHTTP = common.NewHttpClient
	}
	return c
}

func (c *client) GetJSON(ctx context.Context, url, service string, out interface{}) error {
	_, err := c.get(ctx, url, service, func(body []byte) error {
		return model.UnmarshalJSON(body, out)
	})
	return err
}

func (c *client) GetRaw(ctx context.Context, url, service string) (json.RawMessage, error) {
	return c.get(ctx, url, service, func(body []byte) error {
		if !json.Valid(body) {
			return ErrInvalidJSON
		}
		return nil
	})
}

// get serves url from the data cache or fetches it. Only bodies accepted by
// decode are stored.
func (c *client) get(ctx context.Context, url, service string, decode func([]byte) error) (json.RawMessage, error) {
	if cached, ok := c.data.Get(ctx, url); ok {
		if err := decode(cached); err == nil {
			c.log.Debug().Str("url", url).Msg("loading data from cache")
			return cached, nil
		}
		c.log.Warn().Str("url", url).Msg("cached response does not decode, fetching again")
	}

	c.log.Debug().Str("url", url).Msg("fetching fresh data")
	body, err := c.fetch(ctx, url, service)
	if err != nil {
		return nil, err
	}
	if err = decode(body); err != nil {
		return nil, ctxd.WrapError(ctx, err, "failed to decode response", "url", url)
	}
	if err = c.data.Set(ctx, url, body, c.ttlDays); err != nil {
		return nil, ctxd.WrapError(ctx, err, "failed to store response", "url", url)
	}
	return body, nil
}

func (c *client) fetch(ctx context.Context, url, service string) ([]byte, error) {
	creds, err := c.creds.Credentials(ctx, service)
	if err != nil {
		return nil, ctxd.WrapError(ctx, err, "failed to obtain credentials", "service", service)
	}

	body, err := c.request(ctx, url, creds)

	var httpErr *common.HTTPError
	if errors.As(err, &httpErr) && httpErr.StatusCode == http.StatusUnauthorized {
		body, err = c.reauthorize(ctx, url, service, creds, err)
	}
	if err != nil {
		return nil, ctxd.WrapError(ctx, err, "request failed", "url", url, "service", service)
	}
	return body, nil
}

// reauthorize handles a 401. Refreshable credentials are refreshed once and
// the request retried; anything else is dropped from the credentials cache so
// the next call logs in again.
func (c *client) reauthorize(ctx context.Context, url, service string, creds model.Credentials, cause error) ([]byte, error) {
	refresher, ok := c.creds.Authenticator().(common.TokenRefresher)
	if !ok || !creds.IsOAuth2() {
		c.log.Warn().Str("service", service).Msg("credentials rejected, discarding them")
		if err := c.creds.Invalidate(ctx, service); err != nil {
			return nil, fmt.Errorf("%w (discarding credentials: %v)", cause, err)
		}
		return nil, cause
	}

	c.log.Info().Str("service", service).Msg("access token rejected, refreshing")
	refreshed, err := refresher.RefreshToken(ctx, creds)
	if err != nil {
		if invErr := c.creds.Invalidate(ctx, service); invErr != nil {
			c.log.Warn().Err(invErr).Str("service", service).Msg("failed to discard credentials")
		}
		return nil, fmt.Errorf("%w (refresh: %v)", cause, err)
	}
	if err = c.creds.Update(ctx, service, refreshed); err != nil {
		return nil, err
	}
	return c.request(ctx, url, refreshed)
}

// request performs one signed GET with retry and requires a 200.
func (c *client) request(ctx context.Context, url string, creds model.Credentials) ([]byte, error) {
	signed := c.creds.Authenticator().Client(ctx, creds)
	hc := c.newHTTP(c.userAgent, signed, c.log)

	return hc.RetryWithExponentialBackoff(ctx, func() ([]byte, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("Accept", "application/json")

		resp, err := hc.Do(req)
		if err != nil {
			return nil, fmt.Errorf("failed to execute request: %w", err)
		}
		defer resp.Body.Close()

		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("failed to read response body: %w", err)
		}
		if resp.StatusCode != http.StatusOK {
			return nil, common.NewHTTPError(resp, data)
		}
		return data, nil
	})
}
