package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"github.com/dghubble/oauth1"
	"github.com/rs/zerolog"

	"github.com/guarzo/tumblrapi/common"
	"github.com/guarzo/tumblrapi/common/model"
)

// Tumblr OAuth1 endpoints.
const (
	TumblrRequestTokenURL = "https://www.tumblr.com/oauth/request_token"
	TumblrAuthorizeURL    = "https://www.tumblr.com/oauth/authorize"
	TumblrAccessTokenURL  = "https://www.tumblr.com/oauth/access_token"
)

// OAuth1Config configures the three-legged OAuth1 flow.
type OAuth1Config struct {
	ClientKey       string
	ClientSecret    string
	RequestTokenURL string
	AuthorizeURL    string
	AccessTokenURL  string
	CallbackURL     string

	// VerifierOnly asks the user for the verifier code instead of the full
	// redirect URL.
	VerifierOnly bool
}

var _ common.Authenticator = (*OAuth1Authenticator)(nil)

// OAuth1Authenticator logs in with OAuth1 and signs requests with HMAC-SHA1.
type OAuth1Authenticator struct {
	config       *oauth1.Config
	verifierOnly bool
	prompt       Prompter
	log          zerolog.Logger
}

// NewOAuth1Authenticator fills missing endpoints with Tumblr's.
func NewOAuth1Authenticator(cfg OAuth1Config, prompt Prompter, logger zerolog.Logger) *OAuth1Authenticator {
	endpoint := oauth1.Endpoint{
		RequestTokenURL: valueOr(cfg.RequestTokenURL, TumblrRequestTokenURL),
		AuthorizeURL:    valueOr(cfg.AuthorizeURL, TumblrAuthorizeURL),
		AccessTokenURL:  valueOr(cfg.AccessTokenURL, TumblrAccessTokenURL),
	}
	return &OAuth1Authenticator{
		config: &oauth1.Config{
			ConsumerKey:    cfg.ClientKey,
			ConsumerSecret: cfg.ClientSecret,
			CallbackURL:    cfg.CallbackURL,
			Endpoint:       endpoint,
		},
		verifierOnly: cfg.VerifierOnly,
		prompt:       prompt,
		log:          logger,
	}
}

// Login fetches a request token, sends the user to the authorize page, reads
// the verifier back and exchanges everything for an access token.
func (a *OAuth1Authenticator) Login(ctx context.Context) (model.Credentials, error) {
	if a.config.ConsumerKey == "" || a.config.ConsumerSecret == "" {
		return model.Credentials{}, ErrMissingClientCredentials
	}

	config := a.boundTo(ctx)

	requestToken, requestSecret, err := config.RequestToken()
	if err != nil {
		return model.Credentials{}, fmt.Errorf("failed to fetch request token: %w", err)
	}

	authURL, err := config.AuthorizationURL(requestToken)
	if err != nil {
		return model.Credentials{}, fmt.Errorf("failed to build authorization url: %w", err)
	}
	if err = ctx.Err(); err != nil {
		return model.Credentials{}, err
	}
	a.prompt.Open(authURL.String())

	verifier, err := a.readVerifier(requestToken)
	if err != nil {
		return model.Credentials{}, err
	}

	accessToken, accessSecret, err := config.AccessToken(requestToken, requestSecret, verifier)
	if err != nil {
		return model.Credentials{}, fmt.Errorf("failed to fetch access token: %w", err)
	}
	a.log.Info().Msg("oauth1 login complete")

	return model.Credentials{
		ClientKey:           a.config.ConsumerKey,
		ClientSecret:        a.config.ConsumerSecret,
		ResourceOwnerKey:    accessToken,
		ResourceOwnerSecret: accessSecret,
		Verifier:            verifier,
	}, nil
}

// boundTo returns a copy of the config whose token requests are canceled
// with ctx. A client stored under oauth1.HTTPClient supplies the transport.
func (a *OAuth1Authenticator) boundTo(ctx context.Context) *oauth1.Config {
	base := http.DefaultTransport
	if hc, ok := ctx.Value(oauth1.HTTPClient).(*http.Client); ok && hc.Transport != nil {
		base = hc.Transport
	}
	config := *a.config
	config.HTTPClient = &http.Client{Transport: contextTransport{ctx: ctx, base: base}}
	return &config
}

type contextTransport struct {
	ctx  context.Context
	base http.RoundTripper
}

func (t contextTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	return t.base.RoundTrip(req.WithContext(t.ctx))
}

func (a *OAuth1Authenticator) readVerifier(requestToken string) (string, error) {
	if a.verifierOnly {
		return a.prompt.Ask("Please input the verifier:  ")
	}

	answer, err := a.prompt.Ask("Paste the full redirect URL here:  ")
	if err != nil {
		return "", err
	}
	return parseOAuth1Redirect(answer, requestToken)
}

// parseOAuth1Redirect extracts oauth_verifier from the URL the provider
// redirected to, checking that it belongs to our request token.
func parseOAuth1Redirect(raw, requestToken string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("invalid redirect url: %w", err)
	}
	q := u.Query()
	if token := q.Get("oauth_token"); token != "" && token != requestToken {
		return "", errors.New("redirect url belongs to a different request token")
	}
	verifier := q.Get("oauth_verifier")
	if verifier == "" {
		return "", errors.New("redirect url has no oauth_verifier")
	}
	return verifier, nil
}

// Client signs every request with creds.
func (a *OAuth1Authenticator) Client(ctx context.Context, creds model.Credentials) *http.Client {
	cfg := oauth1.NewConfig(creds.ClientKey, creds.ClientSecret)
	return cfg.Client(ctx, oauth1.NewToken(creds.ResourceOwnerKey, creds.ResourceOwnerSecret))
}

func valueOr(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}
