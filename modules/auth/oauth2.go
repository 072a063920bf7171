package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"
	"golang.org/x/oauth2"

	"github.com/guarzo/tumblrapi/common"
	"github.com/guarzo/tumblrapi/common/model"
)

// Tumblr OAuth2 endpoints.
const (
	TumblrOAuth2AuthURL  = "https://www.tumblr.com/oauth2/authorize"
	TumblrOAuth2TokenURL = "https://api.tumblr.com/v2/oauth2/token"
)

// DefaultOAuth2Scopes requests read access and a refresh token.
var DefaultOAuth2Scopes = []string{"basic", "offline_access"}

// OAuth2Config configures the authorization code flow.
type OAuth2Config struct {
	ClientKey    string
	ClientSecret string
	AuthURL      string
	TokenURL     string
	RedirectURL  string
	Scopes       []string
}

var (
	_ common.Authenticator  = (*OAuth2Authenticator)(nil)
	_ common.TokenRefresher = (*OAuth2Authenticator)(nil)
)

// OAuth2Authenticator logs in with the authorization code grant and sends
// bearer tokens.
type OAuth2Authenticator struct {
	config *oauth2.Config
	prompt Prompter
	log    zerolog.Logger
}

// NewOAuth2Authenticator fills missing endpoints and scopes with Tumblr's.
func NewOAuth2Authenticator(cfg OAuth2Config, prompt Prompter, logger zerolog.Logger) *OAuth2Authenticator {
	scopes := cfg.Scopes
	if len(scopes) == 0 {
		scopes = DefaultOAuth2Scopes
	}
	return &OAuth2Authenticator{
		config: &oauth2.Config{
			ClientID:     cfg.ClientKey,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Scopes:       scopes,
			Endpoint: oauth2.Endpoint{
				AuthURL:  valueOr(cfg.AuthURL, TumblrOAuth2AuthURL),
				TokenURL: valueOr(cfg.TokenURL, TumblrOAuth2TokenURL),
			},
		},
		prompt: prompt,
		log:    logger,
	}
}

// Login sends the user to the consent page with a fresh state value, reads
// the redirect URL back and exchanges the code for a token.
func (a *OAuth2Authenticator) Login(ctx context.Context) (model.Credentials, error) {
	if a.config.ClientID == "" || a.config.ClientSecret == "" {
		return model.Credentials{}, ErrMissingClientCredentials
	}

	state := ulid.Make().String()
	a.prompt.Open(a.config.AuthCodeURL(state))

	answer, err := a.prompt.Ask("Paste the full redirect URL here:  ")
	if err != nil {
		return model.Credentials{}, err
	}
	code, err := parseOAuth2Redirect(answer, state)
	if err != nil {
		return model.Credentials{}, err
	}

	token, err := a.config.Exchange(ctx, code)
	if err != nil {
		return model.Credentials{}, fmt.Errorf("failed to exchange authorization code: %w", err)
	}
	a.log.Info().Msg("oauth2 login complete")

	return model.Credentials{
		ClientKey:    a.config.ClientID,
		ClientSecret: a.config.ClientSecret,
		Token:        token,
	}, nil
}

func parseOAuth2Redirect(raw, state string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("invalid redirect url: %w", err)
	}
	q := u.Query()
	if e := q.Get("error"); e != "" {
		return "", fmt.Errorf("authorization denied: %s", e)
	}
	if q.Get("state") != state {
		return "", errors.New("redirect url state does not match")
	}
	code := q.Get("code")
	if code == "" {
		return "", errors.New("redirect url has no code")
	}
	return code, nil
}

// Client sends creds.Token as a bearer token, refreshing it transparently when
// it has expired and a refresh token is available.
func (a *OAuth2Authenticator) Client(ctx context.Context, creds model.Credentials) *http.Client {
	return a.config.Client(ctx, creds.Token)
}

// RefreshToken trades the refresh token for a new access token.
func (a *OAuth2Authenticator) RefreshToken(ctx context.Context, creds model.Credentials) (model.Credentials, error) {
	if creds.Token == nil || creds.Token.RefreshToken == "" {
		return model.Credentials{}, ErrNotRefreshable
	}

	src := a.config.TokenSource(ctx, &oauth2.Token{RefreshToken: creds.Token.RefreshToken})
	token, err := src.Token()
	if err != nil {
		return model.Credentials{}, fmt.Errorf("token refresh failed: %w", err)
	}
	if token.RefreshToken == "" {
		token.RefreshToken = creds.Token.RefreshToken
	}

	creds.Token = token
	return creds, nil
}
