package common

import (
	"context"
	"net/http"

	"github.com/guarzo/tumblrapi/common/model"
)

// Authenticator runs an interactive login and signs requests with the result.
type Authenticator interface {
	// Login performs the full handshake and returns fresh credentials.
	Login(ctx context.Context) (model.Credentials, error)

	// Client returns an *http.Client whose requests are signed with creds.
	Client(ctx context.Context, creds model.Credentials) *http.Client
}

// TokenRefresher is implemented by authenticators that can renew credentials
// without user interaction (OAuth2 refresh tokens).
type TokenRefresher interface {
	RefreshToken(ctx context.Context, creds model.Credentials) (model.Credentials, error)
}
