package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/bool64/stats"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
)

// NamespaceName selects one of the two application namespaces.
type NamespaceName string

const (
	// NamespaceData holds decoded API responses keyed by request URL.
	NamespaceData NamespaceName = "data"
	// NamespaceCredentials holds login credentials keyed by service name.
	NamespaceCredentials NamespaceName = "credentials"
)

// Default blob names.
const (
	DefaultDataLocation        = "cache_contents.json"
	DefaultCredentialsLocation = "creds.json"
)

// ErrUnknownNamespace is returned for a NamespaceName other than data or credentials.
var ErrUnknownNamespace = errors.New("unknown cache namespace")

// CachesConfig configures both namespaces. They share Storage, Clock, Logger
// and Stats but never a location.
type CachesConfig struct {
	Storage             Storage
	DataLocation        string
	CredentialsLocation string
	Clock               clockwork.Clock
	Logger              *zerolog.Logger
	Stats               stats.Tracker
}

// Caches owns the data and credentials namespaces.
type Caches struct {
	Data        *Namespace
	Credentials *Namespace
}

// OpenCaches opens both namespaces.
func OpenCaches(cfg CachesConfig) (*Caches, error) {
	if cfg.DataLocation == "" {
		cfg.DataLocation = DefaultDataLocation
	}
	if cfg.CredentialsLocation == "" {
		cfg.CredentialsLocation = DefaultCredentialsLocation
	}
	if sameLocation(cfg.Storage, cfg.DataLocation, cfg.CredentialsLocation) {
		return nil, fmt.Errorf("cache: data and credentials must use distinct locations, both are %q", cfg.DataLocation)
	}

	data, err := Open(Config{
		Name:     string(NamespaceData),
		Location: cfg.DataLocation,
		Storage:  cfg.Storage,
		Clock:    cfg.Clock,
		Logger:   cfg.Logger,
		Stats:    cfg.Stats,
	})
	if err != nil {
		return nil, err
	}

	creds, err := Open(Config{
		Name:     string(NamespaceCredentials),
		Location: cfg.CredentialsLocation,
		Storage:  cfg.Storage,
		Clock:    cfg.Clock,
		Logger:   cfg.Logger,
		Stats:    cfg.Stats,
	})
	if err != nil {
		return nil, err
	}

	return &Caches{Data: data, Credentials: creds}, nil
}

func sameLocation(s Storage, a, b string) bool {
	if fs, ok := s.(*FileStorage); ok {
		return fs.Path(a) == fs.Path(b)
	}
	return a == b
}

// Namespace returns the namespace for name.
func (c *Caches) Namespace(name NamespaceName) (*Namespace, error) {
	switch name {
	case NamespaceData:
		return c.Data, nil
	case NamespaceCredentials:
		return c.Credentials, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownNamespace, name)
	}
}

// Get reads identifier from the named namespace.
func (c *Caches) Get(ctx context.Context, name NamespaceName, identifier string) (json.RawMessage, bool, error) {
	ns, err := c.Namespace(name)
	if err != nil {
		return nil, false, err
	}
	v, ok := ns.Get(ctx, identifier)
	return v, ok, nil
}

// Set writes identifier into the named namespace.
func (c *Caches) Set(ctx context.Context, name NamespaceName, identifier string, value json.RawMessage, ttlDays int) error {
	ns, err := c.Namespace(name)
	if err != nil {
		return err
	}
	return ns.Set(ctx, identifier, value, ttlDays)
}
