package common

import (
	"context"
	"encoding/json"
)

// CacheRepository is the expiring cache the API clients read through.
// Identifiers are case-insensitive and lifetimes are whole days.
//
// modules/cache.Namespace is the file-backed implementation.
type CacheRepository interface {
	Get(ctx context.Context, identifier string) (value json.RawMessage, found bool)
	Set(ctx context.Context, identifier string, value json.RawMessage, ttlDays int) error
	Delete(ctx context.Context, identifier string) (bool, error)
}
