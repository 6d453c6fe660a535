package storage

import "context"

// LocalStore abstracts the durable key-value store scoped to one client
// installation. Implementations must persist values across restarts.
type LocalStore interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
	Close() error
}
