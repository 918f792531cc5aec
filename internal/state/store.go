package state

import "context"

// Store is the minimal key/value contract the bot persists through:
// allocation locks and signing nonces survive restarts via it.
type Store interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
	Close() error
}
