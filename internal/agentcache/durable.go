package agentcache

import "context"

// Durable is the persistent tier. Load returns nil without error when the
// key is not stored.
type Durable interface {
	Migrate(ctx context.Context) error
	Load(ctx context.Context, key Key) (*Persistable, error)
	Save(ctx context.Context, key Key, p Persistable) error
}
