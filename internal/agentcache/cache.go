package agentcache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/easeaico/marketing-analyst/internal/dataframe"
	"github.com/easeaico/marketing-analyst/internal/engine"
	"github.com/easeaico/marketing-analyst/internal/memory"
	"github.com/easeaico/marketing-analyst/internal/metrics"
	"github.com/easeaico/marketing-analyst/internal/tabular"
)

// buildTimeout bounds a shared build once it no longer follows its callers.
const buildTimeout = 2 * time.Minute

// Build kinds reported to metrics.
const (
	buildFresh      = "fresh"
	buildRehydrated = "rehydrated"
)

// Config holds the dependencies of a Cache. Durable may be nil.
type Config struct {
	Source  tabular.Source
	Memory  *memory.Store
	Builder engine.Builder
	Durable Durable
	Logger  zerolog.Logger
}

// ResolveOptions tune a single Resolve call.
type ResolveOptions struct {
	// ForceNew skips both tiers and rebuilds from the tabular store.
	ForceNew bool
}

// Cache resolves (client, platform) keys to ready engines. It is safe for
// concurrent use; concurrent resolutions of the same key, date range and
// mode share a single build.
type Cache struct {
	source  tabular.Source
	memory  *memory.Store
	builder engine.Builder
	durable Durable
	logger  zerolog.Logger
	now     func() time.Time

	mu      sync.RWMutex
	entries map[Key]*Entry
	group   singleflight.Group
}

// New creates an empty cache.
func New(cfg Config) *Cache {
	return &Cache{
		source:  cfg.Source,
		memory:  cfg.Memory,
		builder: cfg.Builder,
		durable: cfg.Durable,
		logger:  cfg.Logger.With().Str("component", "agentcache").Logger(),
		now:     time.Now,
		entries: make(map[Key]*Entry),
	}
}

// Resolve returns the analyst for key. Lookup order is process memory, then
// the durable tier, then a fresh build from the tabular store. The date
// range only applies to fresh builds: an entry cached for the key is
// returned whatever range it was built with.
func (c *Cache) Resolve(ctx context.Context, key Key, r dataframe.DateRange, opts ResolveOptions) (*Entry, error) {
	if err := key.validate(); err != nil {
		return nil, err
	}

	if !opts.ForceNew {
		if e := c.lookup(key); e != nil {
			metrics.RecordCacheLookup(metrics.TierMemory, metrics.OutcomeHit)
			c.logger.Debug().Str("key", key.String()).Msg("memory cache hit")
			return e, nil
		}
		metrics.RecordCacheLookup(metrics.TierMemory, metrics.OutcomeMiss)
	}

	// The shared build outlives any single caller; each caller waits on its
	// own context.
	flight := fmt.Sprintf("%s|%s|%s|%t", key, r.Start.Format(time.RFC3339), r.End.Format(time.RFC3339), opts.ForceNew)
	ch := c.group.DoChan(flight, func() (any, error) {
		bctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), buildTimeout)
		defer cancel()

		if !opts.ForceNew {
			if e := c.lookup(key); e != nil {
				return e, nil
			}
			if e := c.rehydrate(bctx, key); e != nil {
				return e, nil
			}
		}
		return c.build(bctx, key, r)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*Entry), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Len returns the number of entries held in memory.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Forget drops key from process memory. The durable tier is untouched.
func (c *Cache) Forget(key Key) {
	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()
}

func (c *Cache) lookup(key Key) *Entry {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.entries[key]
}

func (c *Cache) put(e *Entry) {
	c.mu.Lock()
	c.entries[e.Key] = e
	c.mu.Unlock()
}

// rehydrate rebuilds an entry from the durable tier. Any failure is logged
// and reported as a miss.
func (c *Cache) rehydrate(ctx context.Context, key Key) *Entry {
	if c.durable == nil {
		return nil
	}
	log := c.logger.With().Str("key", key.String()).Logger()

	p, err := c.durable.Load(ctx, key)
	if err == nil && p != nil {
		err = p.check(key)
	}
	switch {
	case err != nil:
		metrics.RecordDurableError("load")
		metrics.RecordCacheLookup(metrics.TierDurable, metrics.OutcomeError)
		log.Warn().Err(err).Msg("durable cache unavailable, treating as miss")
		return nil
	case p == nil:
		metrics.RecordCacheLookup(metrics.TierDurable, metrics.OutcomeMiss)
		return nil
	}
	metrics.RecordCacheLookup(metrics.TierDurable, metrics.OutcomeHit)

	live, err := c.bind(ctx, key, p.Frame)
	if err != nil {
		log.Warn().Err(err).Msg("failed to rebuild cached analyst, treating as miss")
		return nil
	}
	metrics.RecordAgentBuild(buildRehydrated)

	e := &Entry{Key: key, Live: live, Persistable: *p}
	c.put(e)
	log.Info().Int("rows", p.Metadata.RowCount).Msg("analyst restored from durable cache")
	return e
}

// build fetches the client rows and creates a new entry in both tiers.
func (c *Cache) build(ctx context.Context, key Key, r dataframe.DateRange) (*Entry, error) {
	log := c.logger.With().Str("key", key.String()).Logger()

	frame, err := c.source.ClientData(ctx, key.ClientID, key.Platform, r)
	if err != nil {
		return nil, fmt.Errorf("failed to load data for %s: %w", key, err)
	}

	if err := c.memory.WriteSummary(ctx, key.ClientID, key.Platform, frame); err != nil {
		log.Warn().Err(err).Msg("failed to write dataset summary")
	}

	live, err := c.bind(ctx, key, frame)
	if err != nil {
		return nil, err
	}
	metrics.RecordAgentBuild(buildFresh)

	e := &Entry{
		Key:  key,
		Live: live,
		Persistable: Persistable{
			Frame: frame,
			Metadata: Metadata{
				ClientID:    key.ClientID,
				Platform:    string(key.Platform),
				RowCount:    frame.RowCount(),
				ColumnCount: frame.ColumnCount(),
			},
			CreatedAt: c.now().UTC(),
		},
	}
	c.put(e)

	if c.durable != nil {
		if err := c.durable.Save(ctx, key, e.Persistable); err != nil {
			metrics.RecordDurableError("save")
			log.Warn().Err(err).Msg("failed to persist analyst")
		}
	}

	log.Info().Int("rows", frame.RowCount()).Msg("analyst built")
	return e, nil
}

// bind creates the retriever and the engine for a frame.
func (c *Cache) bind(ctx context.Context, key Key, frame *dataframe.Frame) (Live, error) {
	retriever, err := c.memory.Retriever(ctx, key.ClientID)
	if err != nil {
		return Live{}, fmt.Errorf("failed to create retriever: %w", err)
	}

	eng, err := c.builder.Build(ctx, engine.Spec{
		ClientID:    key.ClientID,
		Platform:    key.Platform,
		Instruction: key.Platform.Instruction(),
		Frame:       frame,
		Recaller:    retriever,
	})
	if err != nil {
		return Live{}, fmt.Errorf("failed to build engine: %w", err)
	}
	return Live{Engine: eng, Retriever: retriever}, nil
}
