package cache

import (
	"fmt"
	"sync"
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/Konsultn-Engineering/typeaccessor/accessor"
)

const DefaultSize = 1024

// Cache memoizes TypeAccessors by descriptor. Concurrent first use of a
// descriptor runs synthesis once; the other callers wait for that result.
// Lazily built accessors live in a bounded LRU, precompiled ones are kept
// until Unprecompile.
type Cache struct {
	// Configuration
	builder *accessor.Builder
	logger  zerolog.Logger
	size    int
	onEvict func(accessor.Descriptor, *accessor.TypeAccessor)

	entries       *lru.Cache[accessor.Descriptor, *accessor.TypeAccessor]
	precompiled   map[accessor.Descriptor]*accessor.TypeAccessor
	precompiledMu sync.RWMutex

	flight singleflight.Group
	builds atomic.Int64
}

type Option func(*Cache)

// WithSize sets the LRU capacity for lazily built accessors
func WithSize(size int) Option {
	return func(c *Cache) { c.size = size }
}

// WithBuilder sets the builder used for synthesis
func WithBuilder(b *accessor.Builder) Option {
	return func(c *Cache) { c.builder = b }
}

// WithLogger sets the logger for cache events
func WithLogger(logger zerolog.Logger) Option {
	return func(c *Cache) { c.logger = logger }
}

// WithEvictionCallback sets a callback run whenever an accessor leaves the
// LRU: eviction, Remove, Purge, or promotion by Precompile.
func WithEvictionCallback(onEvict func(accessor.Descriptor, *accessor.TypeAccessor)) Option {
	return func(c *Cache) { c.onEvict = onEvict }
}

// New creates an accessor cache.
func New(options ...Option) (*Cache, error) {
	c := &Cache{
		logger:      zerolog.Nop(),
		size:        DefaultSize,
		precompiled: make(map[accessor.Descriptor]*accessor.TypeAccessor, 64),
	}

	for _, opt := range options {
		opt(c)
	}

	if c.builder == nil {
		c.builder = accessor.NewBuilder(accessor.WithLogger(c.logger))
	}

	entries, err := lru.NewWithEvict(c.size, func(desc accessor.Descriptor, ta *accessor.TypeAccessor) {
		c.logger.Debug().Stringer("descriptor", desc).Msg("evicted type accessor")
		if c.onEvict != nil {
			c.onEvict(desc, ta)
		}
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create accessor cache: %w", err)
	}
	c.entries = entries

	return c, nil
}

// Get returns the accessor for desc, synthesizing it on first use.
// Configuration errors are returned to every waiting caller and are not
// cached.
func (c *Cache) Get(desc accessor.Descriptor) (*accessor.TypeAccessor, error) {
	desc = accessor.NewDescriptor(desc.Type, desc.OriginalType)

	if ta, ok := c.lookup(desc); ok {
		return ta, nil
	}

	return c.build(desc, func(ta *accessor.TypeAccessor) *accessor.TypeAccessor {
		c.entries.Add(desc, ta)
		return ta
	})
}

// Precompile synthesizes the accessor for desc, or promotes an already
// cached one, and pins it so it is never evicted.
func (c *Cache) Precompile(desc accessor.Descriptor) (*accessor.TypeAccessor, error) {
	desc = accessor.NewDescriptor(desc.Type, desc.OriginalType)

	c.precompiledMu.RLock()
	ta, ok := c.precompiled[desc]
	c.precompiledMu.RUnlock()
	if ok {
		return ta, nil
	}

	if ta, ok := c.entries.Peek(desc); ok {
		return c.pin(desc, ta), nil
	}

	ta, err := c.build(desc, func(ta *accessor.TypeAccessor) *accessor.TypeAccessor {
		return c.pin(desc, ta)
	})
	if err != nil {
		return nil, err
	}
	// The flight may have been started by Get, which stores into the LRU.
	return c.pin(desc, ta), nil
}

// Unprecompile drops the pinned accessor for desc, if any.
func (c *Cache) Unprecompile(desc accessor.Descriptor) {
	desc = accessor.NewDescriptor(desc.Type, desc.OriginalType)

	c.precompiledMu.Lock()
	defer c.precompiledMu.Unlock()
	delete(c.precompiled, desc)
}

// Remove drops the lazily built accessor for desc, if any.
func (c *Cache) Remove(desc accessor.Descriptor) {
	c.entries.Remove(accessor.NewDescriptor(desc.Type, desc.OriginalType))
}

// Purge drops every lazily built accessor. Precompiled accessors stay.
func (c *Cache) Purge() {
	c.entries.Purge()
}

// Len returns the number of cached accessors, precompiled ones included.
func (c *Cache) Len() int {
	return c.entries.Len() + c.PrecompiledCount()
}

// PrecompiledCount returns the number of pinned accessors.
func (c *Cache) PrecompiledCount() int {
	c.precompiledMu.RLock()
	defer c.precompiledMu.RUnlock()
	return len(c.precompiled)
}

// Builds returns how many accessors this cache has synthesized.
func (c *Cache) Builds() int64 {
	return c.builds.Load()
}

func (c *Cache) lookup(desc accessor.Descriptor) (*accessor.TypeAccessor, bool) {
	c.precompiledMu.RLock()
	ta, ok := c.precompiled[desc]
	c.precompiledMu.RUnlock()
	if ok {
		return ta, true
	}
	return c.entries.Get(desc)
}

// pin moves ta into the precompiled set and returns the pinned accessor,
// which is the earlier one if desc was already pinned.
func (c *Cache) pin(desc accessor.Descriptor, ta *accessor.TypeAccessor) *accessor.TypeAccessor {
	c.precompiledMu.Lock()
	existing, ok := c.precompiled[desc]
	if !ok {
		c.precompiled[desc] = ta
	}
	c.precompiledMu.Unlock()

	if ok {
		return existing
	}

	c.entries.Remove(desc)
	c.logger.Debug().Stringer("descriptor", desc).Msg("precompiled type accessor")
	return ta
}

// build runs synthesis for desc at most once across concurrent callers and
// hands a fresh result to store before any waiter sees it.
func (c *Cache) build(desc accessor.Descriptor, store func(*accessor.TypeAccessor) *accessor.TypeAccessor) (*accessor.TypeAccessor, error) {
	v, err, shared := c.flight.Do(flightKey(desc), func() (any, error) {
		// Double-check after winning the flight
		if ta, ok := c.lookup(desc); ok {
			return ta, nil
		}

		c.logger.Debug().Stringer("descriptor", desc).Msg("type accessor cache miss")

		ta, err := c.builder.Build(desc)
		if err != nil {
			return nil, err
		}
		c.builds.Add(1)
		return store(ta), nil
	})
	if err != nil {
		return nil, err
	}

	if shared {
		c.logger.Trace().Stringer("descriptor", desc).Msg("joined in-flight synthesis")
	}
	return v.(*accessor.TypeAccessor), nil
}

// flightKey identifies a descriptor by the identity of its types.
func flightKey(desc accessor.Descriptor) string {
	return fmt.Sprintf("%p|%p", desc.Type, desc.OriginalType)
}
