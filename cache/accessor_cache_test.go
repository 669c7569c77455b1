package cache

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Konsultn-Engineering/typeaccessor/accessor"
	"github.com/Konsultn-Engineering/typeaccessor/schema"
)

// =========================================================================
// Test Data Structures
// =========================================================================

type User struct {
	ID   int64
	Name string
}

type Order struct {
	ID    int64
	Total float64
}

type Invoice struct {
	Number string
}

type AuditedUser struct {
	User
	Audit string
}

func newTestCache(t *testing.T, options ...Option) *Cache {
	t.Helper()
	c, err := New(options...)
	require.NoError(t, err)
	return c
}

// =========================================================================
// Lookup Tests
// =========================================================================

func TestGetReturnsSameAccessor(t *testing.T) {
	c := newTestCache(t)

	first, err := c.Get(accessor.Describe[User]())
	require.NoError(t, err)
	second, err := c.Get(accessor.Describe[*User]())
	require.NoError(t, err)

	assert.Same(t, first, second)
	assert.Equal(t, int64(1), c.Builds())
	assert.Equal(t, 1, c.Len())
}

func TestDecoratedDescriptorIsDistinct(t *testing.T) {
	c := newTestCache(t)

	plain, err := c.Get(accessor.Describe[AuditedUser]())
	require.NoError(t, err)
	decorated, err := c.Get(accessor.DescribeDecorated[AuditedUser, User]())
	require.NoError(t, err)

	assert.NotSame(t, plain, decorated)
	assert.Equal(t, int64(2), c.Builds())
	assert.Equal(t, accessor.DescribeDecorated[AuditedUser, User]().OriginalType, decorated.OriginalType())
}

func TestConcurrentFirstUse(t *testing.T) {
	c := newTestCache(t)
	desc := accessor.Describe[Order]()

	const workers = 64
	var (
		start   sync.WaitGroup
		done    sync.WaitGroup
		results [workers]*accessor.TypeAccessor
		errs    [workers]error
	)
	start.Add(1)
	done.Add(workers)

	for i := 0; i < workers; i++ {
		go func(i int) {
			defer done.Done()
			start.Wait()
			results[i], errs[i] = c.Get(desc)
		}(i)
	}

	start.Done()
	done.Wait()

	for i := 0; i < workers; i++ {
		require.NoError(t, errs[i])
		assert.Same(t, results[0], results[i])
	}
	assert.Equal(t, int64(1), c.Builds())
}

func TestConfigErrorsAreNotCached(t *testing.T) {
	builder := accessor.NewBuilder(accessor.WithSchema(schema.New(schema.WithZeroValueConstructors(false))))
	c := newTestCache(t, WithBuilder(builder))

	for range 2 {
		ta, err := c.Get(accessor.Describe[Invoice]())
		assert.Nil(t, ta)

		var cfgErr *accessor.ConfigError
		require.True(t, errors.As(err, &cfgErr))
		assert.ErrorIs(t, err, accessor.ErrNoConstructor)
	}

	assert.Equal(t, int64(0), c.Builds())
	assert.Equal(t, 0, c.Len())

	// A later registration takes effect because nothing was cached
	schema.RegisterConstructor(func() *Invoice { return &Invoice{Number: "INV-1"} })
	t.Cleanup(func() { schema.UnregisterConstructors(accessor.Describe[Invoice]().Type) })

	ta, err := c.Get(accessor.Describe[Invoice]())
	require.NoError(t, err)
	assert.Equal(t, "INV-1", ta.CreateInstance().(*Invoice).Number)
}

func TestInvalidTypeError(t *testing.T) {
	c := newTestCache(t)

	_, err := c.Get(accessor.Describe[int]())
	assert.ErrorIs(t, err, accessor.ErrInvalidType)
	assert.Equal(t, 0, c.Len())
}

// =========================================================================
// Precompile Tests
// =========================================================================

func TestPrecompile(t *testing.T) {
	t.Run("SurvivesPurge", func(t *testing.T) {
		c := newTestCache(t)

		pinned, err := c.Precompile(accessor.Describe[User]())
		require.NoError(t, err)
		assert.Equal(t, 1, c.PrecompiledCount())

		c.Purge()
		got, err := c.Get(accessor.Describe[User]())
		require.NoError(t, err)
		assert.Same(t, pinned, got)
		assert.Equal(t, int64(1), c.Builds())
	})

	t.Run("PromotesCachedAccessor", func(t *testing.T) {
		var evicted []accessor.Descriptor
		c := newTestCache(t, WithEvictionCallback(func(desc accessor.Descriptor, _ *accessor.TypeAccessor) {
			evicted = append(evicted, desc)
		}))

		lazy, err := c.Get(accessor.Describe[Order]())
		require.NoError(t, err)

		pinned, err := c.Precompile(accessor.Describe[Order]())
		require.NoError(t, err)
		assert.Same(t, lazy, pinned)
		assert.Equal(t, 1, c.Len())
		assert.Equal(t, 1, c.PrecompiledCount())
		assert.Equal(t, []accessor.Descriptor{accessor.Describe[Order]()}, evicted)
	})

	t.Run("Idempotent", func(t *testing.T) {
		c := newTestCache(t)

		first, err := c.Precompile(accessor.Describe[User]())
		require.NoError(t, err)
		second, err := c.Precompile(accessor.Describe[User]())
		require.NoError(t, err)
		assert.Same(t, first, second)
		assert.Equal(t, int64(1), c.Builds())
	})

	t.Run("Unprecompile", func(t *testing.T) {
		c := newTestCache(t)

		pinned, err := c.Precompile(accessor.Describe[User]())
		require.NoError(t, err)
		c.Unprecompile(accessor.Describe[*User]())
		assert.Equal(t, 0, c.PrecompiledCount())

		rebuilt, err := c.Get(accessor.Describe[User]())
		require.NoError(t, err)
		assert.NotSame(t, pinned, rebuilt)
		assert.NotEqual(t, pinned.BuildID(), rebuilt.BuildID())
		assert.Equal(t, pinned.Len(), rebuilt.Len())
	})

	t.Run("Error", func(t *testing.T) {
		c := newTestCache(t)

		_, err := c.Precompile(accessor.Describe[string]())
		assert.ErrorIs(t, err, accessor.ErrInvalidType)
		assert.Equal(t, 0, c.PrecompiledCount())
	})
}

func TestConcurrentGetAndPrecompile(t *testing.T) {
	c := newTestCache(t)
	desc := accessor.Describe[User]()

	const workers = 32
	var (
		start   sync.WaitGroup
		done    sync.WaitGroup
		results [workers]*accessor.TypeAccessor
	)
	start.Add(1)
	done.Add(workers)

	for i := 0; i < workers; i++ {
		go func(i int) {
			defer done.Done()
			start.Wait()
			var err error
			if i%2 == 0 {
				results[i], err = c.Precompile(desc)
			} else {
				results[i], err = c.Get(desc)
			}
			assert.NoError(t, err)
		}(i)
	}

	start.Done()
	done.Wait()

	assert.Equal(t, int64(1), c.Builds())
	assert.Equal(t, 1, c.PrecompiledCount())
	assert.Equal(t, 1, c.Len())

	pinned, err := c.Precompile(desc)
	require.NoError(t, err)
	for i := 0; i < workers; i += 2 {
		assert.Same(t, pinned, results[i])
	}
}

// =========================================================================
// Eviction Tests
// =========================================================================

func TestEviction(t *testing.T) {
	var evicted []accessor.Descriptor
	c := newTestCache(t, WithSize(1), WithEvictionCallback(func(desc accessor.Descriptor, ta *accessor.TypeAccessor) {
		assert.Equal(t, desc.Type, ta.Type())
		evicted = append(evicted, desc)
	}))

	first, err := c.Get(accessor.Describe[User]())
	require.NoError(t, err)
	_, err = c.Get(accessor.Describe[Order]())
	require.NoError(t, err)

	assert.Equal(t, []accessor.Descriptor{accessor.Describe[User]()}, evicted)
	assert.Equal(t, 1, c.Len())

	// Re-synthesis after eviction yields an equivalent accessor
	again, err := c.Get(accessor.Describe[User]())
	require.NoError(t, err)
	assert.NotSame(t, first, again)
	assert.Equal(t, first.Type(), again.Type())
	assert.Equal(t, first.Len(), again.Len())
	assert.Equal(t, int64(3), c.Builds())
}

func TestRemoveAndPurge(t *testing.T) {
	evictions := 0
	c := newTestCache(t, WithEvictionCallback(func(accessor.Descriptor, *accessor.TypeAccessor) {
		evictions++
	}))

	_, err := c.Get(accessor.Describe[User]())
	require.NoError(t, err)
	_, err = c.Get(accessor.Describe[Order]())
	require.NoError(t, err)
	_, err = c.Precompile(accessor.Describe[Invoice]())
	require.NoError(t, err)
	assert.Equal(t, 3, c.Len())

	c.Remove(accessor.Describe[*User]())
	assert.Equal(t, 2, c.Len())
	assert.Equal(t, 1, evictions)

	c.Purge()
	assert.Equal(t, 1, c.Len())
	assert.Equal(t, 2, evictions)
	assert.Equal(t, 1, c.PrecompiledCount())
}

func TestNewRejectsInvalidSize(t *testing.T) {
	for _, size := range []int{0, -1} {
		c, err := New(WithSize(size))
		assert.Error(t, err)
		assert.Nil(t, c)
	}
}

func TestFlightKey(t *testing.T) {
	plain := flightKey(accessor.Describe[AuditedUser]())
	decorated := flightKey(accessor.DescribeDecorated[AuditedUser, User]())

	assert.NotEqual(t, plain, decorated)
	assert.Equal(t, plain, flightKey(accessor.Describe[*AuditedUser]()))
}
