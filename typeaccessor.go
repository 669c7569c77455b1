// Package typeaccessor synthesizes, once per type, an accessor that creates
// instances of a struct type and gets or sets its members by name.
//
// The package-level functions go through a process-wide cache that can be
// replaced with SetDefault. Use the accessor and cache packages directly to
// control synthesis and caching.
package typeaccessor

import (
	"fmt"
	"reflect"
	"sync/atomic"

	"github.com/Konsultn-Engineering/typeaccessor/accessor"
	"github.com/Konsultn-Engineering/typeaccessor/cache"
)

type (
	TypeAccessor   = accessor.TypeAccessor
	MemberAccessor = accessor.MemberAccessor
	Descriptor     = accessor.Descriptor
	InitContext    = accessor.InitContext
)

var defaultCache atomic.Pointer[cache.Cache]

func init() {
	c, err := cache.New()
	if err != nil {
		panic(err)
	}
	defaultCache.Store(c)
}

// Default returns the process-wide accessor cache.
func Default() *cache.Cache {
	return defaultCache.Load()
}

// SetDefault replaces the process-wide accessor cache. Accessors already
// handed out stay valid.
func SetDefault(c *cache.Cache) {
	if c == nil {
		return
	}
	defaultCache.Store(c)
}

// For returns the accessor of struct type T.
func For[T any]() (*TypeAccessor, error) {
	return Default().Get(accessor.Describe[T]())
}

// ForType returns the accessor of t.
func ForType(t reflect.Type) (*TypeAccessor, error) {
	return Default().Get(accessor.NewDescriptor(t, nil))
}

// ForDecorated returns the accessor of t acting as a decorator of original.
func ForDecorated(t, original reflect.Type) (*TypeAccessor, error) {
	return Default().Get(accessor.NewDescriptor(t, original))
}

// Of returns the accessor of the dynamic type of v.
func Of(v any) (*TypeAccessor, error) {
	return ForType(reflect.TypeOf(v))
}

// Precompile synthesizes the accessor of T and keeps it for the life of the
// process.
func Precompile[T any]() (*TypeAccessor, error) {
	return Default().Precompile(accessor.Describe[T]())
}

// Create returns a new *T through T's accessor.
func Create[T any]() (*T, error) {
	ta, err := For[T]()
	if err != nil {
		return nil, err
	}
	return instanceAs[T](ta.CreateInstance())
}

// CreateWithContext returns a new *T built from ctx through T's accessor.
func CreateWithContext[T any](ctx *InitContext) (*T, error) {
	ta, err := For[T]()
	if err != nil {
		return nil, err
	}
	return instanceAs[T](ta.CreateInstanceWithContext(ctx))
}

// Get reads the named member of instance.
func Get(instance any, name string) (any, error) {
	if instance == nil {
		return nil, &accessor.InvalidUseError{Op: "get", Member: name, Err: accessor.ErrNilInstance}
	}
	ta, err := Of(instance)
	if err != nil {
		return nil, err
	}
	return ta.GetValue(instance, name)
}

// Set writes the named member of instance.
func Set(instance any, name string, value any) error {
	if instance == nil {
		return &accessor.InvalidUseError{Op: "set", Member: name, Err: accessor.ErrNilInstance}
	}
	ta, err := Of(instance)
	if err != nil {
		return err
	}
	return ta.SetValue(instance, name, value)
}

func instanceAs[T any](v any) (*T, error) {
	p, ok := v.(*T)
	if !ok {
		return nil, fmt.Errorf("typeaccessor: constructor returned %T, want %s", v, reflect.TypeFor[*T]())
	}
	return p, nil
}
