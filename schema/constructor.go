package schema

import (
	"reflect"
	"sync"
)

// InitContext is the opaque construction parameter passed to init
// constructors. Its contents belong to the caller.
type InitContext struct {
	Parent           any
	Parameters       []any
	MemberParameters []any
	IsInternal       bool
	IsSource         bool
}

// DefaultConstructor creates a new instance (a pointer to the decorated type).
type DefaultConstructor func() any

// InitConstructor creates a new instance from an initialization context.
// ctx may be nil.
type InitConstructor func(ctx *InitContext) any

type constructorSet struct {
	def  DefaultConstructor
	init InitConstructor
}

var constructorRegistry sync.Map // map[reflect.Type]*constructorSet
var constructorMu sync.Mutex

// RegisterConstructor registers fn as the zero-argument constructor of T.
func RegisterConstructor[T any](fn func() *T) {
	t := indirectType(reflect.TypeFor[T]())
	updateConstructors(t, func(cs *constructorSet) {
		cs.def = func() any { return fn() }
	})
}

// RegisterInitConstructor registers fn as the init-context constructor of T.
// A type with a registered constructor no longer gets the implicit
// zero-value constructor.
func RegisterInitConstructor[T any](fn func(ctx *InitContext) *T) {
	t := indirectType(reflect.TypeFor[T]())
	updateConstructors(t, func(cs *constructorSet) {
		cs.init = func(ctx *InitContext) any { return fn(ctx) }
	})
}

// UnregisterConstructors removes every registered constructor of t.
func UnregisterConstructors(t reflect.Type) {
	constructorMu.Lock()
	defer constructorMu.Unlock()
	constructorRegistry.Delete(indirectType(t))
}

func updateConstructors(t reflect.Type, fn func(*constructorSet)) {
	constructorMu.Lock()
	defer constructorMu.Unlock()

	next := &constructorSet{}
	if v, ok := constructorRegistry.Load(t); ok {
		*next = *v.(*constructorSet)
	}
	fn(next)
	constructorRegistry.Store(t, next)
}

func registeredConstructors(t reflect.Type) (*constructorSet, bool) {
	if v, ok := constructorRegistry.Load(t); ok {
		return v.(*constructorSet), true
	}
	return nil, false
}

// resolveConstructors finds the default and init constructors of t.
func (c *Context) resolveConstructors(t reflect.Type) (DefaultConstructor, InitConstructor) {
	if cs, ok := registeredConstructors(t); ok {
		return cs.def, cs.init
	}
	if !c.zeroValueCtors {
		return nil, nil
	}
	return func() any { return reflect.New(t).Interface() }, nil
}

func indirectType(t reflect.Type) reflect.Type {
	for t != nil && t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	return t
}
