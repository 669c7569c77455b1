package schema

import (
	"fmt"
	"reflect"
)

const (
	// SetterPrefix marks a property setter method: SetName(v).
	SetterPrefix = "Set"

	DefaultGetterFallbackPrefix = "Get"
	DefaultSetterFallbackPrefix = "Put"
)

type Context struct {
	// Configuration
	zeroValueCtors bool
	getterFallback string
	setterFallback string
}

type Option func(*Context)

// WithZeroValueConstructors controls whether a type with no registered
// constructor is treated as having a zero-argument constructor that
// returns new(T).
func WithZeroValueConstructors(enabled bool) Option {
	return func(ctx *Context) { ctx.zeroValueCtors = enabled }
}

// WithFallbackPrefixes sets the method name prefixes looked up on a
// decorated type when a property lacks a declared getter or setter.
func WithFallbackPrefixes(getter, setter string) Option {
	return func(ctx *Context) {
		ctx.getterFallback = getter
		ctx.setterFallback = setter
	}
}

// New creates an introspection context with configuration
func New(options ...Option) *Context {
	ctx := &Context{
		zeroValueCtors: true,
		getterFallback: DefaultGetterFallbackPrefix,
		setterFallback: DefaultSetterFallbackPrefix,
	}

	for _, opt := range options {
		opt(ctx)
	}

	return ctx
}

// Introspect builds the metadata for the decorated type t standing in for
// original. A nil original means t is not decorated. Pointer types are
// normalized to their element type.
func (c *Context) Introspect(t, original reflect.Type) (*TypeMeta, error) {
	if t == nil {
		return nil, fmt.Errorf("invalid model type: nil")
	}
	t = indirectType(t)
	if t.Kind() != reflect.Struct {
		return nil, fmt.Errorf("invalid model type: %s (expected struct)", t.Kind())
	}

	if original == nil {
		original = t
	} else {
		original = indirectType(original)
	}

	meta := &TypeMeta{
		Type:         t,
		OriginalType: original,
		Name:         t.Name(),
	}

	meta.Fields = publicFields(t)
	meta.Properties = c.publicProperties(t, meta.Fields, meta.IsDecorated())
	meta.DefaultCtor, meta.InitCtor = c.resolveConstructors(t)

	return meta, nil
}

// GetterFallback returns the method on the decorated type that can stand in
// for the missing getter of property name, or nil.
func (c *Context) GetterFallback(t reflect.Type, name string, valueType reflect.Type) *reflect.Method {
	if c.getterFallback == "" {
		return nil
	}
	m, ok := reflect.PointerTo(indirectType(t)).MethodByName(c.getterFallback + name)
	if !ok {
		return nil
	}
	mt := m.Type
	if mt.NumIn() != 1 || mt.NumOut() != 1 || mt.Out(0) != valueType {
		return nil
	}
	return &m
}

// SetterFallback returns the method on the decorated type that can stand in
// for the missing setter of property name, or nil.
func (c *Context) SetterFallback(t reflect.Type, name string, valueType reflect.Type) *reflect.Method {
	if c.setterFallback == "" {
		return nil
	}
	m, ok := reflect.PointerTo(indirectType(t)).MethodByName(c.setterFallback + name)
	if !ok {
		return nil
	}
	mt := m.Type
	if mt.NumIn() != 2 || mt.NumOut() != 0 || mt.In(1) != valueType {
		return nil
	}
	return &m
}
