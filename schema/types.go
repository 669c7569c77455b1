package schema

import (
	"reflect"
)

// MemberKind distinguishes struct fields from method-backed properties.
type MemberKind int

const (
	KindField    MemberKind = 1
	KindProperty MemberKind = 2
)

func (k MemberKind) String() string {
	switch k {
	case KindField:
		return "field"
	case KindProperty:
		return "property"
	default:
		return "unknown"
	}
}

// TypeMeta is the introspected shape of a decorated type.
type TypeMeta struct {
	Type         reflect.Type
	OriginalType reflect.Type
	Name         string

	Fields     []*MemberMeta // exported fields, declaration order
	Properties []*MemberMeta // properties, method-set order, indexed ones included

	DefaultCtor DefaultConstructor // nil when the type has none
	InitCtor    InitConstructor    // nil when the type has none
}

// IsDecorated reports whether the decorated type wraps a different original type.
func (m *TypeMeta) IsDecorated() bool {
	return m.Type != m.OriginalType
}

// MemberMeta describes one field or property of a decorated type.
type MemberMeta struct {
	Name      string
	Type      reflect.Type // declared type of the value
	Kind      MemberKind
	IsIndexed bool

	// Field location. Offset is relative to the start of the struct and
	// already accounts for promotion through embedded values.
	Index  []int
	Offset uintptr

	// Property accessors on the pointer method set. Either may be nil.
	Getter *reflect.Method
	Setter *reflect.Method
}

// IsField reports whether the member is a struct field.
func (m *MemberMeta) IsField() bool { return m.Kind == KindField }

// IsProperty reports whether the member is a method-backed property.
func (m *MemberMeta) IsProperty() bool { return m.Kind == KindProperty }

// Member returns the member of the given kind and name, or nil.
func (m *TypeMeta) Member(kind MemberKind, name string) *MemberMeta {
	var members []*MemberMeta
	switch kind {
	case KindField:
		members = m.Fields
	case KindProperty:
		members = m.Properties
	}
	for _, mm := range members {
		if mm.Name == name {
			return mm
		}
	}
	return nil
}
