package accessor

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/oklog/ulid/v2"

	"github.com/Konsultn-Engineering/typeaccessor/schema"
)

// InitContext is the construction parameter accepted by init constructors.
type InitContext = schema.InitContext

// Descriptor identifies the type an accessor is synthesized for.
type Descriptor struct {
	Type         reflect.Type // decorated type
	OriginalType reflect.Type // type the decorated type represents
}

// NewDescriptor builds a descriptor for the decorated type t standing in for
// original. Pointer types are normalized to their element type, and a nil
// original means t is not decorated.
func NewDescriptor(t, original reflect.Type) Descriptor {
	t = indirectType(t)
	if original == nil {
		original = t
	} else {
		original = indirectType(original)
	}
	return Descriptor{Type: t, OriginalType: original}
}

// Describe returns the descriptor of an undecorated T.
func Describe[T any]() Descriptor {
	return NewDescriptor(reflect.TypeFor[T](), nil)
}

// DescribeDecorated returns the descriptor of T decorating O.
func DescribeDecorated[T, O any]() Descriptor {
	return NewDescriptor(reflect.TypeFor[T](), reflect.TypeFor[O]())
}

// IsDecorated reports whether the decorated and original types differ.
func (d Descriptor) IsDecorated() bool {
	return d.Type != d.OriginalType
}

func (d Descriptor) String() string {
	if !d.IsDecorated() {
		return fmt.Sprint(d.Type)
	}
	return fmt.Sprintf("%v(%v)", d.Type, d.OriginalType)
}

type slotKey struct {
	kind schema.MemberKind
	name string
}

// TypeAccessor creates instances of one decorated type and exposes its
// members by name. It is built once by a Builder and never mutated
// afterwards, so it is safe for concurrent use.
type TypeAccessor struct {
	name              string
	typ               reflect.Type
	originalType      reflect.Type
	ptrType           reflect.Type
	meta              *schema.TypeMeta
	buildID           ulid.ULID
	create            func() any
	createWithContext func(*InitContext) any

	slots   map[slotKey]*MemberInfo
	members map[string]*MemberAccessor
	order   []string
}

// Type returns the decorated type.
func (ta *TypeAccessor) Type() reflect.Type { return ta.typ }

// OriginalType returns the type the decorated type represents.
func (ta *TypeAccessor) OriginalType() reflect.Type { return ta.originalType }

// BuildID identifies this synthesized accessor. Two syntheses of the same
// descriptor get different IDs.
func (ta *TypeAccessor) BuildID() ulid.ULID { return ta.buildID }

// CreateInstance returns a new *T through whichever constructor T has,
// passing a nil context to an init constructor.
func (ta *TypeAccessor) CreateInstance() any {
	return ta.create()
}

// CreateInstanceWithContext returns a new *T built from ctx, or through the
// zero-argument constructor when T has no init constructor.
func (ta *TypeAccessor) CreateInstanceWithContext(ctx *InitContext) any {
	return ta.createWithContext(ctx)
}

// Member returns the accessor of the named member.
func (ta *TypeAccessor) Member(name string) (*MemberAccessor, bool) {
	m, ok := ta.members[name]
	return m, ok
}

// Members returns the member accessors, fields first, then properties.
func (ta *TypeAccessor) Members() []*MemberAccessor {
	out := make([]*MemberAccessor, 0, len(ta.order))
	for _, name := range ta.order {
		out = append(out, ta.members[name])
	}
	return out
}

// Len returns the number of members.
func (ta *TypeAccessor) Len() int { return len(ta.order) }

// GetValue reads the named member of instance.
func (ta *TypeAccessor) GetValue(instance any, name string) (any, error) {
	m, ok := ta.members[name]
	if !ok {
		return nil, invalidUse("get", ta.typ, name, ErrNoSuchMember)
	}
	return m.GetValue(instance)
}

// SetValue writes the named member of instance.
func (ta *TypeAccessor) SetValue(instance any, name string, value any) error {
	m, ok := ta.members[name]
	if !ok {
		return invalidUse("set", ta.typ, name, ErrNoSuchMember)
	}
	return m.SetValue(instance, value)
}

// Copy copies every member that is both readable and writable from src to
// dst. Both must be non-nil pointers to the decorated type.
func (ta *TypeAccessor) Copy(dst, src any) error {
	for _, v := range [...]any{dst, src} {
		if reflect.TypeOf(v) != ta.ptrType {
			return invalidUse("copy", ta.typ, "",
				fmt.Errorf("%w: got %T, want %s", ErrInstanceType, v, ta.ptrType))
		}
		if reflect.ValueOf(v).IsNil() {
			return invalidUse("copy", ta.typ, "", ErrNilInstance)
		}
	}

	for _, name := range ta.order {
		m := ta.members[name]
		if !m.hasGetter || !m.hasSetter {
			continue
		}
		v, err := m.GetValue(src)
		if err != nil {
			return err
		}
		if err := m.SetValue(dst, v); err != nil {
			return err
		}
	}
	return nil
}

func (ta *TypeAccessor) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s (%s)\n", ta.name, ta.buildID)
	for i, name := range ta.order {
		m := ta.members[name]
		access := "-"
		switch {
		case m.hasGetter && m.hasSetter:
			access = "rw"
		case m.hasGetter:
			access = "r"
		case m.hasSetter:
			access = "w"
		}
		fmt.Fprintf(&b, "  %2d. %-16s %-8s %-2s %s\n", i+1, name, m.info.Kind, access, m.info.Type)
	}
	return b.String()
}

// member looks up, or creates on first use, the slot for (kind, name).
func (ta *TypeAccessor) member(kind schema.MemberKind, name string) *MemberInfo {
	key := slotKey{kind: kind, name: name}
	if mi, ok := ta.slots[key]; ok {
		return mi
	}

	mi := &MemberInfo{Kind: kind, Name: name}
	if mm := ta.meta.Member(kind, name); mm != nil {
		mi.Meta = mm
		mi.Type = mm.Type
	}
	ta.slots[key] = mi
	return mi
}

// addMember inserts m into the member mapping. A member with the same name
// replaces the previous one and keeps its position.
func (ta *TypeAccessor) addMember(m *MemberAccessor) {
	name := m.info.Name
	if _, exists := ta.members[name]; !exists {
		ta.order = append(ta.order, name)
	}
	ta.members[name] = m
}

func indirectType(t reflect.Type) reflect.Type {
	for t != nil && t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	return t
}
