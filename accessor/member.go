package accessor

import (
	"fmt"
	"reflect"

	"github.com/Konsultn-Engineering/typeaccessor/schema"
)

type getFunc func(instance reflect.Value) any
type setFunc func(instance reflect.Value, value any) error

// MemberInfo is the member slot a unit is bound to, resolved on the owning
// TypeAccessor by kind and name.
type MemberInfo struct {
	Kind schema.MemberKind
	Name string
	Type reflect.Type
	Meta *schema.MemberMeta // nil when the type has no such member
}

// MemberAccessor gets and sets one member of the decorated type. It is
// immutable and safe for concurrent use.
type MemberAccessor struct {
	info      *MemberInfo
	ownerType reflect.Type
	ptrType   reflect.Type
	get       getFunc
	set       setFunc
	hasGetter bool
	hasSetter bool
}

func (m *MemberAccessor) Name() string            { return m.info.Name }
func (m *MemberAccessor) Kind() schema.MemberKind { return m.info.Kind }
func (m *MemberAccessor) Type() reflect.Type      { return m.info.Type }
func (m *MemberAccessor) Info() *MemberInfo       { return m.info }

// HasGetter reports whether GetValue can succeed.
func (m *MemberAccessor) HasGetter() bool { return m.hasGetter }

// HasSetter reports whether SetValue can succeed.
func (m *MemberAccessor) HasSetter() bool { return m.hasSetter }

// GetValue reads the member from instance, which must be a non-nil pointer
// to the decorated type.
func (m *MemberAccessor) GetValue(instance any) (any, error) {
	if !m.hasGetter {
		return nil, invalidUse("get", m.ownerType, m.info.Name, ErrNoGetter)
	}
	rv, err := m.checkInstance("get", instance)
	if err != nil {
		return nil, err
	}
	return m.get(rv), nil
}

// SetValue writes value to the member of instance. value must be nil or
// assignable to the member type.
func (m *MemberAccessor) SetValue(instance, value any) error {
	if !m.hasSetter {
		return invalidUse("set", m.ownerType, m.info.Name, ErrNoSetter)
	}
	rv, err := m.checkInstance("set", instance)
	if err != nil {
		return err
	}
	if err := m.set(rv, value); err != nil {
		return invalidUse("set", m.ownerType, m.info.Name, err)
	}
	return nil
}

func (m *MemberAccessor) checkInstance(op string, instance any) (reflect.Value, error) {
	if reflect.TypeOf(instance) != m.ptrType {
		return reflect.Value{}, invalidUse(op, m.ownerType, m.info.Name,
			fmt.Errorf("%w: got %T, want %s", ErrInstanceType, instance, m.ptrType))
	}
	rv := reflect.ValueOf(instance)
	if rv.IsNil() {
		return reflect.Value{}, invalidUse(op, m.ownerType, m.info.Name, ErrNilInstance)
	}
	return rv, nil
}
