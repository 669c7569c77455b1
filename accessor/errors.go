package accessor

import (
	"errors"
	"fmt"
	"reflect"
)

var (
	// ErrNoConstructor is reported when a type has neither a zero-argument
	// nor an init-context constructor.
	ErrNoConstructor = errors.New("must have public default or init constructor")
	// ErrInvalidType is reported when the decorated type cannot carry members.
	ErrInvalidType = errors.New("invalid decorated type")

	ErrNoGetter     = errors.New("member has no getter")
	ErrNoSetter     = errors.New("member has no setter")
	ErrInstanceType = errors.New("instance is not of the decorated type")
	ErrNilInstance  = errors.New("instance is nil")
	ErrValueType    = errors.New("value is not assignable to the member type")
	ErrNoSuchMember = errors.New("no such member")
)

// ConfigError is returned by synthesis when a type cannot get an accessor.
type ConfigError struct {
	Type reflect.Type
	Err  error
}

func (e *ConfigError) Error() string {
	if errors.Is(e.Err, ErrNoConstructor) {
		return fmt.Sprintf("accessor: the '%s' type %s", typeName(e.Type), e.Err)
	}
	return fmt.Sprintf("accessor: type '%s': %s", typeName(e.Type), e.Err)
}

func (e *ConfigError) Unwrap() error { return e.Err }

// InvalidUseError is returned when an accessor is used in a way its
// capabilities do not allow.
type InvalidUseError struct {
	Op     string // "get", "set", "copy", ...
	Type   reflect.Type
	Member string
	Err    error
}

func (e *InvalidUseError) Error() string {
	if e.Member == "" {
		return fmt.Sprintf("accessor: %s on %s: %s", e.Op, typeName(e.Type), e.Err)
	}
	return fmt.Sprintf("accessor: %s %s.%s: %s", e.Op, typeName(e.Type), e.Member, e.Err)
}

func (e *InvalidUseError) Unwrap() error { return e.Err }

func invalidUse(op string, t reflect.Type, member string, err error) error {
	return &InvalidUseError{Op: op, Type: t, Member: member, Err: err}
}

func typeName(t reflect.Type) string {
	if t == nil {
		return "<nil>"
	}
	if t.Name() != "" {
		return t.Name()
	}
	return t.String()
}
