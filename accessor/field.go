package accessor

import (
	"encoding/json"
	"fmt"
	"reflect"
	"sync"
	"time"
	"unsafe"
)

// fieldAccess reads and writes one field at a fixed offset from the start
// of a struct.
type fieldAccess struct {
	get func(structPtr unsafe.Pointer) any
	set func(structPtr unsafe.Pointer, value any) error
}

var fieldAccessCreators = sync.Map{} // map[reflect.Type]func(offset uintptr) fieldAccess

func init() {
	RegisterFieldType[string]()
	RegisterFieldType[bool]()
	RegisterFieldType[int]()
	RegisterFieldType[int8]()
	RegisterFieldType[int16]()
	RegisterFieldType[int32]()
	RegisterFieldType[int64]()
	RegisterFieldType[uint]()
	RegisterFieldType[uint8]()
	RegisterFieldType[uint16]()
	RegisterFieldType[uint32]()
	RegisterFieldType[uint64]()
	RegisterFieldType[float32]()
	RegisterFieldType[float64]()
	RegisterFieldType[[]byte]()
	RegisterFieldType[*string]()
	RegisterFieldType[time.Time]()
	RegisterFieldType[time.Duration]()
	RegisterFieldType[json.RawMessage]()
	RegisterFieldType[any]()
}

// RegisterFieldType installs a typed fast path for fields of exactly type T.
// The fast path accepts the same values as the reflection path: anything
// assignable to T, or nil for the zero value.
// Fields of unregistered types go through reflect.NewAt. Accessors already
// synthesized keep the path they were built with.
func RegisterFieldType[T any]() {
	fieldType := reflect.TypeFor[T]()

	fieldAccessCreators.Store(fieldType, func(offset uintptr) fieldAccess {
		return fieldAccess{
			get: func(structPtr unsafe.Pointer) any {
				return *(*T)(unsafe.Add(structPtr, offset))
			},
			set: func(structPtr unsafe.Pointer, value any) error {
				fieldPtr := (*T)(unsafe.Add(structPtr, offset))

				if value == nil {
					var zero T
					*fieldPtr = zero
					return nil
				}

				v, ok := value.(T)
				if !ok {
					// Assignable but not identical, e.g. json.RawMessage into []byte
					rv, err := unwrapValue(value, fieldType)
					if err != nil {
						return err
					}
					v = rv.Convert(fieldType).Interface().(T)
				}
				*fieldPtr = v
				return nil
			},
		}
	})
}

func newFieldAccess(fieldType reflect.Type, offset uintptr) fieldAccess {
	if creator, ok := fieldAccessCreators.Load(fieldType); ok {
		return creator.(func(uintptr) fieldAccess)(offset)
	}

	// Reflection fallback for unregistered types
	return fieldAccess{
		get: func(structPtr unsafe.Pointer) any {
			return reflect.NewAt(fieldType, unsafe.Add(structPtr, offset)).Elem().Interface()
		},
		set: func(structPtr unsafe.Pointer, value any) error {
			v, err := unwrapValue(value, fieldType)
			if err != nil {
				return err
			}
			reflect.NewAt(fieldType, unsafe.Add(structPtr, offset)).Elem().Set(v)
			return nil
		},
	}
}

// unwrapValue turns a uniform any value into a reflect.Value of the declared
// type. nil becomes the zero value.
func unwrapValue(value any, declared reflect.Type) (reflect.Value, error) {
	if value == nil {
		return reflect.Zero(declared), nil
	}

	v := reflect.ValueOf(value)
	if !v.Type().AssignableTo(declared) {
		return reflect.Value{}, fmt.Errorf("%w: %s to %s", ErrValueType, v.Type(), declared)
	}
	return v, nil
}
