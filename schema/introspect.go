package schema

import (
	"reflect"
	"strings"
	"unicode"
	"unicode/utf8"
)

var errorType = reflect.TypeFor[error]()

// publicFields returns the exported fields of t in declaration order,
// including fields promoted through embedded struct values. Embedded
// fields themselves are not members, and fields promoted through an
// embedded pointer are skipped since they have no fixed offset.
func publicFields(t reflect.Type) []*MemberMeta {
	visible := reflect.VisibleFields(t)
	fields := make([]*MemberMeta, 0, len(visible))

	for _, f := range visible {
		if !f.IsExported() || f.Anonymous {
			continue
		}

		offset, ok := fieldOffset(t, f.Index)
		if !ok {
			continue
		}

		index := make([]int, len(f.Index))
		copy(index, f.Index)

		fields = append(fields, &MemberMeta{
			Name:   f.Name,
			Type:   f.Type,
			Kind:   KindField,
			Index:  index,
			Offset: offset,
		})
	}

	return fields
}

// fieldOffset sums the offsets along an index path. It fails when the path
// crosses an embedded pointer.
func fieldOffset(t reflect.Type, index []int) (uintptr, bool) {
	var offset uintptr
	cur := t
	for i, idx := range index {
		f := cur.Field(idx)
		offset += f.Offset
		if i == len(index)-1 {
			break
		}
		if f.Type.Kind() != reflect.Struct {
			return 0, false
		}
		cur = f.Type
	}
	return offset, true
}

// publicProperties collects the properties exposed by the pointer method set
// of t. Indexed properties are returned with IsIndexed set; filtering them is
// up to the caller. Get<Name> fallback methods are only set aside when t is
// decorated, since only decorated accessors consult them.
func (c *Context) publicProperties(t reflect.Type, fields []*MemberMeta, decorated bool) []*MemberMeta {
	pt := reflect.PointerTo(t)
	viaPointer := pointerPromotedMethods(t)

	byName := make(map[string]*MemberMeta, pt.NumMethod())
	var order []string

	lookup := func(name string) *MemberMeta {
		if p, ok := byName[name]; ok {
			return p
		}
		p := &MemberMeta{Name: name, Kind: KindProperty}
		byName[name] = p
		order = append(order, name)
		return p
	}

	for i := 0; i < pt.NumMethod(); i++ {
		method := pt.Method(i)
		if _, ok := viaPointer[method.Name]; ok {
			continue
		}
		mt := method.Type // receiver is In(0)

		if name, ok := trimAccessorPrefix(method.Name, SetterPrefix); ok && mt.NumOut() == 0 && mt.NumIn() >= 2 {
			p := lookup(name)
			p.Setter = &method
			if mt.NumIn() > 2 {
				p.IsIndexed = true
			}
			continue
		}

		if mt.NumOut() == 1 && mt.Out(0) != errorType {
			p := lookup(method.Name)
			p.Getter = &method
			if mt.NumIn() > 1 {
				p.IsIndexed = true
			}
		}
	}

	known := make(map[string]struct{}, len(fields)+len(order))
	for _, f := range fields {
		known[f.Name] = struct{}{}
	}
	for _, name := range order {
		known[name] = struct{}{}
	}

	props := make([]*MemberMeta, 0, len(order))
	for _, name := range order {
		p := byName[name]

		if decorated && c.isFallbackGetter(p, known) {
			continue
		}

		resolvePropertyType(p)
		props = append(props, p)
	}

	return props
}

// pointerPromotedMethods returns the names of the methods t gets through an
// embedded pointer or interface. Like the fields behind an embedded pointer
// they have no receiver until the embedded value is set.
func pointerPromotedMethods(t reflect.Type) map[string]struct{} {
	var names map[string]struct{}
	for _, f := range reflect.VisibleFields(t) {
		if !f.Anonymous {
			continue
		}
		if k := f.Type.Kind(); k != reflect.Pointer && k != reflect.Interface {
			continue
		}
		if names == nil {
			names = make(map[string]struct{})
		}
		for i := 0; i < f.Type.NumMethod(); i++ {
			names[f.Type.Method(i).Name] = struct{}{}
		}
	}
	return names
}

// isFallbackGetter reports whether p is really a Get<Name> method standing in
// for another member's getter.
func (c *Context) isFallbackGetter(p *MemberMeta, known map[string]struct{}) bool {
	if c.getterFallback == "" || p.Setter != nil || p.IsIndexed {
		return false
	}
	target, ok := trimAccessorPrefix(p.Name, c.getterFallback)
	if !ok {
		return false
	}
	_, exists := known[target]
	return exists
}

func resolvePropertyType(p *MemberMeta) {
	switch {
	case p.Getter != nil:
		p.Type = p.Getter.Type.Out(0)
		if p.Setter != nil && !p.IsIndexed {
			st := p.Setter.Type
			if st.In(st.NumIn()-1) != p.Type {
				// Mismatched pair: the setter does not belong to this getter.
				p.Setter = nil
			}
		}
	case p.Setter != nil:
		st := p.Setter.Type
		p.Type = st.In(st.NumIn() - 1)
	}
}

// trimAccessorPrefix strips prefix from name when what follows it starts
// with an upper-case letter.
func trimAccessorPrefix(name, prefix string) (string, bool) {
	if prefix == "" || !strings.HasPrefix(name, prefix) {
		return "", false
	}
	rest := name[len(prefix):]
	r, _ := utf8.DecodeRuneInString(rest)
	if r == utf8.RuneError || !unicode.IsUpper(r) {
		return "", false
	}
	return rest, true
}
