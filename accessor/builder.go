package accessor

import (
	"crypto/rand"
	"fmt"
	"iter"
	"reflect"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"

	"github.com/Konsultn-Engineering/typeaccessor/schema"
)

// Builder synthesizes TypeAccessors. A Builder holds only configuration and
// may be shared; each Build call works on its own in-progress definition.
type Builder struct {
	schema        *schema.Context
	logger        zerolog.Logger
	eagerFinalize bool

	idMu    sync.Mutex
	entropy *ulid.MonotonicEntropy
}

type Option func(*Builder)

// WithSchema sets the introspection context used to discover members and
// constructors.
func WithSchema(ctx *schema.Context) Option {
	return func(b *Builder) { b.schema = ctx }
}

// WithLogger sets the logger for synthesis events.
func WithLogger(logger zerolog.Logger) Option {
	return func(b *Builder) { b.logger = logger }
}

// WithEagerFinalize seals each member unit as soon as it is defined instead
// of after the enclosing accessor definition is closed.
func WithEagerFinalize(enabled bool) Option {
	return func(b *Builder) { b.eagerFinalize = enabled }
}

// NewBuilder creates a builder with configuration
func NewBuilder(options ...Option) *Builder {
	b := &Builder{
		schema:  schema.New(),
		logger:  zerolog.Nop(),
		entropy: ulid.Monotonic(rand.Reader, 0),
	}

	for _, opt := range options {
		opt(b)
	}

	return b
}

// Build synthesizes an accessor for desc with a fresh builder.
func Build(desc Descriptor, options ...Option) (*TypeAccessor, error) {
	return NewBuilder(options...).Build(desc)
}

// Build synthesizes the accessor for desc. The only failure is a
// *ConfigError: the type is not a struct, or it has neither a zero-argument
// nor an init constructor.
func (b *Builder) Build(desc Descriptor) (*TypeAccessor, error) {
	meta, err := b.schema.Introspect(desc.Type, desc.OriginalType)
	if err != nil {
		return nil, &ConfigError{Type: desc.Type, Err: fmt.Errorf("%w: %v", ErrInvalidType, err)}
	}

	tb := newTypeBuilder(b, meta)

	b.logger.Debug().
		Str("type", tb.def.name).
		Stringer("original", meta.OriginalType).
		Bool("eager_finalize", b.eagerFinalize).
		Msg("synthesizing type accessor")

	if err := tb.buildCreateInstanceMethods(); err != nil {
		b.logger.Debug().Err(err).Str("type", tb.def.name).Msg("type accessor synthesis failed")
		return nil, err
	}
	tb.buildTypeProperties()
	tb.buildMembers()

	ta := tb.create(b.newBuildID())

	b.logger.Debug().
		Str("type", tb.def.name).
		Int("members", ta.Len()).
		Stringer("build_id", ta.buildID).
		Msg("synthesized type accessor")

	return ta, nil
}

func (b *Builder) newBuildID() ulid.ULID {
	b.idMu.Lock()
	defer b.idMu.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now()), b.entropy)
}

// typeDef is the in-progress definition of one TypeAccessor.
type typeDef struct {
	name              string
	typ               reflect.Type
	originalType      reflect.Type
	ptrType           reflect.Type
	create            func() any
	createWithContext func(*InitContext) any

	// inits run once, in order, when the accessor is instantiated.
	inits []func(*TypeAccessor)
}

// unitDef is the definition of one member accessor.
type unitDef struct {
	name      string
	ownerType reflect.Type
	ptrType   reflect.Type
	get       getFunc
	set       setFunc
	hasGetter bool
	hasSetter bool
	sealed    bool
}

func (d *unitDef) seal() { d.sealed = true }

func (d *unitDef) newUnit(info *MemberInfo) *MemberAccessor {
	if !d.sealed {
		panic(fmt.Sprintf("accessor: unit %s instantiated before finalization", d.name))
	}
	return &MemberAccessor{
		info:      info,
		ownerType: d.ownerType,
		ptrType:   d.ptrType,
		get:       d.get,
		set:       d.set,
		hasGetter: d.hasGetter,
		hasSetter: d.hasSetter,
	}
}

type typeBuilder struct {
	b      *Builder
	meta   *schema.TypeMeta
	def    *typeDef
	nested []*unitDef // units sealed after the enclosing definition
	fields map[*schema.MemberMeta]fieldAccess
}

func newTypeBuilder(b *Builder, meta *schema.TypeMeta) *typeBuilder {
	t := meta.Type
	name := t.Name() + ".TypeAccessor"
	if t.PkgPath() != "" {
		name = t.PkgPath() + "." + name
	}
	return &typeBuilder{
		b:    b,
		meta: meta,
		def: &typeDef{
			name:    name,
			ptrType: reflect.PointerTo(t),
		},
		fields: make(map[*schema.MemberMeta]fieldAccess, len(meta.Fields)),
	}
}

func (tb *typeBuilder) fieldAccess(mm *schema.MemberMeta) fieldAccess {
	fa, ok := tb.fields[mm]
	if !ok {
		fa = newFieldAccess(mm.Type, mm.Offset)
		tb.fields[mm] = fa
	}
	return fa
}

func (tb *typeBuilder) buildCreateInstanceMethods() error {
	defCtor := tb.meta.DefaultCtor
	initCtor := tb.meta.InitCtor

	if defCtor == nil && initCtor == nil {
		return &ConfigError{Type: tb.meta.Type, Err: ErrNoConstructor}
	}

	if defCtor != nil {
		tb.def.create = defCtor
	} else {
		tb.def.create = func() any { return initCtor(nil) }
	}

	if initCtor != nil {
		tb.def.createWithContext = initCtor
	} else {
		tb.def.createWithContext = func(*InitContext) any { return defCtor() }
	}

	return nil
}

func (tb *typeBuilder) buildTypeProperties() {
	tb.def.typ = tb.meta.Type
	tb.def.originalType = tb.meta.OriginalType
}

// members yields the fields, then the non-indexed properties.
func (tb *typeBuilder) members() iter.Seq[*schema.MemberMeta] {
	return func(yield func(*schema.MemberMeta) bool) {
		for _, f := range tb.meta.Fields {
			if !yield(f) {
				return
			}
		}
		for _, p := range tb.meta.Properties {
			if p.IsIndexed {
				continue
			}
			if !yield(p) {
				return
			}
		}
	}
}

func (tb *typeBuilder) buildMembers() {
	for mm := range tb.members() {
		tb.buildMember(mm)
	}
}

func (tb *typeBuilder) buildMember(mm *schema.MemberMeta) {
	nested := &unitDef{
		name:      tb.def.name + ".Accessor$" + mm.Name,
		ownerType: tb.meta.Type,
		ptrType:   tb.def.ptrType,
	}

	tb.buildInitMember(mm, nested)
	tb.buildGetter(mm, nested)
	tb.buildSetter(mm, nested)

	if tb.b.eagerFinalize {
		nested.seal()
		return
	}
	tb.nested = append(tb.nested, nested)
}

// buildInitMember appends the registration of mm to the accessor's
// initialization path.
func (tb *typeBuilder) buildInitMember(mm *schema.MemberMeta, nested *unitDef) {
	kind, name := mm.Kind, mm.Name
	tb.def.inits = append(tb.def.inits, func(ta *TypeAccessor) {
		ta.addMember(nested.newUnit(ta.member(kind, name)))
	})
}

func (tb *typeBuilder) buildGetter(mm *schema.MemberMeta, nested *unitDef) {
	if mm.IsField() {
		fa := tb.fieldAccess(mm)
		nested.get = func(instance reflect.Value) any {
			return fa.get(instance.UnsafePointer())
		}
		nested.hasGetter = true
		return
	}

	getMethod := mm.Getter
	if getMethod == nil {
		if tb.meta.IsDecorated() {
			getMethod = tb.b.schema.GetterFallback(tb.meta.Type, mm.Name, mm.Type)
		}
		if getMethod == nil {
			return
		}
	}

	fn := getMethod.Func
	nested.get = func(instance reflect.Value) any {
		return fn.Call([]reflect.Value{instance})[0].Interface()
	}
	nested.hasGetter = true
}

func (tb *typeBuilder) buildSetter(mm *schema.MemberMeta, nested *unitDef) {
	if mm.IsField() {
		fa := tb.fieldAccess(mm)
		nested.set = func(instance reflect.Value, value any) error {
			return fa.set(instance.UnsafePointer(), value)
		}
		nested.hasSetter = true
		return
	}

	setMethod := mm.Setter
	if setMethod == nil {
		if tb.meta.IsDecorated() {
			setMethod = tb.b.schema.SetterFallback(tb.meta.Type, mm.Name, mm.Type)
		}
		if setMethod == nil {
			return
		}
	}

	fn := setMethod.Func
	valueType := mm.Type
	nested.set = func(instance reflect.Value, value any) error {
		v, err := unwrapValue(value, valueType)
		if err != nil {
			return err
		}
		fn.Call([]reflect.Value{instance, v})
		return nil
	}
	nested.hasSetter = true
}

// create closes the accessor definition, seals the deferred units and
// instantiates the accessor, running every member registration once.
// Units must be sealed before the first registration runs.
func (tb *typeBuilder) create(id ulid.ULID) *TypeAccessor {
	for _, nested := range tb.nested {
		nested.seal()
	}

	def := tb.def
	ta := &TypeAccessor{
		name:              def.name,
		typ:               def.typ,
		originalType:      def.originalType,
		ptrType:           def.ptrType,
		meta:              tb.meta,
		buildID:           id,
		create:            def.create,
		createWithContext: def.createWithContext,
		slots:             make(map[slotKey]*MemberInfo, len(def.inits)),
		members:           make(map[string]*MemberAccessor, len(def.inits)),
		order:             make([]string, 0, len(def.inits)),
	}

	for _, register := range def.inits {
		register(ta)
	}

	return ta
}
