package codecs

import (
	"fmt"
	"reflect"
	"sync"

	"github.com/google/uuid"
)

// Dynamic is the "any" marker type: the caller explicitly asked for the
// raw decoded representation (Record/Tuple/Array/Range/scalar) instead
// of a typed struct. It is the ONLY target type the binder falls back
// to dynamic representation for; any other target type that fails
// construction surfaces a decode error instead of silently degrading,
// per the driver's resolved binding policy.
type Dynamic struct {
	Raw any
}

// Constructor is a user- or generated-registered factory: given the
// named fields of a decoded Record, in the codec's field order, it
// builds a value of the target type. Registered per Go type so repeat
// binds skip reflection-based field discovery.
type Constructor func(fields []RecordField) (any, error)

// Binder resolves a decoded wire value into a caller-requested Go type,
// memoizing the chosen strategy per (codec id, target type) so repeat
// executions of the same query against the same struct skip repeated
// reflection. Mirrors the teacher's client_tools.go struct-tag
// resolution for typed Call/Eval results, generalized into the
// multi-strategy factory the richer object/tuple/array shapes need.
type Binder struct {
	mu           sync.RWMutex
	plans        map[bindKey]bindPlan
	constructors map[reflect.Type]Constructor
}

type bindKey struct {
	codecID uuid.UUID
	target  reflect.Type
}

type bindStrategy int

const (
	strategyDynamic bindStrategy = iota
	strategyConstructor
	strategyFieldAssignment
	strategyDirect // decoded value assignable, or same-kind convertible, to target (e.g. string -> string)
)

type bindPlan struct {
	strategy    bindStrategy
	constructor Constructor
	fieldIndex  map[string]int // record field name -> struct field index
}

// NewBinder returns an empty binder.
func NewBinder() *Binder {
	return &Binder{
		plans:        make(map[bindKey]bindPlan),
		constructors: make(map[reflect.Type]Constructor),
	}
}

// RegisterConstructor installs a constructor-by-field-name factory for
// target, taking priority over plain field assignment.
func (b *Binder) RegisterConstructor(target reflect.Type, ctor Constructor) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.constructors[target] = ctor
}

// Bind decodes value (as produced by Codec.Decode) into a new
// reflect.Value of type target, using codecID to memoize the chosen
// plan.
func (b *Binder) Bind(codecID uuid.UUID, value any, target reflect.Type) (reflect.Value, error) {
	if target == reflect.TypeOf(Dynamic{}) {
		return reflect.ValueOf(Dynamic{Raw: value}), nil
	}

	key := bindKey{codecID: codecID, target: target}
	b.mu.RLock()
	plan, ok := b.plans[key]
	b.mu.RUnlock()
	if !ok {
		var err error
		plan, err = b.buildPlan(target, value)
		if err != nil {
			return reflect.Value{}, err
		}
		b.mu.Lock()
		b.plans[key] = plan
		b.mu.Unlock()
	}
	return b.apply(plan, value, target)
}

func (b *Binder) buildPlan(target reflect.Type, value any) (bindPlan, error) {
	_, isRecord := value.(Record)

	if isRecord {
		b.mu.RLock()
		ctor, hasCtor := b.constructors[target]
		b.mu.RUnlock()
		if hasCtor {
			return bindPlan{strategy: strategyConstructor, constructor: ctor}, nil
		}

		structType := target
		if structType.Kind() == reflect.Ptr {
			structType = structType.Elem()
		}
		if structType.Kind() != reflect.Struct {
			return bindPlan{}, fmt.Errorf(
				"codecs: cannot bind object/tuple to non-struct, non-Dynamic target %s", target)
		}
		idx := make(map[string]int)
		for i := 0; i < structType.NumField(); i++ {
			f := structType.Field(i)
			if !f.IsExported() {
				continue
			}
			name := f.Tag.Get("edgedb")
			if name == "" {
				name = f.Name
			}
			idx[name] = i
		}
		// Decoded fields with no matching struct field are ignored
		// here; every struct field is required, so apply() checks
		// that each one was actually supplied by the record.
		return bindPlan{strategy: strategyFieldAssignment, fieldIndex: idx}, nil
	}

	// Scalars, tuples, arrays, ranges: require a directly assignable
	// Go type, or a named type of the same kind the decoded value
	// converts to (e.g. a `type Score int64` target for std::int64).
	valType := reflect.TypeOf(value)
	if valType == nil || !(valType.AssignableTo(target) ||
		(valType.Kind() == target.Kind() && valType.ConvertibleTo(target))) {
		return bindPlan{}, fmt.Errorf(
			"codecs: cannot bind decoded value of type %T to target %s", value, target)
	}
	return bindPlan{strategy: strategyDirect}, nil
}

func (b *Binder) apply(plan bindPlan, value any, target reflect.Type) (reflect.Value, error) {
	switch plan.strategy {
	case strategyDirect:
		v := reflect.ValueOf(value)
		if v.Type() != target {
			v = v.Convert(target)
		}
		return v, nil

	case strategyConstructor:
		rec := value.(Record)
		built, err := plan.constructor(rec.Fields)
		if err != nil {
			return reflect.Value{}, fmt.Errorf("codecs: constructor for %s: %w", target, err)
		}
		return reflect.ValueOf(built), nil

	case strategyFieldAssignment:
		rec := value.(Record)
		structType := target
		ptr := target.Kind() == reflect.Ptr
		if ptr {
			structType = target.Elem()
		}
		out := reflect.New(structType).Elem()
		populated := make(map[int]bool, len(plan.fieldIndex))
		for _, rf := range rec.Fields {
			fieldIdx, ok := plan.fieldIndex[rf.Name]
			if !ok {
				// Extra fields the target struct has no place for
				// are ignored rather than rejected.
				continue
			}
			populated[fieldIdx] = true
			if rf.Value == nil {
				continue
			}
			field := out.Field(fieldIdx)
			fv := reflect.ValueOf(rf.Value)
			if !fv.Type().AssignableTo(field.Type()) {
				return reflect.Value{}, fmt.Errorf(
					"codecs: field %q: cannot assign %s to %s", rf.Name, fv.Type(), field.Type())
			}
			field.Set(fv)
		}
		for name, fieldIdx := range plan.fieldIndex {
			if !populated[fieldIdx] {
				return reflect.Value{}, fmt.Errorf(
					"codecs: target %s field %q was not supplied by the decoded result", target, name)
			}
		}
		if ptr {
			return out.Addr(), nil
		}
		return out, nil

	default:
		return reflect.Value{}, fmt.Errorf("codecs: unknown bind strategy %d", plan.strategy)
	}
}
