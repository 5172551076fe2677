package codecs

import (
	"reflect"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBinderBindsDynamic(t *testing.T) {
	b := NewBinder()
	rec := Record{Fields: []RecordField{{Name: "x", Value: int64(1)}}}

	v, err := b.Bind(uuid.New(), rec, reflect.TypeOf(Dynamic{}))
	require.NoError(t, err)
	dyn := v.Interface().(Dynamic)
	assert.Equal(t, rec, dyn.Raw)
}

// MyScore is a named type distinct from int64 but convertible from it,
// pinning down the strategyDirect conversion path: a bare
// reflect.ValueOf(decodedInt64) would carry dynamic type int64, not
// MyScore, and fail a later .Interface().(MyScore) assertion.
type MyScore int64

func TestBinderDirectStrategyConvertsNamedType(t *testing.T) {
	b := NewBinder()
	codecID := uuid.New()

	v, err := b.Bind(codecID, int64(42), reflect.TypeOf(MyScore(0)))
	require.NoError(t, err)
	require.True(t, v.Type() == reflect.TypeOf(MyScore(0)))

	score, ok := v.Interface().(MyScore)
	require.True(t, ok, "bound value must assert cleanly to the named target type")
	assert.Equal(t, MyScore(42), score)
}

func TestBinderDirectStrategySameType(t *testing.T) {
	b := NewBinder()
	v, err := b.Bind(uuid.New(), "hello", reflect.TypeOf(""))
	require.NoError(t, err)
	assert.Equal(t, "hello", v.Interface().(string))
}

func TestBinderDirectStrategyRejectsIncompatibleType(t *testing.T) {
	b := NewBinder()
	_, err := b.Bind(uuid.New(), "a string", reflect.TypeOf(int64(0)))
	assert.Error(t, err)
}

type Person struct {
	Name string `edgedb:"name"`
	Age  int64  `edgedb:"age"`
}

func TestBinderFieldAssignmentByTag(t *testing.T) {
	b := NewBinder()
	rec := Record{Fields: []RecordField{{Name: "name", Value: "Ada"}, {Name: "age", Value: int64(36)}}}

	v, err := b.Bind(uuid.New(), rec, reflect.TypeOf(Person{}))
	require.NoError(t, err)
	p := v.Interface().(Person)
	assert.Equal(t, "Ada", p.Name)
	assert.Equal(t, int64(36), p.Age)
}

func TestBinderFieldAssignmentIntoPointerTarget(t *testing.T) {
	b := NewBinder()
	rec := Record{Fields: []RecordField{{Name: "name", Value: "Grace"}, {Name: "age", Value: int64(85)}}}

	v, err := b.Bind(uuid.New(), rec, reflect.TypeOf(&Person{}))
	require.NoError(t, err)
	p := v.Interface().(*Person)
	assert.Equal(t, "Grace", p.Name)
	assert.Equal(t, int64(85), p.Age)
}

func TestBinderFieldAssignmentIgnoresExtraField(t *testing.T) {
	b := NewBinder()
	rec := Record{Fields: []RecordField{
		{Name: "name", Value: "Ada"},
		{Name: "age", Value: int64(36)},
		{Name: "nickname", Value: "Ada2"},
	}}

	v, err := b.Bind(uuid.New(), rec, reflect.TypeOf(Person{}))
	require.NoError(t, err)
	p := v.Interface().(Person)
	assert.Equal(t, "Ada", p.Name)
	assert.Equal(t, int64(36), p.Age)
}

func TestBinderFieldAssignmentRejectsMissingRequiredField(t *testing.T) {
	b := NewBinder()
	rec := Record{Fields: []RecordField{{Name: "name", Value: "Ada"}}}

	_, err := b.Bind(uuid.New(), rec, reflect.TypeOf(Person{}))
	assert.Error(t, err)
}

func TestBinderFieldAssignmentSkipsNullValues(t *testing.T) {
	b := NewBinder()
	rec := Record{Fields: []RecordField{{Name: "name", Value: nil}, {Name: "age", Value: int64(1)}}}

	v, err := b.Bind(uuid.New(), rec, reflect.TypeOf(Person{}))
	require.NoError(t, err)
	p := v.Interface().(Person)
	assert.Equal(t, "", p.Name)
	assert.Equal(t, int64(1), p.Age)
}

func TestBinderConstructorTakesPriorityOverFieldAssignment(t *testing.T) {
	b := NewBinder()
	called := false
	b.RegisterConstructor(reflect.TypeOf(Person{}), func(fields []RecordField) (any, error) {
		called = true
		p := Person{}
		for _, f := range fields {
			if f.Name == "name" {
				p.Name = f.Value.(string)
			}
		}
		return p, nil
	})

	rec := Record{Fields: []RecordField{{Name: "name", Value: "Linus"}}}
	v, err := b.Bind(uuid.New(), rec, reflect.TypeOf(Person{}))
	require.NoError(t, err)
	assert.True(t, called)
	assert.Equal(t, "Linus", v.Interface().(Person).Name)
}

func TestBinderMemoizesPlanPerCodecAndTarget(t *testing.T) {
	b := NewBinder()
	codecID := uuid.New()
	rec := Record{Fields: []RecordField{{Name: "name", Value: "A"}, {Name: "age", Value: int64(1)}}}

	_, err := b.Bind(codecID, rec, reflect.TypeOf(Person{}))
	require.NoError(t, err)

	key := bindKey{codecID: codecID, target: reflect.TypeOf(Person{})}
	b.mu.RLock()
	_, ok := b.plans[key]
	b.mu.RUnlock()
	assert.True(t, ok, "bind plan should be cached for repeat binds")
}

func TestBinderRejectsNonStructTarget(t *testing.T) {
	b := NewBinder()
	rec := Record{Fields: []RecordField{{Name: "x", Value: int64(1)}}}

	_, err := b.Bind(uuid.New(), rec, reflect.TypeOf(int64(0)))
	assert.Error(t, err)
}
