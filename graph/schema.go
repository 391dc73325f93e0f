package graph

import (
	"errors"
	"fmt"
	"reflect"
	"slices"
)

// MergePolicy is how a patch field combines with the state field of the same name.
type MergePolicy string

const (
	// Overwrite replaces the state value when the patch field is set.
	Overwrite MergePolicy = "overwrite"
	// Append concatenates the patch sequence onto the state sequence.
	Append MergePolicy = "append"
)

const mergeTag = "merge"

var (
	// ErrInvalidSchema is returned when state or patch types cannot form a schema.
	ErrInvalidSchema = errors.New("invalid state schema")
)

// StateSchema defines how a patch is merged into the state.
type StateSchema[S, U any] interface {
	// Update merges the patch into the current state and returns the new state.
	Update(current S, patch U) (S, error)

	// Touched returns the names of the fields set in the patch.
	Touched(patch U) []string

	// Policy returns the merge policy of a field and whether the field exists.
	Policy(field string) (MergePolicy, bool)
}

// FieldPolicy is the declared merge policy of a single field.
type FieldPolicy struct {
	Name       string
	Policy     MergePolicy
	stateIndex int
	patchIndex int
}

// StructSchema implements StateSchema for struct state S and struct patch U.
// Every exported field of U must carry a `merge:"overwrite"` or
// `merge:"append"` tag and match a field of S by name:
//
//	overwrite: U field *T, S field T
//	append:    U field []T, S field []T
//
// A nil pointer or empty slice means the field is absent from the patch.
type StructSchema[S, U any] struct {
	fields []FieldPolicy
	byName map[string]int
}

// NewStructSchema builds a schema for S and U, validating every field of U.
func NewStructSchema[S, U any]() (*StructSchema[S, U], error) {
	var s S
	var u U
	st := reflect.TypeOf(s)
	ut := reflect.TypeOf(u)
	if st == nil || st.Kind() != reflect.Struct {
		return nil, fmt.Errorf("%w: state type %v is not a struct", ErrInvalidSchema, st)
	}
	if ut == nil || ut.Kind() != reflect.Struct {
		return nil, fmt.Errorf("%w: patch type %v is not a struct", ErrInvalidSchema, ut)
	}

	schema := &StructSchema[S, U]{byName: make(map[string]int)}
	for i := 0; i < ut.NumField(); i++ {
		pf := ut.Field(i)
		if !pf.IsExported() {
			continue
		}
		policy := MergePolicy(pf.Tag.Get(mergeTag))
		if policy != Overwrite && policy != Append {
			return nil, fmt.Errorf("%w: patch field %s must declare merge:\"overwrite\" or merge:\"append\"", ErrInvalidSchema, pf.Name)
		}
		sf, ok := st.FieldByName(pf.Name)
		if !ok || len(sf.Index) != 1 {
			return nil, fmt.Errorf("%w: patch field %s has no matching state field", ErrInvalidSchema, pf.Name)
		}
		switch policy {
		case Overwrite:
			if pf.Type.Kind() != reflect.Pointer || pf.Type.Elem() != sf.Type {
				return nil, fmt.Errorf("%w: overwrite field %s must be *%v, got %v", ErrInvalidSchema, pf.Name, sf.Type, pf.Type)
			}
		case Append:
			if pf.Type.Kind() != reflect.Slice || pf.Type != sf.Type {
				return nil, fmt.Errorf("%w: append field %s must be %v, got %v", ErrInvalidSchema, pf.Name, sf.Type, pf.Type)
			}
		}
		schema.byName[pf.Name] = len(schema.fields)
		schema.fields = append(schema.fields, FieldPolicy{
			Name:       pf.Name,
			Policy:     policy,
			stateIndex: sf.Index[0],
			patchIndex: i,
		})
	}
	return schema, nil
}

// MustStructSchema is like NewStructSchema but panics on error.
func MustStructSchema[S, U any]() *StructSchema[S, U] {
	schema, err := NewStructSchema[S, U]()
	if err != nil {
		panic(err)
	}
	return schema
}

// Fields returns the declared field policies in patch order.
func (s *StructSchema[S, U]) Fields() []FieldPolicy {
	return slices.Clone(s.fields)
}

// Policy returns the merge policy of a field.
func (s *StructSchema[S, U]) Policy(field string) (MergePolicy, bool) {
	i, ok := s.byName[field]
	if !ok {
		return "", false
	}
	return s.fields[i].Policy, true
}

// Update merges patch into current. The current value is not modified;
// appended sequences always get a fresh backing array.
func (s *StructSchema[S, U]) Update(current S, patch U) (S, error) {
	next := current
	nv := reflect.ValueOf(&next).Elem()
	pv := reflect.ValueOf(patch)

	for _, f := range s.fields {
		src := pv.Field(f.patchIndex)
		dst := nv.Field(f.stateIndex)
		switch f.Policy {
		case Overwrite:
			if src.IsNil() {
				continue
			}
			dst.Set(src.Elem())
		case Append:
			if src.Len() == 0 {
				continue
			}
			merged := reflect.MakeSlice(dst.Type(), 0, dst.Len()+src.Len())
			merged = reflect.AppendSlice(merged, dst)
			merged = reflect.AppendSlice(merged, src)
			dst.Set(merged)
		default:
			return current, fmt.Errorf("%w: unknown policy %q for field %s", ErrInvalidSchema, f.Policy, f.Name)
		}
	}
	return next, nil
}

// Touched returns the names of the fields present in patch.
func (s *StructSchema[S, U]) Touched(patch U) []string {
	pv := reflect.ValueOf(patch)
	var touched []string
	for _, f := range s.fields {
		src := pv.Field(f.patchIndex)
		switch f.Policy {
		case Overwrite:
			if !src.IsNil() {
				touched = append(touched, f.Name)
			}
		case Append:
			if src.Len() > 0 {
				touched = append(touched, f.Name)
			}
		}
	}
	return touched
}
