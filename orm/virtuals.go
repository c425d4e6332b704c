/*
 * Copyright 2025 tomoncle.
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package orm

import (
	"fmt"
	"reflect"
	"sort"
	"sync"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/mitchellh/mapstructure"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/schema"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Virtual is a computed attribute. Get is required; a Virtual without Set
// is read-only.
type Virtual struct {
	Name string
	Get  func(model any) (any, error)
	Set  func(model any, value any) error
}

// Computed builds a read-only virtual for *T.
func Computed[T any](name string, get func(m *T) any) Virtual {
	return Virtual{
		Name: name,
		Get: func(model any) (any, error) {
			m, err := castModel[T](model)
			if err != nil {
				return nil, err
			}
			return get(m), nil
		},
	}
}

// Accessor builds a read-write virtual for *T.
func Accessor[T any](name string, get func(m *T) any, set func(m *T, value any) error) Virtual {
	v := Computed(name, get)
	v.Set = func(model any, value any) error {
		m, err := castModel[T](model)
		if err != nil {
			return err
		}
		return set(m, value)
	}
	return v
}

func castModel[T any](model any) (*T, error) {
	m, ok := model.(*T)
	if !ok || m == nil {
		return nil, fmt.Errorf("%w: want *%s, got %T", ErrModelType, reflect.TypeFor[T](), model)
	}
	return m, nil
}

// Virtuals stores virtual attribute definitions keyed by model type.
type Virtuals struct {
	db       *bun.DB
	registry *Registry
	output   bool

	mu   sync.RWMutex
	defs map[reflect.Type]map[string]Virtual
}

func newVirtuals(db *bun.DB, registry *Registry, output bool) *Virtuals {
	return &Virtuals{
		db:       db,
		registry: registry,
		output:   output,
		defs:     make(map[reflect.Type]map[string]Virtual),
	}
}

func (v *Virtuals) forget(typ reflect.Type) {
	v.mu.Lock()
	defer v.mu.Unlock()
	delete(v.defs, typ)
}

// Define declares virtual attributes on a registered model. Names must be
// unique per model and must not shadow a column.
func (v *Virtuals) Define(modelName string, virtuals ...Virtual) error {
	typ, err := v.registry.mustLookup(modelName)
	if err != nil {
		return err
	}
	table := v.db.Table(typ)

	v.mu.Lock()
	defer v.mu.Unlock()

	defs := v.defs[typ]
	pending := make(map[string]Virtual, len(virtuals))
	for _, vt := range virtuals {
		if vt.Name == "" || vt.Get == nil {
			return fmt.Errorf("%w: model %q", ErrInvalidVirtual, modelName)
		}
		if table.HasField(vt.Name) {
			return fmt.Errorf("%w: %s.%s", ErrVirtualConflict, modelName, vt.Name)
		}
		_, seen := pending[vt.Name]
		if _, exists := defs[vt.Name]; exists || seen {
			return fmt.Errorf("%w: %s.%s", ErrDuplicateVirtual, modelName, vt.Name)
		}
		pending[vt.Name] = vt
	}

	if defs == nil {
		defs = make(map[string]Virtual, len(pending))
		v.defs[typ] = defs
	}
	for name, vt := range pending {
		defs[name] = vt
	}
	return nil
}

// Attributes returns the virtual attribute names of a model, sorted.
func (v *Virtuals) Attributes(modelName string) []string {
	typ, ok := v.registry.Lookup(modelName)
	if !ok {
		return nil
	}
	v.mu.RLock()
	defer v.mu.RUnlock()
	names := make([]string, 0, len(v.defs[typ]))
	for name := range v.defs[typ] {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (v *Virtuals) lookup(typ reflect.Type, attr string) (Virtual, bool) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	vt, ok := v.defs[typ][attr]
	return vt, ok
}

// snapshot copies the virtuals of typ so getters run without the lock held.
func (v *Virtuals) snapshot(typ reflect.Type) []Virtual {
	v.mu.RLock()
	defer v.mu.RUnlock()
	out := make([]Virtual, 0, len(v.defs[typ]))
	for _, vt := range v.defs[typ] {
		out = append(out, vt)
	}
	sort.Slice(out, func(a, b int) bool { return out[a].Name < out[b].Name })
	return out
}

func (v *Virtuals) resolve(model any) (reflect.Type, reflect.Value, *schema.Table, error) {
	typ, err := modelType(model)
	if err != nil {
		return nil, reflect.Value{}, nil, err
	}
	val := reflect.ValueOf(model)
	if val.IsNil() {
		return nil, reflect.Value{}, nil, ErrInvalidModel
	}
	return typ, val.Elem(), v.db.Table(typ), nil
}

// Get reads attr from model. Virtual attributes win over columns; column
// names are the SQL names Bun derives from the struct.
func (v *Virtuals) Get(model any, attr string) (any, error) {
	typ, strct, table, err := v.resolve(model)
	if err != nil {
		return nil, err
	}
	if vt, ok := v.lookup(typ, attr); ok {
		return vt.Get(model)
	}
	if field, ok := table.FieldMap[attr]; ok {
		return field.Value(strct).Interface(), nil
	}
	return nil, fmt.Errorf("%w: %s.%s", ErrUnknownAttribute, typ.Name(), attr)
}

// Set writes attr on model, through the virtual setter when attr is virtual.
func (v *Virtuals) Set(model any, attr string, value any) error {
	typ, strct, table, err := v.resolve(model)
	if err != nil {
		return err
	}
	if vt, ok := v.lookup(typ, attr); ok {
		if vt.Set == nil {
			return fmt.Errorf("%w: %s.%s", ErrReadOnlyVirtual, typ.Name(), attr)
		}
		return vt.Set(model, value)
	}
	if field, ok := table.FieldMap[attr]; ok {
		return assignField(field, strct, value)
	}
	return fmt.Errorf("%w: %s.%s", ErrUnknownAttribute, typ.Name(), attr)
}

// Assign sets several attributes at once. Column values are decoded with
// weak typing, so "42" fills an int column and RFC 3339 strings fill time
// columns. Virtual setters run after all columns are set. Assign is all or
// nothing: when any key or value is rejected the model is left as it was.
func (v *Virtuals) Assign(model any, attrs map[string]any) error {
	typ, strct, table, err := v.resolve(model)
	if err != nil {
		return err
	}

	var columns, virtuals []string
	for k := range attrs {
		vt, isVirtual := v.lookup(typ, k)
		switch {
		case isVirtual && vt.Set == nil:
			return fmt.Errorf("%w: %s.%s", ErrReadOnlyVirtual, typ.Name(), k)
		case isVirtual:
			virtuals = append(virtuals, k)
		case table.HasField(k):
			columns = append(columns, k)
		default:
			return fmt.Errorf("%w: %s.%s", ErrUnknownAttribute, typ.Name(), k)
		}
	}
	sort.Strings(columns)
	sort.Strings(virtuals)

	backup := reflect.New(typ).Elem()
	backup.Set(strct)
	for _, k := range append(columns, virtuals...) {
		if err := v.Set(model, k, attrs[k]); err != nil {
			strct.Set(backup)
			return err
		}
	}
	return nil
}

func assignField(field *schema.Field, strct reflect.Value, value any) error {
	fv := field.Value(strct)
	if value == nil {
		fv.Set(reflect.Zero(fv.Type()))
		return nil
	}
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Result:           fv.Addr().Interface(),
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeHookFunc(time.RFC3339),
			mapstructure.StringToTimeDurationHookFunc(),
		),
	})
	if err != nil {
		return err
	}
	if err := dec.Decode(value); err != nil {
		return fmt.Errorf("column %s: %w", field.Name, err)
	}
	return nil
}

// SerializeOption tunes Serialize and MarshalJSON.
type SerializeOption func(*serializeOptions)

type serializeOptions struct {
	virtuals *bool
	only     map[string]struct{}
}

// WithVirtuals overrides the instance default for including virtuals.
func WithVirtuals(b bool) SerializeOption {
	return func(o *serializeOptions) { o.virtuals = &b }
}

// WithoutVirtuals omits virtual attributes.
func WithoutVirtuals() SerializeOption { return WithVirtuals(false) }

// Only restricts output to the named attributes.
func Only(attrs ...string) SerializeOption {
	return func(o *serializeOptions) {
		if o.only == nil {
			o.only = make(map[string]struct{}, len(attrs))
		}
		for _, a := range attrs {
			o.only[a] = struct{}{}
		}
	}
}

// Serialize returns model's columns, keyed by SQL name, plus its virtual
// attributes unless disabled.
func (v *Virtuals) Serialize(model any, opts ...SerializeOption) (map[string]any, error) {
	typ, strct, table, err := v.resolve(model)
	if err != nil {
		return nil, err
	}
	o := serializeOptions{}
	for _, opt := range opts {
		opt(&o)
	}
	wanted := func(name string) bool {
		if o.only == nil {
			return true
		}
		_, ok := o.only[name]
		return ok
	}

	out := make(map[string]any, len(table.Fields))
	for _, f := range table.Fields {
		if wanted(f.Name) {
			out[f.Name] = f.Value(strct).Interface()
		}
	}

	withVirtuals := v.output
	if o.virtuals != nil {
		withVirtuals = *o.virtuals
	}
	if !withVirtuals {
		return out, nil
	}
	for _, vt := range v.snapshot(typ) {
		if !wanted(vt.Name) {
			continue
		}
		val, err := vt.Get(model)
		if err != nil {
			return nil, fmt.Errorf("virtual %s.%s: %w", typ.Name(), vt.Name, err)
		}
		out[vt.Name] = val
	}
	return out, nil
}

// MarshalJSON encodes Serialize's result.
func (v *Virtuals) MarshalJSON(model any, opts ...SerializeOption) ([]byte, error) {
	m, err := v.Serialize(model, opts...)
	if err != nil {
		return nil, err
	}
	return json.Marshal(m)
}
