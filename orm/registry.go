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
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
	"github.com/uptrace/bun"
)

// Registry maps model names to model struct types for one Instance.
type Registry struct {
	db  *bun.DB
	log *logrus.Entry

	mu          sync.RWMutex
	byName      map[string]reflect.Type
	byType      map[reflect.Type]string
	unregisters []func(reflect.Type)
}

func newRegistry(db *bun.DB, log *logrus.Entry) *Registry {
	return &Registry{
		db:     db,
		log:    log,
		byName: make(map[string]reflect.Type),
		byType: make(map[reflect.Type]string),
	}
}

func (r *Registry) onUnregister(fn func(reflect.Type)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.unregisters = append(r.unregisters, fn)
}

// Register adds model under name. model must be a pointer to struct, a nil
// typed pointer such as (*Widget)(nil) is fine. Registering the same name
// and type again is a no-op.
func (r *Registry) Register(name string, model any) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("%w: empty model name", ErrInvalidModel)
	}
	typ, err := modelType(model)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.byName[name]; ok {
		if existing == typ {
			return nil
		}
		return fmt.Errorf("%w: %q is bound to %s", ErrDuplicateModel, name, existing)
	}
	if other, ok := r.byType[typ]; ok {
		return fmt.Errorf("%w: %s is registered as %q", ErrDuplicateModel, typ, other)
	}

	r.db.RegisterModel(reflect.New(typ).Interface())
	r.byName[name] = typ
	r.byType[typ] = name
	r.log.WithFields(logrus.Fields{"model": name, "type": typ.String()}).Debug("model registered")
	return nil
}

// Lookup returns the struct type registered under name.
func (r *Registry) Lookup(name string) (reflect.Type, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	typ, ok := r.byName[name]
	return typ, ok
}

func (r *Registry) mustLookup(name string) (reflect.Type, error) {
	typ, ok := r.Lookup(name)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownModel, name)
	}
	return typ, nil
}

// NameOf returns the name model's type is registered under.
func (r *Registry) NameOf(model any) (string, bool) {
	typ, err := modelType(model)
	if err != nil {
		return "", false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	name, ok := r.byType[typ]
	return name, ok
}

// Model returns a new zero value of the named model as a struct pointer.
func (r *Registry) Model(name string) (any, error) {
	typ, err := r.mustLookup(name)
	if err != nil {
		return nil, err
	}
	return reflect.New(typ).Interface(), nil
}

// Collection returns a pointer to an empty slice of struct pointers of the
// named model, ready to be scanned into.
func (r *Registry) Collection(name string) (any, error) {
	typ, err := r.mustLookup(name)
	if err != nil {
		return nil, err
	}
	return reflect.New(reflect.SliceOf(reflect.PointerTo(typ))).Interface(), nil
}

// NewSelect starts a select query over the named model. The second value
// is the collection the query scans into.
func (r *Registry) NewSelect(name string) (*bun.SelectQuery, any, error) {
	coll, err := r.Collection(name)
	if err != nil {
		return nil, nil, err
	}
	return r.db.NewSelect().Model(coll), coll, nil
}

// Names returns registered model names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.byName))
	for name := range r.byName {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Len returns the number of registered models.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byName)
}

// Unregister removes name and everything attached to its type. It reports
// whether name was registered.
func (r *Registry) Unregister(name string) bool {
	r.mu.Lock()
	typ, ok := r.byName[name]
	if ok {
		delete(r.byName, name)
		delete(r.byType, typ)
	}
	hooks := r.unregisters
	r.mu.Unlock()

	if ok {
		for _, fn := range hooks {
			fn(typ)
		}
	}
	return ok
}

// Reset removes every registered model.
func (r *Registry) Reset() {
	for _, name := range r.Names() {
		r.Unregister(name)
	}
}

// Define registers T under name and declares its virtual attributes. An
// empty name defaults to T's type name. It returns the name used.
func Define[T any](inst *Instance, name string, virtuals ...Virtual) (string, error) {
	if name == "" {
		name = reflect.TypeFor[T]().Name()
	}
	reg, err := inst.RequireRegistry()
	if err != nil {
		return "", err
	}
	if err := reg.Register(name, (*T)(nil)); err != nil {
		return "", err
	}
	if len(virtuals) == 0 {
		return name, nil
	}
	v, err := inst.RequireVirtuals()
	if err != nil {
		return "", err
	}
	if err := v.Define(name, virtuals...); err != nil {
		return "", err
	}
	return name, nil
}

// NameFor returns the registered name of T.
func NameFor[T any](inst *Instance) (string, bool) {
	reg := inst.Registry()
	if reg == nil {
		return "", false
	}
	return reg.NameOf((*T)(nil))
}

// modelType returns the struct type behind a pointer-to-struct model.
func modelType(model any) (reflect.Type, error) {
	if model == nil {
		return nil, ErrInvalidModel
	}
	typ := reflect.TypeOf(model)
	if typ.Kind() != reflect.Pointer || typ.Elem().Kind() != reflect.Struct {
		return nil, fmt.Errorf("%w: got %s", ErrInvalidModel, typ)
	}
	return typ.Elem(), nil
}
