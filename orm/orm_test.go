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
	"context"
	"database/sql"
	"fmt"
	"math"
	"reflect"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
)

type Widget struct {
	bun.BaseModel `bun:"table:widgets,alias:w"`

	ID         int64     `bun:"id,pk,autoincrement"`
	Name       string    `bun:"name,notnull"`
	PriceCents int64     `bun:"price_cents"`
	CreatedAt  time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp"`
}

type Gadget struct {
	bun.BaseModel `bun:"table:gadgets"`

	ID int64 `bun:"id,pk,autoincrement"`
}

func widgetVirtuals() []Virtual {
	return []Virtual{
		Computed("label", func(w *Widget) any {
			return w.Name + " #" + strconv.FormatInt(w.ID, 10)
		}),
		Accessor("price",
			func(w *Widget) any { return float64(w.PriceCents) / 100 },
			func(w *Widget, v any) error {
				f, ok := v.(float64)
				if !ok {
					return fmt.Errorf("price: unsupported value %T", v)
				}
				w.PriceCents = int64(math.Round(f * 100))
				return nil
			},
		),
	}
}

func newTestDB(t *testing.T) *bun.DB {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	sqldb, err := sql.Open(sqliteshim.ShimName, "file:"+name+"?mode=memory&cache=shared")
	require.NoError(t, err)
	sqldb.SetMaxOpenConns(1)
	db := bun.NewDB(sqldb, sqlitedialect.New())
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func newTestInstance(t *testing.T, opts ...Option) *Instance {
	t.Helper()
	inst, err := New(newTestDB(t), opts...)
	require.NoError(t, err)
	return inst
}

func TestNewActivatesRegistryThenVirtuals(t *testing.T) {
	inst := newTestInstance(t)

	assert.Equal(t, []Capability{CapabilityRegistry, CapabilityVirtuals}, inst.Capabilities())
	assert.True(t, inst.Enabled(CapabilityRegistry))
	assert.True(t, inst.Enabled(CapabilityVirtuals))
	assert.NotNil(t, inst.Registry())
	assert.NotNil(t, inst.Virtuals())
	assert.NotNil(t, inst.DB())
}

func TestNewRejectsNilHandle(t *testing.T) {
	inst, err := New(nil)
	assert.Nil(t, inst)
	assert.ErrorIs(t, err, ErrNilHandle)
}

func TestUseIsIdempotent(t *testing.T) {
	inst, err := NewBase(newTestDB(t))
	require.NoError(t, err)
	assert.Empty(t, inst.Capabilities())

	require.NoError(t, inst.Use(RegistryPlugin()))
	reg := inst.Registry()
	require.NoError(t, inst.Use(RegistryPlugin()))

	assert.Same(t, reg, inst.Registry())
	assert.Equal(t, []Capability{CapabilityRegistry}, inst.Capabilities())
}

func TestVirtualsRequireRegistry(t *testing.T) {
	inst, err := NewBase(newTestDB(t))
	require.NoError(t, err)

	err = inst.Use(VirtualsPlugin())
	assert.ErrorIs(t, err, ErrCapabilityOrder)
	assert.False(t, inst.Enabled(CapabilityVirtuals))
	assert.Nil(t, inst.Virtuals())

	_, err = Define[Widget](inst, "Widget")
	assert.ErrorIs(t, err, ErrCapabilityDisabled)
}

func TestDefaultPluginsOrder(t *testing.T) {
	var caps []Capability
	for _, p := range DefaultPlugins() {
		caps = append(caps, p.Capability())
	}
	assert.Equal(t, []Capability{CapabilityRegistry, CapabilityVirtuals}, caps)
}

func TestCloseUsesCloser(t *testing.T) {
	called := false
	inst, err := New(newTestDB(t), WithCloser(func() error {
		called = true
		return nil
	}))
	require.NoError(t, err)
	require.NoError(t, inst.Close())
	assert.True(t, called)
}

func TestRegistryRegisterAndLookup(t *testing.T) {
	inst := newTestInstance(t)
	reg := inst.Registry()

	require.NoError(t, reg.Register("Widget", (*Widget)(nil)))
	// same name and type again is fine
	require.NoError(t, reg.Register("Widget", &Widget{}))

	typ, ok := reg.Lookup("Widget")
	require.True(t, ok)
	assert.Equal(t, reflect.TypeFor[Widget](), typ)

	name, ok := reg.NameOf(&Widget{})
	assert.True(t, ok)
	assert.Equal(t, "Widget", name)

	m, err := reg.Model("Widget")
	require.NoError(t, err)
	assert.IsType(t, &Widget{}, m)

	coll, err := reg.Collection("Widget")
	require.NoError(t, err)
	assert.IsType(t, &[]*Widget{}, coll)

	assert.Equal(t, []string{"Widget"}, reg.Names())
	assert.Equal(t, 1, reg.Len())
}

func TestRegistryRejectsBadInput(t *testing.T) {
	reg := newTestInstance(t).Registry()

	assert.ErrorIs(t, reg.Register("", &Widget{}), ErrInvalidModel)
	assert.ErrorIs(t, reg.Register("Widget", nil), ErrInvalidModel)
	assert.ErrorIs(t, reg.Register("Widget", Widget{}), ErrInvalidModel)
	assert.ErrorIs(t, reg.Register("Number", new(int)), ErrInvalidModel)

	require.NoError(t, reg.Register("Widget", &Widget{}))
	assert.ErrorIs(t, reg.Register("Widget", &Gadget{}), ErrDuplicateModel)
	assert.ErrorIs(t, reg.Register("OtherWidget", &Widget{}), ErrDuplicateModel)

	_, err := reg.Model("Missing")
	assert.ErrorIs(t, err, ErrUnknownModel)
	_, _, err = reg.NewSelect("Missing")
	assert.ErrorIs(t, err, ErrUnknownModel)
}

func TestRegistryNewSelectByName(t *testing.T) {
	ctx := context.Background()
	inst := newTestInstance(t)
	db := inst.DB()

	_, err := Define[Widget](inst, "Widget")
	require.NoError(t, err)
	_, err = db.NewCreateTable().Model((*Widget)(nil)).IfNotExists().Exec(ctx)
	require.NoError(t, err)
	_, err = db.NewInsert().Model(&[]*Widget{{Name: "bolt"}, {Name: "nut"}}).Exec(ctx)
	require.NoError(t, err)

	q, coll, err := inst.Registry().NewSelect("Widget")
	require.NoError(t, err)
	require.NoError(t, q.Order("id").Scan(ctx))

	widgets := *coll.(*[]*Widget)
	require.Len(t, widgets, 2)
	assert.Equal(t, "bolt", widgets[0].Name)
	assert.Equal(t, "nut", widgets[1].Name)
}

func TestRegistryUnregisterDropsVirtuals(t *testing.T) {
	inst := newTestInstance(t)
	_, err := Define[Widget](inst, "Widget", widgetVirtuals()...)
	require.NoError(t, err)
	assert.Equal(t, []string{"label", "price"}, inst.Virtuals().Attributes("Widget"))

	assert.True(t, inst.Registry().Unregister("Widget"))
	assert.False(t, inst.Registry().Unregister("Widget"))
	_, ok := inst.Registry().Lookup("Widget")
	assert.False(t, ok)

	_, err = inst.Virtuals().Get(&Widget{Name: "x"}, "label")
	assert.ErrorIs(t, err, ErrUnknownAttribute)

	// a fresh definition starts clean
	_, err = Define[Widget](inst, "Widget", widgetVirtuals()...)
	require.NoError(t, err)

	inst.Registry().Reset()
	assert.Zero(t, inst.Registry().Len())
}

func TestDefaultsNameToTypeName(t *testing.T) {
	inst := newTestInstance(t)
	name, err := Define[Gadget](inst, "")
	require.NoError(t, err)
	assert.Equal(t, "Gadget", name)

	got, ok := NameFor[Gadget](inst)
	assert.True(t, ok)
	assert.Equal(t, "Gadget", got)

	_, ok = NameFor[Widget](inst)
	assert.False(t, ok)
}
