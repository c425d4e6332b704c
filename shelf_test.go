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

package shelf

import (
	"context"
	"database/sql"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tomoncle/shelf/database"
	"github.com/tomoncle/shelf/orm"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
)

type Widget struct {
	bun.BaseModel `bun:"table:widgets"`

	ID    int64  `bun:"id,pk,autoincrement"`
	Name  string `bun:"name,notnull"`
	Stock int    `bun:"stock"`
}

func memoryName(t *testing.T) string {
	return "file:" + strings.NewReplacer("/", "_", " ", "_").Replace(t.Name()) + "?mode=memory&cache=shared"
}

func newTestDB(t *testing.T) *bun.DB {
	t.Helper()
	sqldb, err := sql.Open(sqliteshim.ShimName, memoryName(t))
	require.NoError(t, err)
	sqldb.SetMaxOpenConns(1)
	db := bun.NewDB(sqldb, sqlitedialect.New())
	t.Cleanup(func() { _ = db.Close() })
	return db
}

// countingProvider wraps p and counts DB calls.
func countingProvider(p HandleProvider, calls *atomic.Int32) HandleProvider {
	return HandleProviderFunc(func(ctx context.Context) (*bun.DB, error) {
		calls.Add(1)
		return p.DB(ctx)
	})
}

func refusedConfig(t *testing.T) *database.Config {
	cfg := database.DefaultConfig()
	cfg.ConnectionConfig.Type = "postgres"
	cfg.ConnectionConfig.Host = "127.0.0.1"
	cfg.ConnectionConfig.Port = 1
	cfg.ConnectionConfig.DBName = "shelf"
	cfg.ConnectionConfig.ConnectTimeout = 2 * time.Second
	cfg.ConnectionConfig.HealthCheckInterval = 0
	cfg.LogConfig.Level = "error"
	return cfg
}

func TestInitReturnsSameInstance(t *testing.T) {
	in := &initializer{}
	var calls atomic.Int32
	provider := countingProvider(FromDB(newTestDB(t)), &calls)

	first, err := in.init(context.Background(), provider)
	require.NoError(t, err)
	require.NotNil(t, first)

	second, err := in.init(context.Background(), FromDB(newTestDB(t)))
	require.NoError(t, err)

	assert.Same(t, first, second)
	assert.Same(t, first, in.instance())
	assert.Equal(t, int32(1), calls.Load())
	// plugins are not applied again
	assert.Equal(t, []orm.Capability{orm.CapabilityRegistry, orm.CapabilityVirtuals}, second.Capabilities())
}

func TestInitConcurrentCallersShareInstance(t *testing.T) {
	in := &initializer{}
	var calls atomic.Int32
	provider := countingProvider(FromDB(newTestDB(t)), &calls)

	var wg sync.WaitGroup
	results := make([]*orm.Instance, 8)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], _ = in.init(context.Background(), provider)
		}(i)
	}
	wg.Wait()

	for _, inst := range results {
		assert.Same(t, results[0], inst)
	}
	assert.Equal(t, int32(1), calls.Load())
}

func TestOpenEnablesRegistryThenVirtuals(t *testing.T) {
	inst, err := Open(context.Background(), FromDB(newTestDB(t)))
	require.NoError(t, err)

	assert.Equal(t, []orm.Capability{orm.CapabilityRegistry, orm.CapabilityVirtuals}, inst.Capabilities())
	assert.True(t, inst.Enabled(orm.CapabilityRegistry))
	assert.True(t, inst.Enabled(orm.CapabilityVirtuals))
}

func TestOpenRegistersWidgetByName(t *testing.T) {
	inst, err := Open(context.Background(), FromDB(newTestDB(t)))
	require.NoError(t, err)

	_, err = orm.Define[Widget](inst, "Widget")
	require.NoError(t, err)

	m, err := inst.Registry().Model("Widget")
	require.NoError(t, err)
	assert.IsType(t, &Widget{}, m)
}

func TestInitConnectionRefused(t *testing.T) {
	in := &initializer{}
	var calls atomic.Int32
	provider := countingProvider(FromConfig(refusedConfig(t)), &calls)

	inst, err := in.init(context.Background(), provider)
	require.Error(t, err)
	assert.Nil(t, inst)
	assert.True(t, database.IsConnectionRefused(err), "got %v", err)
	assert.Contains(t, err.Error(), "failed to obtain connection handle")
	assert.Nil(t, in.instance())

	// the failure is kept; no retry happens
	again, err2 := in.init(context.Background(), FromDB(newTestDB(t)))
	assert.Nil(t, again)
	assert.Equal(t, err, err2)
	assert.Equal(t, int32(1), calls.Load())
}

func TestOpenErrors(t *testing.T) {
	_, err := Open(context.Background(), nil)
	assert.ErrorIs(t, err, ErrNilProvider)

	nilHandle := HandleProviderFunc(func(context.Context) (*bun.DB, error) { return nil, nil })
	_, err = Open(context.Background(), nilHandle)
	assert.ErrorIs(t, err, orm.ErrNilHandle)
}

func TestFromConfigSQLite(t *testing.T) {
	cfg := database.DefaultConfig()
	cfg.ConnectionConfig.Type = "sqlite"
	cfg.ConnectionConfig.DSN = memoryName(t)
	cfg.ConnectionConfig.HealthCheckInterval = 0
	off := false
	cfg.ORMConfig.OutputVirtuals = &off
	cfg.LogConfig.Level = "error"

	provider := FromConfig(cfg)
	inst, err := Open(context.Background(), provider)
	require.NoError(t, err)
	require.NotNil(t, provider.Factory())
	assert.True(t, provider.Factory().GetHealthStatus(context.Background()).Healthy)

	_, err = orm.Define[Widget](inst, "Widget", orm.Computed("label", func(w *Widget) any { return w.Name }))
	require.NoError(t, err)

	out, err := inst.Virtuals().Serialize(&Widget{ID: 1, Name: "cog"})
	require.NoError(t, err)
	assert.NotContains(t, out, "label")

	require.NoError(t, inst.Close())
	assert.Nil(t, provider.Factory().GetDB())
}

func TestPackageInitAndDefault(t *testing.T) {
	inst, err := Init(context.Background(), FromDB(newTestDB(t)))
	require.NoError(t, err)
	assert.Same(t, inst, Default())

	again, err := Init(context.Background(), nil)
	require.NoError(t, err)
	assert.Same(t, inst, again)
}

func TestFromConfigSurvivesReconnect(t *testing.T) {
	ctx := context.Background()
	cfg := database.DefaultConfig()
	cfg.ConnectionConfig.Type = "sqlite"
	cfg.ConnectionConfig.DSN = memoryName(t)
	cfg.ConnectionConfig.HealthCheckInterval = 0
	cfg.LogConfig.Level = "error"

	provider := FromConfig(cfg)
	assert.Same(t, cfg, provider.ConfigLoader())

	inst, err := Open(ctx, provider)
	require.NoError(t, err)
	t.Cleanup(func() { _ = inst.Close() })

	_, err = orm.Define[Widget](inst, "Widget")
	require.NoError(t, err)
	_, err = inst.DB().NewCreateTable().Model((*Widget)(nil)).IfNotExists().Exec(ctx)
	require.NoError(t, err)

	require.NoError(t, provider.Factory().GetManager().Reconnect(ctx))
	assert.Same(t, provider.Factory().GetDB(), inst.DB())

	_, err = inst.DB().NewInsert().Model(&Widget{Name: "cog"}).Exec(ctx)
	require.NoError(t, err)
	q, coll, err := inst.Registry().NewSelect("Widget")
	require.NoError(t, err)
	require.NoError(t, q.Scan(ctx))
	assert.Len(t, *coll.(*[]*Widget), 1)
}
