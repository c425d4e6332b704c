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

// Package shelf builds the ORM instance the rest of an application defines
// its models against: it obtains a connection handle, wraps it with
// orm.New (registry, then virtuals) and hands it out.
//
// Open is the explicit, injectable path. Init/Default keep one instance per
// process for code that cannot thread the instance through.
package shelf

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/tomoncle/shelf/database"
	"github.com/tomoncle/shelf/orm"
	"github.com/uptrace/bun"
)

var ErrNilProvider = errors.New("shelf: handle provider is nil")

// HandleProvider supplies a ready-to-query connection handle.
type HandleProvider interface {
	DB(ctx context.Context) (*bun.DB, error)
}

// HandleProviderFunc adapts a function to HandleProvider.
type HandleProviderFunc func(ctx context.Context) (*bun.DB, error)

func (f HandleProviderFunc) DB(ctx context.Context) (*bun.DB, error) { return f(ctx) }

// FromDB provides an existing handle.
func FromDB(db *bun.DB) HandleProvider {
	return HandleProviderFunc(func(context.Context) (*bun.DB, error) { return db, nil })
}

// ConfigProvider connects through database.Open. The factory it creates
// stays reachable through Factory so callers can check health or close it.
type ConfigProvider struct {
	cfg     *database.Config
	factory *database.BaseDatabaseFactory
}

var _ database.AbstractDatabaseConfigProvider = (*ConfigProvider)(nil)

// FromConfig returns a provider that connects using cfg.
func FromConfig(cfg *database.Config) *ConfigProvider {
	return &ConfigProvider{cfg: cfg}
}

func (p *ConfigProvider) DB(ctx context.Context) (*bun.DB, error) {
	if p.factory != nil {
		return p.factory.GetDB(), nil
	}
	factory, err := database.Open(ctx, p.ConfigLoader())
	if err != nil {
		return nil, err
	}
	p.factory = factory
	return factory.GetDB(), nil
}

// ConfigLoader returns the configuration the provider connects with.
func (p *ConfigProvider) ConfigLoader() *database.Config {
	return p.cfg
}

// Factory returns the factory owning the handle, nil before DB succeeds.
func (p *ConfigProvider) Factory() *database.BaseDatabaseFactory {
	return p.factory
}

// Options returns the ORM options implied by the configuration.
func (p *ConfigProvider) Options() []orm.Option {
	cfg := p.ConfigLoader()
	if cfg == nil {
		return nil
	}
	opts := []orm.Option{orm.WithOutputVirtuals(cfg.ORMConfig.OutputVirtualsOrDefault())}
	if p.factory != nil {
		opts = append(opts, orm.WithCloser(p.factory.Close))
	}
	return opts
}

// Open obtains a handle from provider and builds an ORM instance with the
// registry and virtuals capabilities. Errors from the provider or from
// capability activation are returned wrapped, never retried.
func Open(ctx context.Context, provider HandleProvider, opts ...orm.Option) (*orm.Instance, error) {
	if provider == nil {
		return nil, ErrNilProvider
	}
	db, err := provider.DB(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to obtain connection handle: %w", err)
	}
	if cp, ok := provider.(*ConfigProvider); ok {
		opts = append(cp.Options(), opts...)
	}
	inst, err := orm.New(db, opts...)
	if err != nil {
		if cp, ok := provider.(*ConfigProvider); ok {
			_ = cp.factory.Close()
		}
		return nil, fmt.Errorf("failed to initialize orm instance: %w", err)
	}
	return inst, nil
}

// initializer runs Open at most once.
type initializer struct {
	once sync.Once
	mu   sync.RWMutex
	inst *orm.Instance
	err  error
}

func (in *initializer) init(ctx context.Context, provider HandleProvider, opts ...orm.Option) (*orm.Instance, error) {
	in.once.Do(func() {
		inst, err := Open(ctx, provider, opts...)
		in.mu.Lock()
		in.inst, in.err = inst, err
		in.mu.Unlock()
	})
	in.mu.RLock()
	defer in.mu.RUnlock()
	return in.inst, in.err
}

func (in *initializer) instance() *orm.Instance {
	in.mu.RLock()
	defer in.mu.RUnlock()
	return in.inst
}

var std = &initializer{}

// Init builds the process-wide instance on first call. Later calls ignore
// their arguments and return the first result, error included.
func Init(ctx context.Context, provider HandleProvider, opts ...orm.Option) (*orm.Instance, error) {
	return std.init(ctx, provider, opts...)
}

// Default returns the process-wide instance, or nil if Init has not
// succeeded.
func Default() *orm.Instance {
	return std.instance()
}
