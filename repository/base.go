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

package repository

import (
	"context"
	"errors"
	"fmt"
	"reflect"

	"github.com/tomoncle/shelf/types"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/feature"
	"github.com/uptrace/bun/schema"
)

var ErrNoUpsertFields = errors.New("repository: upsert fields cannot be empty")

type baseRepositoryImpl[T any] struct {
	db bun.IDB
}

// NewRepository returns a repository for T backed by db.
func NewRepository[T any](db bun.IDB) Repository[T] {
	return &baseRepositoryImpl[T]{db: db}
}

func (r *baseRepositoryImpl[T]) Dialect() schema.Dialect { return r.db.Dialect() }

func (r *baseRepositoryImpl[T]) NewSelect() *bun.SelectQuery { return r.db.NewSelect().Model((*T)(nil)) }

func (r *baseRepositoryImpl[T]) NewInsert() *bun.InsertQuery { return r.db.NewInsert() }

func (r *baseRepositoryImpl[T]) NewUpdate() *bun.UpdateQuery { return r.db.NewUpdate().Model((*T)(nil)) }

func (r *baseRepositoryImpl[T]) NewDelete() *bun.DeleteQuery { return r.db.NewDelete().Model((*T)(nil)) }

// pk is the first primary key column of T, "id" when T declares none.
func (r *baseRepositoryImpl[T]) pk() bun.Ident {
	table := r.db.Dialect().Tables().Get(reflect.TypeFor[T]())
	if table == nil || len(table.PKs) == 0 {
		return bun.Ident("id")
	}
	return bun.Ident(table.PKs[0].Name)
}

func (r *baseRepositoryImpl[T]) GetOne(ctx context.Context, id any) (*T, error) {
	entity := new(T)
	err := r.db.NewSelect().Model(entity).Where("? = ?", r.pk(), id).Limit(1).Scan(ctx)
	if err != nil {
		return nil, err
	}
	return entity, nil
}

func (r *baseRepositoryImpl[T]) GetAll(ctx context.Context) ([]*T, error) {
	entities := make([]*T, 0)
	err := r.db.NewSelect().Model(&entities).Scan(ctx)
	return entities, err
}

func (r *baseRepositoryImpl[T]) List(ctx context.Context, filter *types.QueryFilter) ([]*T, error) {
	entities := make([]*T, 0)
	if err := applyFilter(r.db.NewSelect().Model(&entities), filter).Scan(ctx); err != nil {
		return nil, err
	}
	return entities, nil
}

func (r *baseRepositoryImpl[T]) Query(ctx context.Context, query string, args ...any) ([]*T, error) {
	return r.List(ctx, types.NewQueryFilter(query, args...))
}

func (r *baseRepositoryImpl[T]) Page(ctx context.Context, pageRequest *types.PageRequest) (*types.Pagination[T], error) {
	if pageRequest == nil {
		pageRequest = types.NewDefaultPageRequest(1, 0)
	}
	pagination := types.NewDefaultPagination[T](pageRequest.GetPage(), pageRequest.GetPageSize())

	total, err := applyFilter(r.db.NewSelect().Model((*T)(nil)), pageRequest.GetFilter()).Count(ctx)
	if err != nil {
		return nil, err
	}
	if total == 0 {
		return pagination, nil
	}

	entities := make([]*T, 0, pageRequest.GetPageSize())
	err = applyFilter(r.db.NewSelect().Model(&entities), pageRequest.GetFilter()).
		Order(pageRequest.GetOrders()...).
		Offset(pageRequest.GetOffset()).
		Limit(pageRequest.GetPageSize()).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	pagination.Total = total
	pagination.Items = entities
	return pagination, nil
}

func applyFilter(q *bun.SelectQuery, filter *types.QueryFilter) *bun.SelectQuery {
	if filter == nil || filter.Schema == "" {
		return q
	}
	return q.Where(filter.Schema, filter.Args...)
}

func (r *baseRepositoryImpl[T]) Create(ctx context.Context, entity ...*T) error {
	return r.CreateWithTx(ctx, r.db, entity...)
}

func (r *baseRepositoryImpl[T]) Upsert(ctx context.Context, fields []string, conflictKeys []string, entity ...*T) error {
	return r.UpsertWithTx(ctx, r.db, fields, conflictKeys, entity...)
}

func (r *baseRepositoryImpl[T]) Update(ctx context.Context, entity *T) error {
	return r.UpdateWithTx(ctx, r.db, entity)
}

func (r *baseRepositoryImpl[T]) Delete(ctx context.Context, id any) error {
	return r.DeleteWithTx(ctx, r.db, id)
}

func (r *baseRepositoryImpl[T]) CreateWithTx(ctx context.Context, tx bun.IDB, entity ...*T) error {
	if len(entity) == 0 {
		return nil
	}
	entities := append([]*T(nil), entity...)
	_, err := tx.NewInsert().Model(&entities).Exec(ctx)
	return err
}

func (r *baseRepositoryImpl[T]) UpdateWithTx(ctx context.Context, tx bun.IDB, entity *T) error {
	_, err := tx.NewUpdate().Model(entity).WherePK().Exec(ctx)
	return err
}

func (r *baseRepositoryImpl[T]) DeleteWithTx(ctx context.Context, tx bun.IDB, id any) error {
	_, err := tx.NewDelete().Model((*T)(nil)).Where("? = ?", r.pk(), id).Exec(ctx)
	return err
}

func (r *baseRepositoryImpl[T]) RunInTx(ctx context.Context, fn func(ctx context.Context, repo Repository[T]) error) error {
	return r.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		return fn(ctx, &baseRepositoryImpl[T]{db: tx})
	})
}

// UpsertWithTx picks the statement form the dialect supports: ON CONFLICT
// for PostgreSQL and SQLite, ON DUPLICATE KEY for MySQL, insert-then-update
// otherwise. conflictKeys default to the primary key and are ignored by
// MySQL, which resolves conflicts on any unique key.
func (r *baseRepositoryImpl[T]) UpsertWithTx(ctx context.Context, tx bun.IDB, fields []string, conflictKeys []string, entity ...*T) error {
	if len(fields) == 0 {
		return ErrNoUpsertFields
	}
	if len(entity) == 0 {
		return nil
	}
	entities := append([]*T(nil), entity...)

	features := tx.Dialect().Features()
	switch {
	case features.Has(feature.InsertOnConflict):
		return r.upsertOnConflict(ctx, tx, fields, conflictKeys, entities)
	case features.Has(feature.InsertOnDuplicateKey):
		return r.upsertOnDuplicateKey(ctx, tx, fields, entities)
	default:
		return r.upsertFallback(ctx, tx, entities)
	}
}

func (r *baseRepositoryImpl[T]) upsertOnDuplicateKey(ctx context.Context, tx bun.IDB, fields []string, entities []*T) error {
	q := tx.NewInsert().Model(&entities).On("DUPLICATE KEY UPDATE")
	for _, field := range fields {
		q = q.Set("? = VALUES(?)", bun.Ident(field), bun.Ident(field))
	}
	_, err := q.Exec(ctx)
	return err
}

func (r *baseRepositoryImpl[T]) upsertOnConflict(ctx context.Context, tx bun.IDB, fields []string, conflictKeys []string, entities []*T) error {
	keys := make([]bun.Ident, 0, len(conflictKeys))
	for _, k := range conflictKeys {
		keys = append(keys, bun.Ident(k))
	}
	if len(keys) == 0 {
		keys = append(keys, r.pk())
	}
	q := tx.NewInsert().Model(&entities).On("CONFLICT (?) DO UPDATE", bun.In(keys))
	for _, field := range fields {
		q = q.Set("? = EXCLUDED.?", bun.Ident(field), bun.Ident(field))
	}
	_, err := q.Exec(ctx)
	return err
}

func (r *baseRepositoryImpl[T]) upsertFallback(ctx context.Context, tx bun.IDB, entities []*T) error {
	for _, entity := range entities {
		_, err := tx.NewInsert().Model(entity).Exec(ctx)
		if err == nil {
			continue
		}
		if _, updateErr := tx.NewUpdate().Model(entity).WherePK().Exec(ctx); updateErr != nil {
			return fmt.Errorf("upsert failed: insert: %v, update: %w", err, updateErr)
		}
	}
	return nil
}
