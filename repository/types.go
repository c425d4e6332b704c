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

	"github.com/tomoncle/shelf/types"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/schema"
)

// CrudRepository defines basic CRUD operations for a model type.
type CrudRepository[T any] interface {
	GetOne(ctx context.Context, id any) (*T, error)

	GetAll(ctx context.Context) ([]*T, error)

	List(ctx context.Context, filter *types.QueryFilter) ([]*T, error)

	Query(ctx context.Context, query string, args ...any) ([]*T, error)

	Create(ctx context.Context, entity ...*T) error

	// Upsert inserts entities and, on a key conflict, overwrites fields.
	Upsert(ctx context.Context, fields []string, conflictKeys []string, entity ...*T) error

	Update(ctx context.Context, entity *T) error

	Delete(ctx context.Context, id any) error
}

// TransactionRepository runs the write operations against a caller supplied
// bun.IDB, usually a bun.Tx.
type TransactionRepository[T any] interface {
	CreateWithTx(ctx context.Context, tx bun.IDB, entity ...*T) error
	UpsertWithTx(ctx context.Context, tx bun.IDB, fields []string, conflictKeys []string, entity ...*T) error
	UpdateWithTx(ctx context.Context, tx bun.IDB, entity *T) error
	DeleteWithTx(ctx context.Context, tx bun.IDB, id any) error

	// RunInTx calls fn with a repository bound to a new transaction. The
	// transaction commits when fn returns nil and rolls back otherwise.
	RunInTx(ctx context.Context, fn func(ctx context.Context, repo Repository[T]) error) error
}

// PageQueryRepository defines pagination over a model type.
type PageQueryRepository[T any] interface {
	Page(ctx context.Context, page *types.PageRequest) (*types.Pagination[T], error)
}

// Repository combines CRUD, pagination and transactional operations and
// exposes Bun query builders for anything else.
type Repository[T any] interface {
	CrudRepository[T]
	PageQueryRepository[T]
	TransactionRepository[T]
	Dialect() schema.Dialect
	NewSelect() *bun.SelectQuery
	NewInsert() *bun.InsertQuery
	NewUpdate() *bun.UpdateQuery
	NewDelete() *bun.DeleteQuery
}
