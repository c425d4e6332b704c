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

	"github.com/tomoncle/shelf/orm"
	"github.com/tomoncle/shelf/repository"
	"github.com/tomoncle/shelf/types"
	"github.com/uptrace/bun"
)

type Service[T any] interface {
	// Get returns a single entity by its primary key.
	Get(ctx context.Context, id any) (*T, error)

	// All returns all entities.
	All(ctx context.Context) ([]*T, error)

	// List returns entities that match the provided filter.
	List(ctx context.Context, filter *types.QueryFilter) ([]*T, error)

	// Page returns a paginated list of entities.
	Page(ctx context.Context, page *types.PageRequest) (*types.Pagination[T], error)

	// Update modifies an existing entity.
	Update(ctx context.Context, model *T) error

	// Delete removes an entity by its primary key.
	Delete(ctx context.Context, id any) error

	// Save inserts one or more new entities.
	Save(ctx context.Context, model ...*T) error

	// SaveOrUpdate upserts entities, overwriting fields on a conflict.
	SaveOrUpdate(ctx context.Context, fields []string, conflictKeys []string, model ...*T) error

	// Transaction runs fn with a service bound to one transaction.
	Transaction(ctx context.Context, fn func(ctx context.Context, svc Service[T]) error) error

	// Present loads an entity and serializes it with its virtual attributes.
	Present(ctx context.Context, id any, opts ...orm.SerializeOption) (map[string]any, error)

	// PresentAll serializes every entity with its virtual attributes.
	PresentAll(ctx context.Context, opts ...orm.SerializeOption) ([]map[string]any, error)

	// SelectBuilder returns a Bun select query over the entity's table.
	SelectBuilder() *bun.SelectQuery

	// Repository exposes the underlying repository.
	Repository() repository.Repository[T]
}

type baseServiceImpl[T any] struct {
	inst *orm.Instance
	repo repository.Repository[T]
}

// NewService returns a Service for T over inst. T is registered on inst
// under its type name if it is not registered yet.
func NewService[T any](inst *orm.Instance) (Service[T], error) {
	if _, ok := orm.NameFor[T](inst); !ok {
		if _, err := orm.Define[T](inst, ""); err != nil {
			return nil, err
		}
	}
	return &baseServiceImpl[T]{inst: inst, repo: repository.NewRepository[T](inst.DB())}, nil
}

func (s *baseServiceImpl[T]) Save(ctx context.Context, model ...*T) error {
	return s.repo.Create(ctx, model...)
}

func (s *baseServiceImpl[T]) SaveOrUpdate(ctx context.Context, fields []string, conflictKeys []string, model ...*T) error {
	return s.repo.Upsert(ctx, fields, conflictKeys, model...)
}

func (s *baseServiceImpl[T]) Get(ctx context.Context, id any) (*T, error) {
	return s.repo.GetOne(ctx, id)
}

func (s *baseServiceImpl[T]) All(ctx context.Context) ([]*T, error) {
	return s.repo.GetAll(ctx)
}

func (s *baseServiceImpl[T]) List(ctx context.Context, filter *types.QueryFilter) ([]*T, error) {
	return s.repo.List(ctx, filter)
}

func (s *baseServiceImpl[T]) Update(ctx context.Context, model *T) error {
	return s.repo.Update(ctx, model)
}

func (s *baseServiceImpl[T]) Delete(ctx context.Context, id any) error {
	return s.repo.Delete(ctx, id)
}

func (s *baseServiceImpl[T]) Page(ctx context.Context, page *types.PageRequest) (*types.Pagination[T], error) {
	return s.repo.Page(ctx, page)
}

func (s *baseServiceImpl[T]) Transaction(ctx context.Context, fn func(ctx context.Context, svc Service[T]) error) error {
	return s.repo.RunInTx(ctx, func(ctx context.Context, repo repository.Repository[T]) error {
		return fn(ctx, &baseServiceImpl[T]{inst: s.inst, repo: repo})
	})
}

func (s *baseServiceImpl[T]) Present(ctx context.Context, id any, opts ...orm.SerializeOption) (map[string]any, error) {
	v, err := s.inst.RequireVirtuals()
	if err != nil {
		return nil, err
	}
	entity, err := s.repo.GetOne(ctx, id)
	if err != nil {
		return nil, err
	}
	return v.Serialize(entity, opts...)
}

func (s *baseServiceImpl[T]) PresentAll(ctx context.Context, opts ...orm.SerializeOption) ([]map[string]any, error) {
	v, err := s.inst.RequireVirtuals()
	if err != nil {
		return nil, err
	}
	entities, err := s.repo.GetAll(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]map[string]any, 0, len(entities))
	for _, entity := range entities {
		m, err := v.Serialize(entity, opts...)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, nil
}

func (s *baseServiceImpl[T]) SelectBuilder() *bun.SelectQuery {
	return s.repo.NewSelect()
}

func (s *baseServiceImpl[T]) Repository() repository.Repository[T] {
	return s.repo
}
