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

package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPageRequestDefaults(t *testing.T) {
	p := NewDefaultPageRequest(0, 0)
	assert.Equal(t, 1, p.GetPage())
	assert.Equal(t, DefaultPageSize, p.GetPageSize())
	assert.Equal(t, 0, p.GetOffset())

	p = NewDefaultPageRequest(3, 5000)
	assert.Equal(t, MaxPageSize, p.GetPageSize())
	assert.Equal(t, 2*MaxPageSize, p.GetOffset())

	p = NewPageRequestWithOrders(2, 20, []string{"id DESC"})
	assert.Equal(t, 20, p.GetOffset())
	assert.Equal(t, []string{"id DESC"}, p.GetOrders())
	assert.Nil(t, p.GetFilter())
}

func TestQueryFilterAnd(t *testing.T) {
	a := NewQueryFilter("stock > ?", 1)
	b := NewQueryFilter("name = ?", "bolt")

	joined := a.And(b)
	assert.Equal(t, "(stock > ?) AND (name = ?)", joined.Schema)
	assert.Equal(t, []interface{}{1, "bolt"}, joined.Args)
	// operands are left untouched
	assert.Equal(t, []interface{}{1}, a.Args)

	var none *QueryFilter
	assert.Same(t, b, none.And(b))
	assert.Same(t, a, a.And(nil))
}

func TestPaginationPages(t *testing.T) {
	p := NewDefaultPagination[struct{}](1, 10)
	assert.Equal(t, 0, p.TotalPages())
	assert.False(t, p.HasNext())

	p.Total = 21
	assert.Equal(t, 3, p.TotalPages())
	assert.True(t, p.HasNext())
	p.Page = 3
	assert.False(t, p.HasNext())
}

func TestJsonObjectRoundTrip(t *testing.T) {
	obj := JsonObject{"color": "red", "size": float64(3)}
	v, err := obj.Value()
	require.NoError(t, err)

	var fromBytes JsonObject
	require.NoError(t, fromBytes.Scan(v))
	assert.Equal(t, obj, fromBytes)

	var fromString JsonObject
	require.NoError(t, fromString.Scan(string(v.([]byte))))
	assert.Equal(t, obj, fromString)

	var empty JsonObject
	require.NoError(t, empty.Scan(nil))
	assert.NotNil(t, empty)
	assert.Error(t, empty.Scan(42))

	v, err = JsonObject(nil).Value()
	require.NoError(t, err)
	assert.Nil(t, v)
}

func TestJsonArrayScan(t *testing.T) {
	var arr JsonArray
	require.NoError(t, arr.Scan(`[{"a":1},{"b":2}]`))
	require.Len(t, arr, 2)
	assert.Equal(t, float64(1), arr[0]["a"])

	require.NoError(t, arr.Scan(nil))
	assert.Empty(t, arr)
}
