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

import "errors"

var (
	ErrNilHandle          = errors.New("orm: connection handle is nil")
	ErrCapabilityOrder    = errors.New("orm: required capability is not active")
	ErrCapabilityDisabled = errors.New("orm: capability is not active")

	ErrInvalidModel   = errors.New("orm: model must be a non-nil pointer to struct")
	ErrDuplicateModel = errors.New("orm: model is already defined in the registry")
	ErrUnknownModel   = errors.New("orm: model is not defined in the registry")

	ErrDuplicateVirtual = errors.New("orm: virtual attribute is already defined")
	ErrVirtualConflict  = errors.New("orm: virtual attribute shadows a column")
	ErrInvalidVirtual   = errors.New("orm: virtual attribute needs a name and a getter")
	ErrReadOnlyVirtual  = errors.New("orm: virtual attribute has no setter")
	ErrUnknownAttribute = errors.New("orm: unknown attribute")
	ErrModelType        = errors.New("orm: model has unexpected type")
)
