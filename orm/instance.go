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
	"slices"
	"sync"

	"github.com/sirupsen/logrus"
	"github.com/tomoncle/shelf/utils"
	"github.com/uptrace/bun"
)

// Instance is an ORM handle bound to one Bun connection. Capabilities are
// added with Use and never removed.
type Instance struct {
	db     *bun.DB
	log    *logrus.Entry
	closer func() error

	outputVirtuals bool

	mu       sync.RWMutex
	caps     []Capability
	registry *Registry
	virtuals *Virtuals
}

// Option configures an Instance at construction time.
type Option func(*Instance)

// WithOutputVirtuals sets whether Serialize includes virtual attributes by
// default. It is true unless changed.
func WithOutputVirtuals(b bool) Option {
	return func(i *Instance) { i.outputVirtuals = b }
}

// WithLogger replaces the "ORM" logger.
func WithLogger(l *logrus.Logger) Option {
	return func(i *Instance) {
		if l != nil {
			i.log = logrus.NewEntry(l)
		}
	}
}

// WithCloser makes Close call fn instead of closing the handle directly,
// for handles owned by someone else.
func WithCloser(fn func() error) Option {
	return func(i *Instance) { i.closer = fn }
}

// NewBase wraps db without any capability.
func NewBase(db *bun.DB, opts ...Option) (*Instance, error) {
	if db == nil {
		return nil, ErrNilHandle
	}
	inst := &Instance{
		db:             db,
		log:            logrus.NewEntry(utils.NewLogger("ORM")),
		outputVirtuals: true,
	}
	for _, opt := range opts {
		opt(inst)
	}
	return inst, nil
}

// New wraps db and activates the registry capability, then virtuals.
func New(db *bun.DB, opts ...Option) (*Instance, error) {
	inst, err := NewBase(db, opts...)
	if err != nil {
		return nil, err
	}
	for _, p := range DefaultPlugins() {
		if err := inst.Use(p); err != nil {
			return nil, err
		}
	}
	inst.log.WithField("capabilities", inst.Capabilities()).Debug("orm instance ready")
	return inst, nil
}

// Use activates p. Activating a capability that is already active is a
// no-op; a plugin whose requirements are not active yet fails with
// ErrCapabilityOrder.
func (i *Instance) Use(p Plugin) error {
	i.mu.Lock()
	defer i.mu.Unlock()

	c := p.Capability()
	if slices.Contains(i.caps, c) {
		return nil
	}
	for _, req := range p.Requires() {
		if !slices.Contains(i.caps, req) {
			return fmt.Errorf("failed to activate %s capability: %w: %s", c, ErrCapabilityOrder, req)
		}
	}
	if err := p.install(i); err != nil {
		return fmt.Errorf("failed to activate %s capability: %w", c, err)
	}
	i.caps = append(i.caps, c)
	i.log.WithField("capability", c).Debug("capability activated")
	return nil
}

// Enabled reports whether c is active.
func (i *Instance) Enabled(c Capability) bool {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return slices.Contains(i.caps, c)
}

// Capabilities returns active capabilities in activation order.
func (i *Instance) Capabilities() []Capability {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return slices.Clone(i.caps)
}

// DB returns the underlying connection handle.
func (i *Instance) DB() *bun.DB {
	return i.db
}

// Registry returns the model registry, or nil when the capability is off.
func (i *Instance) Registry() *Registry {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.registry
}

// Virtuals returns the virtual attribute store, or nil when the capability is off.
func (i *Instance) Virtuals() *Virtuals {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.virtuals
}

// RequireRegistry returns the model registry, or ErrCapabilityDisabled when
// the registry capability is off.
func (i *Instance) RequireRegistry() (*Registry, error) {
	r := i.Registry()
	if r == nil {
		return nil, fmt.Errorf("%w: %s", ErrCapabilityDisabled, CapabilityRegistry)
	}
	return r, nil
}

// RequireVirtuals returns the virtual attribute store, or
// ErrCapabilityDisabled when the virtuals capability is off.
func (i *Instance) RequireVirtuals() (*Virtuals, error) {
	v := i.Virtuals()
	if v == nil {
		return nil, fmt.Errorf("%w: %s", ErrCapabilityDisabled, CapabilityVirtuals)
	}
	return v, nil
}

// Close releases the connection handle.
func (i *Instance) Close() error {
	if i.closer != nil {
		return i.closer()
	}
	return i.db.Close()
}
