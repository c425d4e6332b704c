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

// Capability names a behavior layered on an Instance.
type Capability string

const (
	CapabilityRegistry Capability = "registry"
	CapabilityVirtuals Capability = "virtuals"
)

func (c Capability) String() string { return string(c) }

// Plugin installs one capability. The set of plugins is closed: only this
// package can implement install.
type Plugin interface {
	Capability() Capability
	Requires() []Capability
	install(i *Instance) error
}

// DefaultPlugins returns the plugins New applies, in order.
func DefaultPlugins() []Plugin {
	return []Plugin{RegistryPlugin(), VirtualsPlugin()}
}

type registryPlugin struct{}

// RegistryPlugin returns the plugin that enables the model registry.
func RegistryPlugin() Plugin { return registryPlugin{} }

func (registryPlugin) Capability() Capability { return CapabilityRegistry }

func (registryPlugin) Requires() []Capability { return nil }

func (registryPlugin) install(i *Instance) error {
	i.registry = newRegistry(i.db, i.log)
	return nil
}

type virtualsPlugin struct{}

// VirtualsPlugin returns the plugin that enables virtual attributes. It
// requires the registry, since virtuals are declared per model name.
func VirtualsPlugin() Plugin { return virtualsPlugin{} }

func (virtualsPlugin) Capability() Capability { return CapabilityVirtuals }

func (virtualsPlugin) Requires() []Capability { return []Capability{CapabilityRegistry} }

func (virtualsPlugin) install(i *Instance) error {
	v := newVirtuals(i.db, i.registry, i.outputVirtuals)
	i.registry.onUnregister(v.forget)
	i.virtuals = v
	return nil
}
