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

package database

import (
	"sort"
	"sync"
)

var defaultRegistry = NewModelRegistry()

// Model is a bun model whose table is created by GenerateMapping. Lower
// priorities are created first, so referenced tables should come first.
type Model struct {
	Instance interface{}
	Priority int
}

// ModelRegistry stores models and returns them in a deterministic order.
type ModelRegistry struct {
	mu     sync.RWMutex
	models []Model
}

func NewModelRegistry() *ModelRegistry {
	return &ModelRegistry{}
}

func (r *ModelRegistry) Register(instance interface{}, priority int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.models = append(r.models, Model{Instance: instance, Priority: priority})
}

// Models returns the registered models sorted by ascending priority,
// keeping registration order for equal priorities.
func (r *ModelRegistry) Models() []Model {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]Model, len(r.models))
	copy(result, r.models)
	sort.SliceStable(result, func(i, j int) bool {
		return result[i].Priority < result[j].Priority
	})
	return result
}

func (r *ModelRegistry) Instances() []interface{} {
	models := r.Models()
	out := make([]interface{}, len(models))
	for i, m := range models {
		out[i] = m.Instance
	}
	return out
}

// RegisterModel adds a model to the default registry.
func RegisterModel(instance interface{}, priority int) {
	defaultRegistry.Register(instance, priority)
}

// RegisteredModels returns the default registry's models.
func RegisteredModels() []Model {
	return defaultRegistry.Models()
}
