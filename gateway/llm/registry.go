// Copyright 2025 BlackRoad
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package llm

import (
	"fmt"
	"log"
	"os"
	"sort"
	"strings"
	"sync"
)

// Registry maps provider names to adapter instances.
// It is thread-safe for concurrent access.
//
// Lookups are case-insensitive, and a name may be registered as an alias
// for another adapter ("claude" and "anthropic" resolve to the same one).
type Registry struct {
	providers map[string]Provider // canonical name -> adapter
	aliases   map[string]string   // alias -> canonical name
	logger    *log.Logger
	mu        sync.RWMutex
}

// RegistryOption configures the registry during creation.
type RegistryOption func(*Registry)

// WithRegistryLogger sets a custom logger for the registry.
func WithRegistryLogger(logger *log.Logger) RegistryOption {
	return func(r *Registry) {
		r.logger = logger
	}
}

// NewRegistry creates a new provider registry.
func NewRegistry(opts ...RegistryOption) *Registry {
	r := &Registry{
		providers: make(map[string]Provider),
		aliases:   make(map[string]string),
		logger:    log.New(os.Stdout, "[LLM_REGISTRY] ", log.LstdFlags),
	}

	for _, opt := range opts {
		opt(r)
	}

	return r
}

// normalize folds a provider name to its lookup form.
func normalize(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// Register adds an adapter under its canonical name.
// Registering a duplicate name returns an error.
func (r *Registry) Register(provider Provider) error {
	if provider == nil {
		return &RegistryError{Code: ErrRegistryInvalidConfig, Message: "provider cannot be nil"}
	}

	name := normalize(provider.Name())
	if name == "" {
		return &RegistryError{Code: ErrRegistryInvalidConfig, Message: "provider name is required"}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.providers[name]; exists {
		return &RegistryError{
			ProviderName: name,
			Code:         ErrRegistryDuplicate,
			Message:      fmt.Sprintf("provider %q already registered", name),
		}
	}

	r.providers[name] = provider
	r.logger.Printf("Registered provider: %s", name)
	return nil
}

// RegisterAlias maps an alternate name onto an already-registered provider.
func (r *Registry) RegisterAlias(alias, canonical string) error {
	alias = normalize(alias)
	canonical = normalize(canonical)

	if alias == "" || canonical == "" {
		return &RegistryError{Code: ErrRegistryInvalidConfig, Message: "alias and canonical name are required"}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.providers[canonical]; !exists {
		return &RegistryError{
			ProviderName: canonical,
			Code:         ErrRegistryNotFound,
			Message:      fmt.Sprintf("provider %q not found", canonical),
		}
	}

	if _, exists := r.providers[alias]; exists {
		return &RegistryError{
			ProviderName: alias,
			Code:         ErrRegistryDuplicate,
			Message:      fmt.Sprintf("alias %q collides with a registered provider", alias),
		}
	}

	r.aliases[alias] = canonical
	r.logger.Printf("Registered alias: %s -> %s", alias, canonical)
	return nil
}

// Get retrieves an adapter by name or alias.
func (r *Registry) Get(name string) (Provider, error) {
	key := normalize(name)

	r.mu.RLock()
	defer r.mu.RUnlock()

	if canonical, ok := r.aliases[key]; ok {
		key = canonical
	}

	provider, exists := r.providers[key]
	if !exists {
		return nil, &RegistryError{
			ProviderName: name,
			Code:         ErrRegistryNotFound,
			Message:      fmt.Sprintf("provider %q not found", name),
		}
	}

	return provider, nil
}

// Has returns true if a name or alias resolves to an adapter.
func (r *Registry) Has(name string) bool {
	_, err := r.Get(name)
	return err == nil
}

// List returns the canonical names of all registered providers, sorted.
// Aliases are not included.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Count returns the number of registered providers, excluding aliases.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.providers)
}

// RegistryError represents an error from registry operations.
type RegistryError struct {
	ProviderName string
	Code         string
	Message      string
}

// Registry error codes.
const (
	// ErrRegistryNotFound indicates the provider was not found.
	ErrRegistryNotFound = "registry_not_found"

	// ErrRegistryDuplicate indicates a provider with that name exists.
	ErrRegistryDuplicate = "registry_duplicate"

	// ErrRegistryInvalidConfig indicates an invalid registration.
	ErrRegistryInvalidConfig = "registry_invalid_config"
)

// Error implements the error interface.
func (e *RegistryError) Error() string {
	if e.ProviderName != "" {
		return fmt.Sprintf("registry error for %q: %s", e.ProviderName, e.Message)
	}
	return fmt.Sprintf("registry error: %s", e.Message)
}
