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
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"strings"
	"time"
)

// DefaultCallTimeout bounds a single provider call.
const DefaultCallTimeout = 30 * time.Second

// Dispatcher executes requests against a primary provider with an ordered
// fallback chain. At most one provider succeeds per dispatch: the first
// successful Invoke wins and no further providers are tried.
type Dispatcher struct {
	registry    *Registry
	callTimeout time.Duration
	logger      *log.Logger
}

// DispatcherOption configures the dispatcher.
type DispatcherOption func(*Dispatcher)

// WithCallTimeout overrides the per-provider-call deadline.
func WithCallTimeout(d time.Duration) DispatcherOption {
	return func(disp *Dispatcher) {
		disp.callTimeout = d
	}
}

// WithDispatcherLogger sets a custom logger.
func WithDispatcherLogger(logger *log.Logger) DispatcherOption {
	return func(disp *Dispatcher) {
		disp.logger = logger
	}
}

// NewDispatcher creates a dispatcher over the given registry.
func NewDispatcher(registry *Registry, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		registry:    registry,
		callTimeout: DefaultCallTimeout,
		logger:      log.New(os.Stdout, "[DISPATCH] ", log.LstdFlags),
	}

	for _, opt := range opts {
		opt(d)
	}

	return d
}

// DispatchResult describes a successful dispatch.
type DispatchResult struct {
	// Output is the generated text from the winning provider.
	Output string

	// Provider is the canonical name of the provider that succeeded.
	Provider string

	// Fallback is true when the winning provider was not the primary.
	Fallback bool

	// Model is the concrete model reported by the adapter, when known.
	Model string
}

// ErrNoProvider is returned when neither the primary nor any chain entry
// resolves to a registered adapter.
var ErrNoProvider = errors.New("No provider available")

// DispatchError aggregates the failures of every attempted provider.
type DispatchError struct {
	Attempts []AttemptError
}

// AttemptError records one failed provider call.
type AttemptError struct {
	Provider string
	Err      error
}

// Error joins each attempted provider and its error message with "; ".
func (e *DispatchError) Error() string {
	parts := make([]string, 0, len(e.Attempts))
	for _, a := range e.Attempts {
		parts = append(parts, fmt.Sprintf("%s: %v", a.Provider, a.Err))
	}
	return strings.Join(parts, "; ")
}

// InvokeWithFallback calls the primary provider and, on failure, each entry
// of the fallback chain in order until one succeeds.
//
// Chain entries equal to the primary (already tried) and entries that do
// not resolve in the registry are skipped. When the primary fails and the
// chain is empty, the primary's error is returned verbatim rather than in
// the composite form. Individual providers are never retried; recovery is
// purely cross-provider.
func (d *Dispatcher) InvokeWithFallback(ctx context.Context, primary string, chain []string, req InvokeRequest) (*DispatchResult, error) {
	var attempts []AttemptError

	primaryKey := normalize(primary)
	primaryTried := false

	if provider, err := d.registry.Get(primary); err == nil {
		primaryTried = true
		resp, callErr := d.call(ctx, provider, req)
		if callErr == nil {
			return &DispatchResult{
				Output:   resp.Output,
				Provider: provider.Name(),
				Fallback: false,
				Model:    resp.Model,
			}, nil
		}
		d.logger.Printf("Primary provider %s failed: %v", provider.Name(), callErr)
		attempts = append(attempts, AttemptError{Provider: provider.Name(), Err: callErr})
	}

	chainTried := 0
	for _, name := range chain {
		if normalize(name) == primaryKey {
			continue
		}
		provider, err := d.registry.Get(name)
		if err != nil {
			d.logger.Printf("Skipping unresolvable fallback provider %q", name)
			continue
		}
		chainTried++
		resp, callErr := d.call(ctx, provider, req)
		if callErr == nil {
			d.logger.Printf("Fallback to %s succeeded", provider.Name())
			return &DispatchResult{
				Output:   resp.Output,
				Provider: provider.Name(),
				Fallback: true,
				Model:    resp.Model,
			}, nil
		}
		d.logger.Printf("Fallback provider %s failed: %v", provider.Name(), callErr)
		attempts = append(attempts, AttemptError{Provider: provider.Name(), Err: callErr})
	}

	if len(attempts) == 0 {
		return nil, ErrNoProvider
	}

	// A failing primary with no usable chain re-raises its error verbatim.
	if primaryTried && chainTried == 0 {
		return nil, attempts[0].Err
	}

	return nil, &DispatchError{Attempts: attempts}
}

// call invokes one provider under the per-call deadline.
func (d *Dispatcher) call(ctx context.Context, provider Provider, req InvokeRequest) (*InvokeResponse, error) {
	callCtx, cancel := context.WithTimeout(ctx, d.callTimeout)
	defer cancel()
	return provider.Invoke(callCtx, req)
}
