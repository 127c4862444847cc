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

// Package llm provides the provider registry and the fallback dispatcher
// that route gateway requests to upstream LLM backends.
package llm

import (
	"context"
	"time"
)

// Provider is the uniform interface every upstream LLM adapter implements.
// Implementations must be safe for concurrent use.
//
// An adapter is a thin shim over a vendor REST API: it takes the composed
// prompt, calls the vendor, and returns generated text or an error. Errors
// drive the dispatcher's fallback chain; adapters never retry on their own.
type Provider interface {
	// Name returns the canonical provider name used for routing,
	// policy checks, metrics, and journal records.
	Name() string

	// Invoke generates text for the given request.
	// The context carries the per-call deadline; implementations must
	// honor cancellation.
	Invoke(ctx context.Context, req InvokeRequest) (*InvokeResponse, error)
}

// InvokeRequest is the uniform payload passed to every adapter.
type InvokeRequest struct {
	// Input is the user-supplied text from the agent call.
	Input string

	// System is the composed system prompt (default + agent + intent +
	// context layers). May be empty.
	System string

	// Context is the caller-supplied context object, passed through for
	// adapters that can use it.
	Context map[string]interface{}

	// RequestID is the gateway request ID, for vendor-side correlation.
	RequestID string

	// Agent and Intent identify the caller and verb, for logging.
	Agent  string
	Intent string
}

// InvokeResponse is the uniform adapter result.
type InvokeResponse struct {
	// Output is the generated text.
	Output string

	// Model is the concrete model that served the call, when known.
	Model string

	// Latency is the wall-clock duration of the vendor call.
	Latency time.Duration
}
