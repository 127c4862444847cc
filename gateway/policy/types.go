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

// Package policy loads and resolves the declarative agent permission
// matrix and the layered system-prompt document.
package policy

import "strings"

// Document is the top-level policy file: which agents may invoke which
// intents against which providers, with what byte and rate budgets.
type Document struct {
	Version         int                     `json:"version"`
	Global          GlobalPolicy            `json:"global"`
	Agents          map[string]*AgentPolicy `json:"agents"`
	IntentRoutes    map[string]string       `json:"intent_routes,omitempty"`
	DefaultProvider string                  `json:"default_provider,omitempty"`

	// CostTiers is opaque metadata carried through for operators;
	// dispatch never reads it.
	CostTiers map[string]interface{} `json:"cost_tiers,omitempty"`
}

// GlobalPolicy holds defaults applied when an agent omits its own value.
type GlobalPolicy struct {
	RateLimitPerMinute int `json:"rate_limit_per_minute"`
}

// AgentPolicy is one agent's capability envelope.
type AgentPolicy struct {
	Description      string   `json:"description"`
	AllowedIntents   []string `json:"allowed_intents"`
	AllowedProviders []string `json:"allowed_providers"`
	DefaultProvider  string   `json:"default_provider"`
	FallbackChain    []string `json:"fallback_chain,omitempty"`
	MaxInputBytes    int      `json:"max_input_bytes"`

	// RateLimitPerMinute is nil when the agent inherits the global
	// default. 0 disables rate limiting for this agent.
	RateLimitPerMinute *int `json:"rate_limit_per_minute,omitempty"`
}

// AllowsIntent reports whether the intent is in the agent's allowed set.
func (p *AgentPolicy) AllowsIntent(intent string) bool {
	for _, name := range p.AllowedIntents {
		if name == intent {
			return true
		}
	}
	return false
}

// AllowsProvider reports whether the provider is in the agent's allowed
// set. Provider names compare case-insensitively.
func (p *AgentPolicy) AllowsProvider(provider string) bool {
	for _, name := range p.AllowedProviders {
		if strings.EqualFold(name, provider) {
			return true
		}
	}
	return false
}

// EffectiveRateLimit returns the agent's rate limit, falling back to the
// document's global default when the agent omits its own.
func (d *Document) EffectiveRateLimit(p *AgentPolicy) int {
	if p.RateLimitPerMinute != nil {
		return *p.RateLimitPerMinute
	}
	return d.Global.RateLimitPerMinute
}

// PickProvider selects the provider for a request: the explicitly
// requested name if non-empty, else the intent route, else the agent's
// default, else the document default. Returns "" when nothing applies.
// The pipeline separately verifies the pick against allowed_providers.
func (d *Document) PickProvider(requested string, p *AgentPolicy, intent string) string {
	if requested != "" {
		return requested
	}
	if route, ok := d.IntentRoutes[intent]; ok && route != "" {
		return route
	}
	if p.DefaultProvider != "" {
		return p.DefaultProvider
	}
	return d.DefaultProvider
}

// Prompts is the layered system-prompt document.
type Prompts struct {
	Default string            `json:"default"`
	Agents  map[string]string `json:"agents,omitempty"`
	Intents map[string]string `json:"intents,omitempty"`
}
