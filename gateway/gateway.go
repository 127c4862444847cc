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

package gateway

import (
	"fmt"
	"net/http"
	"time"

	"github.com/blackroad/llm-gateway/gateway/journal"
	"github.com/blackroad/llm-gateway/gateway/llm"
	"github.com/blackroad/llm-gateway/gateway/llm/anthropic"
	"github.com/blackroad/llm-gateway/gateway/llm/gemini"
	"github.com/blackroad/llm-gateway/gateway/llm/ollama"
	"github.com/blackroad/llm-gateway/gateway/llm/openai"
	"github.com/blackroad/llm-gateway/gateway/policy"
	"github.com/blackroad/llm-gateway/gateway/ratelimit"
	"github.com/blackroad/llm-gateway/shared/logger"
)

// Version identifies the gateway build in health payloads.
const Version = "2.0.0"

// Gateway bundles the request pipeline's collaborators: the provider
// registry and dispatcher, policy and prompt stores, rate limiter,
// metrics, journal, and access log.
type Gateway struct {
	cfg        *Config
	log        *logger.Logger
	registry   *llm.Registry
	dispatcher *llm.Dispatcher
	policies   *policy.Store
	prompts    *policy.PromptStore
	limiter    *ratelimit.Limiter
	journal    *journal.Journal
	metrics    *MetricsCollector
	access     *AccessLog
	httpClient *http.Client
	startTime  time.Time
}

// New assembles a gateway from its configuration.
func New(cfg *Config) (*Gateway, error) {
	jrnl, err := journal.Open(cfg.JournalDir)
	if err != nil {
		return nil, fmt.Errorf("failed to open memory journal: %w", err)
	}

	g := &Gateway{
		cfg:        cfg,
		log:        logger.New("gateway"),
		registry:   llm.NewRegistry(),
		policies:   policy.NewStore(cfg.PolicyPath),
		prompts:    policy.NewPromptStore(cfg.PromptPath),
		limiter:    ratelimit.New(),
		journal:    jrnl,
		metrics:    NewMetricsCollector(),
		access:     NewAccessLog(cfg.LogPath),
		httpClient: &http.Client{Timeout: 15 * time.Second},
		startTime:  time.Now(),
	}
	g.dispatcher = llm.NewDispatcher(g.registry)

	if err := g.registerProviders(); err != nil {
		return nil, err
	}

	return g, nil
}

// registerProviders wires every adapter the gateway ships. Adapters are
// always registered; credential checks happen per call so that a missing
// key drives fallback instead of a startup failure.
func (g *Gateway) registerProviders() error {
	providers := []llm.Provider{
		anthropic.NewProvider(anthropic.Config{}),
		openai.NewProvider(openai.Config{}),
		gemini.NewProvider(gemini.Config{}),
		ollama.NewProvider(ollama.Config{
			Endpoint: getEnv("OLLAMA_ENDPOINT", ""),
			Model:    getEnv("OLLAMA_MODEL", ""),
		}),
	}

	for _, p := range providers {
		if err := g.registry.Register(p); err != nil {
			return fmt.Errorf("failed to register provider %s: %w", p.Name(), err)
		}
	}

	// "claude" and "anthropic" resolve to the same adapter.
	if err := g.registry.RegisterAlias("claude", "anthropic"); err != nil {
		return fmt.Errorf("failed to register provider alias: %w", err)
	}
	if err := g.registry.RegisterAlias("google", "gemini"); err != nil {
		return fmt.Errorf("failed to register provider alias: %w", err)
	}

	return nil
}

// Registry exposes the provider registry, mainly for tests.
func (g *Gateway) Registry() *llm.Registry {
	return g.registry
}

// Journal exposes the memory journal, mainly for tests.
func (g *Gateway) Journal() *journal.Journal {
	return g.journal
}
