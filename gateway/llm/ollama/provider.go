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

// Package ollama provides the gateway adapter for a local Ollama server.
// Ollama needs no API key; an unreachable endpoint simply fails the call.
package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/blackroad/llm-gateway/gateway/llm"
)

const (
	// DefaultEndpoint is the default local Ollama endpoint
	DefaultEndpoint = "http://127.0.0.1:11434"

	// DefaultModel is the default model tag
	DefaultModel = "llama3.1"
)

// HTTPClient is an interface for HTTP client operations (enables testing)
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Provider implements llm.Provider for Ollama's generate API.
type Provider struct {
	endpoint string
	model    string
	client   HTTPClient
}

// Config contains configuration for the Ollama adapter.
type Config struct {
	Endpoint string        // Optional: server endpoint (default: http://127.0.0.1:11434)
	Model    string        // Optional: model tag (default: llama3.1)
	Timeout  time.Duration // Optional: HTTP timeout
}

// NewProvider creates a new Ollama adapter.
func NewProvider(cfg Config) *Provider {
	if cfg.Endpoint == "" {
		cfg.Endpoint = DefaultEndpoint
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}

	return &Provider{
		endpoint: strings.TrimRight(cfg.Endpoint, "/"),
		model:    cfg.Model,
		client:   &http.Client{Timeout: cfg.Timeout},
	}
}

// Name returns the canonical provider name.
func (p *Provider) Name() string {
	return "ollama"
}

// Invoke generates a completion for the given request.
func (p *Provider) Invoke(ctx context.Context, req llm.InvokeRequest) (*llm.InvokeResponse, error) {
	start := time.Now()

	apiReq := generateRequest{
		Model:  p.model,
		Prompt: req.Input,
		System: req.System,
		Stream: false,
	}

	reqBody, err := json.Marshal(apiReq)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", p.endpoint+"/api/generate", bytes.NewBuffer(reqBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("ollama API error: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("ollama API error (status %d): %s", resp.StatusCode, string(body))
	}

	var apiResp generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	return &llm.InvokeResponse{
		Output:  apiResp.Response,
		Model:   apiResp.Model,
		Latency: time.Since(start),
	}, nil
}

// Internal API types

type generateRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	System string `json:"system,omitempty"`
	Stream bool   `json:"stream"`
}

type generateResponse struct {
	Model    string `json:"model"`
	Response string `json:"response"`
	Done     bool   `json:"done"`
}
