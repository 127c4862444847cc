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
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/blackroad/llm-gateway/gateway/llm"
	"github.com/blackroad/llm-gateway/gateway/policy"
)

// AgentRequest is the inbound envelope for POST /v1/agent.
type AgentRequest struct {
	Agent    string                 `json:"agent"`
	Intent   string                 `json:"intent"`
	Input    string                 `json:"input"`
	Context  map[string]interface{} `json:"context,omitempty"`
	Provider string                 `json:"provider,omitempty"`
}

// AgentResponse is the uniform outbound envelope. On error, Output is
// always the empty string.
type AgentResponse struct {
	Status    string                 `json:"status"`
	Provider  string                 `json:"provider,omitempty"`
	Output    string                 `json:"output"`
	RequestID string                 `json:"request_id"`
	Error     string                 `json:"error,omitempty"`
	Metadata  map[string]interface{} `json:"metadata"`
}

// validateAgentRequest checks field presence and types on the decoded
// raw payload, returning a typed request or a specific message for the
// 400 response.
func validateAgentRequest(raw map[string]interface{}) (*AgentRequest, error) {
	req := &AgentRequest{}

	for _, field := range []string{"agent", "intent", "input"} {
		v, ok := raw[field]
		if !ok {
			return nil, fmt.Errorf("Missing required field: %s", field)
		}
		s, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("Field %s must be a string", field)
		}
		switch field {
		case "agent":
			req.Agent = s
		case "intent":
			req.Intent = s
		case "input":
			req.Input = s
		}
	}
	if req.Agent == "" {
		return nil, fmt.Errorf("Missing required field: agent")
	}
	if req.Intent == "" {
		return nil, fmt.Errorf("Missing required field: intent")
	}

	if v, ok := raw["context"]; ok && v != nil {
		obj, ok := v.(map[string]interface{})
		if !ok {
			return nil, fmt.Errorf("Field context must be an object")
		}
		req.Context = obj
	}

	if v, ok := raw["provider"]; ok && v != nil {
		s, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("Field provider must be a string")
		}
		req.Provider = s
	}

	return req, nil
}

// handleAgent runs the request pipeline for POST /v1/agent:
// parse, validate, authorize, rate-check, compose, dispatch, respond,
// then metrics/journal/log regardless of outcome.
func (g *Gateway) handleAgent(w http.ResponseWriter, r *http.Request) {
	startTime := time.Now()
	requestID := uuid.NewString()

	var (
		req      *AgentRequest
		provider string
		reserved bool
	)

	// finish sends the response and runs the cross-cutting tail:
	// metrics with the actually-sent status, a detached journal append,
	// and the access log. Journal and log failures never affect the
	// response.
	finish := func(status int, resp AgentResponse) {
		resp.RequestID = requestID
		if resp.Metadata == nil {
			resp.Metadata = map[string]interface{}{}
		}
		latencyMs := time.Since(startTime).Milliseconds()
		if _, ok := resp.Metadata["latency_ms"]; !ok {
			resp.Metadata["latency_ms"] = latencyMs
		}

		writeJSON(w, status, resp)

		ok := resp.Status == "ok"
		agentName, intentName := "", ""
		if req != nil {
			agentName, intentName = req.Agent, req.Intent
		}

		g.metrics.Record(agentName, provider, ok)
		if ok {
			promRequestsTotal.WithLabelValues("ok").Inc()
		} else {
			promRequestsTotal.WithLabelValues("error").Inc()
		}
		promRequestDuration.WithLabelValues("agent").Observe(float64(latencyMs))

		if req != nil {
			entry := map[string]interface{}{
				"type":       "agent_call",
				"agent":      agentName,
				"intent":     intentName,
				"provider":   provider,
				"status":     resp.Status,
				"request_id": requestID,
				"latency_ms": latencyMs,
			}
			if resp.Error != "" {
				entry["error"] = resp.Error
			}
			go func() {
				if _, err := g.journal.Record(entry); err != nil {
					log.Printf("[JOURNAL] append failed: %v", err)
				}
			}()
		}

		g.access.Append(AccessRecord{
			Timestamp:  startTime.UTC().Format(time.RFC3339Nano),
			RequestID:  requestID,
			RemoteAddr: r.RemoteAddr,
			Method:     r.Method,
			Path:       r.URL.Path,
			Agent:      agentName,
			Intent:     intentName,
			Provider:   provider,
			Status:     status,
			LatencyMS:  latencyMs,
			Error:      resp.Error,
		})

		if ok {
			g.log.InfoWithDuration(agentName, requestID, "agent call completed", float64(latencyMs),
				map[string]interface{}{"provider": provider, "intent": intentName})
		} else {
			g.log.ErrorWithCode(agentName, requestID, "agent call failed", status, errors.New(resp.Error),
				map[string]interface{}{"intent": intentName})
		}
	}

	fail := func(status int, message string, metadata map[string]interface{}) {
		if reserved {
			g.limiter.Release(req.Agent)
			reserved = false
		}
		finish(status, AgentResponse{Status: "error", Error: message, Metadata: metadata})
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, g.cfg.MaxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			fail(http.StatusRequestEntityTooLarge, "Request body too large", nil)
			return
		}
		fail(http.StatusBadRequest, "Invalid JSON", nil)
		return
	}

	var raw map[string]interface{}
	if err := json.Unmarshal(body, &raw); err != nil {
		fail(http.StatusBadRequest, "Invalid JSON", nil)
		return
	}

	req, err = validateAgentRequest(raw)
	if err != nil {
		fail(http.StatusBadRequest, err.Error(), nil)
		return
	}

	doc, err := g.policies.Load()
	if err != nil {
		fail(http.StatusInternalServerError, err.Error(), nil)
		return
	}

	agentPolicy, err := doc.Resolve(req.Agent, req.Intent)
	if err != nil {
		fail(http.StatusForbidden, err.Error(), nil)
		return
	}

	// max_input_bytes counts UTF-8 bytes, not runes.
	if agentPolicy.MaxInputBytes > 0 && len(req.Input) > agentPolicy.MaxInputBytes {
		fail(http.StatusRequestEntityTooLarge, "Input too large", nil)
		return
	}

	limit := doc.EffectiveRateLimit(agentPolicy)
	if !g.limiter.Reserve(req.Agent, limit) {
		promRateLimited.Inc()
		fail(http.StatusTooManyRequests, "Rate limit exceeded", map[string]interface{}{
			"limit_per_minute":    limit,
			"retry_after_seconds": 60,
		})
		return
	}
	reserved = limit > 0

	picked := doc.PickProvider(req.Provider, agentPolicy, req.Intent)
	if picked == "" {
		fail(http.StatusBadRequest, "Provider not configured", nil)
		return
	}
	if !agentPolicy.AllowsProvider(picked) {
		fail(http.StatusForbidden, "Provider not allowed", nil)
		return
	}

	prompts, err := g.prompts.Load()
	if err != nil {
		// Missing prompt document degrades to an empty system prompt.
		prompts = nil
	}
	system := policy.Compose(prompts, req.Agent, req.Intent, req.Context)

	// Chain entries outside allowed_providers are policy violations;
	// they are skipped here rather than failing the request.
	chain := make([]string, 0, len(agentPolicy.FallbackChain))
	for _, name := range agentPolicy.FallbackChain {
		if agentPolicy.AllowsProvider(name) {
			chain = append(chain, name)
		}
	}

	result, err := g.dispatcher.InvokeWithFallback(r.Context(), picked, chain, llm.InvokeRequest{
		Input:     req.Input,
		System:    system,
		Context:   req.Context,
		RequestID: requestID,
		Agent:     req.Agent,
		Intent:    req.Intent,
	})
	if err != nil {
		promProviderCalls.WithLabelValues(picked, "error").Inc()
		fail(http.StatusInternalServerError, err.Error(), nil)
		return
	}

	provider = result.Provider
	reserved = false // successful dispatch keeps its rate-limit entry
	promProviderCalls.WithLabelValues(provider, "ok").Inc()

	finish(http.StatusOK, AgentResponse{
		Status:   "ok",
		Provider: provider,
		Output:   result.Output,
		Metadata: map[string]interface{}{
			"latency_ms": time.Since(startTime).Milliseconds(),
			"fallback":   result.Fallback,
		},
	})
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf("Error encoding response: %v", err)
	}
}

// sendError writes the uniform error envelope used outside the agent
// pipeline.
func sendError(w http.ResponseWriter, message string, status int) {
	writeJSON(w, status, map[string]interface{}{
		"status":     "error",
		"error":      message,
		"request_id": uuid.NewString(),
	})
}

// parseLimit reads a positive integer query parameter with a default.
func parseLimit(value string, def int) int {
	if value == "" {
		return def
	}
	n, err := strconv.Atoi(value)
	if err != nil || n <= 0 {
		return def
	}
	return n
}
