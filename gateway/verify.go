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
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/blackroad/llm-gateway/gateway/llm"
	"github.com/blackroad/llm-gateway/gateway/policy"
)

// sensitiveClaimPattern routes security-adjacent claims to the audit
// agent instead of the general analyst.
var sensitiveClaimPattern = regexp.MustCompile(`(?i)password|secret|key|token|vulnerability|exploit|breach|hack`)

// verifyPrompt demands a bare JSON object so the verdict can be
// machine-parsed from model output.
const verifyPrompt = `You are a claim verification engine. Assess the claim below and respond with ONLY a JSON object, no prose before or after, of the form:
{"verdict": "true" | "false" | "unverified" | "conflicting", "confidence": <number 0..1>, "reasoning": "<one short paragraph>", "flags": ["<optional concern>", ...]}`

// VerifyRequest is the inbound envelope for POST /v1/verify.
type VerifyRequest struct {
	Claim               string   `json:"claim"`
	Sources             []string `json:"sources,omitempty"`
	ConfidenceThreshold *float64 `json:"confidence_threshold,omitempty"`
}

// VerifyResponse is the outbound verdict envelope.
type VerifyResponse struct {
	Status         string   `json:"status"`
	Verdict        string   `json:"verdict"`
	Confidence     float64  `json:"confidence"`
	Reasoning      string   `json:"reasoning"`
	AgentUsed      string   `json:"agent_used"`
	SourcesChecked int      `json:"sources_checked"`
	Flags          []string `json:"flags"`
	Timestamp      string   `json:"timestamp"`
	RequestID      string   `json:"request_id"`
	Error          string   `json:"error,omitempty"`
}

// verifyVerdict is the shape the model is asked to emit.
type verifyVerdict struct {
	Verdict    string   `json:"verdict"`
	Confidence float64  `json:"confidence"`
	Reasoning  string   `json:"reasoning"`
	Flags      []string `json:"flags"`
}

// routeClaim picks the internal agent and intent for a claim.
func routeClaim(claim string) (agent, intent string) {
	if sensitiveClaimPattern.MatchString(claim) {
		return "cipher", "audit"
	}
	return "prism", "analyze"
}

// extractJSON returns the first balanced top-level JSON object in s,
// respecting string literals and escapes, or "" when none is found.
func extractJSON(s string) string {
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return ""
	}
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[start : i+1]
			}
		}
	}
	return ""
}

// parseVerdict turns raw model output into a normalized verdict.
// Unparseable output degrades to "unverified" with the raw text as
// reasoning rather than failing the request.
func parseVerdict(output string) verifyVerdict {
	fallback := verifyVerdict{
		Verdict:    "unverified",
		Confidence: 0.5,
		Reasoning:  output,
		Flags:      []string{},
	}

	blob := extractJSON(output)
	if blob == "" {
		return fallback
	}
	var v verifyVerdict
	if err := json.Unmarshal([]byte(blob), &v); err != nil {
		return fallback
	}

	switch strings.ToLower(strings.TrimSpace(v.Verdict)) {
	case "true":
		v.Verdict = "true"
	case "false":
		v.Verdict = "false"
	case "conflicting":
		v.Verdict = "conflicting"
	default:
		v.Verdict = "unverified"
	}
	if v.Confidence < 0 {
		v.Confidence = 0
	}
	if v.Confidence > 1 {
		v.Confidence = 1
	}
	if v.Flags == nil {
		v.Flags = []string{}
	}
	return v
}

// handleVerify runs the claim verification sub-protocol for
// POST /v1/verify. Claims are routed to an internal agent, dispatched
// through the same policy and fallback machinery as agent calls, and
// the model's JSON verdict is normalized into the response.
func (g *Gateway) handleVerify(w http.ResponseWriter, r *http.Request) {
	startTime := time.Now()
	requestID := uuid.NewString()

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, g.cfg.MaxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			sendError(w, "Request body too large", http.StatusRequestEntityTooLarge)
			return
		}
		sendError(w, "Invalid JSON", http.StatusBadRequest)
		return
	}
	var req VerifyRequest
	if err := json.Unmarshal(body, &req); err != nil {
		sendError(w, "Invalid JSON", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.Claim) == "" {
		sendError(w, "Missing required field: claim", http.StatusBadRequest)
		return
	}

	agent, intent := routeClaim(req.Claim)

	doc, err := g.policies.Load()
	if err != nil {
		sendError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	agentPolicy, err := doc.Resolve(agent, intent)
	if err != nil {
		sendError(w, err.Error(), http.StatusForbidden)
		return
	}
	picked := doc.PickProvider("", agentPolicy, intent)
	if picked == "" {
		sendError(w, "Provider not configured", http.StatusBadRequest)
		return
	}

	input := fmt.Sprintf("Claim: %s", req.Claim)
	if len(req.Sources) > 0 {
		input += "\n\nSources:\n- " + strings.Join(req.Sources, "\n- ")
	}

	chain := make([]string, 0, len(agentPolicy.FallbackChain))
	for _, name := range agentPolicy.FallbackChain {
		if agentPolicy.AllowsProvider(name) {
			chain = append(chain, name)
		}
	}

	prompts, perr := g.prompts.Load()
	if perr != nil {
		prompts = nil
	}
	system := policy.Compose(prompts, agent, intent, nil)
	if system != "" {
		system += "\n\n" + verifyPrompt
	} else {
		system = verifyPrompt
	}

	result, err := g.dispatcher.InvokeWithFallback(r.Context(), picked, chain, llm.InvokeRequest{
		Input:     input,
		System:    system,
		RequestID: requestID,
		Agent:     agent,
		Intent:    intent,
	})
	latencyMs := time.Since(startTime).Milliseconds()
	if err != nil {
		promRequestsTotal.WithLabelValues("error").Inc()
		promRequestDuration.WithLabelValues("verify").Observe(float64(latencyMs))
		g.metrics.Record(agent, picked, false)
		writeJSON(w, http.StatusInternalServerError, VerifyResponse{
			Status:     "error",
			Verdict:    "unverified",
			Confidence: 0,
			AgentUsed:  agent,
			Flags:      []string{},
			Timestamp:  time.Now().UTC().Format(time.RFC3339),
			RequestID:  requestID,
			Error:      err.Error(),
		})
		return
	}

	verdict := parseVerdict(result.Output)
	promRequestsTotal.WithLabelValues("ok").Inc()
	promRequestDuration.WithLabelValues("verify").Observe(float64(latencyMs))
	promProviderCalls.WithLabelValues(result.Provider, "ok").Inc()
	g.metrics.Record(agent, result.Provider, true)

	go func() {
		if _, jerr := g.journal.Record(map[string]interface{}{
			"type":       "verify",
			"agent":      agent,
			"intent":     intent,
			"provider":   result.Provider,
			"verdict":    verdict.Verdict,
			"confidence": verdict.Confidence,
			"status":     "ok",
			"request_id": requestID,
			"latency_ms": latencyMs,
		}); jerr != nil {
			log.Printf("[JOURNAL] append failed: %v", jerr)
		}
	}()

	writeJSON(w, http.StatusOK, VerifyResponse{
		Status:         "ok",
		Verdict:        verdict.Verdict,
		Confidence:     verdict.Confidence,
		Reasoning:      verdict.Reasoning,
		AgentUsed:      agent,
		SourcesChecked: len(req.Sources),
		Flags:          verdict.Flags,
		Timestamp:      time.Now().UTC().Format(time.RFC3339),
		RequestID:      requestID,
	})
}
