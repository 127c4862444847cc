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
	"fmt"
	"io"
	"net/http"
	"sort"
	"time"

	"github.com/google/uuid"
)

// handleHealth reports liveness plus basic identity. It is exempt from
// the loopback guard so supervisors off-box can probe it.
func (g *Gateway) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "ok",
		"gateway":   "blackroad-llm-gateway",
		"version":   Version,
		"providers": g.registry.List(),
		"uptime":    int64(g.metrics.Uptime().Seconds()),
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// handleMetrics returns the JSON counter snapshot.
func (g *Gateway) handleMetrics(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "ok",
		"metrics": g.metrics.Snapshot(),
	})
}

// handleAgents lists configured agents and their effective limits.
func (g *Gateway) handleAgents(w http.ResponseWriter, r *http.Request) {
	doc, err := g.policies.Load()
	if err != nil {
		sendError(w, err.Error(), http.StatusInternalServerError)
		return
	}

	names := make([]string, 0, len(doc.Agents))
	for name := range doc.Agents {
		names = append(names, name)
	}
	sort.Strings(names)

	agents := make([]map[string]interface{}, 0, len(names))
	for _, name := range names {
		pol := doc.Agents[name]
		agents = append(agents, map[string]interface{}{
			"name":              name,
			"description":       pol.Description,
			"intents":           pol.AllowedIntents,
			"providers":         pol.AllowedProviders,
			"default_provider":  doc.PickProvider("", pol, ""),
			"rate_limit":        doc.EffectiveRateLimit(pol),
			"usage_last_minute": g.limiter.Usage(name),
		})
	}

	// count is the number of distinct agents the metrics have seen,
	// not the number configured.
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status": "ok",
		"count":  len(g.metrics.Snapshot().ByAgent),
		"agents": agents,
	})
}

// handleProviders lists registered provider names.
func (g *Gateway) handleProviders(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "ok",
		"providers": g.registry.List(),
	})
}

// handleMemoryStats returns journal aggregates.
func (g *Gateway) handleMemoryStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status": "ok",
		"memory": g.journal.Stats(),
	})
}

// handleMemoryRecent returns the newest journal entries, newest first.
func (g *Gateway) handleMemoryRecent(w http.ResponseWriter, r *http.Request) {
	limit := parseLimit(r.URL.Query().Get("limit"), 20)
	entries, err := g.journal.Recent(limit)
	if err != nil {
		sendError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "ok",
		"count":   len(entries),
		"entries": entries,
	})
}

// handleMemoryVerify walks the full hash chain on disk and reports the
// first break, if any.
func (g *Gateway) handleMemoryVerify(w http.ResponseWriter, r *http.Request) {
	checked, err := g.journal.VerifyChain()
	if err != nil {
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"status":  "error",
			"valid":   false,
			"checked": checked,
			"error":   err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "ok",
		"valid":   true,
		"checked": checked,
	})
}

// handleWorlds proxies GET requests to the worlds service when one is
// configured.
func (g *Gateway) handleWorlds(w http.ResponseWriter, r *http.Request) {
	if g.cfg.WorldsURL == "" {
		sendError(w, "Worlds service not configured", http.StatusBadGateway)
		return
	}

	upstream := fmt.Sprintf("%s%s", g.cfg.WorldsURL, r.URL.Path)
	if r.URL.RawQuery != "" {
		upstream += "?" + r.URL.RawQuery
	}

	proxyReq, err := http.NewRequestWithContext(r.Context(), http.MethodGet, upstream, nil)
	if err != nil {
		sendError(w, "Upstream request failed", http.StatusBadGateway)
		return
	}
	resp, err := g.httpClient.Do(proxyReq)
	if err != nil {
		sendError(w, "Upstream unavailable", http.StatusBadGateway)
		return
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil || resp.StatusCode != http.StatusOK {
		sendError(w, "Upstream unavailable", http.StatusBadGateway)
		return
	}

	var worlds interface{}
	if err := json.Unmarshal(body, &worlds); err != nil {
		sendError(w, "Upstream returned invalid JSON", http.StatusBadGateway)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status": "ok",
		"worlds": worlds,
	})
}

// handleNotFound is the catch-all for unknown routes.
func (g *Gateway) handleNotFound(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusNotFound, map[string]interface{}{
		"status":     "error",
		"error":      "Not found",
		"request_id": uuid.NewString(),
	})
}
