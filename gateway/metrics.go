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
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus metrics, exported at /metrics/prometheus.
var (
	promRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "blackroad_gateway_requests_total",
			Help: "Total number of agent requests processed by the gateway",
		},
		[]string{"status"},
	)
	promRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "blackroad_gateway_request_duration_milliseconds",
			Help:    "Request duration in milliseconds",
			Buckets: []float64{10, 50, 100, 200, 500, 1000, 2000, 5000, 10000, 30000},
		},
		[]string{"type"},
	)
	promProviderCalls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "blackroad_gateway_provider_calls_total",
			Help: "Total number of upstream provider dispatches",
		},
		[]string{"provider", "status"},
	)
	promRateLimited = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "blackroad_gateway_rate_limited_total",
			Help: "Total number of requests rejected by the rate limiter",
		},
	)
)

// MetricsCollector keeps the in-memory request counters surfaced by the
// JSON /metrics endpoint. Counter bumps are lock-guarded; Snapshot takes
// a consistent view.
type MetricsCollector struct {
	mu        sync.RWMutex
	startTime time.Time

	totalRequests int64
	totalOK       int64
	totalErrors   int64
	byAgent       map[string]int64
	byProvider    map[string]int64
}

// MetricsSnapshot is the wire shape of the /metrics payload.
type MetricsSnapshot struct {
	UptimeSeconds float64          `json:"uptime_seconds"`
	TotalRequests int64            `json:"total_requests"`
	TotalOK       int64            `json:"total_ok"`
	TotalErrors   int64            `json:"total_errors"`
	ByAgent       map[string]int64 `json:"by_agent"`
	ByProvider    map[string]int64 `json:"by_provider"`
}

// NewMetricsCollector creates a collector anchored at the current time.
func NewMetricsCollector() *MetricsCollector {
	return &MetricsCollector{
		startTime:  time.Now(),
		byAgent:    make(map[string]int64),
		byProvider: make(map[string]int64),
	}
}

// Record accounts one finished request. The caller passes the status
// actually sent, so metrics always agree with responses. Provider may be
// empty when the request never reached dispatch.
func (m *MetricsCollector) Record(agent, provider string, ok bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.totalRequests++
	if ok {
		m.totalOK++
	} else {
		m.totalErrors++
	}
	if agent != "" {
		m.byAgent[agent]++
	}
	if provider != "" {
		m.byProvider[provider]++
	}
}

// Snapshot returns a consistent copy of all counters.
func (m *MetricsCollector) Snapshot() MetricsSnapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	byAgent := make(map[string]int64, len(m.byAgent))
	for k, v := range m.byAgent {
		byAgent[k] = v
	}
	byProvider := make(map[string]int64, len(m.byProvider))
	for k, v := range m.byProvider {
		byProvider[k] = v
	}

	return MetricsSnapshot{
		UptimeSeconds: time.Since(m.startTime).Seconds(),
		TotalRequests: m.totalRequests,
		TotalOK:       m.totalOK,
		TotalErrors:   m.totalErrors,
		ByAgent:       byAgent,
		ByProvider:    byProvider,
	}
}

// Uptime returns the collector's age.
func (m *MetricsCollector) Uptime() time.Duration {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return time.Since(m.startTime)
}
