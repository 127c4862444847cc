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
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRouteClaim(t *testing.T) {
	cases := []struct {
		claim      string
		wantAgent  string
		wantIntent string
	}{
		{"The sky is blue", "prism", "analyze"},
		{"This library leaks the API key", "cipher", "audit"},
		{"A PASSWORD was found in the logs", "cipher", "audit"},
		{"The new exploit affects v2", "cipher", "audit"},
		{"Tokyo is the capital of Japan", "prism", "analyze"},
	}

	for _, tc := range cases {
		agent, intent := routeClaim(tc.claim)
		assert.Equal(t, tc.wantAgent, agent, tc.claim)
		assert.Equal(t, tc.wantIntent, intent, tc.claim)
	}
}

func TestExtractJSON(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{"bare object", `{"verdict": "verified"}`, `{"verdict": "verified"}`},
		{"leading prose", `Sure! Here it is: {"verdict": "refuted"} hope that helps`, `{"verdict": "refuted"}`},
		{"nested braces", `{"a": {"b": 1}, "c": 2} trailing`, `{"a": {"b": 1}, "c": 2}`},
		{"braces inside strings", `{"reasoning": "uses { and } freely"}`, `{"reasoning": "uses { and } freely"}`},
		{"escaped quotes", `{"reasoning": "she said \"{\" aloud"}`, `{"reasoning": "she said \"{\" aloud"}`},
		{"no object", `no json here`, ""},
		{"unbalanced", `{"verdict": "verified"`, ""},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, extractJSON(tc.in))
		})
	}
}

func TestParseVerdict(t *testing.T) {
	t.Run("well formed", func(t *testing.T) {
		v := parseVerdict(`{"verdict": "True", "confidence": 0.92, "reasoning": "checks out", "flags": ["minor"]}`)
		assert.Equal(t, "true", v.Verdict)
		assert.Equal(t, 0.92, v.Confidence)
		assert.Equal(t, "checks out", v.Reasoning)
		assert.Equal(t, []string{"minor"}, v.Flags)
	})

	t.Run("unknown verdict normalizes", func(t *testing.T) {
		v := parseVerdict(`{"verdict": "maybe", "confidence": 0.4, "reasoning": ""}`)
		assert.Equal(t, "unverified", v.Verdict)
	})

	t.Run("conflicting is preserved", func(t *testing.T) {
		v := parseVerdict(`{"verdict": "conflicting", "confidence": 0.6}`)
		assert.Equal(t, "conflicting", v.Verdict)
	})

	t.Run("confidence clamps", func(t *testing.T) {
		high := parseVerdict(`{"verdict": "true", "confidence": 3.5}`)
		assert.Equal(t, 1.0, high.Confidence)

		low := parseVerdict(`{"verdict": "false", "confidence": -2}`)
		assert.Equal(t, 0.0, low.Confidence)
	})

	t.Run("unparseable output degrades", func(t *testing.T) {
		raw := "I think it is probably true."
		v := parseVerdict(raw)
		assert.Equal(t, "unverified", v.Verdict)
		assert.Equal(t, 0.5, v.Confidence)
		assert.Equal(t, raw, v.Reasoning)
		assert.Empty(t, v.Flags)
	})

	t.Run("nil flags become empty slice", func(t *testing.T) {
		v := parseVerdict(`{"verdict": "true", "confidence": 0.8}`)
		assert.NotNil(t, v.Flags)
	})
}

func TestHandleVerify(t *testing.T) {
	steady := &stubProvider{
		name:   "steady",
		output: `{"verdict": "true", "confidence": 0.9, "reasoning": "well documented", "flags": []}`,
	}
	g := newTestGateway(t, steady)

	rec := doRequest(g, "POST", "/v1/verify",
		`{"claim": "Go ships a race detector", "sources": ["https://go.dev/doc/articles/race_detector"]}`)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body := decodeBody(t, rec)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "true", body["verdict"])
	assert.Equal(t, 0.9, body["confidence"])
	assert.Equal(t, "well documented", body["reasoning"])
	assert.Equal(t, "prism", body["agent_used"])
	assert.Equal(t, float64(1), body["sources_checked"])
	assert.NotEmpty(t, body["timestamp"])
}

func TestHandleVerify_SensitiveClaimRouting(t *testing.T) {
	steady := &stubProvider{
		name:   "steady",
		output: `{"verdict": "false", "confidence": 0.7, "reasoning": "no such leak", "flags": ["needs follow-up"]}`,
	}
	g := newTestGateway(t, steady)

	rec := doRequest(g, "POST", "/v1/verify",
		`{"claim": "The gateway leaks its API token"}`)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body := decodeBody(t, rec)
	assert.Equal(t, "cipher", body["agent_used"])
	assert.Equal(t, "false", body["verdict"])
}

func TestHandleVerify_Validation(t *testing.T) {
	g := newTestGateway(t, &stubProvider{name: "steady", output: "{}"})

	t.Run("missing claim", func(t *testing.T) {
		rec := doRequest(g, "POST", "/v1/verify", `{"sources": []}`)
		require.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("invalid JSON", func(t *testing.T) {
		rec := doRequest(g, "POST", "/v1/verify", `{broken`)
		require.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestHandleVerify_BodyLimit(t *testing.T) {
	g := newTestGateway(t, &stubProvider{name: "steady", output: "{}"})

	claim := strings.Repeat("a", 4096)
	rec := doRequest(g, "POST", "/v1/verify", `{"claim": "`+claim+`"}`)
	require.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)

	body := decodeBody(t, rec)
	assert.Equal(t, "Request body too large", body["error"])
}

func TestHandleVerify_ProviderFailure(t *testing.T) {
	g := newTestGateway(t)
	// steady is not registered: prism's only provider cannot resolve.

	rec := doRequest(g, "POST", "/v1/verify", `{"claim": "anything"}`)
	require.Equal(t, http.StatusInternalServerError, rec.Code)

	body := decodeBody(t, rec)
	assert.Equal(t, "error", body["status"])
	assert.Equal(t, "unverified", body["verdict"])

	// The failure counts in the JSON metrics snapshot too.
	snap := g.metrics.Snapshot()
	assert.Equal(t, int64(1), snap.TotalErrors)
	assert.Equal(t, int64(1), snap.ByAgent["prism"])
}
