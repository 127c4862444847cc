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

package policy

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

const testPolicyDoc = `{
  "version": 1,
  "global": {"rate_limit_per_minute": 30},
  "agents": {
    "lucidia": {
      "description": "General reasoning agent",
      "allowed_intents": ["chat", "analyze"],
      "allowed_providers": ["anthropic", "ollama"],
      "default_provider": "anthropic",
      "fallback_chain": ["anthropic", "ollama"],
      "max_input_bytes": 32768
    },
    "cipher": {
      "description": "Security audit agent",
      "allowed_intents": ["audit"],
      "allowed_providers": ["ollama"],
      "default_provider": "ollama",
      "max_input_bytes": 16384,
      "rate_limit_per_minute": 5
    }
  },
  "intent_routes": {"audit": "ollama"},
  "default_provider": "ollama"
}`

func writePolicyFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "agent-permissions.json")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write policy file: %v", err)
	}
	return path
}

func TestStore_Load(t *testing.T) {
	store := NewStore(writePolicyFile(t, testPolicyDoc))

	doc, err := store.Load()
	if err != nil {
		t.Fatalf("Load error = %v", err)
	}
	if len(doc.Agents) != 2 {
		t.Fatalf("Agents = %d, want 2", len(doc.Agents))
	}
	if doc.Global.RateLimitPerMinute != 30 {
		t.Errorf("global rate limit = %d, want 30", doc.Global.RateLimitPerMinute)
	}

	// Unchanged file returns the cached document.
	doc2, err := store.Load()
	if err != nil {
		t.Fatalf("second Load error = %v", err)
	}
	if doc2 != doc {
		t.Error("unchanged file should return the cached document")
	}
}

func TestStore_ReloadOnChange(t *testing.T) {
	path := writePolicyFile(t, testPolicyDoc)
	store := NewStore(path)

	if _, err := store.Load(); err != nil {
		t.Fatalf("Load error = %v", err)
	}

	updated := `{"agents": {"solo": {"description": "", "allowed_intents": ["chat"], "allowed_providers": ["ollama"], "default_provider": "ollama", "max_input_bytes": 1024}}}`
	if err := os.WriteFile(path, []byte(updated), 0o644); err != nil {
		t.Fatalf("rewrite policy file: %v", err)
	}
	// Coarse mtime filesystems need a visible timestamp change.
	future := time.Now().Add(2 * time.Second)
	if err := os.Chtimes(path, future, future); err != nil {
		t.Fatalf("chtimes: %v", err)
	}

	doc, err := store.Load()
	if err != nil {
		t.Fatalf("Load after change error = %v", err)
	}
	if _, ok := doc.Agents["solo"]; !ok {
		t.Error("edited policy file should be picked up without restart")
	}
}

func TestStore_InvalidDocuments(t *testing.T) {
	t.Run("missing file", func(t *testing.T) {
		store := NewStore(filepath.Join(t.TempDir(), "nope.json"))
		if _, err := store.Load(); err == nil {
			t.Fatal("Load should error on a missing file")
		}
	})

	t.Run("invalid JSON", func(t *testing.T) {
		store := NewStore(writePolicyFile(t, "{not json"))
		if _, err := store.Load(); err == nil {
			t.Fatal("Load should error on invalid JSON")
		}
	})

	t.Run("schema violation", func(t *testing.T) {
		// agents must be an object.
		store := NewStore(writePolicyFile(t, `{"agents": ["lucidia"]}`))
		if _, err := store.Load(); err == nil {
			t.Fatal("Load should error when the document fails schema validation")
		}
	})

	t.Run("no agents", func(t *testing.T) {
		store := NewStore(writePolicyFile(t, `{"version": 1}`))
		if _, err := store.Load(); err == nil {
			t.Fatal("Load should error without an agents object")
		}
	})
}

func TestDocument_Resolve(t *testing.T) {
	store := NewStore(writePolicyFile(t, testPolicyDoc))
	doc, err := store.Load()
	if err != nil {
		t.Fatalf("Load error = %v", err)
	}

	t.Run("allowed", func(t *testing.T) {
		p, err := doc.Resolve("lucidia", "chat")
		if err != nil {
			t.Fatalf("Resolve error = %v", err)
		}
		if p.MaxInputBytes != 32768 {
			t.Errorf("MaxInputBytes = %d", p.MaxInputBytes)
		}
	})

	t.Run("unknown agent", func(t *testing.T) {
		_, err := doc.Resolve("ghost", "chat")
		if !errors.Is(err, ErrAgentNotAllowed) {
			t.Fatalf("err = %v, want ErrAgentNotAllowed", err)
		}
	})

	t.Run("intent not allowed", func(t *testing.T) {
		_, err := doc.Resolve("cipher", "chat")
		if !errors.Is(err, ErrIntentNotAllowed) {
			t.Fatalf("err = %v, want ErrIntentNotAllowed", err)
		}
	})
}

func TestDocument_PickProvider(t *testing.T) {
	store := NewStore(writePolicyFile(t, testPolicyDoc))
	doc, err := store.Load()
	if err != nil {
		t.Fatalf("Load error = %v", err)
	}
	lucidia := doc.Agents["lucidia"]

	t.Run("explicit request wins", func(t *testing.T) {
		if got := doc.PickProvider("ollama", lucidia, "audit"); got != "ollama" {
			t.Errorf("PickProvider = %q, want ollama", got)
		}
	})

	t.Run("intent route beats agent default", func(t *testing.T) {
		if got := doc.PickProvider("", lucidia, "audit"); got != "ollama" {
			t.Errorf("PickProvider = %q, want the intent route", got)
		}
	})

	t.Run("agent default", func(t *testing.T) {
		if got := doc.PickProvider("", lucidia, "chat"); got != "anthropic" {
			t.Errorf("PickProvider = %q, want anthropic", got)
		}
	})

	t.Run("document default", func(t *testing.T) {
		bare := &AgentPolicy{}
		if got := doc.PickProvider("", bare, "chat"); got != "ollama" {
			t.Errorf("PickProvider = %q, want the document default", got)
		}
	})
}

func TestDocument_EffectiveRateLimit(t *testing.T) {
	store := NewStore(writePolicyFile(t, testPolicyDoc))
	doc, err := store.Load()
	if err != nil {
		t.Fatalf("Load error = %v", err)
	}

	if got := doc.EffectiveRateLimit(doc.Agents["lucidia"]); got != 30 {
		t.Errorf("lucidia inherits global limit: got %d, want 30", got)
	}
	if got := doc.EffectiveRateLimit(doc.Agents["cipher"]); got != 5 {
		t.Errorf("cipher overrides limit: got %d, want 5", got)
	}
}

func TestAgentPolicy_AllowsProvider(t *testing.T) {
	p := &AgentPolicy{AllowedProviders: []string{"Anthropic", "ollama"}}
	if !p.AllowsProvider("anthropic") {
		t.Error("provider comparison should be case-insensitive")
	}
	if p.AllowsProvider("openai") {
		t.Error("openai is not in the allowed set")
	}
}
