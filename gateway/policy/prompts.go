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
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"
)

// PromptStore reads the system-prompt document with the same mtime-based
// caching as the policy store.
type PromptStore struct {
	path string

	mu      sync.Mutex
	cached  *Prompts
	modTime time.Time
}

// NewPromptStore creates a prompt store over the given file path.
func NewPromptStore(path string) *PromptStore {
	return &PromptStore{path: path}
}

// Load returns the current prompt document. A missing or unreadable file
// is not fatal: prompt composition degrades to the empty string.
func (s *PromptStore) Load() (*Prompts, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	info, err := os.Stat(s.path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat prompt file: %w", err)
	}

	if s.cached != nil && info.ModTime().Equal(s.modTime) {
		return s.cached, nil
	}

	raw, err := os.ReadFile(s.path)
	if err != nil {
		return nil, fmt.Errorf("failed to read prompt file: %w", err)
	}

	var prompts Prompts
	if err := json.Unmarshal(raw, &prompts); err != nil {
		return nil, fmt.Errorf("failed to decode prompt file: %w", err)
	}

	s.cached = &prompts
	s.modTime = info.ModTime()
	return &prompts, nil
}

// Compose assembles the layered system prompt: the default fragment, the
// agent fragment, the intent fragment, and the caller context, joined by
// blank lines. Missing fragments are skipped; a nil document composes to
// the empty string.
func Compose(prompts *Prompts, agent, intent string, context map[string]interface{}) string {
	if prompts == nil {
		return ""
	}

	parts := make([]string, 0, 4)
	if prompts.Default != "" {
		parts = append(parts, prompts.Default)
	}
	if fragment, ok := prompts.Agents[agent]; ok && fragment != "" {
		parts = append(parts, fragment)
	}
	if fragment, ok := prompts.Intents[intent]; ok && fragment != "" {
		parts = append(parts, fragment)
	}
	if len(context) > 0 {
		if encoded, err := json.Marshal(context); err == nil {
			parts = append(parts, "Context JSON:\n"+string(encoded))
		}
	}

	return strings.Join(parts, "\n\n")
}
