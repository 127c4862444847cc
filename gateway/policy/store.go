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
	"errors"
	"fmt"
	"log"
	"os"
	"sync"
	"time"
)

// Resolution errors. The pipeline maps these to distinct 403 responses.
var (
	ErrAgentNotAllowed  = errors.New("Agent not allowed")
	ErrIntentNotAllowed = errors.New("Intent not allowed")
)

// Store reads the policy document from disk with mtime-based caching:
// every access re-stats the file, so edits become visible without a
// restart while unchanged files cost one stat per request.
type Store struct {
	path string

	mu      sync.Mutex
	cached  *Document
	modTime time.Time
}

// NewStore creates a policy store over the given file path.
func NewStore(path string) *Store {
	return &Store{path: path}
}

// Path returns the backing file path.
func (s *Store) Path() string {
	return s.path
}

// Load returns the current policy document, re-reading the file when its
// modification time has advanced.
func (s *Store) Load() (*Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	info, err := os.Stat(s.path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat policy file: %w", err)
	}

	if s.cached != nil && info.ModTime().Equal(s.modTime) {
		return s.cached, nil
	}

	doc, err := parseDocument(s.path)
	if err != nil {
		return nil, err
	}

	s.cached = doc
	s.modTime = info.ModTime()
	return doc, nil
}

// parseDocument reads, schema-validates, and decodes a policy file.
func parseDocument(path string) (*Document, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read policy file: %w", err)
	}

	// Validate shape before decoding into typed structs.
	var generic interface{}
	if err := json.Unmarshal(raw, &generic); err != nil {
		return nil, fmt.Errorf("policy file is not valid JSON: %w", err)
	}
	if err := compiledPolicySchema.Validate(generic); err != nil {
		return nil, fmt.Errorf("policy file failed schema validation: %w", err)
	}

	var doc Document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("failed to decode policy file: %w", err)
	}
	if doc.Agents == nil {
		return nil, fmt.Errorf("policy file has no agents object")
	}

	// default_provider outside allowed_providers is a configuration
	// mistake; the per-request provider check still rejects it.
	for name, agent := range doc.Agents {
		if agent.DefaultProvider != "" && !agent.AllowsProvider(agent.DefaultProvider) {
			log.Printf("[POLICY] Warning: agent %q default_provider %q is not in allowed_providers",
				name, agent.DefaultProvider)
		}
	}

	return &doc, nil
}

// Resolve returns the agent's policy when the agent exists and the intent
// is in its allowed set. The two failure modes are distinct errors.
func (d *Document) Resolve(agent, intent string) (*AgentPolicy, error) {
	p, ok := d.Agents[agent]
	if !ok {
		return nil, ErrAgentNotAllowed
	}
	if !p.AllowsIntent(intent) {
		return nil, ErrIntentNotAllowed
	}
	return p, nil
}
