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

package journal

import (
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// ContextEntry is one remembered key in the durable context store.
type ContextEntry struct {
	Value   interface{} `json:"value"`
	Updated string      `json:"updated"`
}

// SetContext stores a key in the context file. The file is read and
// written whole; non-atomic replacement is acceptable at gateway scale.
func (j *Journal) SetContext(key string, value interface{}) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	ctx, err := j.loadContext()
	if err != nil {
		return err
	}

	ctx[key] = ContextEntry{
		Value:   value,
		Updated: j.now().UTC().Format(time.RFC3339),
	}

	encoded, err := json.MarshalIndent(ctx, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal context store: %w", err)
	}
	if err := os.WriteFile(j.contextPath, encoded, 0o644); err != nil {
		return fmt.Errorf("failed to write context store: %w", err)
	}
	return nil
}

// GetContext returns the full context store.
func (j *Journal) GetContext() (map[string]ContextEntry, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.loadContext()
}

// loadContext reads the context file. Caller holds the lock.
func (j *Journal) loadContext() (map[string]ContextEntry, error) {
	raw, err := os.ReadFile(j.contextPath)
	if err != nil {
		if os.IsNotExist(err) {
			return make(map[string]ContextEntry), nil
		}
		return nil, fmt.Errorf("failed to read context store: %w", err)
	}

	ctx := make(map[string]ContextEntry)
	if err := json.Unmarshal(raw, &ctx); err != nil {
		return nil, fmt.Errorf("failed to decode context store: %w", err)
	}
	return ctx, nil
}
