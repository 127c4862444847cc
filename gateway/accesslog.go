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
	"log"
	"os"
	"path/filepath"
	"sync"
)

// AccessRecord is one line in the request log.
type AccessRecord struct {
	Timestamp  string `json:"ts"`
	RequestID  string `json:"request_id"`
	RemoteAddr string `json:"remote_addr"`
	Method     string `json:"method"`
	Path       string `json:"path"`
	Agent      string `json:"agent,omitempty"`
	Intent     string `json:"intent,omitempty"`
	Provider   string `json:"provider,omitempty"`
	Status     int    `json:"status"`
	LatencyMS  int64  `json:"latency_ms"`
	Error      string `json:"error,omitempty"`
}

// AccessLog appends JSON lines to a request log file. Appends are
// best-effort: failures are reported on stderr and never surface to
// callers.
type AccessLog struct {
	mu   sync.Mutex
	path string
}

// NewAccessLog creates an access log writing to path. The parent
// directory is created on first append if missing.
func NewAccessLog(path string) *AccessLog {
	return &AccessLog{path: path}
}

// Append writes one record as a JSON line.
func (a *AccessLog) Append(rec AccessRecord) {
	if a == nil || a.path == "" {
		return
	}
	line, err := json.Marshal(rec)
	if err != nil {
		log.Printf("[ACCESS] marshal failed: %v", err)
		return
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(a.path), 0o755); err != nil {
		log.Printf("[ACCESS] mkdir failed: %v", err)
		return
	}
	f, err := os.OpenFile(a.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		log.Printf("[ACCESS] open failed: %v", err)
		return
	}
	defer f.Close()
	if _, err := f.Write(append(line, '\n')); err != nil {
		log.Printf("[ACCESS] write failed: %v", err)
	}
}
