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

// Package journal provides the append-only, hash-chained record of every
// agent call and verify result.
//
// Each record carries the hash of its predecessor, so any edit to a past
// line breaks the chain from that point forward. Hashes are computed over
// the RFC 8785 canonical JSON of the record (without its own hash field),
// prefixed by the predecessor hash, truncated to 16 hex characters:
//
//	hash = hex(SHA-256(prev || jcs(record_without_hash)))[:16]
//
// The predecessor of the first record is the literal string "GENESIS".
package journal

import (
	"bufio"
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gowebpki/jcs"
)

// GenesisHash is the predecessor of the first journal record.
const GenesisHash = "GENESIS"

// hashLen is the truncated hex length of a record hash.
const hashLen = 16

// Entry is one journal record. Keys beyond the reserved ts/prev/hash are
// caller-supplied (type, agent, provider, intent, status, verdict, ...).
type Entry map[string]interface{}

// Stats summarizes journal state.
type Stats struct {
	Entries      int            `json:"entries"`
	LastHash     string         `json:"last_hash"`
	ContextKeys  int            `json:"context_keys"`
	SessionCalls map[string]int `json:"session_calls"`
}

// Journal is the hash-chained memory journal. All mutation is serialized
// by a single mutex: the hash computation, the lastHash advance, and the
// file append happen in one critical section so line order always matches
// hash order.
type Journal struct {
	mu            sync.Mutex
	path          string
	contextPath   string
	lastHash      string
	entryCount    int
	sessionCounts map[string]int
	now           func() time.Time
}

// Option configures the journal.
type Option func(*Journal)

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(j *Journal) {
		j.now = now
	}
}

// Open creates or resumes a journal rooted at dir. When the journal file
// already has records, the last line's hash becomes the new predecessor,
// so the chain survives restarts.
func Open(dir string, opts ...Option) (*Journal, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create journal directory: %w", err)
	}

	j := &Journal{
		path:          filepath.Join(dir, "journal.jsonl"),
		contextPath:   filepath.Join(dir, "context.json"),
		lastHash:      GenesisHash,
		sessionCounts: make(map[string]int),
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(j)
	}

	entries, err := j.readEntries()
	if err != nil {
		return nil, err
	}
	j.entryCount = len(entries)
	if len(entries) > 0 {
		if hash, ok := entries[len(entries)-1]["hash"].(string); ok && hash != "" {
			j.lastHash = hash
		}
	}

	return j, nil
}

// Path returns the journal file path.
func (j *Journal) Path() string {
	return j.path
}

// Record appends a new chained record and returns its hash.
func (j *Journal) Record(entry Entry) (string, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	record := make(map[string]interface{}, len(entry)+3)
	for k, v := range entry {
		record[k] = v
	}
	record["ts"] = j.now().UTC().Format(time.RFC3339)
	record["prev"] = j.lastHash

	hash, err := chainHash(j.lastHash, record)
	if err != nil {
		return "", err
	}
	record["hash"] = hash

	line, err := json.Marshal(record)
	if err != nil {
		return "", fmt.Errorf("failed to marshal journal record: %w", err)
	}

	// One descriptor per append keeps this simple and crash-tolerant.
	f, err := os.OpenFile(j.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return "", fmt.Errorf("failed to open journal file: %w", err)
	}
	if _, err := f.Write(append(line, '\n')); err != nil {
		_ = f.Close()
		return "", fmt.Errorf("failed to append journal record: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("failed to close journal file: %w", err)
	}

	j.lastHash = hash
	j.entryCount++
	if agent, ok := entry["agent"].(string); ok && agent != "" {
		j.sessionCounts[agent]++
	}

	return hash, nil
}

// chainHash computes the truncated SHA-256 over prev || jcs(record),
// where record must not yet contain its hash field.
func chainHash(prev string, record map[string]interface{}) (string, error) {
	encoded, err := json.Marshal(record)
	if err != nil {
		return "", fmt.Errorf("failed to marshal record for hashing: %w", err)
	}
	canonical, err := jcs.Transform(encoded)
	if err != nil {
		return "", fmt.Errorf("failed to canonicalize record: %w", err)
	}

	h := sha256.New()
	h.Write([]byte(prev))
	h.Write(canonical)
	return hex.EncodeToString(h.Sum(nil))[:hashLen], nil
}

// Recent returns up to limit entries, newest first.
func (j *Journal) Recent(limit int) ([]Entry, error) {
	entries, err := j.readEntries()
	if err != nil {
		return nil, err
	}

	if limit > 0 && len(entries) > limit {
		entries = entries[len(entries)-limit:]
	}

	// Reverse so the newest entry comes first.
	out := make([]Entry, len(entries))
	for i, e := range entries {
		out[len(entries)-1-i] = e
	}
	return out, nil
}

// Stats returns entry count, tail hash, context-key count, and per-agent
// call counts for this process lifetime.
func (j *Journal) Stats() Stats {
	j.mu.Lock()
	defer j.mu.Unlock()

	calls := make(map[string]int, len(j.sessionCounts))
	for agent, n := range j.sessionCounts {
		calls[agent] = n
	}

	contextKeys := 0
	if ctx, err := j.loadContext(); err == nil {
		contextKeys = len(ctx)
	}

	return Stats{
		Entries:      j.entryCount,
		LastHash:     j.lastHash,
		ContextKeys:  contextKeys,
		SessionCalls: calls,
	}
}

// VerifyChain walks the journal and checks that every record's prev field
// matches its predecessor's hash and that every hash recomputes from the
// record content. It returns the number of verified records.
func (j *Journal) VerifyChain() (int, error) {
	entries, err := j.readEntries()
	if err != nil {
		return 0, err
	}

	prev := GenesisHash
	for i, entry := range entries {
		if entry["prev"] != prev {
			return i, fmt.Errorf("chain broken at record %d: prev %v does not match %s", i, entry["prev"], prev)
		}

		stored, _ := entry["hash"].(string)
		record := make(map[string]interface{}, len(entry))
		for k, v := range entry {
			if k == "hash" {
				continue
			}
			record[k] = v
		}
		computed, err := chainHash(prev, record)
		if err != nil {
			return i, fmt.Errorf("failed to recompute hash at record %d: %w", i, err)
		}
		if computed != stored {
			return i, fmt.Errorf("integrity failure at record %d: computed %s, stored %s", i, computed, stored)
		}

		prev = stored
	}

	return len(entries), nil
}

// readEntries parses the journal file. Numbers are kept as json.Number so
// that re-canonicalization during verification reproduces the original
// bytes.
func (j *Journal) readEntries() ([]Entry, error) {
	f, err := os.Open(j.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to open journal file: %w", err)
	}
	defer func() {
		_ = f.Close()
	}()

	var entries []Entry
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var entry Entry
		decoder := json.NewDecoder(bytes.NewReader(line))
		decoder.UseNumber()
		if err := decoder.Decode(&entry); err != nil {
			// A torn tail line from a crashed process is skipped
			// rather than poisoning reads.
			continue
		}
		entries = append(entries, entry)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read journal file: %w", err)
	}

	return entries, nil
}
