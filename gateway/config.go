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

// Package gateway implements the policy-enforcing LLM request gateway:
// a local HTTP service that validates agent calls against a declarative
// policy, composes system prompts, dispatches to upstream providers with
// fallback, and accounts for every call in metrics and a hash-chained
// journal.
package gateway

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Defaults for every recognized option.
const (
	DefaultBind         = "127.0.0.1"
	DefaultPort         = 8787
	DefaultPolicyPath   = "policies/agent-permissions.json"
	DefaultPromptPath   = "gateway/system-prompts.json"
	DefaultLogPath      = "gateway/logs/gateway.jsonl"
	DefaultMaxBodyBytes = 1 << 20
)

// Config holds the gateway's runtime options. Values come from an
// optional YAML file overlaid with environment variables; the
// environment wins.
type Config struct {
	Bind         string `yaml:"bind"`
	Port         int    `yaml:"port"`
	PolicyPath   string `yaml:"policyPath"`
	PromptPath   string `yaml:"promptPath"`
	LogPath      string `yaml:"logPath"`
	MaxBodyBytes int64  `yaml:"maxBodyBytes"`
	AllowRemote  bool   `yaml:"allowRemote"`

	// JournalDir roots the memory journal and context store.
	JournalDir string `yaml:"journalDir"`

	// WorldsURL is the external stats feed proxied by /v1/worlds.
	WorldsURL string `yaml:"worldsURL"`
}

// LoadConfig builds the effective configuration. The file path comes
// from BLACKROAD_GATEWAY_CONFIG; a missing file is not an error, the
// defaults plus environment apply.
func LoadConfig() (*Config, error) {
	cfg := &Config{
		Bind:         DefaultBind,
		Port:         DefaultPort,
		PolicyPath:   DefaultPolicyPath,
		PromptPath:   DefaultPromptPath,
		LogPath:      DefaultLogPath,
		MaxBodyBytes: DefaultMaxBodyBytes,
	}

	if path := os.Getenv("BLACKROAD_GATEWAY_CONFIG"); path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(raw, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	cfg.Bind = getEnv("BLACKROAD_GATEWAY_BIND", cfg.Bind)
	cfg.PolicyPath = getEnv("BLACKROAD_GATEWAY_POLICY_PATH", cfg.PolicyPath)
	cfg.PromptPath = getEnv("BLACKROAD_GATEWAY_PROMPT_PATH", cfg.PromptPath)
	cfg.LogPath = getEnv("BLACKROAD_GATEWAY_LOG_PATH", cfg.LogPath)
	cfg.JournalDir = getEnv("BLACKROAD_GATEWAY_JOURNAL_DIR", cfg.JournalDir)
	cfg.WorldsURL = getEnv("BLACKROAD_GATEWAY_WORLDS_URL", cfg.WorldsURL)

	if v := os.Getenv("BLACKROAD_GATEWAY_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("invalid BLACKROAD_GATEWAY_PORT %q: %w", v, err)
		}
		cfg.Port = port
	}

	if v := os.Getenv("BLACKROAD_GATEWAY_MAX_BODY_BYTES"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid BLACKROAD_GATEWAY_MAX_BODY_BYTES %q: %w", v, err)
		}
		cfg.MaxBodyBytes = n
	}

	if v := os.Getenv("BLACKROAD_GATEWAY_ALLOW_REMOTE"); v != "" {
		allow, err := strconv.ParseBool(v)
		if err != nil {
			return nil, fmt.Errorf("invalid BLACKROAD_GATEWAY_ALLOW_REMOTE %q: %w", v, err)
		}
		cfg.AllowRemote = allow
	}

	if cfg.JournalDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to resolve home directory: %w", err)
		}
		cfg.JournalDir = filepath.Join(home, ".blackroad", "gateway-memory")
	}

	return cfg, nil
}

// Addr returns the bind address in host:port form.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Bind, c.Port)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
