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
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearGatewayEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"BLACKROAD_GATEWAY_CONFIG",
		"BLACKROAD_GATEWAY_BIND",
		"BLACKROAD_GATEWAY_PORT",
		"BLACKROAD_GATEWAY_POLICY_PATH",
		"BLACKROAD_GATEWAY_PROMPT_PATH",
		"BLACKROAD_GATEWAY_LOG_PATH",
		"BLACKROAD_GATEWAY_JOURNAL_DIR",
		"BLACKROAD_GATEWAY_WORLDS_URL",
		"BLACKROAD_GATEWAY_MAX_BODY_BYTES",
		"BLACKROAD_GATEWAY_ALLOW_REMOTE",
	} {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}
}

func TestLoadConfig_Defaults(t *testing.T) {
	clearGatewayEnv(t)

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, DefaultBind, cfg.Bind)
	assert.Equal(t, DefaultPort, cfg.Port)
	assert.Equal(t, DefaultPolicyPath, cfg.PolicyPath)
	assert.Equal(t, int64(DefaultMaxBodyBytes), cfg.MaxBodyBytes)
	assert.False(t, cfg.AllowRemote)
	assert.Contains(t, cfg.JournalDir, filepath.Join(".blackroad", "gateway-memory"))
	assert.Equal(t, "127.0.0.1:8787", cfg.Addr())
}

func TestLoadConfig_FileThenEnv(t *testing.T) {
	clearGatewayEnv(t)

	path := filepath.Join(t.TempDir(), "gateway.yaml")
	content := "bind: 0.0.0.0\nport: 9000\npolicyPath: /etc/blackroad/policies.json\nallowRemote: true\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	t.Setenv("BLACKROAD_GATEWAY_CONFIG", path)
	// The environment overrides the file.
	t.Setenv("BLACKROAD_GATEWAY_PORT", "9100")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0", cfg.Bind)
	assert.Equal(t, 9100, cfg.Port)
	assert.Equal(t, "/etc/blackroad/policies.json", cfg.PolicyPath)
	assert.True(t, cfg.AllowRemote)
}

func TestLoadConfig_InvalidValues(t *testing.T) {
	clearGatewayEnv(t)

	t.Run("bad port", func(t *testing.T) {
		t.Setenv("BLACKROAD_GATEWAY_PORT", "eight")
		_, err := LoadConfig()
		assert.Error(t, err)
	})

	t.Run("bad allow remote", func(t *testing.T) {
		t.Setenv("BLACKROAD_GATEWAY_ALLOW_REMOTE", "sometimes")
		_, err := LoadConfig()
		assert.Error(t, err)
	})

	t.Run("missing config file", func(t *testing.T) {
		t.Setenv("BLACKROAD_GATEWAY_CONFIG", filepath.Join(t.TempDir(), "nope.yaml"))
		_, err := LoadConfig()
		assert.Error(t, err)
	})
}

func TestIsLoopbackAddr(t *testing.T) {
	assert.True(t, isLoopbackAddr("127.0.0.1:5000"))
	assert.True(t, isLoopbackAddr("[::1]:5000"))
	assert.True(t, isLoopbackAddr("localhost:8787"))
	assert.False(t, isLoopbackAddr("203.0.113.9:4000"))
	assert.False(t, isLoopbackAddr("10.0.0.4:4000"))
}
