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

// Command gateway runs the BlackRoad LLM gateway: a local HTTP service
// that mediates agent calls to LLM providers with policy enforcement,
// rate limiting, and a hash-chained call journal.
//
// Configuration comes from an optional YAML file named by
// BLACKROAD_GATEWAY_CONFIG, overridden by environment variables:
//
//	BLACKROAD_GATEWAY_BIND         listen address (default 127.0.0.1)
//	BLACKROAD_GATEWAY_PORT         listen port (default 8787)
//	BLACKROAD_GATEWAY_POLICY_PATH  agent policy document
//	BLACKROAD_GATEWAY_PROMPT_PATH  system prompt document
//	BLACKROAD_GATEWAY_LOG_PATH     request log file
//	BLACKROAD_GATEWAY_JOURNAL_DIR  journal directory
//	BLACKROAD_GATEWAY_ALLOW_REMOTE allow non-loopback callers ("true")
//	ANTHROPIC_API_KEY              Anthropic credentials
//	OPENAI_API_KEY                 OpenAI credentials
//	GEMINI_API_KEY                 Gemini credentials
//	OLLAMA_ENDPOINT                Ollama base URL (default local)
package main

import "github.com/blackroad/llm-gateway/gateway"

func main() {
	gateway.Run()
}
