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
	"github.com/santhosh-tekuri/jsonschema/v5"
)

// policySchema validates the shape of the policy document before any
// field is trusted. The agents object is the only hard requirement; the
// rest constrains types and ranges.
const policySchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["agents"],
  "properties": {
    "version": { "type": "integer", "minimum": 1 },
    "global": {
      "type": "object",
      "properties": {
        "rate_limit_per_minute": { "type": "integer", "minimum": 0 }
      }
    },
    "agents": {
      "type": "object",
      "additionalProperties": {
        "type": "object",
        "properties": {
          "description": { "type": "string" },
          "allowed_intents": { "type": "array", "items": { "type": "string" } },
          "allowed_providers": { "type": "array", "items": { "type": "string" } },
          "default_provider": { "type": "string" },
          "fallback_chain": { "type": "array", "items": { "type": "string" } },
          "max_input_bytes": { "type": "integer", "minimum": 1 },
          "rate_limit_per_minute": { "type": "integer", "minimum": 0 }
        }
      }
    },
    "intent_routes": {
      "type": "object",
      "additionalProperties": { "type": "string" }
    },
    "default_provider": { "type": "string" },
    "cost_tiers": { "type": "object" }
  }
}`

var compiledPolicySchema = jsonschema.MustCompileString("policy.schema.json", policySchema)
