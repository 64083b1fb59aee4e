package config

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// configSchema is the JSON schema the merged configuration must satisfy.
// Validation runs after env overrides and default filling, so required
// fields here are requirements on the final effective config.
const configSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["server", "upstream", "admission", "image"],
  "properties": {
    "server": {
      "type": "object",
      "required": ["port"],
      "properties": {
        "port": {"type": "integer", "minimum": 1, "maximum": 65535},
        "metrics_port": {"type": "integer", "minimum": 0, "maximum": 65535},
        "max_body_bytes": {"type": "integer", "minimum": 1024}
      }
    },
    "upstream": {
      "type": "object",
      "required": ["base_url", "api_key", "model"],
      "properties": {
        "base_url": {"type": "string", "minLength": 1, "pattern": "^https?://"},
        "api_key": {"type": "string", "minLength": 1},
        "model": {"type": "string", "minLength": 1},
        "timeout_seconds": {"type": "integer", "minimum": 1}
      }
    },
    "admission": {
      "type": "object",
      "required": ["rate_limit", "rate_window_ms", "min_frame_interval_ms"],
      "properties": {
        "rate_limit": {"type": "integer", "minimum": 1},
        "rate_window_ms": {"type": "integer", "minimum": 1},
        "min_frame_interval_ms": {"type": "integer", "minimum": 1},
        "session_idle_ttl_seconds": {"type": "integer", "minimum": 0}
      }
    },
    "image": {
      "type": "object",
      "required": ["max_width", "max_height", "quality"],
      "properties": {
        "max_width": {"type": "integer", "minimum": 16},
        "max_height": {"type": "integer", "minimum": 16},
        "quality": {"type": "integer", "minimum": 1, "maximum": 100}
      }
    },
    "redis": {
      "type": "object",
      "properties": {
        "addr": {"type": "string"},
        "db": {"type": "integer", "minimum": 0}
      }
    },
    "logging": {
      "type": "object",
      "properties": {
        "level": {"type": "string", "enum": ["debug", "info", "warn", "warning", "error", ""]},
        "format": {"type": "string", "enum": ["json", "text", ""]}
      }
    }
  }
}`

// Validate checks the effective configuration against the embedded schema.
// The config is round-tripped through JSON so the schema sees exactly the
// serialized field names.
func (c *Config) Validate() error {
	doc, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to serialize config for validation: %w", err)
	}

	result, err := gojsonschema.Validate(
		gojsonschema.NewStringLoader(configSchema),
		gojsonschema.NewBytesLoader(doc),
	)
	if err != nil {
		return fmt.Errorf("config schema validation failed: %w", err)
	}

	if !result.Valid() {
		msgs := make([]string, 0, len(result.Errors()))
		for _, desc := range result.Errors() {
			msgs = append(msgs, desc.String())
		}
		return fmt.Errorf("invalid configuration: %s", strings.Join(msgs, "; "))
	}

	return nil
}
