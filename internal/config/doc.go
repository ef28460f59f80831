// Package config loads and validates collector configuration from YAML.
//
// Files may reference environment variables with ${VAR} syntax; values are
// expanded before parsing. Optional fields receive defaults via
// LoadWithDefaults, and LoadAndValidate is the entry point used by binaries.
package config
