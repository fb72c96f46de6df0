// Package config loads the OrderMCP runtime configuration from a JSON or YAML
// file, fills in defaults for timeouts and retry policy, and validates that
// credentials and upstream endpoints are present before the daemon starts.
package config
