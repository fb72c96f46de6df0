// Package metrics registers the Prometheus collectors used across OrderMCP:
// HTTP request counters, outbound attempts made by the retrying client,
// model-versus-fallback pipeline outcomes and job transitions.
package metrics
