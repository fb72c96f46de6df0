// Package tools exposes the order pipelines as named operations that take
// string arguments and return JSON text, the surface consumed by an
// orchestrating agent, the HTTP API and the job processor.
package tools
