// Package fallback implements the model-first, heuristic-second decision
// shared by the extraction, rule filtering and address pipelines.
package fallback
