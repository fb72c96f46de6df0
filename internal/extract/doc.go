// Package extract turns free-text customer queries into order task records.
// The model path classifies the query against the intent taxonomy; when it is
// unavailable or its output breaks the result contract, the deterministic
// Heuristic produces the answer instead.
package extract
