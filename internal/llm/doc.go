// Package llm defines the text-understanding client interface and the
// response normalizer shared by every pipeline that consumes model output.
package llm
