// Package rules resolves which business rules apply to an intent given the
// order's current status. A missing order and a failed rule fetch are
// distinct terminal outcomes; the filter step prefers the model and falls
// back to key-based overrides.
package rules
