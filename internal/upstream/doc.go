// Package upstream wraps the four lookup services (taxonomy, order status,
// matched rules and address on file) behind typed calls over the retrying
// transport client.
package upstream
