// Package transport provides the retrying HTTP client shared by every
// outbound call: upstream lookups and the text-understanding service.
// Only transport failures are retried; HTTP error statuses are returned to
// the caller untouched.
package transport
