// Package address reconciles a customer-supplied address against the
// address on file for an order. Both the model path and the heuristic
// comparison answer with the same two fixed sentences.
package address
