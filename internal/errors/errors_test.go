package errors

import (
	stdErrors "errors"
	"fmt"
	"testing"
)

func TestWrapKeepsCodeThroughChain(t *testing.T) {
	cause := stdErrors.New("dial tcp: connection refused")
	err := fmt.Errorf("lookup order: %w", Wrap(CodeTransportFailure, cause, "订单状态服务不可达"))

	if CodeOf(err) != CodeTransportFailure {
		t.Fatalf("unexpected code: %s", CodeOf(err))
	}
	if !HasCode(err, CodeTransportFailure) {
		t.Fatalf("expected HasCode to match transport failure")
	}
	if HasCode(err, CodeUpstreamStatus) {
		t.Fatalf("did not expect upstream status code")
	}
	if !stdErrors.Is(err, cause) {
		t.Fatalf("expected cause to be reachable")
	}
	if !RetryableError(err) {
		t.Fatalf("transport failures should be retryable by default")
	}
}

func TestRegisterAndOverrides(t *testing.T) {
	const code Code = "TEST_CUSTOM"
	Register(code, Attributes{Message: "custom", Severity: SeverityWarning, Retryable: true})

	err := New(code, "")
	if err.Message() != "custom" || err.Severity() != SeverityWarning || !err.Retryable() {
		t.Fatalf("unexpected attributes: %+v", err)
	}
	if New(code, "", WithRetryable(false)).Retryable() {
		t.Fatalf("expected override to disable retry")
	}
	if AttributesOf("NOT_REGISTERED").Severity != SeverityCritical {
		t.Fatalf("unregistered codes should fall back to UNKNOWN")
	}
}

func TestMetadataIsCopied(t *testing.T) {
	err := New(CodeUpstreamStatus, "", WithMetadata("status", "502"))
	meta := err.Metadata()
	meta["status"] = "200"
	if err.Metadata()["status"] != "502" {
		t.Fatalf("metadata should be returned as a copy")
	}
}
