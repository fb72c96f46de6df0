package transport

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	xerrors "OrderMCP/internal/errors"
)

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) { return f(r) }

func TestHTTPErrorStatusIsNotRetried(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	client := New(WithBackoff(0))
	resp, err := client.Get(context.Background(), Endpoint{Name: "status", URL: srv.URL, Timeout: time.Second}, map[string]string{"order_id": "A1"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.StatusCode != http.StatusInternalServerError {
		t.Fatalf("unexpected status: %d", resp.StatusCode)
	}
	if resp.OK() {
		t.Fatalf("500 must not be treated as OK")
	}
	if atomic.LoadInt32(&calls) != 1 {
		t.Fatalf("expected a single attempt, got %d", calls)
	}
}

func TestTransportFailureRetriesThenFails(t *testing.T) {
	var calls int32
	hc := &http.Client{Transport: roundTripFunc(func(*http.Request) (*http.Response, error) {
		atomic.AddInt32(&calls, 1)
		return nil, errors.New("connection refused")
	})}

	client := New(WithHTTPClient(hc), WithBackoff(time.Millisecond))
	_, err := client.Get(context.Background(), Endpoint{Name: "rules", URL: "http://upstream.invalid/rules"}, nil)
	if err == nil {
		t.Fatalf("expected error after exhausting attempts")
	}
	if !xerrors.HasCode(err, xerrors.CodeTransportFailure) {
		t.Fatalf("unexpected error code: %v", err)
	}
	if atomic.LoadInt32(&calls) != DefaultAttempts {
		t.Fatalf("expected %d attempts, got %d", DefaultAttempts, calls)
	}
}

func TestRecoversAfterTransientFailure(t *testing.T) {
	var calls int32
	var bodies []string
	hc := &http.Client{Transport: roundTripFunc(func(r *http.Request) (*http.Response, error) {
		payload, _ := io.ReadAll(r.Body)
		bodies = append(bodies, string(payload))
		if atomic.AddInt32(&calls, 1) == 1 {
			return nil, errors.New("reset by peer")
		}
		return &http.Response{
			StatusCode: http.StatusOK,
			Header:     http.Header{"Content-Type": []string{"application/json"}},
			Body:       io.NopCloser(bytes.NewBufferString(`{"ok":true}`)),
		}, nil
	})}

	req, _ := http.NewRequest(http.MethodPost, "http://llm.invalid/chat/completions", bytes.NewBufferString(`{"model":"m"}`))
	resp, err := New(WithHTTPClient(hc), WithBackoff(0)).Do(req, Endpoint{Name: "llm"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(resp.Body) != `{"ok":true}` {
		t.Fatalf("unexpected body: %s", resp.Body)
	}
	if len(bodies) != 2 || bodies[0] != bodies[1] || bodies[1] != `{"model":"m"}` {
		t.Fatalf("request body should be replayed on every attempt: %q", bodies)
	}
}

func TestPerAttemptTimeout(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			select {
			case <-r.Context().Done():
			case <-time.After(2 * time.Second):
			}
			return
		}
		_, _ = w.Write([]byte("ok"))
	}))
	defer srv.Close()

	resp, err := New(WithBackoff(0)).Get(context.Background(), Endpoint{Name: "address", URL: srv.URL, Timeout: 100 * time.Millisecond}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !resp.OK() || string(resp.Body) != "ok" {
		t.Fatalf("unexpected response: %+v", resp)
	}
	if atomic.LoadInt32(&calls) != 2 {
		t.Fatalf("expected second attempt to succeed, calls=%d", calls)
	}
}

func TestCanceledContextStopsImmediately(t *testing.T) {
	var calls int32
	hc := &http.Client{Transport: roundTripFunc(func(*http.Request) (*http.Response, error) {
		atomic.AddInt32(&calls, 1)
		return nil, errors.New("unreachable")
	})}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := New(WithHTTPClient(hc)).Get(ctx, Endpoint{Name: "taxonomy", URL: "http://upstream.invalid"}, nil)
	if err == nil {
		t.Fatalf("expected cancellation error")
	}
	if xerrors.RetryableError(err) {
		t.Fatalf("cancellation must not be retryable")
	}
	if atomic.LoadInt32(&calls) != 0 {
		t.Fatalf("no attempt should be made after cancellation, got %d", calls)
	}
}
