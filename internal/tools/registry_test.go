package tools

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"OrderMCP/internal/address"
	xerrors "OrderMCP/internal/errors"
	"OrderMCP/internal/extract"
	"OrderMCP/internal/rules"
	"OrderMCP/internal/transport"
	"OrderMCP/internal/upstream"
)

func newUpstream(t *testing.T) *upstream.Client {
	t.Helper()
	mux := http.NewServeMux()
	writeJSON := func(w http.ResponseWriter, status int, body string) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}
	mux.HandleFunc("/category", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, `{"categories":["查询订单状态","取消订单","修改订单"]}`)
	})
	mux.HandleFunc("/order_status", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("order_id") == "MISSING" {
			writeJSON(w, http.StatusNotFound, `{"message":"not found"}`)
			return
		}
		writeJSON(w, http.StatusOK, `{"status":"shipped"}`)
	})
	mux.HandleFunc("/purpose", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, `{"cancel_rule":"待发货可取消","query_rule":"随时可查询"}`)
	})
	mux.HandleFunc("/address_check", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, `{"address":"123 Main St"}`)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	ep := func(name, path string) transport.Endpoint {
		return transport.Endpoint{Name: name, URL: srv.URL + path, Timeout: time.Second}
	}
	return upstream.NewClient(transport.New(transport.WithBackoff(0)), upstream.Endpoints{
		Taxonomy:    ep("taxonomy", "/category"),
		OrderStatus: ep("order_status", "/order_status"),
		Rules:       ep("rules", "/purpose"),
		Address:     ep("address", "/address_check"),
	})
}

func newRegistry(t *testing.T) *Registry {
	t.Helper()
	lookup := newUpstream(t)
	reg := NewRegistry()
	err := RegisterBuiltins(reg, Deps{
		Extractor: extract.NewEngine(nil, lookup),
		Rules:     rules.NewResolver(nil, lookup),
		Address:   address.NewReconciler(nil, lookup),
		Lookup:    lookup,
	})
	if err != nil {
		t.Fatalf("register builtins: %v", err)
	}
	return reg
}

func TestDescriptorsListed(t *testing.T) {
	reg := newRegistry(t)
	names := make([]string, 0)
	for _, d := range reg.Descriptors() {
		names = append(names, d.Name)
	}
	for _, want := range []string{ToolExtractTasks, ToolResolveRules, ToolReconcileAddress, ToolInterceptOrder, ToolLiveChatSupport} {
		found := false
		for _, name := range names {
			if name == want {
				found = true
			}
		}
		if !found {
			t.Fatalf("tool %s missing from %v", want, names)
		}
	}
}

func TestInvokeExtractTasks(t *testing.T) {
	out, err := newRegistry(t).Invoke(context.Background(), ToolExtractTasks, map[string]string{"query": "订单号：A1 取消"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := `{"valid_question":"yes","multi-task":"no","task_count":1,"tasks":{"order_id_1":"A1","purpose_1":"取消订单"}}`
	if string(out) != want {
		t.Fatalf("got %s", out)
	}
}

func TestInvokeResolveRules(t *testing.T) {
	reg := newRegistry(t)

	out, err := reg.Invoke(context.Background(), ToolResolveRules, map[string]string{"order_id": "A1", "purpose": "取消订单"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(out) != `{"规则":{"query_rule":"随时可查询"}}` {
		t.Fatalf("unexpected output: %s", out)
	}

	out, err = reg.Invoke(context.Background(), ToolResolveRules, map[string]string{"order_id": "MISSING", "purpose": "取消订单"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(string(out), "order_id is not exist, please check") {
		t.Fatalf("unexpected output: %s", out)
	}
}

func TestInvokeReconcileAddress(t *testing.T) {
	out, err := newRegistry(t).Invoke(context.Background(), ToolReconcileAddress, map[string]string{"order_id": "A1", "new_address": "123 main st"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(out) != `"待更改地址与原地址相同，无需更改"` {
		t.Fatalf("unexpected output: %s", out)
	}
}

func TestInvokeFixedReplies(t *testing.T) {
	reg := newRegistry(t)
	out, err := reg.Invoke(context.Background(), ToolInterceptOrder, map[string]string{"order_id": "ST-9012"})
	if err != nil || string(out) != `"intercept order ST-9012 has requested"` {
		t.Fatalf("unexpected intercept output: %s (%v)", out, err)
	}
	out, err = reg.Invoke(context.Background(), ToolLiveChatSupport, nil)
	if err != nil || string(out) != `"We will transfer you to a live support"` {
		t.Fatalf("unexpected live chat output: %s (%v)", out, err)
	}
}

func TestInvokeMissingArguments(t *testing.T) {
	out, err := newRegistry(t).Invoke(context.Background(), ToolResolveRules, map[string]string{"order_id": ""})
	if !xerrors.HasCode(err, xerrors.CodeInvalidArgument) {
		t.Fatalf("expected INVALID_ARGUMENT, got %v", err)
	}
	var failure Failure
	if err := json.Unmarshal(out, &failure); err != nil {
		t.Fatalf("decode failure: %v", err)
	}
	if failure.Success || failure.Error != "错误：缺少必需参数 order_id 或 purpose" {
		t.Fatalf("unexpected failure: %+v", failure)
	}
}

func TestInvokeUnknownTool(t *testing.T) {
	out, err := newRegistry(t).Invoke(context.Background(), "nope", nil)
	if out != nil || !xerrors.HasCode(err, CodeToolNotFound) {
		t.Fatalf("expected TOOL_NOT_FOUND, got %s %v", out, err)
	}
}

func TestInvokeTransportFailureReturnsApology(t *testing.T) {
	dead := upstream.NewClient(transport.New(transport.WithBackoff(0)), upstream.Endpoints{
		OrderStatus: transport.Endpoint{Name: "order_status", URL: "http://127.0.0.1:1/order_status", Timeout: 200 * time.Millisecond},
	})
	reg := NewRegistry()
	if err := RegisterBuiltins(reg, Deps{Rules: rules.NewResolver(nil, dead), Lookup: dead}); err != nil {
		t.Fatalf("register: %v", err)
	}

	out, err := reg.Invoke(context.Background(), ToolResolveRules, map[string]string{"order_id": "A1", "purpose": "取消订单"})
	if !xerrors.HasCode(err, xerrors.CodeTransportFailure) {
		t.Fatalf("expected TRANSPORT_FAILURE, got %v", err)
	}
	var failure Failure
	_ = json.Unmarshal(out, &failure)
	if failure.Success || failure.Result != "An error occurred while processing the request" || failure.Error == "" {
		t.Fatalf("unexpected failure: %s", out)
	}
}

func TestRegisterRejectsDuplicates(t *testing.T) {
	reg := NewRegistry()
	h := func(context.Context, map[string]string) (any, error) { return nil, nil }
	if err := reg.Register(Descriptor{Name: "a"}, h); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := reg.Register(Descriptor{Name: "a"}, h); !xerrors.HasCode(err, xerrors.CodeConflict) {
		t.Fatalf("expected CONFLICT, got %v", err)
	}
}

func TestInvokeExtractTasksBlankQuery(t *testing.T) {
	reg := newRegistry(t)

	out, err := reg.Invoke(context.Background(), ToolExtractTasks, map[string]string{"query": "   "})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(out) != `{"valid_question":"no"}` {
		t.Fatalf("blank query should be an invalid question, got %s", out)
	}

	_, err = reg.Invoke(context.Background(), ToolExtractTasks, map[string]string{})
	if !xerrors.HasCode(err, xerrors.CodeInvalidArgument) {
		t.Fatalf("absent query should be rejected, got %v", err)
	}
}
