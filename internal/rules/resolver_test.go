package rules

import (
	"context"
	"encoding/json"
	"net/http"
	"reflect"
	"strings"
	"testing"

	xerrors "OrderMCP/internal/errors"
	"OrderMCP/internal/fallback"
	"OrderMCP/internal/llm"
	"OrderMCP/internal/upstream"
)

type fakeLookup struct {
	order      upstream.Record
	orderErr   error
	rules      upstream.Record
	rulesErr   error
	ruleCalls  int
	gotPurpose string
}

func (f *fakeLookup) OrderStatus(context.Context, string) (upstream.Record, error) {
	return f.order, f.orderErr
}

func (f *fakeLookup) MatchedRules(_ context.Context, purpose string) (upstream.Record, error) {
	f.ruleCalls++
	f.gotPurpose = purpose
	return f.rules, f.rulesErr
}

var sampleRules = map[string]any{
	"cancel_before_shipping": "待发货订单可直接取消",
	"modify_address":         "仅待处理订单可修改地址",
	"query_logistics":        "随时可查询物流",
	"refund_policy":          "七天无理由退款",
}

func pendingOrder(status string) upstream.Record {
	return upstream.Record{StatusCode: http.StatusOK, Body: map[string]any{"status": status}}
}

func failingModel() llm.Client {
	return llm.ClientFunc(func(context.Context, llm.Request) (string, error) {
		return "", xerrors.New(xerrors.CodeTransportFailure, "")
	})
}

func TestOrderNotFoundNeverFetchesRules(t *testing.T) {
	for _, status := range []int{http.StatusNotFound, http.StatusInternalServerError, http.StatusCreated} {
		lookup := &fakeLookup{order: upstream.Record{StatusCode: status, Body: "missing"}}
		res, err := NewResolver(failingModel(), lookup).Resolve(context.Background(), "X1", "取消订单")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if res.Outcome != OutcomeOrderNotFound {
			t.Fatalf("status %d: unexpected outcome %s", status, res.Outcome)
		}
		if lookup.ruleCalls != 0 {
			t.Fatalf("status %d: rule lookup must not be attempted", status)
		}
		encoded, _ := json.Marshal(res)
		if !strings.Contains(string(encoded), MessageOrderNotFound) {
			t.Fatalf("unexpected wire form: %s", encoded)
		}
		if res.Code() != CodeOrderNotFound {
			t.Fatalf("unexpected code: %s", res.Code())
		}
	}
}

func TestOrderLookupFailureSurfaces(t *testing.T) {
	lookup := &fakeLookup{orderErr: xerrors.New(xerrors.CodeTransportFailure, "")}
	_, err := NewResolver(failingModel(), lookup).Resolve(context.Background(), "X1", "取消订单")
	if !xerrors.HasCode(err, xerrors.CodeTransportFailure) {
		t.Fatalf("expected transport failure, got %v", err)
	}
}

func TestRuleFetchFailureIsDistinctTerminal(t *testing.T) {
	cases := map[string]*fakeLookup{
		"transport": {order: pendingOrder("pending"), rulesErr: xerrors.New(xerrors.CodeTransportFailure, "")},
		"status":    {order: pendingOrder("pending"), rules: upstream.Record{StatusCode: http.StatusBadGateway}},
		"empty":     {order: pendingOrder("pending"), rules: upstream.Record{StatusCode: http.StatusOK, Body: map[string]any{}}},
		"text":      {order: pendingOrder("pending"), rules: upstream.Record{StatusCode: http.StatusOK, Body: "no rules"}},
	}
	for name, lookup := range cases {
		res, err := NewResolver(failingModel(), lookup).Resolve(context.Background(), "X1", "取消订单")
		if err != nil {
			t.Fatalf("%s: unexpected error: %v", name, err)
		}
		if res.Outcome != OutcomeRulesUnavailable {
			t.Fatalf("%s: unexpected outcome %s", name, res.Outcome)
		}
		encoded, _ := json.Marshal(res)
		if string(encoded) != `{"error":"Failed to get matched rules"}` {
			t.Fatalf("%s: unexpected wire form %s", name, encoded)
		}
	}
}

func TestFallbackFilterByStatus(t *testing.T) {
	cases := []struct {
		status string
		want   []string
	}{
		{status: "pending", want: []string{"cancel_before_shipping", "modify_address", "query_logistics", "refund_policy"}},
		{status: "confirmed", want: []string{"cancel_before_shipping", "query_logistics", "refund_policy"}},
		{status: "shipped", want: []string{"query_logistics", "refund_policy"}},
	}
	for _, tc := range cases {
		lookup := &fakeLookup{order: pendingOrder(tc.status), rules: upstream.Record{StatusCode: http.StatusOK, Body: sampleRules}}
		res, err := NewResolver(failingModel(), lookup).Resolve(context.Background(), "X1", "取消订单")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if res.Outcome != OutcomeMatched || res.Source != fallback.SourceFallback {
			t.Fatalf("unexpected resolution: %+v", res)
		}
		if got := sortedKeys(res.Rules); !reflect.DeepEqual(got, tc.want) {
			t.Fatalf("status %s: got %v, want %v", tc.status, got, tc.want)
		}
		if lookup.gotPurpose != "取消订单" {
			t.Fatalf("purpose should be forwarded, got %q", lookup.gotPurpose)
		}
	}
}

func TestModelSelectionUsesFetchedDefinitions(t *testing.T) {
	var captured llm.Request
	client := llm.ClientFunc(func(_ context.Context, req llm.Request) (string, error) {
		captured = req
		return "```json\n{\"规则\": {\"query_logistics\": \"paraphrased by model\"}}\n```", nil
	})
	lookup := &fakeLookup{order: pendingOrder("shipped"), rules: upstream.Record{StatusCode: http.StatusOK, Body: sampleRules}}

	res, err := NewResolver(client, lookup).Resolve(context.Background(), "X1", "查询订单状态")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Source != fallback.SourceModel {
		t.Fatalf("expected model source, got %s", res.Source)
	}
	encoded, _ := json.Marshal(res)
	if string(encoded) != `{"规则":{"query_logistics":"随时可查询物流"}}` {
		t.Fatalf("unexpected wire form: %s", encoded)
	}
	if captured.System != systemPrompt || !strings.Contains(captured.User, `"status":"shipped"`) {
		t.Fatalf("unexpected prompt: %+v", captured)
	}
}

func TestModelOutputRejectedFallsBack(t *testing.T) {
	for name, reply := range map[string]string{
		"invented key":  `{"规则": {"made_up_rule": "x"}}`,
		"no wrapper":    `{"query_logistics": "x"}`,
		"wrapper array": `{"规则": ["query_logistics"]}`,
		"prose":         "I think query_logistics applies",
	} {
		client := llm.ClientFunc(func(context.Context, llm.Request) (string, error) { return reply, nil })
		lookup := &fakeLookup{order: pendingOrder("shipped"), rules: upstream.Record{StatusCode: http.StatusOK, Body: sampleRules}}
		res, err := NewResolver(client, lookup).Resolve(context.Background(), "X1", "取消订单")
		if err != nil {
			t.Fatalf("%s: unexpected error: %v", name, err)
		}
		if res.Source != fallback.SourceFallback {
			t.Fatalf("%s: expected fallback, got %s", name, res.Source)
		}
	}
}

func TestFilterWithoutOrderObjectIncludesEverything(t *testing.T) {
	for _, body := range []any{nil, "plain text", map[string]any{}} {
		got := Filter(sampleRules, body)
		if len(got) != len(sampleRules) {
			t.Fatalf("body %v: expected every rule, got %v", body, got)
		}
	}
}

func TestFilterChineseKeys(t *testing.T) {
	rules := RuleSet{"取消规则": 1, "修改规则": 2, "查询规则": 3}
	got := Filter(rules, map[string]any{"status": "Confirmed"})
	if want := []string{"取消规则", "查询规则"}; !reflect.DeepEqual(sortedKeys(got), want) {
		t.Fatalf("got %v, want %v", sortedKeys(got), want)
	}
}

func TestFilteredRuleSetAlwaysWrapped(t *testing.T) {
	encoded, err := json.Marshal(FilteredRuleSet(nil))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(encoded) != `{"规则":{}}` {
		t.Fatalf("unexpected wire form: %s", encoded)
	}
}
