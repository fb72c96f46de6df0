package task

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	xerrors "OrderMCP/internal/errors"
)

func TestMemoryStoreListWithFilters(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	base := time.Now().Add(-2 * time.Minute)

	tasks := []*Task{
		{ID: "t1", Tool: "extract_tasks", MaxRetries: 3},
		{ID: "t2", Tool: "resolve_rules", MaxRetries: 3},
		{ID: "t3", Tool: "resolve_rules", MaxRetries: 3},
	}
	for _, task := range tasks {
		if err := store.Create(ctx, task); err != nil {
			t.Fatalf("create task %s: %v", task.ID, err)
		}
	}

	if err := store.MarkFailed(ctx, "t2", xerrors.CodeTransportFailure, "boom", nil, true); err != nil {
		t.Fatalf("mark failed: %v", err)
	}
	if err := store.MarkSucceeded(ctx, "t3", json.RawMessage(`{"规则":{}}`)); err != nil {
		t.Fatalf("mark succeeded: %v", err)
	}

	store.mu.Lock()
	store.tasks["t1"].UpdatedAt = base.Unix()
	store.tasks["t2"].UpdatedAt = base.Add(30 * time.Second).Unix()
	store.tasks["t3"].UpdatedAt = base.Add(60 * time.Second).Unix()
	store.mu.Unlock()

	all, err := store.List(ctx, ListOptions{})
	if err != nil {
		t.Fatalf("list all: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("expected 3 tasks, got %d", len(all))
	}
	if all[0].ID != "t3" {
		t.Fatalf("expected newest task first, got %s", all[0].ID)
	}

	failed, err := store.List(ctx, buildListOptions([]ListOption{WithStatuses(StatusFailed)}))
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(failed) != 1 || failed[0].ID != "t2" || failed[0].ErrorCode != string(xerrors.CodeTransportFailure) {
		t.Fatalf("unexpected failed list: %+v", failed)
	}

	byTool, err := store.List(ctx, buildListOptions([]ListOption{WithTool("resolve_rules"), WithSortOrder(SortByUpdatedAsc)}))
	if err != nil {
		t.Fatalf("list by tool: %v", err)
	}
	if len(byTool) != 2 || byTool[0].ID != "t2" || byTool[1].ID != "t3" {
		t.Fatalf("unexpected tool list: %+v", byTool)
	}

	recent, err := store.List(ctx, buildListOptions([]ListOption{WithUpdatedSince(base.Add(15 * time.Second))}))
	if err != nil {
		t.Fatalf("list recent: %v", err)
	}
	if len(recent) != 2 {
		t.Fatalf("expected 2 tasks to match since filter, got %d", len(recent))
	}

	paged, err := store.List(ctx, buildListOptions([]ListOption{WithLimit(1), WithOffset(1)}))
	if err != nil {
		t.Fatalf("list paged: %v", err)
	}
	if len(paged) != 1 || paged[0].ID != "t2" {
		t.Fatalf("unexpected page: %+v", paged)
	}
}

func TestMemoryStoreClaimLifecycle(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	if err := store.Create(ctx, &Task{ID: "job", Tool: "extract_tasks", MaxRetries: 2}); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := store.Create(ctx, &Task{ID: "job", Tool: "extract_tasks"}); !IsTaskError(err, CodeTaskConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}

	claimed, err := store.Claim(ctx, "job")
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if claimed.Status != StatusRunning || claimed.Attempts != 1 {
		t.Fatalf("unexpected claimed task: %+v", claimed)
	}
	if _, err := store.Claim(ctx, "job"); !IsTaskError(err, CodeTaskConflict) {
		t.Fatalf("running task should not be claimed twice, got %v", err)
	}

	if err := store.MarkFailed(ctx, "job", xerrors.CodeTimeout, "slow", nil, false); err != nil {
		t.Fatalf("mark failed: %v", err)
	}
	retry, err := store.Claim(ctx, "job")
	if err != nil {
		t.Fatalf("retry claim: %v", err)
	}
	if retry.Attempts != 2 {
		t.Fatalf("expected second attempt, got %d", retry.Attempts)
	}

	if err := store.MarkFailed(ctx, "job", xerrors.CodeTimeout, "slow", nil, false); err != nil {
		t.Fatalf("mark failed: %v", err)
	}
	if _, err := store.Claim(ctx, "job"); !IsTaskError(err, CodeTaskExhausted) {
		t.Fatalf("expected exhausted, got %v", err)
	}

	if _, err := store.Claim(ctx, "missing"); !IsTaskError(err, CodeTaskNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestMemoryStoreReturnsCopies(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	args := map[string]string{"query": "订单 A1 取消"}
	if err := store.Create(ctx, &Task{ID: "c", Tool: "extract_tasks", Arguments: args, MaxRetries: 1}); err != nil {
		t.Fatalf("create: %v", err)
	}
	args["query"] = "changed"

	got, err := store.Get(ctx, "c")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	got.Arguments["query"] = "mutated"

	again, _ := store.Get(ctx, "c")
	if again.Arguments["query"] != "订单 A1 取消" {
		t.Fatalf("store should keep its own copy, got %q", again.Arguments["query"])
	}
}

func TestMemoryStoreStats(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	base := time.Now().Add(-3 * time.Minute)
	for _, id := range []string{"a", "b", "c"} {
		if err := store.Create(ctx, &Task{ID: id, Tool: "extract_tasks", MaxRetries: 3}); err != nil {
			t.Fatalf("create task %s: %v", id, err)
		}
	}

	if err := store.MarkFailed(ctx, "b", CodeTaskProcessing, "boom", nil, true); err != nil {
		t.Fatalf("mark failed: %v", err)
	}
	if err := store.MarkSucceeded(ctx, "c", json.RawMessage(`"ok"`)); err != nil {
		t.Fatalf("mark succeeded: %v", err)
	}

	store.mu.Lock()
	store.tasks["a"].UpdatedAt = base.Unix()
	store.tasks["b"].UpdatedAt = base.Add(30 * time.Second).Unix()
	store.tasks["c"].UpdatedAt = base.Add(2 * time.Minute).Unix()
	store.mu.Unlock()

	stats, err := store.Stats(ctx, ListOptions{})
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.Total != 3 || stats.Pending != 1 || stats.Failed != 1 || stats.Succeeded != 1 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
	if stats.NewestUpdatedAt != base.Add(2*time.Minute).Unix() {
		t.Fatalf("unexpected newest timestamp: %d", stats.NewestUpdatedAt)
	}
	if stats.OldestUpdatedAt != base.Unix() {
		t.Fatalf("unexpected oldest timestamp: %d", stats.OldestUpdatedAt)
	}

	failedOnly, err := store.Stats(ctx, buildListOptions([]ListOption{WithStatuses(StatusFailed)}))
	if err != nil {
		t.Fatalf("stats failed only: %v", err)
	}
	if failedOnly.Total != 1 || failedOnly.Failed != 1 {
		t.Fatalf("unexpected failed stats: %+v", failedOnly)
	}
}
