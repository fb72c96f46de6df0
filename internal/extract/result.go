package extract

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"OrderMCP/internal/fallback"
)

// Taxonomy 是意图库，结构不透明，原样嵌入模型指令。
type Taxonomy map[string]any

// TaskRecord 是一条订单任务。
type TaskRecord struct {
	OrderID string
	Purpose string
}

// Result 是任务拆解结果。Valid 为 false 时 Tasks 必须为空。
// Source 记录产生结果的路径，仅用于审计，不参与序列化。
type Result struct {
	Valid  bool
	Tasks  []TaskRecord
	Source fallback.Source
}

// Invalid 返回无效问题结果。
func Invalid() Result {
	return Result{}
}

// TaskCount 返回任务数量。
func (r Result) TaskCount() int {
	return len(r.Tasks)
}

// MultiTask 由任务数量推导。
func (r Result) MultiTask() bool {
	return r.TaskCount() > 1
}

// Validate 检查结果是否满足输出契约。
func (r Result) Validate() error {
	if !r.Valid {
		if len(r.Tasks) != 0 {
			return fmt.Errorf("invalid result must not carry tasks")
		}
		return nil
	}
	if len(r.Tasks) == 0 {
		return fmt.Errorf("valid result requires at least one task")
	}
	for i, task := range r.Tasks {
		if strings.TrimSpace(task.OrderID) == "" {
			return fmt.Errorf("task %d: empty order_id", i+1)
		}
		if strings.TrimSpace(task.Purpose) == "" {
			return fmt.Errorf("task %d: empty purpose", i+1)
		}
	}
	return nil
}

// MarshalJSON 输出线上格式：单任务使用 tasks，多任务使用 task_1..task_n。
func (r Result) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	if !r.Valid {
		buf.WriteString(`{"valid_question":"no"}`)
		return buf.Bytes(), nil
	}
	if len(r.Tasks) == 0 {
		return nil, fmt.Errorf("valid result requires at least one task")
	}

	multi := "no"
	if r.MultiTask() {
		multi = "yes"
	}
	fmt.Fprintf(&buf, `{"valid_question":"yes","multi-task":%q,"task_count":%d`, multi, r.TaskCount())

	if !r.MultiTask() {
		buf.WriteString(`,"tasks":`)
		if err := writeSlot(&buf, 1, r.Tasks[0]); err != nil {
			return nil, err
		}
	} else {
		for i, task := range r.Tasks {
			fmt.Fprintf(&buf, `,"task_%d":`, i+1)
			if err := writeSlot(&buf, i+1, task); err != nil {
				return nil, err
			}
		}
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func writeSlot(buf *bytes.Buffer, index int, task TaskRecord) error {
	orderID, err := json.Marshal(task.OrderID)
	if err != nil {
		return err
	}
	purpose, err := json.Marshal(task.Purpose)
	if err != nil {
		return err
	}
	fmt.Fprintf(buf, `{"order_id_%d":%s,"purpose_%d":%s}`, index, orderID, index, purpose)
	return nil
}

// UnmarshalJSON 解析模型输出。布尔字段接受 "yes"/"no" 或 JSON 布尔，
// 多任务标记接受 multi-task 或 multi_task，任务槽位接受带序号或不带序号的键。
// 结构不一致时返回错误，由调用方决定是否降级。
func (r *Result) UnmarshalJSON(data []byte) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return fmt.Errorf("extraction result must be an object: %w", err)
	}

	rawValid, ok := fields["valid_question"]
	if !ok {
		return fmt.Errorf("missing valid_question")
	}
	valid, err := parseFlag(rawValid)
	if err != nil {
		return fmt.Errorf("valid_question: %w", err)
	}
	if !valid {
		if len(fields) > 1 {
			return fmt.Errorf("invalid question must not carry other fields")
		}
		*r = Invalid()
		return nil
	}

	rawCount, ok := fields["task_count"]
	if !ok {
		return fmt.Errorf("missing task_count")
	}
	count, err := parseCount(rawCount)
	if err != nil {
		return fmt.Errorf("task_count: %w", err)
	}

	rawMulti, ok := fields["multi-task"]
	if !ok {
		rawMulti, ok = fields["multi_task"]
	}
	if ok {
		multi, err := parseFlag(rawMulti)
		if err != nil {
			return fmt.Errorf("multi-task: %w", err)
		}
		if multi != (count > 1) {
			return fmt.Errorf("multi-task disagrees with task_count %d", count)
		}
	}

	tasks := make([]TaskRecord, 0, count)
	if count == 1 {
		slot, ok := fields["tasks"]
		if !ok {
			return fmt.Errorf("single task result requires tasks")
		}
		task, err := parseSlot(slot, 1)
		if err != nil {
			return fmt.Errorf("tasks: %w", err)
		}
		tasks = append(tasks, task)
	} else {
		for i := 1; i <= count; i++ {
			key := "task_" + strconv.Itoa(i)
			slot, ok := fields[key]
			if !ok {
				return fmt.Errorf("missing %s", key)
			}
			task, err := parseSlot(slot, i)
			if err != nil {
				return fmt.Errorf("%s: %w", key, err)
			}
			tasks = append(tasks, task)
		}
	}

	*r = Result{Valid: true, Tasks: tasks}
	return nil
}

func parseFlag(raw json.RawMessage) (bool, error) {
	var b bool
	if err := json.Unmarshal(raw, &b); err == nil {
		return b, nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return false, fmt.Errorf("expected yes/no, got %s", raw)
	}
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "yes", "true":
		return true, nil
	case "no", "false":
		return false, nil
	}
	return false, fmt.Errorf("expected yes/no, got %q", s)
}

func parseCount(raw json.RawMessage) (int, error) {
	var n int
	if err := json.Unmarshal(raw, &n); err != nil {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return 0, fmt.Errorf("expected integer, got %s", raw)
		}
		if n, err = strconv.Atoi(strings.TrimSpace(s)); err != nil {
			return 0, fmt.Errorf("expected integer, got %q", s)
		}
	}
	if n < 1 {
		return 0, fmt.Errorf("must be at least 1, got %d", n)
	}
	return n, nil
}

func parseSlot(raw json.RawMessage, index int) (TaskRecord, error) {
	var slot map[string]any
	if err := json.Unmarshal(raw, &slot); err != nil {
		return TaskRecord{}, fmt.Errorf("task slot must be an object")
	}
	suffix := "_" + strconv.Itoa(index)
	orderID := lookupString(slot, "order_id"+suffix, "order_id")
	purpose := lookupString(slot, "purpose"+suffix, "purpose")
	if orderID == "" || purpose == "" {
		return TaskRecord{}, fmt.Errorf("order_id%s and purpose%s are required", suffix, suffix)
	}
	return TaskRecord{OrderID: orderID, Purpose: purpose}, nil
}

func lookupString(slot map[string]any, keys ...string) string {
	for _, key := range keys {
		if v, ok := slot[key]; ok {
			switch val := v.(type) {
			case string:
				return strings.TrimSpace(val)
			case float64:
				return strconv.FormatFloat(val, 'f', -1, 64)
			}
		}
	}
	return ""
}
