package extract

import (
	"encoding/json"
	"reflect"
	"testing"
)

func TestMarshalSingleTask(t *testing.T) {
	r := Result{Valid: true, Tasks: []TaskRecord{{OrderID: "A1", Purpose: PurposeCancel}}}
	encoded, err := json.Marshal(r)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	want := `{"valid_question":"yes","multi-task":"no","task_count":1,"tasks":{"order_id_1":"A1","purpose_1":"取消订单"}}`
	if string(encoded) != want {
		t.Fatalf("got %s\nwant %s", encoded, want)
	}
}

func TestMarshalMultiTask(t *testing.T) {
	r := Result{Valid: true, Tasks: []TaskRecord{
		{OrderID: "A1", Purpose: PurposeQueryStatus},
		{OrderID: "B2", Purpose: PurposeModify},
	}}
	encoded, err := json.Marshal(r)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	want := `{"valid_question":"yes","multi-task":"yes","task_count":2,` +
		`"task_1":{"order_id_1":"A1","purpose_1":"查询订单状态"},` +
		`"task_2":{"order_id_2":"B2","purpose_2":"修改订单"}}`
	if string(encoded) != want {
		t.Fatalf("got %s\nwant %s", encoded, want)
	}
}

func TestUnmarshalAcceptedShapes(t *testing.T) {
	cases := []struct {
		name string
		raw  string
		want Result
	}{
		{
			name: "invalid",
			raw:  `{"valid_question":"no"}`,
			want: Result{},
		},
		{
			name: "single",
			raw:  `{"valid_question":"yes","multi-task":"no","task_count":1,"tasks":{"order_id_1":"A1","purpose_1":"取消订单"}}`,
			want: Result{Valid: true, Tasks: []TaskRecord{{OrderID: "A1", Purpose: "取消订单"}}},
		},
		{
			name: "booleans and unnumbered slot",
			raw:  `{"valid_question":true,"multi_task":false,"task_count":"1","tasks":{"order_id":"A1","purpose":"查询订单状态"}}`,
			want: Result{Valid: true, Tasks: []TaskRecord{{OrderID: "A1", Purpose: "查询订单状态"}}},
		},
		{
			name: "multi",
			raw:  `{"valid_question":"yes","multi-task":"yes","task_count":2,"task_1":{"order_id_1":"A1","purpose_1":"p1"},"task_2":{"order_id_2":"B2","purpose_2":"p2"}}`,
			want: Result{Valid: true, Tasks: []TaskRecord{{OrderID: "A1", Purpose: "p1"}, {OrderID: "B2", Purpose: "p2"}}},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var got Result
			if err := json.Unmarshal([]byte(tc.raw), &got); err != nil {
				t.Fatalf("unmarshal: %v", err)
			}
			if !reflect.DeepEqual(got, tc.want) {
				t.Fatalf("got %+v, want %+v", got, tc.want)
			}
		})
	}
}

func TestUnmarshalRejectsBrokenShapes(t *testing.T) {
	for name, raw := range map[string]string{
		"not object":          `["a"]`,
		"missing flag":        `{"task_count":1}`,
		"invalid with extras": `{"valid_question":"no","task_count":1}`,
		"missing count":       `{"valid_question":"yes","tasks":{"order_id_1":"A","purpose_1":"p"}}`,
		"zero count":          `{"valid_question":"yes","task_count":0}`,
		"flag mismatch":       `{"valid_question":"yes","multi-task":"yes","task_count":1,"tasks":{"order_id_1":"A","purpose_1":"p"}}`,
		"missing slot":        `{"valid_question":"yes","multi-task":"yes","task_count":2,"task_1":{"order_id_1":"A","purpose_1":"p"}}`,
		"single uses slots":   `{"valid_question":"yes","task_count":1,"task_1":{"order_id_1":"A","purpose_1":"p"}}`,
		"empty purpose":       `{"valid_question":"yes","task_count":1,"tasks":{"order_id_1":"A","purpose_1":""}}`,
		"weird flag":          `{"valid_question":"maybe"}`,
	} {
		var r Result
		if err := json.Unmarshal([]byte(raw), &r); err == nil {
			t.Fatalf("%s: expected error for %s", name, raw)
		}
	}
}

func TestRoundTripThroughWireForm(t *testing.T) {
	original := Heuristic("订单号：A1 订单号：B2 取消")
	encoded, err := json.Marshal(original)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var decoded Result
	if err := json.Unmarshal(encoded, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !reflect.DeepEqual(decoded.Tasks, original.Tasks) || decoded.Valid != original.Valid {
		t.Fatalf("wire form lost information: %+v vs %+v", decoded, original)
	}
}
