package address

import "testing"

func TestExtractAddressProbeOrder(t *testing.T) {
	cases := []struct {
		name string
		body any
		want string
	}{
		{name: "address wins", body: map[string]any{"location": "L", "address": "A"}, want: "A"},
		{name: "shipping before addr", body: map[string]any{"addr": "B", "shipping_address": "S"}, want: "S"},
		{name: "location last", body: map[string]any{"location": "L", "city": "X"}, want: "L"},
		{name: "nested value", body: map[string]any{"address": map[string]any{"city": "上海"}}, want: `{"city":"上海"}`},
		{name: "whole payload", body: map[string]any{"city": "上海"}, want: `{"city":"上海"}`},
		{name: "text payload", body: "南京西路888号", want: "南京西路888号"},
		{name: "null payload", body: nil, want: ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := ExtractAddress(tc.body); got != tc.want {
				t.Fatalf("got %q, want %q", got, tc.want)
			}
		})
	}
}

func TestSimilar(t *testing.T) {
	cases := []struct {
		a, b string
		want bool
	}{
		{"123 Main St", "123 main st", true},
		{"123MainSt", "123 main st", true},
		{"上海市南京西路888号", "南京西路 888号", true},
		{"南京西路888号", "上海市南京西路888号", true},
		{"北京市朝阳路1号", "上海市南京西路888号", false},
		{"", "anything", true},
		{"   ", "", true},
	}
	for _, tc := range cases {
		if got := Similar(tc.a, tc.b); got != tc.want {
			t.Fatalf("Similar(%q, %q) = %v, want %v", tc.a, tc.b, got, tc.want)
		}
	}
}
