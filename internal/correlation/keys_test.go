package correlation

import (
	"net/http"
	"testing"
)

func TestFromResponseHeaders(t *testing.T) {
	tests := []struct {
		name   string
		header http.Header
		want   []Key
	}{
		{
			name:   "request id",
			header: http.Header{"X-Request-Id": {"REQ-12345"}},
			want:   []Key{{Type: "request_id", Value: "req-12345"}},
		},
		{
			name:   "correlation id",
			header: http.Header{"X-Correlation-Id": {"corr-abc-789"}},
			want:   []Key{{Type: "correlation_id", Value: "corr-abc-789"}},
		},
		{
			name:   "traceparent",
			header: http.Header{"Traceparent": {"00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-00"}},
			want:   []Key{{Type: "trace_id", Value: "4bf92f3577b34da6a3ce929d0e0e4736"}},
		},
		{
			name:   "unrelated header ignored",
			header: http.Header{"Content-Type": {"application/json"}},
			want:   nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := FromResponse(tt.header, "")
			if len(got) != len(tt.want) {
				t.Fatalf("expected %d keys, got %d: %#v", len(tt.want), len(got), got)
			}
			for i := range tt.want {
				if got[i] != tt.want[i] {
					t.Fatalf("key[%d] mismatch: got %#v want %#v", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestFromResponseBody(t *testing.T) {
	body := `{"error":"model overloaded","request_id":"req-backend-42","trace_id":"4bf92f3577b34da6a3ce929d0e0e4736"}`
	got := FromResponse(nil, body)
	want := []Key{
		{Type: "request_id", Value: "req-backend-42"},
		{Type: "trace_id", Value: "4bf92f3577b34da6a3ce929d0e0e4736"},
	}
	if len(got) != len(want) {
		t.Fatalf("expected %d keys, got %d: %#v", len(want), len(got), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("key[%d] mismatch: got %#v want %#v", i, got[i], want[i])
		}
	}
}

func TestFromResponseDedupes(t *testing.T) {
	header := http.Header{"X-Request-Id": {"req-12345"}}
	got := FromResponse(header, `request_id=req-12345`)
	if len(got) != 1 {
		t.Fatalf("expected deduped single key, got %#v", got)
	}
}
