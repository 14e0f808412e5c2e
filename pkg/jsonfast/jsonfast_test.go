package jsonfast

import (
	"encoding/json"
	"testing"
	"time"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name     string
		capacity int
		min      int
	}{
		{"positive capacity", 512, 512},
		{"zero capacity", 0, 256},
		{"negative capacity", -10, 256},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := New(tt.capacity)
			if cap(b.buf) < tt.min {
				t.Errorf("expected capacity >= %d, got %d", tt.min, cap(b.buf))
			}
		})
	}
}

func TestEmptyObject(t *testing.T) {
	b := New(0)
	b.EndObject()
	if got := string(b.Bytes()); got != `{}` {
		t.Errorf("expected {}, got %s", got)
	}
}

func TestFields(t *testing.T) {
	ts := time.Date(2026, 3, 4, 5, 6, 7, 89_000_000, time.FixedZone("CET", 3600))

	b := New(0)
	b.BeginObject()
	b.AddStringField("topic", "sensors/room1/temp")
	b.AddRawJSONField("payload", []byte(`{"v":21.5}`))
	b.AddTimeField("observedAt", ts)
	b.AddStringArrayField("ids", []string{"r1", "r2"})
	b.AddStringArrayField("none", nil)
	b.AddRawJSONField("empty", nil)
	b.EndObject()

	want := `{"topic":"sensors/room1/temp","payload":{"v":21.5},` +
		`"observedAt":"2026-03-04T04:06:07.089Z","ids":["r1","r2"],"none":[],"empty":null}`
	if got := string(b.Bytes()); got != want {
		t.Errorf("got  %s\nwant %s", got, want)
	}

	var decoded map[string]interface{}
	if err := json.Unmarshal(b.Bytes(), &decoded); err != nil {
		t.Fatalf("builder produced invalid JSON: %v", err)
	}
}

func TestTimeFieldParsesBack(t *testing.T) {
	ts := time.Date(2025, 12, 31, 23, 59, 59, 999_999_999, time.UTC)
	b := New(0)
	b.AddTimeField("t", ts)
	b.EndObject()

	var decoded struct {
		T time.Time `json:"t"`
	}
	if err := json.Unmarshal(b.Bytes(), &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !decoded.T.Equal(ts.Truncate(time.Millisecond)) {
		t.Errorf("got %v, want %v", decoded.T, ts.Truncate(time.Millisecond))
	}
}

func TestEscapeString(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{`plain`, `{"s":"plain"}`},
		{`quo"te`, `{"s":"quo\"te"}`},
		{`back\slash`, `{"s":"back\\slash"}`},
		{"line\nbreak\r\ttab", `{"s":"line\nbreak\r\ttab"}`},
		{"ctl\x01\x1f", `{"s":"ctl\u0001\u001f"}`},
		{"utf8 ✓", `{"s":"utf8 ✓"}`},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			b := New(0)
			b.AddStringField("s", tt.in)
			b.EndObject()
			if got := string(b.Bytes()); got != tt.want {
				t.Errorf("got %s, want %s", got, tt.want)
			}

			var decoded map[string]string
			if err := json.Unmarshal(b.Bytes(), &decoded); err != nil {
				t.Fatalf("invalid JSON: %v", err)
			}
			if decoded["s"] != tt.in {
				t.Errorf("round trip mismatch: %q vs %q", decoded["s"], tt.in)
			}
		})
	}
}

func TestQuote(t *testing.T) {
	if got := string(Quote(`say "hi"`)); got != `"say \"hi\""` {
		t.Errorf("got %s", got)
	}
	if got := string(Quote("")); got != `""` {
		t.Errorf("got %s", got)
	}
}
