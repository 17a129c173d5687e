package logtail

import (
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
)

func TestRead(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "test.log")

	var content strings.Builder
	var expectedAll []string
	for i := 1; i <= 10; i++ {
		line := fmt.Sprintf("Line %d", i)
		content.WriteString(line + "\n")
		expectedAll = append(expectedAll, line)
	}
	if err := os.WriteFile(logPath, []byte(content.String()), 0644); err != nil {
		t.Fatalf("failed to create test log file: %v", err)
	}

	tests := []struct {
		name     string
		maxLines int
		expected []string
	}{
		{"read all (0)", 0, expectedAll},
		{"read all (negative)", -1, expectedAll},
		{"read partial (5)", 5, expectedAll[5:]},
		{"read exactly all (10)", 10, expectedAll},
		{"read more than exists (20)", 20, expectedAll},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Read(logPath, tt.maxLines)
			if err != nil {
				t.Fatalf("Read() error = %v", err)
			}
			if !reflect.DeepEqual(got, tt.expected) {
				t.Errorf("Read() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestRead_MissingFile(t *testing.T) {
	got, err := Read(filepath.Join(t.TempDir(), "absent.log"), 10)
	if err != nil || got != nil {
		t.Fatalf("Read(missing) = %v, %v; want nil, nil", got, err)
	}
}

func TestParse(t *testing.T) {
	line := `{"level":"warn","ts":"2026-03-01T09:00:00.000Z","logger":"poll","msg":"snapshot fetch failed","pid":7,"failures":2,"error":"timeout"}`
	e := Parse(line)

	if e.Raw != "" {
		t.Fatalf("Raw = %q, want empty", e.Raw)
	}
	if e.Level != "warn" || e.Logger != "poll" || e.Msg != "snapshot fetch failed" {
		t.Fatalf("Parse = %+v", e)
	}
	if e.Time.IsZero() || e.Time.UTC().Hour() != 9 {
		t.Fatalf("Time = %v, want 09:00 UTC", e.Time)
	}
	if _, ok := e.Fields["pid"]; ok {
		t.Fatalf("pid should be dropped from fields: %v", e.Fields)
	}
	if len(e.Fields) != 2 {
		t.Fatalf("Fields = %v, want failures and error", e.Fields)
	}
}

func TestParse_NonJSONPassesThrough(t *testing.T) {
	for _, line := range []string{"panic: boom", "{not json", ""} {
		e := Parse(line)
		if e.Raw != line {
			t.Fatalf("Parse(%q).Raw = %q", line, e.Raw)
		}
		if got := Format(e); got != line {
			t.Fatalf("Format(Parse(%q)) = %q", line, got)
		}
	}
}

func TestFormat_SortsFields(t *testing.T) {
	e := Parse(`{"level":"info","logger":"commit","msg":"commit accepted","units":2,"commit":"abc"}`)
	got := Format(e)
	want := "INFO  commit   commit accepted  commit=abc units=2"
	if got != want {
		t.Fatalf("Format = %q, want %q", got, want)
	}
}

func TestParseLines(t *testing.T) {
	entries := ParseLines([]string{`{"level":"error","msg":"x"}`, "plain"})
	if len(entries) != 2 || entries[0].Level != "error" || entries[1].Raw != "plain" {
		t.Fatalf("ParseLines = %+v", entries)
	}
}
