package logtail

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"
)

// Read returns at most maxLines from the end of the file at path. A
// non-positive maxLines returns every line. A missing file is not an error.
func Read(path string, maxLines int) ([]string, error) {
	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("open log: %w", err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	if maxLines <= 0 {
		var lines []string
		for scanner.Scan() {
			lines = append(lines, scanner.Text())
		}
		if err := scanner.Err(); err != nil {
			return nil, fmt.Errorf("read log: %w", err)
		}
		return lines, nil
	}

	ring := make([]string, maxLines)
	count := 0
	idx := 0
	for scanner.Scan() {
		ring[idx] = scanner.Text()
		idx = (idx + 1) % maxLines
		if count < maxLines {
			count++
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read log: %w", err)
	}

	lines := make([]string, count)
	if count == maxLines {
		for i := 0; i < count; i++ {
			lines[i] = ring[(idx+i)%maxLines]
		}
	} else {
		copy(lines, ring[:count])
	}
	return lines, nil
}

// Entry is one decoded log record.
type Entry struct {
	Time   time.Time
	Level  string
	Logger string
	Msg    string
	Fields map[string]any
	Raw    string // set when the line was not a JSON record
}

var reserved = map[string]bool{
	"ts": true, "level": true, "logger": true, "msg": true, "caller": true, "pid": true,
}

// Parse decodes one JSON log line. Lines that are not JSON objects come back
// with only Raw set so nothing the file holds is hidden.
func Parse(line string) Entry {
	trimmed := strings.TrimSpace(line)
	if !strings.HasPrefix(trimmed, "{") {
		return Entry{Raw: line}
	}
	var record map[string]any
	if err := json.Unmarshal([]byte(trimmed), &record); err != nil {
		return Entry{Raw: line}
	}

	e := Entry{Fields: make(map[string]any)}
	if s, ok := record["ts"].(string); ok {
		if t, err := time.Parse("2006-01-02T15:04:05.000Z0700", s); err == nil {
			e.Time = t
		}
	}
	e.Level, _ = record["level"].(string)
	e.Logger, _ = record["logger"].(string)
	e.Msg, _ = record["msg"].(string)
	for k, v := range record {
		if !reserved[k] {
			e.Fields[k] = v
		}
	}
	return e
}

// ParseLines decodes every line.
func ParseLines(lines []string) []Entry {
	out := make([]Entry, 0, len(lines))
	for _, l := range lines {
		out = append(out, Parse(l))
	}
	return out
}

// Format renders an entry on one line:
//
//	15:04:05 WARN  poll     snapshot fetch failed  error=... failures=2
func Format(e Entry) string {
	if e.Raw != "" || (e.Msg == "" && e.Level == "") {
		return e.Raw
	}
	var b strings.Builder
	if !e.Time.IsZero() {
		b.WriteString(e.Time.Local().Format("15:04:05"))
		b.WriteByte(' ')
	}
	fmt.Fprintf(&b, "%-5s ", strings.ToUpper(e.Level))
	if e.Logger != "" {
		fmt.Fprintf(&b, "%-8s ", e.Logger)
	}
	b.WriteString(e.Msg)

	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for i, k := range keys {
		if i == 0 {
			b.WriteString("  ")
		} else {
			b.WriteByte(' ')
		}
		fmt.Fprintf(&b, "%s=%v", k, e.Fields[k])
	}
	return b.String()
}
