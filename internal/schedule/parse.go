package schedule

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
	"time"
)

// timeLayout is the leading field of every schedule line (24-hour clock).
const timeLayout = "15:04:05"

// maxLineBytes bounds a single schedule line.
const maxLineBytes = 1 << 20

// Skip records a line the tolerant parser ignored.
type Skip struct {
	Line   int
	Reason string
}

func (s Skip) String() string { return fmt.Sprintf("line %d: %s", s.Line, s.Reason) }

// ParseLine parses one schedule line: tab-separated fields, the first a
// HH:MM:SS time, the last the message. It returns ok=false with a reason
// for lines that should be skipped.
func ParseLine(line string) (e Entry, reason string, ok bool) {
	line = strings.TrimSpace(line)
	if line == "" {
		return Entry{}, "blank line", false
	}
	fields := strings.Split(line, "\t")
	t, err := time.Parse(timeLayout, strings.TrimSpace(fields[0]))
	if err != nil {
		return Entry{}, fmt.Sprintf("invalid time %q", fields[0]), false
	}
	msg := strings.TrimSpace(fields[len(fields)-1])
	if len(fields) < 2 || msg == "" {
		return Entry{}, "missing message", false
	}
	return Entry{At: TimeOfDayOf(t), Message: msg}, "", true
}

// Parse reads a whole schedule, skipping malformed lines. The only error
// is a read failure; a file without valid lines yields an empty schedule.
func Parse(r io.Reader) (Schedule, []Skip, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineBytes)

	var (
		entries []Entry
		skips   []Skip
		n       int
	)
	for sc.Scan() {
		n++
		text := sc.Text()
		if n == 1 {
			text = strings.TrimPrefix(text, "\ufeff")
		}
		e, reason, ok := ParseLine(text)
		if !ok {
			skips = append(skips, Skip{Line: n, Reason: reason})
			continue
		}
		entries = append(entries, e)
	}
	if err := sc.Err(); err != nil {
		return Schedule{}, skips, err
	}
	return New(entries), skips, nil
}

// Load parses the schedule file at path.
func Load(path string) (Schedule, []Skip, error) {
	f, err := os.Open(path)
	if err != nil {
		return Schedule{}, nil, fmt.Errorf("open schedule: %w", err)
	}
	defer f.Close()
	s, skips, err := Parse(f)
	if err != nil {
		return Schedule{}, skips, fmt.Errorf("read schedule %s: %w", path, err)
	}
	return s, skips, nil
}
