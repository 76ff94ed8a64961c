// Package schedule loads the time-of-day remark table and resolves which
// remark is current.
//
// Times carry no date. Resolution compares time of day only, so a remark
// scheduled late in the evening stops being current at midnight and nothing
// is current until the day's first entry.
package schedule

import (
	"fmt"
	"sort"
	"time"
)

// TimeOfDay is seconds since midnight, 0..86399.
type TimeOfDay int

const secondsPerDay = 24 * 60 * 60

// TimeOfDayOf returns t's wall-clock time of day in t's location.
func TimeOfDayOf(t time.Time) TimeOfDay {
	h, m, s := t.Clock()
	return TimeOfDay(h*3600 + m*60 + s)
}

// Clock builds a TimeOfDay; it panics on out-of-range input.
func Clock(h, m, s int) TimeOfDay {
	if h < 0 || h > 23 || m < 0 || m > 59 || s < 0 || s > 59 {
		panic(fmt.Sprintf("schedule: invalid clock %02d:%02d:%02d", h, m, s))
	}
	return TimeOfDay(h*3600 + m*60 + s)
}

func (t TimeOfDay) String() string {
	v := int(t) % secondsPerDay
	return fmt.Sprintf("%02d:%02d:%02d", v/3600, v/60%60, v%60)
}

// Entry is one scheduled remark.
type Entry struct {
	At      TimeOfDay
	Message string
}

// Schedule is an immutable, ascending-by-time list of entries.
type Schedule struct {
	entries []Entry
}

// New copies and stably sorts entries. Entries sharing a time keep their
// input order, so the later one wins in Resolve.
func New(entries []Entry) Schedule {
	cp := append([]Entry(nil), entries...)
	sort.SliceStable(cp, func(i, j int) bool { return cp[i].At < cp[j].At })
	return Schedule{entries: cp}
}

func (s Schedule) Len() int { return len(s.entries) }

// Entries returns a copy of the sorted entries.
func (s Schedule) Entries() []Entry { return append([]Entry(nil), s.entries...) }

// Resolve returns the message of the latest entry whose time is <= now.
// ok is false when now is before the first entry (or the schedule is empty).
func (s Schedule) Resolve(now TimeOfDay) (msg string, ok bool) {
	// First index with At > now; its predecessor is the answer.
	i := sort.Search(len(s.entries), func(i int) bool { return s.entries[i].At > now })
	if i == 0 {
		return "", false
	}
	return s.entries[i-1].Message, true
}

// ResolveAt is Resolve for a wall-clock instant.
func (s Schedule) ResolveAt(t time.Time) (string, bool) {
	return s.Resolve(TimeOfDayOf(t))
}

// Next returns the first entry strictly after now, if any. Used for status
// logging ("next remark at ...").
func (s Schedule) Next(now TimeOfDay) (Entry, bool) {
	i := sort.Search(len(s.entries), func(i int) bool { return s.entries[i].At > now })
	if i == len(s.entries) {
		return Entry{}, false
	}
	return s.entries[i], true
}
