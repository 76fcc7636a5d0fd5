// Package timeslot holds the wall-clock arithmetic used by the schedule:
// slot generation and half-open interval tests over minutes since midnight.
package timeslot

import (
	"fmt"
	"iter"
	"strconv"
	"strings"
)

const (
	// DefaultGranularity is the slot length used when none is configured.
	DefaultGranularity = 30
	// MinutesPerDay bounds every same-day interval.
	MinutesPerDay = 24 * 60
)

// Minutes counts minutes since midnight.
type Minutes int

// Slot is the start of a fixed-duration time-of-day unit.
type Slot struct {
	Start  Minutes
	Length Minutes
}

// End returns the exclusive end of the slot.
func (s Slot) End() Minutes { return s.Start + s.Length }

func (s Slot) String() string { return s.Start.String() }

// String formats m as HH:MM.
func (m Minutes) String() string {
	return fmt.Sprintf("%02d:%02d", int(m)/60, int(m)%60)
}

// MarshalText renders HH:MM so JSON payloads carry wall-clock strings.
func (m Minutes) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

// UnmarshalText parses HH:MM.
func (m *Minutes) UnmarshalText(text []byte) error {
	parsed, err := ParseClock(string(text))
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

// SlotsForDay yields the slots covering 00:00 up to the last start before
// midnight. Each call to the returned sequence starts over.
func SlotsForDay(granularity int) iter.Seq[Slot] {
	if granularity <= 0 {
		granularity = DefaultGranularity
	}
	step := Minutes(granularity)
	return func(yield func(Slot) bool) {
		for start := Minutes(0); start < MinutesPerDay; start += step {
			if !yield(Slot{Start: start, Length: step}) {
				return
			}
		}
	}
}

// Overlaps reports whether [aStart,aEnd) and [bStart,bEnd) intersect.
// Touching endpoints do not overlap.
func Overlaps(aStart, aEnd, bStart, bEnd Minutes) bool {
	return aStart < bEnd && bStart < aEnd
}

// Covers reports whether slot falls inside [start,end).
func Covers(slot, start, end Minutes) bool {
	return start <= slot && slot < end
}

// ParseClock parses "HH:MM" (24h). "24:00" is accepted as end of day.
func ParseClock(raw string) (Minutes, error) {
	raw = strings.TrimSpace(raw)
	hh, mm, ok := strings.Cut(raw, ":")
	if !ok || len(hh) == 0 || len(hh) > 2 || len(mm) != 2 || !digits(hh) || !digits(mm) {
		return 0, fmt.Errorf("time must be in HH:MM format")
	}
	hour, err := strconv.Atoi(hh)
	if err != nil {
		return 0, fmt.Errorf("time must be in HH:MM format")
	}
	minute, err := strconv.Atoi(mm)
	if err != nil {
		return 0, fmt.Errorf("time must be in HH:MM format")
	}
	if minute < 0 || minute > 59 || hour < 0 || hour > 24 || (hour == 24 && minute != 0) {
		return 0, fmt.Errorf("time out of range")
	}
	return Minutes(hour*60 + minute), nil
}

func digits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

// Valid reports whether [start,end) is a non-empty same-day interval.
func Valid(start, end Minutes) bool {
	return start >= 0 && end <= MinutesPerDay && start < end
}
