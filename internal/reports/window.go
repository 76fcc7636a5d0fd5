package reports

import (
	"fmt"
	"iter"
	"time"

	"github.com/codr1/courtdesk/internal/apperr"
)

const dateLayout = "2006-01-02"

// Window is an inclusive date range. A single day has From == To.
type Window struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// Day is the window covering one date.
func Day(date string) Window {
	return Window{From: date, To: date}
}

// Window presets accepted by the HTTP layer.
const (
	PresetToday      = "today"
	PresetLast7Days  = "last_7_days"
	PresetLast30Days = "last_30_days"
	PresetThisMonth  = "this_month"
	PresetThisYear   = "this_year"
	PresetCustom     = "custom"
)

// Preset resolves a named window relative to now. PresetCustom is resolved
// by the caller from explicit dates.
func Preset(name string, now time.Time) (Window, error) {
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	end := today.Format(dateLayout)
	switch name {
	case PresetToday, "":
		return Window{From: end, To: end}, nil
	case PresetLast7Days:
		return Window{From: today.AddDate(0, 0, -6).Format(dateLayout), To: end}, nil
	case PresetLast30Days:
		return Window{From: today.AddDate(0, 0, -29).Format(dateLayout), To: end}, nil
	case PresetThisMonth:
		first := time.Date(today.Year(), today.Month(), 1, 0, 0, 0, 0, today.Location())
		return Window{From: first.Format(dateLayout), To: end}, nil
	case PresetThisYear:
		first := time.Date(today.Year(), time.January, 1, 0, 0, 0, 0, today.Location())
		return Window{From: first.Format(dateLayout), To: end}, nil
	default:
		return Window{}, apperr.Invalid("date_range", fmt.Sprintf("unknown preset %q", name))
	}
}

// parse checks the window shape and its length against maxDays.
func (w Window) parse(maxDays int) (time.Time, time.Time, error) {
	verr := &apperr.ValidationError{}
	from, err := time.Parse(dateLayout, w.From)
	if err != nil {
		verr.Add("from", "must be a YYYY-MM-DD date")
	}
	to, err := time.Parse(dateLayout, w.To)
	if err != nil {
		verr.Add("to", "must be a YYYY-MM-DD date")
	}
	if len(verr.Fields) == 0 {
		switch {
		case to.Before(from):
			verr.Add("to", "must not be before from")
		case maxDays > 0 && daysBetween(from, to)+1 > maxDays:
			verr.Add("to", fmt.Sprintf("window must not exceed %d days", maxDays))
		}
	}
	if err := verr.OrNil(); err != nil {
		return time.Time{}, time.Time{}, err
	}
	return from, to, nil
}

// Days yields every date in the window, inclusive. The window must be valid.
func (w Window) Days() iter.Seq[string] {
	return func(yield func(string) bool) {
		from, err := time.Parse(dateLayout, w.From)
		if err != nil {
			return
		}
		to, err := time.Parse(dateLayout, w.To)
		if err != nil {
			return
		}
		for d := from; !d.After(to); d = d.AddDate(0, 0, 1) {
			if !yield(d.Format(dateLayout)) {
				return
			}
		}
	}
}

func daysBetween(from, to time.Time) int {
	return int(to.Sub(from).Hours() / 24)
}
