package calendar

import (
	"errors"
	"fmt"
	"time"

	"github.com/bagoessprasetyo/property-management-sub000/internal/domain"
)

// ErrInvalidWindow is returned for empty or malformed view windows.
var ErrInvalidWindow = errors.New("invalid view window")

// MaxWindowDays bounds rolling windows to keep grids renderable.
const MaxWindowDays = 366

// ViewKind names how a window was constructed.
type ViewKind string

const (
	ViewDay     ViewKind = "day"
	ViewWeek    ViewKind = "week"
	ViewMonth   ViewKind = "month"
	ViewRolling ViewKind = "rolling"
)

// Window is an ordered, contiguous run of calendar dates.
type Window struct {
	kind  ViewKind
	dates []domain.Date
}

// DayWindow is the single date d.
func DayWindow(d domain.Date) Window {
	return Window{kind: ViewDay, dates: []domain.Date{d}}
}

// WeekWindow is Monday through Sunday of the week containing d.
func WeekWindow(d domain.Date) Window {
	offset := (int(d.Weekday()) + 6) % 7
	return Window{kind: ViewWeek, dates: consecutive(d.AddDays(-offset), 7)}
}

// MonthWindow is every date of the month containing d.
func MonthWindow(d domain.Date) Window {
	first := domain.NewDate(d.Year(), d.Month(), 1)
	next := domain.NewDate(d.Year(), d.Month()+1, 1)
	return Window{kind: ViewMonth, dates: consecutive(first, first.DaysUntil(next))}
}

// RollingWindow is n consecutive dates starting at start.
func RollingWindow(start domain.Date, n int) (Window, error) {
	if start.IsZero() {
		return Window{}, fmt.Errorf("%w: missing start date", ErrInvalidWindow)
	}
	if n < 1 || n > MaxWindowDays {
		return Window{}, fmt.Errorf("%w: %d days (must be 1..%d)", ErrInvalidWindow, n, MaxWindowDays)
	}
	return Window{kind: ViewRolling, dates: consecutive(start, n)}, nil
}

// WindowFromRange is every date of the half-open range r.
func WindowFromRange(r domain.Range) (Window, error) {
	if !r.Valid() {
		return Window{}, fmt.Errorf("%w: range %s", ErrInvalidWindow, r)
	}
	return RollingWindow(r.Start, r.Nights())
}

// ParseView builds a window of the named kind anchored at d.
// For ViewRolling, days is the window length; other kinds ignore it.
func ParseView(kind string, d domain.Date, days int) (Window, error) {
	switch ViewKind(kind) {
	case ViewDay:
		return DayWindow(d), nil
	case ViewWeek:
		return WeekWindow(d), nil
	case ViewMonth:
		return MonthWindow(d), nil
	case ViewRolling, "":
		return RollingWindow(d, days)
	}
	return Window{}, fmt.Errorf("%w: unknown view %q", ErrInvalidWindow, kind)
}

func consecutive(start domain.Date, n int) []domain.Date {
	dates := make([]domain.Date, n)
	for i := range dates {
		dates[i] = start.AddDays(i)
	}
	return dates
}

// Kind returns how the window was built.
func (w Window) Kind() ViewKind { return w.kind }

// Len returns the number of dates.
func (w Window) Len() int { return len(w.dates) }

// Dates returns a copy of the window's dates.
func (w Window) Dates() []domain.Date {
	out := make([]domain.Date, len(w.dates))
	copy(out, w.dates)
	return out
}

// First returns the first date, or the zero Date for an empty window.
func (w Window) First() domain.Date {
	if len(w.dates) == 0 {
		return domain.Date{}
	}
	return w.dates[0]
}

// Last returns the last date, or the zero Date for an empty window.
func (w Window) Last() domain.Date {
	if len(w.dates) == 0 {
		return domain.Date{}
	}
	return w.dates[len(w.dates)-1]
}

// Range returns [First, Last+1).
func (w Window) Range() domain.Range {
	if len(w.dates) == 0 {
		return domain.Range{}
	}
	return domain.NewRange(w.First(), w.Last().AddDays(1))
}

// Contains reports whether d is one of the window's dates.
func (w Window) Contains(d domain.Date) bool {
	return w.Range().Contains(d)
}

// Shift moves the window by one period: a day, a week, a month, or the
// rolling length, n times (negative n moves back).
func (w Window) Shift(n int) Window {
	if len(w.dates) == 0 {
		return w
	}
	switch w.kind {
	case ViewDay:
		return DayWindow(w.First().AddDays(n))
	case ViewWeek:
		return WeekWindow(w.First().AddDays(7 * n))
	case ViewMonth:
		f := w.First()
		return MonthWindow(domain.NewDate(f.Year(), f.Month()+time.Month(n), 1))
	}
	return Window{kind: w.kind, dates: consecutive(w.First().AddDays(n*len(w.dates)), len(w.dates))}
}

// String formats the window as kind[start, end).
func (w Window) String() string {
	return fmt.Sprintf("%s%s", w.kind, w.Range())
}
