// Package calendar provides calendar-day arithmetic independent of wall-clock durations.
package calendar

import (
	"database/sql/driver"
	"fmt"
	"sync"
	"time"
)

// Layout is the wire and storage format of a Date.
const Layout = "2006-01-02"

// Date is a calendar day formatted as YYYY-MM-DD. The zero value means "no date".
type Date string

// Parse validates s and returns it as a Date.
func Parse(s string) (Date, error) {
	t, err := time.Parse(Layout, s)
	if err != nil {
		return "", fmt.Errorf("invalid date %q: %w", s, err)
	}
	return Date(t.Format(Layout)), nil
}

// MustParse is Parse for constants in tests and fixtures.
func MustParse(s string) Date {
	d, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return d
}

// FromTime returns the calendar day of t as observed in loc.
func FromTime(t time.Time, loc *time.Location) Date {
	if loc == nil {
		loc = time.UTC
	}
	return Date(t.In(loc).Format(Layout))
}

// IsZero reports whether d is unset.
func (d Date) IsZero() bool {
	return d == ""
}

func (d Date) String() string {
	return string(d)
}

// midnight returns d at 00:00 UTC. Day arithmetic is done in UTC so DST never shifts it.
func (d Date) midnight() time.Time {
	t, err := time.Parse(Layout, string(d))
	if err != nil {
		panic(fmt.Sprintf("calendar: malformed date %q", string(d)))
	}
	return t
}

// AddDays returns the date n days after d (n may be negative).
func (d Date) AddDays(n int) Date {
	return Date(d.midnight().AddDate(0, 0, n).Format(Layout))
}

// DaysSince returns the number of calendar days from other to d.
func (d Date) DaysSince(other Date) int {
	return int(d.midnight().Sub(other.midnight()).Hours() / 24)
}

// Before reports whether d is strictly earlier than other.
func (d Date) Before(other Date) bool {
	return d < other
}

// After reports whether d is strictly later than other.
func (d Date) After(other Date) bool {
	return d > other
}

// Ptr returns a pointer to d, or nil for the zero date.
func (d Date) Ptr() *Date {
	if d.IsZero() {
		return nil
	}
	return &d
}

// Deref dereferences p, returning the zero date for nil.
func Deref(p *Date) Date {
	if p == nil {
		return ""
	}
	return *p
}

// Value implements driver.Valuer.
func (d Date) Value() (driver.Value, error) {
	if d.IsZero() {
		return nil, nil
	}
	return string(d), nil
}

// Scan implements sql.Scanner. DATE columns come back as time.Time on some drivers.
func (d *Date) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*d = ""
	case string:
		*d = Date(v)
	case []byte:
		*d = Date(v)
	case time.Time:
		*d = Date(v.Format(Layout))
	default:
		return fmt.Errorf("calendar: cannot scan %T into Date", src)
	}
	return nil
}

// Clock supplies "now". Engine code never reads the process clock directly.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the process clock.
type SystemClock struct{}

// Now returns time.Now().
func (SystemClock) Now() time.Time {
	return time.Now()
}

// FixedClock is a settable clock for tests and replays.
type FixedClock struct {
	mu  sync.Mutex
	now time.Time
}

// NewFixedClock returns a clock stopped at now.
func NewFixedClock(now time.Time) *FixedClock {
	return &FixedClock{now: now}
}

// NewFixedClockOn returns a clock stopped at noon UTC on d.
func NewFixedClockOn(d Date) *FixedClock {
	return &FixedClock{now: d.midnight().Add(12 * time.Hour)}
}

// Now returns the stored time.
func (c *FixedClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Set moves the clock to t.
func (c *FixedClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

// AdvanceDays moves the clock forward by n calendar days.
func (c *FixedClock) AdvanceDays(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.AddDate(0, 0, n)
}

// Today returns the calendar day of clock in loc.
func Today(clock Clock, loc *time.Location) Date {
	return FromTime(clock.Now(), loc)
}
