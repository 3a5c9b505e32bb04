package domain

import (
	"fmt"
	"strings"
	"time"
	_ "time/tzdata" // Embedded zone database so the exchange zone always loads
)

const dateKeyFormat = "2006-01-02"

// SessionCalendar describes when equities trade: a daily session window in
// the exchange's time zone, closed on weekends and listed holidays.
type SessionCalendar struct {
	Location *time.Location
	Open     time.Duration // Offset of the session open from local midnight
	Close    time.Duration // Offset of the session close from local midnight
	Holidays map[string]struct{}
}

// NewSessionCalendar creates a calendar. Holidays use the YYYY-MM-DD format.
func NewSessionCalendar(loc *time.Location, open, close time.Duration, holidays ...string) (*SessionCalendar, error) {
	if loc == nil {
		return nil, fmt.Errorf("%w: calendar location is required", ErrInvalidInput)
	}
	if open < 0 || close > 24*time.Hour || open >= close {
		return nil, fmt.Errorf("%w: session open must be before close", ErrInvalidInput)
	}

	c := &SessionCalendar{
		Location: loc,
		Open:     open,
		Close:    close,
		Holidays: make(map[string]struct{}, len(holidays)),
	}
	for _, h := range holidays {
		h = strings.TrimSpace(h)
		if h == "" {
			continue
		}
		if _, err := time.Parse(dateKeyFormat, h); err != nil {
			return nil, fmt.Errorf("%w: invalid holiday %q", ErrInvalidInput, h)
		}
		c.Holidays[h] = struct{}{}
	}
	return c, nil
}

// DefaultSessionCalendar returns the NYSE regular session, 09:30-16:00 New York time
func DefaultSessionCalendar(holidays ...string) (*SessionCalendar, error) {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		return nil, fmt.Errorf("failed to load exchange time zone: %w", err)
	}
	return NewSessionCalendar(loc, 9*time.Hour+30*time.Minute, 16*time.Hour, holidays...)
}

// DayStart returns local midnight of the day containing t
func (c *SessionCalendar) DayStart(t time.Time) time.Time {
	y, m, d := t.In(c.Location).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, c.Location)
}

// AddDays moves a day start by n calendar days
func (c *SessionCalendar) AddDays(day time.Time, n int) time.Time {
	y, m, d := day.In(c.Location).Date()
	return time.Date(y, m, d+n, 0, 0, 0, 0, c.Location)
}

// DateKey returns the local YYYY-MM-DD of t
func (c *SessionCalendar) DateKey(t time.Time) string {
	return t.In(c.Location).Format(dateKeyFormat)
}

// IsTradingDay reports whether the day containing t has a session
func (c *SessionCalendar) IsTradingDay(t time.Time) bool {
	local := t.In(c.Location)
	switch local.Weekday() {
	case time.Saturday, time.Sunday:
		return false
	}
	_, holiday := c.Holidays[local.Format(dateKeyFormat)]
	return !holiday
}

// SessionOpen returns the open of the session on the day containing t
func (c *SessionCalendar) SessionOpen(t time.Time) time.Time {
	return c.DayStart(t).Add(c.Open)
}

// SessionClose returns the close of the session on the day containing t
func (c *SessionCalendar) SessionClose(t time.Time) time.Time {
	return c.DayStart(t).Add(c.Close)
}

// InSession reports whether t falls within a trading session, open inclusive
func (c *SessionCalendar) InSession(t time.Time) bool {
	if !c.IsTradingDay(t) {
		return false
	}
	return !t.Before(c.SessionOpen(t)) && t.Before(c.SessionClose(t))
}

// PreviousTradingDay returns the start of the last trading day strictly before t's day
func (c *SessionCalendar) PreviousTradingDay(t time.Time) time.Time {
	day := c.AddDays(c.DayStart(t), -1)
	// A calendar listing every day as a holiday would loop forever; a year is plenty
	for i := 0; i < 366 && !c.IsTradingDay(day); i++ {
		day = c.AddDays(day, -1)
	}
	return day
}
