// Package schedule drives the two timing duties of the engine: the
// fixed-interval refresh loop and the wall-clock-gated notification pass.
package schedule

import (
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Window is the daily set of minutes at which notification passes may run:
// every Step minutes from Start, plus the End slot itself, in Location's
// wall-clock time.
type Window struct {
	StartMinutes int // minutes past midnight
	EndMinutes   int
	StepMinutes  int
	Location     *time.Location
}

// NewWindow parses "HH:MM" bounds and a step duration, resolving tz as an
// IANA timezone name.
func NewWindow(start, end string, step time.Duration, tz string) (Window, error) {
	sh, sm, err := parseHHMM(start)
	if err != nil {
		return Window{}, err
	}
	eh, em, err := parseHHMM(end)
	if err != nil {
		return Window{}, err
	}
	stepMin := int(step / time.Minute)
	if stepMin <= 0 {
		return Window{}, fmt.Errorf("window step must be at least 1m, got %s", step)
	}
	loc, err := time.LoadLocation(strings.TrimSpace(tz))
	if err != nil {
		return Window{}, fmt.Errorf("invalid timezone %q: %w", tz, err)
	}

	w := Window{
		StartMinutes: sh*60 + sm,
		EndMinutes:   eh*60 + em,
		StepMinutes:  stepMin,
		Location:     loc,
	}
	if w.EndMinutes < w.StartMinutes {
		return Window{}, fmt.Errorf("window end %s is before start %s", end, start)
	}
	return w, nil
}

// Matches reports whether t falls on one of the window's slots. The slot
// sequence starts at Start, advances by Step, and always includes End even
// when End is off the step grid.
func (w Window) Matches(t time.Time) bool {
	lt := t.In(w.Location)
	now := lt.Hour()*60 + lt.Minute()
	if now == w.EndMinutes {
		return true
	}
	if now < w.StartMinutes || now > w.EndMinutes {
		return false
	}
	return (now-w.StartMinutes)%w.StepMinutes == 0
}

func (w Window) String() string {
	return fmt.Sprintf("%02d:%02d-%02d:%02d/%dm %s",
		w.StartMinutes/60, w.StartMinutes%60,
		w.EndMinutes/60, w.EndMinutes%60,
		w.StepMinutes, w.Location)
}

func parseHHMM(s string) (hour int, minute int, err error) {
	s = strings.TrimSpace(s)
	parts := strings.Split(s, ":")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("invalid time %q, expected HH:MM", s)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 || h > 23 {
		return 0, 0, fmt.Errorf("invalid hour in %q", s)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 {
		return 0, 0, fmt.Errorf("invalid minute in %q", s)
	}
	return h, m, nil
}

// Gate ensures a pass runs at most once per matching minute, even when the
// minute check executes more than once inside the same minute (timer drift
// can land checks slightly early or late around a boundary).
type Gate struct {
	mu        sync.Mutex
	lastFired int64 // minute index, monotone
	armed     bool
}

// TryFire claims the minute containing t. It returns true exactly once per
// minute; the claimed index only moves forward.
func (g *Gate) TryFire(t time.Time) bool {
	k := t.Unix() / 60
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.armed && k <= g.lastFired {
		return false
	}
	g.lastFired = k
	g.armed = true
	return true
}
