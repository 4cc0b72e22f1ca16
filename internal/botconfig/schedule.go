package botconfig

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/adhocore/gronx"
)

// ClockTime is a wall-clock time of day.
type ClockTime struct {
	Hour   int
	Minute int
}

func (c ClockTime) String() string {
	return fmt.Sprintf("%02d:%02d", c.Hour, c.Minute)
}

// ParseClock parses "HH:MM" (24h). Single-digit hours are accepted.
func ParseClock(s string) (ClockTime, error) {
	hh, mm, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok || len(mm) != 2 || hh == "" || len(hh) > 2 {
		return ClockTime{}, fmt.Errorf("invalid time %q, expected HH:MM", s)
	}

	h, err := strconv.Atoi(hh)
	if err != nil {
		return ClockTime{}, fmt.Errorf("invalid hour in %q", s)
	}
	m, err := strconv.Atoi(mm)
	if err != nil {
		return ClockTime{}, fmt.Errorf("invalid minute in %q", s)
	}
	if h < 0 || h > 23 || m < 0 || m > 59 {
		return ClockTime{}, fmt.Errorf("time %q outside 00:00-23:59", s)
	}

	return ClockTime{Hour: h, Minute: m}, nil
}

var weekdays = map[string]time.Weekday{
	"sunday":    time.Sunday,
	"monday":    time.Monday,
	"tuesday":   time.Tuesday,
	"wednesday": time.Wednesday,
	"thursday":  time.Thursday,
	"friday":    time.Friday,
	"saturday":  time.Saturday,
	"domingo":   time.Sunday,
	"segunda":   time.Monday,
	"terca":     time.Tuesday,
	"terça":     time.Tuesday,
	"quarta":    time.Wednesday,
	"quinta":    time.Thursday,
	"sexta":     time.Friday,
	"sabado":    time.Saturday,
	"sábado":    time.Saturday,
}

// ParseWeekday resolves an English or Portuguese weekday name.
func ParseWeekday(s string) (time.Weekday, error) {
	d, ok := weekdays[strings.ToLower(strings.TrimSpace(s))]
	if !ok {
		return 0, fmt.Errorf("unknown weekday %q", s)
	}
	return d, nil
}

// ParseTaskSchedule turns a task schedule into a five-field cron expression.
// It accepts "every day at HH:MM", "every <weekday> at HH:MM" and raw cron.
func ParseTaskSchedule(s string) (string, error) {
	spec := strings.ToLower(strings.TrimSpace(s))

	if rest, ok := strings.CutPrefix(spec, "every "); ok {
		when, at, ok := strings.Cut(rest, " at ")
		if !ok {
			return "", fmt.Errorf("invalid schedule %q, expected \"every <day> at HH:MM\"", s)
		}
		clock, err := ParseClock(at)
		if err != nil {
			return "", err
		}
		if when == "day" {
			return fmt.Sprintf("%d %d * * *", clock.Minute, clock.Hour), nil
		}
		day, err := ParseWeekday(when)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("%d %d * * %d", clock.Minute, clock.Hour, int(day)), nil
	}

	if !gronx.New().IsValid(spec) {
		return "", fmt.Errorf("invalid cron expression %q", s)
	}
	return spec, nil
}
