// Package window resolves reporting windows. A window is either a named
// preset or an explicit inclusive pair of calendar days; presets are always
// translated to explicit UTC ranges before a query is built.
package window

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	PresetToday     = "today"
	PresetYesterday = "yesterday"
	PresetLast3D    = "last_3d"
	PresetLast4D    = "last_4d"
	PresetLast7D    = "last_7d"
	PresetMaximum   = "maximum"

	DateLayout = "2006-01-02"

	// Graph keeps insights for 37 months.
	maximumRetentionMonths = 37
)

var ErrInvalid = errors.New("invalid window")

var presetDays = map[string]int{
	PresetLast3D: 3,
	PresetLast4D: 4,
	PresetLast7D: 7,
}

// Spec is the caller-facing window description.
type Spec struct {
	Preset string
	Since  time.Time
	Until  time.Time
}

// Range is an inclusive range of UTC calendar days.
type Range struct {
	Since time.Time
	Until time.Time
}

func Preset(name string) Spec {
	return Spec{Preset: name}
}

func Explicit(since time.Time, until time.Time) Spec {
	return Spec{Since: truncateDay(since), Until: truncateDay(until)}
}

// Parse accepts a preset name or "YYYY-MM-DD..YYYY-MM-DD" (a comma also
// separates the pair).
func Parse(raw string) (Spec, error) {
	value := strings.TrimSpace(raw)
	if value == "" {
		return Spec{}, fmt.Errorf("%w: window is required", ErrInvalid)
	}

	separator := ""
	switch {
	case strings.Contains(value, ".."):
		separator = ".."
	case strings.Contains(value, ","):
		separator = ","
	}
	if separator == "" {
		preset := strings.ToLower(value)
		if !isPreset(preset) {
			return Spec{}, fmt.Errorf("%w: unsupported preset %q; expected today|yesterday|last_3d|last_4d|last_7d|maximum or YYYY-MM-DD..YYYY-MM-DD", ErrInvalid, raw)
		}
		return Spec{Preset: preset}, nil
	}

	parts := strings.SplitN(value, separator, 2)
	since, err := time.Parse(DateLayout, strings.TrimSpace(parts[0]))
	if err != nil {
		return Spec{}, fmt.Errorf("%w: parse since date %q: %v", ErrInvalid, parts[0], err)
	}
	until, err := time.Parse(DateLayout, strings.TrimSpace(parts[1]))
	if err != nil {
		return Spec{}, fmt.Errorf("%w: parse until date %q: %v", ErrInvalid, parts[1], err)
	}
	spec := Explicit(since, until)
	if spec.Until.Before(spec.Since) {
		return Spec{}, fmt.Errorf("%w: since %s is after until %s", ErrInvalid, spec.Since.Format(DateLayout), spec.Until.Format(DateLayout))
	}
	return spec, nil
}

func (s Spec) IsPreset() bool {
	return s.Preset != ""
}

func (s Spec) String() string {
	if s.IsPreset() {
		return s.Preset
	}
	return s.Since.Format(DateLayout) + ".." + s.Until.Format(DateLayout)
}

// Resolve converts the spec to an explicit range relative to now. Last-N-day
// presets include today: last_7d is [today-6, today].
func (s Spec) Resolve(now time.Time) (Range, error) {
	today := truncateDay(now)

	if !s.IsPreset() {
		if s.Since.IsZero() || s.Until.IsZero() {
			return Range{}, fmt.Errorf("%w: explicit window requires since and until", ErrInvalid)
		}
		since, until := truncateDay(s.Since), truncateDay(s.Until)
		if until.Before(since) {
			return Range{}, fmt.Errorf("%w: since %s is after until %s", ErrInvalid, since.Format(DateLayout), until.Format(DateLayout))
		}
		return Range{Since: since, Until: until}, nil
	}

	switch s.Preset {
	case PresetToday:
		return Range{Since: today, Until: today}, nil
	case PresetYesterday:
		yesterday := today.AddDate(0, 0, -1)
		return Range{Since: yesterday, Until: yesterday}, nil
	case PresetMaximum:
		return Range{Since: today.AddDate(0, -maximumRetentionMonths, 1), Until: today}, nil
	}
	if days, ok := presetDays[s.Preset]; ok {
		return Range{Since: today.AddDate(0, 0, -(days - 1)), Until: today}, nil
	}
	return Range{}, fmt.Errorf("%w: unsupported preset %q", ErrInvalid, s.Preset)
}

func (r Range) SinceDate() string {
	return r.Since.Format(DateLayout)
}

func (r Range) UntilDate() string {
	return r.Until.Format(DateLayout)
}

func (r Range) String() string {
	return r.SinceDate() + ".." + r.UntilDate()
}

// Days is the number of calendar days in the range, both ends included.
func (r Range) Days() int {
	return int(r.Until.Sub(r.Since).Hours()/24) + 1
}

// TimeRangeParam renders the Graph time_range JSON object.
func (r Range) TimeRangeParam() string {
	encoded, _ := json.Marshal(map[string]string{
		"since": r.SinceDate(),
		"until": r.UntilDate(),
	})
	return string(encoded)
}

func isPreset(value string) bool {
	switch value {
	case PresetToday, PresetYesterday, PresetMaximum:
		return true
	}
	_, ok := presetDays[value]
	return ok
}

func truncateDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
