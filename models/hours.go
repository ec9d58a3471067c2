package models

import (
	"database/sql/driver"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
)

// OpeningHours maps a weekday key ("0" = Sunday .. "6" = Saturday) to one or more
// comma-separated "HH:MM-HH:MM" intervals. Missing days are closed days.
type OpeningHours map[string]string

// UnmarshalJSON accepts either a string or a list of strings per day. Anything it cannot
// read is dropped instead of failing the whole record.
func (h *OpeningHours) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		*h = OpeningHours{}
		return nil
	}

	out := make(OpeningHours, len(raw))
	for key, value := range raw {
		day, err := strconv.Atoi(strings.TrimSpace(key))
		if err != nil || day < 0 || day > 6 {
			continue
		}

		var single string
		if err := json.Unmarshal(value, &single); err == nil {
			out[strconv.Itoa(day)] = single
			continue
		}
		var many []string
		if err := json.Unmarshal(value, &many); err == nil && len(many) > 0 {
			out[strconv.Itoa(day)] = strings.Join(many, ",")
		}
	}
	*h = out
	return nil
}

// Scan reads a jsonb column.
func (h *OpeningHours) Scan(src any) error {
	switch v := src.(type) {
	case []byte:
		return h.UnmarshalJSON(v)
	case string:
		return h.UnmarshalJSON([]byte(v))
	default:
		*h = OpeningHours{}
		return nil
	}
}

// Value encodes the hours as a JSON object for a jsonb column.
func (h OpeningHours) Value() (driver.Value, error) {
	if h == nil {
		return "{}", nil
	}
	b, err := json.Marshal(map[string]string(h))
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Day returns the raw interval string for a weekday.
func (h OpeningHours) Day(day time.Weekday) (string, bool) {
	v, ok := h[strconv.Itoa(int(day))]
	return v, ok
}

// IsOpenAt reports whether the restaurant is open at t (minute resolution, both bounds
// inclusive). known is false when there is no usable entry for t's weekday, in which case
// open carries no meaning.
func (h OpeningHours) IsOpenAt(t time.Time) (open, known bool) {
	raw, _ := h.Day(t.Weekday())
	today := ParseIntervals(raw)
	if len(today) == 0 {
		return false, false
	}

	minute := t.Hour()*60 + t.Minute()
	for _, iv := range today {
		if iv.covers(minute) {
			return true, true
		}
	}

	// An overnight interval from the previous day keeps the restaurant open past midnight.
	prev, _ := h.Day((t.Weekday() + 6) % 7)
	for _, iv := range ParseIntervals(prev) {
		if iv.spillsInto(minute) {
			return true, true
		}
	}
	return false, true
}

// Interval is an opening window in minutes after midnight. Close <= Open means the window
// runs past midnight into the next day.
type Interval struct {
	Open  int
	Close int
}

// Overnight reports whether the interval ends on the following day.
func (iv Interval) Overnight() bool {
	return iv.Close <= iv.Open
}

func (iv Interval) covers(minute int) bool {
	if iv.Overnight() {
		return minute >= iv.Open
	}
	return minute >= iv.Open && minute <= iv.Close
}

func (iv Interval) spillsInto(minute int) bool {
	return iv.Overnight() && minute <= iv.Close
}

// ParseIntervals parses "HH:MM-HH:MM[,HH:MM-HH:MM...]". Malformed pieces are skipped.
func ParseIntervals(raw string) []Interval {
	if strings.TrimSpace(raw) == "" {
		return nil
	}

	var out []Interval
	for _, piece := range strings.Split(raw, ",") {
		openRaw, closeRaw, ok := strings.Cut(strings.TrimSpace(piece), "-")
		if !ok {
			continue
		}
		open, ok := parseClock(openRaw)
		if !ok || open == 24*60 {
			continue
		}
		closing, ok := parseClock(closeRaw)
		if !ok {
			continue
		}
		out = append(out, Interval{Open: open, Close: closing})
	}
	return out
}

// parseClock reads "HH:MM" into minutes after midnight. "24:00" is accepted as end of day.
func parseClock(s string) (int, bool) {
	hh, mm, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok || len(mm) != 2 || hh == "" || len(hh) > 2 {
		return 0, false
	}
	hour, err := strconv.Atoi(hh)
	if err != nil || hour < 0 || hour > 24 {
		return 0, false
	}
	minute, err := strconv.Atoi(mm)
	if err != nil || minute < 0 || minute > 59 {
		return 0, false
	}
	if hour == 24 && minute != 0 {
		return 0, false
	}
	return hour*60 + minute, true
}
