// Package validation holds the pure input checks used by the wizard: birth
// dates in the fixed YYYY.MM.DD layout and pedigree reference links.
package validation

import (
	"errors"
	"regexp"
	"strings"
	"time"
)

// DateLayout is the only accepted birth date layout (YYYY.MM.DD).
const DateLayout = "2006.01.02"

var datePattern = regexp.MustCompile(`^\d{4}\.\d{2}\.\d{2}$`)

// ErrDateFormat is returned for input that is not YYYY.MM.DD.
var ErrDateFormat = errors.New("date must use the YYYY.MM.DD format")

// ErrDateCalendar is returned for well-formed input naming a non-existent day.
var ErrDateCalendar = errors.New("date does not exist in the calendar")

// ParseDate validates s as a real calendar date in DateLayout.
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if !datePattern.MatchString(s) {
		return time.Time{}, ErrDateFormat
	}
	// time.Parse rejects month 13 and day overflow such as Feb 30.
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return time.Time{}, ErrDateCalendar
	}
	return t, nil
}

// ValidDate reports whether s passes ParseDate.
func ValidDate(s string) bool {
	_, err := ParseDate(s)
	return err == nil
}
