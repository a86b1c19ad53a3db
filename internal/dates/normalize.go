// Package dates converts free-text legacy dates to ISO-8601.
package dates

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var (
	isoPattern    = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)
	legacyPattern = regexp.MustCompile(`^(\d{1,2})-([A-Za-z]{3})-(\d{2})$`)
)

var months = map[string]int{
	"jan": 1, "feb": 2, "mar": 3, "apr": 4, "may": 5, "jun": 6,
	"jul": 7, "aug": 8, "sep": 9, "oct": 10, "nov": 11, "dec": 12,
}

// Normalize converts a legacy date string to YYYY-MM-DD. Values already
// in ISO form pass through unchanged. DD-Mon-YY values convert with the
// fixed two-digit-year pivot: YY <= 30 is 20YY, otherwise 19YY. Anything
// else, including the empty string, yields nil. Never errors.
func Normalize(value string) *string {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}
	if isoPattern.MatchString(value) {
		return &value
	}
	m := legacyPattern.FindStringSubmatch(value)
	if m == nil {
		return nil
	}
	day, _ := strconv.Atoi(m[1])
	month, ok := months[strings.ToLower(m[2])]
	if !ok {
		return nil
	}
	yy, _ := strconv.Atoi(m[3])
	year := 1900 + yy
	if yy <= 30 {
		year = 2000 + yy
	}
	if day < 1 || day > 31 {
		return nil
	}
	out := fmt.Sprintf("%04d-%02d-%02d", year, month, day)
	return &out
}
