package progress

import (
	"regexp"
	"strconv"
)

var digitRun = regexp.MustCompile(`[0-9]+`)

// ParseDurationMinutes extracts the first run of decimal digits from a
// free-form label such as "15 min" and returns it as minutes. Labels without
// digits ("N/A", "") and runs too large for an int yield 0.
func ParseDurationMinutes(label string) int {
	match := digitRun.FindString(label)
	if match == "" {
		return 0
	}
	minutes, err := strconv.Atoi(match)
	if err != nil {
		return 0
	}
	return minutes
}
