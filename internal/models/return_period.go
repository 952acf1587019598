package models

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ParseReturnPeriod accepts "YYYY-MM" or the portal form "MMYYYY" and returns
// the canonical "YYYY-MM".
func ParseReturnPeriod(s string) (string, error) {
	s = strings.TrimSpace(s)
	var month, year int
	var err error

	switch {
	case len(s) == 7 && s[4] == '-':
		year, err = strconv.Atoi(s[:4])
		if err == nil {
			month, err = strconv.Atoi(s[5:])
		}
	case len(s) == 6:
		month, err = strconv.Atoi(s[:2])
		if err == nil {
			year, err = strconv.Atoi(s[2:])
		}
	default:
		return "", fmt.Errorf("invalid return period %q: expected YYYY-MM or MMYYYY", s)
	}

	if err != nil || month < 1 || month > 12 || year < 2017 || year > 9999 {
		return "", fmt.Errorf("invalid return period %q", s)
	}
	return fmt.Sprintf("%04d-%02d", year, month), nil
}

// PeriodStart returns the first day of a canonical return period in UTC.
func PeriodStart(period string) (time.Time, error) {
	return time.Parse("2006-01", period)
}
