package query

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// monthsByName resolves full month names to time.Month values.
var monthsByName = map[string]time.Month{
	"january":   time.January,
	"february":  time.February,
	"march":     time.March,
	"april":     time.April,
	"may":       time.May,
	"june":      time.June,
	"july":      time.July,
	"august":    time.August,
	"september": time.September,
	"october":   time.October,
	"november":  time.November,
	"december":  time.December,
}

var (
	monthYearRe = regexp.MustCompile(`\b(january|february|march|april|may|june|july|august|september|october|november|december)\s+(\d{4})\b`)
	lastNRe     = regexp.MustCompile(`last\s+(\d+)\s+(day|week|month)s?\b`)
)

// dayCountKeywords map bare temporal keywords to fixed day offsets. Checked
// in order after the regex patterns; first match wins.
var dayCountKeywords = []struct {
	keyword string
	days    int
}{
	{"past week", 7},
	{"last week", 7},
	{"past month", 30},
	{"last month", 30},
	{"past quarter", 90},
	{"last quarter", 90},
	{"past year", 365},
	{"last year", 365},
	{"yesterday", 1},
}

// ParseTimeRange converts natural-language time expressions in text into
// concrete windows relative to now. Recognition priority: explicit "Month
// Year" mentions (all of them are retained in Months), then month/year/
// quarter-to-date keywords, then "last N days/weeks/months" (months
// approximated as 30 days), then bare day-count keywords. Primary is nil when
// nothing matched.
//
// The function is pure: no state survives between calls, so it is safe under
// concurrent request handling.
func ParseTimeRange(text string, now time.Time) *TimeRangeResult {
	lower := strings.ToLower(text)
	result := &TimeRangeResult{}

	// Explicit month mentions take priority over relative expressions.
	for _, match := range monthYearRe.FindAllStringSubmatch(lower, -1) {
		month := monthsByName[match[1]]
		year, err := strconv.Atoi(match[2])
		if err != nil {
			continue
		}
		start := time.Date(year, month, 1, 0, 0, 0, 0, now.Location())
		end := start.AddDate(0, 1, 0).Add(-time.Second)
		result.Months = append(result.Months, MonthRange{
			Month: month,
			Year:  year,
			Start: start,
			End:   end,
		})
	}
	if len(result.Months) > 0 {
		primary := result.Months[0].Range()
		result.Primary = &primary
		return result
	}

	if tr := parseToDate(lower, now); tr != nil {
		result.Primary = tr
		return result
	}

	if match := lastNRe.FindStringSubmatch(lower); match != nil {
		n, err := strconv.Atoi(match[1])
		if err == nil && n > 0 {
			days := n
			switch match[2] {
			case "week":
				days = n * 7
			case "month":
				days = n * 30
			}
			result.Primary = &TimeRange{
				Start:   now.AddDate(0, 0, -days),
				End:     now,
				RawDays: days,
			}
			return result
		}
	}

	for _, kw := range dayCountKeywords {
		if strings.Contains(lower, kw.keyword) {
			result.Primary = &TimeRange{
				Start:   now.AddDate(0, 0, -kw.days),
				End:     now,
				RawDays: kw.days,
			}
			return result
		}
	}

	return result
}

// parseToDate handles the "X to date" keyword windows.
func parseToDate(lower string, now time.Time) *TimeRange {
	var start time.Time
	switch {
	case strings.Contains(lower, "month to date"), strings.Contains(lower, "mtd"):
		start = time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
	case strings.Contains(lower, "year to date"), strings.Contains(lower, "ytd"):
		start = time.Date(now.Year(), time.January, 1, 0, 0, 0, 0, now.Location())
	case strings.Contains(lower, "quarter to date"), strings.Contains(lower, "qtd"):
		quarterStart := time.Month(((int(now.Month())-1)/3)*3 + 1)
		start = time.Date(now.Year(), quarterStart, 1, 0, 0, 0, 0, now.Location())
	default:
		return nil
	}
	return &TimeRange{Start: start, End: now}
}

// DefaultRange returns a window of days ending at now, used when a clause
// carried no time expression.
func DefaultRange(days int, now time.Time) TimeRange {
	return TimeRange{
		Start:   now.AddDate(0, 0, -days),
		End:     now,
		RawDays: days,
	}
}
