package normalize

import (
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// serialEpochOffset is the number of days between the spreadsheet serial
// epoch (1899-12-30) and the Unix epoch.
const serialEpochOffset = 25569

// maxSerial is 9999-12-31 in spreadsheet serial form.
const maxSerial = 2958465

var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006/01/02",
	"2 January 2006",
	"02 January 2006",
	"January 2, 2006",
	"Jan 2, 2006",
	"2 Jan 2006",
}

var turkishMonths = strings.NewReplacer(
	"ocak", "January",
	"şubat", "February",
	"mart", "March",
	"nisan", "April",
	"mayıs", "May",
	"haziran", "June",
	"temmuz", "July",
	"ağustos", "August",
	"eylül", "September",
	"ekim", "October",
	"kasım", "November",
	"aralık", "December",
)

// dayMonthYear accepts D.M.YYYY where each separator is one or two arbitrary
// non-digit characters, which covers "27.11i2024", "27-11-2024" and
// "27/11/2024". Anything after the year (a time of day) is ignored.
var dayMonthYear = regexp.MustCompile(`^(\d{1,2})[^\d]{1,2}(\d{1,2})[^\d]{1,2}(\d{4})(?:\s.*)?$`)

// ParseFlexibleDate turns a raw cell into a calendar date at midnight UTC.
// Numeric input is read as a spreadsheet serial date. The second return value
// is false for anything that cannot be read as a date; it never panics.
func ParseFlexibleDate(raw string) (time.Time, bool) {
	value := strings.TrimSpace(raw)
	if value == "" {
		return time.Time{}, false
	}

	if serial, err := strconv.ParseFloat(value, 64); err == nil {
		return ParseSerialDate(serial)
	}

	if t, ok := parseKnownLayout(value); ok {
		return t, true
	}

	m := dayMonthYear.FindStringSubmatch(value)
	if m == nil {
		return time.Time{}, false
	}
	day, _ := strconv.Atoi(m[1])
	month, _ := strconv.Atoi(m[2])
	year, _ := strconv.Atoi(m[3])
	return buildDate(year, month, day)
}

// ParseSerialDate converts a spreadsheet serial day count. Fractional days
// (time of day) are dropped.
func ParseSerialDate(serial float64) (time.Time, bool) {
	if math.IsNaN(serial) || math.IsInf(serial, 0) || serial < 1 || serial > maxSerial {
		return time.Time{}, false
	}
	epochDays := serial - serialEpochOffset
	ms := int64(math.Round(epochDays * 86400 * 1000))
	t := time.UnixMilli(ms).UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC), true
}

func parseKnownLayout(value string) (time.Time, bool) {
	candidates := []string{value}
	if translated := turkishMonths.Replace(lowerTR(value)); translated != lowerTR(value) {
		candidates = append(candidates, translated)
	}
	for _, candidate := range candidates {
		for _, layout := range dateLayouts {
			if t, err := time.Parse(layout, candidate); err == nil {
				u := t.UTC()
				return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC), true
			}
		}
	}
	return time.Time{}, false
}

func buildDate(year int, month int, day int) (time.Time, bool) {
	if month < 1 || month > 12 || day < 1 || day > 31 {
		return time.Time{}, false
	}
	t := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
	// time.Date normalizes 31.02 into March; reject instead.
	if t.Day() != day || int(t.Month()) != month {
		return time.Time{}, false
	}
	return t, true
}
