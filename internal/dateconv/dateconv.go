// Package dateconv converts spreadsheet serial numbers into timestamps.
package dateconv

import (
	"fmt"
	"math"
	"time"
)

// SpreadsheetEpoch is day zero of the 1900 date system as spreadsheets count it
// (the 1900 leap-year bug is absorbed by starting on 1899-12-30).
var SpreadsheetEpoch = time.Date(1899, time.December, 30, 0, 0, 0, 0, time.UTC)

// Day is the unit of spreadsheet serials.
const Day = 24 * time.Hour

// ISOLayout matches the naive ISO-8601 form used in reports and workbooks.
const ISOLayout = "2006-01-02T15:04:05"

// FromSerial converts serial units since epoch into a timestamp.
// Fractions of a unit are kept to the nanosecond.
func FromSerial(serial float64, epoch time.Time, unit time.Duration) (time.Time, error) {
	if math.IsNaN(serial) || math.IsInf(serial, 0) {
		return time.Time{}, fmt.Errorf("FromSerial: serial %v is not a finite number", serial)
	}
	if unit <= 0 {
		return time.Time{}, fmt.Errorf("FromSerial: unit must be positive, got %s", unit)
	}

	ns := serial * float64(unit)
	if ns > math.MaxInt64 || ns < math.MinInt64 {
		return time.Time{}, fmt.Errorf("FromSerial: serial %v out of range", serial)
	}

	return epoch.Add(time.Duration(math.Round(ns))), nil
}

// FromSpreadsheetSerial converts a serial day count from a spreadsheet.
func FromSpreadsheetSerial(serial float64) (time.Time, error) {
	return FromSerial(serial, SpreadsheetEpoch, Day)
}

// ISO formats t without a zone, adding microseconds only when present.
func ISO(t time.Time) string {
	if t.Nanosecond()/int(time.Microsecond) != 0 {
		return t.Format(ISOLayout + ".000000")
	}
	return t.Format(ISOLayout)
}
