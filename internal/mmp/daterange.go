package mmp

import (
	"errors"
	"fmt"
	"time"

	"mmp-pipeline/lib/telemetry"
)

const (
	// DefaultDateField is the incident field carrying the reported date.
	DefaultDateField = "reported_date"
	DateLayout       = "2006-01-02"

	report_reducer_parse_date = "reducer.parse-date"
)

var ErrNoValidDates = errors.New("no valid dates found")

// DateRange is the earliest and latest reported date of a harvest, both at
// midnight UTC.
type DateRange struct {
	Min time.Time
	Max time.Time
}

// String renders the range as a catalog time period, the end date covers
// the whole day.
func (d DateRange) String() string {
	return fmt.Sprintf(
		"[%sT00:00:00 TO %sT23:59:59]",
		d.Min.Format(DateLayout),
		d.Max.Format(DateLayout),
	)
}

// ReduceDateRange scans rows for the earliest and latest parseable value of
// field. Rows without the field are skipped silently, rows with a malformed
// date are reported and skipped.
func ReduceDateRange(rows []Row, field string, tel telemetry.API) (DateRange, error) {
	if tel == nil {
		tel = telemetry.SlogAPI{}
	}
	tel = telemetry.NewScopedAPI("reducer", tel)

	var out DateRange
	found := false
	for i, row := range rows {
		value, ok := row.Get(field)
		if !ok || value == "" {
			continue
		}
		date, err := time.Parse(DateLayout, value)
		if err != nil {
			webID, _ := row.Get("web_id")
			tel.ReportWarning(
				report_reducer_parse_date,
				"field", field,
				"value", value,
				"row", i,
				"web_id", webID,
				"err", err,
			)
			continue
		}
		if !found || date.Before(out.Min) {
			out.Min = date
		}
		if !found || date.After(out.Max) {
			out.Max = date
		}
		found = true
	}

	if !found {
		return DateRange{}, fmt.Errorf("%s over %d rows: %w", field, len(rows), ErrNoValidDates)
	}
	return out, nil
}
