package billing

import (
	"fmt"
	"strings"
	"time"

	"github.com/ManuelReschke/PayLedger/app/models"
)

// ComputeEndDate returns the end of a billing period that starts at start and spans
// count intervals. Arithmetic runs in UTC so the result never depends on the host zone.
//
// A month step that lands on a day which does not exist in the target month (Jan 31 + 1
// month) is clamped to the last day of that month. Year steps are not clamped: Feb 29 plus
// one year rolls over to Mar 1.
//
// Lifetime plans have no end date; callers must branch on them before calling.
func ComputeEndDate(start time.Time, interval string, count int) (time.Time, error) {
	if count <= 0 {
		count = 1
	}
	start = start.UTC()

	switch strings.ToLower(strings.TrimSpace(interval)) {
	case models.BillingIntervalDay:
		return start.AddDate(0, 0, count), nil
	case models.BillingIntervalWeek:
		return start.AddDate(0, 0, 7*count), nil
	case models.BillingIntervalMonth:
		end := start.AddDate(0, count, 0)
		if end.Day() != start.Day() {
			// day 0 of the overflow month is the last day of the intended month
			end = time.Date(end.Year(), end.Month(), 0,
				end.Hour(), end.Minute(), end.Second(), end.Nanosecond(), time.UTC)
		}
		return end, nil
	case models.BillingIntervalYear:
		return start.AddDate(count, 0, 0), nil
	default:
		return time.Time{}, fmt.Errorf("%w: %q", ErrUnsupportedInterval, interval)
	}
}
