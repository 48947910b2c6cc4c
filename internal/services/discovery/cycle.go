package discovery

import (
	"errors"
	"time"

	"payops/internal/models"
)

// ErrUnknownCycle is returned for a cycle key other than T0/T1/T2.
var ErrUnknownCycle = errors.New("unknown settlement cycle key")

// CycleWindowEnd maps a cycle key to its deterministic window end relative to
// the reference time. T0 settles same-day (window ends now); T1 settles
// through the end of the previous day; T2 through the end of the day before
// that. Earlier cutoffs subtract days; they never extend into the future.
func CycleWindowEnd(cycleKey string, now time.Time) (time.Time, error) {
	now = now.UTC()
	startOfDay := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)

	switch cycleKey {
	case models.CycleT0:
		return now, nil
	case models.CycleT1:
		return startOfDay.Add(-time.Nanosecond), nil
	case models.CycleT2:
		return startOfDay.AddDate(0, 0, -1).Add(-time.Nanosecond), nil
	default:
		return time.Time{}, ErrUnknownCycle
	}
}
