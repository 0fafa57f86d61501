package leave

import "time"

// CountDays returns the inclusive number of calendar days between start and
// end. Computed once at submission; every later debit and credit reuses the
// stored value so a reversal cancels exactly what the approval debited.
func CountDays(start, end time.Time) (int, error) {
	s := dateOnly(start)
	e := dateOnly(end)
	if e.Before(s) {
		return 0, ErrInvalidRange
	}
	return int(e.Sub(s).Hours()/24) + 1, nil
}

// dateOnly strips the time-of-day and zone so day arithmetic is DST-proof.
func dateOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
