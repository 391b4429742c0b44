package domain

import "time"

// DeviceIdentity is the pseudonymous identity of this browsing context
// together with its rolling daily usage counter.
type DeviceIdentity struct {
	ID            string
	DailyCount    int
	LastCountDate string
	LastActiveAt  time.Time
}

// DateLabel returns the calendar-day label used to scope the daily counter.
// Two instants share a label exactly when they fall on the same local day.
func DateLabel(t time.Time) string {
	return t.Format("Mon Jan 02 2006")
}
