package service

import (
	"time"

	"github.com/boddenberg/mazebank-go/internal/port"
)

// SystemClock reads the wall clock in the bank's time zone, which defines
// where a calendar day starts for the day limit.
type SystemClock struct {
	Location *time.Location
}

var _ port.Clock = SystemClock{}

// Now returns the current time in c.Location (UTC when unset).
func (c SystemClock) Now() time.Time {
	if c.Location == nil {
		return time.Now().UTC()
	}
	return time.Now().In(c.Location)
}
