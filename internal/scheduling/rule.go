package scheduling

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Rule is a provider's recurring working window for one weekday.
type Rule struct {
	ProviderID  uuid.UUID
	DayOfWeek   time.Weekday
	StartTime   TimeOfDay
	EndTime     TimeOfDay
	BreakStart  *TimeOfDay
	BreakEnd    *TimeOfDay
	IsAvailable bool
}

// HasBreak reports whether the break window applies. Both ends must be set.
func (r Rule) HasBreak() bool {
	return r.BreakStart != nil && r.BreakEnd != nil && *r.BreakStart < *r.BreakEnd
}

// Validate checks the rule is internally consistent before it is stored.
func (r Rule) Validate() error {
	if r.DayOfWeek < time.Sunday || r.DayOfWeek > time.Saturday {
		return fmt.Errorf("day_of_week %d out of range", r.DayOfWeek)
	}
	if !r.StartTime.Valid() || !r.EndTime.Valid() {
		return fmt.Errorf("working window out of range")
	}
	if r.StartTime >= r.EndTime {
		return fmt.Errorf("start %s must be before end %s", r.StartTime, r.EndTime)
	}
	if r.HasBreak() && (*r.BreakStart < r.StartTime || *r.BreakEnd > r.EndTime) {
		return fmt.Errorf("break %s-%s outside working window", *r.BreakStart, *r.BreakEnd)
	}
	return nil
}
