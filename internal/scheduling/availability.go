package scheduling

import (
	"fmt"

	"go.uber.org/zap"
)

// SlotStep is the spacing of the booking grid in minutes.
const SlotStep = 30

// ValidateDuration rejects service durations that can never fit a day.
func ValidateDuration(durationMinutes int) error {
	if durationMinutes <= 0 || durationMinutes >= minutesPerDay {
		return fmt.Errorf("%w: %d minutes", ErrInvalidDuration, durationMinutes)
	}
	return nil
}

// Candidates lists grid-aligned starts inside the rule's window whose
// [start, start+duration) stays clear of the break. A nil or unavailable
// rule yields nothing.
func Candidates(rule *Rule, durationMinutes int) ([]TimeOfDay, error) {
	if err := ValidateDuration(durationMinutes); err != nil {
		return nil, err
	}
	if rule == nil || !rule.IsAvailable {
		return []TimeOfDay{}, nil
	}

	slots := make([]TimeOfDay, 0, int(rule.EndTime-rule.StartTime)/SlotStep)
	for start := rule.StartTime; start.Add(durationMinutes) <= rule.EndTime; start = start.Add(SlotStep) {
		if hitsBreak(rule, start, start.Add(durationMinutes)) {
			continue
		}
		slots = append(slots, start)
	}
	return slots, nil
}

// FreeSlots is Candidates filtered by the detector against current occupancy.
func FreeSlots(rule *Rule, durationMinutes int, occupied []Occupancy, detector *Detector) ([]TimeOfDay, error) {
	candidates, err := Candidates(rule, durationMinutes)
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		return candidates, nil
	}

	intervals := detector.Intervals(occupied, "")
	free := candidates[:0]
	for _, start := range candidates {
		if !overlapsAny(intervals, start, start.Add(durationMinutes)) {
			free = append(free, start)
		}
	}
	return free, nil
}

// CheckSlot is the write-time form of Candidates: it reports whether one
// specific start is a bookable grid position for the rule.
func CheckSlot(rule *Rule, start TimeOfDay, durationMinutes int) error {
	if err := ValidateDuration(durationMinutes); err != nil {
		return err
	}
	if rule == nil {
		return fmt.Errorf("%w: %w", ErrSlotUnavailable, ErrScheduleNotFound)
	}
	if !rule.IsAvailable {
		return fmt.Errorf("%w: provider not working on %s", ErrSlotUnavailable, rule.DayOfWeek)
	}
	end := start.Add(durationMinutes)
	switch {
	case start < rule.StartTime || end > rule.EndTime:
		return fmt.Errorf("%w: %s outside %s-%s", ErrSlotUnavailable, start, rule.StartTime, rule.EndTime)
	case int(start-rule.StartTime)%SlotStep != 0:
		return fmt.Errorf("%w: %s is not on the %d-minute grid", ErrSlotUnavailable, start, SlotStep)
	case hitsBreak(rule, start, end):
		return fmt.Errorf("%w: %s overlaps break", ErrSlotUnavailable, start)
	}
	return nil
}

func hitsBreak(rule *Rule, start, end TimeOfDay) bool {
	if !rule.HasBreak() {
		return false
	}
	return start < *rule.BreakEnd && end > *rule.BreakStart
}

// nopDetector is used when callers pass a nil detector.
var nopDetector = &Detector{logger: zap.NewNop()}
