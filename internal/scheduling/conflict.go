package scheduling

import (
	"go.uber.org/zap"
)

// Occupancy is an active (pending or confirmed) appointment as stored.
// Times stay raw so a bad row can be reported instead of failing the read.
type Occupancy struct {
	AppointmentID string
	StartTime     string
	EndTime       string
}

// Interval is a half-open [Start, End) range of minutes.
type Interval struct {
	AppointmentID string
	Start         TimeOfDay
	End           TimeOfDay
}

// Detector tests candidate intervals against a provider's active bookings.
type Detector struct {
	logger *zap.Logger
}

func NewDetector(logger *zap.Logger) *Detector {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Detector{logger: logger}
}

// Available reports whether [start, start+duration) is free. Occupancy
// rows with ignoreID are skipped, which lets a reschedule ignore itself.
func (d *Detector) Available(occupied []Occupancy, start TimeOfDay, durationMinutes int, ignoreID string) bool {
	return !overlapsAny(d.Intervals(occupied, ignoreID), start, start.Add(durationMinutes))
}

// Intervals converts occupancy rows to intervals, logging and dropping rows
// that are missing times or cannot be parsed.
func (d *Detector) Intervals(occupied []Occupancy, ignoreID string) []Interval {
	if d == nil {
		d = nopDetector
	}
	out := make([]Interval, 0, len(occupied))
	for _, o := range occupied {
		if ignoreID != "" && o.AppointmentID == ignoreID {
			continue
		}
		iv, warn := toInterval(o)
		if warn != nil {
			d.logger.Warn("skipping malformed appointment in conflict check",
				zap.String("appointment_id", warn.AppointmentID),
				zap.String("field", warn.Field),
				zap.String("value", warn.Value),
				zap.String("reason", warn.Reason),
			)
			continue
		}
		out = append(out, iv)
	}
	return out
}

func toInterval(o Occupancy) (Interval, *MalformedRecordWarning) {
	if o.StartTime == "" {
		return Interval{}, &MalformedRecordWarning{AppointmentID: o.AppointmentID, Field: "start_time", Reason: "missing"}
	}
	if o.EndTime == "" {
		return Interval{}, &MalformedRecordWarning{AppointmentID: o.AppointmentID, Field: "end_time", Reason: "missing"}
	}
	start, err := ParseTimeOfDay(o.StartTime)
	if err != nil {
		return Interval{}, &MalformedRecordWarning{AppointmentID: o.AppointmentID, Field: "start_time", Value: o.StartTime, Reason: err.Error()}
	}
	end, err := ParseTimeOfDay(o.EndTime)
	if err != nil {
		return Interval{}, &MalformedRecordWarning{AppointmentID: o.AppointmentID, Field: "end_time", Value: o.EndTime, Reason: err.Error()}
	}
	if end <= start {
		return Interval{}, &MalformedRecordWarning{AppointmentID: o.AppointmentID, Field: "end_time", Value: o.EndTime, Reason: "ends before it starts"}
	}
	return Interval{AppointmentID: o.AppointmentID, Start: start, End: end}, nil
}

// Overlaps is the half-open overlap test.
func Overlaps(aStart, aEnd, bStart, bEnd TimeOfDay) bool {
	return aStart < bEnd && aEnd > bStart
}

func overlapsAny(intervals []Interval, start, end TimeOfDay) bool {
	for _, iv := range intervals {
		if Overlaps(start, end, iv.Start, iv.End) {
			return true
		}
	}
	return false
}
