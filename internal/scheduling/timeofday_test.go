package scheduling

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTimeOfDay(t *testing.T) {
	v, err := ParseTimeOfDay("09:05")
	require.NoError(t, err)
	assert.Equal(t, TimeOfDay(545), v)
	assert.Equal(t, "09:05", v.String())

	v, err = ParseTimeOfDay("7:30")
	require.NoError(t, err)
	assert.Equal(t, "07:30", v.String())

	for _, bad := range []string{"", "24:00", "12:60", "1230", "12:3", "ab:cd"} {
		_, err := ParseTimeOfDay(bad)
		assert.Error(t, err, bad)
	}
}

func TestDateRoundTripAndWeekday(t *testing.T) {
	d, err := ParseDate("2026-10-19")
	require.NoError(t, err)
	assert.Equal(t, time.Monday, d.Weekday())
	assert.Equal(t, "2026-10-19", d.String())

	local := time.Date(2026, 10, 19, 23, 30, 0, 0, time.FixedZone("UTC+9", 9*3600))
	assert.Equal(t, d, DateOf(local))

	_, err = ParseDate("19/10/2026")
	assert.Error(t, err)
}

func TestJSONTextForms(t *testing.T) {
	payload := struct {
		Date  Date      `json:"date"`
		Start TimeOfDay `json:"start"`
	}{MustDate("2026-10-19"), MustTimeOfDay("10:00")}

	b, err := json.Marshal(payload)
	require.NoError(t, err)
	assert.JSONEq(t, `{"date":"2026-10-19","start":"10:00"}`, string(b))

	var back struct {
		Date  Date      `json:"date"`
		Start TimeOfDay `json:"start"`
	}
	require.NoError(t, json.Unmarshal(b, &back))
	assert.Equal(t, payload.Date, back.Date)
	assert.Equal(t, payload.Start, back.Start)
}

func TestRuleValidate(t *testing.T) {
	r := *weekdayRule()
	assert.NoError(t, r.Validate())

	inverted := r
	inverted.StartTime, inverted.EndTime = r.EndTime, r.StartTime
	assert.Error(t, inverted.Validate())

	outside := r
	outside.BreakStart = tod("08:00")
	assert.Error(t, outside.Validate())

	half := r
	half.BreakEnd = nil
	assert.NoError(t, half.Validate())
	assert.False(t, half.HasBreak())

	// an unpaired break end is ignored even when it lies outside the window
	loose := r
	loose.BreakStart = nil
	loose.BreakEnd = tod("20:00")
	assert.NoError(t, loose.Validate())
	assert.False(t, loose.HasBreak())

	lateStart := r
	lateStart.StartTime = *tod("12:30")
	lateStart.BreakEnd = nil
	assert.NoError(t, lateStart.Validate(), "the window is still checked for a half break")
	lateStart.EndTime = *tod("12:00")
	assert.Error(t, lateStart.Validate())
}
