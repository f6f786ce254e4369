package core_test

import (
	"testing"
	"time"

	"lab-booking/internal/core"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateWindow(t *testing.T) {
	rules := utcRules()

	tests := []struct {
		name  string
		start time.Time
		end   time.Time
		rule  string
	}{
		{"valid two hours", testNow.Add(2 * time.Hour), testNow.Add(4 * time.Hour), ""},
		{"start equals end", testNow.Add(time.Hour), testNow.Add(time.Hour), "order"},
		{"start after end", testNow.Add(3 * time.Hour), testNow.Add(time.Hour), "order"},
		{"within past buffer", testNow.Add(-15 * time.Minute), testNow.Add(time.Hour), ""},
		{"beyond past buffer", testNow.Add(-16 * time.Minute), testNow.Add(time.Hour), "past"},
		{"at horizon", testNow.Add(365 * 24 * time.Hour), testNow.Add(365*24*time.Hour + time.Hour), ""},
		{"beyond horizon", testNow.Add(366 * 24 * time.Hour), testNow.Add(366*24*time.Hour + time.Hour), "horizon"},
		{"exactly twelve hours", testNow.Add(time.Hour), testNow.Add(13 * time.Hour), ""},
		{"longer than twelve hours", testNow.Add(time.Hour), testNow.Add(13*time.Hour + time.Minute), "duration"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := rules.ValidateWindow(core.Window{Start: tt.start, End: tt.end}, testNow)
			if tt.rule == "" {
				assert.NoError(t, err)
				return
			}
			var te *core.TemporalRuleError
			require.ErrorAs(t, err, &te)
			assert.Equal(t, tt.rule, te.Rule)
			assert.Equal(t, core.KindTemporalRule, core.KindOf(err))
		})
	}
}

func TestParseSlot(t *testing.T) {
	rules := utcRules()

	w, err := rules.ParseSlot(core.SlotKey{Date: "2026-03-02", Start: "09:30", End: "11:00"})
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 3, 2, 9, 30, 0, 0, time.UTC), w.Start)
	assert.Equal(t, time.Date(2026, 3, 2, 11, 0, 0, 0, time.UTC), w.End)

	bad := []core.SlotKey{
		{Date: "02/03/2026", Start: "09:00", End: "10:00"},
		{Date: "2026-03-02", Start: "9:00", End: "10:00"},
		{Date: "2026-03-02", Start: "09:00", End: "25:00"},
		{Date: "2026-02-30", Start: "09:00", End: "10:00"},
	}
	for _, slot := range bad {
		_, err := rules.ParseSlot(slot)
		var ve *core.ValidationError
		assert.ErrorAs(t, err, &ve, "slot %+v", slot)
	}
}

func TestWindowOverlapsIsHalfOpen(t *testing.T) {
	a := window(testDay, "10:00", "12:00")
	assert.True(t, a.Overlaps(window(testDay, "11:00", "13:00")))
	assert.True(t, a.Overlaps(window(testDay, "10:30", "11:30")))
	assert.False(t, a.Overlaps(window(testDay, "12:00", "13:00")))
	assert.False(t, a.Overlaps(window(testDay, "08:00", "10:00")))
}

func TestSlotKeyOrdering(t *testing.T) {
	a := core.SlotKey{Date: "2026-03-02", Start: "09:00", End: "10:00"}
	b := core.SlotKey{Date: "2026-03-02", Start: "09:00", End: "11:00"}
	c := core.SlotKey{Date: "2026-03-03", Start: "08:00", End: "09:00"}
	assert.True(t, a.Less(b))
	assert.True(t, b.Less(c))
	assert.False(t, c.Less(a))
	assert.False(t, a.Less(a))
}
