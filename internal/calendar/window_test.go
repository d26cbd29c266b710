package calendar

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bagoessprasetyo/property-management-sub000/internal/testutil"
)

func TestWeekWindow_StartsMonday(t *testing.T) {
	// 2025-08-20 is a Wednesday.
	w := WeekWindow(testutil.D("2025-08-20"))

	require.Equal(t, 7, w.Len())
	assert.Equal(t, testutil.D("2025-08-18"), w.First())
	assert.Equal(t, time.Monday, w.First().Weekday())
	assert.Equal(t, testutil.D("2025-08-24"), w.Last())
	assert.Equal(t, ViewWeek, w.Kind())
}

func TestWeekWindow_SundayBelongsToPreviousWeek(t *testing.T) {
	w := WeekWindow(testutil.D("2025-08-24"))
	assert.Equal(t, testutil.D("2025-08-18"), w.First())
}

func TestMonthWindow(t *testing.T) {
	feb := MonthWindow(testutil.D("2024-02-14"))
	assert.Equal(t, 29, feb.Len())
	assert.Equal(t, testutil.D("2024-02-01"), feb.First())
	assert.Equal(t, testutil.D("2024-02-29"), feb.Last())

	dec := MonthWindow(testutil.D("2025-12-31"))
	assert.Equal(t, 31, dec.Len())
	assert.Equal(t, testutil.D("2026-01-01"), dec.Range().End)
}

func TestRollingWindow(t *testing.T) {
	w, err := RollingWindow(testutil.D("2025-08-30"), 4)
	require.NoError(t, err)
	assert.Equal(t, "2025-09-02", w.Last().String())
	assert.True(t, w.Contains(testutil.D("2025-08-31")))
	assert.False(t, w.Contains(testutil.D("2025-09-03")))

	_, err = RollingWindow(testutil.D("2025-08-30"), 0)
	assert.ErrorIs(t, err, ErrInvalidWindow)

	_, err = RollingWindow(testutil.D("2025-08-30"), MaxWindowDays+1)
	assert.ErrorIs(t, err, ErrInvalidWindow)
}

func TestWindowFromRange(t *testing.T) {
	w, err := WindowFromRange(testutilRange("2025-08-18", "2025-08-20"))
	require.NoError(t, err)
	assert.Equal(t, 2, w.Len())

	_, err = WindowFromRange(testutilRange("2025-08-20", "2025-08-20"))
	assert.ErrorIs(t, err, ErrInvalidWindow)
}

func TestParseView(t *testing.T) {
	d := testutil.D("2025-08-20")

	w, err := ParseView("week", d, 0)
	require.NoError(t, err)
	assert.Equal(t, 7, w.Len())

	w, err = ParseView("", d, 10)
	require.NoError(t, err)
	assert.Equal(t, 10, w.Len())

	_, err = ParseView("fortnight", d, 0)
	assert.ErrorIs(t, err, ErrInvalidWindow)
}

func TestWindow_Shift(t *testing.T) {
	week := WeekWindow(testutil.D("2025-08-20"))
	assert.Equal(t, testutil.D("2025-08-25"), week.Shift(1).First())
	assert.Equal(t, testutil.D("2025-08-11"), week.Shift(-1).First())

	month := MonthWindow(testutil.D("2025-01-31"))
	assert.Equal(t, testutil.D("2025-02-01"), month.Shift(1).First())
	assert.Equal(t, 28, month.Shift(1).Len())

	rolling, err := RollingWindow(testutil.D("2025-08-18"), 3)
	require.NoError(t, err)
	assert.Equal(t, testutil.D("2025-08-21"), rolling.Shift(1).First())

	day := DayWindow(testutil.D("2025-08-18"))
	assert.Equal(t, testutil.D("2025-08-17"), day.Shift(-1).First())
}
