//go:build unit

package cron

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustParse(t *testing.T, expr string) Schedule {
	t.Helper()

	sched, err := Parse(expr)
	require.NoError(t, err)

	return sched
}

func TestParseRejectsMalformedExpressions(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		expr string
	}{
		{name: "empty", expr: ""},
		{name: "too few fields", expr: "* * *"},
		{name: "too many fields", expr: "* * * * * *"},
		{name: "minute out of range", expr: "60 * * * *"},
		{name: "hour out of range", expr: "* 24 * * *"},
		{name: "month out of range", expr: "* * * 13 *"},
		{name: "inverted range", expr: "30-10 * * * *"},
		{name: "zero step", expr: "*/0 * * * *"},
		{name: "negative step", expr: "*/-5 * * * *"},
		{name: "garbage token", expr: "x * * * *"},
		{name: "unknown month name", expr: "* * * januar *"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, err := Parse(tt.expr)
			require.ErrorIs(t, err, ErrInvalidExpression)
		})
	}
}

func TestNextEveryMinute(t *testing.T) {
	t.Parallel()

	sched := mustParse(t, "* * * * *")
	from := time.Date(2026, 3, 10, 12, 30, 45, 0, time.UTC)

	next, err := sched.Next(from)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 3, 10, 12, 31, 0, 0, time.UTC), next)
}

func TestNextStepExpression(t *testing.T) {
	t.Parallel()

	sched := mustParse(t, "*/15 * * * *")
	from := time.Date(2026, 3, 10, 12, 16, 0, 0, time.UTC)

	next, err := sched.Next(from)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 3, 10, 12, 30, 0, 0, time.UTC), next)
}

func TestNextFixedTimeRollsToNextDay(t *testing.T) {
	t.Parallel()

	sched := mustParse(t, "30 9 * * *")
	from := time.Date(2026, 3, 10, 10, 0, 0, 0, time.UTC)

	next, err := sched.Next(from)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 3, 11, 9, 30, 0, 0, time.UTC), next)
}

func TestNextHonorsDayOfWeekNames(t *testing.T) {
	t.Parallel()

	// 2026-03-10 is a Tuesday; next Monday is 2026-03-16.
	sched := mustParse(t, "0 8 * * mon")
	from := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	next, err := sched.Next(from)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 3, 16, 8, 0, 0, 0, time.UTC), next)
	assert.Equal(t, time.Monday, next.Weekday())
}

func TestNextHonorsMonthNames(t *testing.T) {
	t.Parallel()

	sched := mustParse(t, "0 0 1 jul *")
	from := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)

	next, err := sched.Next(from)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC), next)
}

func TestNextListAndRange(t *testing.T) {
	t.Parallel()

	sched := mustParse(t, "0,30 9-17 * * *")
	from := time.Date(2026, 3, 10, 17, 31, 0, 0, time.UTC)

	next, err := sched.Next(from)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 3, 11, 9, 0, 0, 0, time.UTC), next)
}

func TestNextNormalizesToUTC(t *testing.T) {
	t.Parallel()

	loc := time.FixedZone("UTC+2", 2*60*60)
	sched := mustParse(t, "* * * * *")

	next, err := sched.Next(time.Date(2026, 3, 10, 12, 0, 0, 0, loc))
	require.NoError(t, err)
	assert.Equal(t, time.UTC, next.Location())
}

func TestNextNilSchedule(t *testing.T) {
	t.Parallel()

	var sched *schedule

	_, err := sched.Next(time.Now())
	require.ErrorIs(t, err, ErrNilSchedule)
}

func TestNextNoMatch(t *testing.T) {
	t.Parallel()

	// February 31st never happens.
	sched := mustParse(t, "0 0 31 2 *")

	_, err := sched.Next(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	require.ErrorIs(t, err, ErrNoMatch)
}
