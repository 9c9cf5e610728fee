package roll

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestThirdFriday(t *testing.T) {
	assert.Equal(t, day(2024, time.March, 15), ThirdFriday(2024, time.March))
	assert.Equal(t, day(2024, time.June, 21), ThirdFriday(2024, time.June))
	// 1 日恰好是周五
	assert.Equal(t, day(2024, time.November, 15), ThirdFriday(2024, time.November))
}

func TestPreviousBusinessDay_SkipsWeekend(t *testing.T) {
	// 2024-03-11 是周一，向前 1 个交易日为上周五
	assert.Equal(t, day(2024, time.March, 8), PreviousBusinessDay(day(2024, time.March, 11), 1))
	assert.Equal(t, day(2024, time.March, 11), PreviousBusinessDay(day(2024, time.March, 15), 4))
	assert.Equal(t, day(2024, time.March, 15), PreviousBusinessDay(day(2024, time.March, 15), 0))
}

func TestIndexRollDates(t *testing.T) {
	cal := Calendar{Rule: RuleIndex}
	want := map[time.Month]time.Time{
		time.March:     day(2024, time.March, 11),
		time.June:      day(2024, time.June, 17),
		time.September: day(2024, time.September, 16),
		time.December:  day(2024, time.December, 16),
	}
	for m, expected := range want {
		got, err := cal.Date(2024, m)
		require.NoError(t, err)
		assert.Equal(t, expected, got, "month %s", m)
	}
}

func TestMetalRollDates(t *testing.T) {
	cal := Calendar{Rule: RuleMetal}
	cases := []struct {
		year  int
		month time.Month
		want  time.Time
	}{
		{2024, time.February, day(2024, time.January, 30)},
		{2024, time.April, day(2024, time.March, 29)},
		{2024, time.October, day(2024, time.September, 27)},
		{2024, time.December, day(2024, time.November, 29)},
		// 1 月合约对应上一年 12 月
		{2024, time.January, day(2023, time.December, 29)},
	}
	for _, tc := range cases {
		got, err := cal.Date(tc.year, tc.month)
		require.NoError(t, err)
		assert.Equal(t, tc.want, got, "%d-%02d", tc.year, tc.month)
	}
}

func TestCalendarOffsetOverride(t *testing.T) {
	got, err := Calendar{Rule: RuleMetal, Offset: 2}.Date(2024, time.April)
	require.NoError(t, err)
	assert.Equal(t, day(2024, time.March, 28), got)
}

func TestRollDateIsDeterministic(t *testing.T) {
	for _, cal := range []Calendar{{Rule: RuleIndex}, {Rule: RuleMetal}} {
		for y := 2018; y <= 2035; y++ {
			for m := time.January; m <= time.December; m++ {
				a, err := cal.Date(y, m)
				require.NoError(t, err)
				b, err := cal.Date(y, m)
				require.NoError(t, err)
				assert.Equal(t, a, b)
			}
		}
	}
}

func TestUnknownRule(t *testing.T) {
	_, err := Calendar{Rule: "lunar"}.Date(2024, time.March)
	assert.ErrorIs(t, err, ErrUnknownRule)

	_, err = ParseRule("lunar")
	assert.ErrorIs(t, err, ErrUnknownRule)

	r, err := ParseRule(" Index ")
	require.NoError(t, err)
	assert.Equal(t, RuleIndex, r)
}
