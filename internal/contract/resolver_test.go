package contract

import (
	"testing"
	"time"

	"futbars/internal/roll"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

var mnq = roll.Family{
	Symbol:   "MNQ",
	Calendar: roll.Calendar{Rule: roll.RuleIndex},
	Months:   []time.Month{time.March, time.June, time.September, time.December},
	Exchange: "CME",
	Currency: "USD",
}

func TestResolve_AroundMarchRoll(t *testing.T) {
	r := NewResolver([]roll.Family{mnq}, nil)

	got, err := r.Resolve("MNQ", day(2024, time.March, 10))
	require.NoError(t, err)
	assert.Equal(t, Resolved{Symbol: "MNQ", ContractMonth: "202403", Exchange: "CME", Currency: "USD", Source: SourceCalendar}, got)

	// 2024-03-11 为 3 月合约切换日，之后一天解析为 6 月
	got, err = r.Resolve("mnq", day(2024, time.March, 12))
	require.NoError(t, err)
	assert.Equal(t, "202406", got.ContractMonth)

	got, err = r.Resolve("MNQ", day(2024, time.March, 11))
	require.NoError(t, err)
	assert.Equal(t, "202406", got.ContractMonth)
}

func TestResolve_RollsIntoNextYear(t *testing.T) {
	r := NewResolver([]roll.Family{mnq}, nil)
	got, err := r.Resolve("MNQ", day(2024, time.December, 20))
	require.NoError(t, err)
	assert.Equal(t, "202503", got.ContractMonth)
}

func TestResolve_PrefersScheduleTable(t *testing.T) {
	table := roll.Table{"MNQ": {{Symbol: "MNQ", ContractMonth: "202409", Start: day(2024, time.January, 1), End: day(2024, time.February, 1)}}}
	r := NewResolver([]roll.Family{mnq}, table)

	got, err := r.Resolve("MNQ", day(2024, time.January, 15))
	require.NoError(t, err)
	assert.Equal(t, "202409", got.ContractMonth)
	assert.Equal(t, SourceSchedule, got.Source)

	got, err = r.Resolve("MNQ", day(2024, time.February, 15))
	require.NoError(t, err)
	assert.Equal(t, "202403", got.ContractMonth)
	assert.Equal(t, SourceCalendar, got.Source)
}

func TestResolve_Unconfigured(t *testing.T) {
	r := NewResolver([]roll.Family{mnq}, nil)
	_, err := r.Resolve("ES", day(2024, time.March, 1))
	assert.ErrorIs(t, err, ErrUnconfiguredSymbol)

	noMonths := NewResolver([]roll.Family{{Symbol: "MGC", Calendar: roll.Calendar{Rule: roll.RuleMetal}}}, nil)
	_, err = noMonths.Resolve("MGC", day(2024, time.March, 1))
	assert.ErrorIs(t, err, ErrUnconfiguredSymbol)
}

func TestResolve_MetalFamily(t *testing.T) {
	mgc := roll.Family{
		Symbol:   "MGC",
		Calendar: roll.Calendar{Rule: roll.RuleMetal},
		Months:   []time.Month{time.February, time.April, time.June, time.August, time.October, time.December},
		Exchange: "COMEX",
		Currency: "USD",
	}
	r := NewResolver([]roll.Family{mgc}, nil)

	got, err := r.Resolve("MGC", day(2024, time.January, 29))
	require.NoError(t, err)
	assert.Equal(t, "202402", got.ContractMonth)
	assert.Equal(t, "COMEX", got.Exchange)

	got, err = r.Resolve("MGC", day(2024, time.January, 30))
	require.NoError(t, err)
	assert.Equal(t, "202404", got.ContractMonth)
}

func TestResolve_FallbackWhenScanExhausted(t *testing.T) {
	// 仅 1 月合约的金属规则：2025-01 合约于 2024-12-30 切换，两年窗口内找不到晚于当天的切换日
	janOnly := roll.Family{Symbol: "MGC", Calendar: roll.Calendar{Rule: roll.RuleMetal}, Months: []time.Month{time.January}}
	r := NewResolver([]roll.Family{janOnly}, nil)

	got, err := r.Resolve("MGC", day(2024, time.December, 30))
	require.NoError(t, err)
	assert.Equal(t, "202501", got.ContractMonth)
	assert.Equal(t, SourceFallback, got.Source)
}
