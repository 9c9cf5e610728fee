// Package roll 提供期货主力合约切换（roll）的日历计算与切换表。
package roll

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Rule 标识一种主力切换规则。
type Rule string

const (
	// RuleIndex: 到期月第三个周五之前第 N 个交易日切换（股指期货，如 MNQ）。
	RuleIndex Rule = "index_third_friday"
	// RuleMetal: 到期月前一个月最后一个自然日之前第 M 个交易日切换（金属期货，如 MGC）。
	RuleMetal Rule = "metal_prev_month_end"
)

const (
	DefaultIndexOffset = 4
	DefaultMetalOffset = 1
)

var ErrUnknownRule = errors.New("unknown roll rule")

// ParseRule normalizes a configured rule name. Short aliases "index" and "metal" are accepted.
func ParseRule(s string) (Rule, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "index", string(RuleIndex):
		return RuleIndex, nil
	case "metal", string(RuleMetal):
		return RuleMetal, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownRule, s)
	}
}

// Calendar 是一个符号族的切换规则及其偏移量。零值 Offset 使用规则默认值。
type Calendar struct {
	Rule   Rule
	Offset int
}

func (c Calendar) offset() int {
	if c.Offset > 0 {
		return c.Offset
	}
	if c.Rule == RuleMetal {
		return DefaultMetalOffset
	}
	return DefaultIndexOffset
}

// Date returns the roll date for the contract of (year, month) at UTC midnight.
func (c Calendar) Date(year int, month time.Month) (time.Time, error) {
	switch c.Rule {
	case RuleIndex:
		return IndexRollDate(year, month, c.offset()), nil
	case RuleMetal:
		return MetalRollDate(year, month, c.offset()), nil
	default:
		return time.Time{}, fmt.Errorf("%w: %q", ErrUnknownRule, c.Rule)
	}
}

// ThirdFriday 返回某月第三个周五。
func ThirdFriday(year int, month time.Month) time.Time {
	first := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	shift := (int(time.Friday) - int(first.Weekday()) + 7) % 7
	return first.AddDate(0, 0, shift+14)
}

// PreviousBusinessDay steps back from day until offset weekdays have been passed.
// Only Saturday and Sunday are treated as non-business days.
func PreviousBusinessDay(day time.Time, offset int) time.Time {
	cur := day
	for steps := 0; steps < offset; {
		cur = cur.AddDate(0, 0, -1)
		if wd := cur.Weekday(); wd != time.Saturday && wd != time.Sunday {
			steps++
		}
	}
	return cur
}

// IndexRollDate: N 个交易日早于到期月第三个周五。
func IndexRollDate(year int, month time.Month, n int) time.Time {
	return PreviousBusinessDay(ThirdFriday(year, month), n)
}

// MetalRollDate: M 个交易日早于前一个月的最后一天；1 月合约对应上一年 12 月。
func MetalRollDate(year int, month time.Month, m int) time.Time {
	// 当月 1 日减一天即前一个月最后一天，跨年自动处理。
	lastOfPrev := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, -1)
	return PreviousBusinessDay(lastOfPrev, m)
}

// DateOnly truncates t to its UTC calendar date.
func DateOnly(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}
