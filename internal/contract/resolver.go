// Package contract 根据切换表或切换日历解析某一时刻的主力合约月份。
package contract

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"futbars/internal/logger"
	"futbars/internal/market"
	"futbars/internal/roll"
)

// ErrUnconfiguredSymbol 表示该品种没有配置切换规则或合约月份。
var ErrUnconfiguredSymbol = errors.New("unconfigured symbol")

// Resolution sources, recorded on every Resolved value.
const (
	SourceSchedule = "schedule"
	SourceCalendar = "calendar"
	SourceFallback = "fallback"
)

// Resolved 是一次解析得到的合约，仅在调用时计算，不持久化。
type Resolved struct {
	Symbol        string
	ContractMonth string
	Exchange      string
	Currency      string
	Source        string
}

// Resolver 优先使用切换表，未命中再按日历规则扫描。
type Resolver struct {
	families map[string]roll.Family
	table    roll.Table
}

// NewResolver builds a resolver; table may be nil.
func NewResolver(families []roll.Family, table roll.Table) *Resolver {
	r := &Resolver{
		families: make(map[string]roll.Family, len(families)),
		table:    table,
	}
	for _, f := range families {
		key := normalize(f.Symbol)
		if key == "" {
			continue
		}
		f.Symbol = key
		r.families[key] = f
	}
	return r
}

func normalize(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}

// Family returns the configured family, or ErrUnconfiguredSymbol.
func (r *Resolver) Family(symbol string) (roll.Family, error) {
	key := normalize(symbol)
	f, ok := r.families[key]
	if !ok || len(f.Months) == 0 || f.Calendar.Rule == "" {
		return roll.Family{}, fmt.Errorf("%w: %s", ErrUnconfiguredSymbol, key)
	}
	return f, nil
}

// Resolve 返回 instant 时刻的主力合约。
func (r *Resolver) Resolve(symbol string, instant time.Time) (Resolved, error) {
	f, err := r.Family(symbol)
	if err != nil {
		return Resolved{}, err
	}
	out := Resolved{Symbol: f.Symbol, Exchange: f.Exchange, Currency: f.Currency}

	if rec, ok := r.table.Resolve(f.Symbol, instant); ok {
		out.ContractMonth = rec.ContractMonth
		out.Source = SourceSchedule
		return out, nil
	}

	asOf := roll.DateOnly(instant)
	months := f.SortedMonths()
	var (
		best     time.Time
		bestYear int
		bestMon  time.Month
		found    bool
	)
	for _, y := range []int{asOf.Year(), asOf.Year() + 1} {
		for _, m := range months {
			rollDate, err := f.Calendar.Date(y, m)
			if err != nil {
				return Resolved{}, fmt.Errorf("%s: %w", f.Symbol, err)
			}
			if !rollDate.After(asOf) {
				continue
			}
			if !found || rollDate.Before(best) {
				best, bestYear, bestMon, found = rollDate, y, m, true
			}
		}
	}
	if found {
		out.ContractMonth = market.MonthLabel(bestYear, bestMon)
		out.Source = SourceCalendar
		return out, nil
	}

	// 两年窗口内均未找到：退化为下一年最后一个配置月份（启发式默认值，未经业务确认）。
	last := months[len(months)-1]
	out.ContractMonth = market.MonthLabel(asOf.Year()+1, last)
	out.Source = SourceFallback
	logger.Warnf("[contract] %s 在 %s 起两年内无可用切换日，退化为 %s", f.Symbol, asOf.Format("2006-01-02"), out.ContractMonth)
	return out, nil
}
