package fetch

import (
	"sort"
	"time"

	"futbars/internal/market"
	"futbars/internal/roll"
)

// CoverageRange 是 [Start, End) 内由同一合约承载的子区间；Contract 为空表示无合约上下文。
type CoverageRange struct {
	Start    time.Time
	End      time.Time
	Contract *market.Contract
}

// CoverageRanges 按到期日排序合约，把 [start, end) 切成首尾相接的子区间。
// 合约覆盖到其到期日当天结束；到期日之间的空档归下一个合约；最后一个到期日之后的尾段
// 延续最后一个合约。同一到期日只取第一个。
func CoverageRanges(start, end time.Time, contracts []market.Contract) []CoverageRange {
	if !start.Before(end) || len(contracts) == 0 {
		return nil
	}
	sorted := make([]market.Contract, 0, len(contracts))
	for _, c := range contracts {
		if c.Expiry.IsZero() {
			continue
		}
		sorted = append(sorted, c)
	}
	if len(sorted) == 0 {
		return nil
	}
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Expiry.Before(sorted[j].Expiry) })

	var out []CoverageRange
	cursor := start
	var prevExpiry time.Time
	for i := range sorted {
		c := sorted[i]
		expiry := roll.DateOnly(c.Expiry)
		if expiry.Equal(prevExpiry) {
			continue
		}
		prevExpiry = expiry
		boundary := expiry.AddDate(0, 0, 1)
		if !boundary.After(cursor) {
			continue
		}
		segEnd := boundary
		if segEnd.After(end) {
			segEnd = end
		}
		out = append(out, CoverageRange{Start: cursor, End: segEnd, Contract: &c})
		cursor = segEnd
		if !cursor.Before(end) {
			return out
		}
	}
	if len(out) == 0 {
		last := sorted[len(sorted)-1]
		return []CoverageRange{{Start: start, End: end, Contract: &last}}
	}
	out[len(out)-1].End = end
	return out
}
