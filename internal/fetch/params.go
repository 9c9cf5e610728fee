package fetch

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"futbars/internal/slicer"
)

// Params 是一次运行的输入。End 为零值时取当前时间；Start 为零值时用 Lookback 推算。
type Params struct {
	Symbols  []string
	Bars     []string
	Start    time.Time
	End      time.Time
	Lookback string
}

// ParseLookback parses windows such as "10d", "2w", "6m" (30 days each) and "1y" (365 days).
func ParseLookback(s string) (time.Duration, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if len(s) < 2 {
		return 0, fmt.Errorf("%w: lookback %q", slicer.ErrInvalidRange, s)
	}
	n, err := strconv.Atoi(s[:len(s)-1])
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("%w: lookback %q", slicer.ErrInvalidRange, s)
	}
	var days int
	switch s[len(s)-1] {
	case 'd':
		days = n
	case 'w':
		days = 7 * n
	case 'm':
		days = 30 * n
	case 'y':
		days = 365 * n
	default:
		return 0, fmt.Errorf("%w: lookback unit in %q", slicer.ErrInvalidRange, s)
	}
	return time.Duration(days) * 24 * time.Hour, nil
}

// Window 返回 UTC 的 [start, end)。start 必须早于 end。
func (p Params) Window(now time.Time) (time.Time, time.Time, error) {
	end := p.End
	if end.IsZero() {
		end = now
	}
	end = end.UTC()
	start := p.Start
	if start.IsZero() {
		if strings.TrimSpace(p.Lookback) == "" {
			return time.Time{}, time.Time{}, fmt.Errorf("%w: start or lookback is required", slicer.ErrInvalidRange)
		}
		back, err := ParseLookback(p.Lookback)
		if err != nil {
			return time.Time{}, time.Time{}, err
		}
		start = end.Add(-back)
	}
	start = start.UTC()
	if !start.Before(end) {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: start %s is not before end %s", slicer.ErrInvalidRange,
			start.Format(time.RFC3339), end.Format(time.RFC3339))
	}
	return start, end, nil
}

func normalizeList(in []string, upper bool) []string {
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, v := range in {
		v = strings.TrimSpace(v)
		if upper {
			v = strings.ToUpper(v)
		} else {
			v = strings.ToLower(v)
		}
		if v == "" || seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	return out
}
