// Package slicer 将长时间区间切分为符合上游单次请求跨度限制的分片。
package slicer

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrInvalidRange       = errors.New("invalid range")
	ErrUnknownGranularity = errors.New("unknown granularity")
)

// TimeSlice 是半开区间 [Start, End)。
type TimeSlice struct {
	Start time.Time
	End   time.Time
}

func (s TimeSlice) String() string {
	return s.Start.UTC().Format(time.RFC3339) + ".." + s.End.UTC().Format(time.RFC3339)
}

// Slice 以 maxSpanDays 为步长从 start 向前切分，最后一片恰好结束于 end。
// start >= end 返回空切片而非错误。
func Slice(start, end time.Time, maxSpanDays int) ([]TimeSlice, error) {
	if maxSpanDays < 1 {
		return nil, fmt.Errorf("%w: max span %d days", ErrInvalidRange, maxSpanDays)
	}
	if !start.Before(end) {
		return nil, nil
	}
	var out []TimeSlice
	for cursor := start; cursor.Before(end); {
		next := cursor.AddDate(0, 0, maxSpanDays)
		if next.After(end) {
			next = end
		}
		out = append(out, TimeSlice{Start: cursor, End: next})
		cursor = next
	}
	return out, nil
}

// ForBar looks up the span for bar in maxDaysPerBar and slices [start, end).
func ForBar(start, end time.Time, bar string, maxDaysPerBar map[string]int) ([]TimeSlice, error) {
	days, err := MaxSpanDays(bar, maxDaysPerBar)
	if err != nil {
		return nil, err
	}
	return Slice(start, end, days)
}

// MaxSpanDays returns the configured span for bar, or ErrUnknownGranularity.
func MaxSpanDays(bar string, maxDaysPerBar map[string]int) (int, error) {
	days, ok := maxDaysPerBar[strings.ToLower(strings.TrimSpace(bar))]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrUnknownGranularity, bar)
	}
	return days, nil
}
