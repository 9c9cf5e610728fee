package market

import "time"

// Bar 是单根 K 线；Timestamp 在 (symbol, granularity) 分区内唯一。
type Bar struct {
	Timestamp  time.Time `json:"ts_utc" parquet:"ts_utc,timestamp(millisecond)"`
	Open       float64   `json:"open" parquet:"open"`
	High       float64   `json:"high" parquet:"high"`
	Low        float64   `json:"low" parquet:"low"`
	Close      float64   `json:"close" parquet:"close"`
	Volume     int64     `json:"volume" parquet:"volume"`
	VWAP       *float64  `json:"vwap,omitempty" parquet:"vwap,optional"`
	TradeCount *int64    `json:"trade_count,omitempty" parquet:"trade_count,optional"`
}

// TimestampKey 返回存储主键使用的 UTC RFC3339 字符串。
func (b Bar) TimestampKey() string {
	return FormatUTC(b.Timestamp)
}

// FormatUTC formats t as RFC3339 in UTC; it is the canonical ts_utc encoding.
func FormatUTC(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

// ParseUTC is the inverse of FormatUTC and also accepts fractional seconds.
func ParseUTC(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}
