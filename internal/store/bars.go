package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"futbars/internal/market"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const upsertBatchSize = 500

// BarRow 是分区表中的一行。
type BarRow struct {
	TsUTC      string   `gorm:"column:ts_utc;primaryKey"`
	Open       float64  `gorm:"column:open"`
	High       float64  `gorm:"column:high"`
	Low        float64  `gorm:"column:low"`
	Close      float64  `gorm:"column:close"`
	Volume     int64    `gorm:"column:volume"`
	VWAP       *float64 `gorm:"column:vwap"`
	TradeCount *int64   `gorm:"column:trade_count"`
}

func rowFromBar(b market.Bar) BarRow {
	return BarRow{
		TsUTC:      b.TimestampKey(),
		Open:       b.Open,
		High:       b.High,
		Low:        b.Low,
		Close:      b.Close,
		Volume:     b.Volume,
		VWAP:       b.VWAP,
		TradeCount: b.TradeCount,
	}
}

func (r BarRow) toBar() (market.Bar, error) {
	ts, err := market.ParseUTC(r.TsUTC)
	if err != nil {
		return market.Bar{}, err
	}
	return market.Bar{
		Timestamp:  ts,
		Open:       r.Open,
		High:       r.High,
		Low:        r.Low,
		Close:      r.Close,
		Volume:     r.Volume,
		VWAP:       r.VWAP,
		TradeCount: r.TradeCount,
	}, nil
}

// TableName 返回 (symbol, bar) 分区的表名，例如 bars_MNQ_1m。
func TableName(symbol, bar string) string {
	return "bars_" + sanitize(strings.ToUpper(strings.TrimSpace(symbol))) + "_" + sanitize(strings.TrimSpace(bar))
}

func sanitize(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	return b.String()
}

// ensureTable creates the partition once per process. It returns the table name when
// this call created it so a rolled back transaction can forget it.
func (s *Store) ensureTable(db *gorm.DB, table string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ensured[table] {
		return "", nil
	}
	ddl := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %q (
	ts_utc TEXT PRIMARY KEY,
	open REAL,
	high REAL,
	low REAL,
	close REAL,
	volume INTEGER,
	vwap REAL,
	trade_count INTEGER
)`, table)
	if err := db.Exec(ddl).Error; err != nil {
		return "", fmt.Errorf("store: create %s: %w", table, err)
	}
	s.ensured[table] = true
	return table, nil
}

// upsertBars 去重（同一时间戳后者覆盖前者）后按批 upsert，返回写入行数。
func (s *Store) upsertBars(db *gorm.DB, symbol, bar string, bars []market.Bar) (string, int, error) {
	if len(bars) == 0 {
		return "", 0, nil
	}
	table := TableName(symbol, bar)
	created, err := s.ensureTable(db, table)
	if err != nil {
		return "", 0, err
	}
	rows := dedupeRows(bars)
	err = db.Table(table).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "ts_utc"}},
		UpdateAll: true,
	}).CreateInBatches(rows, upsertBatchSize).Error
	if err != nil {
		return created, 0, fmt.Errorf("store: upsert %s: %w", table, err)
	}
	return created, len(rows), nil
}

func dedupeRows(bars []market.Bar) []BarRow {
	index := make(map[string]int, len(bars))
	rows := make([]BarRow, 0, len(bars))
	for _, b := range bars {
		row := rowFromBar(b)
		if i, ok := index[row.TsUTC]; ok {
			rows[i] = row
			continue
		}
		index[row.TsUTC] = len(rows)
		rows = append(rows, row)
	}
	return rows
}

// QueryBars 读取 [start, end) 范围内的 K 线，按时间升序；零值时间表示不限。
func (s *Store) QueryBars(ctx context.Context, symbol, bar string, start, end time.Time) ([]market.Bar, error) {
	table := TableName(symbol, bar)
	if !s.db.Migrator().HasTable(table) {
		return nil, nil
	}
	q := s.db.WithContext(ctx).Table(table)
	if !start.IsZero() {
		q = q.Where("ts_utc >= ?", market.FormatUTC(start))
	}
	if !end.IsZero() {
		q = q.Where("ts_utc < ?", market.FormatUTC(end))
	}
	var rows []BarRow
	if err := q.Order("ts_utc ASC").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("store: query %s: %w", table, err)
	}
	out := make([]market.Bar, 0, len(rows))
	for _, r := range rows {
		b, err := r.toBar()
		if err != nil {
			return nil, fmt.Errorf("store: decode %s row %q: %w", table, r.TsUTC, err)
		}
		out = append(out, b)
	}
	return out, nil
}

// CountBars returns the number of rows in the partition, 0 when it does not exist.
func (s *Store) CountBars(ctx context.Context, symbol, bar string) (int64, error) {
	table := TableName(symbol, bar)
	if !s.db.Migrator().HasTable(table) {
		return 0, nil
	}
	var n int64
	if err := s.db.WithContext(ctx).Table(table).Count(&n).Error; err != nil {
		return 0, err
	}
	return n, nil
}
