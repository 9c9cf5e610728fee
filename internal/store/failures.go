package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"futbars/internal/market"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Failure 是一次失败或无数据的抓取尝试。
type Failure struct {
	RunID    string
	Symbol   string
	Bar      string
	Start    time.Time
	End      time.Time
	Attempt  int
	Reason   string
	IsNoData bool
	Contract string
	Detail   map[string]any
}

// FailureModel 映射 fetch_failures 表，只追加不更新。
type FailureModel struct {
	ID           uint           `gorm:"column:id;primaryKey;autoIncrement"`
	RunID        string         `gorm:"column:run_id;size:64;index"`
	Symbol       string         `gorm:"column:symbol;size:32;index:idx_fail_symbol_bar"`
	Bar          string         `gorm:"column:bar;size:16;index:idx_fail_symbol_bar"`
	StartUTC     string         `gorm:"column:start_utc"`
	EndUTC       string         `gorm:"column:end_utc"`
	Attempt      int            `gorm:"column:attempt"`
	Reason       string         `gorm:"column:reason"`
	IsNoData     bool           `gorm:"column:is_no_data"`
	Contract     string         `gorm:"column:contract;size:64"`
	Detail       datatypes.JSON `gorm:"column:detail;type:TEXT"`
	CreatedAtUTC time.Time      `gorm:"column:created_at"`
}

func (FailureModel) TableName() string { return "fetch_failures" }

func logFailure(db *gorm.DB, f Failure) error {
	row := FailureModel{
		RunID:        f.RunID,
		Symbol:       f.Symbol,
		Bar:          f.Bar,
		StartUTC:     market.FormatUTC(f.Start),
		EndUTC:       market.FormatUTC(f.End),
		Attempt:      f.Attempt,
		Reason:       f.Reason,
		IsNoData:     f.IsNoData,
		Contract:     f.Contract,
		CreatedAtUTC: time.Now().UTC(),
	}
	if len(f.Detail) > 0 {
		raw, err := json.Marshal(f.Detail)
		if err != nil {
			return fmt.Errorf("store: encode failure detail: %w", err)
		}
		row.Detail = datatypes.JSON(raw)
	}
	if err := db.Create(&row).Error; err != nil {
		return fmt.Errorf("store: log failure: %w", err)
	}
	return nil
}

// ListFailures 返回台账行（按 id 升序）；runID 为空时返回全部。
func (s *Store) ListFailures(ctx context.Context, runID string) ([]Failure, error) {
	q := s.db.WithContext(ctx).Model(&FailureModel{})
	if runID != "" {
		q = q.Where("run_id = ?", runID)
	}
	var rows []FailureModel
	if err := q.Order("id ASC").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("store: list failures: %w", err)
	}
	out := make([]Failure, 0, len(rows))
	for _, r := range rows {
		f := Failure{
			RunID:    r.RunID,
			Symbol:   r.Symbol,
			Bar:      r.Bar,
			Attempt:  r.Attempt,
			Reason:   r.Reason,
			IsNoData: r.IsNoData,
			Contract: r.Contract,
		}
		var err error
		if f.Start, err = market.ParseUTC(r.StartUTC); err != nil {
			return nil, fmt.Errorf("store: decode failure %d start_utc %q: %w", r.ID, r.StartUTC, err)
		}
		if f.End, err = market.ParseUTC(r.EndUTC); err != nil {
			return nil, fmt.Errorf("store: decode failure %d end_utc %q: %w", r.ID, r.EndUTC, err)
		}
		if len(r.Detail) > 0 {
			if err := json.Unmarshal(r.Detail, &f.Detail); err != nil {
				return nil, fmt.Errorf("store: decode failure %d detail: %w", r.ID, err)
			}
		}
		out = append(out, f)
	}
	return out, nil
}
