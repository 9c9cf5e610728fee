package app

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"futbars/internal/config"
	"futbars/internal/export"
	"futbars/internal/logger"
	"futbars/internal/roll"
	"futbars/internal/store"
)

// ExportRollTable 生成全部已配置合约族在 [start_year, end_year] 的切换表并写入 roll.table_path。
func ExportRollTable(cfg *config.Config, path string) ([]roll.Record, error) {
	families, err := cfg.Families()
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(path) == "" {
		path = cfg.Roll.TablePath
	}
	return roll.ExportSchedule(path, families, cfg.Roll.StartYear, cfg.Roll.EndYear)
}

// ExportOptions 描述一次 K 线导出。
type ExportOptions struct {
	Symbol string
	Bar    string
	Format string
	// Out 为空时写到 DB 同目录下的 exports/<SYMBOL>_<bar>.<ext>。
	Out   string
	Start time.Time
	End   time.Time
}

// ExportBars 从 DB 读出 (symbol, bar) 分区并按格式写文件，返回写出的行数与路径。
func ExportBars(ctx context.Context, cfg *config.Config, opts ExportOptions) (int, string, error) {
	if strings.TrimSpace(opts.Symbol) == "" || strings.TrimSpace(opts.Bar) == "" {
		return 0, "", fmt.Errorf("symbol/bar 不能为空")
	}
	format := opts.Format
	if strings.TrimSpace(format) == "" {
		format = "csv"
	}
	w, err := export.NewWriter(format)
	if err != nil {
		return 0, "", err
	}
	st, err := store.Open(cfg.Storage.DBPath)
	if err != nil {
		return 0, "", fmt.Errorf("打开数据库失败: %w", err)
	}
	defer st.Close()

	bars, err := st.QueryBars(ctx, opts.Symbol, opts.Bar, opts.Start, opts.End)
	if err != nil {
		return 0, "", err
	}
	out := opts.Out
	if strings.TrimSpace(out) == "" {
		out = filepath.Join(filepath.Dir(cfg.Storage.DBPath), "exports", export.FileName(opts.Symbol, opts.Bar, w))
	}
	if err := w.Write(bars, out); err != nil {
		return 0, "", fmt.Errorf("导出失败: %w", err)
	}
	logger.Infof("[export] %s %s → %s（%d 行）", strings.ToUpper(opts.Symbol), opts.Bar, out, len(bars))
	return len(bars), out, nil
}
