// Package export 把已入库的 K 线导出为 csv / json / parquet 文件。
package export

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"futbars/internal/market"

	"github.com/parquet-go/parquet-go"
)

// ErrUnsupportedFormat is returned by NewWriter for unknown formats.
var ErrUnsupportedFormat = errors.New("export: unsupported format")

// Writer 把一批 K 线写入 path。
type Writer interface {
	Write(bars []market.Bar, path string) error
	Extension() string
}

// NewWriter returns the writer for csv, json or parquet.
func NewWriter(format string) (Writer, error) {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "csv":
		return CSVWriter{}, nil
	case "json":
		return JSONWriter{}, nil
	case "parquet":
		return ParquetWriter{}, nil
	default:
		return nil, fmt.Errorf("%w: %q (use: csv, json, parquet)", ErrUnsupportedFormat, format)
	}
}

// FileName 返回默认导出文件名，例如 MNQ_1m.parquet。
func FileName(symbol, bar string, w Writer) string {
	return strings.ToUpper(symbol) + "_" + bar + "." + w.Extension()
}

func ensureDir(path string) error {
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		return os.MkdirAll(dir, 0o755)
	}
	return nil
}

// CSVWriter 表头：ts_utc,open,high,low,close,volume,vwap,trade_count；缺省值留空。
type CSVWriter struct{}

func (CSVWriter) Extension() string { return "csv" }

func (CSVWriter) Write(bars []market.Bar, path string) error {
	if err := ensureDir(path); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	w := csv.NewWriter(f)
	if err := w.Write([]string{"ts_utc", "open", "high", "low", "close", "volume", "vwap", "trade_count"}); err != nil {
		return err
	}
	for _, b := range bars {
		vwap, trades := "", ""
		if b.VWAP != nil {
			vwap = floatStr(*b.VWAP)
		}
		if b.TradeCount != nil {
			trades = strconv.FormatInt(*b.TradeCount, 10)
		}
		if err := w.Write([]string{
			b.TimestampKey(),
			floatStr(b.Open),
			floatStr(b.High),
			floatStr(b.Low),
			floatStr(b.Close),
			strconv.FormatInt(b.Volume, 10),
			vwap,
			trades,
		}); err != nil {
			return err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return err
	}
	return f.Close()
}

func floatStr(f float64) string { return strconv.FormatFloat(f, 'f', -1, 64) }

// JSONWriter writes a JSON array of bars.
type JSONWriter struct{}

func (JSONWriter) Extension() string { return "json" }

func (JSONWriter) Write(bars []market.Bar, path string) error {
	if err := ensureDir(path); err != nil {
		return err
	}
	if bars == nil {
		bars = []market.Bar{}
	}
	raw, err := json.MarshalIndent(bars, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, append(raw, '\n'), 0o644)
}

// ParquetWriter 使用 market.Bar 的 parquet tag 作为 schema。
type ParquetWriter struct{}

func (ParquetWriter) Extension() string { return "parquet" }

func (ParquetWriter) Write(bars []market.Bar, path string) error {
	if err := ensureDir(path); err != nil {
		return err
	}
	return parquet.WriteFile(path, bars)
}
