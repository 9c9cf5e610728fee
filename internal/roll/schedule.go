package roll

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"futbars/internal/logger"
	"futbars/internal/market"
)

const dateLayout = "2006-01-02"

var scheduleHeader = []string{"symbol", "contract_month", "start_date", "end_date"}

// Family 描述一个合约族：切换规则、合约月份以及交易所/币种。
type Family struct {
	Symbol   string
	Calendar Calendar
	Months   []time.Month
	Exchange string
	Currency string
}

// SortedMonths returns a copy of the configured months in ascending order.
func (f Family) SortedMonths() []time.Month {
	out := append([]time.Month(nil), f.Months...)
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Record 表示某合约月份作为主力的有效区间 [Start, End)。
type Record struct {
	Symbol        string
	ContractMonth string
	Start         time.Time
	End           time.Time
}

// Contains reports whether the UTC date of t falls inside [Start, End).
func (r Record) Contains(t time.Time) bool {
	d := DateOnly(t)
	return !d.Before(r.Start) && d.Before(r.End)
}

// BuildSchedule 为 years 内每个配置月份计算切换日，生成连续不重叠的切换表。
// 首条记录从最早年份的 1 月 1 日开始，末条记录截止到最晚年份的 12 月 31 日。
func BuildSchedule(f Family, years []int) ([]Record, error) {
	ys := normalizeYears(years)
	if len(ys) == 0 || len(f.Months) == 0 {
		return nil, nil
	}
	symbol := strings.ToUpper(strings.TrimSpace(f.Symbol))
	months := f.SortedMonths()
	spanStart := time.Date(ys[0], time.January, 1, 0, 0, 0, 0, time.UTC)
	spanEnd := time.Date(ys[len(ys)-1], time.December, 31, 0, 0, 0, 0, time.UTC)

	var records []Record
	prev := spanStart
	for _, y := range ys {
		for _, m := range months {
			rollDate, err := f.Calendar.Date(y, m)
			if err != nil {
				return nil, fmt.Errorf("%s %d-%02d: %w", symbol, y, m, err)
			}
			// 切换日早于区间起点的合约在区间内从未成为主力。
			if !rollDate.After(prev) {
				continue
			}
			records = append(records, Record{
				Symbol:        symbol,
				ContractMonth: market.MonthLabel(y, m),
				Start:         prev,
				End:           rollDate,
			})
			prev = rollDate
		}
	}
	if n := len(records); n > 0 {
		records[n-1].End = spanEnd
	}
	return records, nil
}

func normalizeYears(years []int) []int {
	seen := make(map[int]bool, len(years))
	out := make([]int, 0, len(years))
	for _, y := range years {
		if seen[y] {
			continue
		}
		seen[y] = true
		out = append(out, y)
	}
	sort.Ints(out)
	return out
}

// YearSpan returns [start, end] inclusive.
func YearSpan(start, end int) []int {
	if end < start {
		return nil
	}
	out := make([]int, 0, end-start+1)
	for y := start; y <= end; y++ {
		out = append(out, y)
	}
	return out
}

// ExportSchedule 构建所有合约族的切换表并写入 CSV 文件。
func ExportSchedule(path string, families []Family, startYear, endYear int) ([]Record, error) {
	years := YearSpan(startYear, endYear)
	if len(years) == 0 {
		return nil, fmt.Errorf("invalid year span %d..%d", startYear, endYear)
	}
	var all []Record
	for _, f := range families {
		recs, err := BuildSchedule(f, years)
		if err != nil {
			return nil, err
		}
		all = append(all, recs...)
	}
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	file, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	if err := WriteSchedule(file, all); err != nil {
		_ = file.Close()
		return nil, err
	}
	if err := file.Close(); err != nil {
		return nil, err
	}
	logger.Infof("[roll] 切换表已写入 %s（%d 条，%d-%d）", path, len(all), startYear, endYear)
	return all, nil
}

// WriteSchedule writes records as CSV with a header row.
func WriteSchedule(w io.Writer, records []Record) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(scheduleHeader); err != nil {
		return err
	}
	for _, r := range records {
		if err := cw.Write([]string{
			r.Symbol,
			r.ContractMonth,
			r.Start.Format(dateLayout),
			r.End.Format(dateLayout),
		}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// Table maps an upper-case symbol to its ordered roll records.
type Table map[string][]Record

// LoadSchedule 读取切换表；文件不存在时返回空表。
func LoadSchedule(path string) (Table, error) {
	if strings.TrimSpace(path) == "" {
		return Table{}, nil
	}
	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Table{}, nil
		}
		return nil, err
	}
	defer file.Close()
	table, err := ReadSchedule(file)
	if err != nil {
		return nil, fmt.Errorf("read roll schedule %s: %w", path, err)
	}
	return table, nil
}

// ReadSchedule parses CSV produced by WriteSchedule, grouping rows by symbol in file order.
func ReadSchedule(r io.Reader) (Table, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return Table{}, nil
		}
		return nil, err
	}
	idx := make(map[string]int, len(header))
	for i, h := range header {
		idx[strings.ToLower(strings.TrimSpace(h))] = i
	}
	for _, col := range scheduleHeader {
		if _, ok := idx[col]; !ok {
			return nil, fmt.Errorf("missing column %q", col)
		}
	}
	table := Table{}
	line := 1
	for {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		line++
		field := func(name string) string {
			i := idx[name]
			if i >= len(row) {
				return ""
			}
			return strings.TrimSpace(row[i])
		}
		start, err := time.ParseInLocation(dateLayout, field("start_date"), time.UTC)
		if err != nil {
			return nil, fmt.Errorf("line %d: start_date: %w", line, err)
		}
		end, err := time.ParseInLocation(dateLayout, field("end_date"), time.UTC)
		if err != nil {
			return nil, fmt.Errorf("line %d: end_date: %w", line, err)
		}
		rec := Record{
			Symbol:        strings.ToUpper(field("symbol")),
			ContractMonth: field("contract_month"),
			Start:         start,
			End:           end,
		}
		table[rec.Symbol] = append(table[rec.Symbol], rec)
	}
	return table, nil
}

// Resolve 返回第一条覆盖 instant 日期的记录；未命中不是错误。
func (t Table) Resolve(symbol string, instant time.Time) (Record, bool) {
	for _, rec := range t[strings.ToUpper(strings.TrimSpace(symbol))] {
		if rec.Contains(instant) {
			return rec, true
		}
	}
	return Record{}, false
}
