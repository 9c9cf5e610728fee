// Package report 汇总一次抓取运行：请求范围、成功行数、失败与无数据记录。
package report

import (
	"sync"
	"time"

	"futbars/internal/market"

	"github.com/google/uuid"
)

// Range is one requested [start, end) window in RFC3339 UTC.
type Range struct {
	Start string `json:"start" yaml:"start"`
	End   string `json:"end" yaml:"end"`
}

// Record 对应台账中的一行（失败或无数据）。
type Record struct {
	Symbol   string `json:"symbol" yaml:"symbol"`
	Bar      string `json:"bar" yaml:"bar"`
	Start    string `json:"start" yaml:"start"`
	End      string `json:"end" yaml:"end"`
	Attempt  int    `json:"attempt" yaml:"attempt"`
	Reason   string `json:"reason" yaml:"reason"`
	IsNoData bool   `json:"is_no_data" yaml:"is_no_data"`
	Contract string `json:"contract,omitempty" yaml:"contract,omitempty"`
}

// NewRecord builds a Record with canonical UTC timestamps.
func NewRecord(symbol, bar string, start, end time.Time, attempt int, reason string, noData bool, contract string) Record {
	return Record{
		Symbol:   symbol,
		Bar:      bar,
		Start:    market.FormatUTC(start),
		End:      market.FormatUTC(end),
		Attempt:  attempt,
		Reason:   reason,
		IsNoData: noData,
		Contract: contract,
	}
}

// Report 是不可变的运行结果。字段顺序即序列化顺序。
type Report struct {
	Symbols      []string `json:"symbols" yaml:"symbols"`
	Bars         []string `json:"bars" yaml:"bars"`
	Ranges       []Range  `json:"ranges" yaml:"ranges"`
	SuccessCount int      `json:"success_count" yaml:"success_count"`
	Failures     []Record `json:"failures" yaml:"failures"`
	NoData       []Record `json:"no_data" yaml:"no_data"`
	// Abandoned 列出重试耗尽的切片，每个切片一条（最后一次尝试）。
	Abandoned  []Record `json:"abandoned" yaml:"abandoned"`
	RunID      string   `json:"run_id" yaml:"run_id"`
	StartedAt  string   `json:"started_at" yaml:"started_at"`
	FinishedAt string   `json:"finished_at" yaml:"finished_at"`
	Cancelled  bool     `json:"cancelled" yaml:"cancelled"`
}

// Summary is the one-line account printed after a run.
type Summary struct {
	Success   int
	Failures  int
	NoData    int
	Abandoned int
}

func (r Report) Summary() Summary {
	return Summary{
		Success:   r.SuccessCount,
		Failures:  len(r.Failures),
		NoData:    len(r.NoData),
		Abandoned: len(r.Abandoned),
	}
}

// Builder 在运行期间累积结果；并发安全。
type Builder struct {
	mu        sync.Mutex
	runID     string
	started   time.Time
	symbols   []string
	bars      []string
	ranges    []Range
	success   int
	failures  []Record
	noData    []Record
	abandoned []Record
	cancelled bool
}

// NewBuilder starts a report with a fresh run id.
func NewBuilder(symbols, bars []string) *Builder {
	return &Builder{
		runID:   uuid.NewString(),
		started: time.Now().UTC(),
		symbols: append([]string(nil), symbols...),
		bars:    append([]string(nil), bars...),
	}
}

// NewPartial returns a builder that only collects per-unit outcomes; merge it back
// into the run builder with Merge.
func NewPartial() *Builder {
	return &Builder{}
}

func (b *Builder) RunID() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.runID
}

func (b *Builder) AddRange(start, end time.Time) {
	b.mu.Lock()
	b.ranges = append(b.ranges, Range{Start: market.FormatUTC(start), End: market.FormatUTC(end)})
	b.mu.Unlock()
}

func (b *Builder) AddSuccess(rows int) {
	b.mu.Lock()
	b.success += rows
	b.mu.Unlock()
}

func (b *Builder) AddFailure(rec Record) {
	b.mu.Lock()
	b.failures = append(b.failures, rec)
	b.mu.Unlock()
}

func (b *Builder) AddNoData(rec Record) {
	b.mu.Lock()
	b.noData = append(b.noData, rec)
	b.mu.Unlock()
}

func (b *Builder) AddAbandoned(rec Record) {
	b.mu.Lock()
	b.abandoned = append(b.abandoned, rec)
	b.mu.Unlock()
}

func (b *Builder) MarkCancelled() {
	b.mu.Lock()
	b.cancelled = true
	b.mu.Unlock()
}

// Merge 追加 other 的计数与记录，保持 other 内部顺序。
func (b *Builder) Merge(other *Builder) {
	if other == nil || other == b {
		return
	}
	other.mu.Lock()
	success := other.success
	failures := append([]Record(nil), other.failures...)
	noData := append([]Record(nil), other.noData...)
	abandoned := append([]Record(nil), other.abandoned...)
	ranges := append([]Range(nil), other.ranges...)
	other.mu.Unlock()

	b.mu.Lock()
	b.success += success
	b.failures = append(b.failures, failures...)
	b.noData = append(b.noData, noData...)
	b.abandoned = append(b.abandoned, abandoned...)
	b.ranges = append(b.ranges, ranges...)
	b.mu.Unlock()
}

// Build 返回当前状态的快照；之后对 Builder 的修改不影响返回值。
func (b *Builder) Build() Report {
	b.mu.Lock()
	defer b.mu.Unlock()
	return Report{
		Symbols:      cloneStrings(b.symbols),
		Bars:         cloneStrings(b.bars),
		Ranges:       append(make([]Range, 0, len(b.ranges)), b.ranges...),
		SuccessCount: b.success,
		Failures:     cloneRecords(b.failures),
		NoData:       cloneRecords(b.noData),
		Abandoned:    cloneRecords(b.abandoned),
		RunID:        b.runID,
		StartedAt:    market.FormatUTC(b.started),
		FinishedAt:   market.FormatUTC(time.Now()),
		Cancelled:    b.cancelled,
	}
}

func cloneStrings(in []string) []string {
	return append(make([]string, 0, len(in)), in...)
}

func cloneRecords(in []Record) []Record {
	return append(make([]Record, 0, len(in)), in...)
}
