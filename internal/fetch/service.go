// Package fetch 驱动历史 K 线抓取：合约覆盖区间、切片、逐片重试、写库与报告。
package fetch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"futbars/internal/contract"
	"futbars/internal/logger"
	"futbars/internal/market"
	"futbars/internal/report"
	"futbars/internal/slicer"
	"futbars/internal/store"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

// ErrStorage marks store faults; they abort the run and roll back the transaction.
var ErrStorage = errors.New("storage fault")

// ServiceConfig 配置抓取服务。
type ServiceConfig struct {
	Store         *store.Store
	Source        BarSource
	Resolver      *contract.Resolver
	MaxDaysPerBar map[string]int
	// Pacing 是相邻上游请求的最小间隔，也是失败后的退避时长（Retry.Backoff 为零时）。
	Pacing  time.Duration
	Retry   RetryPolicy
	Workers int
	Now     func() time.Time
}

// Service 协调一次运行的全部抓取。
type Service struct {
	store         *store.Store
	source        BarSource
	catalog       ContractCatalog
	resolver      *contract.Resolver
	maxDaysPerBar map[string]int
	retry         RetryPolicy
	workers       int
	now           func() time.Time

	limiter *rate.Limiter
}

func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("store 不能为空")
	}
	if cfg.Source == nil {
		return nil, fmt.Errorf("数据源不能为空")
	}
	if cfg.Resolver == nil {
		return nil, fmt.Errorf("resolver 不能为空")
	}
	if len(cfg.MaxDaysPerBar) == 0 {
		return nil, fmt.Errorf("max_days_per_bar 不能为空")
	}
	limit := rate.Inf
	if cfg.Pacing > 0 {
		limit = rate.Every(cfg.Pacing)
	}
	retry := cfg.Retry
	if retry.MaxAttempts <= 0 {
		retry.MaxAttempts = DefaultRetryPolicy().MaxAttempts
	}
	if retry.Backoff <= 0 {
		retry.Backoff = cfg.Pacing
	}
	workers := cfg.Workers
	if workers <= 0 {
		workers = 1
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	svc := &Service{
		store:         cfg.Store,
		source:        cfg.Source,
		resolver:      cfg.Resolver,
		maxDaysPerBar: cfg.MaxDaysPerBar,
		retry:         retry,
		workers:       workers,
		now:           now,
		limiter:       rate.NewLimiter(limit, 1),
	}
	// 能力探测只做一次。
	if catalog, ok := cfg.Source.(ContractCatalog); ok {
		svc.catalog = catalog
	}
	return svc, nil
}

// HasCatalog reports whether the source can enumerate contracts.
func (s *Service) HasCatalog() bool { return s.catalog != nil }

type unit struct {
	symbol string
	bar    string
	days   int
	cover  []CoverageRange
}

// Run 执行一次完整抓取。配置类错误在任何请求之前返回；单个切片失败只记录不中断；
// 存储错误回滚并中止；ctx 取消时提交已完成部分并同时返回部分报告与 ctx 错误。
func (s *Service) Run(ctx context.Context, p Params) (report.Report, error) {
	start, end, err := p.Window(s.now())
	if err != nil {
		return report.Report{}, err
	}
	symbols := normalizeList(p.Symbols, true)
	bars := normalizeList(p.Bars, false)
	if len(symbols) == 0 {
		return report.Report{}, fmt.Errorf("%w: no symbols requested", contract.ErrUnconfiguredSymbol)
	}
	if len(bars) == 0 {
		return report.Report{}, fmt.Errorf("%w: no bars requested", slicer.ErrUnknownGranularity)
	}
	for _, sym := range symbols {
		if _, err := s.resolver.Family(sym); err != nil {
			return report.Report{}, err
		}
	}
	spans := make(map[string]int, len(bars))
	for _, bar := range bars {
		days, err := slicer.MaxSpanDays(bar, s.maxDaysPerBar)
		if err != nil {
			return report.Report{}, err
		}
		if days < 1 {
			return report.Report{}, fmt.Errorf("%w: max span for %s is %d days", slicer.ErrInvalidRange, bar, days)
		}
		spans[bar] = days
	}

	rep := report.NewBuilder(symbols, bars)
	rep.AddRange(start, end)
	runID := rep.RunID()
	logger.Infof("[fetch] run %s 开始：source=%s symbols=%v bars=%v [%s, %s)", runID, s.source.Name(), symbols, bars,
		market.FormatUTC(start), market.FormatUTC(end))

	covers := make(map[string][]CoverageRange, len(symbols))
	for _, sym := range symbols {
		cover, err := s.coverage(ctx, sym, start, end)
		if err != nil {
			rep.MarkCancelled()
			return rep.Build(), err
		}
		covers[sym] = cover
	}

	var units []unit
	for _, sym := range symbols {
		for _, bar := range bars {
			units = append(units, unit{symbol: sym, bar: bar, days: spans[bar], cover: covers[sym]})
		}
	}

	tx, err := s.store.Begin(ctx)
	if err != nil {
		return rep.Build(), fmt.Errorf("%w: begin: %w", ErrStorage, err)
	}

	runErr := s.runUnits(ctx, tx, runID, units, rep)
	// 除存储错误外，中断都走提交路径：已写入的切片均完整，报告计数与库中一致。
	if runErr != nil && !errors.Is(runErr, ErrStorage) {
		rep.MarkCancelled()
		if err := tx.Commit(); err != nil {
			return rep.Build(), fmt.Errorf("%w: commit: %w", ErrStorage, err)
		}
		out := rep.Build()
		logger.Warnf("[fetch] run %s 中断，已提交部分结果：success=%d failures=%d no_data=%d: %v",
			runID, out.SuccessCount, len(out.Failures), len(out.NoData), runErr)
		if ctxErr := ctx.Err(); ctxErr != nil {
			return out, ctxErr
		}
		return out, runErr
	}
	if runErr != nil {
		_ = tx.Rollback()
		logger.Errorf("[fetch] run %s 中止并回滚: %v", runID, runErr)
		return rep.Build(), runErr
	}
	if err := tx.Commit(); err != nil {
		return rep.Build(), fmt.Errorf("%w: commit: %w", ErrStorage, err)
	}
	out := rep.Build()
	logger.Infof("[fetch] run %s 完成：success=%d failures=%d no_data=%d abandoned=%d",
		runID, out.SuccessCount, len(out.Failures), len(out.NoData), len(out.Abandoned))
	return out, nil
}

func (s *Service) runUnits(ctx context.Context, tx *store.Tx, runID string, units []unit, rep *report.Builder) error {
	if s.workers <= 1 || len(units) <= 1 {
		for _, u := range units {
			if err := s.runUnit(ctx, tx, runID, u, rep); err != nil {
				return err
			}
		}
		return nil
	}
	partials := make([]*report.Builder, len(units))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)
	for i, u := range units {
		partials[i] = report.NewPartial()
		part := partials[i]
		g.Go(func() error {
			return s.runUnit(gctx, tx, runID, u, part)
		})
	}
	err := g.Wait()
	// 按 unit 顺序合并，报告与顺序执行时一致。
	for _, part := range partials {
		rep.Merge(part)
	}
	return err
}

func (s *Service) runUnit(ctx context.Context, tx *store.Tx, runID string, u unit, rep *report.Builder) error {
	for _, cr := range u.cover {
		slices, err := slicer.Slice(cr.Start, cr.End, u.days)
		if err != nil {
			return err
		}
		for _, sl := range slices {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := s.fetchSlice(ctx, tx, runID, u, cr.Contract, sl, rep); err != nil {
				return err
			}
		}
	}
	return nil
}

func (s *Service) fetchSlice(ctx context.Context, tx *store.Tx, runID string, u unit, c *market.Contract, sl slicer.TimeSlice, rep *report.Builder) error {
	req := FetchRequest{Symbol: u.symbol, Bar: u.bar, Start: sl.Start, End: sl.End, Contract: c}
	label := ""
	if c != nil {
		label = c.Label()
	} else if resolved, err := s.resolver.Resolve(u.symbol, sl.Start); err == nil {
		req.Resolved = &resolved
		label = resolved.Symbol + " " + resolved.ContractMonth
	}
	// 单个切片的写入必须完整，不受取消影响。
	writeCtx := context.WithoutCancel(ctx)
	failure := func(attempt int, reason string, noData bool) store.Failure {
		return store.Failure{
			RunID:    runID,
			Symbol:   u.symbol,
			Bar:      u.bar,
			Start:    sl.Start,
			End:      sl.End,
			Attempt:  attempt,
			Reason:   reason,
			IsNoData: noData,
			Contract: label,
			Detail:   map[string]any{"source": s.source.Name()},
		}
	}

	res, err := s.retry.Do(ctx, s.limiter.Wait,
		func(ctx context.Context) ([]market.Bar, error) {
			return s.source.FetchBars(ctx, req)
		},
		func(attempt int, ferr error) error {
			logger.Warnf("[fetch] %s %s %s 第 %d/%d 次失败: %v", u.symbol, u.bar, sl, attempt, s.retry.MaxAttempts, ferr)
			if err := tx.LogFailure(writeCtx, failure(attempt, ferr.Error(), false)); err != nil {
				return fmt.Errorf("%w: %w", ErrStorage, err)
			}
			rep.AddFailure(report.NewRecord(u.symbol, u.bar, sl.Start, sl.End, attempt, ferr.Error(), false, label))
			return nil
		})
	if err != nil {
		return err
	}

	switch res.Outcome {
	case OutcomeSuccess:
		n, err := tx.UpsertBars(writeCtx, u.symbol, u.bar, res.Bars)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrStorage, err)
		}
		rep.AddSuccess(n)
		logger.Debugf("[fetch] %s %s %s 写入 %d 行", u.symbol, u.bar, sl, n)
	case OutcomeNoData:
		const reason = "no data"
		if err := tx.LogFailure(writeCtx, failure(res.Attempts, reason, true)); err != nil {
			return fmt.Errorf("%w: %w", ErrStorage, err)
		}
		rep.AddNoData(report.NewRecord(u.symbol, u.bar, sl.Start, sl.End, res.Attempts, reason, true, label))
		logger.Infof("[fetch] %s %s %s 无数据", u.symbol, u.bar, sl)
	case OutcomeAbandoned:
		reason := "retries exhausted"
		if res.LastErr != nil {
			reason = res.LastErr.Error()
		}
		rep.AddAbandoned(report.NewRecord(u.symbol, u.bar, sl.Start, sl.End, res.Attempts, reason, false, label))
		logger.Warnf("[fetch] %s %s %s 重试 %d 次后放弃", u.symbol, u.bar, sl, res.Attempts)
	}
	return nil
}

// coverage 查询合约目录并计算覆盖区间；目录不可用或为空时退化为单一无合约区间。
func (s *Service) coverage(ctx context.Context, symbol string, start, end time.Time) ([]CoverageRange, error) {
	whole := []CoverageRange{{Start: start, End: end}}
	if s.catalog == nil {
		return whole, nil
	}
	if err := s.limiter.Wait(ctx); err != nil {
		return nil, waitErr(ctx, err)
	}
	contracts, err := s.catalog.ListContracts(ctx, symbol)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		logger.Warnf("[fetch] %s 合约目录不可用，按 symbol 抓取: %v", symbol, err)
		return whole, nil
	}
	ranges := CoverageRanges(start, end, contracts)
	if len(ranges) == 0 {
		logger.Warnf("[fetch] %s 合约目录为空，按 symbol 抓取", symbol)
		return whole, nil
	}
	logger.Infof("[fetch] %s 覆盖区间 %d 段（合约 %d 个）", symbol, len(ranges), len(contracts))
	return ranges, nil
}
