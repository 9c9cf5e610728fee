package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"futbars/internal/config"
	"futbars/internal/contract"
	"futbars/internal/fetch"
	"futbars/internal/logger"
	"futbars/internal/report"
	"futbars/internal/store"
)

// App 持有一次抓取运行所需的全部依赖。
type App struct {
	cfg      *config.Config
	store    *store.Store
	source   fetch.BarSource
	resolver *contract.Resolver
	fetcher  *fetch.Service
}

// NewApp 根据配置构建应用对象（不启动）。
func NewApp(ctx context.Context, cfg *config.Config) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("nil config")
	}
	logger.SetLevel(cfg.App.LogLevel)
	return buildAppWithWire(ctx, cfg)
}

// FetchOptions 覆盖配置中的抓取参数；零值字段沿用配置。
type FetchOptions struct {
	Symbols    []string
	Bars       []string
	Start      time.Time
	End        time.Time
	Lookback   string
	ReportPath string
}

func (a *App) params(opts FetchOptions) fetch.Params {
	p := fetch.Params{
		Symbols:  opts.Symbols,
		Bars:     opts.Bars,
		Start:    opts.Start,
		End:      opts.End,
		Lookback: opts.Lookback,
	}
	if len(p.Symbols) == 0 {
		p.Symbols = a.cfg.Fetch.Symbols
	}
	if len(p.Symbols) == 0 {
		for sym := range a.cfg.Contracts {
			p.Symbols = append(p.Symbols, sym)
		}
		sort.Strings(p.Symbols)
	}
	if len(p.Bars) == 0 {
		p.Bars = a.cfg.Fetch.Bars
	}
	if len(p.Bars) == 0 {
		p.Bars = []string{"1m"}
	}
	if p.Start.IsZero() && strings.TrimSpace(p.Lookback) == "" {
		p.Lookback = a.cfg.Fetch.Lookback
	}
	return p
}

// RunFetch 执行抓取并写出报告。被取消的运行同样写出已有的部分报告。
func (a *App) RunFetch(ctx context.Context, opts FetchOptions) (report.Report, error) {
	if a == nil || a.fetcher == nil {
		return report.Report{}, fmt.Errorf("app not initialized")
	}
	rep, runErr := a.fetcher.Run(ctx, a.params(opts))
	// 存储错误已回滚，报告中的成功计数不再成立，不落盘。
	if rep.RunID == "" || errors.Is(runErr, fetch.ErrStorage) {
		return rep, runErr
	}
	path := opts.ReportPath
	if strings.TrimSpace(path) == "" {
		path = a.cfg.Report.Path
	}
	if err := report.Write(path, a.cfg.Report.Format, rep); err != nil {
		return rep, errors.Join(runErr, fmt.Errorf("write report: %w", err))
	}
	logger.Infof("[app] 报告已写入 %s", path)
	return rep, runErr
}

// Close 释放数据源与数据库。
func (a *App) Close() error {
	if a == nil {
		return nil
	}
	var errs []error
	if c, ok := a.source.(io.Closer); ok {
		errs = append(errs, c.Close())
	}
	if a.store != nil {
		errs = append(errs, a.store.Close())
	}
	return errors.Join(errs...)
}
