package app

import (
	"context"
	"fmt"
	"strings"

	"futbars/internal/config"
	"futbars/internal/contract"
	"futbars/internal/fetch"
	"futbars/internal/gateway/bridge"
	"futbars/internal/logger"
	"futbars/internal/roll"
	"futbars/internal/store"
)

type AppBuilder struct {
	cfg *config.Config

	sourceFn func(*config.Config, []roll.Family) (fetch.BarSource, error)
}

type AppBuilderOption func(*AppBuilder)

// WithSource replaces the gateway client, e.g. with a recorded or fake source.
func WithSource(src fetch.BarSource) AppBuilderOption {
	return func(b *AppBuilder) {
		b.sourceFn = func(*config.Config, []roll.Family) (fetch.BarSource, error) { return src, nil }
	}
}

func NewAppBuilder(cfg *config.Config, opts ...AppBuilderOption) *AppBuilder {
	b := &AppBuilder{
		cfg:      cfg,
		sourceFn: buildBridgeSource,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(b)
		}
	}
	return b
}

func (b *AppBuilder) Build(ctx context.Context) (*App, error) {
	if b == nil || b.cfg == nil {
		return nil, fmt.Errorf("nil config")
	}
	cfg := b.cfg
	families, err := cfg.Families()
	if err != nil {
		return nil, err
	}
	table, err := roll.LoadSchedule(cfg.Roll.TablePath)
	if err != nil {
		return nil, fmt.Errorf("加载切换表失败: %w", err)
	}
	if len(table) == 0 {
		logger.Infof("[app] 切换表 %s 不存在或为空，按日历规则解析合约", cfg.Roll.TablePath)
	}
	resolver := contract.NewResolver(families, table)

	st, err := store.Open(cfg.Storage.DBPath)
	if err != nil {
		return nil, fmt.Errorf("打开数据库失败: %w", err)
	}
	src, err := b.sourceFn(cfg, families)
	if err != nil {
		_ = st.Close()
		return nil, err
	}
	svc, err := fetch.NewService(fetch.ServiceConfig{
		Store:         st,
		Source:        src,
		Resolver:      resolver,
		MaxDaysPerBar: cfg.Fetch.MaxDaysPerBar,
		Pacing:        cfg.Fetch.Pacing(),
		Retry:         fetch.RetryPolicy{MaxAttempts: cfg.Fetch.RetryRounds, Backoff: cfg.Fetch.Pacing()},
		Workers:       cfg.Fetch.Workers,
	})
	if err != nil {
		_ = st.Close()
		return nil, err
	}
	logger.Infof("[app] ✓ 初始化完成：source=%s catalog=%t db=%s", src.Name(), svc.HasCatalog(), cfg.Storage.DBPath)
	return &App{
		cfg:      cfg,
		store:    st,
		source:   src,
		resolver: resolver,
		fetcher:  svc,
	}, nil
}

func buildBridgeSource(cfg *config.Config, families []roll.Family) (fetch.BarSource, error) {
	venues := make(map[string]bridge.Venue, len(families))
	for _, f := range families {
		venues[strings.ToUpper(f.Symbol)] = bridge.Venue{Exchange: f.Exchange, Currency: f.Currency}
	}
	return bridge.NewClient(bridge.Config{
		BaseURL:          cfg.Source.BaseURL,
		ClientID:         cfg.Source.ClientID,
		Timeout:          cfg.Source.Timeout(),
		WhatToShow:       cfg.Source.WhatToShow,
		UseRTH:           cfg.Source.UseRTH,
		BarSizes:         cfg.Fetch.BarSizeMap,
		Venues:           venues,
		BreakerThreshold: cfg.Source.BreakerThreshold,
		BreakerCooldown:  cfg.Source.BreakerCooldown(),
	})
}
