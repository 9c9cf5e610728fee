package config

import (
	"strings"

	"futbars/internal/market"
	"futbars/internal/roll"
)

// 默认值常量
const (
	defaultAppEnv           = "dev"
	defaultAppLogLevel      = "info"
	defaultAppLogFormat     = "text"
	defaultSourceBaseURL    = "http://127.0.0.1:5000/api/v1"
	defaultSourceClientID   = 1
	defaultSourceTimeout    = 60
	defaultSourceWhatToShow = "TRADES"
	defaultBreakerThreshold = 5
	defaultBreakerCooldown  = 30
	defaultPacingSeconds    = 1.5
	defaultRetryRounds      = 3
	defaultWorkers          = 1
	defaultRollTablePath    = "data/roll_schedule.csv"
	defaultRollStartYear    = 2018
	defaultRollEndYear      = 2035
	defaultDBPath           = "data/futures.db"
	defaultReportPath       = "data/fetch_report.json"
	defaultReportFormat     = "json"
	defaultCurrency         = "USD"
)

// DefaultMaxDaysPerBar 是每个周期单次请求允许的最大天数。
func DefaultMaxDaysPerBar() map[string]int {
	return map[string]int{"1m": 1, "3m": 3, "5m": 5, "15m": 10, "30m": 20, "1h": 30, "1d": 365}
}

// DefaultContracts mirrors the two supported families: MNQ (index) and MGC (metal).
func DefaultContracts() map[string]ContractConfig {
	return map[string]ContractConfig{
		"MNQ": {Rule: string(roll.RuleIndex), OffsetDays: roll.DefaultIndexOffset, Months: []int{3, 6, 9, 12}, Exchange: "CME", Currency: "USD"},
		"MGC": {Rule: string(roll.RuleMetal), OffsetDays: roll.DefaultMetalOffset, Months: []int{2, 4, 6, 8, 10, 12}, Exchange: "COMEX", Currency: "USD"},
	}
}

// applyDefaults 为所有子配置应用默认值。
func (c *Config) applyDefaults(keys keySet) {
	c.App.applyDefaults(keys)
	c.Source.applyDefaults(keys)
	c.Fetch.applyDefaults(keys)
	c.Roll.applyDefaults(keys)
	c.Storage.applyDefaults(keys)
	c.Report.applyDefaults(keys)
	c.applyContractDefaults(keys)
}

func (a *AppConfig) applyDefaults(keys keySet) {
	if a == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("app.env", &a.Env, defaultAppEnv),
		stringFieldDefault("app.log_level", &a.LogLevel, defaultAppLogLevel),
		stringFieldDefault("app.log_format", &a.LogFormat, defaultAppLogFormat),
	)
}

func (s *SourceConfig) applyDefaults(keys keySet) {
	if s == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("source.base_url", &s.BaseURL, defaultSourceBaseURL),
		stringFieldDefault("source.what_to_show", &s.WhatToShow, defaultSourceWhatToShow),
		intFieldDefault("source.client_id", &s.ClientID, defaultSourceClientID),
		intFieldDefault("source.timeout_seconds", &s.TimeoutSeconds, defaultSourceTimeout),
		intFieldDefault("source.breaker_threshold", &s.BreakerThreshold, defaultBreakerThreshold),
		intFieldDefault("source.breaker_cooldown_seconds", &s.BreakerCooldownSeconds, defaultBreakerCooldown),
	)
}

func (f *FetchConfig) applyDefaults(keys keySet) {
	if f == nil {
		return
	}
	applyFieldDefaults(keys,
		fieldDefault{
			key:   "fetch.pacing_seconds",
			need:  func() bool { return f.PacingSeconds <= 0 },
			apply: func() { f.PacingSeconds = defaultPacingSeconds },
		},
		intFieldDefault("fetch.retry_rounds", &f.RetryRounds, defaultRetryRounds),
		intFieldDefault("fetch.workers", &f.Workers, defaultWorkers),
	)
	// 只补齐缺失的周期，显式配置的值保持不变。
	if f.MaxDaysPerBar == nil {
		f.MaxDaysPerBar = make(map[string]int)
	}
	for bar, days := range DefaultMaxDaysPerBar() {
		if _, ok := f.MaxDaysPerBar[bar]; !ok {
			f.MaxDaysPerBar[bar] = days
		}
	}
	if f.BarSizeMap == nil {
		f.BarSizeMap = make(map[string]string)
	}
	for bar, size := range market.DefaultBarSizes() {
		if strings.TrimSpace(f.BarSizeMap[bar]) == "" {
			f.BarSizeMap[bar] = size
		}
	}
}

func (r *RollConfig) applyDefaults(keys keySet) {
	if r == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("roll.table_path", &r.TablePath, defaultRollTablePath),
		intFieldDefault("roll.start_year", &r.StartYear, defaultRollStartYear),
		intFieldDefault("roll.end_year", &r.EndYear, defaultRollEndYear),
	)
}

func (s *StorageConfig) applyDefaults(keys keySet) {
	if s == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("storage.db_path", &s.DBPath, defaultDBPath),
	)
}

func (r *ReportConfig) applyDefaults(keys keySet) {
	if r == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("report.path", &r.Path, defaultReportPath),
		stringFieldDefault("report.format", &r.Format, defaultReportFormat),
	)
}

func (c *Config) applyContractDefaults(keys keySet) {
	if !keys.hasPrefix("contracts") && len(c.Contracts) == 0 {
		c.Contracts = DefaultContracts()
		return
	}
	normalized := make(map[string]ContractConfig, len(c.Contracts))
	for key, cc := range c.Contracts {
		symbol := strings.ToUpper(strings.TrimSpace(key))
		if symbol == "" {
			continue
		}
		if strings.TrimSpace(cc.Currency) == "" {
			cc.Currency = defaultCurrency
		}
		// 显式写出的 offset_days 保持原值，交给 validate 检查。
		explicit := keys.isSet("contracts." + strings.ToLower(strings.TrimSpace(key)) + ".offset_days")
		if !explicit && cc.OffsetDays <= 0 {
			if rule, err := roll.ParseRule(cc.Rule); err == nil {
				switch rule {
				case roll.RuleIndex:
					cc.OffsetDays = roll.DefaultIndexOffset
				case roll.RuleMetal:
					cc.OffsetDays = roll.DefaultMetalOffset
				}
			}
		}
		normalized[symbol] = cc
	}
	c.Contracts = normalized
}

// Helper functions

func applyFieldDefaults(keys keySet, defs ...fieldDefault) {
	for _, def := range defs {
		if def.apply == nil {
			continue
		}
		if def.key != "" && keys.isSet(def.key) {
			continue
		}
		if def.need != nil && !def.need() {
			continue
		}
		def.apply()
	}
}

func stringFieldDefault(key string, target *string, def string) fieldDefault {
	return fieldDefault{
		key: key,
		need: func() bool {
			return target != nil && strings.TrimSpace(*target) == ""
		},
		apply: func() {
			if target != nil {
				*target = def
			}
		},
	}
}

func intFieldDefault(key string, target *int, def int) fieldDefault {
	return fieldDefault{
		key:  key,
		need: func() bool { return target != nil && *target <= 0 },
		apply: func() {
			if target != nil {
				*target = def
			}
		},
	}
}
