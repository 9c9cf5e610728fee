package config

import "strings"

// Config 是 futbars 的主配置载体。
type Config struct {
	App       AppConfig                 `yaml:"app"`
	Source    SourceConfig              `yaml:"source"`
	Fetch     FetchConfig               `yaml:"fetch"`
	Roll      RollConfig                `yaml:"roll"`
	Contracts map[string]ContractConfig `yaml:"contracts"`
	Storage   StorageConfig             `yaml:"storage"`
	Report    ReportConfig              `yaml:"report"`
}

type AppConfig struct {
	Env       string `yaml:"env"`
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`
	LogPath   string `yaml:"log_path"`
}

// SourceConfig 描述上游行情网关的连接参数。
type SourceConfig struct {
	BaseURL                string `yaml:"base_url"`
	ClientID               int    `yaml:"client_id"`
	TimeoutSeconds         int    `yaml:"timeout_seconds"`
	WhatToShow             string `yaml:"what_to_show"`
	UseRTH                 bool   `yaml:"use_rth"`
	BreakerThreshold       int    `yaml:"breaker_threshold"`
	BreakerCooldownSeconds int    `yaml:"breaker_cooldown_seconds"`
}

type FetchConfig struct {
	PacingSeconds float64 `yaml:"pacing_seconds"`
	RetryRounds   int     `yaml:"retry_rounds"`
	// Workers > 1 并行处理互不相关的 (symbol, bar) 单元。
	Workers       int               `yaml:"workers"`
	MaxDaysPerBar map[string]int    `yaml:"max_days_per_bar"`
	BarSizeMap    map[string]string `yaml:"bar_size_map"`
	Symbols       []string          `yaml:"symbols"`
	Bars          []string          `yaml:"bars"`
	Lookback      string            `yaml:"lookback"`
}

type RollConfig struct {
	TablePath string `yaml:"table_path"`
	StartYear int    `yaml:"start_year"`
	EndYear   int    `yaml:"end_year"`
}

// ContractConfig 描述一个合约族的切换规则。
type ContractConfig struct {
	Rule       string `yaml:"rule"`
	OffsetDays int    `yaml:"offset_days"`
	Months     []int  `yaml:"months"`
	Exchange   string `yaml:"exchange"`
	Currency   string `yaml:"currency"`
}

type StorageConfig struct {
	DBPath string `yaml:"db_path"`
}

type ReportConfig struct {
	Path   string `yaml:"path"`
	Format string `yaml:"format"`
}

// keySet 用于追踪配置文件中显式设置的字段路径。
type keySet map[string]struct{}

func (k keySet) mark(path string) {
	path = strings.ToLower(strings.TrimSpace(path))
	if path == "" {
		return
	}
	k[path] = struct{}{}
}

func (k keySet) isSet(path string) bool {
	if len(k) == 0 {
		return false
	}
	path = strings.ToLower(strings.TrimSpace(path))
	if path == "" {
		return false
	}
	_, ok := k[path]
	return ok
}

// hasPrefix reports whether any key under path was set.
func (k keySet) hasPrefix(path string) bool {
	path = strings.ToLower(strings.TrimSpace(path))
	if path == "" {
		return false
	}
	for key := range k {
		if key == path || strings.HasPrefix(key, path+".") {
			return true
		}
	}
	return false
}

// fieldDefault 描述单个字段的默认值设置规则。
type fieldDefault struct {
	key   string
	need  func() bool
	apply func()
}
