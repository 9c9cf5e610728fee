package config

import (
	"fmt"
	"strings"

	"futbars/internal/market"
	"futbars/internal/roll"
)

// validate 对配置进行基础校验。
func validate(c *Config) error {
	if err := c.Source.validate(); err != nil {
		return err
	}
	if err := c.Fetch.validate(); err != nil {
		return err
	}
	if err := c.Roll.validate(); err != nil {
		return err
	}
	if err := validateContracts(c.Contracts); err != nil {
		return err
	}
	if strings.TrimSpace(c.Storage.DBPath) == "" {
		return fmt.Errorf("storage.db_path cannot be empty")
	}
	switch strings.ToLower(strings.TrimSpace(c.Report.Format)) {
	case "json", "yaml", "yml":
	default:
		return fmt.Errorf("report.format must be json or yaml, got %q", c.Report.Format)
	}
	return nil
}

func (s *SourceConfig) validate() error {
	if s.TimeoutSeconds < 0 {
		return fmt.Errorf("source.timeout_seconds must be >= 0")
	}
	if s.BreakerThreshold < 0 || s.BreakerCooldownSeconds < 0 {
		return fmt.Errorf("source.breaker_* must be >= 0")
	}
	return nil
}

func (f *FetchConfig) validate() error {
	if f.PacingSeconds < 0 {
		return fmt.Errorf("fetch.pacing_seconds must be >= 0")
	}
	if f.RetryRounds < 1 {
		return fmt.Errorf("fetch.retry_rounds must be >= 1")
	}
	if f.Workers < 0 {
		return fmt.Errorf("fetch.workers must be >= 0")
	}
	for bar, days := range f.MaxDaysPerBar {
		if _, err := market.ParseGranularity(bar); err != nil {
			return fmt.Errorf("fetch.max_days_per_bar: %w", err)
		}
		if days < 1 {
			return fmt.Errorf("fetch.max_days_per_bar.%s must be >= 1", bar)
		}
	}
	for bar, size := range f.BarSizeMap {
		if strings.TrimSpace(size) == "" {
			return fmt.Errorf("fetch.bar_size_map.%s cannot be empty", bar)
		}
	}
	return nil
}

func (r *RollConfig) validate() error {
	if r.StartYear > r.EndYear {
		return fmt.Errorf("roll.start_year (%d) must be <= roll.end_year (%d)", r.StartYear, r.EndYear)
	}
	return nil
}

func validateContracts(contracts map[string]ContractConfig) error {
	if len(contracts) == 0 {
		return fmt.Errorf("contracts requires at least one symbol")
	}
	for sym, cc := range contracts {
		if _, err := roll.ParseRule(cc.Rule); err != nil {
			return fmt.Errorf("contracts.%s.rule: %w", sym, err)
		}
		if len(cc.Months) == 0 {
			return fmt.Errorf("contracts.%s.months cannot be empty", sym)
		}
		seen := make(map[int]bool, len(cc.Months))
		for _, m := range cc.Months {
			if m < 1 || m > 12 {
				return fmt.Errorf("contracts.%s.months contains invalid month %d", sym, m)
			}
			if seen[m] {
				return fmt.Errorf("contracts.%s.months contains duplicate month %d", sym, m)
			}
			seen[m] = true
		}
		if cc.OffsetDays < 1 {
			return fmt.Errorf("contracts.%s.offset_days must be >= 1, got %d", sym, cc.OffsetDays)
		}
	}
	return nil
}
