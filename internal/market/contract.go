package market

import (
	"fmt"
	"strings"
	"time"
)

// Contract 是上游合约目录返回的一个具体期货合约。
type Contract struct {
	ConID         int64     `json:"con_id"`
	Symbol        string    `json:"symbol"`
	LocalSymbol   string    `json:"local_symbol"`
	ContractMonth string    `json:"contract_month"`
	Expiry        time.Time `json:"expiry"`
	Exchange      string    `json:"exchange"`
	Currency      string    `json:"currency"`
}

// Label returns a human readable contract label for logs and ledger rows.
func (c Contract) Label() string {
	if c.LocalSymbol != "" {
		return c.LocalSymbol
	}
	if c.ContractMonth != "" {
		return c.Symbol + " " + c.ContractMonth
	}
	return c.Symbol + " " + c.Expiry.Format("20060102")
}

// ParseExpiry parses lastTradeDateOrContractMonth style values (YYYYMMDD, optionally
// followed by a time part). Month-only values are rejected because they carry no expiry day.
func ParseExpiry(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if len(raw) < 8 {
		return time.Time{}, fmt.Errorf("invalid expiry %q", raw)
	}
	return time.ParseInLocation("20060102", raw[:8], time.UTC)
}

// MonthLabel formats a contract month as YYYYMM.
func MonthLabel(year int, month time.Month) string {
	return fmt.Sprintf("%04d%02d", year, int(month))
}
