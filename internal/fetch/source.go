package fetch

import (
	"context"
	"time"

	"futbars/internal/contract"
	"futbars/internal/market"
)

// FetchRequest 描述一次上游 K 线请求，区间为 [Start, End)。
type FetchRequest struct {
	Symbol string
	Bar    string
	Start  time.Time
	End    time.Time
	// Contract 非空时按具体合约请求；否则按 symbol 请求，Resolved 给出当时的主力合约提示。
	Contract *market.Contract
	Resolved *contract.Resolved
}

// BarSource 统一不同上游的拉取行为。空结果表示该区间无数据，不是错误。
type BarSource interface {
	FetchBars(ctx context.Context, req FetchRequest) ([]market.Bar, error)
	Name() string
}

// ContractCatalog is implemented by sources that can enumerate every listed
// contract (including expired ones) for a symbol.
type ContractCatalog interface {
	ListContracts(ctx context.Context, symbol string) ([]market.Contract, error)
}
