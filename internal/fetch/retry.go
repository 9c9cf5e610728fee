package fetch

import (
	"context"
	"fmt"
	"time"

	"futbars/internal/market"
)

// Outcome 是单个切片重试循环的结果。
type Outcome int

const (
	OutcomeSuccess Outcome = iota
	OutcomeNoData
	// OutcomeAbandoned: every attempt faulted.
	OutcomeAbandoned
	// OutcomeCancelled: the run context ended before the slice finished.
	OutcomeCancelled
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomeNoData:
		return "no_data"
	case OutcomeAbandoned:
		return "abandoned"
	case OutcomeCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// RetryPolicy 控制单个切片的顺序重试。
type RetryPolicy struct {
	MaxAttempts int
	Backoff     time.Duration
}

// DefaultRetryPolicy mirrors the default config: 3 rounds, 1.5s pacing.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 3, Backoff: 1500 * time.Millisecond}
}

// Result of one slice. Attempts counts upstream calls actually made.
type Result struct {
	Outcome  Outcome
	Bars     []market.Bar
	Attempts int
	LastErr  error
}

// Do 依次尝试 fetch：空结果立即返回 NoData，有数据返回 Success，出错则调用 onFault
// 记录后退避再试。wait 在每次请求前调用（共享限速器）。
// 返回的 error 只有两种：ctx 结束，或 onFault 自身失败（例如台账写入失败）。
func (p RetryPolicy) Do(
	ctx context.Context,
	wait func(context.Context) error,
	fetch func(context.Context) ([]market.Bar, error),
	onFault func(attempt int, err error) error,
) (Result, error) {
	maxAttempts := p.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	var res Result
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			res.Outcome = OutcomeCancelled
			return res, err
		}
		if wait != nil {
			if err := wait(ctx); err != nil {
				res.Outcome = OutcomeCancelled
				return res, waitErr(ctx, err)
			}
		}
		res.Attempts = attempt
		bars, err := fetch(ctx)
		if err == nil {
			if len(bars) == 0 {
				res.Outcome = OutcomeNoData
				return res, nil
			}
			res.Outcome = OutcomeSuccess
			res.Bars = bars
			return res, nil
		}
		// 取消导致的错误不计入失败台账。
		if ctxErr := ctx.Err(); ctxErr != nil {
			res.Outcome = OutcomeCancelled
			res.Attempts = attempt - 1
			return res, ctxErr
		}
		res.LastErr = err
		if onFault != nil {
			if ferr := onFault(attempt, err); ferr != nil {
				res.Outcome = OutcomeAbandoned
				return res, ferr
			}
		}
		if attempt < maxAttempts && p.Backoff > 0 {
			if err := sleepCtx(ctx, p.Backoff); err != nil {
				res.Outcome = OutcomeCancelled
				return res, err
			}
		}
	}
	res.Outcome = OutcomeAbandoned
	return res, nil
}

// waitErr 把限速等待失败归类为取消。rate.Limiter 在等待会越过 ctx 截止时间时提前失败，
// 此时 ctx.Err() 仍为 nil。
func waitErr(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	return fmt.Errorf("%w: %v", context.DeadlineExceeded, err)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
