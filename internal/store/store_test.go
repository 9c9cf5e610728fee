package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"futbars/internal/market"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	st, err := Open(filepath.Join(t.TempDir(), "bars.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func testBar(ts time.Time, closePx float64) market.Bar {
	return market.Bar{Timestamp: ts, Open: closePx - 1, High: closePx + 1, Low: closePx - 2, Close: closePx, Volume: 10}
}

func TestTableName(t *testing.T) {
	assert.Equal(t, "bars_MNQ_1m", TableName("mnq", "1m"))
	assert.Equal(t, "bars_ES_Z4_1h", TableName("ES-Z4", "1h"))
}

func TestUpsertBarsIsIdempotent(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()
	ts := time.Date(2024, 3, 1, 14, 30, 0, 0, time.UTC)

	n, err := st.UpsertBars(ctx, "MNQ", "1m", []market.Bar{testBar(ts, 100)})
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	n, err = st.UpsertBars(ctx, "MNQ", "1m", []market.Bar{testBar(ts, 105)})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	count, err := st.CountBars(ctx, "MNQ", "1m")
	require.NoError(t, err)
	assert.EqualValues(t, 1, count)

	got, err := st.QueryBars(ctx, "MNQ", "1m", time.Time{}, time.Time{})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, 105.0, got[0].Close, "last write wins")
	assert.True(t, got[0].Timestamp.Equal(ts))
}

func TestUpsertBarsAddsDistinctTimestamps(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()
	base := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	_, err := st.UpsertBars(ctx, "MGC", "5m", []market.Bar{testBar(base, 2000)})
	require.NoError(t, err)

	var batch []market.Bar
	for i := 1; i <= 4; i++ {
		batch = append(batch, testBar(base.Add(time.Duration(i)*5*time.Minute), 2000+float64(i)))
	}
	// duplicate inside one batch collapses to one row
	batch = append(batch, testBar(base.Add(5*time.Minute), 1999))
	n, err := st.UpsertBars(ctx, "MGC", "5m", batch)
	require.NoError(t, err)
	assert.Equal(t, 4, n)

	count, err := st.CountBars(ctx, "MGC", "5m")
	require.NoError(t, err)
	assert.EqualValues(t, 5, count)

	got, err := st.QueryBars(ctx, "MGC", "5m", base.Add(5*time.Minute), base.Add(15*time.Minute))
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, 1999.0, got[0].Close)
}

func TestOptionalColumnsRoundTrip(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()
	vwap := 101.25
	trades := int64(42)
	b := testBar(time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC), 101)
	b.VWAP = &vwap
	b.TradeCount = &trades

	_, err := st.UpsertBars(ctx, "MNQ", "1d", []market.Bar{b, testBar(b.Timestamp.AddDate(0, 0, 1), 102)})
	require.NoError(t, err)

	got, err := st.QueryBars(ctx, "MNQ", "1d", time.Time{}, time.Time{})
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.NotNil(t, got[0].VWAP)
	assert.Equal(t, vwap, *got[0].VWAP)
	require.NotNil(t, got[0].TradeCount)
	assert.Equal(t, trades, *got[0].TradeCount)
	assert.Nil(t, got[1].VWAP)
	assert.Nil(t, got[1].TradeCount)
}

func TestQueryMissingPartition(t *testing.T) {
	st := openTestStore(t)
	got, err := st.QueryBars(context.Background(), "ZZZ", "1m", time.Time{}, time.Time{})
	require.NoError(t, err)
	assert.Empty(t, got)
	n, err := st.CountBars(context.Background(), "ZZZ", "1m")
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestFailureLedgerAppends(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()
	start := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	f := Failure{RunID: "run-1", Symbol: "MNQ", Bar: "1m", Start: start, End: start.AddDate(0, 0, 1), Attempt: 1, Reason: "timeout"}

	require.NoError(t, st.LogFailure(ctx, f))
	f.Attempt = 2
	f.Detail = map[string]any{"code": float64(162)}
	require.NoError(t, st.LogFailure(ctx, f))
	require.NoError(t, st.LogFailure(ctx, Failure{RunID: "run-2", Symbol: "MGC", Bar: "1h", Start: start, End: start.Add(time.Hour), Attempt: 1, Reason: "no data", IsNoData: true}))

	rows, err := st.ListFailures(ctx, "run-1")
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, 1, rows[0].Attempt)
	assert.Equal(t, 2, rows[1].Attempt)
	assert.Equal(t, float64(162), rows[1].Detail["code"])
	assert.True(t, rows[0].Start.Equal(start))

	all, err := st.ListFailures(ctx, "")
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.True(t, all[2].IsNoData)
}

func TestTxCommitAndRollback(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()
	ts := time.Date(2024, 6, 3, 0, 0, 0, 0, time.UTC)

	tx, err := st.Begin(ctx)
	require.NoError(t, err)
	_, err = tx.UpsertBars(ctx, "MNQ", "1h", []market.Bar{testBar(ts, 1)})
	require.NoError(t, err)
	require.NoError(t, tx.LogFailure(ctx, Failure{RunID: "r", Symbol: "MNQ", Bar: "1h", Start: ts, End: ts.Add(time.Hour), Attempt: 1, Reason: "x"}))
	require.NoError(t, tx.Rollback())

	n, err := st.CountBars(ctx, "MNQ", "1h")
	require.NoError(t, err)
	assert.Zero(t, n)
	rows, err := st.ListFailures(ctx, "r")
	require.NoError(t, err)
	assert.Empty(t, rows)

	// the partition is recreated after a rolled back DDL
	tx, err = st.Begin(ctx)
	require.NoError(t, err)
	_, err = tx.UpsertBars(ctx, "MNQ", "1h", []market.Bar{testBar(ts, 2)})
	require.NoError(t, err)
	require.NoError(t, tx.Commit())
	assert.ErrorIs(t, tx.Commit(), ErrTxDone)
	assert.NoError(t, tx.Rollback())

	n, err = st.CountBars(ctx, "MNQ", "1h")
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
}

func TestListFailuresReportsCorruptRows(t *testing.T) {
	tests := []struct {
		name    string
		row     FailureModel
		wantErr string
	}{
		{
			name:    "bad start",
			row:     FailureModel{RunID: "bad", Symbol: "MNQ", Bar: "1m", StartUTC: "yesterday", EndUTC: "2024-03-02T00:00:00Z", Attempt: 1},
			wantErr: "start_utc",
		},
		{
			name:    "bad end",
			row:     FailureModel{RunID: "bad", Symbol: "MNQ", Bar: "1m", StartUTC: "2024-03-01T00:00:00Z", EndUTC: "", Attempt: 1},
			wantErr: "end_utc",
		},
		{
			name:    "bad detail",
			row:     FailureModel{RunID: "bad", Symbol: "MNQ", Bar: "1m", StartUTC: "2024-03-01T00:00:00Z", EndUTC: "2024-03-02T00:00:00Z", Attempt: 1, Detail: []byte("{not json")},
			wantErr: "detail",
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			st := openTestStore(t)
			row := tc.row
			require.NoError(t, st.db.Create(&row).Error)

			_, err := st.ListFailures(context.Background(), "bad")
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.wantErr)
		})
	}
}
