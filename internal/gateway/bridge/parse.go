package bridge

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"futbars/internal/market"

	"github.com/tidwall/gjson"
)

// 网关在查询区间无数据时返回的错误码。
const noDataCode = 162

func responseError(doc gjson.Result) (noData bool, err error) {
	e := doc.Get("error")
	if !e.Exists() || e.Type == gjson.Null {
		return false, nil
	}
	code := e.Get("code").Int()
	msg := e.Get("message").String()
	if e.Type == gjson.String {
		msg = e.String()
	}
	if code == noDataCode || strings.Contains(strings.ToLower(msg), "returned no data") {
		return true, nil
	}
	if code != 0 {
		return false, fmt.Errorf("行情网关错误 %d: %s", code, msg)
	}
	return false, fmt.Errorf("行情网关错误: %s", msg)
}

// parseBars 解析 {"bars":[...]}，只保留 [start, end) 内的 K 线；同一时间戳以后出现者为准。
func parseBars(body []byte, start, end time.Time) ([]market.Bar, error) {
	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("行情网关响应不是合法 JSON")
	}
	doc := gjson.ParseBytes(body)
	noData, err := responseError(doc)
	if err != nil {
		return nil, err
	}
	if noData {
		return nil, nil
	}
	list := doc.Get("bars")
	if !list.Exists() && doc.IsArray() {
		list = doc
	}
	if !list.IsArray() {
		return nil, fmt.Errorf("行情网关响应缺少 bars 数组")
	}

	byTs := make(map[int64]int)
	var out []market.Bar
	var parseErr error
	list.ForEach(func(_, item gjson.Result) bool {
		ts, err := parseBarTime(item.Get("time"))
		if err != nil {
			if alt := item.Get("date"); alt.Exists() {
				ts, err = parseBarTime(alt)
			}
		}
		if err != nil {
			parseErr = err
			return false
		}
		if ts.Before(start) || !ts.Before(end) {
			return true
		}
		bar := market.Bar{
			Timestamp: ts,
			Open:      item.Get("open").Float(),
			High:      item.Get("high").Float(),
			Low:       item.Get("low").Float(),
			Close:     item.Get("close").Float(),
			Volume:    item.Get("volume").Int(),
		}
		if w := firstOf(item, "wap", "vwap", "average"); w.Exists() && w.Type == gjson.Number && w.Float() > 0 {
			v := w.Float()
			bar.VWAP = &v
		}
		if n := firstOf(item, "count", "bar_count", "trade_count"); n.Exists() && n.Type == gjson.Number && n.Int() >= 0 {
			v := n.Int()
			bar.TradeCount = &v
		}
		key := ts.Unix()
		if i, ok := byTs[key]; ok {
			out[i] = bar
			return true
		}
		byTs[key] = len(out)
		out = append(out, bar)
		return true
	})
	if parseErr != nil {
		return nil, parseErr
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out, nil
}

func firstOf(item gjson.Result, keys ...string) gjson.Result {
	for _, k := range keys {
		if r := item.Get(k); r.Exists() && r.Type != gjson.Null {
			return r
		}
	}
	return gjson.Result{}
}

// parseBarTime 接受 epoch 秒/毫秒、RFC3339、"20060102 15:04:05[ 时区]" 与 "20060102"，统一转为 UTC。
func parseBarTime(v gjson.Result) (time.Time, error) {
	switch v.Type {
	case gjson.Number:
		n := v.Int()
		if n > 1e12 {
			return time.UnixMilli(n).UTC(), nil
		}
		return time.Unix(n, 0).UTC(), nil
	case gjson.String:
		return parseTimeString(v.String())
	default:
		return time.Time{}, fmt.Errorf("无法解析 K 线时间: %s", v.Raw)
	}
}

func parseTimeString(raw string) (time.Time, error) {
	s := strings.TrimSpace(raw)
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t.UTC(), nil
	}
	fields := strings.Fields(s)
	switch len(fields) {
	case 1:
		if t, err := time.ParseInLocation("20060102", fields[0], time.UTC); err == nil {
			return t, nil
		}
		if t, err := time.ParseInLocation("20060102-15:04:05", fields[0], time.UTC); err == nil {
			return t, nil
		}
	case 2, 3:
		loc := time.UTC
		if len(fields) == 3 {
			l, err := time.LoadLocation(fields[2])
			if err != nil {
				return time.Time{}, fmt.Errorf("未知时区 %q: %w", fields[2], err)
			}
			loc = l
		}
		if t, err := time.ParseInLocation("20060102 15:04:05", fields[0]+" "+fields[1], loc); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("无法解析 K 线时间: %q", raw)
}

// parseContracts 解析合约目录；缺少到期日的合约被丢弃。
func parseContracts(body []byte, symbol string) ([]market.Contract, error) {
	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("行情网关响应不是合法 JSON")
	}
	doc := gjson.ParseBytes(body)
	if _, err := responseError(doc); err != nil {
		return nil, err
	}
	list := doc.Get("contracts")
	if !list.Exists() && doc.IsArray() {
		list = doc
	}
	var out []market.Contract
	list.ForEach(func(_, item gjson.Result) bool {
		rawExpiry := firstOf(item, "last_trade_date", "expiry", "last_trade_date_or_contract_month").String()
		expiry, err := market.ParseExpiry(rawExpiry)
		if err != nil {
			return true
		}
		c := market.Contract{
			ConID:         item.Get("con_id").Int(),
			Symbol:        strings.ToUpper(firstOf(item, "symbol").String()),
			LocalSymbol:   item.Get("local_symbol").String(),
			ContractMonth: item.Get("contract_month").String(),
			Expiry:        expiry,
			Exchange:      item.Get("exchange").String(),
			Currency:      item.Get("currency").String(),
		}
		if c.Symbol == "" {
			c.Symbol = symbol
		}
		if c.ContractMonth == "" {
			c.ContractMonth = expiry.Format("200601")
		}
		out = append(out, c)
		return true
	})
	sort.SliceStable(out, func(i, j int) bool { return out[i].Expiry.Before(out[j].Expiry) })
	return out, nil
}
