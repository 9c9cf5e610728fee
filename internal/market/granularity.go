package market

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// Granularity 描述一个 bar 周期：内部 key、时长以及上游使用的 bar size 文本。
type Granularity struct {
	Key        string
	Duration   time.Duration
	SourceSize string
}

var supportedGranularities = map[string]Granularity{
	"1m":  {Key: "1m", Duration: time.Minute, SourceSize: "1 min"},
	"3m":  {Key: "3m", Duration: 3 * time.Minute, SourceSize: "3 mins"},
	"5m":  {Key: "5m", Duration: 5 * time.Minute, SourceSize: "5 mins"},
	"15m": {Key: "15m", Duration: 15 * time.Minute, SourceSize: "15 mins"},
	"30m": {Key: "30m", Duration: 30 * time.Minute, SourceSize: "30 mins"},
	"1h":  {Key: "1h", Duration: time.Hour, SourceSize: "1 hour"},
	"1d":  {Key: "1d", Duration: 24 * time.Hour, SourceSize: "1 day"},
}

// ParseGranularity 返回标准化周期定义。
func ParseGranularity(input string) (Granularity, error) {
	key := strings.ToLower(strings.TrimSpace(input))
	g, ok := supportedGranularities[key]
	if !ok {
		return Granularity{}, fmt.Errorf("unsupported granularity: %s", input)
	}
	return g, nil
}

// SupportedGranularities returns every known key ordered by duration.
func SupportedGranularities() []string {
	keys := make([]string, 0, len(supportedGranularities))
	for k := range supportedGranularities {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		return supportedGranularities[keys[i]].Duration < supportedGranularities[keys[j]].Duration
	})
	return keys
}

// DefaultBarSizes is the granularity → upstream bar size text mapping.
func DefaultBarSizes() map[string]string {
	out := make(map[string]string, len(supportedGranularities))
	for k, g := range supportedGranularities {
		out[k] = g.SourceSize
	}
	return out
}
