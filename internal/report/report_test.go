package report

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func sampleBuilder() *Builder {
	start := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	b := NewBuilder([]string{"MNQ"}, []string{"1m"})
	b.AddRange(start, start.AddDate(0, 0, 10))
	b.AddSuccess(390)
	b.AddFailure(NewRecord("MNQ", "1m", start, start.AddDate(0, 0, 1), 1, "timeout", false, "MNQH4"))
	b.AddNoData(NewRecord("MNQ", "1m", start.AddDate(0, 0, 1), start.AddDate(0, 0, 2), 1, "no data", true, ""))
	return b
}

func TestEmptyReportSerializesEmptyLists(t *testing.T) {
	r := NewBuilder(nil, nil).Build()
	raw, err := Marshal(r, "json")
	require.NoError(t, err)
	s := string(raw)
	for _, key := range []string{`"symbols": []`, `"bars": []`, `"ranges": []`, `"failures": []`, `"no_data": []`} {
		assert.Contains(t, s, key)
	}
	assert.NoError(t, Validate(r))
}

func TestFieldOrderIsFixed(t *testing.T) {
	raw, err := Marshal(sampleBuilder().Build(), "json")
	require.NoError(t, err)
	s := string(raw)
	keys := []string{`"symbols"`, `"bars"`, `"ranges"`, `"success_count"`, `"failures"`, `"no_data"`}
	last := -1
	for _, k := range keys {
		idx := strings.Index(s, k)
		require.GreaterOrEqual(t, idx, 0, k)
		assert.Greater(t, idx, last, k)
		last = idx
	}
}

func TestBuildIsSnapshot(t *testing.T) {
	b := sampleBuilder()
	r := b.Build()
	b.AddSuccess(10)
	b.AddFailure(NewRecord("MNQ", "1m", time.Now(), time.Now().Add(time.Minute), 2, "x", false, ""))
	assert.Equal(t, 390, r.SuccessCount)
	assert.Len(t, r.Failures, 1)
	assert.NotEmpty(t, r.RunID)
}

func TestMergeKeepsOrder(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	run := NewBuilder([]string{"MNQ", "MGC"}, []string{"1h"})
	p1, p2 := NewPartial(), NewPartial()
	p1.AddSuccess(5)
	p1.AddFailure(NewRecord("MNQ", "1h", start, start.Add(time.Hour), 1, "a", false, ""))
	p2.AddFailure(NewRecord("MGC", "1h", start, start.Add(time.Hour), 1, "b", false, ""))
	p2.AddAbandoned(NewRecord("MGC", "1h", start, start.Add(time.Hour), 3, "b", false, ""))
	run.Merge(p1)
	run.Merge(p2)

	r := run.Build()
	assert.Equal(t, 5, r.SuccessCount)
	require.Len(t, r.Failures, 2)
	assert.Equal(t, "a", r.Failures[0].Reason)
	assert.Equal(t, "b", r.Failures[1].Reason)
	assert.Equal(t, Summary{Success: 5, Failures: 2, NoData: 0, Abandoned: 1}, r.Summary())
}

func TestWriteJSONAndYAML(t *testing.T) {
	dir := t.TempDir()
	r := sampleBuilder().Build()

	jsonPath := filepath.Join(dir, "out", "report.json")
	require.NoError(t, Write(jsonPath, "", r))
	raw, err := os.ReadFile(jsonPath)
	require.NoError(t, err)
	var back Report
	require.NoError(t, json.Unmarshal(raw, &back))
	assert.Equal(t, r.Failures, back.Failures)
	assert.Equal(t, r.NoData, back.NoData)

	yamlPath := filepath.Join(dir, "report.yaml")
	require.NoError(t, Write(yamlPath, "", r))
	raw, err = os.ReadFile(yamlPath)
	require.NoError(t, err)
	var doc map[string]any
	require.NoError(t, yaml.Unmarshal(raw, &doc))
	assert.Equal(t, 390, doc["success_count"])
	assert.True(t, strings.HasPrefix(string(raw), "symbols:"))
}

func TestUnknownFormat(t *testing.T) {
	_, err := Marshal(Report{}, "xml")
	assert.ErrorIs(t, err, ErrUnknownFormat)
}

func TestValidateRejectsBadRecord(t *testing.T) {
	r := sampleBuilder().Build()
	r.Failures[0].Attempt = 0
	assert.Error(t, Validate(r))
}
