package runner

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"vitebridge/session"
)

// ErrNoOutput means the process completed without producing a parseable
// result object. Distinct from an unresolved result: this one taints the
// whole run.
var ErrNoOutput = errors.New("runner produced no result output")

// BatchResult is the JSON object the external runner's json reporter
// emits for a one-shot run.
type BatchResult struct {
	TestResults []TestResult `json:"testResults"`
}

// TestResult is one flattened assertion result inside a BatchResult.
type TestResult struct {
	TestFilePath   string     `json:"testFilePath"`
	DisplayName    string     `json:"displayName"`
	Status         string     `json:"status"`
	Skipped        bool       `json:"skipped"`
	FailureMessage string     `json:"failureMessage"`
	PerfStats      *PerfStats `json:"perfStats"`
}

// PerfStats carries timing in milliseconds.
type PerfStats struct {
	Runtime float64 `json:"runtime"`
}

// ParseBatchResult validates and decodes a result object. The shape is
// checked here at the boundary so nothing downstream has to guess at
// field presence.
func ParseBatchResult(data []byte) (*BatchResult, error) {
	var probe struct {
		TestResults *[]TestResult `json:"testResults"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return nil, fmt.Errorf("decode result object: %w", err)
	}
	if probe.TestResults == nil {
		return nil, fmt.Errorf("result object has no testResults field: %w", ErrNoOutput)
	}
	for i, tr := range *probe.TestResults {
		if tr.TestFilePath == "" {
			return nil, fmt.Errorf("testResults[%d] missing testFilePath", i)
		}
		if tr.DisplayName == "" {
			return nil, fmt.Errorf("testResults[%d] missing displayName", i)
		}
	}
	return &BatchResult{TestResults: *probe.TestResults}, nil
}

// ExtractBatchResult finds the result object inside captured runner
// stdout. The json reporter writes it as a single line; the default
// reporter's human output surrounds it, so scan from the end for the
// last line that validates.
func ExtractBatchResult(stdout string) (*BatchResult, error) {
	lines := strings.Split(stdout, "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		line := strings.TrimSpace(lines[i])
		if !strings.HasPrefix(line, "{") {
			continue
		}
		if res, err := ParseBatchResult([]byte(line)); err == nil {
			return res, nil
		}
	}
	return nil, ErrNoOutput
}

// Records flattens the result into applier records, original order
// preserved.
func (b *BatchResult) Records() []session.ResultRecord {
	records := make([]session.ResultRecord, 0, len(b.TestResults))
	for _, tr := range b.TestResults {
		rec := session.ResultRecord{
			FilePath:       tr.TestFilePath,
			DisplayName:    tr.DisplayName,
			Status:         tr.Status,
			Skipped:        tr.Skipped,
			FailureMessage: tr.FailureMessage,
		}
		if tr.PerfStats != nil {
			rec.Duration = time.Duration(tr.PerfStats.Runtime * float64(time.Millisecond))
		}
		records = append(records, rec)
	}
	return records
}
