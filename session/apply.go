package session

import (
	"time"

	"vitebridge/tree"
)

// Result statuses as reported by the external runner's JSON reporter.
const (
	StatusReportPass = "pass"
	StatusReportFail = "fail"
)

// ResultRecord is one flattened result from the external runner, grouped
// by file and kept in original report order.
type ResultRecord struct {
	FilePath       string
	DisplayName    string
	Status         string
	Skipped        bool
	FailureMessage string
	Duration       time.Duration
}

const (
	notFoundDiagnostic = "Test result not found. " +
		"The runner may report this test under a different name: check for a configured " +
		"runner name, custom runner options, or duplicate test names in the same file."
	noResultsDiagnostic = "Test run produced no results at all; " +
		"the runner process likely crashed before reporting. Check the run output for details."
)

// Apply reconciles raw results against the expected case nodes and issues
// exactly one transition per node into rs. Every expected node reaches a
// terminal state before Apply returns: matched nodes get their reported
// outcome, unmatched nodes are errored with a diagnostic. Duplicate or
// unknown results are ignored, so re-applying a result for an
// already-resolved node never changes its state.
func Apply(expected []*tree.Node, results []ResultRecord, rs RunSession) {
	files := ownerFiles(expected)
	identity := tree.BuildIdentityMap(files)

	pending := make(map[*tree.Node]bool, len(expected))
	for _, n := range expected {
		pending[n] = true
		rs.Started(n)
	}

	if len(results) == 0 {
		for _, n := range expected {
			rs.Errored(n, noResultsDiagnostic)
		}
		return
	}

	for _, byFile := range groupByFile(results) {
		for _, rec := range byFile {
			node := resolvePending(identity, pending, rec)
			if node == nil {
				continue
			}
			delete(pending, node)
			switch {
			case rec.Skipped || rec.Status == "":
				rs.Skipped(node)
			case rec.Status == StatusReportPass:
				rs.Passed(node, rec.Duration)
			case rec.Status == StatusReportFail:
				rs.Failed(node, rec.FailureMessage)
			default:
				rs.Skipped(node)
			}
		}
	}

	// Whatever the runner never reported still has to terminate.
	for _, n := range expected {
		if pending[n] {
			rs.Errored(n, notFoundDiagnostic)
		}
	}
}

// resolvePending finds the first still-pending case for the record, in
// declaration order. Scanning past resolved cases is what keeps two
// same-named results from landing on one node.
func resolvePending(identity tree.IdentityMap, pending map[*tree.Node]bool, rec ResultRecord) *tree.Node {
	for _, c := range identity.Resolve(rec.FilePath, rec.DisplayName) {
		if pending[c] {
			return c
		}
	}
	return nil
}

func ownerFiles(nodes []*tree.Node) []*tree.Node {
	seen := make(map[*tree.Node]bool)
	var files []*tree.Node
	for _, n := range nodes {
		if n.File != nil && !seen[n.File] {
			seen[n.File] = true
			files = append(files, n.File)
		}
	}
	return files
}

// groupByFile buckets records by file path, preserving report order both
// across buckets and within each bucket.
func groupByFile(results []ResultRecord) [][]ResultRecord {
	index := make(map[string]int)
	var groups [][]ResultRecord
	for _, rec := range results {
		i, ok := index[rec.FilePath]
		if !ok {
			i = len(groups)
			index[rec.FilePath] = i
			groups = append(groups, nil)
		}
		groups[i] = append(groups[i], rec)
	}
	return groups
}
