package agentloop

import "strings"

// codeFileSuffixes are the file extensions counted toward Hit@k — log,
// temp, and dependency paths are filtered per spec §3.
var codeFileSuffixes = []string{".java", ".py", ".go", ".js", ".ts", ".c", ".cpp", ".h", ".hpp"}

func isCodeFile(path string) bool {
	for _, sfx := range codeFileSuffixes {
		if strings.HasSuffix(path, sfx) {
			return true
		}
	}
	return false
}

func filterCodeFiles(paths []string) []string {
	out := make([]string, 0, len(paths))
	for _, p := range paths {
		if isCodeFile(p) {
			out = append(out, p)
		}
	}
	return out
}

// fileHit reports whether any of the top-k predicted files intersects
// the set of files actually modified, using a permissive suffix match
// since predicted paths may be absolute while patch paths are relative
// (or vice versa) — the open-question resolution recorded in DESIGN.md:
// this repository pins the behavior to "either path is a suffix of the
// other".
func fileHit(predicted []string, actual []string, k int) bool {
	if k > len(predicted) {
		k = len(predicted)
	}
	for i := 0; i < k; i++ {
		for _, a := range actual {
			if pathsMatch(predicted[i], a) {
				return true
			}
		}
	}
	return false
}

func pathsMatch(a, b string) bool {
	return a == b || strings.HasSuffix(a, b) || strings.HasSuffix(b, a)
}

// computeHitAtK stamps FileHitAt1/FileHitAt3 and ActualModifiedFiles on
// the run's metrics, using only code files for both sides of the
// comparison (spec §3).
func computeHitAtK(rs *runState, modifiedFiles []string) {
	predicted := filterCodeFiles(rs.predictedFiles)
	actual := filterCodeFiles(modifiedFiles)
	rs.tracker.Metrics.LocalizationPredictedFiles = predicted
	rs.tracker.Metrics.ActualModifiedFiles = actual
	rs.tracker.Metrics.FileHitAt1 = fileHit(predicted, actual, 1)
	rs.tracker.Metrics.FileHitAt3 = fileHit(predicted, actual, 3)
}

// bestEffortHitAtK computes Hit@k against the last attempted patch's
// modified-file set when the run exhausts its iterations without
// success, per spec §4.1 "Terminal".
func (o *Orchestrator) bestEffortHitAtK(rs *runState) {
	if rs.lastPatchText == "" {
		return
	}
	computeHitAtK(rs, modifiedFilesFromDiff(rs.lastPatchText))
}

// modifiedFilesFromDiff extracts file paths from a unified diff's
// "diff --git a/X b/X" headers.
func modifiedFilesFromDiff(diffText string) []string {
	var out []string
	for _, line := range strings.Split(diffText, "\n") {
		if !strings.HasPrefix(line, "diff --git ") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 4 {
			continue
		}
		b := fields[3]
		out = append(out, strings.TrimPrefix(b, "b/"))
	}
	return out
}
