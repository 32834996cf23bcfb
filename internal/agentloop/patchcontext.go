package agentloop

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
)

const patchContextRadius = 80

// derivePatchContext implements spec §4.1's PATCH_CONTEXT derivation: try
// the localization result's {file,line} JSON first, then a failing_tests
// hint, then fall back to scanning red.log for a stack frame (preferring
// one under src/main/java). When a file+line pair is found, read ±80
// lines around it, numbered, for injection ahead of the patch prompt.
func (o *Orchestrator) derivePatchContext(ctx context.Context, rs *runState, loc LocalizeResult) string {
	if file, line, ok := fileLineFromLocalization(loc.Content); ok {
		if snippet, ok := readNumberedSpan(rs.cfg.Workdir, file, line, patchContextRadius); ok {
			return snippet
		}
	}

	if file, line, ok := fileLineFromFailingTests(loc.Content); ok {
		if snippet, ok := readNumberedSpan(rs.cfg.Workdir, file, line, patchContextRadius); ok {
			return snippet
		}
	}

	if file, line, ok := fileLineFromRedLog(redLogPath(rs)); ok {
		if snippet, ok := readNumberedSpan(rs.cfg.Workdir, file, line, patchContextRadius); ok {
			return snippet
		}
	}

	return ""
}

func fileLineFromLocalization(content string) (string, int, bool) {
	var doc map[string]any
	if err := json.Unmarshal([]byte(strings.TrimSpace(content)), &doc); err != nil {
		return "", 0, false
	}
	file, _ := doc["file"].(string)
	if file == "" {
		return "", 0, false
	}
	switch v := doc["line"].(type) {
	case float64:
		return file, int(v), true
	case string:
		if n, err := strconv.Atoi(v); err == nil {
			return file, n, true
		}
	}
	return "", 0, false
}

func fileLineFromFailingTests(content string) (string, int, bool) {
	var doc map[string]any
	if err := json.Unmarshal([]byte(strings.TrimSpace(content)), &doc); err != nil {
		return "", 0, false
	}
	tests, ok := doc["failing_tests"].([]any)
	if !ok || len(tests) == 0 {
		return "", 0, false
	}
	s, ok := tests[0].(string)
	if !ok {
		return "", 0, false
	}
	// Typical shape: "pkg.ClassName::methodName" or "pkg/File.java:123".
	if idx := strings.Index(s, ":"); idx > 0 && idx < len(s)-1 {
		if n, err := strconv.Atoi(strings.TrimPrefix(s[idx+1:], ":")); err == nil {
			return s[:idx], n, true
		}
	}
	return "", 0, false
}

var stackFrameRe = regexp.MustCompile(`\(([A-Za-z0-9_$./\\]+\.(?:java|py|go)):(\d+)\)`)

// fileLineFromRedLog scans a red.log for stack-trace frames, preferring
// the first one under src/main/java over test or library frames.
func fileLineFromRedLog(path string) (string, int, bool) {
	f, err := os.Open(path)
	if err != nil {
		return "", 0, false
	}
	defer f.Close()

	var fallbackFile string
	var fallbackLine int
	haveFallback := false

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		m := stackFrameRe.FindStringSubmatch(scanner.Text())
		if m == nil {
			continue
		}
		line, err := strconv.Atoi(m[2])
		if err != nil {
			continue
		}
		if strings.Contains(scanner.Text(), "src/main/java") || strings.Contains(scanner.Text(), "src.main") {
			return m[1], line, true
		}
		if !haveFallback {
			fallbackFile, fallbackLine, haveFallback = m[1], line, true
		}
	}
	return fallbackFile, fallbackLine, haveFallback
}

// readNumberedSpan reads lines [center-radius, center+radius] from a file
// under workdir, prefixed with line numbers.
func readNumberedSpan(workdir, file string, center, radius int) (string, bool) {
	full := file
	if !filepath.IsAbs(file) {
		full = filepath.Join(workdir, file)
	}
	data, err := os.ReadFile(full)
	if err != nil {
		return "", false
	}
	lines := strings.Split(string(data), "\n")

	start := center - radius
	if start < 1 {
		start = 1
	}
	end := center + radius
	if end > len(lines) {
		end = len(lines)
	}
	if start > end {
		return "", false
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s (around line %d):\n", file, center)
	for i := start; i <= end; i++ {
		fmt.Fprintf(&b, "%6d| %s\n", i, lines[i-1])
	}
	return b.String(), true
}
