// Package report turns a finished run's Result into a Markdown
// post-mortem, a terminal-rendered preview (glamour, grounded on the
// teacher's CLI renderer), and an HTML file (goldmark) for local
// debugging — spec scopes dashboards/analytics out, but a single-run
// report is squarely "local debugging output" and not excluded.
package report

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/glamour"
	"github.com/yuin/goldmark"

	"github.com/aprbench/aprloop/internal/agentloop"
)

// Markdown renders a Result as a Markdown post-mortem document.
func Markdown(pid string, bid int, variant string, result *agentloop.Result) string {
	var b strings.Builder

	verdict := "FAILED"
	if result.Ok {
		verdict = "PASSED"
	}
	fmt.Fprintf(&b, "# %s-%d (%s) — %s\n\n", pid, bid, variant, verdict)
	fmt.Fprintf(&b, "Generated %s\n\n", time.Now().UTC().Format(time.RFC3339))

	if result.Error != "" {
		fmt.Fprintf(&b, "**Error:** %s\n\n", result.Error)
	}

	b.WriteString("## Harness\n\n")
	fmt.Fprintf(&b, "- ok: %v\n", result.HarnessOk)
	if result.HarnessError != "" {
		fmt.Fprintf(&b, "- error: %s\n", result.HarnessError)
	}
	b.WriteString("\n")

	if m := result.Metrics; m != nil {
		b.WriteString("## Metrics\n\n")
		fmt.Fprintf(&b, "| | count |\n|---|---|\n")
		fmt.Fprintf(&b, "| total API calls | %d |\n", m.TotalAPICalls)
		fmt.Fprintf(&b, "| localize API calls | %d |\n", m.Localization.APICalls)
		fmt.Fprintf(&b, "| patch API calls | %d |\n", m.Patch.APICalls)
		fmt.Fprintf(&b, "| patch attempts | %d |\n", m.PatchAttempts)
		fmt.Fprintf(&b, "| apply success/attempt | %d/%d |\n", m.ApplySuccessCount, m.ApplyAttemptCount)
		fmt.Fprintf(&b, "| compile success/attempt | %d/%d |\n", m.CompileSuccessCount, m.CompileAttemptCount)
		fmt.Fprintf(&b, "| git apply failures | %d |\n", m.GitApplyFailures)
		fmt.Fprintf(&b, "| compile failures | %d |\n", m.CompileFailures)
		fmt.Fprintf(&b, "| validation failures | %d |\n", m.ValidationFailures)
		fmt.Fprintf(&b, "| RED gate verified | %v |\n", m.TDDGateRedVerified)
		fmt.Fprintf(&b, "| GREEN gate verified | %v |\n", m.TDDGateGreenVerified)
		fmt.Fprintf(&b, "| file hit@1 / hit@3 | %v / %v |\n", m.FileHitAt1, m.FileHitAt3)
		fmt.Fprintf(&b, "| runtime seconds | %.1f |\n\n", m.RuntimeSeconds)
	}

	if result.Patch != "" {
		b.WriteString("## Final patch\n\n```diff\n")
		b.WriteString(strings.TrimRight(result.Patch, "\n"))
		b.WriteString("\n```\n\n")
	}

	if v := result.Validation; v != nil {
		b.WriteString("## Validation\n\n")
		fmt.Fprintf(&b, "- passed: %v\n- rc: %d\n\n", v.Passed, v.RC)
	}

	return b.String()
}

// TerminalPreview renders Markdown to styled ANSI output for a local
// terminal, falling back to the raw Markdown if rendering fails.
func TerminalPreview(md string, width int) string {
	if width <= 0 {
		width = 100
	}
	r, err := glamour.NewTermRenderer(glamour.WithAutoStyle(), glamour.WithWordWrap(width-4))
	if err != nil {
		return md
	}
	out, err := r.Render(md)
	if err != nil {
		return md
	}
	return strings.TrimSpace(out)
}

// HTML converts the Markdown report to a standalone HTML fragment.
func HTML(md string) (string, error) {
	var buf bytes.Buffer
	if err := goldmark.Convert([]byte(md), &buf); err != nil {
		return "", fmt.Errorf("render report HTML: %w", err)
	}
	return buf.String(), nil
}
