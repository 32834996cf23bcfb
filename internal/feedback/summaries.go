package feedback

import "fmt"

func clipTail(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}

func clipHead(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

// FormatErrorSummary cites the exact validator diagnostic and, for
// diffs, lists the four concrete rules the model must follow — no
// markdown fences, no "...", hunk counts must match, trailing newline.
func FormatErrorSummary(validatorMessage string, structuredEditsOnly bool) string {
	if structuredEditsOnly {
		return fmt.Sprintf(
			"Your output was not valid structured-edits JSON: %s. "+
				"You must emit only a JSON document matching {\"patches\":[{\"id\":int,\"strategy\":str,\"reasoning\":str,\"edits\":[{\"path\":str,\"ops\":[...]}]}]} — no prose, no markdown fences.",
			validatorMessage,
		)
	}
	return fmt.Sprintf(
		"Your patch failed format validation: %s. Rules: (1) no markdown code fences; "+
			"(2) never use \"...\" placeholders; (3) each @@ hunk's line counts must match its body exactly; "+
			"(4) the diff must end with a trailing newline.",
		validatorMessage,
	)
}

// ApplyErrorSummary includes up to 500 chars of git-apply stderr and asks
// the model to re-read the injected PATCH_CONTEXT snippet as ground truth.
func ApplyErrorSummary(stderr string) string {
	return fmt.Sprintf(
		"git apply failed: %s. Re-read the PATCH_CONTEXT snippet above as ground truth for current line numbers before retrying.",
		clipHead(stderr, 500),
	)
}

// CompileErrorSummary includes the first 800 chars of the compile summary
// and asks the model to focus on imports/signatures/syntax.
func CompileErrorSummary(summary string) string {
	return fmt.Sprintf(
		"Compilation failed: %s. Focus on imports, method signatures, and syntax errors.",
		clipHead(summary, 800),
	)
}

// ValidationErrorSummary prefers adapter-provided structured rc/stderr
// fields over a raw JSON dump, with each field trimmed to its last 1500
// characters.
func ValidationErrorSummary(rc int, stdout, stderr, testFull, testTrigger string) string {
	if stderr != "" || stdout != "" {
		return fmt.Sprintf(
			"Validation failed (rc=%d).\nstdout (tail):\n%s\nstderr (tail):\n%s",
			rc, clipTail(stdout, 1500), clipTail(stderr, 1500),
		)
	}
	return fmt.Sprintf(
		"Validation failed.\ntest_trigger (tail):\n%s\ntest_full (tail):\n%s",
		clipTail(testTrigger, 1500), clipTail(testFull, 1500),
	)
}

// GreenTestFailedSummary is injected when the post-patch test re-run did
// not pass.
func GreenTestFailedSummary(detail string) string {
	return fmt.Sprintf("GREEN_TEST_FAILED: the target test still fails after your patch: %s", clipHead(detail, 800))
}
