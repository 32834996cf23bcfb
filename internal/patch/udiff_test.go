package patch

import "testing"

func TestValidateUnifiedDiff_RejectsEmpty(t *testing.T) {
	if err := ValidateUnifiedDiff("   \n\n"); err == nil {
		t.Fatal("expected an error for an empty patch")
	}
}

func TestValidateUnifiedDiff_RejectsEllipsisPlaceholder(t *testing.T) {
	diff := "diff --git a/f.go b/f.go\n@@ -1,1 +1,1 @@\n-old\n...\n+new\n"
	if err := ValidateUnifiedDiff(diff); err == nil {
		t.Fatal("expected an error for a \"...\" placeholder line")
	}
}

func TestValidateUnifiedDiff_RejectsNoHunks(t *testing.T) {
	diff := "diff --git a/f.go b/f.go\nindex abc..def 100644\n--- a/f.go\n+++ b/f.go\n"
	if err := ValidateUnifiedDiff(diff); err == nil {
		t.Fatal("expected an error when no @@ hunk header is present")
	}
}

func TestValidateUnifiedDiff_AcceptsWellFormedHunk(t *testing.T) {
	diff := "diff --git a/f.go b/f.go\n" +
		"--- a/f.go\n+++ b/f.go\n" +
		"@@ -1,3 +1,3 @@\n" +
		" line one\n" +
		"-line two\n" +
		"+line two changed\n" +
		" line three\n"
	if err := ValidateUnifiedDiff(diff); err != nil {
		t.Fatalf("expected a well-formed hunk to validate, got: %v", err)
	}
}

func TestValidateUnifiedDiff_CountMismatchDiagnostic(t *testing.T) {
	// header claims 5 old lines but the body only supplies 4.
	diff := "diff --git a/f.go b/f.go\n" +
		"@@ -1,5 +1,3 @@\n" +
		" a\n" +
		"-b\n" +
		"-c\n" +
		" d\n"
	err := ValidateUnifiedDiff(diff)
	if err == nil {
		t.Fatal("expected a hunk count mismatch error")
	}
	want := "hunk count mismatch: seen_old=4, expected_old=5"
	if err.Error() != want {
		t.Fatalf("got %q, want %q", err.Error(), want)
	}
}

func TestValidateUnifiedDiff_RejectsUnrecognizedPrefix(t *testing.T) {
	diff := "diff --git a/f.go b/f.go\n@@ -1,1 +1,1 @@\n*garbage\n"
	if err := ValidateUnifiedDiff(diff); err == nil {
		t.Fatal("expected an error for an unrecognized body line prefix")
	}
}

func TestValidateUnifiedDiff_NoNewlineMarkerCountsTowardNeither(t *testing.T) {
	diff := "diff --git a/f.go b/f.go\n" +
		"@@ -1,1 +1,1 @@\n" +
		"-old\n" +
		"\\ No newline at end of file\n" +
		"+new\n"
	if err := ValidateUnifiedDiff(diff); err != nil {
		t.Fatalf("expected the \\ marker line to be ignored by the count check, got: %v", err)
	}
}

func TestCleanDiffText_StripsMarkdownFenceAndPreamble(t *testing.T) {
	raw := "Here you go:\n```diff\ndiff --git a/f.go b/f.go\n@@ -1,1 +1,1 @@\n-a\n+b\n```\n"
	got := CleanDiffText(raw)
	want := "diff --git a/f.go b/f.go\n@@ -1,1 +1,1 @@\n-a\n+b"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestEnsureTrailingNewline(t *testing.T) {
	if got := EnsureTrailingNewline("abc"); got != "abc\n" {
		t.Fatalf("expected a newline to be appended, got %q", got)
	}
	if got := EnsureTrailingNewline("abc\n"); got != "abc\n" {
		t.Fatalf("expected an already-terminated string to pass through unchanged, got %q", got)
	}
	if got := EnsureTrailingNewline(""); got != "" {
		t.Fatalf("expected an empty string to stay empty, got %q", got)
	}
}
