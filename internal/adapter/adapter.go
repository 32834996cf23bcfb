// Package adapter defines the BenchmarkAdapter contract (spec §4.6): the
// capability surface the loop relies on but never implements. Concrete
// adapters for Defects4J and SWE-bench Verified live out of process and
// are reached over the rpcadapter client; this package only defines the
// interface and the plain-data shapes each call exchanges.
package adapter

import (
	"context"

	"github.com/aprbench/aprloop/internal/model"
)

// CheckoutResult reports whether a fresh buggy checkout was prepared.
type CheckoutResult struct {
	Ok    bool
	Error string
}

// CompileResult is the response from a compile check.
type CompileResult struct {
	Ok           bool
	RC           int
	Stdout       string
	Stderr       string
	ErrorSummary string
	Skipped      bool
	Reason       string
}

// TestResult is the response from running a single test.
type TestResult struct {
	Ran             bool
	RC              int
	TestName        string
	Logfile         string
	Stdout          string
	Stderr          string
	Timeout         bool
	DependencyError bool
	Error           string
}

// ValidationResult is the response from the full benchmark validation.
type ValidationResult struct {
	Passed      bool
	RC          int
	Stdout      string
	Stderr      string
	TestFull    string
	TestTrigger string
}

// InfrastructureFailed reports whether a TestResult represents an
// infrastructure failure rather than a genuine test outcome: ran=false
// or rc in {-1, 255} (spec §4.6 / §7).
func (t TestResult) InfrastructureFailed() bool {
	if !t.Ran {
		return true
	}
	return t.RC == -1 || t.RC == 255
}

// BenchmarkAdapter is the external capability the loop consumes. Two
// concrete implementations exist out of process (Java/Defects4J,
// Python/SWE-bench Verified); the loop is agnostic and only ever talks to
// this interface.
type BenchmarkAdapter interface {
	Checkout(ctx context.Context, pid string, bid int, workdir string) (CheckoutResult, error)
	Harness(ctx context.Context, pid string, bid int, workdir, metaDir, fullLog, trigLog, indexDir string) (model.HarnessInfo, error)
	CheckCompile(ctx context.Context, workdir string) (CompileResult, error)
	RunOneTest(ctx context.Context, workdir, testName, logfile string) (TestResult, error)
	Validate(ctx context.Context, pid string, bid int, workdir, metaDir, fullLog, trigLog string) (ValidationResult, error)
}
