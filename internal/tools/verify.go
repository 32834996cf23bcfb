package tools

import (
	"context"

	"github.com/aprbench/aprloop/internal/adapter"
	"github.com/aprbench/aprloop/internal/toolruntime"
)

// NewVerifyRegistry builds the Verify phase's tool registry: verify_red
// and verify_green, both bound to the benchmark adapter's RunOneTest.
func NewVerifyRegistry(bench adapter.BenchmarkAdapter, workdir, testName, redLog, greenLog string) *toolruntime.Registry {
	reg := toolruntime.NewRegistry(toolruntime.PhaseVerify)

	reg.Register(toolruntime.ToolDef{
		Name:        "verify_red",
		Description: "Run the trigger test against the unpatched workdir; expected to fail.",
		Func: func(ctx context.Context, args map[string]any) (map[string]any, error) {
			res, err := bench.RunOneTest(ctx, workdir, testName, redLog)
			if err != nil {
				return nil, err
			}
			return testResultMap(res), nil
		},
	})

	reg.Register(toolruntime.ToolDef{
		Name:        "verify_green",
		Description: "Run the trigger test against the patched workdir; expected to pass.",
		Func: func(ctx context.Context, args map[string]any) (map[string]any, error) {
			res, err := bench.RunOneTest(ctx, workdir, testName, greenLog)
			if err != nil {
				return nil, err
			}
			return testResultMap(res), nil
		},
	})

	return reg
}

func testResultMap(res adapter.TestResult) map[string]any {
	return map[string]any{
		"ran": res.Ran, "rc": res.RC, "test_name": res.TestName, "logfile": res.Logfile,
		"stdout": res.Stdout, "stderr": res.Stderr, "timeout": res.Timeout,
		"dependency_error": res.DependencyError, "error": res.Error,
	}
}
