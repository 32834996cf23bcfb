// Package rpcadapter implements a BenchmarkAdapter over gRPC without a
// generated protobuf service client: each capability is a single unary
// RPC exchanging a google.golang.org/protobuf/types/known/structpb.Struct
// envelope in both directions. This avoids hand-writing a fake
// `*.pb.go` service stub (none is retrievable for this domain) while
// still exercising the real grpc and protobuf wire stack the rest of the
// pack depends on.
package rpcadapter

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/aprbench/aprloop/internal/adapter"
	"github.com/aprbench/aprloop/internal/infrastructure/circuitbreaker"
	"github.com/aprbench/aprloop/internal/model"
)

// Method names on the out-of-process benchmark worker service. The
// service itself (Defects4J or SWE-bench Verified) is out of scope (spec
// §1) — this client only needs to agree with it on these five RPC names
// and the Struct-shaped envelope.
const (
	methodCheckout     = "/benchmarkworker.Worker/Checkout"
	methodHarness       = "/benchmarkworker.Worker/Harness"
	methodCheckCompile = "/benchmarkworker.Worker/CheckCompile"
	methodRunOneTest   = "/benchmarkworker.Worker/RunOneTest"
	methodValidate     = "/benchmarkworker.Worker/Validate"
)

// Client is a BenchmarkAdapter implementation that delegates every
// capability to an out-of-process worker over gRPC, with calls wrapped
// in a circuit breaker since adapter calls "may run for many minutes"
// (spec §5) and repeated container-level failures should stop being
// retried rather than hammering a dead worker.
type Client struct {
	conn    *grpc.ClientConn
	breaker *circuitbreaker.CircuitBreaker
	logger  *zap.Logger
}

var _ adapter.BenchmarkAdapter = (*Client)(nil)

// New dials the benchmark worker at addr. Dialing is lazy/non-blocking —
// grpc.NewClient never blocks on connect — matching the teacher's client
// construction style.
func New(addr string, logger *zap.Logger) (*Client, error) {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("failed to create gRPC client for benchmark worker at %s: %w", addr, err)
	}
	return &Client{
		conn:    conn,
		breaker: circuitbreaker.New(5, 30*time.Second),
		logger:  logger,
	}, nil
}

func (c *Client) Close() error { return c.conn.Close() }

func (c *Client) invoke(ctx context.Context, method string, in map[string]any) (map[string]any, error) {
	if !c.breaker.Allow() {
		return nil, fmt.Errorf("benchmark worker circuit open, refusing %s", method)
	}
	req, err := structpb.NewStruct(in)
	if err != nil {
		return nil, fmt.Errorf("building request envelope for %s: %w", method, err)
	}
	resp := &structpb.Struct{}
	if err := c.conn.Invoke(ctx, method, req, resp); err != nil {
		c.breaker.RecordFailure(circuitbreaker.ClassifyError(err))
		return nil, fmt.Errorf("%s: %w", method, err)
	}
	c.breaker.RecordSuccess()
	return resp.AsMap(), nil
}

func (c *Client) Checkout(ctx context.Context, pid string, bid int, workdir string) (adapter.CheckoutResult, error) {
	out, err := c.invoke(ctx, methodCheckout, map[string]any{"pid": pid, "bid": bid, "workdir": workdir})
	if err != nil {
		return adapter.CheckoutResult{}, err
	}
	return adapter.CheckoutResult{Ok: asBool(out["ok"]), Error: asString(out["error"])}, nil
}

func (c *Client) Harness(ctx context.Context, pid string, bid int, workdir, metaDir, fullLog, trigLog, indexDir string) (model.HarnessInfo, error) {
	out, err := c.invoke(ctx, methodHarness, map[string]any{
		"pid": pid, "bid": bid, "workdir": workdir, "meta_dir": metaDir,
		"full_log": fullLog, "trig_log": trigLog, "index_dir": indexDir,
	})
	if err != nil {
		return model.HarnessInfo{}, err
	}
	return model.HarnessInfo{
		Workdir:   asString(out["workdir"]),
		Ok:        asBool(out["ok"]),
		IndexPath: asString(out["index_path"]),
		Error:     asString(out["error"]),
	}, nil
}

func (c *Client) CheckCompile(ctx context.Context, workdir string) (adapter.CompileResult, error) {
	out, err := c.invoke(ctx, methodCheckCompile, map[string]any{"workdir": workdir})
	if err != nil {
		return adapter.CompileResult{}, err
	}
	return adapter.CompileResult{
		Ok: asBool(out["ok"]), RC: asInt(out["rc"]),
		Stdout: asString(out["stdout"]), Stderr: asString(out["stderr"]),
		ErrorSummary: asString(out["error_summary"]),
		Skipped:      asBool(out["skipped"]), Reason: asString(out["reason"]),
	}, nil
}

func (c *Client) RunOneTest(ctx context.Context, workdir, testName, logfile string) (adapter.TestResult, error) {
	out, err := c.invoke(ctx, methodRunOneTest, map[string]any{"workdir": workdir, "test_name": testName, "logfile": logfile})
	if err != nil {
		return adapter.TestResult{}, err
	}
	return adapter.TestResult{
		Ran: asBool(out["ran"]), RC: asInt(out["rc"]), TestName: asString(out["test_name"]),
		Logfile: asString(out["logfile"]), Stdout: asString(out["stdout"]), Stderr: asString(out["stderr"]),
		Timeout: asBool(out["timeout"]), DependencyError: asBool(out["dependency_error"]),
		Error: asString(out["error"]),
	}, nil
}

func (c *Client) Validate(ctx context.Context, pid string, bid int, workdir, metaDir, fullLog, trigLog string) (adapter.ValidationResult, error) {
	out, err := c.invoke(ctx, methodValidate, map[string]any{
		"pid": pid, "bid": bid, "workdir": workdir, "meta_dir": metaDir,
		"full_log": fullLog, "trig_log": trigLog,
	})
	if err != nil {
		return adapter.ValidationResult{}, err
	}
	return adapter.ValidationResult{
		Passed: asBool(out["passed"]), RC: asInt(out["rc"]),
		Stdout: asString(out["stdout"]), Stderr: asString(out["stderr"]),
		TestFull: asString(out["test_full"]), TestTrigger: asString(out["test_trigger"]),
	}, nil
}

func asString(v any) string {
	s, _ := v.(string)
	return s
}

func asBool(v any) bool {
	b, _ := v.(bool)
	return b
}

func asInt(v any) int {
	switch n := v.(type) {
	case float64:
		return int(n)
	case int:
		return n
	default:
		return 0
	}
}
