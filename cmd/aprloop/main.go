package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/aprbench/aprloop/internal/adapter/rpcadapter"
	"github.com/aprbench/aprloop/internal/agentloop"
	"github.com/aprbench/aprloop/internal/config"
	"github.com/aprbench/aprloop/internal/llmclient"
	"github.com/aprbench/aprloop/internal/localpatch"
	"github.com/aprbench/aprloop/internal/logger"
	"github.com/aprbench/aprloop/internal/model"
	"github.com/aprbench/aprloop/internal/report"
	"github.com/aprbench/aprloop/internal/retrieval"
	"github.com/aprbench/aprloop/internal/sandbox"
	"github.com/aprbench/aprloop/internal/telemetry/server"
	"github.com/aprbench/aprloop/internal/telemetry/tui"
	"github.com/aprbench/aprloop/internal/telemetry/workdirwatch"
	"github.com/aprbench/aprloop/internal/tools"
)

const cliName = "aprloop"

func main() {
	var (
		datasetPath string
		variantsDir string
		pid         string
		bid         int
		variant     string
		maxIters    int
		modelName   string
		workerAddr  string
		telemetryAddr string
		showTUI       bool
		reportOut     string
	)

	rootCmd := &cobra.Command{
		Use:   cliName,
		Short: "aprloop — Ablation Agent Loop runner for automated program repair",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOnce(runOpts{
				datasetPath: datasetPath,
				variantsDir: variantsDir,
				pid:         pid,
				bid:         bid,
				variant:     variant,
				maxIters:    maxIters,
				modelName:     modelName,
				workerAddr:    workerAddr,
				telemetryAddr: telemetryAddr,
				showTUI:       showTUI,
				reportOut:     reportOut,
			})
		},
	}

	rootCmd.Flags().StringVar(&datasetPath, "dataset", "", "path to the dataset config file (required)")
	rootCmd.Flags().StringVar(&variantsDir, "variants-dir", "variants", "directory holding per-variant config.json and prompts/")
	rootCmd.Flags().StringVar(&pid, "pid", "", "benchmark project id, e.g. Lang (required)")
	rootCmd.Flags().IntVar(&bid, "bid", 0, "benchmark bug id (required)")
	rootCmd.Flags().StringVar(&variant, "variant", "G0", "named ablation preset: G0, G1, G2, G3, G5, TRACE")
	rootCmd.Flags().IntVar(&maxIters, "max-iters", 10, "maximum localize/patch iterations")
	rootCmd.Flags().StringVar(&modelName, "model", "claude-sonnet-4-5", "model identifier passed to the LLM client")
	rootCmd.Flags().StringVar(&workerAddr, "worker-addr", "localhost:7070", "gRPC address of the benchmark worker")
	rootCmd.Flags().StringVar(&telemetryAddr, "telemetry-addr", "", "if set, serve live status/telemetry on this address (e.g. :8090)")
	rootCmd.Flags().BoolVar(&showTUI, "tui", false, "show a live progress viewer while the run is in flight")
	rootCmd.Flags().StringVar(&reportOut, "report-out", "", "if set, write a Markdown+HTML post-mortem report to this path (without extension)")

	_ = rootCmd.MarkFlagRequired("dataset")
	_ = rootCmd.MarkFlagRequired("pid")
	_ = rootCmd.MarkFlagRequired("bid")

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

type runOpts struct {
	datasetPath   string
	variantsDir   string
	pid           string
	bid           int
	variant       string
	maxIters      int
	modelName     string
	workerAddr    string
	telemetryAddr string
	showTUI       bool
	reportOut     string
}

func runOnce(opts runOpts) error {
	log, err := logger.New(logger.Config{Level: "info", Format: "console", OutputPath: "stdout"})
	if err != nil {
		return fmt.Errorf("logger init: %w", err)
	}
	defer log.Sync()

	dataset, err := config.LoadDataset(opts.datasetPath)
	if err != nil {
		return fmt.Errorf("dataset config: %w", err)
	}

	ablation, prompts, err := config.LoadVariant(opts.variantsDir, opts.variant)
	if err != nil {
		return fmt.Errorf("variant config: %w", err)
	}
	log = logger.ForRun(log, opts.pid, opts.bid, opts.variant)

	workdir := dataset.Paths.Resolve(dataset.Paths.WorkdirTemplate, opts.pid, opts.bid)
	indexDir := dataset.Paths.Resolve(dataset.Paths.IndexDirTemplate, opts.pid, opts.bid)
	metaDir := dataset.Paths.Resolve(dataset.Paths.MetaDirTemplate, opts.pid, opts.bid)
	logDir := dataset.Paths.Resolve(dataset.Paths.LogDirTemplate, opts.pid, opts.bid)
	fullLog := logDir + "/test.full.log"
	trigLog := logDir + "/test.trigger.log"
	redLog := metaDir + "/red.log"
	greenLog := metaDir + "/green.log"

	if err := os.MkdirAll(metaDir, 0755); err != nil {
		return fmt.Errorf("create meta dir: %w", err)
	}
	if err := os.MkdirAll(logDir, 0755); err != nil {
		return fmt.Errorf("create log dir: %w", err)
	}

	sb, err := sandbox.NewProcessSandbox(sandbox.DefaultConfig(), log)
	if err != nil {
		return fmt.Errorf("sandbox init: %w", err)
	}
	applier := localpatch.New(sb, log)

	bench, err := rpcadapter.New(opts.workerAddr, log)
	if err != nil {
		return fmt.Errorf("benchmark worker client: %w", err)
	}

	var idx *retrieval.Index
	if ablation.IndexRetrieval {
		idx, err = retrieval.Open(indexDir + "/symbols.db")
		if err != nil {
			log.Sugar().Warnf("retrieval index unavailable, continuing without it: %v", err)
			idx = nil
		} else {
			defer idx.Close()
		}
	}

	apiKey := os.Getenv("ANTHROPIC_API_KEY")
	llm := llmclient.NewAnthropicClient(os.Getenv("ANTHROPIC_BASE_URL"), apiKey, log)

	localizeTools := tools.NewLocalizeRegistry(workdir, idx)
	patchTools := tools.NewPatchRegistry(workdir, applier, bench)
	testName := fmt.Sprintf("%s-%db-trigger", opts.pid, opts.bid)
	verifyTools := tools.NewVerifyRegistry(bench, workdir, testName, redLog, greenLog)

	orch := agentloop.NewOrchestrator(llm, bench, applier, localizeTools, patchTools, verifyTools, log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	watcher, err := workdirwatch.New(workdir, log)
	if err != nil {
		log.Sugar().Warnf("workdir watcher unavailable: %v", err)
	} else {
		go watcher.Run(ctx)
		go func() {
			select {
			case <-watcher.Removed():
				log.Warn("workdir removed out from under the run; relying on the loop's own re-checkout path")
			case <-ctx.Done():
			}
		}()
	}

	hub := server.NewHub(log)
	var metricsSnapshot *model.Metrics
	cfg := agentloop.RunConfig{
		Ablation:      ablation,
		PID:           opts.pid,
		BID:           opts.bid,
		Workdir:       workdir,
		MetaDir:       metaDir,
		FullLog:       fullLog,
		TrigLog:       trigLog,
		IndexDir:      indexDir,
		MaxIters:      opts.maxIters,
		Model:         opts.modelName,
		StateListener: hub.Listener(func() *model.Metrics { return metricsSnapshot }),
	}

	if opts.telemetryAddr != "" {
		srv := server.NewServer(opts.telemetryAddr, hub, log)
		srv.Start(ctx)
		log.Sugar().Infof("telemetry server listening on %s (run id %s)", opts.telemetryAddr, hub.RunID())
	}

	var tuiErrCh chan error
	if opts.showTUI {
		id, ch := hub.Subscribe()
		defer hub.Unsubscribe(id)
		tuiErrCh = make(chan error, 1)
		go func() { tuiErrCh <- tui.Run(ch) }()
	}

	result := orch.Run(ctx, cfg, prompts)
	metricsSnapshot = result.Metrics

	if tuiErrCh != nil {
		if err := <-tuiErrCh; err != nil {
			log.Sugar().Warnf("tui exited with error: %v", err)
		}
	}

	out, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal result: %w", err)
	}
	fmt.Println(string(out))

	if opts.reportOut != "" {
		md := report.Markdown(opts.pid, opts.bid, opts.variant, result)
		if err := os.WriteFile(opts.reportOut+".md", []byte(md), 0644); err != nil {
			log.Sugar().Warnf("failed writing Markdown report: %v", err)
		}
		if html, err := report.HTML(md); err != nil {
			log.Sugar().Warnf("failed rendering HTML report: %v", err)
		} else if err := os.WriteFile(opts.reportOut+".html", []byte(html), 0644); err != nil {
			log.Sugar().Warnf("failed writing HTML report: %v", err)
		}
	}

	if !result.Ok {
		os.Exit(1)
	}
	return nil
}
