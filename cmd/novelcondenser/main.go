// Package main implements the novelcondenser CLI entrypoint: flag
// parsing, config discovery, wiring of the credential pools, chapter
// pipeline, and batch driver, and the final colorized summary.
//
// Usage:
//
//	novelcondenser <input> [flags]
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"
	"github.com/schollz/progressbar/v3"
	flag "github.com/spf13/pflag"

	"github.com/bookeating/novelcondenser-go/batch"
	"github.com/bookeating/novelcondenser-go/cache"
	"github.com/bookeating/novelcondenser-go/config"
	"github.com/bookeating/novelcondenser-go/credential"
	"github.com/bookeating/novelcondenser-go/internal/metrics"
	"github.com/bookeating/novelcondenser-go/internal/tracing"
	"github.com/bookeating/novelcondenser-go/pipeline"
	"github.com/bookeating/novelcondenser-go/prompt"
	"github.com/bookeating/novelcondenser-go/provider"
	"github.com/bookeating/novelcondenser-go/provider/gemini"
	"github.com/bookeating/novelcondenser-go/provider/openai"
	"github.com/bookeating/novelcondenser-go/stats"
)

const configFilename = "novelcondenser.json"

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	fs := flag.NewFlagSet("novelcondenser", flag.ContinueOnError)
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `novelcondenser - batch-condense novel chapter text files via an LLM

Usage:
  novelcondenser <input> [flags]

`)
		fs.PrintDefaults()
	}

	var (
		outputDir   = fs.StringP("output", "o", "condensed", "Output directory for rewritten chapters")
		pattern     = fs.StringP("pattern", "p", "", "Glob pattern or [num]-templated filename pattern")
		rangeFlag   = fs.StringP("range", "r", "", "Chapter number range, START-END")
		configPath  = fs.StringP("config", "c", "", "Path to the JSON config file")
		geminiKey   = fs.StringP("key", "k", "", "Override the Gemini credential pool with a single key")
		openaiKey   = fs.String("openai-key", "", "Override the OpenAI credential pool with a single key")
		apiFamily   = fs.String("api", "gemini", "Credential family to use: gemini, openai, or mixed")
		sequential  = fs.BoolP("sequential", "s", false, "Force sequential processing (one worker)")
		maxWorkers  = fs.IntP("max-workers", "m", 0, "Worker count; defaults to the pool's computed concurrency ceiling")
		testMode    = fs.BoolP("test", "t", false, "Process only the first 5 matched chapters")
		force       = fs.BoolP("force", "f", false, "Force regeneration, ignoring cache and existing output")
		debug       = fs.BoolP("debug", "d", false, "Verbose debug logging")
		createCfg   = fs.Bool("create-config", false, "Write a default config template and exit")
		checkAPI    = fs.Bool("check-api", false, "Smoke-test every configured credential and exit")
		metricsAddr = fs.String("metrics-addr", "", "If set, serve Prometheus metrics on this address")
		noColor     = fs.Bool("no-color", false, "Disable colorized output")
	)
	if err := fs.Parse(args); err != nil {
		return 2
	}

	if os.Getenv("NO_COLOR") != "" {
		*noColor = true
	}
	color.NoColor = *noColor || !isatty.IsTerminal(os.Stdout.Fd())

	if *createCfg {
		path := *configPath
		if path == "" {
			path = configFilename
		}
		if err := config.WriteTemplate(path); err != nil {
			fmt.Fprintln(os.Stderr, err)
			return 1
		}
		fmt.Printf("wrote config template to %s\n", path)
		return 0
	}

	cfgFile, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	cfgFile = cfgFile.ApplyOverrides(config.Overrides{GeminiKey: *geminiKey, OpenAIKey: *openaiKey})

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	shutdownTracing, err := tracing.Setup(ctx, "novelcondenser")
	if err != nil {
		fmt.Fprintln(os.Stderr, "tracing setup:", err)
		return 1
	}
	defer shutdownTracing(context.Background())

	pools := buildPools(cfgFile)
	adapters := map[credential.Family]provider.Adapter{
		credential.Gemini: gemini.New(&http.Client{}),
		credential.OpenAI: openai.New(&http.Client{}),
	}

	if *checkAPI {
		return runCheckAPI(ctx, pools, adapters)
	}

	if err := os.MkdirAll(*outputDir, 0o755); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	cacheStore, err := cache.New(*outputDir)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}

	paths, err := resolvePaths(fs.Args(), *pattern, *rangeFlag)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	if *testMode && len(paths) > 5 {
		paths = paths[:5]
	}
	if len(paths) == 0 {
		fmt.Fprintln(os.Stderr, "no chapter files matched")
		return 1
	}

	promptSet := prompt.NewSet(cfgFile.PromptTemplates, cfgFile.CustomerPrompt)

	p := &pipeline.Pipeline{
		Cache:    cacheStore,
		Prompts:  promptSet,
		Pools:    pools,
		Adapters: adapters,
		Ledger:   stats.New(len(paths)),
		Ratios: pipeline.Ratios{
			Min:    cfgFile.MinCondensationRatio,
			Max:    cfgFile.MaxCondensationRatio,
			Target: cfgFile.TargetCondensationRatio,
		},
		Params: cfgFile.GenerationParams(),
		Force:  *force,
	}

	family := batch.APIFamily(*apiFamily)
	workers := *maxWorkers
	if *sequential {
		workers = 1
	}

	var reg *metrics.Registry
	var metricsDone chan struct{}
	if *metricsAddr != "" {
		reg = metrics.New()
		metricsDone = make(chan struct{})
		go func() {
			defer close(metricsDone)
			if err := reg.Serve(ctx, *metricsAddr); err != nil && *debug {
				fmt.Fprintln(os.Stderr, "metrics server:", err)
			}
		}()
	}

	driver := &batch.Driver{
		Pipeline:    p,
		Pools:       pools,
		Family:      family,
		WorkerCount: workers,
		Force:       *force,
		OnProgress:  newProgressReporter(*debug, len(paths)),
	}

	successCount, failedMap := driver.Run(ctx, paths, *outputDir)
	p.Ledger.Finish()

	if reg != nil {
		ledgerReport := p.Ledger.Report()
		reg.ChaptersProcessed.Add(float64(ledgerReport.SuccessCount))
		reg.ChaptersFailed.Add(float64(ledgerReport.FailedCount))
		reg.RetriesTotal.Add(float64(ledgerReport.RetryCount))
		for fam, pool := range pools {
			reg.ObservePool(fam, pool)
		}
		cancel()
		<-metricsDone
	}

	printReport(p.Ledger.Report(), successCount, failedMap)

	if len(failedMap) > 0 {
		return 1
	}
	return 0
}

func loadConfig(explicitPath string) (config.File, error) {
	if explicitPath != "" {
		return config.Load(explicitPath)
	}
	if path, ok := config.Discover(configFilename); ok {
		return config.Load(path)
	}
	return config.Defaults(), nil
}

func buildPools(f config.File) map[credential.Family]*credential.Pool {
	return map[credential.Family]*credential.Pool{
		credential.Gemini: credential.New(credential.Gemini, f.GeminiConfigs(), credential.WithGlobalRPMLimit(f.MaxRPM)),
		credential.OpenAI: credential.New(credential.OpenAI, f.OpenAIConfigs(), credential.WithGlobalRPMLimit(f.MaxRPM)),
	}
}

func resolvePaths(positional []string, pattern, rangeFlag string) ([]string, error) {
	if pattern == "" {
		return positional, nil
	}

	var numRange *[2]int
	if rangeFlag != "" {
		parts := strings.SplitN(rangeFlag, "-", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("invalid --range %q, want START-END", rangeFlag)
		}
		start, err1 := strconv.Atoi(parts[0])
		end, err2 := strconv.Atoi(parts[1])
		if err1 != nil || err2 != nil {
			return nil, fmt.Errorf("invalid --range %q, want numeric START-END", rangeFlag)
		}
		numRange = &[2]int{start, end}
	}

	return pipeline.FindMatchingFiles(pattern, numRange)
}

// runCheckAPI implements the --check-api smoke test (SUPPLEMENTED
// FEATURES §3): one minimal condense call per configured credential,
// bypassing the batch pipeline and ledger entirely.
func runCheckAPI(ctx context.Context, pools map[credential.Family]*credential.Pool, adapters map[credential.Family]provider.Adapter) int {
	ok := true
	for family, pool := range pools {
		adapter := adapters[family]
		for _, snap := range pool.Snapshot() {
			rec := provider.Credential{Key: snap.Key}
			req := provider.Request{
				SystemPrompt: "Reply with the single word OK.",
				UserText:     "ping",
				Credential:   rec,
				Params:       provider.DefaultGenerationParams(),
			}
			_, err := adapter.Condense(ctx, req)
			if err != nil {
				ok = false
				fmt.Printf("%-8s %s: FAIL (%s)\n", family, redact(snap.Key), err)
			} else {
				fmt.Printf("%-8s %s: OK\n", family, redact(snap.Key))
			}
		}
	}
	if !ok {
		return 1
	}
	return 0
}

func redact(key string) string {
	if len(key) <= 8 {
		return "***"
	}
	return key[:4] + "..." + key[len(key)-4:]
}

// newProgressReporter renders the Batch Driver's (completed, total,
// status) callback as a terminal bar when stderr is a TTY and --debug
// is off; debug mode prints one line per chapter instead, and a
// non-interactive stderr gets no progress output at all.
func newProgressReporter(debug bool, total int) batch.ProgressFunc {
	if debug {
		return func(pr batch.Progress) {
			fmt.Fprintf(os.Stderr, "[%d/%d] %s\n", pr.Completed, pr.Total, pr.Status)
		}
	}
	if !isatty.IsTerminal(os.Stderr.Fd()) {
		return nil
	}

	bar := progressbar.NewOptions(total,
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionSetDescription("condensing chapters"),
		progressbar.OptionShowCount(),
		progressbar.OptionClearOnFinish(),
	)
	return func(pr batch.Progress) {
		_ = bar.Set(pr.Completed)
	}
}

func printReport(report stats.Report, successCount int, failedMap map[string]stats.Outcome) {
	ok := color.New(color.FgGreen, color.Bold)
	bad := color.New(color.FgRed, color.Bold)

	fmt.Println()
	ok.Printf("success: %d\n", successCount)
	if len(failedMap) > 0 {
		bad.Printf("failed:  %d\n", len(failedMap))
		for path, outcome := range failedMap {
			fmt.Printf("  %s: %s\n", path, outcome)
		}
	}
	fmt.Printf("runtime: %s\n", report.TotalRuntime.Round(time.Second))
	fmt.Printf("success rate: %.1f%%\n", report.SuccessRate)
	if report.TotalCharsOriginal > 0 {
		fmt.Printf("condensation: %.1f%% overall (min %.1f%%, mean %.1f%%, max %.1f%%)\n",
			report.OverallRatio, report.MinRatio, report.MeanRatio, report.MaxRatio)
	}
	if report.ChaptersPerHour > 0 {
		fmt.Printf("throughput: %.1f chapters/hour\n", report.ChaptersPerHour)
	}
}
