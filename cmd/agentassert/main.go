// Command agentassert evaluates natural-language assertions about live
// web pages. Each case names a URL, test instructions, and an expected
// result; a reasoning service drives browser automation tools to gather
// evidence and returns a pass or fail verdict.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"

	"agentassert/internal/assertion"
	"agentassert/internal/bridge"
	"agentassert/internal/config"
	"agentassert/internal/reasoning"
	"agentassert/internal/runner"
	"agentassert/internal/telemetry"
)

func main() {
	os.Exit(run())
}

func run() int {
	var (
		configPath   = flag.String("config", "", "Path to YAML config file (optional)")
		casesPath    = flag.String("cases", "", "CSV file of test cases (url,instructions,expected_result)")
		targetURL    = flag.String("url", "", "Target URL for a single test case")
		instructions = flag.String("instructions", "", "Test instructions for a single test case")
		expect       = flag.String("expect", "", "Expected result for a single test case")
		concurrency  = flag.Int("concurrency", 0, "Override runner concurrency")
	)
	flag.Parse()

	cfg := config.DefaultConfig()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "load config: %v\n", err)
			return 2
		}
		cfg = loaded
	}
	if *concurrency > 0 {
		cfg.Runner.Concurrency = *concurrency
	}

	if err := cfg.LoadEnvCredentials(); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		return 2
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "invalid config: %v\n", err)
		return 2
	}

	// Keep stdout clean for the report; diagnostics go to the log file
	// when one is configured.
	if cfg.Runner.LogFile != "" {
		f, err := os.OpenFile(cfg.Runner.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			fmt.Fprintf(os.Stderr, "open log file: %v\n", err)
			return 2
		}
		defer f.Close()
		log.SetOutput(f)
	}

	specs, err := loadSpecs(*casesPath, *targetURL, *instructions, *expect)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		flag.Usage()
		return 2
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	runID := uuid.NewString()
	var recorder *telemetry.Recorder
	if cfg.Telemetry.Enabled {
		tp, err := telemetry.NewTracerProvider("agentassert")
		if err != nil {
			log.Printf("telemetry disabled: %v", err)
		} else {
			defer func() {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				_ = tp.Shutdown(shutdownCtx)
			}()
		}

		recorder = telemetry.NewRecorder(cfg.Telemetry.TraceDir)
		if err := recorder.Start(runID); err != nil {
			log.Printf("flight recorder disabled: %v", err)
			recorder = nil
		} else {
			defer recorder.Close()
		}
	}
	log.Printf("run %s: %d case(s), concurrency %d", runID, len(specs), cfg.Runner.Concurrency)

	client := reasoning.NewClient(cfg.Reasoning)
	invoker := reasoning.NewInvoker(client, cfg.Reasoning, recorder)

	acquire := func(ctx context.Context) (bridge.Handle, error) {
		return bridge.Acquire(ctx, cfg.Bridge)
	}

	r := runner.New(acquire, invoker, cfg.Runner.Concurrency, os.Stdout).WithRecorder(recorder)
	results := r.Run(ctx, specs)
	return r.Report(results)
}

// loadSpecs builds the case list from either the CSV file or the
// single-case flags; exactly one source must be given.
func loadSpecs(casesPath, targetURL, instructions, expect string) ([]assertion.TestSpecification, error) {
	if casesPath != "" {
		if targetURL != "" || instructions != "" || expect != "" {
			return nil, fmt.Errorf("use either -cases or the single-case flags, not both")
		}
		f, err := os.Open(casesPath)
		if err != nil {
			return nil, fmt.Errorf("open cases file: %w", err)
		}
		defer f.Close()
		return runner.ParseCases(f)
	}

	if targetURL == "" || instructions == "" || expect == "" {
		return nil, fmt.Errorf("provide -cases, or all of -url, -instructions, and -expect")
	}
	return []assertion.TestSpecification{{
		TargetURL:      targetURL,
		Instructions:   instructions,
		ExpectedResult: expect,
	}}, nil
}
