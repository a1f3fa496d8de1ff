package runner

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"agentassert/internal/assertion"
	"agentassert/internal/telemetry"
)

// Result is the outcome of one case: a verdict, or an error when the
// case could not be judged at all. The two are never conflated.
type Result struct {
	Spec     assertion.TestSpecification
	Verdict  assertion.Verdict
	Err      error
	Duration time.Duration
}

// Runner evaluates a batch of cases with bounded concurrency, sharing
// one verdict cache so duplicate cases cost a single evaluation.
type Runner struct {
	cache       *assertion.Cache
	acquire     assertion.BridgeAcquirer
	invoker     assertion.Invoker
	concurrency int
	out         io.Writer
	recorder    *telemetry.Recorder
}

// New builds a runner. concurrency must be positive.
func New(acquire assertion.BridgeAcquirer, invoker assertion.Invoker, concurrency int, out io.Writer) *Runner {
	return &Runner{
		cache:       assertion.NewCache(),
		acquire:     acquire,
		invoker:     invoker,
		concurrency: concurrency,
		out:         out,
	}
}

// WithRecorder attaches a flight recorder for per-case verdict events.
func (r *Runner) WithRecorder(rec *telemetry.Recorder) *Runner {
	r.recorder = rec
	return r
}

// Run evaluates every case and returns results in input order. A case
// error is recorded in its Result, not returned; the batch always runs
// to completion unless the context is cancelled.
func (r *Runner) Run(ctx context.Context, specs []assertion.TestSpecification) []Result {
	results := make([]Result, len(specs))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(r.concurrency)

	for i, spec := range specs {
		i, spec := i, spec
		g.Go(func() error {
			start := time.Now()
			verdict, err := r.cache.GetOrEvaluate(ctx, spec, func(ctx context.Context, spec assertion.TestSpecification) (assertion.Verdict, error) {
				return assertion.EvaluateOnce(ctx, r.acquire, r.invoker, spec)
			})
			results[i] = Result{
				Spec:     spec,
				Verdict:  verdict,
				Err:      err,
				Duration: time.Since(start),
			}
			data := map[string]interface{}{
				"url":         spec.TargetURL,
				"duration_ms": time.Since(start).Milliseconds(),
			}
			if err != nil {
				data["error"] = err.Error()
			} else {
				data["passed"] = verdict.Passed
			}
			r.recorder.Log("verdict", "", data)
			return nil
		})
	}

	_ = g.Wait()
	return results
}

// Report prints one line per case plus a summary, and returns the
// process exit code: 0 only when every case was judged and passed.
// Failed verdicts and evaluation errors are reported distinctly.
func (r *Runner) Report(results []Result) int {
	var passed, failed, errored int

	for i, res := range results {
		label := fmt.Sprintf("[%d/%d] %s", i+1, len(results), res.Spec.TargetURL)
		switch {
		case res.Err != nil:
			errored++
			fmt.Fprintf(r.out, "ERROR %s (%s)\n      %v\n", label, res.Duration.Round(time.Millisecond), res.Err)
		case res.Verdict.Passed:
			passed++
			fmt.Fprintf(r.out, "PASS  %s (%s)\n", label, res.Duration.Round(time.Millisecond))
		default:
			failed++
			fmt.Fprintf(r.out, "FAIL  %s (%s)\n%s\n", label, res.Duration.Round(time.Millisecond), indent(res.Verdict.Message))
		}
	}

	fmt.Fprintf(r.out, "\n%d passed, %d failed, %d errored (%d total)\n",
		passed, failed, errored, len(results))

	if failed == 0 && errored == 0 {
		return 0
	}
	return 1
}

func indent(s string) string {
	lines := strings.Split(s, "\n")
	for i, line := range lines {
		lines[i] = "      " + line
	}
	return strings.Join(lines, "\n")
}
