/*
runner.go - Batch evaluation of one household table against several systems

PURPOSE:
  Drives simulations for a list of requests. Each system gets its own
  Simulation and runs in its own goroutine; the input table and the systems
  are shared read-only.

DESIGN:
  - A failed request is recorded in its Result, the run goes on
  - Cancellation is checked between requests, never inside a formula
  - Compare returns one report per system, in the order given

USAGE:
  runner := batch.NewRunner(logger)
  reports, err := runner.Compare(ctx, reference, []*engine.System{reform}, mem, mem, requests)
  changes := batch.Diff(reports[0], reports[1])

SEE ALSO:
  - metrics.go:          Prometheus counters
  - store/sqlite:        SaveReport / LoadBatch
*/
package batch

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/warp/fisc-engine/engine"
	"github.com/warp/fisc-engine/periods"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Request asks for one variable of one entity over one period.
type Request struct {
	Entity   engine.EntityRef
	Variable string
	Period   periods.Period
}

// Result is the outcome of a request. Chain is set when Err is.
type Result struct {
	Request
	Value decimal.Decimal
	Err   error
	Chain []engine.Frame
}

// Failed reports whether the request could not be evaluated.
func (r Result) Failed() bool { return r.Err != nil }

// Report gathers the results of one run.
type Report struct {
	RunID    string
	System   string
	Started  time.Time
	Duration time.Duration
	Results  []Result
	Failed   int
	Stats    engine.Stats
}

// Runner evaluates batches of requests.
type Runner struct {
	Logger *zap.Logger

	// Parallelism caps the systems evaluated at once by Compare. Zero or
	// less means no limit.
	Parallelism int

	// Trace logs every formula call at debug level.
	Trace bool
}

// NewRunner creates a runner. A nil logger discards logs.
func NewRunner(logger *zap.Logger) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{Logger: logger}
}

func (r *Runner) logger() *zap.Logger {
	if r.Logger == nil {
		return zap.NewNop()
	}
	return r.Logger
}

// Run evaluates every request against sys in a single simulation, so
// values shared between requests are computed once.
func (r *Runner) Run(ctx context.Context, sys *engine.System, inputs engine.InputTable, members engine.Memberships, requests []Request) (*Report, error) {
	log := r.logger().With(zap.String("system", sys.Name()))
	report := &Report{
		RunID:   uuid.NewString(),
		System:  sys.Name(),
		Started: time.Now(),
		Results: make([]Result, 0, len(requests)),
	}
	sim := engine.NewSimulation(sys, inputs, members,
		engine.WithID(report.RunID),
		engine.WithLogger(log),
		engine.WithTrace(r.Trace),
	)

	for _, req := range requests {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		v, err := sim.Evaluate(req.Entity, req.Variable, req.Period)
		res := Result{Request: req, Value: v}
		if err != nil {
			res.Value = decimal.Zero
			res.Err = err
			res.Chain = engine.ChainOf(err)
			report.Failed++
			evaluations.WithLabelValues(sys.Name(), statusError).Inc()
			log.Warn("evaluation failed",
				zap.Stringer("entity", req.Entity),
				zap.String("variable", req.Variable),
				zap.Stringer("period", req.Period),
				zap.Error(err))
		} else {
			evaluations.WithLabelValues(sys.Name(), statusOK).Inc()
		}
		report.Results = append(report.Results, res)
	}

	report.Duration = time.Since(report.Started)
	report.Stats = sim.Stats()
	runDuration.WithLabelValues(sys.Name()).Observe(report.Duration.Seconds())

	log.Info("batch run complete",
		zap.String("run_id", report.RunID),
		zap.Int("requests", len(requests)),
		zap.Int("failed", report.Failed),
		zap.Int("formula_calls", report.Stats.FormulaCalls),
		zap.Int("cache_hits", report.Stats.CacheHits),
		zap.Duration("duration", report.Duration))
	return report, nil
}

// Compare runs the same requests against the reference and each reform
// concurrently. Reports come back in order: reference first, then reforms.
func (r *Runner) Compare(ctx context.Context, reference *engine.System, reforms []*engine.System, inputs engine.InputTable, members engine.Memberships, requests []Request) ([]*Report, error) {
	systems := append([]*engine.System{reference}, reforms...)
	reports := make([]*Report, len(systems))

	g, gctx := errgroup.WithContext(ctx)
	if r.Parallelism > 0 {
		g.SetLimit(r.Parallelism)
	}
	for i, sys := range systems {
		i, sys := i, sys
		g.Go(func() error {
			report, err := r.Run(gctx, sys, inputs, members, requests)
			if err != nil {
				return err
			}
			reports[i] = report
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return reports, nil
}

// Change is a request whose outcome differs between two reports.
type Change struct {
	Request
	Before, After       decimal.Decimal
	BeforeErr, AfterErr error
}

// Delta returns After - Before.
func (c Change) Delta() decimal.Decimal { return c.After.Sub(c.Before) }

// Diff lists the requests whose value or failure status differs. Both
// reports must come from the same requests, as Compare produces.
func Diff(before, after *Report) []Change {
	var changes []Change
	n := min(len(before.Results), len(after.Results))
	for i := 0; i < n; i++ {
		b, a := before.Results[i], after.Results[i]
		if b.Failed() == a.Failed() && b.Value.Equal(a.Value) {
			continue
		}
		changes = append(changes, Change{
			Request:   b.Request,
			Before:    b.Value,
			After:     a.Value,
			BeforeErr: b.Err,
			AfterErr:  a.Err,
		})
	}
	return changes
}
