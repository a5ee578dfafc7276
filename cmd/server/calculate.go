package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"github.com/warp/fisc-engine/api"
	"github.com/warp/fisc-engine/batch"
	"github.com/warp/fisc-engine/store/sqlite"
)

var (
	calculateFile   string
	calculateSystem string
	calculateJSON   bool
	calculateSave   bool
)

var calculateCmd = &cobra.Command{
	Use:   "calculate",
	Short: "Evaluate a batch file",
	Long: `Evaluates the requests of a batch file, in the format of the
POST /api/calculate body, and prints one line per request.

A failed request prints its error and dependency chain; the command then
exits with an error after printing every result.

Examples:
  fisc calculate --file=household.json
  fisc calculate --system=ir2007 --json < household.json
  fisc calculate --file=household.json --save --db=./data/fisc.db`,
	Args: cobra.NoArgs,
	RunE: runCalculate,
}

func init() {
	calculateCmd.Flags().StringVarP(&calculateFile, "file", "f", "-", "batch file, - for stdin")
	calculateCmd.Flags().StringVar(&calculateSystem, "system", "", "reform stack, overrides the file")
	calculateCmd.Flags().BoolVar(&calculateJSON, "json", false, "print the report as JSON")
	calculateCmd.Flags().BoolVar(&calculateSave, "save", false, "save the batch and the report to the database")
}

func runCalculate(cmd *cobra.Command, args []string) error {
	cfg, logger, ref, err := setup(cmd)
	if err != nil {
		return err
	}
	defer logger.Sync()

	req, err := readBatch(cmd, calculateFile)
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("system") {
		req.System = calculateSystem
	}

	sys, err := resolveSystem(ref, req.System)
	if err != nil {
		return err
	}
	mem, requests, err := req.Batch(sys)
	if err != nil {
		return err
	}

	runner := batch.NewRunner(logger)
	runner.Trace = cfg.Batch.Trace
	report, err := runner.Run(cmd.Context(), sys, mem, mem, requests)
	if err != nil {
		return err
	}

	if calculateSave {
		if cfg.Database.Path == "" {
			return fmt.Errorf("--save needs a database")
		}
		st, err := sqlite.New(cfg.Database.Path)
		if err != nil {
			return err
		}
		defer st.Close()
		if err := st.SaveBatch(cmd.Context(), mem); err != nil {
			return err
		}
		if err := st.SaveReport(cmd.Context(), report); err != nil {
			return err
		}
	}

	out := cmd.OutOrStdout()
	if calculateJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		if err := enc.Encode(api.NewReportDTO(report, sys)); err != nil {
			return err
		}
	} else {
		printReport(out, report)
	}

	if report.Failed > 0 {
		return fmt.Errorf("%d of %d requests failed", report.Failed, len(report.Results))
	}
	return nil
}

func readBatch(cmd *cobra.Command, path string) (api.CalculateRequest, error) {
	var r io.Reader = cmd.InOrStdin()
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return api.CalculateRequest{}, err
		}
		defer f.Close()
		r = f
	}

	var req api.CalculateRequest
	if err := json.NewDecoder(r).Decode(&req); err != nil {
		return api.CalculateRequest{}, fmt.Errorf("batch file: %w", err)
	}
	return req, nil
}

func printReport(out io.Writer, report *batch.Report) {
	fmt.Fprintf(out, "system %s, run %s\n", report.System, report.RunID)
	for _, r := range report.Results {
		if r.Failed() {
			fmt.Fprintf(out, "%-24s %-30s %-8s ERROR %v\n", r.Entity, r.Variable, r.Period, r.Err)
			for _, f := range r.Chain {
				fmt.Fprintf(out, "    %s\n", f)
			}
			continue
		}
		fmt.Fprintf(out, "%-24s %-30s %-8s %s\n", r.Entity, r.Variable, r.Period, r.Value)
	}
	fmt.Fprintf(out, "%d formula calls, %d cache hits, %d input reads in %s\n",
		report.Stats.FormulaCalls, report.Stats.CacheHits, report.Stats.InputReads, report.Duration)
}
