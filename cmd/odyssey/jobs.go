package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"

	"github.com/odyssey-erp/odyssey-assets/cmd/odyssey/cli"
	"github.com/odyssey-erp/odyssey-assets/internal/app"
)

const jobsUsage = `usage: odyssey jobs <command> [flags]

commands:
  calculate --company ID --period YYYY-MM [--json]   enqueue depreciation calculation for one company
  schedule [--period YYYY-MM] [--json]               enqueue calculation for every company (default: previous month)
  stats [--json]                                     show default queue statistics
`

func runJobs(ctx context.Context, cfg *app.Config, args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		_, _ = fmt.Fprint(stderr, jobsUsage)
		return 1
	}
	ops, err := cli.NewJobsCLI(cfg.RedisAddr)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "jobs: %v\n", err)
		return 1
	}
	defer func() { _ = ops.Close() }()

	fs := flag.NewFlagSet("odyssey jobs "+args[0], flag.ContinueOnError)
	fs.SetOutput(stderr)
	jsonOut := fs.Bool("json", false, "emit JSON")

	switch args[0] {
	case "calculate":
		company := fs.Int64("company", 0, "company id")
		period := fs.String("period", "", "period as YYYY-MM")
		if err := fs.Parse(args[1:]); err != nil {
			return 1
		}
		return ops.CalculateCommand(ctx, cli.CalculateOptions{
			CompanyID:  *company,
			Period:     *period,
			JSONOutput: *jsonOut,
			Stdout:     stdout,
			Stderr:     stderr,
		})
	case "schedule":
		period := fs.String("period", "", "period as YYYY-MM")
		if err := fs.Parse(args[1:]); err != nil {
			return 1
		}
		return ops.ScheduleCommand(ctx, cli.ScheduleOptions{
			Period:     *period,
			JSONOutput: *jsonOut,
			Stdout:     stdout,
			Stderr:     stderr,
		})
	case "stats":
		if err := fs.Parse(args[1:]); err != nil {
			return 1
		}
		stats, err := ops.InspectQueue(ctx)
		if err != nil {
			_, _ = fmt.Fprintf(stderr, "jobs stats: %v\n", err)
			return 1
		}
		if *jsonOut {
			_ = json.NewEncoder(stdout).Encode(stats)
			return 0
		}
		_, _ = fmt.Fprintf(stdout, "queue=%s pending=%d active=%d scheduled=%d retry=%d\n",
			stats.Queue, stats.Pending, stats.Active, stats.Scheduled, stats.Retry)
		return 0
	default:
		_, _ = fmt.Fprint(stderr, jobsUsage)
		return 1
	}
}
