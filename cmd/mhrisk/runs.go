package main

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"mhrisk/pkg/runlog"
)

var (
	runsLong = `
		Lists the stage runs recorded in the run registry, newest first.

		With --id or --latest a single run is shown in full, including the parameters it
		was started with. --latest picks the most recent successful run of --stage.`

	runsExample = `
		# Last ten fit runs
		mhrisk runs --stage fit -n 10

		# Parameters and metrics of one run
		mhrisk runs --id 0b6f0c62-5d1e-4c52-9f3e-5f0a8e0d1c77

		# The model currently on disk came from this run
		mhrisk runs --stage fit --latest`
)

func newRunsCmd(a *app) *cobra.Command {
	var (
		stage, id string
		limit     int
		latest    bool
	)
	cmd := &cobra.Command{
		Use:     "runs",
		Short:   "List recorded stage runs, newest first",
		Long:    longDesc(runsLong),
		Example: examples(runsExample),
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if a.runs == nil {
				return errors.New("run registry is disabled, set --runs-db or runs_db")
			}
			switch {
			case id != "":
				r, err := a.runs.Get(id)
				if err != nil {
					return err
				}
				printRunDetail(cmd, r)
				return nil
			case latest:
				if stage == "" {
					return errors.New("--latest needs --stage")
				}
				r, err := a.runs.LatestSucceeded(stage)
				if err != nil {
					return err
				}
				printRunDetail(cmd, r)
				return nil
			}

			runs, err := a.runs.List(stage, limit)
			if err != nil {
				return err
			}
			for _, r := range runs {
				cmd.Printf("%s  %-8s  %-9s  %s  %s\n",
					r.StartedAt.Local().Format(time.DateTime), r.Stage, r.Status, r.ID, formatMetrics(r.Metrics))
				if r.Error != "" {
					cmd.Printf("    error: %s\n", r.Error)
				}
			}

			return nil
		},
	}
	flags := cmd.Flags()
	flags.StringVarP(&stage, "stage", "s", "", "Only list runs of this stage")
	flags.IntVarP(&limit, "limit", "n", 20, "Maximum runs listed, 0 lists all")
	flags.StringVar(&id, "id", "", "Show one run in full")
	flags.BoolVar(&latest, "latest", false, "Show the most recent successful run of --stage")
	cmd.MarkFlagsMutuallyExclusive("id", "latest")

	return cmd
}

func printRunDetail(cmd *cobra.Command, r *runlog.Run) {
	cmd.Printf("run:      %s\n", r.ID)
	cmd.Printf("stage:    %s\n", r.Stage)
	cmd.Printf("status:   %s\n", r.Status)
	cmd.Printf("started:  %s\n", r.StartedAt.Local().Format(time.DateTime))
	if !r.FinishedAt.IsZero() {
		cmd.Printf("finished: %s (%s)\n", r.FinishedAt.Local().Format(time.DateTime), r.FinishedAt.Sub(r.StartedAt).Round(time.Millisecond))
	}
	if r.Error != "" {
		cmd.Printf("error:    %s\n", r.Error)
	}
	cmd.Printf("params:   %s\n", formatParams(r.Params))
	cmd.Printf("metrics:  %s\n", formatMetrics(r.Metrics))
}

func formatParams(m map[string]any) string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("%s=%v", k, m[k])
	}

	return strings.Join(parts, " ")
}

func formatMetrics(m map[string]float64) string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = k + "=" + strconv.FormatFloat(m[k], 'g', 4, 64)
	}

	return strings.Join(parts, " ")
}
