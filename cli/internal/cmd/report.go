package cmd

import (
	"fmt"
	"io"
	"sync"

	"github.com/spf13/cobra"

	"github.com/zhaobenny/aobatop/cli/internal/watch"
	"github.com/zhaobenny/aobatop/internal/logger"
	"github.com/zhaobenny/aobatop/internal/model"
	"github.com/zhaobenny/aobatop/internal/output"
)

const clearScreen = "\033[H\033[2J"

// renderFunc writes one view of a report
type renderFunc func(w io.Writer, report *model.Report) error

// show loads the journal and renders it, then again after every change when --watch is set
func (o *options) show(cmd *cobra.Command, path string, render renderFunc) error {
	w := cmd.OutOrStdout()

	once := func() error {
		report, err := o.loadReport(cmd, path)
		if err != nil {
			return err
		}
		return render(w, report)
	}

	if err := once(); err != nil || !o.watch {
		return err
	}

	var mu sync.Mutex
	logger.Info("watching journal", "path", path)
	return watch.File(cmd.Context(), path, watch.DefaultDelay, func() {
		mu.Lock()
		defer mu.Unlock()

		fmt.Fprint(w, clearScreen)
		if err := once(); err != nil {
			// The exporter may still be writing; keep watching
			printError(cmd.ErrOrStderr(), err)
		}
	})
}

func runReport(cmd *cobra.Command, opts *options, path string) error {
	return opts.show(cmd, path, func(w io.Writer, report *model.Report) error {
		if opts.json {
			return output.WriteJSON(w, report)
		}
		return output.PrintReport(w, report, opts.tableOptions())
	})
}

func newReportCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "report <file>",
		Short: "Show group totals, per-user usage and the cumulative series (default)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReport(cmd, opts, args[0])
		},
	}
}

func newUsersCmd(opts *options) *cobra.Command {
	var records bool

	cmd := &cobra.Command{
		Use:   "users <file>",
		Short: "Show usage per user, highest user id first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.show(cmd, args[0], func(w io.Writer, report *model.Report) error {
				if opts.json {
					return output.EncodeJSON(w, output.NewJSONReport(report).Users)
				}
				tableOpts := opts.tableOptions()
				tableOpts.ShowRecords = records
				return output.PrintUsers(w, report, tableOpts)
			})
		},
	}
	cmd.Flags().BoolVarP(&records, "records", "r", false, "List each user's journal rows")
	return cmd
}

func newSeriesCmd(opts *options) *cobra.Command {
	var noChart bool

	cmd := &cobra.Command{
		Use:   "series <file>",
		Short: "Show daily and cumulative usage since the cutoff date",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.show(cmd, args[0], func(w io.Writer, report *model.Report) error {
				if opts.json {
					return output.EncodeJSON(w, output.NewJSONReport(report).Series)
				}
				if err := output.PrintSeries(w, report, opts.tableOptions()); err != nil {
					return err
				}
				if !noChart {
					output.PrintChart(w, report, opts.tableOptions())
				}
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&noChart, "no-chart", false, "Only print the table")
	return cmd
}
