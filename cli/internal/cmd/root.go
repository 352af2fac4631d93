package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/zhaobenny/aobatop/cli/internal/remote"
	"github.com/zhaobenny/aobatop/internal/aggregator"
	"github.com/zhaobenny/aobatop/internal/config"
	"github.com/zhaobenny/aobatop/internal/logger"
	"github.com/zhaobenny/aobatop/internal/model"
	"github.com/zhaobenny/aobatop/internal/output"
	"github.com/zhaobenny/aobatop/internal/parser"
	"github.com/zhaobenny/aobatop/internal/pricing"
)

// Version will be set at build time
var Version = "dev"

var errColor = color.New(color.FgRed, color.Bold)

// options holds the flags shared by the report commands
type options struct {
	json     bool
	compact  bool
	noColor  bool
	debug    bool
	watch    bool
	rate     float64
	cutoff   string
	encoding string
	timezone string
	server   string
}

// NewRootCmd builds the aobatop command tree
func NewRootCmd() *cobra.Command {
	opts := &options{}

	root := &cobra.Command{
		Use:   "aobatop [file]",
		Short: "Usage and billing report for AOBA project journals",
		Long: `aobatop reads the project usage journal (plist.csv) exported from the AOBA
user portal and reports node-hours and cost for the whole project, per user,
and cumulatively over time.`,
		Example: `  aobatop plist.csv
  aobatop users plist.csv --records
  aobatop series plist.csv --cutoff 20230401
  aobatop plist.csv --json --rate 30
  aobatop users plist.csv --watch
  aobatop config --rate 22 --timezone Asia/Tokyo`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			level := slog.LevelWarn
			if opts.debug || os.Getenv("AOBATOP_DEBUG") != "" {
				level = slog.LevelDebug
			}
			logger.Setup(cmd.ErrOrStderr(), level)
			if opts.noColor {
				color.NoColor = true
			}
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				return cmd.Help()
			}
			return runReport(cmd, opts, args[0])
		},
	}

	flags := root.PersistentFlags()
	flags.BoolVar(&opts.json, "json", false, "Output as JSON")
	flags.BoolVarP(&opts.compact, "compact", "c", false, "Force compact table output")
	flags.BoolVar(&opts.noColor, "no-color", false, "Disable colored output")
	flags.BoolVar(&opts.debug, "debug", false, "Log parser and upload details to stderr")
	flags.BoolVarP(&opts.watch, "watch", "w", false, "Render again whenever the journal file changes")
	flags.Float64Var(&opts.rate, "rate", 0, "Cost per node-hour (default from config, 22)")
	flags.StringVar(&opts.cutoff, "cutoff", "", "First day of the time series (YYYYMMDD)")
	flags.StringVar(&opts.encoding, "encoding", "", "Journal encoding (default from config, Shift_JIS)")
	flags.StringVar(&opts.timezone, "timezone", "", "Timezone of journal timestamps (e.g., Asia/Tokyo)")
	flags.StringVar(&opts.server, "server", "", "Send the journal to an aobatop server instead of reading it locally")

	root.AddCommand(
		newReportCmd(opts),
		newUsersCmd(opts),
		newSeriesCmd(opts),
		newConfigCmd(),
		newVersionCmd(),
	)
	return root
}

// Execute runs the CLI and returns the process exit code
func Execute(ctx context.Context) int {
	root := NewRootCmd()
	if err := root.ExecuteContext(ctx); err != nil {
		printError(root.ErrOrStderr(), err)
		return 1
	}
	return 0
}

func printError(w io.Writer, err error) {
	var encErr *parser.EncodingError
	var schemaErr *parser.SchemaError
	var serverErr *remote.ServerError

	switch {
	case errors.As(err, &encErr):
		errColor.Fprint(w, "Error: ")
		fmt.Fprintf(w, "%v\nCheck --encoding; journals exported from the portal are Shift_JIS.\n", encErr)
	case errors.As(err, &schemaErr):
		errColor.Fprint(w, "Error: ")
		fmt.Fprintf(w, "%v\nIs this a plist.csv usage journal?\n", schemaErr)
	case errors.As(err, &serverErr) && serverErr.Unprocessable():
		errColor.Fprint(w, "Error: ")
		fmt.Fprintf(w, "server could not read the journal: %s\n", serverErr.Message)
	default:
		errColor.Fprint(w, "Error: ")
		fmt.Fprintln(w, err)
	}
}

// settings merges the config file, environment and flags
func (o *options) settings(cmd *cobra.Command) (*config.Config, error) {
	if cmd.Flags().Changed("rate") {
		if err := pricing.ValidateRate(o.rate); err != nil {
			return nil, err
		}
	}

	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	cfg, err = cfg.Apply(config.Overrides{
		Rate:     o.rate,
		Cutoff:   o.cutoff,
		Encoding: o.encoding,
		Timezone: o.timezone,
	})
	if err != nil {
		return nil, err
	}

	if o.server != "" {
		cfg.Server = o.server
	}
	return cfg, nil
}

// loadReport runs one aggregation pass over the journal at path, locally or on the server
func (o *options) loadReport(cmd *cobra.Command, path string) (*model.Report, error) {
	cfg, err := o.settings(cmd)
	if err != nil {
		return nil, err
	}

	if cfg.Server != "" {
		client := remote.NewClient(cfg.Server)
		return client.Report(cmd.Context(), path, cfg.FormValues())
	}

	popts, err := cfg.ParserOptions()
	if err != nil {
		return nil, err
	}
	aopts, err := cfg.AggregatorOptions()
	if err != nil {
		return nil, err
	}

	result, err := parser.ParseFile(path, popts)
	if err != nil {
		return nil, err
	}
	return aggregator.FromJournal(result, aopts), nil
}

func (o *options) tableOptions() output.TableOptions {
	return output.TableOptions{ForceCompact: o.compact}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version number of aobatop",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "aobatop version %s\n", Version)
		},
	}
}
