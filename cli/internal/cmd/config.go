package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/zhaobenny/aobatop/internal/config"
)

func newConfigCmd() *cobra.Command {
	var show bool
	updates := &config.Config{}

	cmd := &cobra.Command{
		Use:   "config",
		Short: "Show or change the saved settings",
		Example: `  aobatop config --show
  aobatop config --rate 22 --cutoff 20200101
  aobatop config --server https://aobatop.example.com`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := config.Path()
			if err != nil {
				return err
			}
			cfg, err := config.LoadFrom(path)
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			if show {
				fmt.Fprintf(w, "Config file: %s\n", path)
				fmt.Fprintf(w, "Rate:        %g per node-hour\n", cfg.Rate)
				fmt.Fprintf(w, "Currency:    %s\n", cfg.Currency)
				fmt.Fprintf(w, "Cutoff:      %s\n", cfg.Cutoff)
				fmt.Fprintf(w, "Class:       %s/%s\n", cfg.HostID, cfg.ClassID)
				fmt.Fprintf(w, "Encoding:    %s\n", cfg.Encoding)
				fmt.Fprintf(w, "Delimiter:   %q\n", cfg.Delimiter)
				fmt.Fprintf(w, "Timezone:    %s\n", cfg.Timezone)
				if cfg.Server != "" {
					fmt.Fprintf(w, "Server:      %s\n", cfg.Server)
				}
				return nil
			}

			flags := cmd.Flags()
			changed := false
			set := func(name string, dst *string, v string) {
				if flags.Changed(name) {
					*dst = v
					changed = true
				}
			}
			if flags.Changed("rate") {
				cfg.Rate = updates.Rate
				changed = true
			}
			if flags.Changed("cutoff") {
				cutoff, err := config.NormalizeCutoff(updates.Cutoff)
				if err != nil {
					return err
				}
				cfg.Cutoff = cutoff
				changed = true
			}
			set("encoding", &cfg.Encoding, updates.Encoding)
			set("timezone", &cfg.Timezone, updates.Timezone)
			set("currency", &cfg.Currency, updates.Currency)
			set("host-id", &cfg.HostID, updates.HostID)
			set("class-id", &cfg.ClassID, updates.ClassID)
			set("delimiter", &cfg.Delimiter, updates.Delimiter)
			set("server", &cfg.Server, updates.Server)

			if !changed {
				return cmd.Help()
			}

			if err := config.Save(cfg); err != nil {
				return fmt.Errorf("failed to save config: %w", err)
			}
			fmt.Fprintf(w, "Configuration saved to %s.\n", path)
			return nil
		},
	}

	flags := cmd.Flags()
	flags.BoolVar(&show, "show", false, "Show current configuration")
	flags.Float64Var(&updates.Rate, "rate", 0, "Cost per node-hour")
	flags.StringVar(&updates.Cutoff, "cutoff", "", "First day of the time series (YYYYMMDD)")
	flags.StringVar(&updates.Encoding, "encoding", "", "Journal encoding")
	flags.StringVar(&updates.Timezone, "timezone", "", "Timezone of journal timestamps")
	flags.StringVar(&updates.Currency, "currency", "", "Currency symbol for costs")
	flags.StringVar(&updates.HostID, "host-id", "", "Host id of the billable class")
	flags.StringVar(&updates.ClassID, "class-id", "", "Class id of the billable class")
	flags.StringVar(&updates.Delimiter, "delimiter", "", `Field separator ("tab" for tab separated)`)
	flags.StringVar(&updates.Server, "server", "", "aobatop server URL (empty to read journals locally)")
	return cmd
}
