package main

import (
	"github.com/spf13/cobra"

	"github.com/JonMunkholm/aggrada/internal/period"
)

func newPeriodCmd() *cobra.Command {
	var tz string

	cmd := &cobra.Command{
		Use:   "period <input>",
		Short: "Parse a period string and print its time range",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := period.Parse(args[0], tz)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), r)
		},
	}
	cmd.Flags().StringVar(&tz, "tz", period.DefaultTimezone, "IANA timezone")
	return cmd
}

type intervalsOptions struct {
	From        string
	To          string
	Granularity string
	Timezone    string
}

func newIntervalsCmd() *cobra.Command {
	var opts intervalsOptions

	cmd := &cobra.Command{
		Use:   "intervals --from <period> --to <period> --granularity <yearly|quarterly|monthly>",
		Short: "Tile a range into calendar-aligned intervals",
		RunE: func(cmd *cobra.Command, _ []string) error {
			g, err := period.ParseGranularity(opts.Granularity)
			if err != nil {
				return err
			}
			intervals, err := period.Between(opts.From, opts.To, opts.Timezone, g)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), intervals)
		},
	}

	cmd.Flags().StringVar(&opts.From, "from", "", "start period")
	cmd.Flags().StringVar(&opts.To, "to", "", "end period")
	cmd.Flags().StringVar(&opts.Granularity, "granularity", "yearly", "yearly, quarterly or monthly")
	cmd.Flags().StringVar(&opts.Timezone, "tz", period.DefaultTimezone, "IANA timezone")
	_ = cmd.MarkFlagRequired("from")
	_ = cmd.MarkFlagRequired("to")
	return cmd
}
